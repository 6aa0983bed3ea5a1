package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nugget/lifetracker/internal/dispatch"
	"github.com/nugget/lifetracker/internal/llm"
	"github.com/nugget/lifetracker/internal/session"
	"github.com/nugget/lifetracker/internal/store"
	"github.com/nugget/lifetracker/internal/store/sqlite"
	"github.com/nugget/lifetracker/internal/tools"
)

// scriptedLLM replays canned replies and records every request.
type scriptedLLM struct {
	replies  []llm.Message
	err      error
	requests [][]llm.Message
	tools    [][]map[string]any
}

func (s *scriptedLLM) Chat(_ context.Context, model string, messages []llm.Message, tools []map[string]any) (*llm.ChatResponse, error) {
	s.requests = append(s.requests, append([]llm.Message(nil), messages...))
	s.tools = append(s.tools, tools)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.replies) == 0 {
		return &llm.ChatResponse{Model: model, Message: llm.Message{Role: llm.RoleAssistant, Content: "ok"}}, nil
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	return &llm.ChatResponse{Model: model, Message: next, InputTokens: 10, OutputTokens: 2}, nil
}

func (s *scriptedLLM) Ping(context.Context) error { return nil }

func toolCall(id, name string, args map[string]any) llm.ToolCall {
	return llm.ToolCall{ID: id, Function: llm.FunctionCall{Name: name, Arguments: args}}
}

func setup(t *testing.T, client llm.Client) (*Loop, *sqlite.Store, *session.Session) {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "agent.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	u, err := st.UpsertUser(context.Background(), store.User{Email: "ada@example.com", Name: "Ada"})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	reg := tools.NewRegistry()
	loop := NewLoop(client, reg, dispatch.New(st, reg, nil), st, Config{Model: "test-model"}, nil)
	return loop, st, session.New(u.ID)
}

func TestRunPlainReply(t *testing.T) {
	client := &scriptedLLM{replies: []llm.Message{{Role: llm.RoleAssistant, Content: "Hey Ada!"}}}
	loop, _, sess := setup(t, client)

	resp, err := loop.Run(context.Background(), sess, "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Content != "Hey Ada!" {
		t.Errorf("content = %q", resp.Content)
	}

	h := sess.History()
	if len(h) != 2 || h[0].Content != "hi" || h[1].Content != "Hey Ada!" {
		t.Errorf("history = %+v", h)
	}

	req := client.requests[0]
	if req[0].Role != llm.RoleSystem {
		t.Errorf("first message role = %s, want system", req[0].Role)
	}
	if last := req[len(req)-1]; last.Role != llm.RoleUser || last.Content != "hi" {
		t.Errorf("last message = %+v", last)
	}
	if len(client.tools[0]) != 3 {
		t.Errorf("expected 3 tools advertised, got %d", len(client.tools[0]))
	}
}

func TestRunToolRoundTrip(t *testing.T) {
	client := &scriptedLLM{}
	loop, st, sess := setup(t, client)
	ctx := context.Background()

	report := &store.Task{UserID: sess.UserID, Description: "Finish the report"}
	if err := st.CreateTask(ctx, report); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	client.replies = []llm.Message{
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			toolCall("call_1", tools.ManageTasks, map[string]any{"action": "update", "task_id": report.ID, "status": "completed"}),
			toolCall("call_2", tools.UpdateBackgroundInfo, map[string]any{"merge": map[string]any{"goals": []any{"run a marathon"}}}),
		}},
		{Role: llm.RoleAssistant, Content: "Congrats on the report! Marathon goal saved."},
	}

	resp, err := loop.Run(ctx, sess, "I finished the report, and my new goal is to run a marathon.")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Iterations != 2 || len(resp.ToolResults) != 2 {
		t.Errorf("iterations=%d tool_results=%d", resp.Iterations, len(resp.ToolResults))
	}
	if resp.InputTokens != 20 {
		t.Errorf("input tokens = %d, want summed 20", resp.InputTokens)
	}

	second := client.requests[1]
	var toolMsgs []llm.Message
	for _, m := range second {
		if m.Role == llm.RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	if len(toolMsgs) != 2 || toolMsgs[0].ToolCallID != "call_1" || toolMsgs[1].ToolCallID != "call_2" {
		t.Fatalf("tool messages = %+v", toolMsgs)
	}
	if !strings.Contains(toolMsgs[0].Content, `"ok":true`) {
		t.Errorf("tool result = %s", toolMsgs[0].Content)
	}

	got, _ := st.GetTask(ctx, sess.UserID, report.ID)
	if got.Status != store.StatusCompleted {
		t.Errorf("task status = %q", got.Status)
	}
	bg, _ := st.GetBackground(ctx, sess.UserID)
	if goals, _ := bg["goals"].([]any); len(goals) != 1 {
		t.Errorf("background = %v", bg)
	}

	if sess.Len() != 2 {
		t.Errorf("expected one user and one assistant turn, got %d", sess.Len())
	}
}

func TestRunContextRebuiltEachTurn(t *testing.T) {
	client := &scriptedLLM{replies: []llm.Message{
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			toolCall("c1", tools.AddLogEntry, map[string]any{"content": "Walked the dog"}),
		}},
		{Role: llm.RoleAssistant, Content: "Logged."},
		{Role: llm.RoleAssistant, Content: "You walked the dog."},
	}}
	loop, _, sess := setup(t, client)
	ctx := context.Background()

	if _, err := loop.Run(ctx, sess, "I walked the dog"); err != nil {
		t.Fatalf("Run 1: %v", err)
	}
	if strings.Contains(client.requests[0][0].Content, "Walked the dog") {
		t.Fatal("first turn context should not contain the log yet")
	}

	if _, err := loop.Run(ctx, sess, "what did I do?"); err != nil {
		t.Fatalf("Run 2: %v", err)
	}
	if !strings.Contains(client.requests[2][0].Content, "Walked the dog") {
		t.Error("second turn context should include the new log entry")
	}
	if sess.Len() != 4 {
		t.Errorf("history len = %d, want 4", sess.Len())
	}
}

func TestRunModelFailure(t *testing.T) {
	client := &scriptedLLM{err: errors.New("connection refused")}
	loop, _, sess := setup(t, client)

	_, err := loop.Run(context.Background(), sess, "hello?")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}

	h := sess.History()
	if len(h) != 2 || h[1].Content != FailureReply {
		t.Errorf("expected user turn plus failure reply, got %+v", h)
	}
}

func TestRunStoreFailure(t *testing.T) {
	client := &scriptedLLM{}
	loop, st, sess := setup(t, client)
	st.Close()

	_, err := loop.Run(context.Background(), sess, "log this")
	if !IsStoreFailure(err) {
		t.Fatalf("expected store failure, got %v", err)
	}
	if len(client.requests) != 0 {
		t.Error("model should not be called without context")
	}
	if h := sess.History(); len(h) != 2 || h[1].Content != FailureReply {
		t.Errorf("history = %+v", h)
	}
}

func TestRunIterationLimit(t *testing.T) {
	var replies []llm.Message
	for range DefaultMaxIterations {
		replies = append(replies, llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			toolCall("c", tools.ManageTasks, map[string]any{"action": "list"}),
		}})
	}
	client := &scriptedLLM{replies: replies}
	loop, _, sess := setup(t, client)

	resp, err := loop.Run(context.Background(), sess, "loop forever")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Iterations != DefaultMaxIterations {
		t.Errorf("iterations = %d", resp.Iterations)
	}
	if resp.Content == "" {
		t.Error("expected a fallback reply")
	}
	if len(client.requests) != DefaultMaxIterations {
		t.Errorf("LLM calls = %d", len(client.requests))
	}
}

func TestSummarizeResults(t *testing.T) {
	tests := []struct {
		results []dispatch.Result
		want    string
	}{
		{nil, "OK."},
		{[]dispatch.Result{{OK: true}}, "Done, your records are updated."},
		{[]dispatch.Result{{OK: true}, {OK: false}}, "I applied 1 of 2 updates; the rest could not be completed."},
	}
	for _, tt := range tests {
		if got := summarizeResults(tt.results); got != tt.want {
			t.Errorf("summarizeResults = %q, want %q", got, tt.want)
		}
	}
}
