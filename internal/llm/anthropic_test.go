package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConvertToAnthropic(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "You track the user's life."},
		{Role: RoleUser, Content: "Hello!"},
		{Role: RoleAssistant, Content: "Hi there!"},
		{Role: RoleUser, Content: "Log that I ran 5k."},
	}

	result, system := convertToAnthropic(messages)

	if system != "You track the user's life." {
		t.Errorf("system = %q", system)
	}
	if len(result) != 3 {
		t.Fatalf("expected 3 messages (no system), got %d", len(result))
	}
	if result[0].Role != RoleUser {
		t.Errorf("first role = %s, want user", result[0].Role)
	}
}

func TestConvertToAnthropic_ToolResultsGrouped(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "I finished the report."},
		{
			Role: RoleAssistant,
			ToolCalls: []ToolCall{
				{ID: "toolu_1", Function: FunctionCall{Name: "manage_tasks", Arguments: map[string]any{"action": "list"}}},
				{ID: "toolu_2", Function: FunctionCall{Name: "add_log_entry", Arguments: map[string]any{"content": "report done"}}},
			},
		},
		{Role: RoleTool, Content: `{"ok":true}`, ToolCallID: "toolu_1"},
		{Role: RoleTool, Content: `{"ok":true}`, ToolCallID: "toolu_2"},
	}

	result, _ := convertToAnthropic(messages)
	if len(result) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(result))
	}

	uses, ok := result[1].Content.([]anthropicContent)
	if !ok || len(uses) != 2 || uses[0].Type != "tool_use" || uses[1].ID != "toolu_2" {
		t.Fatalf("unexpected assistant blocks: %+v", result[1].Content)
	}

	results, ok := result[2].Content.([]anthropicContent)
	if !ok {
		t.Fatal("expected tool results as content blocks")
	}
	if len(results) != 2 {
		t.Fatalf("expected both tool results in one message, got %d", len(results))
	}
	if results[1].ToolUseID != "toolu_2" {
		t.Errorf("second result tool_use_id = %q", results[1].ToolUseID)
	}
}

func TestConvertToolsToAnthropic(t *testing.T) {
	tools := []map[string]any{
		{"type": "function", "function": map[string]any{
			"name":        "add_log_entry",
			"description": "Record a note.",
			"parameters":  map[string]any{"type": "object"},
		}},
		{"type": "bogus"},
	}
	got := convertToolsToAnthropic(tools)
	if len(got) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(got))
	}
	if got[0].Name != "add_log_entry" || got[0].InputSchema == nil {
		t.Errorf("unexpected tool: %+v", got[0])
	}
}

func TestAnthropicChat(t *testing.T) {
	var gotReq anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "sk-test" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		w.Write([]byte(`{
			"role": "assistant",
			"model": "claude-test",
			"stop_reason": "tool_use",
			"content": [
				{"type": "text", "text": "On it."},
				{"type": "tool_use", "id": "toolu_9", "name": "add_log_entry", "input": {"content": "ran 5k"}}
			],
			"usage": {"input_tokens": 12, "output_tokens": 7}
		}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("sk-test", srv.URL, nil)
	resp, err := c.Chat(context.Background(), "claude-test", []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "I ran 5k"},
	}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if gotReq.System != "sys" {
		t.Errorf("system = %q", gotReq.System)
	}
	if resp.Message.Content != "On it." {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "toolu_9" || tc.Function.Name != "add_log_entry" || tc.Function.Arguments["content"] != "ran 5k" {
		t.Errorf("unexpected tool call: %+v", tc)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 7 {
		t.Errorf("usage = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestAnthropicChat_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, 529)
	}))
	defer srv.Close()

	c := NewAnthropicClient("sk-test", srv.URL, nil)
	_, err := c.Chat(context.Background(), "m", []Message{{Role: RoleUser, Content: "hi"}}, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != 529 {
		t.Errorf("status = %d, want 529", apiErr.StatusCode)
	}
}
