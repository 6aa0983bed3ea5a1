package mcpserve

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nugget/lifetracker/internal/dispatch"
	"github.com/nugget/lifetracker/internal/store"
	"github.com/nugget/lifetracker/internal/store/sqlite"
	"github.com/nugget/lifetracker/internal/tools"
)

func setup(t *testing.T) (*mcp.ClientSession, *sqlite.Store, string) {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "mcp.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	u, err := st.UpsertUser(ctx, store.User{Email: "ada@example.com", Name: "Ada"})
	if err != nil {
		t.Fatal(err)
	}

	reg := tools.NewRegistry()
	srv := New(dispatch.New(st, reg, nil), reg, u.ID, nil)

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	if _, err := srv.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	session, err := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil).Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	return session, st, u.ID
}

// callTool returns the decoded dispatch result and the error flag.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (dispatch.Result, bool) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(res.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, res.Content[0])
	}
	var r dispatch.Result
	if err := json.Unmarshal([]byte(tc.Text), &r); err != nil {
		t.Fatalf("CallTool(%s): decode %q: %v", name, tc.Text, err)
	}
	return r, res.IsError
}

func TestListTools(t *testing.T) {
	session, _, _ := setup(t)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	got := map[string]string{}
	for _, tool := range res.Tools {
		got[tool.Name] = tool.Description
	}
	for _, name := range tools.NewRegistry().Names() {
		if got[name] == "" {
			t.Errorf("tool %s missing or undescribed", name)
		}
	}
}

func TestAddLogEntry(t *testing.T) {
	session, st, userID := setup(t)

	r, isErr := callTool(t, session, tools.AddLogEntry, map[string]any{"content": "Slept eight hours", "category": "health"})
	if isErr || !r.OK {
		t.Fatalf("result = %+v", r)
	}

	logs, err := st.RecentLogs(context.Background(), userID, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Content != "Slept eight hours" || logs[0].Category != "health" {
		t.Errorf("logs = %+v", logs)
	}
}

func TestUpdateBackground(t *testing.T) {
	session, st, userID := setup(t)

	callTool(t, session, tools.UpdateBackgroundInfo, map[string]any{"merge": map[string]any{"a": 1}})
	r, isErr := callTool(t, session, tools.UpdateBackgroundInfo, map[string]any{"merge": map[string]any{"b": 2}})
	if isErr || !r.OK {
		t.Fatalf("result = %+v", r)
	}

	bg, err := st.GetBackground(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(bg) != 2 {
		t.Errorf("background = %v", bg)
	}
}

func TestManageTasks(t *testing.T) {
	session, st, userID := setup(t)

	r, isErr := callTool(t, session, tools.ManageTasks, map[string]any{"action": "add", "description": "Call the plumber", "deadline": "2030-01-15"})
	if isErr || !r.OK {
		t.Fatalf("add = %+v", r)
	}

	tasks, _ := st.ListTasks(context.Background(), userID, store.TaskFilter{})
	if len(tasks) != 1 {
		t.Fatalf("tasks = %+v", tasks)
	}

	r, isErr = callTool(t, session, tools.ManageTasks, map[string]any{"action": "update", "task_id": tasks[0].ID, "status": "completed"})
	if isErr || !r.OK {
		t.Fatalf("update = %+v", r)
	}

	r, isErr = callTool(t, session, tools.ManageTasks, map[string]any{"action": "update", "task_id": "missing", "status": "completed"})
	if !isErr || r.ErrorKind != dispatch.KindNotFound {
		t.Errorf("update of missing task = %+v (isError=%v)", r, isErr)
	}

	r, isErr = callTool(t, session, tools.ManageTasks, map[string]any{"action": "add", "description": "x", "status": "done"})
	if !isErr || r.ErrorKind != dispatch.KindValidation {
		t.Errorf("bad status = %+v (isError=%v)", r, isErr)
	}

	open, _ := st.ListTasks(context.Background(), userID, store.TaskFilter{})
	if len(open) != 0 {
		t.Errorf("completed task still open: %+v", open)
	}
}

func TestStoreOutage(t *testing.T) {
	session, st, _ := setup(t)
	st.Close()

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      tools.AddLogEntry,
		Arguments: map[string]any{"content": "lost?"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Error("store outage should be reported as a tool error")
	}
}
