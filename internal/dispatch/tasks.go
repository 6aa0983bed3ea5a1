package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/nugget/lifetracker/internal/store"
	"github.com/nugget/lifetracker/internal/tools"
)

// deadlineLayouts are tried in order. Layouts without a zone are UTC.
var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDeadline accepts an ISO-8601 date or date-time.
func ParseDeadline(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, store.Invalid("deadline %q is not an ISO date or date-time", s)
}

func (d *Dispatcher) manageTasks(ctx context.Context, userID string, args map[string]any) (any, error) {
	var deadline *time.Time
	if raw, ok := args["deadline"].(string); ok && raw != "" {
		t, err := ParseDeadline(raw)
		if err != nil {
			return nil, err
		}
		deadline = &t
	}

	switch stringArg(args, "action") {
	case tools.ActionAdd:
		desc := strings.TrimSpace(stringArg(args, "description"))
		if desc == "" {
			return nil, store.Invalid("description is required for add")
		}
		task := &store.Task{UserID: userID, Description: desc, Status: store.StatusOpen, Deadline: deadline}
		if err := d.store.CreateTask(ctx, task); err != nil {
			return nil, err
		}
		return map[string]any{"task": task}, nil

	case tools.ActionUpdate:
		id := strings.TrimSpace(stringArg(args, "task_id"))
		if id == "" {
			return nil, store.Invalid("task_id is required for update")
		}
		var p store.TaskPatch
		if s, ok := args["status"].(string); ok {
			status := store.TaskStatus(s)
			p.Status = &status
		}
		if desc, ok := args["description"].(string); ok {
			p.Description = &desc
		}
		p.Deadline = deadline
		if p.Empty() {
			return nil, store.Invalid("update needs at least one of status, description or deadline")
		}
		task, err := d.store.UpdateTask(ctx, userID, id, p)
		if err != nil {
			return nil, err
		}
		return map[string]any{"task": task}, nil

	case tools.ActionList:
		tasks, err := d.store.ListTasks(ctx, userID, store.TaskFilter{})
		if err != nil {
			return nil, err
		}
		if tasks == nil {
			tasks = []store.Task{}
		}
		return map[string]any{"tasks": tasks, "count": len(tasks)}, nil
	}

	// The registry enum rejects anything else before we get here.
	return nil, store.Invalid("unknown action")
}
