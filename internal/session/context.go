package session

import (
	"context"
	"fmt"
	"time"

	"github.com/nugget/lifetracker/internal/store"
)

// RecentLogLimit is how many log entries the context carries.
const RecentLogLimit = 5

// Source is the read side of the store the context is built from.
type Source interface {
	GetBackground(ctx context.Context, userID string) (store.Background, error)
	RecentLogs(ctx context.Context, userID string, limit int) ([]store.LogEntry, error)
	ListTasks(ctx context.Context, userID string, f store.TaskFilter) ([]store.Task, error)
}

// Context is the snapshot handed to the model for one turn.
type Context struct {
	Now        time.Time
	History    []Turn
	Background store.Background
	RecentLogs []store.LogEntry
	OpenTasks  []store.Task
}

// BuildContext reads a fresh snapshot for the session's user. It is
// called once per turn and never cached, so mutations from earlier
// turns are always visible.
func BuildContext(ctx context.Context, src Source, s *Session, now time.Time) (*Context, error) {
	bg, err := src.GetBackground(ctx, s.UserID)
	if err != nil {
		return nil, fmt.Errorf("load background: %w", err)
	}
	logs, err := src.RecentLogs(ctx, s.UserID, RecentLogLimit)
	if err != nil {
		return nil, fmt.Errorf("load recent logs: %w", err)
	}
	tasks, err := src.ListTasks(ctx, s.UserID, store.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("load open tasks: %w", err)
	}
	return &Context{
		Now:        now,
		History:    s.History(),
		Background: bg,
		RecentLogs: logs,
		OpenTasks:  tasks,
	}, nil
}
