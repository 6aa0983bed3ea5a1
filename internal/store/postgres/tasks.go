package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/nugget/lifetracker/internal/store"
)

var taskColumns = []string{"id", "user_id", "description", "status", "deadline", "created_at", "completed_at"}

// CreateTask inserts a new task, defaulting its status to open.
func (s *Store) CreateTask(ctx context.Context, t *store.Task) error {
	if err := store.PrepareTask(t); err != nil {
		return err
	}
	_, err := exec(ctx, s.pool, "insert task", psql.Insert("tasks").
		Columns(taskColumns...).
		Values(t.ID, t.UserID, t.Description, string(t.Status), t.Deadline, t.CreatedAt, t.CompletedAt))
	return err
}

// GetTask returns the user's task with id.
func (s *Store) GetTask(ctx context.Context, userID, id string) (*store.Task, error) {
	return s.loadTask(ctx, s.pool, userID, id, false)
}

func (s *Store) loadTask(ctx context.Context, q querier, userID, id string, lock bool) (*store.Task, error) {
	b := psql.Select(taskColumns...).From("tasks").Where(sq.Eq{"id": id, "user_id": userID})
	if lock {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("get task: build query: %w", err)
	}
	t, err := scanTask(q.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapError("get task", err)
	}
	return t, nil
}

// UpdateTask locks the row, applies p and writes it back.
func (s *Store) UpdateTask(ctx context.Context, userID, id string, p store.TaskPatch) (*store.Task, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var out *store.Task
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		t, err := s.loadTask(ctx, tx, userID, id, true)
		if err != nil {
			return err
		}
		p.Apply(t, store.Now())

		_, err = exec(ctx, tx, "update task", psql.Update("tasks").
			Set("description", t.Description).
			Set("status", string(t.Status)).
			Set("deadline", t.Deadline).
			Set("completed_at", t.CompletedAt).
			Where(sq.Eq{"id": id, "user_id": userID}))
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListTasks returns the user's tasks, soonest deadline first.
func (s *Store) ListTasks(ctx context.Context, userID string, f store.TaskFilter) ([]store.Task, error) {
	b := psql.Select(taskColumns...).From("tasks").Where(sq.Eq{"user_id": userID})
	if !f.IncludeCompleted {
		b = b.Where(sq.NotEq{"status": string(store.StatusCompleted)})
	}
	query, args, err := b.OrderBy("deadline ASC NULLS LAST", "created_at ASC", "id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("query tasks: build query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("query tasks", err)
	}
	defer rows.Close()

	var out []store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, mapError("scan task", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("query tasks", err)
	}
	return out, nil
}

func scanTask(row pgx.Row) (*store.Task, error) {
	var t store.Task
	var status string
	if err := row.Scan(&t.ID, &t.UserID, &t.Description, &status, &t.Deadline, &t.CreatedAt, &t.CompletedAt); err != nil {
		return nil, err
	}
	t.Status = store.TaskStatus(status)
	t.CreatedAt = t.CreatedAt.UTC()
	if t.Deadline != nil {
		d := t.Deadline.UTC()
		t.Deadline = &d
	}
	if t.CompletedAt != nil {
		c := t.CompletedAt.UTC()
		t.CompletedAt = &c
	}
	return &t, nil
}
