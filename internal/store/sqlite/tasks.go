package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nugget/lifetracker/internal/store"
)

const taskColumns = `id, user_id, description, status, deadline, created_at, completed_at`

// CreateTask inserts a new task, defaulting its status to open.
func (s *Store) CreateTask(ctx context.Context, t *store.Task) error {
	if err := store.PrepareTask(t); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Description, string(t.Status),
		formatTimePtr(t.Deadline), formatTime(t.CreatedAt), formatTimePtr(t.CompletedAt),
	)
	if err != nil {
		return writeError("insert task", err)
	}
	return nil
}

// GetTask returns the user's task with id.
func (s *Store) GetTask(ctx context.Context, userID, id string) (*store.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTask(row)
	if err != nil {
		return nil, rowError("get task", err)
	}
	return t, nil
}

// UpdateTask applies p inside a transaction.
func (s *Store) UpdateTask(ctx context.Context, userID, id string, p store.TaskPatch) (*store.Task, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var out *store.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
		t, err := scanTask(row)
		if err != nil {
			return rowError("load task", err)
		}

		p.Apply(t, store.Now())

		_, err = tx.ExecContext(ctx,
			`UPDATE tasks SET description = ?, status = ?, deadline = ?, completed_at = ?
			 WHERE id = ? AND user_id = ?`,
			t.Description, string(t.Status), formatTimePtr(t.Deadline), formatTimePtr(t.CompletedAt),
			id, userID,
		)
		if err != nil {
			return writeError("update task", err)
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
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`
	if !f.IncludeCompleted {
		query += ` AND status != 'completed'`
	}
	query += ` ORDER BY deadline IS NULL, deadline ASC, created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, store.Unavailable("query tasks", err)
	}
	defer rows.Close()

	var out []store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, store.Unavailable("scan task", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("query tasks", err)
	}
	return out, nil
}

func scanTask(row scanner) (*store.Task, error) {
	var t store.Task
	var status, created string
	var deadline, completed sql.NullString
	if err := row.Scan(&t.ID, &t.UserID, &t.Description, &status, &deadline, &created, &completed); err != nil {
		return nil, err
	}
	t.Status = store.TaskStatus(status)

	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.Deadline, err = parseTimePtr(deadline); err != nil {
		return nil, fmt.Errorf("parse deadline: %w", err)
	}
	if t.CompletedAt, err = parseTimePtr(completed); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	return &t, nil
}
