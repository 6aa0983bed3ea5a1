package sqlite

import (
	"context"
	"fmt"

	"github.com/nugget/lifetracker/internal/store"
)

// AddLog appends a text log entry.
func (s *Store) AddLog(ctx context.Context, e *store.LogEntry) error {
	if err := store.PrepareLog(e); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO text_logs (id, user_id, content, category, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Content, e.Category, formatTime(e.CreatedAt),
	)
	if err != nil {
		return writeError("insert log", err)
	}
	return nil
}

// RecentLogs returns up to limit entries, newest first.
func (s *Store) RecentLogs(ctx context.Context, userID string, limit int) ([]store.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, content, category, created_at FROM text_logs
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, store.Unavailable("query logs", err)
	}
	defer rows.Close()

	var out []store.LogEntry
	for rows.Next() {
		var e store.LogEntry
		var created string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Content, &e.Category, &created); err != nil {
			return nil, store.Unavailable("scan log", err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("query logs", err)
	}
	return out, nil
}
