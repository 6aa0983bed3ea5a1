package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/nugget/lifetracker/internal/store"
)

// AddLog appends a text log entry.
func (s *Store) AddLog(ctx context.Context, e *store.LogEntry) error {
	if err := store.PrepareLog(e); err != nil {
		return err
	}
	_, err := exec(ctx, s.pool, "insert log", psql.Insert("text_logs").
		Columns("id", "user_id", "content", "category", "created_at").
		Values(e.ID, e.UserID, e.Content, e.Category, e.CreatedAt))
	return err
}

// RecentLogs returns up to limit entries, newest first.
func (s *Store) RecentLogs(ctx context.Context, userID string, limit int) ([]store.LogEntry, error) {
	query, args, err := psql.Select("id", "user_id", "content", "category", "created_at").
		From("text_logs").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(max(limit, 0))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("query logs: build query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("query logs", err)
	}
	defer rows.Close()

	var out []store.LogEntry
	for rows.Next() {
		var e store.LogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Content, &e.Category, &e.CreatedAt); err != nil {
			return nil, mapError("scan log", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("query logs", err)
	}
	return out, nil
}
