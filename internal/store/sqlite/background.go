package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nugget/lifetracker/internal/store"
)

// GetBackground returns the stored object, or an empty one.
func (s *Store) GetBackground(ctx context.Context, userID string) (store.Background, error) {
	return loadBackground(ctx, s.db, userID)
}

// ReplaceBackground overwrites the stored object.
func (s *Store) ReplaceBackground(ctx context.Context, userID string, b store.Background) error {
	if b == nil {
		b = store.Background{}
	}
	return writeBackground(ctx, s.db, userID, b)
}

// MergeBackground reads, merges and writes back inside one transaction.
func (s *Store) MergeBackground(ctx context.Context, userID string, patch store.Background) (store.Background, error) {
	var merged store.Background
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := loadBackground(ctx, tx, userID)
		if err != nil {
			return err
		}
		merged = store.MergeTopLevel(current, patch)
		return writeBackground(ctx, tx, userID, merged)
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func loadBackground(ctx context.Context, q querier, userID string) (store.Background, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT content FROM background_info WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Background{}, nil
	}
	if err != nil {
		return nil, store.Unavailable("load background", err)
	}
	b := store.Background{}
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, fmt.Errorf("decode background: %w", err)
	}
	return b, nil
}

func writeBackground(ctx context.Context, q querier, userID string, b store.Background) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return store.Invalid("background is not JSON-serializable: %v", err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO background_info (user_id, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		userID, string(raw), formatTime(store.Now()),
	)
	if err != nil {
		return writeError("write background", err)
	}
	return nil
}
