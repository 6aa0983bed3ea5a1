package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/nugget/lifetracker/internal/store"
)

// GetBackground returns the stored object, or an empty one.
func (s *Store) GetBackground(ctx context.Context, userID string) (store.Background, error) {
	query, args, err := psql.Select("content").From("background_info").Where(sq.Eq{"user_id": userID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("load background: build query: %w", err)
	}
	var raw []byte
	err = s.pool.QueryRow(ctx, query, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Background{}, nil
	}
	if err != nil {
		return nil, mapError("load background", err)
	}
	return decodeBackground(raw)
}

// ReplaceBackground overwrites the stored object.
func (s *Store) ReplaceBackground(ctx context.Context, userID string, b store.Background) error {
	if b == nil {
		b = store.Background{}
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return store.Invalid("background is not JSON-serializable: %v", err)
	}
	_, err = exec(ctx, s.pool, "replace background", psql.Insert("background_info").
		Columns("user_id", "content", "updated_at").
		Values(userID, raw, store.Now()).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at"))
	return err
}

// MergeBackground applies the patch with jsonb concatenation, which
// replaces top-level keys in a single atomic upsert.
func (s *Store) MergeBackground(ctx context.Context, userID string, patch store.Background) (store.Background, error) {
	if patch == nil {
		patch = store.Background{}
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, store.Invalid("background is not JSON-serializable: %v", err)
	}

	query, args, err := psql.Insert("background_info").
		Columns("user_id", "content", "updated_at").
		Values(userID, raw, store.Now()).
		Suffix(`ON CONFLICT (user_id) DO UPDATE
			SET content = background_info.content || EXCLUDED.content, updated_at = EXCLUDED.updated_at
			RETURNING content`).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("merge background: build query: %w", err)
	}

	var merged []byte
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&merged); err != nil {
		return nil, mapError("merge background", err)
	}
	return decodeBackground(merged)
}

func decodeBackground(raw []byte) (store.Background, error) {
	b := store.Background{}
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode background: %w", err)
	}
	return b, nil
}
