package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/nugget/lifetracker/internal/store"
)

var userColumns = []string{"id", "email", "name", "avatar_url", "created_at", "updated_at"}

// UpsertUser creates the user on first sight of the email and refreshes
// name and avatar afterwards.
func (s *Store) UpsertUser(ctx context.Context, u store.User) (*store.User, error) {
	email, err := store.NormalizeEmail(u.Email)
	if err != nil {
		return nil, err
	}
	now := store.Now()

	query, args, err := psql.Insert("users").
		Columns(userColumns...).
		Values(store.NewID(), email, u.Name, u.AvatarURL, now, now).
		Suffix(`ON CONFLICT (email) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
			avatar_url = COALESCE(NULLIF(EXCLUDED.avatar_url, ''), users.avatar_url),
			updated_at = EXCLUDED.updated_at
			RETURNING id, email, name, avatar_url, created_at, updated_at`).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("upsert user: build query: %w", err)
	}

	out, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapError("upsert user", err)
	}
	return out, nil
}

// GetUser returns the user with id.
func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	return s.getUser(ctx, "get user", sq.Eq{"id": id})
}

// GetUserByEmail returns the user with the given address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	email, err := store.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	return s.getUser(ctx, "get user by email", sq.Eq{"email": email})
}

func (s *Store) getUser(ctx context.Context, op string, where sq.Eq) (*store.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}
	u, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapError(op, err)
	}
	return u, nil
}

// PurgeUser deletes the user and all of their rows in one transaction.
func (s *Store) PurgeUser(ctx context.Context, userID string) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, table := range []string{"text_logs", "tasks", "background_info", "newsletter_logs", "newsletter_subscriptions"} {
			if _, err := exec(ctx, tx, "purge "+table, psql.Delete(table).Where(sq.Eq{"user_id": userID})); err != nil {
				return err
			}
		}
		tag, err := exec(ctx, tx, "purge users", psql.Delete("users").Where(sq.Eq{"id": userID}))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("purge user %s: %w", userID, store.ErrNotFound)
		}
		return nil
	})
	if err == nil {
		s.logger.Info("user purged", "user_id", userID)
	}
	return err
}

func scanUser(row pgx.Row) (*store.User, error) {
	var u store.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}
