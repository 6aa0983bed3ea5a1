package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nugget/lifetracker/internal/store"
)

const userColumns = `id, email, name, avatar_url, created_at, updated_at`

// UpsertUser creates the user on first sight of the email and refreshes
// name and avatar afterwards.
func (s *Store) UpsertUser(ctx context.Context, u store.User) (*store.User, error) {
	email, err := store.NormalizeEmail(u.Email)
	if err != nil {
		return nil, err
	}
	now := formatTime(store.Now())

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (email) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE users.name END,
			avatar_url = CASE WHEN excluded.avatar_url != '' THEN excluded.avatar_url ELSE users.avatar_url END,
			updated_at = excluded.updated_at
		 RETURNING `+userColumns,
		store.NewID(), email, u.Name, u.AvatarURL, now, now,
	)
	out, err := scanUser(row)
	if err != nil {
		return nil, store.Unavailable("upsert user", err)
	}
	return out, nil
}

// GetUser returns the user with id.
func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, rowError("get user", err)
	}
	return u, nil
}

// GetUserByEmail returns the user with the given address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	email, err := store.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err != nil {
		return nil, rowError("get user by email", err)
	}
	return u, nil
}

// PurgeUser deletes the user and all of their rows in one transaction.
func (s *Store) PurgeUser(ctx context.Context, userID string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"text_logs", "tasks", "background_info", "newsletter_logs", "newsletter_subscriptions"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ?`, userID); err != nil {
				return store.Unavailable("purge "+table, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
		if err != nil {
			return store.Unavailable("purge users", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("purge user %s: %w", userID, store.ErrNotFound)
		}
		return nil
	})
	if err == nil {
		s.logger.Info("user purged", "user_id", userID)
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*store.User, error) {
	var u store.User
	var created, updated string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.AvatarURL, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &u, nil
}
