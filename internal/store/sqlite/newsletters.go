package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nugget/lifetracker/internal/store"
)

// AppendNewsletter records a delivered newsletter.
func (s *Store) AppendNewsletter(ctx context.Context, e *store.NewsletterLogEntry) error {
	if err := store.PrepareNewsletter(e); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO newsletter_logs (id, user_id, persona, subject, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Persona, e.Subject, e.Content, formatTime(e.CreatedAt),
	)
	if err != nil {
		return writeError("insert newsletter log", err)
	}
	return nil
}

// ListNewsletters returns up to limit entries, newest first.
func (s *Store) ListNewsletters(ctx context.Context, userID string, limit int) ([]store.NewsletterLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, persona, subject, content, created_at FROM newsletter_logs
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, store.Unavailable("query newsletter logs", err)
	}
	defer rows.Close()

	var out []store.NewsletterLogEntry
	for rows.Next() {
		var e store.NewsletterLogEntry
		var created string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Persona, &e.Subject, &e.Content, &created); err != nil {
			return nil, store.Unavailable("scan newsletter log", err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("query newsletter logs", err)
	}
	return out, nil
}

// SetSubscribed records the user's newsletter opt-in.
func (s *Store) SetSubscribed(ctx context.Context, userID string, subscribed bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO newsletter_subscriptions (user_id, subscribed, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET subscribed = excluded.subscribed, updated_at = excluded.updated_at`,
		userID, subscribed, formatTime(store.Now()),
	)
	if err != nil {
		return writeError("set subscription", err)
	}
	return nil
}

// Subscribed reports the user's opt-in, false when never set.
func (s *Store) Subscribed(ctx context.Context, userID string) (bool, error) {
	var on bool
	err := s.db.QueryRowContext(ctx,
		`SELECT subscribed FROM newsletter_subscriptions WHERE user_id = ?`, userID).Scan(&on)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, store.Unavailable("get subscription", err)
	}
	return on, nil
}

// Subscribers lists every opted-in user.
func (s *Store) Subscribers(ctx context.Context) ([]store.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.email, u.name, u.avatar_url, u.created_at, u.updated_at
		 FROM users u JOIN newsletter_subscriptions s ON s.user_id = u.id
		 WHERE s.subscribed = 1 ORDER BY u.email`)
	if err != nil {
		return nil, store.Unavailable("query subscribers", err)
	}
	defer rows.Close()

	var out []store.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, store.Unavailable("scan subscriber", err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("query subscribers", err)
	}
	return out, nil
}
