package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/nugget/lifetracker/internal/store"
)

// AppendNewsletter records a delivered newsletter.
func (s *Store) AppendNewsletter(ctx context.Context, e *store.NewsletterLogEntry) error {
	if err := store.PrepareNewsletter(e); err != nil {
		return err
	}
	_, err := exec(ctx, s.pool, "insert newsletter log", psql.Insert("newsletter_logs").
		Columns("id", "user_id", "persona", "subject", "content", "created_at").
		Values(e.ID, e.UserID, e.Persona, e.Subject, e.Content, e.CreatedAt))
	return err
}

// ListNewsletters returns up to limit entries, newest first.
func (s *Store) ListNewsletters(ctx context.Context, userID string, limit int) ([]store.NewsletterLogEntry, error) {
	query, args, err := psql.Select("id", "user_id", "persona", "subject", "content", "created_at").
		From("newsletter_logs").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(max(limit, 0))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("query newsletter logs: build query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("query newsletter logs", err)
	}
	defer rows.Close()

	var out []store.NewsletterLogEntry
	for rows.Next() {
		var e store.NewsletterLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Persona, &e.Subject, &e.Content, &e.CreatedAt); err != nil {
			return nil, mapError("scan newsletter log", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("query newsletter logs", err)
	}
	return out, nil
}

// SetSubscribed records the user's newsletter opt-in.
func (s *Store) SetSubscribed(ctx context.Context, userID string, subscribed bool) error {
	_, err := exec(ctx, s.pool, "set subscription", psql.Insert("newsletter_subscriptions").
		Columns("user_id", "subscribed", "updated_at").
		Values(userID, subscribed, store.Now()).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET subscribed = EXCLUDED.subscribed, updated_at = EXCLUDED.updated_at"))
	return err
}

// Subscribed reports the user's opt-in, false when never set.
func (s *Store) Subscribed(ctx context.Context, userID string) (bool, error) {
	query, args, err := psql.Select("subscribed").From("newsletter_subscriptions").Where(sq.Eq{"user_id": userID}).ToSql()
	if err != nil {
		return false, fmt.Errorf("get subscription: build query: %w", err)
	}
	var on bool
	err = s.pool.QueryRow(ctx, query, args...).Scan(&on)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapError("get subscription", err)
	}
	return on, nil
}

// Subscribers lists every opted-in user.
func (s *Store) Subscribers(ctx context.Context) ([]store.User, error) {
	query, args, err := psql.Select("u.id", "u.email", "u.name", "u.avatar_url", "u.created_at", "u.updated_at").
		From("users u").
		Join("newsletter_subscriptions ns ON ns.user_id = u.id").
		Where(sq.Eq{"ns.subscribed": true}).
		OrderBy("u.email").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("query subscribers: build query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("query subscribers", err)
	}
	defer rows.Close()

	var out []store.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapError("scan subscriber", err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("query subscribers", err)
	}
	return out, nil
}
