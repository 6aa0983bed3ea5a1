// Package newsletter writes and delivers the periodic summary email: it
// gathers a user's background, logs, tasks and earlier issues, has the
// model write the issue in a persona's voice, sends it, and records it.
package newsletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/lifetracker/internal/email"
	"github.com/nugget/lifetracker/internal/llm"
	"github.com/nugget/lifetracker/internal/prompts"
	"github.com/nugget/lifetracker/internal/store"
)

// ErrRender is returned when the model could not produce an issue.
var ErrRender = errors.New("newsletter render failed")

// SenderName is the display name on every issue.
const SenderName = "Life Tracker Newsletter"

// Defaults for Config.
const (
	DefaultHistoryLimit = 3
	DefaultLogLimit     = 50
	DefaultLookback     = 7 * 24 * time.Hour
)

// Store is the persistence a Composer needs.
type Store interface {
	store.Users
	store.Logs
	store.Tasks
	store.Backgrounds
	store.Newsletters
}

// Config tunes the composer.
type Config struct {
	Model string

	// Sender is the bare From address.
	Sender string

	DefaultPersona prompts.Persona

	// HistoryLimit is how many earlier issues are shown to the model.
	HistoryLimit int

	// LogLimit caps log entries considered; only entries newer than
	// Lookback are used.
	LogLimit int
	Lookback time.Duration

	// PublicURL and UnsubscribeSecret enable the unsubscribe link.
	PublicURL         string
	UnsubscribeSecret string
}

func (c *Config) applyDefaults() {
	if c.DefaultPersona == "" {
		c.DefaultPersona = prompts.PersonaMentor
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.LogLimit <= 0 {
		c.LogLimit = DefaultLogLimit
	}
	if c.Lookback <= 0 {
		c.Lookback = DefaultLookback
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")
}

// Issue is a rendered newsletter that has not been sent yet.
type Issue struct {
	To      string          `json:"to"`
	Persona prompts.Persona `json:"persona"`
	Subject string          `json:"subject"`
	Content string          `json:"content"`
}

// Composer renders and sends newsletters.
type Composer struct {
	store     Store
	llm       llm.Client
	transport email.Transport
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewComposer creates a Composer. A nil transport makes every Send fail
// with email.ErrTransport.
func NewComposer(s Store, client llm.Client, transport email.Transport, cfg Config, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &Composer{
		store:     s,
		llm:       client,
		transport: transport,
		cfg:       cfg,
		logger:    logger.With("component", "newsletter"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// DefaultPersona is the persona used when none is requested.
func (c *Composer) DefaultPersona() prompts.Persona {
	return c.cfg.DefaultPersona
}

// Subject is the subject line for an issue sent at t.
func Subject(t time.Time) string {
	return "Your Life Tracker Weekly Summary - " + t.Format("January 02, 2006")
}

// Bundle gathers everything an issue for userID is written from.
func (c *Composer) Bundle(ctx context.Context, userID string) (*prompts.NewsletterBundle, error) {
	u, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	bg, err := c.store.GetBackground(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get background: %w", err)
	}
	logs, err := c.store.RecentLogs(ctx, userID, c.cfg.LogLimit)
	if err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}
	tasks, err := c.store.ListTasks(ctx, userID, store.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	prev, err := c.store.ListNewsletters(ctx, userID, c.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list newsletters: %w", err)
	}

	now := c.now()
	cutoff := now.Add(-c.cfg.Lookback)
	recent := logs[:0:0]
	for _, l := range logs {
		if l.CreatedAt.After(cutoff) {
			recent = append(recent, l)
		}
	}

	return &prompts.NewsletterBundle{
		Name:       u.Name,
		Email:      u.Email,
		Now:        now,
		Background: bg,
		Logs:       recent,
		Tasks:      tasks,
		Previous:   prev,
	}, nil
}

// Render writes an issue for userID without sending it.
func (c *Composer) Render(ctx context.Context, userID string, p prompts.Persona) (*Issue, error) {
	b, err := c.Bundle(ctx, userID)
	if err != nil {
		return nil, err
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: prompts.NewsletterPrompt(p, *b)},
		{Role: llm.RoleUser, Content: "Write this week's newsletter now. Reply with the markdown body only."},
	}
	resp, err := c.llm.Chat(ctx, c.cfg.Model, messages, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	body := strings.TrimSpace(resp.Message.Content)
	if body == "" {
		return nil, fmt.Errorf("%w: empty reply from model", ErrRender)
	}

	c.logger.Debug("issue rendered",
		"user_id", userID,
		"persona", p,
		"logs", len(b.Logs),
		"tasks", len(b.Tasks),
		"previous", len(b.Previous),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)

	return &Issue{To: b.Email, Persona: p, Subject: Subject(b.Now), Content: body}, nil
}

// Send renders and delivers an issue, then records it. Nothing is
// recorded unless the transport accepted the message.
func (c *Composer) Send(ctx context.Context, userID string, p prompts.Persona) (*store.NewsletterLogEntry, error) {
	if c.transport == nil {
		return nil, fmt.Errorf("%w: no transport configured", email.ErrTransport)
	}

	issue, err := c.Render(ctx, userID, p)
	if err != nil {
		return nil, err
	}

	msg := email.Message{
		From:    fmt.Sprintf("%s <%s>", SenderName, c.cfg.Sender),
		To:      issue.To,
		Subject: issue.Subject,
		Body:    issue.Content,
	}
	if link := c.UnsubscribeURL(issue.To); link != "" {
		msg.Unsubscribe = link
		msg.Body += fmt.Sprintf("\n\n---\n\n[Unsubscribe](%s)", link)
	}

	if err := c.transport.Send(ctx, msg); err != nil {
		if !errors.Is(err, email.ErrTransport) {
			err = fmt.Errorf("%w: %w", email.ErrTransport, err)
		}
		return nil, err
	}

	entry := &store.NewsletterLogEntry{
		UserID:  userID,
		Persona: string(p),
		Subject: issue.Subject,
		Content: issue.Content,
	}
	if err := c.store.AppendNewsletter(ctx, entry); err != nil {
		c.logger.Error("newsletter sent but not recorded", "user_id", userID, "error", err)
		return nil, fmt.Errorf("record newsletter: %w", err)
	}

	c.logger.Info("newsletter sent", "user_id", userID, "persona", p, "subject", issue.Subject)
	return entry, nil
}

// SendAll sends an issue to every subscriber. A failure for one user
// does not stop the others; all failures are returned joined.
func (c *Composer) SendAll(ctx context.Context, p prompts.Persona) (int, error) {
	subs, err := c.store.Subscribers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscribers: %w", err)
	}

	var errs []error
	sent := 0
	for _, u := range subs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := c.Send(ctx, u.ID, p); err != nil {
			c.logger.Warn("newsletter failed", "user_id", u.ID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", u.Email, err))
			continue
		}
		sent++
	}

	c.logger.Info("newsletter run finished", "subscribers", len(subs), "sent", sent, "failed", len(errs))
	return sent, errors.Join(errs...)
}
