// Package store defines the life tracker's persistent entities and the
// storage interface shared by the SQLite and PostgreSQL backends.
//
// Every entity except User belongs to exactly one user. Backends enforce
// that with foreign keys, and PurgeUser removes a user together with all
// of their rows in a single transaction.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is an account, keyed by email address.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LogEntry is a free-text note recorded by the user or by the model on
// the user's behalf.
type LogEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewsletterLogEntry records a newsletter that was actually delivered.
type NewsletterLogEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Persona   string    `json:"persona"`
	Subject   string    `json:"subject"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Background is the free-form JSON object describing the user.
type Background map[string]any

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	IncludeCompleted bool
}

// Users manages accounts.
type Users interface {
	// UpsertUser returns the user with u.Email, creating it on first
	// sight. An existing user only has its name and avatar refreshed.
	UpsertUser(ctx context.Context, u User) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// PurgeUser deletes the user and every row belonging to them.
	PurgeUser(ctx context.Context, userID string) error
}

// Logs manages text log entries.
type Logs interface {
	AddLog(ctx context.Context, e *LogEntry) error
	// RecentLogs returns up to limit entries, newest first.
	RecentLogs(ctx context.Context, userID string, limit int) ([]LogEntry, error)
}

// Tasks manages the user's tasks.
type Tasks interface {
	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, userID, id string) (*Task, error)
	// UpdateTask applies p to the task, returning ErrNotFound when the
	// task does not exist or belongs to another user.
	UpdateTask(ctx context.Context, userID, id string, p TaskPatch) (*Task, error)
	// ListTasks orders by deadline ascending with undated tasks last,
	// then by creation order.
	ListTasks(ctx context.Context, userID string, f TaskFilter) ([]Task, error)
}

// Backgrounds manages the per-user background object.
type Backgrounds interface {
	// GetBackground returns an empty object when none is stored.
	GetBackground(ctx context.Context, userID string) (Background, error)
	ReplaceBackground(ctx context.Context, userID string, b Background) error
	// MergeBackground shallow-merges patch into the stored object
	// atomically and returns the result.
	MergeBackground(ctx context.Context, userID string, patch Background) (Background, error)
}

// Newsletters manages the newsletter send log and subscriptions.
type Newsletters interface {
	AppendNewsletter(ctx context.Context, e *NewsletterLogEntry) error
	// ListNewsletters returns up to limit entries, newest first.
	ListNewsletters(ctx context.Context, userID string, limit int) ([]NewsletterLogEntry, error)

	SetSubscribed(ctx context.Context, userID string, subscribed bool) error
	Subscribed(ctx context.Context, userID string) (bool, error)
	Subscribers(ctx context.Context) ([]User, error)
}

// Store is the full persistence surface.
type Store interface {
	Users
	Logs
	Tasks
	Backgrounds
	Newsletters

	Close() error
}

// NewID returns a time-ordered identifier for a new row.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Now is the clock used to stamp rows. Tests may replace it.
var Now = func() time.Time { return time.Now().UTC() }
