package store

import (
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Valid task statuses.
const (
	StatusOpen       TaskStatus = "open"
	StatusInProgress TaskStatus = "in-progress"
	StatusCompleted  TaskStatus = "completed"
)

// Statuses lists every accepted status in display order.
var Statuses = []TaskStatus{StatusOpen, StatusInProgress, StatusCompleted}

// Valid reports whether s is one of the accepted statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Task is a to-do item.
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskPatch holds the fields to change on a task. Nil fields are left
// untouched.
type TaskPatch struct {
	Description *string
	Status      *TaskStatus
	Deadline    *time.Time
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Description == nil && p.Status == nil && p.Deadline == nil
}

// Validate checks the fields the patch sets.
func (p TaskPatch) Validate() error {
	if p.Empty() {
		return Invalid("no fields to update")
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return Invalid("description must not be empty")
	}
	if p.Status != nil && !p.Status.Valid() {
		return Invalid("unknown status %q", *p.Status)
	}
	return nil
}

// Apply mutates t with the patch. Moving into completed stamps
// CompletedAt; moving out of completed clears it.
func (p TaskPatch) Apply(t *Task, now time.Time) {
	if p.Description != nil {
		t.Description = strings.TrimSpace(*p.Description)
	}
	if p.Deadline != nil {
		d := p.Deadline.UTC()
		t.Deadline = &d
	}
	if p.Status != nil {
		was := t.Status
		t.Status = *p.Status
		switch {
		case t.Status == StatusCompleted && was != StatusCompleted:
			at := now
			t.CompletedAt = &at
		case t.Status != StatusCompleted:
			t.CompletedAt = nil
		}
	}
}

// PrepareTask validates a new task and fills in its defaults.
func PrepareTask(t *Task) error {
	t.Description = strings.TrimSpace(t.Description)
	if t.UserID == "" {
		return Invalid("user id is required")
	}
	if t.Description == "" {
		return Invalid("description is required")
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}
	if !t.Status.Valid() {
		return Invalid("unknown status %q", t.Status)
	}
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = Now()
	}
	if t.Deadline != nil {
		d := t.Deadline.UTC()
		t.Deadline = &d
	}
	if t.Status == StatusCompleted && t.CompletedAt == nil {
		at := t.CreatedAt
		t.CompletedAt = &at
	}
	return nil
}

// PrepareLog validates a new log entry and fills in its defaults.
func PrepareLog(e *LogEntry) error {
	if e.UserID == "" {
		return Invalid("user id is required")
	}
	if strings.TrimSpace(e.Content) == "" {
		return Invalid("content is required")
	}
	e.Category = strings.TrimSpace(e.Category)
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = Now()
	}
	return nil
}
