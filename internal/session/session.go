// Package session holds per-connection conversation history and builds
// the context bundle sent to the model on each turn.
package session

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/nugget/lifetracker/internal/store"
)

// ErrNotFound is returned for an unknown or ended session.
var ErrNotFound = errors.New("session not found")

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry of conversation history.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session is one user's conversation. History only grows.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	mu    sync.Mutex
	turns []Turn

	// turn serializes whole chat turns.
	turn sync.Mutex
}

// New creates an empty session for userID.
func New(userID string) *Session {
	return &Session{
		ID:        store.NewID(),
		UserID:    userID,
		CreatedAt: store.Now(),
	}
}

// AppendUser records the user's message.
func (s *Session) AppendUser(content string) {
	s.append(RoleUser, content)
}

// AppendAssistant records the assistant's reply.
func (s *Session) AppendAssistant(content string) {
	s.append(RoleAssistant, content)
}

func (s *Session) append(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Role: role, Content: content, At: store.Now()})
}

// LockTurn blocks until no other turn is running on s. Callers must
// call UnlockTurn when the turn ends.
func (s *Session) LockTurn() { s.turn.Lock() }

// UnlockTurn ends the turn started by LockTurn.
func (s *Session) UnlockTurn() { s.turn.Unlock() }

// History returns a copy of the turns so far.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.turns)
}

// Len returns the number of turns.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Manager tracks live sessions by ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create starts a session for userID.
func (m *Manager) Create(userID string) *Session {
	s := New(userID)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the session with id, checking that it belongs to userID.
func (m *Manager) Get(id, userID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	return s, nil
}

// End discards one session.
func (m *Manager) End(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// EndUser discards every session of userID and returns how many ended.
func (m *Manager) EndUser(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}
