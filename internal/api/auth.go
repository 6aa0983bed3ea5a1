package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/lifetracker/internal/auth"
	"github.com/nugget/lifetracker/internal/session"
	"github.com/nugget/lifetracker/internal/store"
)

// Identity headers set by the trusted authenticating proxy in front of
// the API.
const (
	HeaderUserEmail  = "X-User-Email"
	HeaderUserName   = "X-User-Name"
	HeaderUserAvatar = "X-User-Avatar"
)

// caller is the authenticated user and their conversation.
type caller struct {
	user    *store.User
	session *session.Session
}

// authed resolves the bearer token to a live user and session. The
// token may also arrive as ?token= for browser WebSocket clients.
func (s *Server) authed(next func(http.ResponseWriter, *http.Request, *caller)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			token = r.URL.Query().Get("token")
		}

		claims, err := s.deps.Auth.Verify(strings.TrimSpace(token))
		if err != nil {
			msg := "missing or invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "token expired, log in again"
			}
			s.errorResponse(w, http.StatusUnauthorized, "unauthorized", msg)
			return
		}

		u, err := s.deps.Store.GetUser(r.Context(), claims.UserID)
		if errors.Is(err, store.ErrNotFound) {
			s.errorResponse(w, http.StatusUnauthorized, "unauthorized", "account no longer exists")
			return
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}

		sess, err := s.deps.Sessions.Get(claims.SessionID, claims.UserID)
		if err != nil {
			s.errorResponse(w, http.StatusUnauthorized, "unauthorized", "session ended, log in again")
			return
		}

		next(w, r, &caller{user: u, session: sess})
	})
}

// LoginResponse is returned by POST /v1/auth/login.
type LoginResponse struct {
	Token     string      `json:"token"`
	SessionID string      `json:"session_id"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *store.User `json:"user"`
}

// handleLogin gets or creates the user named by the proxy identity
// headers and starts a new conversation session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	addr := r.Header.Get(HeaderUserEmail)
	if addr == "" {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized", HeaderUserEmail+" header is required")
		return
	}

	u, err := s.deps.Store.UpsertUser(r.Context(), store.User{
		Email:     addr,
		Name:      r.Header.Get(HeaderUserName),
		AvatarURL: r.Header.Get(HeaderUserAvatar),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	sess := s.deps.Sessions.Create(u.ID)
	token, err := s.deps.Auth.Issue(u.ID, sess.ID)
	if err != nil {
		s.deps.Sessions.End(sess.ID)
		s.fail(w, r, err)
		return
	}
	claims, err := s.deps.Auth.Verify(token)
	if err != nil {
		s.deps.Sessions.End(sess.ID)
		s.fail(w, r, err)
		return
	}

	s.logger.Info("user logged in", "user_id", u.ID, "session", sess.ID)
	s.respond(w, http.StatusOK, LoginResponse{
		Token:     token,
		SessionID: sess.ID,
		ExpiresAt: claims.ExpiresAt,
		User:      u,
	})
}
