package api

import (
	"errors"
	"net/http"

	"github.com/nugget/lifetracker/internal/prompts"
	"github.com/nugget/lifetracker/internal/store"
)

const (
	defaultNewsletterLimit = 10
	maxNewsletterLimit     = 100
)

// SendNewsletterRequest selects the persona; empty uses the default.
type SendNewsletterRequest struct {
	Persona string `json:"persona,omitempty"`
}

func (s *Server) handleNewsletterSend(w http.ResponseWriter, r *http.Request, c *caller) {
	if s.deps.Newsletter == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "not_configured", "newsletter sending is not configured")
		return
	}

	var req SendNewsletterRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	persona := s.deps.Newsletter.DefaultPersona()
	if req.Persona != "" {
		p, err := prompts.ParsePersona(req.Persona)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		persona = p
	}

	entry, err := s.deps.Newsletter.Send(r.Context(), c.user.ID, persona)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, entry)
}

func (s *Server) handleNewsletterLogs(w http.ResponseWriter, r *http.Request, c *caller) {
	limit := parseIntParam(r, "limit", defaultNewsletterLimit, maxNewsletterLimit)
	logs, err := s.deps.Store.ListNewsletters(r.Context(), c.user.ID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"newsletters": nonNil(logs)})
}

// SubscriptionResponse reports the caller's subscription state.
type SubscriptionResponse struct {
	Subscribed bool `json:"subscribed"`
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request, c *caller) {
	on, err := s.deps.Store.Subscribed(r.Context(), c.user.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, SubscriptionResponse{Subscribed: on})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request, c *caller) {
	s.setSubscribed(w, r, c.user.ID, true)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request, c *caller) {
	s.setSubscribed(w, r, c.user.ID, false)
}

func (s *Server) setSubscribed(w http.ResponseWriter, r *http.Request, userID string, on bool) {
	if err := s.deps.Store.SetSubscribed(r.Context(), userID, on); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("subscription changed", "user_id", userID, "subscribed", on)
	s.respond(w, http.StatusOK, SubscriptionResponse{Subscribed: on})
}

// handleUnsubscribeLink serves the link embedded in every newsletter. It
// needs no session; the token proves the address.
func (s *Server) handleUnsubscribeLink(w http.ResponseWriter, r *http.Request) {
	addr, token := r.PathValue("email"), r.PathValue("token")
	if s.deps.Newsletter == nil || !s.deps.Newsletter.VerifyUnsubscribe(addr, token) {
		s.errorResponse(w, http.StatusForbidden, "forbidden", "invalid unsubscribe link")
		return
	}

	u, err := s.deps.Store.GetUserByEmail(r.Context(), addr)
	if errors.Is(err, store.ErrNotFound) {
		// Already purged; nothing left to send to.
		s.respond(w, http.StatusOK, SubscriptionResponse{Subscribed: false})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setSubscribed(w, r, u.ID, false)
}
