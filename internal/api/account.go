package api

import "net/http"

// DELETE /v1/account removes the caller and everything they own, and
// ends all of their sessions.
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request, c *caller) {
	if err := s.deps.Store.PurgeUser(r.Context(), c.user.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	ended := s.deps.Sessions.EndUser(c.user.ID)
	s.logger.Info("account purged", "user_id", c.user.ID, "sessions_ended", ended)
	w.WriteHeader(http.StatusNoContent)
}
