// Package api implements the life tracker's HTTP API: chat turns over
// plain HTTP and WebSocket, direct access to logs, tasks and background
// info, newsletter controls, and account purge.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nugget/lifetracker/internal/agent"
	"github.com/nugget/lifetracker/internal/auth"
	"github.com/nugget/lifetracker/internal/buildinfo"
	"github.com/nugget/lifetracker/internal/email"
	"github.com/nugget/lifetracker/internal/newsletter"
	"github.com/nugget/lifetracker/internal/session"
	"github.com/nugget/lifetracker/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Deps are the components the server routes requests to. Newsletter may
// be nil when sending is not configured.
type Deps struct {
	Store      store.Store
	Loop       *agent.Loop
	Sessions   *session.Manager
	Auth       *auth.Manager
	Newsletter *newsletter.Composer
}

// Server is the HTTP API server.
type Server struct {
	addr   string
	deps   Deps
	logger *slog.Logger
	server *http.Server
}

// NewServer creates a new API server listening on addr.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, deps: deps, logger: logger.With("component", "api")}
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("POST /v1/auth/login", s.handleLogin)

	mux.Handle("POST /v1/chat", s.authed(s.handleChat))
	mux.Handle("GET /v1/chat/ws", s.authed(s.handleChatWS))
	mux.Handle("GET /v1/chat/history", s.authed(s.handleChatHistory))

	mux.Handle("GET /v1/logs", s.authed(s.handleListLogs))
	mux.Handle("POST /v1/logs", s.authed(s.handleAddLog))
	mux.Handle("GET /v1/tasks", s.authed(s.handleListTasks))
	mux.Handle("POST /v1/tasks", s.authed(s.handleAddTask))
	mux.Handle("PATCH /v1/tasks/{id}", s.authed(s.handleUpdateTask))
	mux.Handle("GET /v1/background", s.authed(s.handleGetBackground))
	mux.Handle("PUT /v1/background", s.authed(s.handleReplaceBackground))
	mux.Handle("PATCH /v1/background", s.authed(s.handleMergeBackground))

	mux.Handle("POST /v1/newsletter/send", s.authed(s.handleNewsletterSend))
	mux.Handle("GET /v1/newsletter/logs", s.authed(s.handleNewsletterLogs))
	mux.Handle("GET /v1/newsletter/subscription", s.authed(s.handleSubscription))
	mux.Handle("POST /v1/newsletter/subscription", s.authed(s.handleSubscribe))
	mux.Handle("DELETE /v1/newsletter/subscription", s.authed(s.handleUnsubscribe))
	mux.HandleFunc("GET /v1/newsletter/unsubscribe/{email}/{token}", s.handleUnsubscribeLink)
	mux.HandleFunc("POST /v1/newsletter/unsubscribe/{email}/{token}", s.handleUnsubscribeLink)

	mux.Handle("DELETE /v1/account", s.authed(s.handlePurge))

	return s.withLogging(mux)
}

// Start serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute, // model round-trips can be slow
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.logger.Info("starting API server", "address", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes through to the underlying writer for WebSocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

// respond writes v as JSON with the given status.
func (s *Server) respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, v, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, kind, message string) {
	s.respond(w, code, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    kind,
			"code":    code,
		},
	})
}

// fail maps err to an HTTP status. Store and upstream failures are
// logged in full and reported generically.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		s.errorResponse(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, store.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case agent.IsStoreFailure(err):
		s.logger.Error("store unavailable", "path", r.URL.Path, "error", err)
		s.errorResponse(w, http.StatusServiceUnavailable, "store_unavailable", agent.FailureReply)
	case errors.Is(err, email.ErrTransport):
		s.logger.Error("newsletter delivery failed", "path", r.URL.Path, "error", err)
		s.errorResponse(w, http.StatusBadGateway, "transport_error", "the newsletter could not be delivered")
	case errors.Is(err, agent.ErrModelUnavailable), errors.Is(err, newsletter.ErrRender):
		s.logger.Error("model unavailable", "path", r.URL.Path, "error", err)
		s.errorResponse(w, http.StatusBadGateway, "model_unavailable", agent.FailureReply)
	case errors.Is(err, context.Canceled):
		s.logger.Debug("request cancelled", "path", r.URL.Path)
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// decode reads a JSON body into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return store.Invalid("invalid request body: %v", err)
	}
	return nil
}

func parseIntParam(r *http.Request, name string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return min(n, maxVal)
}
