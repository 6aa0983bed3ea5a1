package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/lifetracker/internal/agent"
	"github.com/nugget/lifetracker/internal/session"
)

// ChatRequest is one user message.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the reply to one chat turn.
type ChatResponse struct {
	*agent.Response
	SessionID string `json:"session_id"`
}

// POST /v1/chat {"message": "I ran 5k this morning"}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, c *caller) {
	var req ChatRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.errorResponse(w, http.StatusBadRequest, "validation_error", "message is required")
		return
	}

	resp, err := s.deps.Loop.Run(r.Context(), c.session, req.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, ChatResponse{Response: resp, SessionID: c.session.ID})
}

// HistoryResponse is the session transcript.
type HistoryResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []session.Turn `json:"turns"`
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request, c *caller) {
	s.respond(w, http.StatusOK, HistoryResponse{SessionID: c.session.ID, Turns: c.session.History()})
}

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsError is sent in place of a ChatResponse when a turn fails.
type wsError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleChatWS runs chat turns over a WebSocket. Each text frame is a
// ChatRequest; each reply is a ChatResponse or a wsError. Turns run one
// at a time in arrival order.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request, c *caller) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	log := s.logger.With("session", c.session.ID, "user_id", c.user.ID)
	log.Debug("websocket connected")

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
		return conn.WriteJSON(v)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket closed", "error", err)
			}
			return
		}
		// A turn can outlast the pong window.
		conn.SetReadDeadline(time.Time{}) //nolint:errcheck

		var req ChatRequest
		if err := json.Unmarshal(data, &req); err != nil || strings.TrimSpace(req.Message) == "" {
			if err := write(wsError{Error: "validation_error", Message: "expected {\"message\": \"...\"}"}); err != nil {
				return
			}
			continue
		}

		resp, err := s.deps.Loop.Run(r.Context(), c.session, req.Message)
		var out any = ChatResponse{Response: resp, SessionID: c.session.ID}
		if err != nil {
			kind := "model_unavailable"
			if agent.IsStoreFailure(err) {
				kind = "store_unavailable"
			}
			log.Error("chat turn failed", "error", err)
			out = wsError{Error: kind, Message: agent.FailureReply}
		}
		if err := write(out); err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck
	}
}
