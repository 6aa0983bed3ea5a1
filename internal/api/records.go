package api

import (
	"net/http"
	"time"

	"github.com/nugget/lifetracker/internal/dispatch"
	"github.com/nugget/lifetracker/internal/store"
)

const (
	defaultLogLimit = 20
	maxLogLimit     = 200
)

// GET /v1/logs?limit=20
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request, c *caller) {
	limit := parseIntParam(r, "limit", defaultLogLimit, maxLogLimit)
	logs, err := s.deps.Store.RecentLogs(r.Context(), c.user.ID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"logs": nonNil(logs)})
}

// AddLogRequest creates a log entry.
type AddLogRequest struct {
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
}

func (s *Server) handleAddLog(w http.ResponseWriter, r *http.Request, c *caller) {
	var req AddLogRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	e := &store.LogEntry{UserID: c.user.ID, Content: req.Content, Category: req.Category}
	if err := s.deps.Store.AddLog(r.Context(), e); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, e)
}

// GET /v1/tasks?all=true includes completed tasks.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request, c *caller) {
	f := store.TaskFilter{IncludeCompleted: r.URL.Query().Get("all") == "true"}
	tasks, err := s.deps.Store.ListTasks(r.Context(), c.user.ID, f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"tasks": nonNil(tasks)})
}

// TaskRequest creates or updates a task. Deadline accepts the same
// ISO-8601 forms as the manage_tasks tool.
type TaskRequest struct {
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Deadline    *string `json:"deadline,omitempty"`
}

func (req TaskRequest) deadline() (*time.Time, error) {
	if req.Deadline == nil || *req.Deadline == "" {
		return nil, nil
	}
	t, err := dispatch.ParseDeadline(*req.Deadline)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request, c *caller) {
	var req TaskRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	deadline, err := req.deadline()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	t := &store.Task{UserID: c.user.ID, Deadline: deadline}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Status != nil {
		t.Status = store.TaskStatus(*req.Status)
	}
	if err := s.deps.Store.CreateTask(r.Context(), t); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, t)
}

// PATCH /v1/tasks/{id}
func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request, c *caller) {
	var req TaskRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	deadline, err := req.deadline()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	p := store.TaskPatch{Description: req.Description, Deadline: deadline}
	if req.Status != nil {
		st := store.TaskStatus(*req.Status)
		p.Status = &st
	}
	if err := p.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}

	t, err := s.deps.Store.UpdateTask(r.Context(), c.user.ID, r.PathValue("id"), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, t)
}

func (s *Server) handleGetBackground(w http.ResponseWriter, r *http.Request, c *caller) {
	bg, err := s.deps.Store.GetBackground(r.Context(), c.user.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"background": bg})
}

// PUT /v1/background replaces the whole object.
func (s *Server) handleReplaceBackground(w http.ResponseWriter, r *http.Request, c *caller) {
	var bg store.Background
	if err := decode(r, &bg); err != nil {
		s.fail(w, r, err)
		return
	}
	if bg == nil {
		bg = store.Background{}
	}
	if err := s.deps.Store.ReplaceBackground(r.Context(), c.user.ID, bg); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"background": bg})
}

// PATCH /v1/background merges top-level keys, like update_background_info.
func (s *Server) handleMergeBackground(w http.ResponseWriter, r *http.Request, c *caller) {
	var patch store.Background
	if err := decode(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	merged, err := s.deps.Store.MergeBackground(r.Context(), c.user.ID, patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"background": merged})
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
