// Package dispatch applies the tool calls emitted by the model for one
// chat turn to the store.
//
// Calls run sequentially in the order received. A call that fails
// validation or targets a missing task produces a failed Result and the
// remaining calls still run. A store failure aborts the rest of the turn
// and Dispatch returns an error wrapping ErrStoreUnavailable.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/lifetracker/internal/store"
	"github.com/nugget/lifetracker/internal/tools"
)

// ErrStoreUnavailable aborts a turn when the store cannot be reached.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrorKind classifies a failed call for the model.
type ErrorKind string

// Error kinds reported back to the model.
const (
	KindValidation       ErrorKind = "validation_error"
	KindNotFound         ErrorKind = "not_found"
	KindStoreUnavailable ErrorKind = "store_unavailable"
)

// Call is one tool invocation.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Result is the outcome of one Call.
type Result struct {
	CallID    string    `json:"-"`
	Tool      string    `json:"tool"`
	OK        bool      `json:"ok"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// JSON renders the result as the tool message content sent to the model.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"tool":%q,"ok":false,"error_kind":"validation_error","reason":"result not serializable"}`, r.Tool)
	}
	return string(b)
}

// Store is the subset of store.Store the dispatcher mutates.
type Store interface {
	store.Logs
	store.Tasks
	store.Backgrounds
}

// Dispatcher validates and executes tool calls.
type Dispatcher struct {
	store    Store
	registry *tools.Registry
	logger   *slog.Logger
}

// New creates a Dispatcher.
func New(s Store, registry *tools.Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:    s,
		registry: registry,
		logger:   logger.With("component", "dispatch"),
	}
}

// Dispatch executes calls for userID in order and returns one Result per
// executed call. On a store failure the failing call's Result is the last
// one returned and the error wraps ErrStoreUnavailable.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, calls []Call) ([]Result, error) {
	results := make([]Result, 0, len(calls))
	for _, c := range calls {
		res, err := d.dispatchOne(ctx, userID, c)
		results = append(results, res)

		d.logger.Info("tool call",
			"user_id", userID,
			"tool", c.Name,
			"ok", res.OK,
			"error_kind", res.ErrorKind,
		)
		if err != nil {
			d.logger.Error("store failure, aborting turn", "tool", c.Name, "error", err)
			return results, fmt.Errorf("%s: %w: %w", c.Name, ErrStoreUnavailable, err)
		}
	}
	return results, nil
}

// dispatchOne returns a non-nil error only for failures that must abort
// the turn.
func (d *Dispatcher) dispatchOne(ctx context.Context, userID string, c Call) (Result, error) {
	res := Result{CallID: c.ID, Tool: c.Name}

	if err := d.registry.Validate(c.Name, c.Args); err != nil {
		return fail(res, KindValidation, err.Error()), nil
	}

	var data any
	var err error
	switch c.Name {
	case tools.AddLogEntry:
		data, err = d.addLogEntry(ctx, userID, c.Args)
	case tools.UpdateBackgroundInfo:
		data, err = d.updateBackground(ctx, userID, c.Args)
	case tools.ManageTasks:
		data, err = d.manageTasks(ctx, userID, c.Args)
	default:
		// Registered but not wired here.
		return fail(res, KindValidation, (&tools.ErrToolUnavailable{ToolName: c.Name}).Error()), nil
	}

	switch {
	case err == nil:
		res.OK = true
		res.Data = data
		return res, nil
	case errors.Is(err, store.ErrValidation):
		return fail(res, KindValidation, err.Error()), nil
	case errors.Is(err, store.ErrNotFound):
		return fail(res, KindNotFound, err.Error()), nil
	default:
		return fail(res, KindStoreUnavailable, "the store could not be reached"), err
	}
}

func fail(r Result, kind ErrorKind, reason string) Result {
	r.OK = false
	r.ErrorKind = kind
	r.Reason = reason
	return r
}

func (d *Dispatcher) addLogEntry(ctx context.Context, userID string, args map[string]any) (any, error) {
	e := &store.LogEntry{
		UserID:   userID,
		Content:  stringArg(args, "content"),
		Category: stringArg(args, "category"),
	}
	if err := d.store.AddLog(ctx, e); err != nil {
		return nil, err
	}
	return map[string]any{"id": e.ID, "created_at": e.CreatedAt.Format(time.RFC3339)}, nil
}

func (d *Dispatcher) updateBackground(ctx context.Context, userID string, args map[string]any) (any, error) {
	patch, _ := args["merge"].(map[string]any)
	merged, err := d.store.MergeBackground(ctx, userID, store.Background(patch))
	if err != nil {
		return nil, err
	}
	return map[string]any{"background": merged}, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
