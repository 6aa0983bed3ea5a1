// Package mcpserve exposes the life tracker's tools over the Model
// Context Protocol so external assistants can record logs, tasks and
// background info for one configured user. Every call goes through the
// same dispatcher the chat loop uses.
package mcpserve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nugget/lifetracker/internal/buildinfo"
	"github.com/nugget/lifetracker/internal/dispatch"
	"github.com/nugget/lifetracker/internal/tools"
)

// AddLogInput mirrors add_log_entry.
type AddLogInput struct {
	Content  string `json:"content" jsonschema:"The text of the log entry"`
	Category string `json:"category,omitempty" jsonschema:"Optional category such as health, work or mood"`
}

// UpdateBackgroundInput mirrors update_background_info.
type UpdateBackgroundInput struct {
	Merge map[string]any `json:"merge" jsonschema:"Top-level keys to set on the user's background object"`
}

// ManageTasksInput mirrors manage_tasks.
type ManageTasksInput struct {
	Action      string `json:"action" jsonschema:"One of add, update or list"`
	TaskID      string `json:"task_id,omitempty" jsonschema:"Task to update (required for update)"`
	Description string `json:"description,omitempty" jsonschema:"Task description (required for add)"`
	Status      string `json:"status,omitempty" jsonschema:"open, in-progress or completed"`
	Deadline    string `json:"deadline,omitempty" jsonschema:"ISO-8601 date or date-time"`
}

type handler struct {
	dispatcher *dispatch.Dispatcher
	userID     string
	logger     *slog.Logger
}

// New builds an MCP server whose tools act on userID.
func New(d *dispatch.Dispatcher, registry *tools.Registry, userID string, logger *slog.Logger) *mcp.Server {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{dispatcher: d, userID: userID, logger: logger.With("component", "mcp")}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "lifetracker",
		Version: buildinfo.Version,
	}, nil)

	mcp.AddTool(srv, describe(registry, tools.AddLogEntry), h.addLog)
	mcp.AddTool(srv, describe(registry, tools.UpdateBackgroundInfo), h.updateBackground)
	mcp.AddTool(srv, describe(registry, tools.ManageTasks), h.manageTasks)

	return srv
}

// describe reuses the chat tool's description so both surfaces agree.
func describe(registry *tools.Registry, name string) *mcp.Tool {
	t := &mcp.Tool{Name: name}
	if rt := registry.Get(name); rt != nil {
		t.Description = rt.Description
	}
	return t
}

func (h *handler) addLog(ctx context.Context, _ *mcp.CallToolRequest, in AddLogInput) (*mcp.CallToolResult, any, error) {
	args := map[string]any{"content": in.Content}
	setIf(args, "category", in.Category)
	return h.call(ctx, tools.AddLogEntry, args)
}

func (h *handler) updateBackground(ctx context.Context, _ *mcp.CallToolRequest, in UpdateBackgroundInput) (*mcp.CallToolResult, any, error) {
	merge := in.Merge
	if merge == nil {
		merge = map[string]any{}
	}
	return h.call(ctx, tools.UpdateBackgroundInfo, map[string]any{"merge": merge})
}

func (h *handler) manageTasks(ctx context.Context, _ *mcp.CallToolRequest, in ManageTasksInput) (*mcp.CallToolResult, any, error) {
	args := map[string]any{"action": in.Action}
	setIf(args, "task_id", in.TaskID)
	setIf(args, "description", in.Description)
	setIf(args, "status", in.Status)
	setIf(args, "deadline", in.Deadline)
	return h.call(ctx, tools.ManageTasks, args)
}

func setIf(args map[string]any, key, v string) {
	if v != "" {
		args[key] = v
	}
}

// call dispatches one tool call. Validation and not-found outcomes are
// tool errors the client can read; a store outage is too, since MCP has
// no other way to surface it to the model.
func (h *handler) call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, any, error) {
	results, err := h.dispatcher.Dispatch(ctx, h.userID, []dispatch.Call{{ID: "mcp", Name: name, Args: args}})
	if err != nil {
		h.logger.Error("tool call failed", "tool", name, "error", err)
		if errors.Is(err, dispatch.ErrStoreUnavailable) {
			return toolError("storage is unavailable, try again later"), nil, nil
		}
		return toolError("%s failed: %v", name, err), nil, nil
	}
	if len(results) != 1 {
		return toolError("%s produced no result", name), nil, nil
	}

	r := results[0]
	out := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: r.JSON()}},
		IsError: !r.OK,
	}
	h.logger.Debug("tool call", "tool", name, "ok", r.OK, "error_kind", r.ErrorKind)
	return out, nil, nil
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

// Serve runs srv over stdin/stdout until the client disconnects or ctx
// is cancelled.
func Serve(ctx context.Context, srv *mcp.Server) error {
	return srv.Run(ctx, &mcp.StdioTransport{})
}
