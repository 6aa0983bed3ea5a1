// Package agent implements one chat turn: record the user's message,
// build a fresh context, let the model call tools, and record the reply.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/lifetracker/internal/dispatch"
	"github.com/nugget/lifetracker/internal/llm"
	"github.com/nugget/lifetracker/internal/prompts"
	"github.com/nugget/lifetracker/internal/session"
	"github.com/nugget/lifetracker/internal/store"
	"github.com/nugget/lifetracker/internal/tools"
)

// DefaultMaxIterations bounds model round-trips within one turn.
const DefaultMaxIterations = 5

// FailureReply is recorded as the assistant turn when a turn aborts.
const FailureReply = "Sorry, something went wrong on my side and I couldn't finish that. Nothing you said was lost; please try again in a moment."

// ErrModelUnavailable wraps failures talking to the LLM provider.
var ErrModelUnavailable = errors.New("model unavailable")

// Response is the outcome of one turn.
type Response struct {
	Content      string            `json:"response"`
	ToolResults  []dispatch.Result `json:"tool_results,omitempty"`
	Model        string            `json:"model"`
	Iterations   int               `json:"iterations"`
	InputTokens  int               `json:"input_tokens"`
	OutputTokens int               `json:"output_tokens"`
}

// Loop runs chat turns.
type Loop struct {
	llm           llm.Client
	model         string
	registry      *tools.Registry
	dispatcher    *dispatch.Dispatcher
	source        session.Source
	maxIterations int
	logger        *slog.Logger
	now           func() time.Time
}

// Config holds the loop settings.
type Config struct {
	Model         string
	MaxIterations int
}

// NewLoop creates a Loop.
func NewLoop(client llm.Client, registry *tools.Registry, dispatcher *dispatch.Dispatcher, source session.Source, cfg Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	return &Loop{
		llm:           client,
		model:         cfg.Model,
		registry:      registry,
		dispatcher:    dispatcher,
		source:        source,
		maxIterations: cfg.MaxIterations,
		logger:        logger.With("component", "agent"),
		now:           func() time.Time { return time.Now() },
	}
}

// Run executes one turn for sess. The user message is always recorded,
// and exactly one assistant turn is recorded after it: the model's reply,
// or FailureReply when the turn aborts.
func (l *Loop) Run(ctx context.Context, sess *session.Session, message string) (*Response, error) {
	sess.LockTurn()
	defer sess.UnlockTurn()

	sess.AppendUser(message)

	resp, err := l.run(ctx, sess)
	if err != nil {
		sess.AppendAssistant(FailureReply)
		l.logger.Error("turn failed", "session", sess.ID, "user_id", sess.UserID, "error", err)
		return nil, err
	}
	sess.AppendAssistant(resp.Content)

	l.logger.Info("turn completed",
		"session", sess.ID,
		"user_id", sess.UserID,
		"iterations", resp.Iterations,
		"tool_calls", len(resp.ToolResults),
		"history", sess.Len(),
	)
	return resp, nil
}

func (l *Loop) run(ctx context.Context, sess *session.Session) (*Response, error) {
	c, err := session.BuildContext(ctx, l.source, sess, l.now())
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}

	messages := []llm.Message{{
		Role:    llm.RoleSystem,
		Content: prompts.ChatSystemPrompt(c.Now, c.Background, c.RecentLogs, c.OpenTasks),
	}}
	for _, t := range c.History {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}

	resp := &Response{Model: l.model}
	toolDefs := l.registry.List()

	for resp.Iterations < l.maxIterations {
		resp.Iterations++

		l.logger.Debug("calling LLM", "model", l.model, "messages", len(messages), "iteration", resp.Iterations)
		out, err := l.llm.Chat(ctx, l.model, messages, toolDefs)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		}
		resp.InputTokens += out.InputTokens
		resp.OutputTokens += out.OutputTokens
		if out.Model != "" {
			resp.Model = out.Model
		}

		if len(out.Message.ToolCalls) == 0 {
			resp.Content = strings.TrimSpace(out.Message.Content)
			if resp.Content == "" {
				resp.Content = summarizeResults(resp.ToolResults)
			}
			return resp, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   out.Message.Content,
			ToolCalls: out.Message.ToolCalls,
		})

		calls := make([]dispatch.Call, 0, len(out.Message.ToolCalls))
		for _, tc := range out.Message.ToolCalls {
			calls = append(calls, dispatch.Call{ID: tc.ID, Name: tc.Function.Name, Args: tc.Function.Arguments})
		}

		results, err := l.dispatcher.Dispatch(ctx, sess.UserID, calls)
		resp.ToolResults = append(resp.ToolResults, results...)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			messages = append(messages, llm.Message{Role: llm.RoleTool, Content: r.JSON(), ToolCallID: r.CallID})
		}
	}

	// The model kept calling tools. Everything it asked for has been
	// applied, so report that instead of failing the turn.
	l.logger.Warn("iteration limit reached", "session", sess.ID, "iterations", resp.Iterations)
	resp.Content = summarizeResults(resp.ToolResults)
	return resp, nil
}

// summarizeResults stands in for an empty model reply.
func summarizeResults(results []dispatch.Result) string {
	if len(results) == 0 {
		return "OK."
	}
	ok := 0
	for _, r := range results {
		if r.OK {
			ok++
		}
	}
	if ok == len(results) {
		return "Done, your records are updated."
	}
	return fmt.Sprintf("I applied %d of %d updates; the rest could not be completed.", ok, len(results))
}

// IsStoreFailure reports whether err came from the persistence layer.
func IsStoreFailure(err error) bool {
	return errors.Is(err, dispatch.ErrStoreUnavailable) || errors.Is(err, store.ErrUnavailable)
}
