package llm

import "context"

// Client is implemented by every LLM provider.
type Client interface {
	// Chat sends the conversation plus the advertised tool schema and
	// returns the model's reply, which may carry tool calls.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
