package prompt

import (
	"context"

	"turnkit/core"
)

// ContextProvider retrieves messages relevant to a prompt. Implementations
// own their sizing: the builder concatenates whatever they return without
// truncation or deduplication.
type ContextProvider interface {
	GetContext(ctx context.Context, userInput string, n int) ([]core.ChatMessage, error)
}

// SystemPromptProvider supplies the system prompt for a turn.
type SystemPromptProvider interface {
	SystemPrompt(ctx context.Context) (string, error)
}

// StaticSystemPrompt is a SystemPromptProvider returning a fixed string.
type StaticSystemPrompt string

func (s StaticSystemPrompt) SystemPrompt(context.Context) (string, error) {
	return string(s), nil
}

// TailReader is the slice of the conversation store the last-N provider needs.
type TailReader interface {
	ReadTail(ctx context.Context, n int) ([]core.ChatMessage, error)
}

// LastNProvider is a pure recency strategy: it ignores the user input and
// returns the store's most recent n messages unchanged. Other strategies
// (semantic retrieval, summarization) plug in through the same interface.
type LastNProvider struct {
	Store TailReader
}

func (p *LastNProvider) GetContext(ctx context.Context, _ string, n int) ([]core.ChatMessage, error) {
	return p.Store.ReadTail(ctx, n)
}
