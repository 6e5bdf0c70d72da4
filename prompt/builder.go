package prompt

import (
	"context"
	"fmt"

	"turnkit/core"
)

// Builder assembles prompts from a system-prompt source and an ordered list
// of context providers.
type Builder struct {
	system    SystemPromptProvider
	providers []ContextProvider
	clock     core.Clock
	logger    *core.Logger
}

// NewBuilder wires a builder. The provider order given here is the
// concatenation order of their context in every built prompt.
func NewBuilder(system SystemPromptProvider, providers []ContextProvider, clock core.Clock, logger *core.Logger) *Builder {
	if clock == nil {
		clock = core.SystemUTC{}
	}
	return &Builder{
		system:    system,
		providers: providers,
		clock:     clock,
		logger:    logger,
	}
}

// Build queries the system-prompt source and every provider with the live
// user input and desired context size, then returns the assembled Prompt.
// NowUTC is captured at entry, not at any sub-step. A failing provider is a
// failure of the build: thinner-than-requested context is surfaced, never
// silently returned.
func (b *Builder) Build(ctx context.Context, userInput string, desiredContextN int) (Prompt, error) {
	now := b.clock.NowUTC()

	system, err := b.system.SystemPrompt(ctx)
	if err != nil {
		return Prompt{}, fmt.Errorf("prompt: system prompt source: %w", err)
	}

	var combined []core.ChatMessage
	for i, provider := range b.providers {
		messages, err := provider.GetContext(ctx, userInput, desiredContextN)
		if err != nil {
			return Prompt{}, fmt.Errorf("prompt: context provider %d: %w", i, err)
		}
		combined = append(combined, messages...)
	}

	b.logger.With(map[string]any{
		"providers":        len(b.providers),
		"context_messages": len(combined),
	}).Debug("prompt: built")

	return Prompt{
		System:    system,
		Context:   combined,
		UserInput: userInput,
		NowUTC:    now,
	}, nil
}
