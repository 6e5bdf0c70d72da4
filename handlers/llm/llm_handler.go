package llm

import (
	"context"

	"turnkit/core"
	llmev "turnkit/events/llm"
	turnev "turnkit/events/turn"
	"turnkit/prompt"
)

// LLMService answers an assembled prompt with response text.
type LLMService interface {
	core.IService
	Complete(ctx context.Context, p prompt.Prompt) (string, error)
}

// MessageAppender is the slice of the conversation store this handler needs.
type MessageAppender interface {
	Append(ctx context.Context, msg core.ChatMessage) error
}

// LLMHandler turns prompt-ready events into model exchanges: the user
// utterance is persisted, a bounded-context prompt is assembled, the model
// is queried, and the reply is persisted and relayed down the pipeline.
// Store append failures are data-loss events and go to the error path; they
// are never silently dropped.
type LLMHandler struct {
	core.BaseHandler
	builder *prompt.Builder
	store   MessageAppender
	clock   core.Clock
	config  LLMHandlerConfig
}

// NewLLMHandler creates a new LLM handler.
// Use DefaultConfig() to get a config with sensible defaults and override only what you need.
func NewLLMHandler(service LLMService, builder *prompt.Builder, store MessageAppender, config LLMHandlerConfig, logger *core.Logger, clock core.Clock) *LLMHandler {
	if config.ContextMessages <= 0 {
		config.ContextMessages = DefaultConfig().ContextMessages
	}
	if clock == nil {
		clock = core.SystemUTC{}
	}
	return &LLMHandler{
		BaseHandler: *core.NewBaseHandler(service, nil, logger),
		builder:     builder,
		store:       store,
		clock:       clock,
		config:      config,
	}
}

// WithBackupService registers a fallback service used when the primary fails.
// Returns the handler to allow chaining.
func (h *LLMHandler) WithBackupService(service LLMService) *LLMHandler {
	h.BackupServices = append(h.BackupServices, service)
	return h
}

func (h *LLMHandler) Start() error {
	go h.eventLoop()
	return nil
}

func (h *LLMHandler) eventLoop() {
	for {
		select {
		case packet := <-h.InputChan:
			h.HandleEvent(packet)
		case <-h.Ctx.Done():
			return
		}
	}
}

func (h *LLMHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *turnev.TurnPromptReadyEvent:
		// The exchange does I/O; run it off the event loop so further
		// pipeline traffic keeps flowing.
		go h.runExchange(event.Text)
	default:
	}
	h.SendPacket(packet)
	return nil
}

// runExchange performs one full model turn for the given user utterance.
func (h *LLMHandler) runExchange(userInput string) {
	ctx := h.Ctx

	// Context is pulled before the live utterance is persisted, so the
	// prompt carries it exactly once: as UserInput, not also as the newest
	// stored message.
	p, err := h.builder.Build(ctx, userInput, h.config.ContextMessages)
	if err != nil {
		h.Logger.With(map[string]any{"error": err}).Error("LLM handler: failed to build prompt")
		h.HandleError(err)
		return
	}

	userMsg := core.NewChatMessage(core.ChatRoleUser, userInput, h.clock.NowUTC())
	if err := h.store.Append(ctx, userMsg); err != nil {
		h.Logger.With(map[string]any{"error": err}).Error("LLM handler: failed to persist user message")
		h.HandleError(err)
		return
	}

	// Lifecycle events go to the top channel: this handler sits at the end
	// of the chain, and the runner echoes top packets back through every
	// stage. The turn handler upstream needs the completion to resume
	// listening.
	h.SendPacket(core.NewEventPacket(&llmev.LLMResponseStartedEvent{},
		core.EventRelayDestinationTopService, "LLMHandler"))

	reply, err := h.Service.(LLMService).Complete(ctx, p)
	if err != nil {
		h.Logger.With(map[string]any{"error": err}).Error("LLM handler: completion failed")
		h.HandleError(err)
		return
	}

	assistantMsg := core.NewChatMessage(core.ChatRoleAssistant, reply, h.clock.NowUTC())
	if err := h.store.Append(ctx, assistantMsg); err != nil {
		h.Logger.With(map[string]any{"error": err}).Error("LLM handler: failed to persist assistant message")
		h.HandleError(err)
	}

	h.SendPacket(core.NewEventPacket(&llmev.LLMResponseCompletedEvent{
		FullText: reply,
	}, core.EventRelayDestinationTopService, "LLMHandler"))
}
