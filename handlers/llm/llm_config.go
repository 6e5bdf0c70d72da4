package llm

// LLMHandlerConfig holds configuration for the LLM handler.
type LLMHandlerConfig struct {
	// ContextMessages is how many stored messages each context provider is
	// asked for when assembling a prompt.
	ContextMessages int `json:"context_messages"`
}

// DefaultConfig returns an LLMHandlerConfig with sensible defaults
func DefaultConfig() LLMHandlerConfig {
	return LLMHandlerConfig{
		ContextMessages: 20,
	}
}
