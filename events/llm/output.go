package llm

type LLMResponseStartedEvent struct {
}

func (e *LLMResponseStartedEvent) GetId() string {
	return "llm.response_started"
}

type LLMResponseCompletedEvent struct {
	FullText string // The complete LLM response text.
}

func (e *LLMResponseCompletedEvent) GetId() string {
	return "llm.response_completed"
}
