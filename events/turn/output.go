package turn

import (
	"time"

	"turnkit/turn"
)

// TurnPromptReadyEvent fires when a listening session's buffered utterance
// has qualified as a complete turn. At most one fires per session.
type TurnPromptReadyEvent struct {
	Text string
}

func (e *TurnPromptReadyEvent) GetId() string {
	return "turn.prompt_ready"
}

// TurnStateChangedEvent fires on every conversation mode transition,
// including fresh re-entries into listening.
type TurnStateChangedEvent struct {
	From         turn.Mode
	To           turn.Mode
	Reason       string
	TimestampUTC time.Time
}

func (e *TurnStateChangedEvent) GetId() string {
	return "turn.state_changed"
}
