package prompt

import (
	"time"

	"turnkit/core"
)

// Prompt is one fully assembled model request. Built fresh per turn and
// never persisted.
type Prompt struct {
	System    string
	Context   []core.ChatMessage // chronological, provider order preserved
	UserInput string
	NowUTC    time.Time // captured once at build time
}
