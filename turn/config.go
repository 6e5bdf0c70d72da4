package turn

import (
	"errors"
	"strings"
	"time"
)

// Config holds the turn-taking parameters for a StateMachine.
type Config struct {
	// WakeWord is the trigger phrase that moves the machine from quiescent to
	// listening. Matched as a case-insensitive substring of recognized text.
	WakeWord string `json:"wake_word"`
	// ProcessingSilence is how long after the last meaningful utterance the
	// machine waits before emitting the buffered utterance as a prompt.
	ProcessingSilence time.Duration `json:"processing_silence"`
	// EndSilence is how long a listening session may stay completely silent
	// before the machine gives up and returns to quiescent.
	EndSilence time.Duration `json:"end_silence"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		WakeWord:          "hey assistant",
		ProcessingSilence: 1200 * time.Millisecond,
		EndSilence:        20 * time.Second,
	}
}

// Validate rejects configurations that would silently disable turn-taking.
func (c Config) Validate() error {
	if strings.TrimSpace(c.WakeWord) == "" {
		return errors.New("turn: wake word must not be empty")
	}
	if c.ProcessingSilence <= 0 {
		return errors.New("turn: processing silence must be positive")
	}
	if c.EndSilence <= 0 {
		return errors.New("turn: end silence must be positive")
	}
	return nil
}
