package turn

import "time"

// Config holds configuration for the TurnHandler.
type Config struct {
	// TickInterval is how often the silence timers are advanced.
	TickInterval time.Duration `json:"tick_interval"`
	// ExpectSpeechOutput marks whether a TTS stage follows the model. When
	// false the machine resumes listening as soon as the model exchange
	// completes; when true it waits for the speaking-ended signal.
	ExpectSpeechOutput bool `json:"expect_speech_output"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		TickInterval:       100 * time.Millisecond,
		ExpectSpeechOutput: false,
	}
}
