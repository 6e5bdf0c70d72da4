package stt

// STTConfig holds configuration for the STT handler.
type STTConfig struct {
	// RequiredSampleRate is the sample rate the STT engine expects, in Hz.
	RequiredSampleRate int `json:"required_sample_rate"`
}

// DefaultConfig returns an STTConfig with sensible defaults
func DefaultConfig() STTConfig {
	return STTConfig{
		RequiredSampleRate: 16000,
	}
}
