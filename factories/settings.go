package factories

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/bytedance/sonic"

	deepgramstt "turnkit/services/deepgram/stt"
	openaillm "turnkit/services/openai/llm"
)

// TurnSettings configures the conversation state machine and its handler.
type TurnSettings struct {
	WakeWord            string `json:"wake_word"`
	ProcessingSilenceMs int    `json:"processing_silence_ms"`
	EndSilenceMs        int    `json:"end_silence_ms"`
	TickIntervalMs      int    `json:"tick_interval_ms,omitempty"`
	ExpectSpeechOutput  bool   `json:"expect_speech_output,omitempty"`
}

// StoreSettings configures the conversation store.
type StoreSettings struct {
	RootDir string `json:"root_dir"`
	// KeyHex is the optional hex-encoded 32-byte AES key. Empty means
	// messages are persisted as plaintext envelopes.
	KeyHex string `json:"key_hex,omitempty"`
}

// Key decodes the configured hex key, or returns nil when unset.
func (s StoreSettings) Key() ([]byte, error) {
	if s.KeyHex == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s.KeyHex)
	if err != nil {
		return nil, fmt.Errorf("settings: decode store key: %w", err)
	}
	return key, nil
}

// SettingsConfig is the top-level config loaded from settings.json.
type SettingsConfig struct {
	Turn            TurnSettings                `json:"turn"`
	Store           StoreSettings               `json:"store"`
	SystemPrompt    string                      `json:"system_prompt"`
	ContextMessages int                         `json:"context_messages,omitempty"`
	LogDir          string                      `json:"log_dir,omitempty"`
	STT             *deepgramstt.DeepgramConfig `json:"stt,omitempty"`
	LLM             *openaillm.Config           `json:"llm,omitempty"`
}

// DefaultSettingsConfig returns a SettingsConfig pre-filled with defaults.
func DefaultSettingsConfig() SettingsConfig {
	llmCfg := openaillm.DefaultConfig()
	return SettingsConfig{
		Turn: TurnSettings{
			WakeWord:            "hey assistant",
			ProcessingSilenceMs: 1200,
			EndSilenceMs:        20000,
		},
		Store: StoreSettings{
			RootDir: "./conversation",
		},
		SystemPrompt:    "You are a helpful voice assistant. Keep replies short and speakable.",
		ContextMessages: 20,
		STT:             deepgramstt.DefaultConfig(),
		LLM:             &llmCfg,
	}
}

// SettingsConfigFromJSON parses a SettingsConfig from raw JSON.
func SettingsConfigFromJSON(data []byte) (SettingsConfig, error) {
	cfg := DefaultSettingsConfig()
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: parse: %w", err)
	}
	return cfg, nil
}

// SettingsConfigFromFile loads a SettingsConfig from a JSON file on disk.
func SettingsConfigFromFile(path string) (SettingsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: read %q: %w", path, err)
	}
	return SettingsConfigFromJSON(data)
}

// APIKeys carries provider credentials injected from the environment rather
// than settings.json.
type APIKeys struct {
	Deepgram string
	OpenAI   string
}

// InjectAPIKeys fills provider credentials into the service configs that
// did not set one inline.
func (c *SettingsConfig) InjectAPIKeys(keys APIKeys) {
	if c.STT != nil && c.STT.APIKey == "" {
		c.STT.APIKey = keys.Deepgram
	}
	if c.LLM != nil && c.LLM.APIKey == "" {
		c.LLM.APIKey = keys.OpenAI
	}
}
