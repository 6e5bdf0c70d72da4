package factories

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultSettingsConfig(t *testing.T) {
	cfg := DefaultSettingsConfig()

	if cfg.Turn.WakeWord == "" {
		t.Fatal("default wake word must not be empty")
	}
	if cfg.Turn.ProcessingSilenceMs <= 0 || cfg.Turn.EndSilenceMs <= cfg.Turn.ProcessingSilenceMs {
		t.Fatalf("implausible default silences: %d / %d", cfg.Turn.ProcessingSilenceMs, cfg.Turn.EndSilenceMs)
	}
	if cfg.STT == nil || cfg.LLM == nil {
		t.Fatal("default config must carry service configs")
	}
	if cfg.ContextMessages <= 0 {
		t.Fatalf("default context window: %d", cfg.ContextMessages)
	}
}

func TestSettingsConfigFromJSON_OverlaysDefaults(t *testing.T) {
	cfg, err := SettingsConfigFromJSON([]byte(`{
		"turn": {"wake_word": "computer", "processing_silence_ms": 800, "end_silence_ms": 15000},
		"store": {"root_dir": "/tmp/conv", "key_hex": "0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f"},
		"system_prompt": "Be terse."
	}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Turn.WakeWord != "computer" {
		t.Fatalf("wake word not overridden: %q", cfg.Turn.WakeWord)
	}
	if cfg.Store.RootDir != "/tmp/conv" {
		t.Fatalf("store dir not overridden: %q", cfg.Store.RootDir)
	}
	if cfg.SystemPrompt != "Be terse." {
		t.Fatalf("system prompt not overridden: %q", cfg.SystemPrompt)
	}
	// Fields absent from the JSON keep their defaults.
	if cfg.ContextMessages != DefaultSettingsConfig().ContextMessages {
		t.Fatalf("context messages lost its default: %d", cfg.ContextMessages)
	}

	key, err := cfg.Store.Key()
	if err != nil {
		t.Fatal(err)
	}
	if len(key) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(key))
	}
}

func TestSettingsConfigFromJSON_RejectsGarbage(t *testing.T) {
	if _, err := SettingsConfigFromJSON([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStoreSettingsKey(t *testing.T) {
	if key, err := (StoreSettings{}).Key(); err != nil || key != nil {
		t.Fatalf("empty key hex must decode to nil: %v, %v", key, err)
	}
	if _, err := (StoreSettings{KeyHex: "zz"}).Key(); err == nil {
		t.Fatal("expected error for invalid hex")
	}
}

func TestSettingsConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"system_prompt": "From disk."}`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := SettingsConfigFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SystemPrompt != "From disk." {
		t.Fatalf("unexpected system prompt: %q", cfg.SystemPrompt)
	}

	if _, err := SettingsConfigFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestInjectAPIKeys(t *testing.T) {
	cfg := DefaultSettingsConfig()
	cfg.LLM.APIKey = "inline-key"

	cfg.InjectAPIKeys(APIKeys{Deepgram: "dg-env", OpenAI: "oa-env"})

	if cfg.STT.APIKey != "dg-env" {
		t.Fatalf("deepgram key not injected: %q", cfg.STT.APIKey)
	}
	if cfg.LLM.APIKey != "inline-key" {
		t.Fatalf("inline key overwritten: %q", cfg.LLM.APIKey)
	}
}
