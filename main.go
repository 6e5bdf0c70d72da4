package main

import (
	"context"
	"encoding/base64"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"turnkit/core"
	"turnkit/factories"
	"turnkit/runner"
)

func main() {
	logger := core.NewDevelopmentLogger()

	if err := godotenv.Load(".env.local"); err != nil {
		logger.With(map[string]any{"error": err}).Warn("No .env.local file found or failed to load")
	}

	settings := loadSettingsFromEnv(logger)
	settings.InjectAPIKeys(factories.APIKeys{
		Deepgram: getEnv("DEEPGRAM_API_KEY", ""),
		OpenAI:   getEnv("OPENAI_API_KEY", ""),
	})

	// Per-session transcript log, teed with the console logger.
	sessionID := uuid.New().String()
	sessionLogger := logger
	if settings.LogDir != "" {
		writer, err := core.NewSessionLogWriter(settings.LogDir, sessionID)
		if err != nil {
			logger.With(map[string]any{"error": err}).Warn("failed to open session log, console only")
		} else {
			defer writer.Close()
			sessionLogger = core.NewSessionLogger(logger, writer)
		}
	}
	sessionLogger = sessionLogger.With(map[string]any{"session_id": sessionID})

	handlers, err := factories.BuildHandlers(settings, sessionLogger, core.SystemUTC{})
	if err != nil {
		logger.With(map[string]any{"error": err}).Fatal("failed to build session pipeline")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	run := runner.NewRunner(handlers.Chain, sessionLogger)
	if err := run.Start(ctx); err != nil {
		logger.With(map[string]any{"error": err}).Fatal("failed to start pipeline")
		return
	}
	defer run.Stop()

	sessionLogger.With(map[string]any{
		"wake_word": settings.Turn.WakeWord,
		"encrypted": handlers.Store.Encrypted(),
	}).Info("turnkit session started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		sessionLogger.Info("shutting down")
	case <-ctx.Done():
	}
}

// loadSettingsFromEnv loads SettingsConfig from file or SETTINGS_JSON_B64 env var.
func loadSettingsFromEnv(logger *core.Logger) factories.SettingsConfig {
	if b64 := os.Getenv("SETTINGS_JSON_B64"); b64 != "" {
		data, decErr := base64.StdEncoding.DecodeString(b64)
		if decErr != nil {
			logger.With(map[string]any{"error": decErr}).Error("failed to decode SETTINGS_JSON_B64")
			return factories.DefaultSettingsConfig()
		}
		settings, err := factories.SettingsConfigFromJSON(data)
		if err != nil {
			logger.With(map[string]any{"error": err}).Error("failed to parse SETTINGS_JSON_B64")
			return factories.DefaultSettingsConfig()
		}
		logger.Info("loaded settings from SETTINGS_JSON_B64")
		return settings
	}

	settingsPath := getEnv("SETTINGS_PATH", "./settings.json")
	settings, err := factories.SettingsConfigFromFile(settingsPath)
	if err != nil {
		logger.With(map[string]any{"path": settingsPath, "error": err}).Warn("failed to load settings, using defaults")
		return factories.DefaultSettingsConfig()
	}
	return settings
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
