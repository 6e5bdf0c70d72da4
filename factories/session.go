package factories

import (
	"fmt"
	"time"

	"turnkit/core"
	llmhandler "turnkit/handlers/llm"
	stthandler "turnkit/handlers/stt"
	turnhandler "turnkit/handlers/turn"
	"turnkit/prompt"
	deepgramstt "turnkit/services/deepgram/stt"
	openaillm "turnkit/services/openai/llm"
	"turnkit/store"
	"turnkit/turn"
)

// SessionHandlers is the wired pipeline for one conversation session, plus
// the shared components the host may want direct access to.
type SessionHandlers struct {
	STT  *stthandler.STTHandler
	Turn *turnhandler.TurnHandler
	LLM  *llmhandler.LLMHandler

	Store   *store.FileStore
	Builder *prompt.Builder

	// Ordered handler chain, ready for the runner.
	Chain []core.IHandler
}

// BuildHandlers wires the full session pipeline from settings:
// STT → Turn → LLM, sharing one conversation store and prompt builder.
func BuildHandlers(cfg SettingsConfig, logger *core.Logger, clock core.Clock) (*SessionHandlers, error) {
	if clock == nil {
		clock = core.SystemUTC{}
	}

	key, err := cfg.Store.Key()
	if err != nil {
		return nil, err
	}
	conversationStore, err := store.NewFileStore(store.Config{
		RootDir: cfg.Store.RootDir,
		Key:     key,
	}, logger.With(map[string]any{"component": "store"}), clock)
	if err != nil {
		return nil, err
	}

	machine, err := turn.NewStateMachine(turn.Config{
		WakeWord:          cfg.Turn.WakeWord,
		ProcessingSilence: time.Duration(cfg.Turn.ProcessingSilenceMs) * time.Millisecond,
		EndSilence:        time.Duration(cfg.Turn.EndSilenceMs) * time.Millisecond,
	}, logger.With(map[string]any{"component": "turn"}), clock)
	if err != nil {
		return nil, err
	}

	turnCfg := turnhandler.DefaultConfig()
	if cfg.Turn.TickIntervalMs > 0 {
		turnCfg.TickInterval = time.Duration(cfg.Turn.TickIntervalMs) * time.Millisecond
	}
	turnCfg.ExpectSpeechOutput = cfg.Turn.ExpectSpeechOutput
	turnH := turnhandler.NewTurnHandler(machine, turnCfg, logger, clock)

	if cfg.STT == nil {
		return nil, fmt.Errorf("factories: stt settings are required")
	}
	sttService := deepgramstt.NewDeepgramSTTService(cfg.STT, logger.With(map[string]any{"component": "stt"}), clock)
	sttH := stthandler.NewSTTHandler(sttService, nil, stthandler.DefaultConfig(), logger)

	if cfg.LLM == nil {
		return nil, fmt.Errorf("factories: llm settings are required")
	}
	llmService := openaillm.NewOpenAILLMService(*cfg.LLM)

	builder := prompt.NewBuilder(
		prompt.StaticSystemPrompt(cfg.SystemPrompt),
		[]prompt.ContextProvider{&prompt.LastNProvider{Store: conversationStore}},
		clock,
		logger.With(map[string]any{"component": "prompt"}),
	)

	llmCfg := llmhandler.DefaultConfig()
	if cfg.ContextMessages > 0 {
		llmCfg.ContextMessages = cfg.ContextMessages
	}
	llmH := llmhandler.NewLLMHandler(llmService, builder, conversationStore, llmCfg, logger, clock)

	return &SessionHandlers{
		STT:     sttH,
		Turn:    turnH,
		LLM:     llmH,
		Store:   conversationStore,
		Builder: builder,
		Chain:   []core.IHandler{sttH, turnH, llmH},
	}, nil
}
