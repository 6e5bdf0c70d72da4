package turn

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"turnkit/core"
	llmev "turnkit/events/llm"
	sttev "turnkit/events/stt"
	transportev "turnkit/events/transport"
	ttsev "turnkit/events/tts"
	turnev "turnkit/events/turn"
	"turnkit/turn"
)

// noopService satisfies IService; the handler's state lives in the machine.
type noopService struct{}

func (s *noopService) Init(context.Context) error { return nil }
func (s *noopService) Cleanup() error             { return nil }
func (s *noopService) Reset() error               { return nil }

// TurnHandler sits between STT and the LLM stage and owns the conversation
// state machine. Final transcripts are fed into the machine, a ticker drives
// its silence timers, and the machine's notifications are relayed into the
// pipeline: PromptReady to the next stage, StateChanged to the top channel
// for observability.
type TurnHandler struct {
	core.BaseHandler
	machine *turn.StateMachine
	clock   core.Clock
	config  Config
	textSeq atomic.Int64 // sequence counter for typed text input
}

// NewTurnHandler wraps an existing state machine.
func NewTurnHandler(machine *turn.StateMachine, config Config, logger *core.Logger, clock core.Clock) *TurnHandler {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultConfig().TickInterval
	}
	if clock == nil {
		clock = core.SystemUTC{}
	}
	h := &TurnHandler{
		BaseHandler: *core.NewBaseHandler(&noopService{}, nil, logger),
		machine:     machine,
		clock:       clock,
		config:      config,
	}
	machine.AddObserver(h)
	return h
}

// Machine exposes the wrapped state machine for host-side wiring.
func (h *TurnHandler) Machine() *turn.StateMachine {
	return h.machine
}

func (h *TurnHandler) Start() error {
	go h.eventLoop()
	go h.tickLoop()
	return nil
}

func (h *TurnHandler) eventLoop() {
	for {
		select {
		case packet := <-h.InputChan:
			h.HandleEvent(packet)
		case <-h.Ctx.Done():
			return
		}
	}
}

func (h *TurnHandler) tickLoop() {
	ticker := time.NewTicker(h.config.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.machine.Tick(h.clock.NowUTC())
		case <-h.Ctx.Done():
			return
		}
	}
}

func (h *TurnHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *sttev.STTFinalOutputEvent:
		h.machine.HandleTranscription(event.Item)
	case *transportev.TransportTextInputEvent:
		// Typed input takes the same path as speech, wake word included.
		if text := strings.TrimSpace(event.Text); text != "" {
			h.machine.HandleTranscription(turn.TranscriptionItem{
				Sequence:     h.textSeq.Add(1),
				TimestampUTC: h.clock.NowUTC(),
				Text:         text,
				IsMeaningful: true,
				WordCount:    len(strings.Fields(text)),
			})
		}
	case *ttsev.TTSSpeakingStartedEvent:
		h.machine.BeginSpeaking()
	case *ttsev.TTSSpeakingEndedEvent:
		h.machine.EndSpeaking()
	case *llmev.LLMResponseCompletedEvent:
		if !h.config.ExpectSpeechOutput {
			h.machine.EndProcessing()
		}
	default:
	}
	h.SendPacket(packet)
	return nil
}

// OnPromptReady implements turn.Observer. The joined utterance moves to the
// next pipeline stage as a prompt-ready event.
func (h *TurnHandler) OnPromptReady(text string) {
	h.SendPacket(core.NewEventPacket(&turnev.TurnPromptReadyEvent{
		Text: text,
	}, core.EventRelayDestinationNextService, "TurnHandler"))
}

// OnStateChanged implements turn.Observer.
func (h *TurnHandler) OnStateChanged(from, to turn.Mode, reason string, at time.Time) {
	h.SendPacket(core.NewEventPacket(&turnev.TurnStateChangedEvent{
		From:         from,
		To:           to,
		Reason:       reason,
		TimestampUTC: at,
	}, core.EventRelayDestinationTopService, "TurnHandler"))
}
