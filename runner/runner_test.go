package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"turnkit/core"
	sttev "turnkit/events/stt"
	llmhandler "turnkit/handlers/llm"
	turnhandler "turnkit/handlers/turn"
	"turnkit/prompt"
	"turnkit/turn"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) NowUTC() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type memoryStore struct {
	mu       sync.Mutex
	messages []core.ChatMessage
}

func (s *memoryStore) Append(_ context.Context, msg core.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *memoryStore) ReadTail(_ context.Context, n int) ([]core.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.messages) {
		n = len(s.messages)
	}
	return append([]core.ChatMessage(nil), s.messages[len(s.messages)-n:]...), nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type scriptedLLM struct {
	reply string
}

func (s *scriptedLLM) Init(context.Context) error { return nil }
func (s *scriptedLLM) Cleanup() error             { return nil }
func (s *scriptedLLM) Reset() error               { return nil }

func (s *scriptedLLM) Complete(context.Context, prompt.Prompt) (string, error) {
	return s.reply, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// The assembled pipeline must complete a full round trip: wake utterance in,
// model exchange out, and the machine back in listening for the next turn.
// The completion signal originates at the chain's last stage and reaches the
// turn handler via the runner's top-channel echo.
func TestRunner_ExchangeCompletionResumesListening(t *testing.T) {
	clock := newFakeClock()
	logger := core.NewDiscardLogger()

	machine, err := turn.NewStateMachine(turn.Config{
		WakeWord:          "hey assistant",
		ProcessingSilence: time.Second,
		EndSilence:        10 * time.Second,
	}, logger, clock)
	if err != nil {
		t.Fatal(err)
	}

	turnCfg := turnhandler.DefaultConfig()
	turnCfg.ExpectSpeechOutput = false
	turnH := turnhandler.NewTurnHandler(machine, turnCfg, logger, clock)

	store := &memoryStore{}
	builder := prompt.NewBuilder(
		prompt.StaticSystemPrompt("Be brief."),
		[]prompt.ContextProvider{&prompt.LastNProvider{Store: store}},
		clock,
		logger,
	)
	llmH := llmhandler.NewLLMHandler(&scriptedLLM{reply: "Done."}, builder, store,
		llmhandler.DefaultConfig(), logger, clock)

	run := NewRunner([]core.IHandler{turnH, llmH}, logger)
	if err := run.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { run.Stop() })

	run.Inject(core.NewEventPacket(&sttev.STTFinalOutputEvent{
		Item: turn.TranscriptionItem{
			Sequence:     1,
			TimestampUTC: clock.NowUTC(),
			Text:         "hey assistant turn off the lights",
			IsMeaningful: true,
			WordCount:    6,
		},
	}, core.EventRelayDestinationNextService, "test"))

	if got := machine.Mode(); got != turn.ModeListening {
		t.Fatalf("expected listening after wake utterance, got %s", got)
	}

	// The tick hands the prompt to the LLM stage; the scripted exchange may
	// complete at any point after, so only the end state is asserted.
	machine.Tick(clock.Advance(1100 * time.Millisecond))

	// The exchange persists both sides and its completion must flow back
	// through the chain to resume listening.
	waitFor(t, "exchange to persist both messages", func() bool { return store.count() == 2 })
	waitFor(t, "machine to resume listening", func() bool { return machine.Mode() == turn.ModeListening })

	// A second turn proves the pipeline is reusable, not one-shot.
	run.Inject(core.NewEventPacket(&sttev.STTFinalOutputEvent{
		Item: turn.TranscriptionItem{
			Sequence:     2,
			TimestampUTC: clock.NowUTC(),
			Text:         "and the kitchen too",
			IsMeaningful: true,
			WordCount:    4,
		},
	}, core.EventRelayDestinationNextService, "test"))
	machine.Tick(clock.Advance(1100 * time.Millisecond))

	waitFor(t, "second exchange to persist", func() bool { return store.count() == 4 })
	waitFor(t, "machine to resume after second turn", func() bool { return machine.Mode() == turn.ModeListening })
}
