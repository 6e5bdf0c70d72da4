package llm

import (
	"context"
	"sync"
	"testing"
	"time"

	"turnkit/core"
	llmev "turnkit/events/llm"
	turnev "turnkit/events/turn"
	"turnkit/prompt"
)

// memoryStore is an in-memory MessageAppender that also serves as the
// builder's tail reader, mirroring how the file store is wired in production.
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

func (s *memoryStore) snapshot() []core.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ChatMessage(nil), s.messages...)
}

type scriptedLLM struct {
	reply string

	mu  sync.Mutex
	got prompt.Prompt
}

func (s *scriptedLLM) Init(context.Context) error { return nil }
func (s *scriptedLLM) Cleanup() error             { return nil }
func (s *scriptedLLM) Reset() error               { return nil }

func (s *scriptedLLM) Complete(_ context.Context, p prompt.Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = p
	return s.reply, nil
}

func (s *scriptedLLM) receivedPrompt() prompt.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.got
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestLLMHandler_RunsFullExchange(t *testing.T) {
	store := &memoryStore{}
	seed := core.NewChatMessage(core.ChatRoleAssistant, "earlier reply", time.Now().UTC())
	if err := store.Append(context.Background(), seed); err != nil {
		t.Fatal(err)
	}

	service := &scriptedLLM{reply: "The lights are off."}
	builder := prompt.NewBuilder(
		prompt.StaticSystemPrompt("Be brief."),
		[]prompt.ContextProvider{&prompt.LastNProvider{Store: store}},
		nil,
		core.NewDiscardLogger(),
	)
	h := NewLLMHandler(service, builder, store, DefaultConfig(), core.NewDiscardLogger(), nil)

	in := make(chan *core.EventPacket, 16)
	next := make(chan *core.EventPacket, 16)
	top := make(chan *core.EventPacket, 16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.Initialize(in, next, top, ctx); err != nil {
		t.Fatal(err)
	}

	ready := core.NewEventPacket(&turnev.TurnPromptReadyEvent{Text: "turn off the lights"},
		core.EventRelayDestinationNextService, "test")
	if err := h.HandleEvent(ready); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(store.snapshot()) == 3 })

	messages := store.snapshot()
	if messages[1].Role != core.ChatRoleUser || messages[1].Content != "turn off the lights" {
		t.Fatalf("user message not persisted correctly: %+v", messages[1])
	}
	if messages[2].Role != core.ChatRoleAssistant || messages[2].Content != "The lights are off." {
		t.Fatalf("assistant message not persisted correctly: %+v", messages[2])
	}

	// The prompt's context is taken before the live utterance lands in the
	// store, so the utterance appears exactly once: as UserInput.
	p := service.receivedPrompt()
	if p.UserInput != "turn off the lights" {
		t.Fatalf("unexpected user input: %q", p.UserInput)
	}
	if len(p.Context) != 1 || p.Context[0].Content != "earlier reply" {
		t.Fatalf("context must hold only prior history: %+v", p.Context)
	}

	// Lifecycle events travel on the top channel so the runner can echo
	// them back through the chain.
	var sawStarted, sawCompleted bool
	timeout := time.After(2 * time.Second)
	for !sawCompleted {
		select {
		case packet := <-top:
			switch ev := packet.Event.(type) {
			case *llmev.LLMResponseStartedEvent:
				sawStarted = true
			case *llmev.LLMResponseCompletedEvent:
				sawCompleted = true
				if ev.FullText != "The lights are off." {
					t.Fatalf("unexpected completion text: %q", ev.FullText)
				}
			}
		case <-timeout:
			t.Fatalf("missing exchange events: started=%v completed=%v", sawStarted, sawCompleted)
		}
	}
	if !sawStarted {
		t.Fatal("completion arrived without a started event")
	}
}

func TestLLMHandler_IgnoresUnrelatedEvents(t *testing.T) {
	store := &memoryStore{}
	service := &scriptedLLM{reply: "unused"}
	builder := prompt.NewBuilder(prompt.StaticSystemPrompt("x"), nil, nil, core.NewDiscardLogger())
	h := NewLLMHandler(service, builder, store, DefaultConfig(), core.NewDiscardLogger(), nil)

	in := make(chan *core.EventPacket, 4)
	next := make(chan *core.EventPacket, 4)
	top := make(chan *core.EventPacket, 4)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.Initialize(in, next, top, ctx); err != nil {
		t.Fatal(err)
	}

	other := core.NewEventPacket(&llmev.LLMResponseStartedEvent{}, core.EventRelayDestinationNextService, "test")
	if err := h.HandleEvent(other); err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond)
	if len(store.snapshot()) != 0 {
		t.Fatal("unrelated event triggered an exchange")
	}
	// The packet itself is still forwarded.
	select {
	case packet := <-next:
		if _, ok := packet.Event.(*llmev.LLMResponseStartedEvent); !ok {
			t.Fatalf("wrong packet forwarded: %T", packet.Event)
		}
	default:
		t.Fatal("packet was not forwarded")
	}
}
