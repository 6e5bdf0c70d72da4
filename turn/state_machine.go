package turn

import (
	"strings"
	"sync"
	"time"

	"turnkit/core"
)

// Mode is the state machine's conversation state. Exactly one is active.
type Mode string

const (
	ModeQuiescent  Mode = "quiescent"  // idle, ignoring everything but the wake word
	ModeListening  Mode = "listening"  // actively buffering an utterance
	ModeProcessing Mode = "processing" // a prompt has been emitted; host is querying the model
	ModeSpeaking   Mode = "speaking"   // host is playing synthesized audio back
)

// Observer receives turn-taking notifications. Both callbacks run
// synchronously on the goroutine that triggered the transition; a panic in
// one observer is contained and does not reach the machine or the others.
type Observer interface {
	OnPromptReady(text string)
	OnStateChanged(from, to Mode, reason string, at time.Time)
}

// StateMachine converts a stream of transcription items plus a periodic tick
// into discrete prompt-ready events, suppressing input while the host is
// querying the model or playing audio back.
//
// A single mutex serializes transcription handling, ticks, and host calls;
// transitions touch several fields and must be atomic as a group. Observers
// are notified after the state is settled, outside the critical section.
type StateMachine struct {
	cfg    Config
	logger *core.Logger
	clock  core.Clock

	mu                 sync.Mutex
	mode               Mode
	modeEnteredAt      time.Time
	listeningStartedAt time.Time // start of the current listening session
	lastHeardAt        time.Time // wall-clock anchor of the last meaningful utterance
	buffer             []TranscriptionItem
	emitArmed          bool // edge guard: one silence evaluation per burst of speech
	observers          []Observer
}

// NewStateMachine validates cfg and returns a machine in quiescent mode.
func NewStateMachine(cfg Config, logger *core.Logger, clock core.Clock) (*StateMachine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = core.SystemUTC{}
	}
	now := clock.NowUTC()
	return &StateMachine{
		cfg:           cfg,
		logger:        logger,
		clock:         clock,
		mode:          ModeQuiescent,
		modeEnteredAt: now,
	}, nil
}

// AddObserver registers an observer for prompt-ready and state-change events.
func (m *StateMachine) AddObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Mode returns the currently active conversation mode.
func (m *StateMachine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// HandleTranscription feeds one recognized segment into the machine.
// Malformed or empty text degrades to "not meaningful"; it never errors.
func (m *StateMachine) HandleTranscription(item TranscriptionItem) {
	m.mu.Lock()
	var pending []func()

	switch m.mode {
	case ModeProcessing, ModeSpeaking:
		// Suppress self-feedback: nothing is buffered and nothing transitions
		// while the model is working or audio is playing.

	case ModeQuiescent:
		if !containsWakeWord(item.Text, m.cfg.WakeWord) {
			break
		}
		now := m.clock.NowUTC()
		pending = append(pending, m.transitionLocked(ModeListening, "wake word detected", now))
		m.listeningStartedAt = now
		m.lastHeardAt = now
		m.emitArmed = true
		if remainder := stripWakeWord(item.Text, m.cfg.WakeWord); remainder != "" && item.IsMeaningful {
			// The wake utterance carried real content; capture it right away.
			// The anchor stays at now, not the item's own timestamp, so the
			// silence timer cannot be short-circuited retroactively.
			captured := item
			captured.Text = remainder
			m.buffer = append(m.buffer, captured)
		}

	case ModeListening:
		if !item.IsMeaningful {
			break
		}
		now := m.clock.NowUTC()
		if len(m.buffer) == 0 {
			// First speech of the session: measure processing silence from
			// actual speech rather than from wake-word detection.
			m.listeningStartedAt = now
		}
		m.lastHeardAt = now
		m.emitArmed = true
		m.buffer = append(m.buffer, item)
		m.logger.With(map[string]any{
			"sequence":   item.Sequence,
			"word_count": item.WordCount,
			"buffered":   len(m.buffer),
		}).Debug("turn: buffered utterance segment")
	}

	m.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// Tick advances the silence timers. It is idempotent and side-effect-free
// whenever the machine is not listening.
func (m *StateMachine) Tick(now time.Time) {
	m.mu.Lock()
	var pending []func()

	if m.mode != ModeListening {
		m.mu.Unlock()
		return
	}

	if m.emitArmed && now.Sub(m.lastHeardAt) >= m.cfg.ProcessingSilence {
		// Edge-triggered: this burst of speech is considered exactly once.
		m.emitArmed = false
		if len(m.buffer) > 0 {
			text := m.joinBufferLocked()
			m.buffer = nil
			pending = append(pending, m.transitionLocked(ModeProcessing, "silence after speech", now))
			pending = append(pending, m.promptReadyLocked(text))
			m.mu.Unlock()
			for _, fn := range pending {
				fn()
			}
			return
		}
		m.logger.Debug("turn: processing silence elapsed with empty buffer")
	}

	if now.Sub(m.listeningStartedAt) >= m.cfg.EndSilence {
		// Extended silence always wins and clears the buffer.
		m.buffer = nil
		m.emitArmed = false
		pending = append(pending, m.transitionLocked(ModeQuiescent, "end silence elapsed", now))
	}

	m.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// BeginSpeaking moves the machine into speaking mode and drops any residual
// buffer. Calling it twice in a row has the same observable effect as once.
func (m *StateMachine) BeginSpeaking() {
	m.mu.Lock()
	if m.mode == ModeSpeaking {
		m.mu.Unlock()
		return
	}
	m.buffer = nil
	m.emitArmed = false
	fn := m.transitionLocked(ModeSpeaking, "audio playback starting", m.clock.NowUTC())
	m.mu.Unlock()
	fn()
}

// EndSpeaking re-enters listening once audio playback has completed.
func (m *StateMachine) EndSpeaking() {
	m.hostResumeLocked(ModeSpeaking, "audio playback completed")
}

// EndProcessing re-enters listening once the model exchange has completed.
func (m *StateMachine) EndProcessing() {
	m.hostResumeLocked(ModeProcessing, "model exchange completed")
}

// hostResumeLocked handles the explicit host transitions back to listening.
// A fresh listening session begins: empty buffer, anchors at now.
func (m *StateMachine) hostResumeLocked(from Mode, reason string) {
	m.mu.Lock()
	if m.mode != from {
		m.mu.Unlock()
		return
	}
	now := m.clock.NowUTC()
	m.buffer = nil
	m.listeningStartedAt = now
	m.lastHeardAt = now
	m.emitArmed = false
	fn := m.transitionLocked(ModeListening, reason, now)
	m.mu.Unlock()
	fn()
}

// transitionLocked records the mode change and returns the deferred observer
// notification. Callers must hold the mutex and run the returned func after
// releasing it.
func (m *StateMachine) transitionLocked(to Mode, reason string, at time.Time) func() {
	from := m.mode
	m.mode = to
	m.modeEnteredAt = at
	observers := append([]Observer(nil), m.observers...)
	m.logger.With(map[string]any{
		"from":   string(from),
		"to":     string(to),
		"reason": reason,
	}).Info("turn: state changed")
	return func() {
		for _, o := range observers {
			m.safeNotify(func() { o.OnStateChanged(from, to, reason, at) })
		}
	}
}

func (m *StateMachine) promptReadyLocked(text string) func() {
	observers := append([]Observer(nil), m.observers...)
	m.logger.With(map[string]any{"chars": len(text)}).Info("turn: prompt ready")
	return func() {
		for _, o := range observers {
			m.safeNotify(func() { o.OnPromptReady(text) })
		}
	}
}

// safeNotify isolates a single observer callback so a misbehaving subscriber
// cannot prevent the others from running or corrupt the machine.
func (m *StateMachine) safeNotify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.With(map[string]any{"panic": r}).Warn("turn: observer panicked")
		}
	}()
	fn()
}

// joinBufferLocked concatenates buffered texts with single spaces, in
// arrival order.
func (m *StateMachine) joinBufferLocked() string {
	parts := make([]string, len(m.buffer))
	for i, item := range m.buffer {
		parts[i] = item.Text
	}
	return strings.Join(parts, " ")
}

func containsWakeWord(text, wakeWord string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(wakeWord))
}

// stripWakeWord removes the first case-insensitive occurrence of the wake
// word and trims leading punctuation from what remains.
func stripWakeWord(text, wakeWord string) string {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, strings.ToLower(wakeWord))
	if idx < 0 {
		return strings.TrimSpace(text)
	}
	remainder := text[:idx] + text[idx+len(wakeWord):]
	remainder = strings.TrimSpace(remainder)
	remainder = strings.TrimLeft(remainder, ",.!?;:")
	return strings.TrimSpace(remainder)
}
