package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"turnkit/core"
)

// stepClock hands out strictly increasing instants so records written by
// different store instances still sort by append order.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) NowUTC() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, KeySize)
}

func newTestStore(t *testing.T, dir string, key []byte, clock core.Clock) *FileStore {
	t.Helper()
	s, err := NewFileStore(Config{RootDir: dir, Key: key}, core.NewDiscardLogger(), clock)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func userMessage(text string, at time.Time) core.ChatMessage {
	return core.NewChatMessage(core.ChatRoleUser, text, at)
}

func TestNewFileStore_RejectsBadConfig(t *testing.T) {
	if _, err := NewFileStore(Config{}, core.NewDiscardLogger(), nil); err == nil {
		t.Fatal("expected error for empty root dir")
	}
	if _, err := NewFileStore(Config{RootDir: t.TempDir(), Key: []byte("short")}, core.NewDiscardLogger(), nil); err == nil {
		t.Fatal("expected error for undersized key")
	}
}

func TestFileStore_PlaintextRoundTrip(t *testing.T) {
	s := newTestStore(t, t.TempDir(), nil, newStepClock())
	ctx := context.Background()

	at := time.Date(2025, 6, 1, 10, 30, 0, 123456789, time.UTC)
	msgs := []core.ChatMessage{
		core.NewChatMessage(core.ChatRoleSystem, "You are concise.", at),
		userMessage("hello there", at.Add(time.Second)),
		core.NewChatMessage(core.ChatRoleAssistant, "Hi. How can I help?", at.Add(2*time.Second)).
			WithMetadata(map[string]string{"model": "gpt-4o-mini"}),
	}
	for _, msg := range msgs {
		if err := s.Append(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ReadTail(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(msgs) {
		t.Fatalf("expected %d messages, got %d", len(msgs), len(got))
	}
	for i, want := range msgs {
		if got[i].Role != want.Role || got[i].Content != want.Content {
			t.Fatalf("message %d mismatch: got %+v want %+v", i, got[i], want)
		}
		if !got[i].TimestampUTC.Equal(want.TimestampUTC) {
			t.Fatalf("message %d timestamp drifted: got %v want %v", i, got[i].TimestampUTC, want.TimestampUTC)
		}
	}
	if got[2].Metadata["model"] != "gpt-4o-mini" {
		t.Fatalf("metadata lost: %+v", got[2].Metadata)
	}
}

func TestFileStore_EncryptedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	clock := newStepClock()
	s := newTestStore(t, dir, testKey(0xA1), clock)
	ctx := context.Background()

	if !s.Encrypted() {
		t.Fatal("store with key must report encrypted")
	}
	if err := s.Append(ctx, userMessage("secret plans", clock.NowUTC())); err != nil {
		t.Fatal(err)
	}

	// Ciphertext must not leak the content.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one record file, got %d", len(entries))
	}
	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("secret plans")) {
		t.Fatal("plaintext content visible in sealed record")
	}

	got, err := s.ReadTail(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "secret plans" {
		t.Fatalf("round trip failed: %+v", got)
	}
}

func TestFileStore_ReadTailReturnsLastNOldestFirst(t *testing.T) {
	clock := newStepClock()
	s := newTestStore(t, t.TempDir(), nil, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.Append(ctx, userMessage("msg-"+strconv.Itoa(i), clock.NowUTC())); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ReadTail(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Content != "msg-3" || got[1].Content != "msg-4" {
		t.Fatalf("wrong tail order: %q, %q", got[0].Content, got[1].Content)
	}

	if got, err := s.ReadTail(ctx, 0); err != nil || got != nil {
		t.Fatalf("n=0 should return nothing, got %v, %v", got, err)
	}
}

func TestFileStore_MixedKeyDirectory(t *testing.T) {
	dir := t.TempDir()
	clock := newStepClock()
	plain := newTestStore(t, dir, nil, clock)
	known := newTestStore(t, dir, testKey(0x11), clock)
	other := newTestStore(t, dir, testKey(0x22), clock)
	ctx := context.Background()

	writers := []struct {
		store *FileStore
		text  string
	}{
		{plain, "plain-1"},
		{known, "known-1"},
		{other, "other-1"},
		{plain, "plain-2"},
		{known, "known-2"},
		{other, "other-2"},
	}
	for _, w := range writers {
		if err := w.store.Append(ctx, userMessage(w.text, clock.NowUTC())); err != nil {
			t.Fatal(err)
		}
	}

	got, err := known.ReadTail(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"plain-1", "known-1", "plain-2", "known-2"}
	if len(got) != len(want) {
		t.Fatalf("expected %d readable messages, got %d", len(want), len(got))
	}
	for i, text := range want {
		if got[i].Content != text {
			t.Fatalf("position %d: got %q want %q", i, got[i].Content, text)
		}
	}

	// A reader without any key sees only the plaintext records.
	unkeyed, err := plain.ReadTail(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(unkeyed) != 2 || unkeyed[0].Content != "plain-1" || unkeyed[1].Content != "plain-2" {
		t.Fatalf("unkeyed reader saw wrong records: %+v", unkeyed)
	}
}

func TestFileStore_CorruptRecordsAreSkipped(t *testing.T) {
	dir := t.TempDir()
	clock := newStepClock()
	s := newTestStore(t, dir, nil, clock)
	ctx := context.Background()

	if err := s.Append(ctx, userMessage("good", clock.NowUTC())); err != nil {
		t.Fatal(err)
	}
	// Garbage that sorts after the good record.
	if err := os.WriteFile(filepath.Join(dir, "99999999999999999999-00000001-deadbeef.msg"), []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	// Valid JSON, unknown algorithm.
	if err := os.WriteFile(filepath.Join(dir, "99999999999999999999-00000002-deadbeef.msg"), []byte(`{"alg":"ROT13","payload":"aGk="}`), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadTail(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "good" {
		t.Fatalf("expected only the intact record, got %+v", got)
	}
}

func TestFileStore_CancelledAppendLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir, nil, newStepClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Append(ctx, userMessage("never lands", time.Now().UTC())); err == nil {
		t.Fatal("expected error for cancelled append")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("cancelled append left %d files behind", len(entries))
	}

	got, err := s.ReadTail(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("cancelled append became visible: %+v", got)
	}
}

func TestFileStore_EmptyDirectory(t *testing.T) {
	s := newTestStore(t, t.TempDir(), nil, nil)
	got, err := s.ReadTail(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty tail, got %+v", got)
	}
}
