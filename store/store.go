package store

import (
	"context"
	"crypto/cipher"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"turnkit/core"
)

const recordSuffix = ".msg"

// Config holds construction parameters for a FileStore.
type Config struct {
	// RootDir is the directory the store exclusively owns. Created if absent.
	RootDir string `json:"root_dir"`
	// Key is the optional AES-256 key. Nil means records are written as
	// plaintext envelopes. Reads always accept both: records sealed under a
	// different key are skipped, not errors.
	Key []byte `json:"-"`
}

// FileStore is an append-only conversation log: one envelope file per
// message, filenames sorted by append order, write-then-rename visibility.
// Multiple writers are tolerated since appends never touch existing files.
type FileStore struct {
	cfg    Config
	aead   cipher.AEAD // nil when no key is configured
	logger *core.Logger
	clock  core.Clock

	mu  sync.Mutex
	seq uint64 // in-process tie-breaker for same-nanosecond appends
}

// NewFileStore creates the root directory and validates the key, if any.
func NewFileStore(cfg Config, logger *core.Logger, clock core.Clock) (*FileStore, error) {
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("store: root directory must not be empty")
	}
	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir %q: %w", cfg.RootDir, err)
	}
	var aead cipher.AEAD
	if cfg.Key != nil {
		var err error
		if aead, err = newAEAD(cfg.Key); err != nil {
			return nil, err
		}
	}
	if clock == nil {
		clock = core.SystemUTC{}
	}
	return &FileStore{
		cfg:    cfg,
		aead:   aead,
		logger: logger,
		clock:  clock,
	}, nil
}

// Encrypted reports whether appends are sealed with a key.
func (s *FileStore) Encrypted() bool {
	return s.aead != nil
}

// Append serializes the message into a new envelope file. The record becomes
// visible atomically via rename; a cancelled or failed append leaves nothing
// behind for readers to observe.
func (s *FileStore) Append(ctx context.Context, msg core.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := encodePayload(msg)
	if err != nil {
		return err
	}

	env := envelope{Alg: AlgorithmPlaintext, Payload: payload}
	if s.aead != nil {
		nonce, ciphertext, tag, sealErr := seal(s.aead, payload)
		if sealErr != nil {
			return sealErr
		}
		env = envelope{Alg: AlgorithmAESGCM, Nonce: nonce, Tag: tag, Payload: ciphertext}
	}
	data, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	name := s.nextRecordName()
	tmpPath := filepath.Join(s.cfg.RootDir, "."+name+".tmp")
	finalPath := filepath.Join(s.cfg.RootDir, name)

	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("store: write record: %w", err)
	}
	if err := ctx.Err(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: publish record: %w", err)
	}

	s.logger.With(map[string]any{
		"record": name,
		"role":   string(msg.Role),
		"alg":    env.Alg,
	}).Debug("store: appended message")
	return nil
}

// ReadTail returns the most recent n decodable messages in chronological
// (oldest-first) order. Records that cannot be decoded or decrypted with the
// configured key contribute nothing; only directory- or file-level I/O
// failures are errors.
func (s *FileStore) ReadTail(ctx context.Context, n int) ([]core.ChatMessage, error) {
	if n <= 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(s.cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("store: list records: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		names = append(names, name)
	}
	// Filenames sort with append order; walk newest backward.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	collected := make([]core.ChatMessage, 0, n)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(collected) == n {
			break
		}
		data, err := os.ReadFile(filepath.Join(s.cfg.RootDir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue // renamed away mid-scan
			}
			return nil, fmt.Errorf("store: read record %q: %w", name, err)
		}
		msg, ok := s.decodeRecord(name, data)
		if !ok {
			continue
		}
		collected = append(collected, msg)
	}

	// Reverse to chronological order.
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected, nil
}

// decodeRecord attempts to decode one envelope. All failures are expected
// and recoverable (mixed keys after rotation, partial corruption): they are
// logged at debug level and the record is skipped.
func (s *FileStore) decodeRecord(name string, data []byte) (core.ChatMessage, bool) {
	env, err := decodeEnvelope(data)
	if err != nil {
		s.logger.With(map[string]any{"record": name, "error": err}).Debug("store: skipping undecodable record")
		return core.ChatMessage{}, false
	}

	payload := env.Payload
	switch env.Alg {
	case AlgorithmPlaintext:
		// Decode directly.
	case AlgorithmAESGCM:
		if s.aead == nil {
			s.logger.With(map[string]any{"record": name}).Debug("store: skipping encrypted record, no key configured")
			return core.ChatMessage{}, false
		}
		payload, err = open(s.aead, env.Nonce, env.Payload, env.Tag)
		if err != nil {
			s.logger.With(map[string]any{"record": name, "error": err}).Debug("store: skipping undecryptable record")
			return core.ChatMessage{}, false
		}
	default:
		s.logger.With(map[string]any{"record": name, "alg": env.Alg}).Debug("store: skipping record with unknown algorithm")
		return core.ChatMessage{}, false
	}

	msg, err := decodePayload(payload)
	if err != nil {
		s.logger.With(map[string]any{"record": name, "error": err}).Debug("store: skipping malformed payload")
		return core.ChatMessage{}, false
	}
	return msg, true
}

// nextRecordName builds a filename whose lexical order matches append order:
// zero-padded nanosecond timestamp, an in-process sequence for same-instant
// ties, and a short random suffix against cross-process collisions.
func (s *FileStore) nextRecordName() string {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	return fmt.Sprintf("%020d-%08d-%s%s",
		s.clock.NowUTC().UnixNano(), seq, uuid.New().String()[:8], recordSuffix)
}
