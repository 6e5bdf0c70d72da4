package store

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"turnkit/core"
)

// Algorithm tags written into each on-disk envelope.
const (
	AlgorithmPlaintext = "PLAINTEXT"
	AlgorithmAESGCM    = "AES256-GCM"
)

// envelope is the self-describing on-disk unit wrapping exactly one message.
// Envelopes are independently decodable: a corrupt or undecryptable record is
// skipped by the read path, never fatal to a scan. Byte-slice fields are
// base64 in the JSON encoding.
type envelope struct {
	Alg     string `json:"alg"`
	Nonce   []byte `json:"nonce,omitempty"`
	Tag     []byte `json:"tag,omitempty"`
	Payload []byte `json:"payload"`
}

// chatMessageRecord is the serialized ChatMessage payload inside an envelope.
type chatMessageRecord struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Timestamp string            `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func encodePayload(msg core.ChatMessage) ([]byte, error) {
	rec := chatMessageRecord{
		Role:      string(msg.Role),
		Content:   msg.Content,
		Timestamp: msg.TimestampUTC.UTC().Format(time.RFC3339Nano),
		Metadata:  msg.Metadata,
	}
	data, err := sonic.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("store: marshal message payload: %w", err)
	}
	return data, nil
}

func decodePayload(data []byte) (core.ChatMessage, error) {
	var rec chatMessageRecord
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return core.ChatMessage{}, fmt.Errorf("store: unmarshal message payload: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
	if err != nil {
		return core.ChatMessage{}, fmt.Errorf("store: parse message timestamp %q: %w", rec.Timestamp, err)
	}
	return core.ChatMessage{
		Role:         core.ChatRole(rec.Role),
		Content:      rec.Content,
		TimestampUTC: ts.UTC(),
		Metadata:     rec.Metadata,
	}, nil
}

func encodeEnvelope(env envelope) ([]byte, error) {
	data, err := sonic.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("store: marshal envelope: %w", err)
	}
	return data, nil
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("store: unmarshal envelope: %w", err)
	}
	if env.Alg == "" {
		return envelope{}, fmt.Errorf("store: envelope missing algorithm tag")
	}
	return env, nil
}
