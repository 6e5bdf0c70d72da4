package core

import "time"

type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one conversation entry. It is a value type constructed once
// and never mutated afterwards; any "update" is a new value. Metadata is an
// optional free-form string mapping (e.g. transcript sequence, session id).
type ChatMessage struct {
	Role         ChatRole
	Content      string
	TimestampUTC time.Time
	Metadata     map[string]string
}

// NewChatMessage builds a message stamped with the given instant.
func NewChatMessage(role ChatRole, content string, at time.Time) ChatMessage {
	return ChatMessage{
		Role:         role,
		Content:      content,
		TimestampUTC: at.UTC(),
	}
}

// WithMetadata returns a copy of the message carrying the given metadata.
func (m ChatMessage) WithMetadata(meta map[string]string) ChatMessage {
	copied := make(map[string]string, len(meta))
	for k, v := range meta {
		copied[k] = v
	}
	m.Metadata = copied
	return m
}
