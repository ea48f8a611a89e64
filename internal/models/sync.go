package models

import (
	"encoding/json"
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// IsValidRole checks if a message role is recognized
func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}

// Chat represents chat metadata owned by a user. The chat identifier is
// chosen by the client so offline devices can create chats independently.
type Chat struct {
	TgID      int64     `json:"tg_id" db:"tg_id"`
	ChatID    string    `json:"chat_id" db:"chat_id"`
	Title     string    `json:"title" db:"title"`
	Emoji     string    `json:"emoji,omitempty" db:"emoji"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Message represents a single chat message. MsgID is a client-generated
// identifier; when absent the row is never deduplicated on resubmission.
type Message struct {
	ID        string    `json:"-" db:"id"`
	TgID      int64     `json:"tg_id" db:"tg_id"`
	MsgID     string    `json:"msg_id,omitempty" db:"msg_id"`
	ChatID    string    `json:"chat_id" db:"chat_id"`
	Role      string    `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Mergeable reports whether a pushed message row is structurally acceptable.
// Rejected rows are dropped from the merge, not errored.
func (m *Message) Mergeable() bool {
	return m.ChatID != "" && IsValidRole(m.Role) && m.Content != ""
}

// TaskState is the single opaque task-state document per user. The server
// persists and returns it but never interprets the contents.
type TaskState struct {
	TgID      int64           `json:"tg_id" db:"tg_id"`
	Doc       json.RawMessage `json:"doc" db:"doc"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// DefaultTaskStateDoc is returned when a user has never pushed a document.
var DefaultTaskStateDoc = json.RawMessage(`{"groups":[]}`)
