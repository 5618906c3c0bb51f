package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// MessageType identifies who authored a persisted message.
type MessageType string

const (
	MessageTypeUser MessageType = "user"
	MessageTypeBot  MessageType = "bot"
)

// Session is a persisted conversation between one user and the assistant.
// UserID never changes after creation.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one turn's content inside a session.
type Message struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"-"`
	Type       MessageType `json:"message_type"`
	Text       string      `json:"text"`
	CreatedAt  time.Time   `json:"timestamp"`
	PainScale  *int        `json:"pain_scale,omitempty"`
	AIProvider string      `json:"ai_provider,omitempty"`
}
