package chat

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single entry of a session. Assistant answers are created
// as placeholders and mutated in place, so ID is stable for the whole
// life of the message.
type Message struct {
	ID        string
	SessionID string
	Sender    Sender
	Content   string
	Type      MessageType
	Status    Status
	Timestamp time.Time

	Editing bool
	// EditSnapshot holds the content at the moment editing started.
	EditSnapshot *string
	EditedAt     *time.Time

	Attachment *Attachment

	// Tokens is the total usage reported for an assistant answer.
	Tokens int
}

// NewMessage creates a text message with a fresh identity and no status.
func NewMessage(sender Sender, content string, now time.Time) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Content:   content,
		Type:      TypeText,
		Timestamp: now,
	}
}

// NewUserMessage creates a complete user message.
func NewUserMessage(content string, now time.Time) *Message {
	m := NewMessage(SenderUser, content, now)
	m.Status = StatusSent
	return m
}

// NewPlaceholder creates an empty assistant message awaiting its answer.
func NewPlaceholder(now time.Time) *Message {
	m := NewMessage(SenderAssistant, "", now)
	m.Status = StatusSending
	return m
}

// IsTransient reports whether the message is still waiting for an answer.
func (m *Message) IsTransient() bool {
	return m.Status.Transient()
}
