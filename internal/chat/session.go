package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session represents a chat session
type Session struct {
	ID        string    `db:"id"`
	Title     string    `db:"title"`
	ModelID   string    `db:"model_id"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	// Messages are owned by the session, in chronological order.
	Messages []*Message `db:"-"`
}

// NewSession creates a new Session instance
func NewSession(modelID string, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		ModelID:   modelID,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []*Message{},
	}
}

// Touch bumps UpdatedAt, never moving it before CreatedAt.
func (s *Session) Touch(now time.Time) {
	if now.Before(s.CreatedAt) {
		now = s.CreatedAt
	}
	s.UpdatedAt = now
}

// IsEmpty reports whether the session has no messages.
func (s *Session) IsEmpty() bool {
	return len(s.Messages) == 0
}

// Append adds m to the end of the session. The first user message names
// a session that still carries the default title.
func (s *Session) Append(m *Message) {
	m.SessionID = s.ID
	s.Messages = append(s.Messages, m)

	if m.Sender == SenderUser && s.Title == DefaultTitle {
		if title := TitleFrom(m.Content); title != "" {
			s.Title = title
		}
	}
}

// Message returns the message with the given id, or nil.
func (s *Session) Message(id string) *Message {
	for _, m := range s.Messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Last returns the latest message, or nil for an empty session.
func (s *Session) Last() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// LastAssistant returns the latest assistant message, or nil.
func (s *Session) LastAssistant() *Message {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Sender == SenderAssistant {
			return s.Messages[i]
		}
	}
	return nil
}

// PromptFor returns the user message that m answers. For a user message
// that is m itself.
func (s *Session) PromptFor(m *Message) *Message {
	if m.Sender == SenderUser {
		return m
	}
	idx := -1
	for i, candidate := range s.Messages {
		if candidate.ID == m.ID {
			idx = i
			break
		}
	}
	for i := idx - 1; i >= 0; i-- {
		if s.Messages[i].Sender == SenderUser {
			return s.Messages[i]
		}
	}
	return nil
}

// History returns the stable messages preceding upTo, the context sent
// to a provider when answering upTo. Transient and failed messages are
// left out, and so is a prompt whose answer failed: a resend repeats it
// as a new message.
func (s *Session) History(upTo *Message) []*Message {
	history := make([]*Message, 0, len(s.Messages))
	for i, m := range s.Messages {
		if upTo != nil && m.ID == upTo.ID {
			break
		}
		if m.Status != StatusSent || strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.Sender == SenderUser && i+1 < len(s.Messages) {
			next := s.Messages[i+1]
			if next.Sender == SenderAssistant && next.Status == StatusFailed && (upTo == nil || next.ID != upTo.ID) {
				continue
			}
		}
		history = append(history, m)
	}
	return history
}

// TitleFrom derives a session title from message content: the first
// non-blank line, truncated.
func TitleFrom(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		runes := []rune(line)
		if len(runes) > titleMaxRunes {
			return string(runes[:titleMaxRunes-3]) + "..."
		}
		return line
	}
	return ""
}
