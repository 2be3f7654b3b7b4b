package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEmptyEdit is returned when an edit would leave the message blank.
	// The edit stays open and the content is unchanged.
	ErrEmptyEdit = errors.New("edited content is empty")

	// ErrNotEditing is returned when committing or cancelling a message
	// that is not being edited.
	ErrNotEditing = errors.New("message is not being edited")
)

// TransitionError reports a status change the lifecycle does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	from := string(e.From)
	if from == "" {
		from = "new"
	}
	return fmt.Sprintf("invalid message transition %s -> %s", from, e.To)
}

// allowed lists the statuses each status may move to. A failed message
// never goes back to sending: resending creates a new message.
var allowed = map[Status][]Status{
	"":                 {StatusSending},
	StatusSending:      {StatusSent, StatusFailed},
	StatusSent:         {StatusRegenerating},
	StatusFailed:       {StatusRegenerating},
	StatusRegenerating: {StatusSent, StatusFailed},
}

func (m *Message) transition(to Status) error {
	for _, next := range allowed[m.Status] {
		if next == to {
			m.Status = to
			return nil
		}
	}
	return &TransitionError{From: m.Status, To: to}
}

// MarkSending moves a new message into sending.
func (m *Message) MarkSending() error {
	return m.transition(StatusSending)
}

// MarkSent resolves a pending message with its final content.
func (m *Message) MarkSent(content string) error {
	if err := m.transition(StatusSent); err != nil {
		return err
	}
	m.Content = content
	return nil
}

// MarkFailed resolves a pending message as failed. Content is kept as is.
func (m *Message) MarkFailed() error {
	return m.transition(StatusFailed)
}

// MarkRegenerating clears a settled answer so it can be produced again.
func (m *Message) MarkRegenerating() error {
	if err := m.transition(StatusRegenerating); err != nil {
		return err
	}
	m.Content = ""
	m.Tokens = 0
	return nil
}

// StartEditing enters edit mode and snapshots the current content.
// Calling it again while editing keeps the original snapshot.
func (m *Message) StartEditing() {
	if m.Editing {
		return
	}
	snapshot := m.Content
	m.EditSnapshot = &snapshot
	m.Editing = true
}

// CommitEdit replaces the content with the trimmed newContent and leaves
// edit mode. Whitespace-only content is rejected with ErrEmptyEdit.
func (m *Message) CommitEdit(newContent string, now time.Time) error {
	if !m.Editing {
		return ErrNotEditing
	}
	trimmed := strings.TrimSpace(newContent)
	if trimmed == "" {
		return ErrEmptyEdit
	}
	m.Content = trimmed
	m.Editing = false
	m.EditSnapshot = nil
	m.EditedAt = &now
	return nil
}

// CancelEdit restores the content captured by StartEditing.
func (m *Message) CancelEdit() error {
	if !m.Editing {
		return ErrNotEditing
	}
	if m.EditSnapshot != nil {
		m.Content = *m.EditSnapshot
	}
	m.Editing = false
	m.EditSnapshot = nil
	return nil
}
