// Package conversation drives a chat: it appends user messages, creates
// assistant placeholders and resolves them with a Responder.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gennadis/llmchat/internal/chat"
	"github.com/gennadis/llmchat/internal/client"
	"github.com/gennadis/llmchat/internal/session"
)

var (
	// ErrBusy is returned while another answer is in flight.
	ErrBusy = errors.New("a response is already in progress")

	ErrEmptyInput          = errors.New("message is empty")
	ErrNothingToRegenerate = errors.New("no assistant answer to regenerate")
	ErrNotFailed           = errors.New("message has not failed")
	ErrUnknownMessage      = errors.New("message does not belong to the session")

	// ErrAwaitingAnswer is returned when editing a message whose answer
	// has not arrived yet.
	ErrAwaitingAnswer = errors.New("message is still awaiting its answer")
)

// ResponseError is returned when a remote call failed. The answer's
// placeholder has already been marked failed.
type ResponseError struct {
	Message *chat.Message
	Err     error
}

func (e *ResponseError) Error() string {
	return client.Describe(e.Err)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// Orchestrator turns user input into messages and answers.
type Orchestrator struct {
	manager   *session.Manager
	responder Responder
	now       func() time.Time

	loading atomic.Bool
}

func NewOrchestrator(manager *session.Manager, responder Responder) *Orchestrator {
	return &Orchestrator{
		manager:   manager,
		responder: responder,
		now:       time.Now,
	}
}

// Loading reports whether an answer is in flight.
func (o *Orchestrator) Loading() bool {
	return o.loading.Load()
}

// CanSend reports whether input could be submitted now.
func (o *Orchestrator) CanSend(input string) bool {
	return strings.TrimSpace(input) != "" && !o.Loading()
}

// CanRegenerate reports whether the last answer of s could be regenerated now.
func (o *Orchestrator) CanRegenerate(s *chat.Session) bool {
	if s == nil || o.Loading() {
		return false
	}
	ok := false
	o.manager.View(func([]*chat.Session, *chat.Session) {
		ok = regenerable(s) != nil
	})
	return ok
}

func regenerable(s *chat.Session) *chat.Message {
	last := s.Last()
	if last == nil || last.Sender != chat.SenderAssistant || last.IsTransient() {
		return nil
	}
	return last
}

// Submit sends input as a user message of s and waits for the answer. A
// nil s starts a new session with the selected model. The session used is
// returned even when the answer failed.
//
// The call is not cancelled when another session is selected; only ctx
// cancels it, which resolves the answer as failed.
func (o *Orchestrator) Submit(ctx context.Context, s *chat.Session, input string) (*chat.Session, error) {
	if !o.loading.CompareAndSwap(false, true) {
		return s, ErrBusy
	}
	defer o.loading.Store(false)

	if s == nil {
		s = o.manager.CreateSession(ctx, "")
	}

	content := strings.TrimSpace(input)
	if content == "" {
		return s, ErrEmptyInput
	}

	err := o.manager.Update(ctx, s, func(s *chat.Session) error {
		s.Append(chat.NewUserMessage(content, o.now()))
		return nil
	})
	if err != nil {
		return s, err
	}

	var (
		placeholder *chat.Message
		modelID     string
		history     []client.ChatMessage
	)
	err = o.manager.Update(ctx, s, func(s *chat.Session) error {
		placeholder = chat.NewPlaceholder(o.now())
		s.Append(placeholder)
		modelID = s.ModelID
		history = toChatMessages(s.History(placeholder))
		return nil
	})
	if err != nil {
		return s, err
	}

	return s, o.resolve(ctx, s, placeholder, modelID, history)
}

// Regenerate produces the last answer of s again, in place.
func (o *Orchestrator) Regenerate(ctx context.Context, s *chat.Session) error {
	if !o.loading.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer o.loading.Store(false)
	if s == nil {
		return ErrNothingToRegenerate
	}

	var (
		target  *chat.Message
		modelID string
		history []client.ChatMessage
	)
	err := o.manager.Update(ctx, s, func(s *chat.Session) error {
		target = regenerable(s)
		if target == nil {
			return ErrNothingToRegenerate
		}
		if target.Editing {
			_ = target.CancelEdit()
		}
		if err := target.MarkRegenerating(); err != nil {
			return err
		}
		modelID = s.ModelID
		history = toChatMessages(s.History(target))
		return nil
	})
	if err != nil {
		return err
	}

	return o.resolve(ctx, s, target, modelID, history)
}

// Resend submits the prompt behind a failed message again as a new user
// message. The failed message stays where it is.
func (o *Orchestrator) Resend(ctx context.Context, s *chat.Session, failed *chat.Message) error {
	if s == nil || failed == nil {
		return ErrUnknownMessage
	}
	var (
		content string
		err     error
	)
	o.manager.View(func([]*chat.Session, *chat.Session) {
		switch {
		case s.Message(failed.ID) != failed:
			err = ErrUnknownMessage
		case failed.Status != chat.StatusFailed:
			err = ErrNotFailed
		default:
			if prompt := s.PromptFor(failed); prompt != nil {
				content = prompt.Content
			}
		}
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return ErrEmptyInput
	}

	_, err = o.Submit(ctx, s, content)
	return err
}

// LastFailed returns the most recent failed message of s, or nil.
func (o *Orchestrator) LastFailed(s *chat.Session) *chat.Message {
	if s == nil {
		return nil
	}
	var failed *chat.Message
	o.manager.View(func([]*chat.Session, *chat.Session) {
		for i := len(s.Messages) - 1; i >= 0; i-- {
			if s.Messages[i].Status == chat.StatusFailed {
				failed = s.Messages[i]
				return
			}
		}
	})
	return failed
}

// resolve asks the responder for an answer and settles target with it.
func (o *Orchestrator) resolve(ctx context.Context, s *chat.Session, target *chat.Message, modelID string, history []client.ChatMessage) error {
	started := o.now()
	reply, callErr := o.responder.Respond(ctx, modelID, history)

	// The answer is persisted even when ctx was cancelled.
	persistCtx := context.WithoutCancel(ctx)
	err := o.manager.Update(persistCtx, s, func(*chat.Session) error {
		if callErr != nil {
			return target.MarkFailed()
		}
		if err := target.MarkSent(reply.Content); err != nil {
			return err
		}
		target.Tokens = reply.Tokens
		return nil
	})
	if err != nil {
		slog.Error("Failed to resolve answer", "error", err, slog.String("message_id", target.ID))
		return err
	}

	if callErr != nil {
		slog.Error("Failed to get answer", "error", callErr,
			slog.String("session_id", s.ID),
			slog.String("model", modelID),
		)
		return &ResponseError{Message: target, Err: callErr}
	}

	slog.Debug("answer received",
		slog.String("session_id", s.ID),
		slog.String("message_id", target.ID),
		slog.Int("tokens", reply.Tokens),
		slog.Duration("elapsed", o.now().Sub(started)),
	)
	return nil
}

// StartEdit puts m into edit mode, cancelling any other edit in s. A
// message still waiting for its answer cannot be edited.
func (o *Orchestrator) StartEdit(ctx context.Context, s *chat.Session, m *chat.Message) error {
	if s == nil || m == nil {
		return ErrUnknownMessage
	}
	return o.manager.Apply(ctx, s, func(s *chat.Session) error {
		if s.Message(m.ID) != m {
			return ErrUnknownMessage
		}
		if m.IsTransient() {
			return ErrAwaitingAnswer
		}
		for _, other := range s.Messages {
			if other != m && other.Editing {
				_ = other.CancelEdit()
			}
		}
		m.StartEditing()
		return nil
	})
}

// CommitEdit replaces the content of m. Blank content is rejected with
// chat.ErrEmptyEdit and the edit stays open.
func (o *Orchestrator) CommitEdit(ctx context.Context, s *chat.Session, m *chat.Message, content string) error {
	if s == nil || m == nil {
		return ErrUnknownMessage
	}
	return o.manager.Update(ctx, s, func(s *chat.Session) error {
		if s.Message(m.ID) != m {
			return ErrUnknownMessage
		}
		return m.CommitEdit(content, o.now())
	})
}

// CancelEdit restores m to its content before editing.
func (o *Orchestrator) CancelEdit(ctx context.Context, s *chat.Session, m *chat.Message) error {
	if s == nil || m == nil {
		return ErrUnknownMessage
	}
	return o.manager.Apply(ctx, s, func(s *chat.Session) error {
		if s.Message(m.ID) != m {
			return ErrUnknownMessage
		}
		return m.CancelEdit()
	})
}
