package session

import (
	"context"

	"github.com/gennadis/llmchat/internal/chat"
)

// Store is the persistence capability the manager works through.
type Store interface {
	// Insert starts tracking a new session.
	Insert(ctx context.Context, s *chat.Session) error
	// Delete removes a session together with its messages in one atomic
	// operation.
	Delete(ctx context.Context, s *chat.Session) error
	// FetchAll returns every stored session, most recently updated first,
	// with messages in chronological order.
	FetchAll(ctx context.Context) ([]*chat.Session, error)
	// Save flushes the tracked sessions and their messages.
	Save(ctx context.Context) error
}
