package storage

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/gennadis/llmchat/internal/chat"
)

// NewSqliteDB opens the sqlite database at file in WAL mode.
func NewSqliteDB(file string) (*sqlx.DB, error) {
	dsn := file + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", file, err)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)
	return db, nil
}

// Store persists sessions and their messages. It tracks every session it
// inserted or fetched and flushes all of them on Save.
type Store struct {
	db       *sqlx.DB
	sessions *Sessions
	messages *Messages

	mu      sync.Mutex
	tracked map[string]*chat.Session
}

// NewStore creates the schema when missing and returns a ready Store.
func NewStore(ctx context.Context, db *sqlx.DB) (*Store, error) {
	sessions, err := NewSessions(ctx, db)
	if err != nil {
		return nil, err
	}
	messages, err := NewMessages(ctx, db)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:       db,
		sessions: sessions,
		messages: messages,
		tracked:  map[string]*chat.Session{},
	}, nil
}

// Insert writes a new session row and starts tracking it.
func (st *Store) Insert(ctx context.Context, s *chat.Session) error {
	st.mu.Lock()
	st.tracked[s.ID] = s
	st.mu.Unlock()

	return st.withTx(ctx, func(tx *sqlx.Tx) error {
		return st.sessions.Upsert(ctx, tx, s)
	})
}

// Delete removes the session and all of its messages in one transaction.
func (st *Store) Delete(ctx context.Context, s *chat.Session) error {
	st.mu.Lock()
	delete(st.tracked, s.ID)
	st.mu.Unlock()

	err := st.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := st.messages.DeleteBySessionID(ctx, tx, s.ID); err != nil {
			return err
		}
		return st.sessions.Delete(ctx, tx, s.ID)
	})
	if err != nil {
		return err
	}

	slog.Debug("session deleted from storage",
		slog.String("id", s.ID),
		slog.Int("messages", len(s.Messages)),
	)
	return nil
}

// FetchAll loads every session with its messages, most recently updated
// first. Answers left pending by an interrupted run are marked failed.
// The returned sessions replace whatever was tracked before.
func (st *Store) FetchAll(ctx context.Context) ([]*chat.Session, error) {
	sessions, err := st.sessions.Read(ctx)
	if err != nil {
		return nil, err
	}
	bySession, err := st.messages.Read(ctx)
	if err != nil {
		return nil, err
	}

	interrupted := 0
	tracked := make(map[string]*chat.Session, len(sessions))
	for _, s := range sessions {
		s.Messages = bySession[s.ID]
		if s.Messages == nil {
			s.Messages = []*chat.Message{}
		}
		for _, m := range s.Messages {
			if m.IsTransient() {
				_ = m.MarkFailed()
				interrupted++
			}
		}
		tracked[s.ID] = s
	}

	st.mu.Lock()
	st.tracked = tracked
	st.mu.Unlock()

	slog.Debug("sessions fetched",
		slog.Int("count", len(sessions)),
		slog.Int("interrupted", interrupted),
	)
	return sessions, nil
}

// Save writes every tracked session and its messages in one transaction.
// Messages keep their identity across saves, so an answer resolved in
// place updates its existing row.
func (st *Store) Save(ctx context.Context) error {
	st.mu.Lock()
	sessions := make([]*chat.Session, 0, len(st.tracked))
	for _, s := range st.tracked {
		sessions = append(sessions, s)
	}
	st.mu.Unlock()

	return st.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, s := range sessions {
			if err := st.sessions.Upsert(ctx, tx, s); err != nil {
				return err
			}
			if err := st.messages.Sync(ctx, tx, s); err != nil {
				return err
			}
		}
		return nil
	})
}

// Tracked reports the ids of the sessions Save would flush.
func (st *Store) Tracked() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	ids := make([]string, 0, len(st.tracked))
	for id := range st.tracked {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (st *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := st.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
