package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gennadis/llmchat/internal/chat"
)

// Sessions is a storage for sessions
type Sessions struct {
	db *sqlx.DB
}

type sessionRow struct {
	ID        string `db:"id"`
	Title     string `db:"title"`
	ModelID   string `db:"model_id"`
	Active    bool   `db:"active"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

// NewSessions creates the sessions table if needed.
func NewSessions(ctx context.Context, db *sqlx.DB) (*Sessions, error) {
	createSessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		model_id   TEXT NOT NULL,
		active     INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
	`
	if _, err := db.ExecContext(ctx, createSessionsTable); err != nil {
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	return &Sessions{db: db}, nil
}

// Read returns all sessions, most recently updated first, without messages.
func (s *Sessions) Read(ctx context.Context) ([]*chat.Session, error) {
	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, title, model_id, active, created_at, updated_at FROM sessions ORDER BY updated_at DESC, created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to get sessions: %w", err)
	}

	sessions := make([]*chat.Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, &chat.Session{
			ID:        r.ID,
			Title:     r.Title,
			ModelID:   r.ModelID,
			Active:    r.Active,
			CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
			UpdatedAt: time.Unix(0, r.UpdatedAt).UTC(),
		})
	}

	slog.Debug("read sessions",
		slog.Int("count", len(sessions)),
	)
	return sessions, nil
}

// Upsert writes the session row, updating it when it already exists.
func (s *Sessions) Upsert(ctx context.Context, tx *sqlx.Tx, session *chat.Session) error {
	row := sessionRow{
		ID:        session.ID,
		Title:     session.Title,
		ModelID:   session.ModelID,
		Active:    session.Active,
		CreatedAt: session.CreatedAt.UnixNano(),
		UpdatedAt: session.UpdatedAt.UnixNano(),
	}
	query := `
	INSERT INTO sessions (id, title, model_id, active, created_at, updated_at)
	VALUES (:id, :title, :model_id, :active, :created_at, :updated_at)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		model_id = excluded.model_id,
		active = excluded.active,
		updated_at = excluded.updated_at
	`
	if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", session.ID, err)
	}
	return nil
}

// Delete deletes the given session by id
func (s *Sessions) Delete(ctx context.Context, tx *sqlx.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session by id %s: %w", id, err)
	}
	return nil
}
