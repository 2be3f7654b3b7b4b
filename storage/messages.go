package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gennadis/llmchat/internal/chat"
)

// Messages is a storage for messages
type Messages struct {
	db *sqlx.DB
}

// messageRow is the flattened form of chat.Message.
type messageRow struct {
	ID             string         `db:"id"`
	SessionID      string         `db:"session_id"`
	Seq            int            `db:"seq"`
	Sender         string         `db:"sender"`
	Content        string         `db:"content"`
	Type           string         `db:"type"`
	Status         string         `db:"status"`
	Timestamp      int64          `db:"timestamp"`
	Editing        bool           `db:"editing"`
	EditSnapshot   sql.NullString `db:"edit_snapshot"`
	EditedAt       sql.NullInt64  `db:"edited_at"`
	AttachmentURL  sql.NullString `db:"attachment_url"`
	AttachmentName sql.NullString `db:"attachment_name"`
	Tokens         int            `db:"tokens"`
}

// NewMessages creates the messages table if needed.
func NewMessages(ctx context.Context, db *sqlx.DB) (*Messages, error) {
	createMessagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		session_id      TEXT NOT NULL,
		seq             INTEGER NOT NULL,
		sender          TEXT NOT NULL,
		content         TEXT NOT NULL,
		type            TEXT NOT NULL,
		status          TEXT NOT NULL,
		timestamp       INTEGER NOT NULL,
		editing         INTEGER NOT NULL DEFAULT 0,
		edit_snapshot   TEXT,
		edited_at       INTEGER,
		attachment_url  TEXT,
		attachment_name TEXT,
		tokens          INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	`
	if _, err := db.ExecContext(ctx, createMessagesTable); err != nil {
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}

	return &Messages{db: db}, nil
}

// Read returns all messages grouped by session id, each group in
// chronological order.
func (m *Messages) Read(ctx context.Context) (map[string][]*chat.Message, error) {
	var rows []messageRow
	err := m.db.SelectContext(ctx, &rows, `
	SELECT id, session_id, seq, sender, content, type, status, timestamp,
		editing, edit_snapshot, edited_at, attachment_url, attachment_name, tokens
	FROM messages ORDER BY session_id, seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	bySession := make(map[string][]*chat.Message)
	for _, r := range rows {
		bySession[r.SessionID] = append(bySession[r.SessionID], r.message())
	}

	slog.Debug("read messages",
		slog.Int("count", len(rows)),
	)
	return bySession, nil
}

// Sync makes the stored messages of session match its in-memory list.
// Existing rows are updated in place and rows no longer present removed.
func (m *Messages) Sync(ctx context.Context, tx *sqlx.Tx, session *chat.Session) error {
	query := `
	INSERT INTO messages (id, session_id, seq, sender, content, type, status, timestamp,
		editing, edit_snapshot, edited_at, attachment_url, attachment_name, tokens)
	VALUES (:id, :session_id, :seq, :sender, :content, :type, :status, :timestamp,
		:editing, :edit_snapshot, :edited_at, :attachment_url, :attachment_name, :tokens)
	ON CONFLICT(id) DO UPDATE SET
		seq = excluded.seq,
		content = excluded.content,
		type = excluded.type,
		status = excluded.status,
		editing = excluded.editing,
		edit_snapshot = excluded.edit_snapshot,
		edited_at = excluded.edited_at,
		attachment_url = excluded.attachment_url,
		attachment_name = excluded.attachment_name,
		tokens = excluded.tokens
	`
	ids := make([]string, 0, len(session.Messages))
	for i, msg := range session.Messages {
		row := newMessageRow(session.ID, i, msg)
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("failed to upsert message %s: %w", msg.ID, err)
		}
		ids = append(ids, msg.ID)
	}

	if len(ids) == 0 {
		return m.DeleteBySessionID(ctx, tx, session.ID)
	}
	stale, args, err := sqlx.In("DELETE FROM messages WHERE session_id = ? AND id NOT IN (?)", session.ID, ids)
	if err != nil {
		return fmt.Errorf("failed to build stale message query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(stale), args...); err != nil {
		return fmt.Errorf("failed to delete stale messages of session %s: %w", session.ID, err)
	}
	return nil
}

// DeleteBySessionID deletes every message of the given session.
func (m *Messages) DeleteBySessionID(ctx context.Context, tx *sqlx.Tx, sessionID string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete messages for session_id %s: %w", sessionID, err)
	}
	return nil
}

func newMessageRow(sessionID string, seq int, msg *chat.Message) messageRow {
	row := messageRow{
		ID:        msg.ID,
		SessionID: sessionID,
		Seq:       seq,
		Sender:    string(msg.Sender),
		Content:   msg.Content,
		Type:      string(msg.Type),
		Status:    string(msg.Status),
		Timestamp: msg.Timestamp.UnixNano(),
		Editing:   msg.Editing,
		Tokens:    msg.Tokens,
	}
	if msg.EditSnapshot != nil {
		row.EditSnapshot = sql.NullString{String: *msg.EditSnapshot, Valid: true}
	}
	if msg.EditedAt != nil {
		row.EditedAt = sql.NullInt64{Int64: msg.EditedAt.UnixNano(), Valid: true}
	}
	if msg.Attachment != nil {
		row.AttachmentURL = sql.NullString{String: msg.Attachment.URL, Valid: true}
		row.AttachmentName = sql.NullString{String: msg.Attachment.Name, Valid: true}
	}
	return row
}

func (r messageRow) message() *chat.Message {
	msg := &chat.Message{
		ID:        r.ID,
		SessionID: r.SessionID,
		Sender:    chat.Sender(r.Sender),
		Content:   r.Content,
		Type:      chat.MessageType(r.Type),
		Status:    chat.Status(r.Status),
		Timestamp: time.Unix(0, r.Timestamp).UTC(),
		Editing:   r.Editing,
		Tokens:    r.Tokens,
	}
	if r.EditSnapshot.Valid {
		snapshot := r.EditSnapshot.String
		msg.EditSnapshot = &snapshot
	}
	if r.EditedAt.Valid {
		editedAt := time.Unix(0, r.EditedAt.Int64).UTC()
		msg.EditedAt = &editedAt
	}
	if r.AttachmentURL.Valid || r.AttachmentName.Valid {
		msg.Attachment = &chat.Attachment{URL: r.AttachmentURL.String, Name: r.AttachmentName.String}
	}
	return msg
}
