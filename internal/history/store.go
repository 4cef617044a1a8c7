// Package history mirrors the conversation list and finalized messages into
// a local SQLite database so they are readable when the server is not.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wilbur182/datachat/internal/conversation"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		is_pinned INTEGER NOT NULL DEFAULT 0,
		dataset_count INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL,
		updated_at_ns INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		reasoning TEXT NOT NULL DEFAULT '',
		sql_executions TEXT,
		created_at_ns INTEGER NOT NULL,
		PRIMARY KEY (conversation_id, id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation_position ON messages(conversation_id, position);`,
}

// Store is a SQLite-backed history mirror.
type Store struct {
	path string
	db   *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("datachat: history: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("datachat: history: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000;")
	_, _ = db.Exec("PRAGMA journal_mode = WAL;")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL;")

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("datachat: history: migrate: %w", err)
		}
	}

	return &Store{path: path, db: db}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveConversations replaces the mirrored list with convs, keeping order.
func (s *Store) SaveConversations(ctx context.Context, convs []conversation.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("datachat: history: save conversations: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return fmt.Errorf("datachat: history: save conversations: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO conversations
		(id, title, is_pinned, dataset_count, position, updated_at_ns)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("datachat: history: save conversations: %w", err)
	}
	defer stmt.Close()

	for i, c := range convs {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Title, c.IsPinned, c.DatasetCount, i, toNanos(c.UpdatedAt)); err != nil {
			return fmt.Errorf("datachat: history: save conversation %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// LoadConversations returns the mirrored list in saved order.
func (s *Store) LoadConversations(ctx context.Context) ([]conversation.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, is_pinned, dataset_count, updated_at_ns
		FROM conversations ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("datachat: history: load conversations: %w", err)
	}
	defer rows.Close()

	var out []conversation.Conversation
	for rows.Next() {
		var (
			c       conversation.Conversation
			updated int64
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.IsPinned, &c.DatasetCount, &updated); err != nil {
			return nil, fmt.Errorf("datachat: history: load conversations: %w", err)
		}
		c.UpdatedAt = fromNanos(updated)
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveMessages replaces the mirrored history of conversationID.
func (s *Store) SaveMessages(ctx context.Context, conversationID string, msgs []conversation.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("datachat: history: save messages: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("datachat: history: save messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO messages
		(id, conversation_id, position, role, content, reasoning, sql_executions, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("datachat: history: save messages: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		var traces sql.NullString
		if len(m.SQLExecutions) > 0 {
			data, err := json.Marshal(m.SQLExecutions)
			if err != nil {
				return fmt.Errorf("datachat: history: encode traces of %s: %w", m.ID, err)
			}
			traces = sql.NullString{String: string(data), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, m.ID, conversationID, i, string(m.Role), m.Content, m.Reasoning, traces, toNanos(m.CreatedAt)); err != nil {
			return fmt.Errorf("datachat: history: save message %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// LoadMessages returns the mirrored history of conversationID in order.
func (s *Store) LoadMessages(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, role, content, reasoning, sql_executions, created_at_ns
		FROM messages WHERE conversation_id = ? ORDER BY position`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("datachat: history: load messages: %w", err)
	}
	defer rows.Close()

	var out []conversation.Message
	for rows.Next() {
		var (
			m       conversation.Message
			role    string
			traces  sql.NullString
			created int64
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.Reasoning, &traces, &created); err != nil {
			return nil, fmt.Errorf("datachat: history: load messages: %w", err)
		}
		m.Role = conversation.Role(role)
		m.CreatedAt = fromNanos(created)
		if traces.Valid && traces.String != "" {
			if err := json.Unmarshal([]byte(traces.String), &m.SQLExecutions); err != nil {
				return nil, fmt.Errorf("datachat: history: decode traces of %s: %w", m.ID, err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("datachat: history: missing conversation id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("datachat: history: delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("datachat: history: delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("datachat: history: delete: %w", err)
	}
	return tx.Commit()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
