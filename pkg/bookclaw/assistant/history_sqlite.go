// Package assistant – history_sqlite.go is the durable HistoryStore
// backend. One bookclaw.db file holds the conversation transcripts;
// the whatsapp session database stays separate (managed by whatsmeow).
package assistant

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// historySchema is the DDL executed on every startup (idempotent via
// IF NOT EXISTS).
const historySchema = `
-- Conversation turns (append-only, trimmed to the window on insert).
CREATE TABLE IF NOT EXISTS conversation_turns (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    role            TEXT NOT NULL,
    content         TEXT NOT NULL DEFAULT '',
    tool_calls      TEXT NOT NULL DEFAULT '',
    tool_call_id    TEXT NOT NULL DEFAULT '',
    tool_name       TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversation_turns_cid ON conversation_turns(conversation_id);
`

// SQLiteHistory persists conversation windows in a SQLite database.
type SQLiteHistory struct {
	db    *sql.DB
	limit int
}

// NewSQLiteHistory opens (or creates) the history database at path and
// keeps at most limit turns per conversation. WAL mode is enabled for
// concurrent read performance.
func NewSQLiteHistory(path string, limit int) (*SQLiteHistory, error) {
	if limit <= 0 {
		limit = 20
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteHistory{db: db, limit: limit}, nil
}

// Append inserts a turn and trims rows beyond the window.
func (h *SQLiteHistory) Append(convID string, msg Message) error {
	toolCalls := ""
	if len(msg.ToolCalls) > 0 {
		raw, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("encode tool calls: %w", err)
		}
		toolCalls = string(raw)
	}

	_, err := h.db.Exec(`
		INSERT INTO conversation_turns
			(conversation_id, role, content, tool_calls, tool_call_id, tool_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		convID, msg.Role, msg.Content, toolCalls, msg.ToolCallID, msg.Name,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	_, err = h.db.Exec(`
		DELETE FROM conversation_turns
		WHERE conversation_id = ? AND id NOT IN (
			SELECT id FROM conversation_turns
			WHERE conversation_id = ?
			ORDER BY id DESC LIMIT ?
		)`,
		convID, convID, h.limit,
	)
	if err != nil {
		return fmt.Errorf("trim turns: %w", err)
	}
	return nil
}

// Read returns the conversation window, oldest first.
func (h *SQLiteHistory) Read(convID string) ([]Message, error) {
	rows, err := h.db.Query(`
		SELECT role, content, tool_calls, tool_call_id, tool_name
		FROM conversation_turns
		WHERE conversation_id = ?
		ORDER BY id ASC`,
		convID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var msg Message
		var toolCalls string
		if err := rows.Scan(&msg.Role, &msg.Content, &toolCalls, &msg.ToolCallID, &msg.Name); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// Close closes the underlying database.
func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}
