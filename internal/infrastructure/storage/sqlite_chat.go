package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
	"github.com/codeneeth/neethos-chat/internal/domain/errs"
	"github.com/codeneeth/neethos-chat/internal/domain/repository"
	_ "github.com/mattn/go-sqlite3"
)

type sqliteChatRepository struct {
	db *sql.DB
}

// NewSQLiteChatRepository SQLite asosidagi chat repository
func NewSQLiteChatRepository(dbPath string) (repository.ChatRepository, error) {
	if dbPath == "" {
		return nil, errors.New("db path must not be empty")
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and serialises writers
	db.SetMaxOpenConns(1)

	if err := createChatSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteChatRepository{db: db}, nil
}

func createChatSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	text TEXT NOT NULL,
	ts TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq ON messages (conversation_id, seq);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Append xabarni saqlash
func (s *sqliteChatRepository) Append(ctx context.Context, message entity.Message) error {
	if message.ConversationID == "" {
		return errs.ErrConversationRequired
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, text, ts) VALUES (?, ?, ?, ?, ?)`,
		message.ID, message.ConversationID, string(message.Role), message.Text, message.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// List suhbat tarixini olish
func (s *sqliteChatRepository) List(ctx context.Context, conversationID string) ([]entity.Message, error) {
	if conversationID == "" {
		return nil, errs.ErrConversationRequired
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, text, ts FROM messages WHERE conversation_id = ? ORDER BY seq ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []entity.Message{}
	for rows.Next() {
		var (
			msg  entity.Message
			role string
			ts   time.Time
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Text, &ts); err != nil {
			return nil, err
		}
		msg.Role = entity.Role(role)
		msg.Timestamp = ts
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// Conversations barcha suhbatlar
func (s *sqliteChatRepository) Conversations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT conversation_id FROM messages ORDER BY conversation_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteChatRepository) Close() error {
	return s.db.Close()
}
