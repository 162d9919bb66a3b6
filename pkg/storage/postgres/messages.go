package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/relaypub/relay/pkg/storage"
)

// MessageStore implements storage.MessageStore on PostgreSQL. Messages are
// append-only: rows are never updated or deleted.
type MessageStore struct {
	db *sql.DB
}

// NewMessageStore creates a PostgreSQL-backed message store.
func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Create assigns an identity and persists the body.
func (s *MessageStore) Create(ctx context.Context, body string) (*storage.Message, error) {
	query := `
		INSERT INTO messages (body)
		VALUES ($1)
		RETURNING id, body, created_at
	`

	var msg storage.Message
	err := s.db.QueryRowContext(ctx, query, body).Scan(&msg.ID, &msg.Body, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return &msg, nil
}

// GetByID returns the message or (nil, nil) if absent.
func (s *MessageStore) GetByID(ctx context.Context, id int64) (*storage.Message, error) {
	query := `SELECT id, body, created_at FROM messages WHERE id = $1`

	var msg storage.Message
	err := s.db.QueryRowContext(ctx, query, id).Scan(&msg.ID, &msg.Body, &msg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %d: %w", id, err)
	}
	return &msg, nil
}
