package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"aura-chat/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         UUID PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	seq             BIGSERIAL PRIMARY KEY,
	id              TEXT NOT NULL UNIQUE,
	conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	text            TEXT NOT NULL,
	image           TEXT NOT NULL DEFAULT '',
	sources         JSONB,
	response_images JSONB,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (conversation_id, seq);
`

// Postgres stores conversations in PostgreSQL
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the tables if they do not exist
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// CreateConversation inserts a new conversation row
func (p *Postgres) CreateConversation(ctx context.Context, conv models.Conversation) error {
	_, err := p.db.ExecContext(ctx,
		"INSERT INTO conversations (id, created_at) VALUES ($1, $2)",
		conv.ID, conv.CreatedAt)
	return err
}

// ConversationExists reports whether a conversation row exists
func (p *Postgres) ConversationExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1)", id).Scan(&exists)
	return exists, err
}

// ListConversations retrieves all conversations, newest first
func (p *Postgres) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT id, created_at FROM conversations ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.CreatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// AppendMessage saves a message to the database
func (p *Postgres) AppendMessage(ctx context.Context, msg models.Message) error {
	sources, err := marshalNullable(msg.Sources)
	if err != nil {
		return err
	}
	images, err := marshalNullable(msg.ResponseImages)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, text, image, sources, response_images, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Text, msg.Image, sources, images, msg.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
		return fmt.Errorf("conversation %s does not exist: %w", msg.ConversationID, err)
	}
	return err
}

// DeleteMessage removes a single message by id
func (p *Postgres) DeleteMessage(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM messages WHERE id = $1", id)
	return err
}

// Messages retrieves the log of a conversation in insertion order
func (p *Postgres) Messages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, text, image, sources, response_images, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY seq ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var (
			msg            models.Message
			role           string
			sources        []byte
			responseImages []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Text, &msg.Image, &sources, &responseImages, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = models.Role(role)
		if err := unmarshalNullable(sources, &msg.Sources); err != nil {
			return nil, err
		}
		if err := unmarshalNullable(responseImages, &msg.ResponseImages); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// DeleteConversation deletes a conversation and its messages in one transaction
func (p *Postgres) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = $1", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = $1", id); err != nil {
		return err
	}
	return tx.Commit()
}

// marshalNullable keeps "no sources" and "empty sources" apart
func marshalNullable[T any](v []T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal column: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalNullable[T any](data []byte, v *[]T) error {
	if data == nil {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal column: %w", err)
	}
	return nil
}
