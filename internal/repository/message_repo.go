package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/planmate-app/backend/internal/database"
	"github.com/planmate-app/backend/internal/models"
)

// MessageRepository handles message database operations
type MessageRepository struct {
	db *database.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *database.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Upsert stores a message carrying a client-generated identifier. Resubmission
// of the same (tg_id, msg_id) overwrites in place instead of duplicating, so
// client retries and repeated sync cycles are safe.
func (r *MessageRepository) Upsert(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (id, tg_id, msg_id, chat_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tg_id, msg_id) WHERE msg_id IS NOT NULL DO UPDATE
		SET chat_id = EXCLUDED.chat_id,
		    role = EXCLUDED.role,
		    content = EXCLUDED.content,
		    created_at = EXCLUDED.created_at
	`
	_, err := r.db.Exec(ctx, query,
		msg.ID, msg.TgID, msg.MsgID, msg.ChatID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert message: %w", err)
	}

	return nil
}

// Insert appends a message without a client identifier. These rows are never
// deduplicated: resubmitting the same content creates another row.
func (r *MessageRepository) Insert(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (id, tg_id, msg_id, chat_id, role, content, created_at)
		VALUES ($1, $2, NULL, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		msg.ID, msg.TgID, msg.ChatID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

// InsertExchange appends both turns of a conversation exchange in one
// transaction, so a generated response never lands without the request that
// produced it. The rows carry no client identifier and are never
// deduplicated.
func (r *MessageRepository) InsertExchange(ctx context.Context, userMsg, assistantMsg *models.Message) error {
	query := `
		INSERT INTO messages (id, tg_id, msg_id, chat_id, role, content, created_at)
		VALUES ($1, $2, NULL, $3, $4, $5, $6)
	`
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, msg := range []*models.Message{userMsg, assistantMsg} {
			if msg.ID == "" {
				msg.ID = uuid.New().String()
			}
			if msg.CreatedAt.IsZero() {
				msg.CreatedAt = time.Now().UTC()
			}
			if _, err := tx.Exec(ctx, query,
				msg.ID, msg.TgID, msg.ChatID, msg.Role, msg.Content, msg.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}

	return nil
}

// ListSince returns a user's messages with created_at >= since, oldest first.
// A nil cursor returns the full history.
func (r *MessageRepository) ListSince(ctx context.Context, tgID int64, since *time.Time) ([]*models.Message, error) {
	query := `
		SELECT id, tg_id, COALESCE(msg_id, ''), chat_id, role, content, created_at
		FROM messages
		WHERE tg_id = $1 AND ($2::timestamptz IS NULL OR created_at >= $2)
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, tgID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.TgID, &msg.MsgID, &msg.ChatID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return msgs, nil
}

// ListRecentByChat returns the most recent messages of one chat, oldest first.
// Used to give the language model short conversational context.
func (r *MessageRepository) ListRecentByChat(ctx context.Context, tgID int64, chatID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, tg_id, COALESCE(msg_id, ''), chat_id, role, content, created_at
		FROM (
			SELECT id, tg_id, msg_id, chat_id, role, content, created_at
			FROM messages
			WHERE tg_id = $1 AND chat_id = $2
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, tgID, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.TgID, &msg.MsgID, &msg.ChatID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return msgs, nil
}
