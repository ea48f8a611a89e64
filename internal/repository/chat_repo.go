package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/planmate-app/backend/internal/database"
	"github.com/planmate-app/backend/internal/models"
)

// ChatRepository handles chat metadata database operations
type ChatRepository struct {
	db *database.DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *database.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Upsert inserts or overwrites chat metadata. Last writer wins on
// title/emoji/updated_at; the client only resends what it locally changed.
func (r *ChatRepository) Upsert(ctx context.Context, chat *models.Chat) error {
	if chat.UpdatedAt.IsZero() {
		chat.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO chats (tg_id, chat_id, title, emoji, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tg_id, chat_id) DO UPDATE
		SET title = EXCLUDED.title,
		    emoji = EXCLUDED.emoji,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query, chat.TgID, chat.ChatID, chat.Title, chat.Emoji, chat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert chat: %w", err)
	}

	return nil
}

// Touch bumps a chat's updated_at so chats order by recency, creating the
// row on the first message of a new chat.
func (r *ChatRepository) Touch(ctx context.Context, tgID int64, chatID string, at time.Time) error {
	query := `
		INSERT INTO chats (tg_id, chat_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tg_id, chat_id) DO UPDATE
		SET updated_at = GREATEST(chats.updated_at, EXCLUDED.updated_at)
	`
	_, err := r.db.Exec(ctx, query, tgID, chatID, at)
	if err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}

	return nil
}

// ListByUser returns all chats for a user, most recently updated first
func (r *ChatRepository) ListByUser(ctx context.Context, tgID int64) ([]*models.Chat, error) {
	query := `
		SELECT tg_id, chat_id, title, emoji, updated_at
		FROM chats
		WHERE tg_id = $1
		ORDER BY updated_at DESC
	`
	rows, err := r.db.Query(ctx, query, tgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var chats []*models.Chat
	for rows.Next() {
		var chat models.Chat
		if err := rows.Scan(&chat.TgID, &chat.ChatID, &chat.Title, &chat.Emoji, &chat.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, &chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chats: %w", err)
	}

	return chats, nil
}
