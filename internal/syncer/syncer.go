// Package syncer reconciles chat state across devices that may have been
// offline for long stretches: push merges client deltas into the store,
// pull projects a consistent snapshot back out.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/planmate-app/backend/internal/models"
	"github.com/planmate-app/backend/internal/quota"
)

// ChatStore is the chat slice of the durable store.
// *repository.ChatRepository satisfies it.
type ChatStore interface {
	Upsert(ctx context.Context, chat *models.Chat) error
	Touch(ctx context.Context, tgID int64, chatID string, at time.Time) error
	ListByUser(ctx context.Context, tgID int64) ([]*models.Chat, error)
}

// MessageStore is the message slice of the durable store.
// *repository.MessageRepository satisfies it.
type MessageStore interface {
	Upsert(ctx context.Context, msg *models.Message) error
	Insert(ctx context.Context, msg *models.Message) error
	ListSince(ctx context.Context, tgID int64, since *time.Time) ([]*models.Message, error)
}

// TaskStateStore is the task-state slice of the durable store.
// *repository.TaskStateRepository satisfies it.
type TaskStateStore interface {
	Replace(ctx context.Context, tgID int64, doc json.RawMessage) error
	Get(ctx context.Context, tgID int64) (*models.TaskState, error)
}

// Service merges pushed deltas and produces pull snapshots
type Service struct {
	chats ChatStore
	msgs  MessageStore
	tasks TaskStateStore
	quota *quota.Service
	now   func() time.Time
}

// NewService creates a new sync service
func NewService(chats ChatStore, msgs MessageStore, tasks TaskStateStore, quotaSvc *quota.Service) *Service {
	return &Service{
		chats: chats,
		msgs:  msgs,
		tasks: tasks,
		quota: quotaSvc,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Now exposes the service clock so callers rendering snapshots use the same
// time source the merge ran under.
func (s *Service) Now() time.Time {
	return s.now()
}

// ChatDelta is a client-submitted chat metadata change
type ChatDelta struct {
	ChatID    string     `json:"chat_id"`
	Title     string     `json:"title"`
	Emoji     string     `json:"emoji"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// MessageDelta is a client-submitted message. MsgID is optional; messages
// without one are appended fresh on every submission.
type MessageDelta struct {
	MsgID     string     `json:"msg_id,omitempty"`
	ChatID    string     `json:"chat_id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// PushResult summarizes a merge
type PushResult struct {
	ChatsUpserted   int
	MessagesMerged  int
	MessagesDropped int
	ServerTime      time.Time
}

// Push merges client-submitted state into the store. Chats are last-writer-
// wins; messages with an identifier are upserted, messages without one are
// always inserted (repeat submission duplicates, which is the documented
// policy); a structurally invalid message row is dropped, not errored.
func (s *Service) Push(ctx context.Context, tgID int64, chats []ChatDelta, msgs []MessageDelta, taskState json.RawMessage) (*PushResult, error) {
	now := s.now()
	res := &PushResult{ServerTime: now}

	for _, delta := range chats {
		if delta.ChatID == "" {
			continue
		}
		updatedAt := now
		if delta.UpdatedAt != nil {
			updatedAt = delta.UpdatedAt.UTC()
		}
		err := s.chats.Upsert(ctx, &models.Chat{
			TgID:      tgID,
			ChatID:    delta.ChatID,
			Title:     delta.Title,
			Emoji:     delta.Emoji,
			UpdatedAt: updatedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("upsert chat %s: %w", delta.ChatID, err)
		}
		res.ChatsUpserted++
	}

	for _, delta := range msgs {
		createdAt := now
		if delta.CreatedAt != nil {
			createdAt = delta.CreatedAt.UTC()
		}
		msg := &models.Message{
			TgID:      tgID,
			MsgID:     delta.MsgID,
			ChatID:    delta.ChatID,
			Role:      delta.Role,
			Content:   delta.Content,
			CreatedAt: createdAt,
		}
		if !msg.Mergeable() {
			res.MessagesDropped++
			continue
		}

		var err error
		if msg.MsgID != "" {
			err = s.msgs.Upsert(ctx, msg)
		} else {
			err = s.msgs.Insert(ctx, msg)
		}
		if err != nil {
			return nil, fmt.Errorf("merge message in chat %s: %w", msg.ChatID, err)
		}

		// First message of a chat creates its row; later ones bump recency.
		if err := s.chats.Touch(ctx, tgID, msg.ChatID, createdAt); err != nil {
			return nil, fmt.Errorf("touch chat %s: %w", msg.ChatID, err)
		}
		res.MessagesMerged++
	}

	if taskState != nil {
		if err := s.tasks.Replace(ctx, tgID, taskState); err != nil {
			return nil, fmt.Errorf("replace task state: %w", err)
		}
	}

	if res.MessagesDropped > 0 {
		log.Printf("[syncer] Dropped %d invalid message rows for user %d", res.MessagesDropped, tgID)
	}

	return res, nil
}

// Snapshot is the pull-side projection of a user's state
type Snapshot struct {
	User      *models.User
	Chats     []*models.Chat
	Messages  []*models.Message
	TaskState json.RawMessage
}

// Pull returns all chat metadata (most recently updated first), messages at
// or after the cursor (all when absent, created_at ascending) and the
// task-state document. It resolves quota as a side effect so pull responses
// always carry fresh counters.
func (s *Service) Pull(ctx context.Context, tgID int64, since *time.Time) (*Snapshot, error) {
	user, err := s.quota.Resolve(ctx, tgID)
	if err != nil {
		return nil, fmt.Errorf("resolve user %d: %w", tgID, err)
	}

	chats, err := s.chats.ListByUser(ctx, tgID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	msgs, err := s.msgs.ListSince(ctx, tgID, since)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	state, err := s.tasks.Get(ctx, tgID)
	if err != nil {
		return nil, fmt.Errorf("get task state: %w", err)
	}

	return &Snapshot{
		User:      user,
		Chats:     chats,
		Messages:  msgs,
		TaskState: state.Doc,
	}, nil
}
