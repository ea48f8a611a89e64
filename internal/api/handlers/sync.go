package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/planmate-app/backend/internal/api/request"
	"github.com/planmate-app/backend/internal/api/response"
	"github.com/planmate-app/backend/internal/config"
	"github.com/planmate-app/backend/internal/syncer"
)

// SyncHandler serves multi-device state reconciliation
type SyncHandler struct {
	syncer *syncer.Service
	cfg    *config.Config
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(syncSvc *syncer.Service, cfg *config.Config) *SyncHandler {
	return &SyncHandler{syncer: syncSvc, cfg: cfg}
}

type pullRequest struct {
	TgID  int64  `json:"tg_id"`
	Since string `json:"since,omitempty"`
}

type chatPayload struct {
	ChatID    string `json:"chat_id"`
	Title     string `json:"title"`
	Emoji     string `json:"emoji,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

type messagePayload struct {
	MsgID     string `json:"msg_id,omitempty"`
	ChatID    string `json:"chat_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Pull handles POST /api/sync/pull
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	var req pullRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	if req.TgID <= 0 {
		response.BadRequest(w, "tg_id is required")
		return
	}

	var since *time.Time
	if req.Since != "" {
		since = request.ParseTime(req.Since)
		if since == nil {
			response.BadRequest(w, "invalid since timestamp")
			return
		}
	}

	snap, err := h.syncer.Pull(r.Context(), req.TgID, since)
	if err != nil {
		serverError(w, r, h.cfg, err)
		return
	}

	now := h.syncer.Now()
	chats := make([]chatPayload, 0, len(snap.Chats))
	for _, c := range snap.Chats {
		chats = append(chats, chatPayload{
			ChatID:    c.ChatID,
			Title:     c.Title,
			Emoji:     c.Emoji,
			UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	msgs := make([]messagePayload, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		msgs = append(msgs, messagePayload{
			MsgID:     m.MsgID,
			ChatID:    m.ChatID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	snapUser := snapshotUser(snap.User, now)
	response.JSON(w, http.StatusOK, map[string]any{
		"chats":          chats,
		"messages":       msgs,
		"tasks_state":    snap.TaskState,
		"current_plan":   snap.User.CurrentPlan,
		"tier":           snapUser.Tier,
		"plans_left":     snapUser.PlansLeft,
		"media_left":     snapUser.MediaLeft,
		"quota_reset_at": snapUser.QuotaResetAt,
		"server_time":    now.Format(time.RFC3339),
	})
}

type pushRequest struct {
	TgID           int64            `json:"tg_id"`
	ChatsUpsert    []chatPayload    `json:"chats_upsert,omitempty"`
	MessagesUpsert []messagePayload `json:"messages_upsert,omitempty"`
	TasksState     json.RawMessage  `json:"tasks_state,omitempty"`
}

// Push handles POST /api/sync/push
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	if req.TgID <= 0 {
		response.BadRequest(w, "tg_id is required")
		return
	}

	chats := make([]syncer.ChatDelta, 0, len(req.ChatsUpsert))
	for _, c := range req.ChatsUpsert {
		if c.ChatID == "" {
			response.BadRequest(w, "chat upsert requires chat_id")
			return
		}
		updatedAt := request.ParseTime(c.UpdatedAt)
		if c.UpdatedAt != "" && updatedAt == nil {
			response.BadRequest(w, "invalid chat updated_at")
			return
		}
		chats = append(chats, syncer.ChatDelta{
			ChatID:    c.ChatID,
			Title:     c.Title,
			Emoji:     c.Emoji,
			UpdatedAt: updatedAt,
		})
	}

	msgs := make([]syncer.MessageDelta, 0, len(req.MessagesUpsert))
	for _, m := range req.MessagesUpsert {
		createdAt := request.ParseTime(m.CreatedAt)
		if m.CreatedAt != "" && createdAt == nil {
			response.BadRequest(w, "invalid message created_at")
			return
		}
		msgs = append(msgs, syncer.MessageDelta{
			MsgID:     m.MsgID,
			ChatID:    m.ChatID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: createdAt,
		})
	}

	if len(req.TasksState) > 0 && !json.Valid(req.TasksState) {
		response.BadRequest(w, "tasks_state must be valid JSON")
		return
	}

	result, err := h.syncer.Push(r.Context(), req.TgID, chats, msgs, req.TasksState)
	if err != nil {
		serverError(w, r, h.cfg, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"ok":               true,
		"chats_upserted":   result.ChatsUpserted,
		"messages_merged":  result.MessagesMerged,
		"messages_dropped": result.MessagesDropped,
		"server_time":      result.ServerTime.UTC().Format(time.RFC3339),
	})
}
