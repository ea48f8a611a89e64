package handlers

import (
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/planmate-app/backend/internal/ai"
	"github.com/planmate-app/backend/internal/api/response"
	"github.com/planmate-app/backend/internal/config"
	"github.com/planmate-app/backend/internal/middleware"
	"github.com/planmate-app/backend/internal/models"
	"github.com/planmate-app/backend/internal/quota"
)

// maxAttachmentBytes caps uploaded file size at 10MB
const maxAttachmentBytes = 10 << 20

// AttachHandler serves image attachment analysis
type AttachHandler struct {
	quota   *quota.Service
	planner *ai.Planner
	msgs    PlanMessageStore
	chats   PlanChatStore
	cfg     *config.Config
}

// NewAttachHandler creates a new attachment handler
func NewAttachHandler(quotaSvc *quota.Service, planner *ai.Planner, msgs PlanMessageStore, chats PlanChatStore, cfg *config.Config) *AttachHandler {
	return &AttachHandler{
		quota:   quotaSvc,
		planner: planner,
		msgs:    msgs,
		chats:   chats,
		cfg:     cfg,
	}
}

// Attach handles POST /api/chat/attach. The media unit is consumed before
// the model call, same policy as plan creation.
func (h *AttachHandler) Attach(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentBytes)
	if err := r.ParseMultipartForm(maxAttachmentBytes); err != nil {
		response.BadRequest(w, "invalid multipart form")
		return
	}

	tgID, err := strconv.ParseInt(r.FormValue("tg_id"), 10, 64)
	if err != nil || tgID <= 0 {
		response.BadRequest(w, "tg_id is required")
		return
	}
	chatID := r.FormValue("chat_id")
	if chatID == "" {
		response.BadRequest(w, "chat_id is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.BadRequest(w, "failed to read file")
		return
	}
	if len(data) == 0 {
		response.BadRequest(w, "file is empty")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	ctx := r.Context()

	result, err := h.quota.Consume(ctx, tgID, models.QuotaMedia)
	if err != nil {
		serverError(w, r, h.cfg, err)
		return
	}
	if !result.Granted {
		quotaExhausted(w, response.CodeNoMediaLeft, result, h.cfg, h.quota.Now())
		return
	}

	description, err := h.planner.DescribeAttachment(ctx, mimeType, data)
	if err != nil {
		upstreamError(w, r, h.cfg, err)
		return
	}

	now := h.quota.Now()
	h.persistDescription(r, tgID, chatID, header.Filename, description, now)

	snap := snapshotUser(result.User, now)
	response.JSON(w, http.StatusOK, map[string]any{
		"description":    description,
		"tg_id":          snap.TgID,
		"tier":           snap.Tier,
		"plans_left":     snap.PlansLeft,
		"media_left":     snap.MediaLeft,
		"quota_reset_at": snap.QuotaResetAt,
	})
}

func (h *AttachHandler) persistDescription(r *http.Request, tgID int64, chatID, filename, description string, now time.Time) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)

	userMsg := &models.Message{
		TgID:      tgID,
		ChatID:    chatID,
		Role:      models.RoleUser,
		Content:   "[attachment] " + filename,
		CreatedAt: now,
	}
	assistantMsg := &models.Message{
		TgID:      tgID,
		ChatID:    chatID,
		Role:      models.RoleAssistant,
		Content:   description,
		CreatedAt: now.Add(time.Millisecond),
	}
	if err := h.msgs.InsertExchange(ctx, userMsg, assistantMsg); err != nil {
		log.Printf("[%s] Failed to store attachment exchange: %v", reqID, err)
	}

	if err := h.chats.Touch(ctx, tgID, chatID, now); err != nil {
		log.Printf("[%s] Failed to touch chat: %v", reqID, err)
	}
}
