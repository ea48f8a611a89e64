package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/planmate-app/backend/internal/ai"
	"github.com/planmate-app/backend/internal/api/request"
	"github.com/planmate-app/backend/internal/api/response"
	"github.com/planmate-app/backend/internal/config"
	"github.com/planmate-app/backend/internal/middleware"
	"github.com/planmate-app/backend/internal/models"
	"github.com/planmate-app/backend/internal/quota"
)

// historyLimit caps how many prior turns feed the plan prompt
const historyLimit = 20

// PlanUserStore persists the generated plan snapshot.
// *repository.UserRepository satisfies it.
type PlanUserStore interface {
	SaveCurrentPlan(ctx context.Context, tgID int64, plan json.RawMessage) error
}

// PlanMessageStore reads chat history and appends conversation exchanges.
// *repository.MessageRepository satisfies it.
type PlanMessageStore interface {
	InsertExchange(ctx context.Context, userMsg, assistantMsg *models.Message) error
	ListRecentByChat(ctx context.Context, tgID int64, chatID string, limit int) ([]*models.Message, error)
}

// PlanChatStore bumps chat recency. *repository.ChatRepository satisfies it.
type PlanChatStore interface {
	Touch(ctx context.Context, tgID int64, chatID string, at time.Time) error
}

// PlanHandler serves plan generation
type PlanHandler struct {
	quota   *quota.Service
	planner *ai.Planner
	users   PlanUserStore
	msgs    PlanMessageStore
	chats   PlanChatStore
	cfg     *config.Config
}

// NewPlanHandler creates a new plan handler
func NewPlanHandler(quotaSvc *quota.Service, planner *ai.Planner, users PlanUserStore, msgs PlanMessageStore, chats PlanChatStore, cfg *config.Config) *PlanHandler {
	return &PlanHandler{
		quota:   quotaSvc,
		planner: planner,
		users:   users,
		msgs:    msgs,
		chats:   chats,
		cfg:     cfg,
	}
}

type createPlanRequest struct {
	TgID    int64  `json:"tg_id"`
	ChatID  string `json:"chat_id"`
	Profile string `json:"profile"`
}

// Create handles POST /api/plan/create. One plans unit is consumed before
// the model call: a model failure after that point does not refund, which
// is deliberate (forced upstream failures must not yield free retries).
func (h *PlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	if req.TgID <= 0 {
		response.BadRequest(w, "tg_id is required")
		return
	}
	if req.ChatID == "" {
		response.BadRequest(w, "chat_id is required")
		return
	}
	if req.Profile == "" {
		response.BadRequest(w, "profile is required")
		return
	}

	ctx := r.Context()

	result, err := h.quota.Consume(ctx, req.TgID, models.QuotaPlans)
	if err != nil {
		serverError(w, r, h.cfg, err)
		return
	}
	if !result.Granted {
		quotaExhausted(w, response.CodeNoPlansLeft, result, h.cfg, h.quota.Now())
		return
	}

	history := h.loadHistory(ctx, req.TgID, req.ChatID)

	planText, err := h.planner.GeneratePlan(ctx, req.Profile, history)
	if err != nil {
		upstreamError(w, r, h.cfg, err)
		return
	}

	now := h.quota.Now()
	h.persistExchange(ctx, req, planText, now)

	snap := snapshotUser(result.User, now)
	response.JSON(w, http.StatusOK, map[string]any{
		"plan":           json.RawMessage(planDocument(planText, now)),
		"tg_id":          snap.TgID,
		"tier":           snap.Tier,
		"plans_left":     snap.PlansLeft,
		"media_left":     snap.MediaLeft,
		"quota_reset_at": snap.QuotaResetAt,
	})
}

// loadHistory fetches recent chat turns for prompt context. History is an
// enrichment, not a requirement: failures degrade to an empty context.
func (h *PlanHandler) loadHistory(ctx context.Context, tgID int64, chatID string) []ai.PromptMessage {
	msgs, err := h.msgs.ListRecentByChat(ctx, tgID, chatID, historyLimit)
	if err != nil {
		log.Printf("[plan] Failed to load history for user %d: %v", tgID, err)
		return nil
	}

	history := make([]ai.PromptMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, ai.PromptMessage{Role: m.Role, Content: m.Content})
	}
	return history
}

// persistExchange stores both turns and the plan snapshot. The plan was
// already generated and paid for; persistence failures are logged, not
// surfaced.
func (h *PlanHandler) persistExchange(ctx context.Context, req createPlanRequest, planText string, now time.Time) {
	reqID := middleware.GetRequestID(ctx)

	userMsg := &models.Message{
		TgID:      req.TgID,
		ChatID:    req.ChatID,
		Role:      models.RoleUser,
		Content:   req.Profile,
		CreatedAt: now,
	}
	assistantMsg := &models.Message{
		TgID:      req.TgID,
		ChatID:    req.ChatID,
		Role:      models.RoleAssistant,
		Content:   planText,
		CreatedAt: now.Add(time.Millisecond),
	}
	if err := h.msgs.InsertExchange(ctx, userMsg, assistantMsg); err != nil {
		log.Printf("[%s] Failed to store conversation turns: %v", reqID, err)
	}

	if err := h.chats.Touch(ctx, req.TgID, req.ChatID, now); err != nil {
		log.Printf("[%s] Failed to touch chat: %v", reqID, err)
	}

	if err := h.users.SaveCurrentPlan(ctx, req.TgID, planDocument(planText, now)); err != nil {
		log.Printf("[%s] Failed to save plan snapshot: %v", reqID, err)
	}
}

// planDocument wraps model output into the stored plan snapshot. Model
// output that is already valid JSON is embedded as-is; anything else is
// wrapped as a text document.
func planDocument(planText string, now time.Time) json.RawMessage {
	generated := now.UTC().Format(time.RFC3339)

	if json.Valid([]byte(planText)) {
		doc, err := json.Marshal(map[string]any{
			"plan":         json.RawMessage(planText),
			"generated_at": generated,
		})
		if err == nil {
			return doc
		}
	}

	doc, err := json.Marshal(map[string]any{
		"text":         planText,
		"generated_at": generated,
	})
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return doc
}

// quotaExhausted writes the 403 body carrying the machine-readable code
// plus the human-readable reset countdown. The caller passes its service
// clock so the countdown agrees with the denial it describes.
func quotaExhausted(w http.ResponseWriter, code string, result *quota.ConsumeResult, cfg *config.Config, now time.Time) {
	response.ErrorExtra(w, http.StatusForbidden, code, map[string]any{
		"plans_left":           result.User.PlansLeft,
		"media_left":           result.User.MediaLeft,
		"quota_reset_in_human": quota.ResetIn(now, result.ResetAt),
		"quota_reset_at_local": quota.ResetAtLocal(result.ResetAt, cfg.QuotaResetOffset),
	})
}
