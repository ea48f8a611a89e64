package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/planmate-app/backend/internal/api/response"
	"github.com/planmate-app/backend/internal/billing"
	"github.com/planmate-app/backend/internal/config"
)

// PreCheckoutAnswerer is the slice of the bot API the webhook needs.
// *bot.Bot satisfies it.
type PreCheckoutAnswerer interface {
	AnswerPreCheckoutQuery(ctx context.Context, params *bot.AnswerPreCheckoutQueryParams) (bool, error)
}

// WebhookHandler processes Telegram webhook updates. Only payment-related
// updates are acted on; everything else is acknowledged and dropped.
type WebhookHandler struct {
	billing *billing.Service
	bot     PreCheckoutAnswerer
	cfg     *config.Config
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(billingSvc *billing.Service, answerer PreCheckoutAnswerer, cfg *config.Config) *WebhookHandler {
	return &WebhookHandler{billing: billingSvc, bot: answerer, cfg: cfg}
}

// Handle processes POST /telegram/webhook. Telegram retries non-200
// responses indefinitely, so once the secret check passes everything is
// acknowledged with 200, undecodable bodies included; only an
// authentication failure is rejected.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cfg.WebhookSecret != "" {
		if r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != h.cfg.WebhookSecret {
			response.Forbidden(w)
			return
		}
	}

	var update tgmodels.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&update); err != nil {
		log.Printf("[webhook] Dropping undecodable update: %v", err)
		response.JSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	ctx := r.Context()

	switch {
	case update.PreCheckoutQuery != nil:
		h.handlePreCheckout(ctx, update.PreCheckoutQuery)
	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		h.handleSuccessfulPayment(ctx, update.Message)
	}

	response.JSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *WebhookHandler) handlePreCheckout(ctx context.Context, query *tgmodels.PreCheckoutQuery) {
	err := h.billing.HandlePreCheckout(ctx, query.From.ID, query.InvoicePayload)

	params := &bot.AnswerPreCheckoutQueryParams{
		PreCheckoutQueryID: query.ID,
		OK:                 err == nil,
	}
	if err != nil {
		log.Printf("[webhook] Rejecting pre-checkout for user %d: %v", query.From.ID, err)
		params.ErrorMessage = "This purchase cannot be completed right now."
	}

	if _, answerErr := h.bot.AnswerPreCheckoutQuery(ctx, params); answerErr != nil {
		log.Printf("[webhook] Failed to answer pre-checkout %s: %v", query.ID, answerErr)
	}
}

func (h *WebhookHandler) handleSuccessfulPayment(ctx context.Context, msg *tgmodels.Message) {
	payment := msg.SuccessfulPayment

	tgID := msg.Chat.ID
	if msg.From != nil {
		tgID = msg.From.ID
	}

	isNew, err := h.billing.ApplyPayment(ctx, tgID, payment.TelegramPaymentChargeID, payment.Currency, payment.TotalAmount, payment.InvoicePayload)
	if err != nil {
		log.Printf("[webhook] Failed to apply payment %s for user %d: %v", payment.TelegramPaymentChargeID, tgID, err)
		return
	}
	if !isNew {
		log.Printf("[webhook] Duplicate payment %s for user %d ignored", payment.TelegramPaymentChargeID, tgID)
		return
	}

	log.Printf("[webhook] Activated premium for user %d (charge %s)", tgID, payment.TelegramPaymentChargeID)
}
