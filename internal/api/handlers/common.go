package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/planmate-app/backend/internal/api/response"
	"github.com/planmate-app/backend/internal/config"
	"github.com/planmate-app/backend/internal/middleware"
	"github.com/planmate-app/backend/internal/models"
)

// userSnapshot is the counters block every state-mutating endpoint returns
type userSnapshot struct {
	TgID         int64  `json:"tg_id"`
	Tier         string `json:"tier"`
	PlansLeft    int    `json:"plans_left"`
	MediaLeft    int    `json:"media_left"`
	PremiumUntil string `json:"premium_until,omitempty"`
	QuotaResetAt string `json:"quota_reset_at"`
}

// snapshotUser builds the response block from a resolved user. Tier is the
// effective tier, not the stored label.
func snapshotUser(u *models.User, now time.Time) userSnapshot {
	snap := userSnapshot{
		TgID:         u.TgID,
		Tier:         u.EffectiveTier(now),
		PlansLeft:    u.PlansLeft,
		MediaLeft:    u.MediaLeft,
		QuotaResetAt: u.QuotaNextResetAt.UTC().Format(time.RFC3339),
	}
	if u.PremiumUntil != nil {
		snap.PremiumUntil = u.PremiumUntil.UTC().Format(time.RFC3339)
	}
	return snap
}

// serverError writes the generic failure response, leaking detail only
// outside production.
func serverError(w http.ResponseWriter, r *http.Request, cfg *config.Config, err error) {
	log.Printf("[%s] Internal error: %v", middleware.GetRequestID(r.Context()), err)
	if cfg.IsProduction() {
		response.InternalError(w, "")
		return
	}
	response.InternalError(w, err.Error())
}

// upstreamError writes the failed-collaborator response
func upstreamError(w http.ResponseWriter, r *http.Request, cfg *config.Config, err error) {
	log.Printf("[%s] Upstream error: %v", middleware.GetRequestID(r.Context()), err)
	if cfg.IsProduction() {
		response.UpstreamError(w, "")
		return
	}
	response.UpstreamError(w, err.Error())
}
