package models

import (
	"encoding/json"
	"time"
)

// User represents a user in the system. The row is keyed by the Telegram
// identity supplied by the host platform; there is no separate account system.
type User struct {
	TgID             int64           `json:"tg_id" db:"tg_id"`
	Tier             string          `json:"tier" db:"tier"`
	PremiumUntil     *time.Time      `json:"premium_until,omitempty" db:"premium_until"`
	PlansLeft        int             `json:"plans_left" db:"plans_left"`
	MediaLeft        int             `json:"media_left" db:"media_left"`
	QuotaNextResetAt time.Time       `json:"quota_reset_at" db:"quota_next_reset_at"`
	CurrentPlan      json.RawMessage `json:"current_plan,omitempty" db:"current_plan"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// UserTier constants. Tier is the stored billing label; the entitlement
// actually applied to a request comes from EffectiveTier.
const (
	TierFree      = "free"
	TierPremium   = "premium"
	TierDeveloper = "developer"
)

// IsValidTier checks if a tier is valid
func IsValidTier(tier string) bool {
	switch tier {
	case TierFree, TierPremium, TierDeveloper:
		return true
	default:
		return false
	}
}

// EffectiveTier derives the entitlement applied to requests at the given
// moment. A stored premium label with an expired premium_until falls back to
// free limits without any migration step.
func (u *User) EffectiveTier(now time.Time) string {
	if u.Tier == TierDeveloper {
		return TierDeveloper
	}
	if u.PremiumUntil != nil && u.PremiumUntil.After(now) {
		return TierPremium
	}
	return TierFree
}

// QuotaKind identifies which daily counter an operation spends.
type QuotaKind string

const (
	QuotaPlans QuotaKind = "plans"
	QuotaMedia QuotaKind = "media"
)
