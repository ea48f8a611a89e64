package models

import "time"

// Subscription plans
const (
	PlanMonth = "month"
	PlanYear  = "year"
)

// IsValidPlan checks if a plan name is recognized
func IsValidPlan(plan string) bool {
	return plan == PlanMonth || plan == PlanYear
}

// Payment records a captured payment event. The unique (tg_id, charge_id)
// pair is the idempotency barrier against webhook retries: inserting a
// duplicate fails, which signals that activation must be skipped.
type Payment struct {
	ID        string    `json:"id" db:"id"`
	TgID      int64     `json:"tg_id" db:"tg_id"`
	ChargeID  string    `json:"charge_id" db:"charge_id"`
	Currency  string    `json:"currency" db:"currency"`
	Amount    int       `json:"amount" db:"amount"`
	Plan      string    `json:"plan" db:"plan"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
