// Package billing is the subscription ledger: it captures payment events
// idempotently and turns new ones into premium entitlement time.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/planmate-app/backend/internal/config"
	"github.com/planmate-app/backend/internal/models"
	"github.com/planmate-app/backend/internal/quota"
	"github.com/planmate-app/backend/internal/repository"
)

// ErrUnknownPlan is returned when a payment payload names no recognized plan
var ErrUnknownPlan = errors.New("unknown subscription plan")

// UserStore is the user slice of the durable store the ledger needs.
// *repository.UserRepository satisfies it.
type UserStore interface {
	SetPremium(ctx context.Context, tgID int64, until time.Time, plans, media int, nextReset time.Time) error
}

// PaymentStore records captured payments. *repository.PaymentRepository
// satisfies it.
type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
}

// Service applies validated payment events to user entitlements
type Service struct {
	users    UserStore
	payments PaymentStore
	quota    *quota.Service
	cfg      *config.Config
	now      func() time.Time
}

// NewService creates a new billing service
func NewService(users UserStore, payments PaymentStore, quotaSvc *quota.Service, cfg *config.Config) *Service {
	return &Service{
		users:    users,
		payments: payments,
		quota:    quotaSvc,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PlanFromPayload extracts the plan from an invoice payload of the form
// "premium_month" / "premium_year".
func PlanFromPayload(payload string) (string, bool) {
	plan, ok := strings.CutPrefix(payload, "premium_")
	if !ok || !models.IsValidPlan(plan) {
		return "", false
	}
	return plan, true
}

// HandlePreCheckout is the gate invoked before payment capture. It rejects
// structurally invalid payloads so no payment is captured for malformed
// requests. Idempotent; its only side effect is ensuring the user row exists.
func (s *Service) HandlePreCheckout(ctx context.Context, tgID int64, payload string) error {
	if tgID <= 0 {
		return fmt.Errorf("pre-checkout without user identity")
	}
	if _, ok := PlanFromPayload(payload); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPlan, payload)
	}

	if _, err := s.quota.Resolve(ctx, tgID); err != nil {
		return fmt.Errorf("resolve user %d: %w", tgID, err)
	}

	return nil
}

// ApplyPayment records a captured payment and, when it is new, activates the
// premium entitlement. A duplicate charge id is a silent no-op: the upstream
// platform retries webhooks and each charge may be delivered many times.
// Returns whether the payment was new.
func (s *Service) ApplyPayment(ctx context.Context, tgID int64, chargeID, currency string, amount int, payload string) (bool, error) {
	plan, ok := PlanFromPayload(payload)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownPlan, payload)
	}

	err := s.payments.Create(ctx, &models.Payment{
		TgID:     tgID,
		ChargeID: chargeID,
		Currency: currency,
		Amount:   amount,
		Plan:     plan,
	})
	if errors.Is(err, repository.ErrPaymentExists) {
		log.Printf("[billing] Duplicate charge %s for user %d, skipping activation", chargeID, tgID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("record payment: %w", err)
	}

	if err := s.activatePremium(ctx, tgID, plan); err != nil {
		return true, err
	}

	return true, nil
}

// activatePremium extends the entitlement from the later of now and the
// current expiry, so stacked purchases extend cleanly. Counters refill to
// premium limits immediately rather than waiting for the next boundary.
func (s *Service) activatePremium(ctx context.Context, tgID int64, plan string) error {
	user, err := s.quota.Resolve(ctx, tgID)
	if err != nil {
		return fmt.Errorf("resolve user %d: %w", tgID, err)
	}

	now := s.now()
	from := now
	if user.PremiumUntil != nil && user.PremiumUntil.After(now) {
		from = *user.PremiumUntil
	}
	until := from.Add(s.cfg.PlanDuration(plan))

	limits := s.cfg.LimitsFor(models.TierPremium)
	next := quota.NextResetBoundary(now, s.cfg.QuotaResetOffset)

	if err := s.users.SetPremium(ctx, tgID, until, limits.Plans, limits.Media, next); err != nil {
		return fmt.Errorf("activate premium for %d: %w", tgID, err)
	}

	log.Printf("[billing] Premium activated for user %d (plan=%s until=%s)", tgID, plan, until.Format(time.RFC3339))
	return nil
}
