// Package quota resolves a user's effective tier and manages the daily
// usage counters: lazy refresh on every request, atomic consumption, and the
// shared reset transition also used by the sweep worker.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/planmate-app/backend/internal/config"
	"github.com/planmate-app/backend/internal/models"
	"github.com/planmate-app/backend/internal/repository"
)

// Store is the slice of the durable store the resolver needs.
// *repository.UserRepository satisfies it.
type Store interface {
	GetByTgID(ctx context.Context, tgID int64) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	ResetQuota(ctx context.Context, tgID int64, plans, media int, nextReset, now time.Time) (bool, error)
	ConsumeUnit(ctx context.Context, tgID int64, kind models.QuotaKind) (bool, error)
}

// Service computes effective tiers and refreshes exhausted counters
type Service struct {
	store Store
	cfg   *config.Config
	now   func() time.Time
}

// NewService creates a new quota service
func NewService(store Store, cfg *config.Config) *Service {
	return &Service{
		store: store,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Now exposes the service clock so callers rendering entitlements use the
// same time source the service mutates state with.
func (s *Service) Now() time.Time {
	return s.now()
}

// Resolve ensures a user row exists and that its counters reflect the
// current quota period. New users start on free-tier defaults.
func (s *Service) Resolve(ctx context.Context, tgID int64) (*models.User, error) {
	now := s.now()

	user, err := s.store.GetByTgID(ctx, tgID)
	if errors.Is(err, repository.ErrUserNotFound) {
		user, err = s.createDefault(ctx, tgID, now)
	}
	if err != nil {
		return nil, err
	}

	return s.resetIfDue(ctx, user, now)
}

// createDefault creates a fresh free-tier user. A concurrent first contact
// may win the insert; in that case the winner's row is read back.
func (s *Service) createDefault(ctx context.Context, tgID int64, now time.Time) (*models.User, error) {
	limits := s.cfg.LimitsFor(models.TierFree)
	user := &models.User{
		TgID:             tgID,
		Tier:             models.TierFree,
		PlansLeft:        limits.Plans,
		MediaLeft:        limits.Media,
		QuotaNextResetAt: NextResetBoundary(now, s.cfg.QuotaResetOffset),
	}

	err := s.store.Create(ctx, user)
	if errors.Is(err, repository.ErrUserExists) {
		return s.store.GetByTgID(ctx, tgID)
	}
	if err != nil {
		return nil, fmt.Errorf("create user %d: %w", tgID, err)
	}

	return user, nil
}

// resetIfDue performs the idempotent reset transition when the stored
// deadline has passed. The same transition runs from the request path and
// from the sweep worker; a race between the two leaves one of them a no-op.
func (s *Service) resetIfDue(ctx context.Context, user *models.User, now time.Time) (*models.User, error) {
	if user.QuotaNextResetAt.After(now) {
		return user, nil
	}

	limits := s.cfg.LimitsFor(user.EffectiveTier(now))
	next := NextResetBoundary(now, s.cfg.QuotaResetOffset)

	applied, err := s.store.ResetQuota(ctx, user.TgID, limits.Plans, limits.Media, next, now)
	if err != nil {
		return nil, fmt.Errorf("reset quota for %d: %w", user.TgID, err)
	}
	if !applied {
		// Another caller won the reset; read back its result.
		return s.store.GetByTgID(ctx, user.TgID)
	}

	user.PlansLeft = limits.Plans
	user.MediaLeft = limits.Media
	user.QuotaNextResetAt = next
	return user, nil
}

// SweepReset applies the reset transition to an already-loaded user row.
// Exposed for the sweep worker so both call sites share one implementation.
func (s *Service) SweepReset(ctx context.Context, user *models.User) error {
	_, err := s.resetIfDue(ctx, user, s.now())
	return err
}

// ConsumeResult reports the outcome of a consumption attempt
type ConsumeResult struct {
	Granted bool
	User    *models.User
	ResetAt time.Time
}

// Consume resolves the user and spends one unit of the given counter.
// Unlimited tiers always grant without decrementing. Denial is an expected
// business outcome, not an error.
func (s *Service) Consume(ctx context.Context, tgID int64, kind models.QuotaKind) (*ConsumeResult, error) {
	user, err := s.Resolve(ctx, tgID)
	if err != nil {
		return nil, err
	}

	limits := s.cfg.LimitsFor(user.EffectiveTier(s.now()))
	limit := limits.Plans
	if kind == models.QuotaMedia {
		limit = limits.Media
	}

	if limit == config.Unlimited {
		return &ConsumeResult{Granted: true, User: user, ResetAt: user.QuotaNextResetAt}, nil
	}

	granted, err := s.store.ConsumeUnit(ctx, tgID, kind)
	if err != nil {
		return nil, fmt.Errorf("consume %s for %d: %w", kind, tgID, err)
	}
	if granted {
		switch kind {
		case models.QuotaMedia:
			user.MediaLeft--
		default:
			user.PlansLeft--
		}
	}

	return &ConsumeResult{Granted: granted, User: user, ResetAt: user.QuotaNextResetAt}, nil
}

// NextResetBoundary computes the next daily boundary: midnight in the
// configured UTC offset, mapped back to UTC. Calling it twice within the
// same logical day yields the same boundary, and the result is always
// strictly after now.
func NextResetBoundary(now time.Time, offset time.Duration) time.Time {
	shifted := now.UTC().Add(offset)
	midnight := time.Date(shifted.Year(), shifted.Month(), shifted.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Add(24 * time.Hour).Add(-offset)
}

// ResetIn formats the time remaining until the boundary as a short
// human-readable countdown, e.g. "2h 13m".
func ResetIn(now, resetAt time.Time) string {
	d := resetAt.Sub(now)
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Minute)

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// ResetAtLocal formats the boundary as wall-clock time in the reset zone.
func ResetAtLocal(resetAt time.Time, offset time.Duration) string {
	zone := time.FixedZone(fmt.Sprintf("UTC%+d", int(offset.Hours())), int(offset.Seconds()))
	return resetAt.In(zone).Format("2006-01-02 15:04")
}
