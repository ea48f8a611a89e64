// Package sweeper is the eager half of the quota reset duality: a periodic
// batch job that restores counters for idle users whose deadline has passed.
// The lazy per-request reset stays authoritative; this job only keeps stored
// counters eventually consistent, and its failures never reach a request.
package sweeper

import (
	"context"
	"log"
	"time"

	"github.com/planmate-app/backend/internal/models"
	"github.com/planmate-app/backend/internal/quota"
)

// UserStore lists users whose reset deadline has passed.
// *repository.UserRepository satisfies it.
type UserStore interface {
	ListResetDue(ctx context.Context, now time.Time, limit int) ([]*models.User, error)
}

// Sweeper resets due quota counters in bulk
type Sweeper struct {
	users UserStore
	quota *quota.Service
	batch int
	now   func() time.Time
}

// NewSweeper creates a new sweeper
func NewSweeper(users UserStore, quotaSvc *quota.Service, batch int) *Sweeper {
	if batch <= 0 {
		batch = 500
	}
	return &Sweeper{
		users: users,
		quota: quotaSvc,
		batch: batch,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SweepResult summarizes one sweep pass
type SweepResult struct {
	Due      int
	Reset    int
	Errors   int
	Duration time.Duration
}

// RunOnce performs a single sweep pass. Per-user failures are logged and
// swallowed; leftover rows beyond the batch cap wait for the next tick or
// for the lazy per-request reset.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	res := &SweepResult{}

	due, err := s.users.ListResetDue(ctx, s.now(), s.batch)
	if err != nil {
		return nil, err
	}
	res.Due = len(due)

	for _, user := range due {
		if err := s.quota.SweepReset(ctx, user); err != nil {
			res.Errors++
			log.Printf("[sweeper] Reset failed for user %d: %v", user.TgID, err)
			continue
		}
		res.Reset++
	}

	res.Duration = time.Since(start)
	return res, nil
}
