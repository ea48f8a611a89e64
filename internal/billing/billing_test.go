package billing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planmate-app/backend/internal/config"
	"github.com/planmate-app/backend/internal/models"
	"github.com/planmate-app/backend/internal/quota"
	"github.com/planmate-app/backend/internal/repository"
)

// fakeUserStore backs both the quota resolver and the entitlement writer
type fakeUserStore struct {
	mu    sync.Mutex
	users map[int64]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[int64]*models.User)}
}

func (s *fakeUserStore) GetByTgID(ctx context.Context, tgID int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[tgID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.TgID]; ok {
		return repository.ErrUserExists
	}
	cp := *user
	s.users[user.TgID] = &cp
	return nil
}

func (s *fakeUserStore) ResetQuota(ctx context.Context, tgID int64, plans, media int, nextReset, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[tgID]
	if !ok || u.QuotaNextResetAt.After(now) {
		return false, nil
	}
	u.PlansLeft = plans
	u.MediaLeft = media
	u.QuotaNextResetAt = nextReset
	return true, nil
}

func (s *fakeUserStore) ConsumeUnit(ctx context.Context, tgID int64, kind models.QuotaKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[tgID]
	if !ok {
		return false, nil
	}
	if kind == models.QuotaMedia && u.MediaLeft > 0 {
		u.MediaLeft--
		return true, nil
	}
	if kind == models.QuotaPlans && u.PlansLeft > 0 {
		u.PlansLeft--
		return true, nil
	}
	return false, nil
}

func (s *fakeUserStore) SetPremium(ctx context.Context, tgID int64, until time.Time, plans, media int, nextReset time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[tgID]
	if !ok {
		return fmt.Errorf("user %d not found", tgID)
	}
	if u.Tier != models.TierDeveloper {
		u.Tier = models.TierPremium
	}
	u.PremiumUntil = &until
	u.PlansLeft = plans
	u.MediaLeft = media
	u.QuotaNextResetAt = nextReset
	return nil
}

type fakePaymentStore struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{payments: make(map[string]*models.Payment)}
}

func (s *fakePaymentStore) Create(ctx context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%d/%s", p.TgID, p.ChargeID)
	if _, ok := s.payments[key]; ok {
		return repository.ErrPaymentExists
	}
	cp := *p
	s.payments[key] = &cp
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		TierLimits: map[string]config.TierLimits{
			models.TierFree:      {Plans: 3, Media: 3},
			models.TierPremium:   {Plans: 30, Media: 30},
			models.TierDeveloper: {Plans: config.Unlimited, Media: config.Unlimited},
		},
		QuotaResetOffset: 3 * time.Hour,
		PlanMonthDays:    30,
		PlanYearDays:     365,
	}
}

func newTestService(users *fakeUserStore, payments *fakePaymentStore, now time.Time) *Service {
	cfg := testConfig()
	clock := func() time.Time { return now }
	quotaSvc := quota.NewService(users, cfg).WithClock(clock)
	return NewService(users, payments, quotaSvc, cfg).WithClock(clock)
}

func TestPlanFromPayload(t *testing.T) {
	tests := []struct {
		payload string
		plan    string
		ok      bool
	}{
		{"premium_month", models.PlanMonth, true},
		{"premium_year", models.PlanYear, true},
		{"premium_week", "", false},
		{"month", "", false},
		{"", "", false},
		{"topup_100", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			plan, ok := PlanFromPayload(tt.payload)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.plan, plan)
		})
	}
}

func TestApplyPaymentActivatesPremium(t *testing.T) {
	users := newFakeUserStore()
	payments := newFakePaymentStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newTestService(users, payments, now)

	isNew, err := svc.ApplyPayment(context.Background(), 42, "ch_1", "XTR", 250, "premium_month")
	require.NoError(t, err)
	assert.True(t, isNew)

	u := users.users[42]
	require.NotNil(t, u.PremiumUntil)
	assert.Equal(t, now.Add(30*24*time.Hour), *u.PremiumUntil)
	assert.Equal(t, models.TierPremium, u.EffectiveTier(now))
	assert.Equal(t, 30, u.PlansLeft)
	assert.Equal(t, 30, u.MediaLeft)
	assert.Len(t, payments.payments, 1)
}

func TestApplyPaymentDuplicateChargeIsNoOp(t *testing.T) {
	users := newFakeUserStore()
	payments := newFakePaymentStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newTestService(users, payments, now)

	ctx := context.Background()
	isNew, err := svc.ApplyPayment(ctx, 42, "ch_1", "XTR", 250, "premium_month")
	require.NoError(t, err)
	require.True(t, isNew)
	firstUntil := *users.users[42].PremiumUntil

	// Webhook redelivery of the same charge
	isNew, err = svc.ApplyPayment(ctx, 42, "ch_1", "XTR", 250, "premium_month")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, firstUntil, *users.users[42].PremiumUntil, "duplicate must not extend")
	assert.Len(t, payments.payments, 1)
}

func TestApplyPaymentStacksFromCurrentExpiry(t *testing.T) {
	users := newFakeUserStore()
	payments := newFakePaymentStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newTestService(users, payments, now)

	ctx := context.Background()
	_, err := svc.ApplyPayment(ctx, 42, "ch_1", "XTR", 250, "premium_month")
	require.NoError(t, err)
	_, err = svc.ApplyPayment(ctx, 42, "ch_2", "XTR", 250, "premium_month")
	require.NoError(t, err)

	assert.Equal(t, now.Add(60*24*time.Hour), *users.users[42].PremiumUntil)
}

func TestApplyPaymentExtendsFromNowWhenLapsed(t *testing.T) {
	users := newFakeUserStore()
	payments := newFakePaymentStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	lapsed := now.Add(-10 * 24 * time.Hour)
	users.users[42] = &models.User{
		TgID: 42, Tier: models.TierPremium,
		PremiumUntil:     &lapsed,
		PlansLeft:        0,
		MediaLeft:        0,
		QuotaNextResetAt: now.Add(time.Hour),
	}
	svc := newTestService(users, payments, now)

	_, err := svc.ApplyPayment(context.Background(), 42, "ch_3", "XTR", 2500, "premium_year")
	require.NoError(t, err)

	assert.Equal(t, now.Add(365*24*time.Hour), *users.users[42].PremiumUntil)
}

func TestApplyPaymentPreservesDeveloperTier(t *testing.T) {
	users := newFakeUserStore()
	payments := newFakePaymentStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	users.users[42] = &models.User{
		TgID: 42, Tier: models.TierDeveloper,
		PlansLeft: 0, MediaLeft: 0,
		QuotaNextResetAt: now.Add(time.Hour),
	}
	svc := newTestService(users, payments, now)

	_, err := svc.ApplyPayment(context.Background(), 42, "ch_1", "XTR", 250, "premium_month")
	require.NoError(t, err)

	assert.Equal(t, models.TierDeveloper, users.users[42].Tier)
	assert.NotNil(t, users.users[42].PremiumUntil)
}

func TestApplyPaymentRejectsUnknownPayload(t *testing.T) {
	users := newFakeUserStore()
	payments := newFakePaymentStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newTestService(users, payments, now)

	isNew, err := svc.ApplyPayment(context.Background(), 42, "ch_1", "XTR", 250, "premium_forever")
	assert.ErrorIs(t, err, ErrUnknownPlan)
	assert.False(t, isNew)
	assert.Empty(t, payments.payments, "no payment may be recorded for a bad payload")
}

func TestHandlePreCheckout(t *testing.T) {
	tests := []struct {
		name    string
		tgID    int64
		payload string
		wantErr bool
	}{
		{"valid month", 42, "premium_month", false},
		{"valid year", 42, "premium_year", false},
		{"unknown plan", 42, "premium_forever", true},
		{"missing identity", 0, "premium_month", true},
		{"empty payload", 42, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := newFakeUserStore()
			now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
			svc := newTestService(users, newFakePaymentStore(), now)

			err := svc.HandlePreCheckout(context.Background(), tt.tgID, tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, users.users, tt.tgID, "pre-checkout ensures the user row exists")
		})
	}
}
