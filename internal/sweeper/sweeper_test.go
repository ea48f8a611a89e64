package sweeper

import (
	"context"
	"sort"
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

// fakeUserStore backs both the quota resolver and the due-user listing
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
	return false, nil
}

func (s *fakeUserStore) ListResetDue(ctx context.Context, now time.Time, limit int) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.User
	for _, u := range s.users {
		if !u.QuotaNextResetAt.After(now) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TgID < out[j].TgID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func testConfig() *config.Config {
	return &config.Config{
		TierLimits: map[string]config.TierLimits{
			models.TierFree:    {Plans: 3, Media: 3},
			models.TierPremium: {Plans: 30, Media: 30},
		},
		QuotaResetOffset: 3 * time.Hour,
	}
}

func TestRunOnceResetsDueUsers(t *testing.T) {
	store := newFakeUserStore()
	now := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	futureBoundary := time.Date(2026, 3, 11, 21, 0, 0, 0, time.UTC)
	pastBoundary := time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)

	store.users[1] = &models.User{TgID: 1, Tier: models.TierFree, PlansLeft: 0, MediaLeft: 0, QuotaNextResetAt: pastBoundary}
	store.users[2] = &models.User{TgID: 2, Tier: models.TierFree, PlansLeft: 2, MediaLeft: 1, QuotaNextResetAt: futureBoundary}
	store.users[3] = &models.User{TgID: 3, Tier: models.TierFree, PlansLeft: 0, MediaLeft: 3, QuotaNextResetAt: pastBoundary}

	quotaSvc := quota.NewService(store, testConfig()).WithClock(clock)
	sw := NewSweeper(store, quotaSvc, 500)
	sw.now = clock

	res, err := sw.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Due)
	assert.Equal(t, 2, res.Reset)
	assert.Equal(t, 0, res.Errors)

	assert.Equal(t, 3, store.users[1].PlansLeft)
	assert.Equal(t, 3, store.users[3].PlansLeft)
	assert.True(t, store.users[1].QuotaNextResetAt.After(now))

	// Untouched user keeps its partial counters
	assert.Equal(t, 2, store.users[2].PlansLeft)
	assert.Equal(t, futureBoundary, store.users[2].QuotaNextResetAt)
}

func TestRunOnceRespectsBatchLimit(t *testing.T) {
	store := newFakeUserStore()
	now := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	pastBoundary := time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 5; i++ {
		store.users[i] = &models.User{TgID: i, Tier: models.TierFree, QuotaNextResetAt: pastBoundary}
	}

	quotaSvc := quota.NewService(store, testConfig()).WithClock(clock)
	sw := NewSweeper(store, quotaSvc, 2)
	sw.now = clock

	res, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Due)
	assert.Equal(t, 2, res.Reset)

	// A second pass picks up the remainder
	res, err = sw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Reset)
}

func TestRunOnceIdempotentWithLazyReset(t *testing.T) {
	store := newFakeUserStore()
	now := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	pastBoundary := time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)
	store.users[1] = &models.User{TgID: 1, Tier: models.TierFree, PlansLeft: 0, QuotaNextResetAt: pastBoundary}

	quotaSvc := quota.NewService(store, testConfig()).WithClock(clock)
	sw := NewSweeper(store, quotaSvc, 500)
	sw.now = clock

	// The request path resets first
	_, err := quotaSvc.Resolve(context.Background(), 1)
	require.NoError(t, err)
	boundary := store.users[1].QuotaNextResetAt

	// The sweep that raced it finds nothing due
	res, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Due)
	assert.Equal(t, boundary, store.users[1].QuotaNextResetAt)
}
