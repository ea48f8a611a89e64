package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planmate-app/backend/internal/config"
	"github.com/planmate-app/backend/internal/models"
	"github.com/planmate-app/backend/internal/quota"
	"github.com/planmate-app/backend/internal/repository"
)

// memStore is a single in-memory store behind every service interface the
// handlers touch, with the same conditional-update semantics as the SQL
// repositories.
type memStore struct {
	mu       sync.Mutex
	users    map[int64]*models.User
	chats    map[string]*models.Chat
	msgs     []*models.Message
	payments map[string]*models.Payment
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[int64]*models.User),
		chats:    make(map[string]*models.Chat),
		payments: make(map[string]*models.Payment),
	}
}

func (s *memStore) GetByTgID(ctx context.Context, tgID int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[tgID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.TgID]; ok {
		return repository.ErrUserExists
	}
	cp := *user
	s.users[user.TgID] = &cp
	return nil
}

func (s *memStore) ResetQuota(ctx context.Context, tgID int64, plans, media int, nextReset, now time.Time) (bool, error) {
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

func (s *memStore) ConsumeUnit(ctx context.Context, tgID int64, kind models.QuotaKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[tgID]
	if !ok {
		return false, nil
	}
	if kind == models.QuotaMedia {
		if u.MediaLeft <= 0 {
			return false, nil
		}
		u.MediaLeft--
		return true, nil
	}
	if u.PlansLeft <= 0 {
		return false, nil
	}
	u.PlansLeft--
	return true, nil
}

func (s *memStore) SetPremium(ctx context.Context, tgID int64, until time.Time, plans, media int, nextReset time.Time) error {
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

func (s *memStore) SaveCurrentPlan(ctx context.Context, tgID int64, plan json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[tgID]
	if !ok {
		return fmt.Errorf("user %d not found", tgID)
	}
	u.CurrentPlan = append([]byte(nil), plan...)
	return nil
}

func (s *memStore) Upsert(ctx context.Context, chat *models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *chat
	s.chats[fmt.Sprintf("%d/%s", chat.TgID, chat.ChatID)] = &cp
	return nil
}

func (s *memStore) Touch(ctx context.Context, tgID int64, chatID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%d/%s", tgID, chatID)
	if c, ok := s.chats[key]; ok {
		if at.After(c.UpdatedAt) {
			c.UpdatedAt = at
		}
		return nil
	}
	s.chats[key] = &models.Chat{TgID: tgID, ChatID: chatID, UpdatedAt: at}
	return nil
}

func (s *memStore) ListByUser(ctx context.Context, tgID int64) ([]*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Chat
	for _, c := range s.chats {
		if c.TgID == tgID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *memStore) InsertMessage(msg *models.Message) {
	cp := *msg
	cp.ID = uuid.NewString()
	s.msgs = append(s.msgs, &cp)
}

func (s *memStore) Insert(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *msg
	m.MsgID = ""
	s.InsertMessage(&m)
	return nil
}

func (s *memStore) InsertExchange(ctx context.Context, userMsg, assistantMsg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range []*models.Message{userMsg, assistantMsg} {
		m := *msg
		m.MsgID = ""
		s.InsertMessage(&m)
	}
	return nil
}

func (s *memStore) UpsertMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if m.TgID == msg.TgID && m.MsgID == msg.MsgID {
			m.ChatID = msg.ChatID
			m.Role = msg.Role
			m.Content = msg.Content
			return nil
		}
	}
	s.InsertMessage(msg)
	return nil
}

func (s *memStore) ListSince(ctx context.Context, tgID int64, since *time.Time) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Message
	for _, m := range s.msgs {
		if m.TgID != tgID {
			continue
		}
		if since != nil && m.CreatedAt.Before(*since) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) ListRecentByChat(ctx context.Context, tgID int64, chatID string, limit int) ([]*models.Message, error) {
	all, err := s.ListSince(ctx, tgID, nil)
	if err != nil {
		return nil, err
	}
	var out []*models.Message
	for _, m := range all {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memStore) CreatePayment(ctx context.Context, p *models.Payment) error {
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
		Env: "test",
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

// memMsgs exposes the message slice of memStore under the method set the
// sync service expects. memStore itself carries the chat Upsert.
type memMsgs struct{ *memStore }

func (m memMsgs) Upsert(ctx context.Context, msg *models.Message) error {
	return m.UpsertMessage(ctx, msg)
}

// memPayments exposes the payment slice of memStore
type memPayments struct{ *memStore }

func (m memPayments) Create(ctx context.Context, p *models.Payment) error {
	return m.CreatePayment(ctx, p)
}

// memTasks is a standalone task-state store
type memTasks struct {
	mu   sync.Mutex
	docs map[int64]json.RawMessage
}

func newMemTasks() *memTasks {
	return &memTasks{docs: make(map[int64]json.RawMessage)}
}

func (s *memTasks) Replace(ctx context.Context, tgID int64, doc json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[tgID] = append(json.RawMessage(nil), doc...)
	return nil
}

func (s *memTasks) Get(ctx context.Context, tgID int64) (*models.TaskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[tgID]
	if !ok {
		return &models.TaskState{TgID: tgID, Doc: models.DefaultTaskStateDoc}, nil
	}
	return &models.TaskState{TgID: tgID, Doc: doc}, nil
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newQuotaService(store *memStore) *quota.Service {
	return quota.NewService(store, testConfig()).WithClock(func() time.Time { return testNow })
}
