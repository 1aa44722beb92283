package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/internal/repository"
	"whalecycle/backend/internal/service/cycle"
	"whalecycle/backend/pkg/logger"
	"whalecycle/backend/pkg/redis"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []model.CycleEvent
}

func (r *eventRecorder) PublishCycleEvent(_ context.Context, ev model.CycleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) types() []model.WSMessageType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.WSMessageType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type testEnv struct {
	mr     *miniredis.Miniredis
	redis  *redis.Client
	cycles *repository.CycleRepository
	users  *repository.UserRepository
	audit  *repository.AuditRepository
	events *eventRecorder
	svc    *CycleService
	clock  *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewFromAddr(mr.Addr())
	t.Cleanup(func() { _ = client.Close() })

	env := &testEnv{
		mr:     mr,
		redis:  client,
		cycles: repository.NewCycleRepository(client),
		users:  repository.NewUserRepository(client),
		audit:  repository.NewAuditRepository(client),
		events: &eventRecorder{},
		clock:  &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	env.svc = NewCycleService(env.cycles, cycle.DefaultRules(), env.events, logger.Nop())
	env.svc.now = env.clock.Now
	return env
}

func (e *testEnv) fund(t *testing.T, userID, amount string) {
	t.Helper()
	account := model.NewAccount(userID)
	account.WalletBalance = decimal.RequireFromString(amount)
	require.NoError(t, e.cycles.SaveAccount(context.Background(), account))
}

func (e *testEnv) balance(t *testing.T, userID string) string {
	t.Helper()
	account, err := e.cycles.GetAccount(context.Background(), userID)
	require.NoError(t, err)
	return account.WalletBalance.StringFixed(2)
}

func (e *testEnv) progress(t *testing.T, userID string) *model.Progress {
	t.Helper()
	p, err := e.cycles.GetProgress(context.Background(), userID)
	require.NoError(t, err)
	return p
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
