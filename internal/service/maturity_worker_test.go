package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/pkg/logger"
	"whalecycle/backend/pkg/redis"
)

func newTestWorker(env *testEnv) *MaturityWorker {
	w := NewMaturityWorker(env.cycles, env.svc, env.redis, time.Minute, logger.Nop())
	w.now = env.clock.Now
	return w
}

func TestMaturityWorkerCompletesDueCycles(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	worker := newTestWorker(env)
	env.fund(t, "u1", "500")

	long, err := env.svc.StartCycle(ctx, "u1", startReq(1, "100", 1)) // 25 days
	require.NoError(t, err)
	short, err := env.svc.StartCycle(ctx, "u1", startReq(1, "50", 2))
	require.NoError(t, err)

	n, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.clock.Advance(25 * 24 * time.Hour)
	n, err = worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "650.00", env.balance(t, "u1"))

	for _, id := range []string{long, short} {
		c, err := env.cycles.GetCycle(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.CycleStatusCompleted, c.Status)
	}

	entries, err := env.audit.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.ActorSystem, entries[0].AdminID)

	n, err = worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMaturityWorkerSkipsWhenLocked(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	worker := newTestWorker(env)
	env.fund(t, "u1", "500")

	_, err := env.svc.StartCycle(ctx, "u1", startReq(1, "100", 1))
	require.NoError(t, err)
	env.clock.Advance(26 * 24 * time.Hour)

	ok, err := env.redis.LockKey(ctx, redis.MaturityLockKey(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "400.00", env.balance(t, "u1"))
}

func TestMaturityWorkerStartStop(t *testing.T) {
	env := newTestEnv(t)
	worker := NewMaturityWorker(env.cycles, env.svc, env.redis, 10*time.Millisecond, logger.Nop())
	worker.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	worker.Stop()
}
