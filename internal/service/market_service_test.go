package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whalecycle/backend/internal/repository"
	"whalecycle/backend/internal/util"
	"whalecycle/backend/pkg/coinglass"
	"whalecycle/backend/pkg/logger"
)

type fakeWhaleSource struct {
	positions []coinglass.WhalePosition
	alerts    []coinglass.WhaleAlert
	err       error
	calls     int
}

func (f *fakeWhaleSource) GetWhalePositions(_ context.Context, _ string) ([]coinglass.WhalePosition, error) {
	f.calls++
	return f.positions, f.err
}

func (f *fakeWhaleSource) GetWhaleAlerts(_ context.Context, _ string) ([]coinglass.WhaleAlert, error) {
	f.calls++
	return f.alerts, f.err
}

const testWhale = "0xABC"

func newTestMarket(env *testEnv, source WhaleSource, address string) *MarketService {
	return NewMarketService(source, env.redis, repository.NewRedisSnapshotStore(env.redis), address, 15*time.Second, logger.Nop())
}

func TestWhalePositionsCached(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	source := &fakeWhaleSource{positions: []coinglass.WhalePosition{{User: testWhale, Symbol: "BTC", UnrealizedPnL: 12.5}}}
	market := newTestMarket(env, source, testWhale)

	first, err := market.GetWhalePositions(ctx)
	require.NoError(t, err)
	second, err := market.GetWhalePositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, source.calls)

	env.mr.FastForward(16 * time.Second)
	_, err = market.GetWhalePositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestWhaleAlertsEmptyIsCached(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	source := &fakeWhaleSource{}
	market := newTestMarket(env, source, testWhale)

	alerts, err := market.GetWhaleAlerts(ctx)
	require.NoError(t, err)
	assert.NotNil(t, alerts)
	assert.Empty(t, alerts)

	_, err = market.GetWhaleAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
}

func TestUpstreamErrorKeepsStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	source := &fakeWhaleSource{err: &coinglass.APIError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}}
	market := newTestMarket(env, source, testWhale)

	_, err := market.GetWhalePositions(ctx)
	require.True(t, util.HasCode(err, util.ErrCodeUpstream))
	assert.Equal(t, http.StatusTooManyRequests, util.GetAppError(err).StatusCode)

	_, err = market.SaveSnapshot(ctx)
	assert.True(t, util.HasCode(err, util.ErrCodeUpstream))
}

func TestMissingAddress(t *testing.T) {
	env := newTestEnv(t)
	market := newTestMarket(env, &fakeWhaleSource{}, "")

	_, err := market.GetWhalePositions(context.Background())
	require.True(t, util.HasCode(err, util.ErrCodeUpstream))
	assert.Equal(t, http.StatusServiceUnavailable, util.GetAppError(err).StatusCode)
}

func TestSaveAndListSnapshots(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	source := &fakeWhaleSource{positions: []coinglass.WhalePosition{
		{User: testWhale, Symbol: "BTC", UnrealizedPnL: 100.25, PositionValueUSD: 5000},
		{User: testWhale, Symbol: "ETH", UnrealizedPnL: -40.10, PositionValueUSD: 1200.5},
	}}
	market := newTestMarket(env, source, testWhale)
	market.now = env.clock.Now

	snap, err := market.SaveSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.PositionCount)
	assert.Equal(t, "60.15", snap.TotalUnrealizedPnL.String())
	assert.Equal(t, "6200.5", snap.TotalPositionValue.String())

	env.clock.Advance(time.Minute)
	source.positions = nil
	_, err = market.SaveSnapshot(ctx)
	require.NoError(t, err)

	list, err := market.ListSnapshots(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 0, list[0].PositionCount)
	assert.Equal(t, snap.ID, list[1].ID)
}
