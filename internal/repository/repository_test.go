package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/pkg/coinglass"
	"whalecycle/backend/pkg/redis"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewFromAddr(mr.Addr())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newActiveCycle(userID string, chance int, start time.Time) *model.Cycle {
	return &model.Cycle{
		ID:               uuid.NewString(),
		UserID:           userID,
		CycleType:        1,
		ChanceNumber:     chance,
		InvestmentAmount: decimal.NewFromInt(100),
		StartDate:        start,
		EndDate:          start.Add(25 * 24 * time.Hour),
		CurrentProfit:    decimal.Zero,
		Status:           model.CycleStatusActive,
		CreatedAt:        start,
	}
}

func TestUserRepositoryCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestRedis(t))

	u := &model.User{ID: "u1", TelegramUsername: "WhaleKing", Role: model.RoleUser, Status: model.StatusActive}
	require.NoError(t, repo.Create(ctx, u))

	got, err := repo.GetByTelegramUsername(ctx, "@whaleking")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	err = repo.Create(ctx, &model.User{ID: "u2", TelegramUsername: "whaleking"})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)

	users, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestRevocationMarker(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestRedis(t))

	at, err := repo.RevokedBefore(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, at.IsZero())

	now := time.Now()
	require.NoError(t, repo.RevokeSessions(ctx, "u1", now, time.Hour))

	at, err = repo.RevokedBefore(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), at.UnixMilli())
}

func TestSessionsAreDeletedTogether(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestRedis(t))

	for _, id := range []string{"s1", "s2"} {
		require.NoError(t, repo.CreateSession(ctx, &model.Session{ID: id, UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}))
	}
	require.NoError(t, repo.DeleteUserSessions(ctx, "u1"))

	_, err := repo.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestWithUserTxCommitsEverythingTogether(t *testing.T) {
	ctx := context.Background()
	repo := NewCycleRepository(newTestRedis(t))
	start := time.Now().UTC()
	c := newActiveCycle("u1", 1, start)

	err := repo.WithUserTx(ctx, "u1", func(tx *UserTx) error {
		tx.Account.WalletBalance = decimal.NewFromInt(400)
		tx.SaveAccount()
		tx.SaveCycle(c)
		tx.AppendAudit(&model.AuditEntry{ID: "a1", ActionType: "test", CreatedAt: start})
		return nil
	})
	require.NoError(t, err)

	account, err := repo.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, account.WalletBalance.Equal(decimal.NewFromInt(400)))

	active, err := repo.ListAll(ctx, model.CycleStatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, c.ID, active[0].ID)

	var seenID string
	require.NoError(t, repo.WithUserTx(ctx, "u1", func(tx *UserTx) error {
		seenID, _ = tx.ActiveCycleID(1)
		return nil
	}))
	assert.Equal(t, c.ID, seenID)
}

func TestWithUserTxTerminalCycleFreesSlot(t *testing.T) {
	ctx := context.Background()
	repo := NewCycleRepository(newTestRedis(t))
	start := time.Now().Add(-30 * 24 * time.Hour).UTC()
	c := newActiveCycle("u1", 2, start)

	require.NoError(t, repo.WithUserTx(ctx, "u1", func(tx *UserTx) error {
		tx.SaveCycle(c)
		return nil
	}))

	due, err := repo.ListDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, repo.WithUserTx(ctx, "u1", func(tx *UserTx) error {
		id, ok := tx.ActiveCycleID(2)
		require.True(t, ok)
		loaded, err := tx.Cycle(id)
		require.NoError(t, err)
		loaded.Status = model.CycleStatusCompleted
		tx.SaveCycle(loaded)
		return nil
	}))

	require.NoError(t, repo.WithUserTx(ctx, "u1", func(tx *UserTx) error {
		_, ok := tx.ActiveCycleID(2)
		assert.False(t, ok)
		return nil
	}))

	due, err = repo.ListDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	active, err := repo.ListAll(ctx, model.CycleStatusActive)
	require.NoError(t, err)
	assert.Empty(t, active)

	completed, err := repo.ListAll(ctx, model.CycleStatusCompleted)
	require.NoError(t, err)
	assert.Len(t, completed, 1)

	all, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWithUserTxHidesOtherUsersCycles(t *testing.T) {
	ctx := context.Background()
	repo := NewCycleRepository(newTestRedis(t))
	c := newActiveCycle("owner", 1, time.Now())

	require.NoError(t, repo.WithUserTx(ctx, "owner", func(tx *UserTx) error {
		tx.SaveCycle(c)
		return nil
	}))

	err := repo.WithUserTx(ctx, "intruder", func(tx *UserTx) error {
		_, err := tx.Cycle(c.ID)
		return err
	})
	assert.ErrorIs(t, err, ErrCycleNotFound)
}

func TestWithUserTxRetriesWhenAccountChanges(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)
	repo := NewCycleRepository(client)
	other := NewCycleRepository(client)

	attempts := 0
	err := repo.WithUserTx(ctx, "u1", func(tx *UserTx) error {
		attempts++
		if attempts == 1 {
			// A concurrent writer commits between our read and our EXEC
			require.NoError(t, other.SaveAccount(ctx, &model.Account{UserID: "u1", WalletBalance: decimal.NewFromInt(50)}))
		}
		tx.Account.WalletBalance = tx.Account.WalletBalance.Add(decimal.NewFromInt(1))
		tx.SaveAccount()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	account, err := repo.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, account.WalletBalance.Equal(decimal.NewFromInt(51)))
}

func TestAuditRepositoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepository(newTestRedis(t))
	now := time.Now()

	require.NoError(t, repo.Append(ctx, &model.AuditEntry{ID: "old", CreatedAt: now.Add(-time.Minute)}))
	require.NoError(t, repo.Append(ctx, &model.AuditEntry{ID: "new", CreatedAt: now}))

	entries, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "new", entries[0].ID)
}

func TestRedisSnapshotStore(t *testing.T) {
	ctx := context.Background()
	store := NewRedisSnapshotStore(newTestRedis(t))
	now := time.Now()

	positions := []coinglass.WhalePosition{{User: "0xAbC", Symbol: "BTC", UnrealizedPnL: 10.5, PositionValueUSD: 1000}}
	require.NoError(t, store.Save(ctx, model.NewWhalePnLSnapshot("s1", "0xAbC", positions, now.Add(-time.Minute))))
	require.NoError(t, store.Save(ctx, model.NewWhalePnLSnapshot("s2", "0xAbC", nil, now)))

	snaps, err := store.ListRecent(ctx, "0xabc", 10)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "s2", snaps[0].ID)
	assert.Equal(t, 1, snaps[1].PositionCount)
	assert.True(t, snaps[1].TotalUnrealizedPnL.Equal(decimal.RequireFromString("10.5")))
}
