package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/internal/util"
)

func startReq(cycleType int, amount string, chance int) *model.StartCycleRequest {
	return &model.StartCycleRequest{CycleType: cycleType, Amount: dec(amount), ChanceNumber: chance}
}

func TestStartAndCompleteCycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.fund(t, "u1", "500")

	id, err := env.svc.StartCycle(ctx, "u1", startReq(1, "100", 1))
	require.NoError(t, err)
	assert.Equal(t, "400.00", env.balance(t, "u1"))

	c, err := env.cycles.GetCycle(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.CycleStatusActive, c.Status)
	assert.Equal(t, 25*24*time.Hour, c.EndDate.Sub(c.StartDate))

	res, err := env.svc.CompleteCycle(ctx, "admin-1", id)
	require.NoError(t, err)
	assert.Equal(t, "200", res.FinalAmount.String())
	assert.Equal(t, "100", res.Profit.String())
	assert.Equal(t, "600.00", env.balance(t, "u1"))

	p := env.progress(t, "u1")
	assert.Equal(t, []int{1}, p.CompletedCycles)
	assert.NotNil(t, p.LastCompletionCheck)

	info, err := env.svc.GetCycleInfo(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, info.UnlockedCycles[2])
	assert.False(t, info.UnlockedCycles[3])
	assert.Nil(t, info.ActiveCycle)

	account, err := env.cycles.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "100", account.TotalInvestment.String())
	assert.Equal(t, "100", account.TotalProfit.String())

	entries, err := env.audit.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.AuditActionCompleteCycle, entries[0].ActionType)
	assert.Equal(t, "admin-1", entries[0].AdminID)
	assert.Equal(t, "200.00", entries[0].Details["final_amount"])

	assert.Equal(t, []model.WSMessageType{model.MessageTypeCycleStarted, model.MessageTypeCycleCompleted}, env.events.types())
}

func TestCompleteCycleIsNotRepeatable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.fund(t, "u1", "500")

	id, err := env.svc.StartCycle(ctx, "u1", startReq(1, "100", 1))
	require.NoError(t, err)
	_, err = env.svc.CompleteCycle(ctx, "admin-1", id)
	require.NoError(t, err)

	_, err = env.svc.CompleteCycle(ctx, "admin-1", id)
	assert.True(t, util.HasCode(err, util.ErrCodeNotFound))
	assert.Equal(t, "600.00", env.balance(t, "u1"))

	_, err = env.svc.CompleteCycle(ctx, "admin-1", "no-such-cycle")
	assert.True(t, util.HasCode(err, util.ErrCodeNotFound))
}

func TestCompleteCycleInPenaltyMode(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.fund(t, "u1", "1000")

	first, err := env.svc.StartCycle(ctx, "u1", startReq(1, "100", 1))
	require.NoError(t, err)
	second, err := env.svc.StartCycle(ctx, "u1", startReq(1, "200", 2))
	require.NoError(t, err)

	_, err = env.svc.WithdrawEarly(ctx, "u1", first)
	require.NoError(t, err)
	require.True(t, env.progress(t, "u1").IsPenaltyMode)

	res, err := env.svc.CompleteCycle(ctx, "admin-1", second)
	require.NoError(t, err)
	// 200 * 0.02 * 25 days
	assert.Equal(t, "100", res.Profit.String())
	assert.Equal(t, "300", res.FinalAmount.String())
	assert.False(t, env.progress(t, "u1").IsPenaltyMode)
}

func TestWithdrawEarly(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.fund(t, "u1", "500")

	id, err := env.svc.StartCycle(ctx, "u1", startReq(1, "100", 1))
	require.NoError(t, err)

	// 2.5 of 25 days accrues 10
	env.clock.Advance(60 * time.Hour)

	res, err := env.svc.WithdrawEarly(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, "10", res.ProfitSoFar.String())
	assert.Equal(t, "19.8", res.TaxApplied.String())
	assert.Equal(t, "90.2", res.WithdrawnAmount.String())
	assert.True(t, res.PenaltyModeActivated)
	assert.True(t, res.NextChanceUnlocked)
	assert.Equal(t, "490.20", env.balance(t, "u1"))

	c, err := env.cycles.GetCycle(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.CycleStatusBroken, c.Status)
	assert.Equal(t, "10", c.CurrentProfit.String())

	p := env.progress(t, "u1")
	assert.True(t, p.IsPenaltyMode)
	assert.True(t, p.SecondChanceUnlocked)

	_, err = env.svc.WithdrawEarly(ctx, "u1", id)
	assert.True(t, util.HasCode(err, util.ErrCodeNotFound))

	assert.Equal(t, []model.WSMessageType{
		model.MessageTypeCycleStarted,
		model.MessageTypeCycleBroken,
		model.MessageTypePenaltyChanged,
	}, env.events.types())
}

func TestWithdrawEarlyExemptType(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.fund(t, "u1", "1000")

	// unlock type 4
	for _, ct := range []int{1, 2, 3} {
		id, err := env.svc.StartCycle(ctx, "u1", startReq(ct, "10", 1))
		require.NoError(t, err)
		_, err = env.svc.CompleteCycle(ctx, "admin-1", id)
		require.NoError(t, err)
	}

	id, err := env.svc.StartCycle(ctx, "u1", startReq(4, "100", 1))
	require.NoError(t, err)
	env.clock.Advance(7 * 24 * time.Hour)

	res, err := env.svc.WithdrawEarly(ctx, "u1", id)
	require.NoError(t, err)
	assert.True(t, res.TaxApplied.IsZero())
	assert.Equal(t, "150", res.WithdrawnAmount.String())
	assert.False(t, res.PenaltyModeActivated)
	assert.False(t, env.progress(t, "u1").IsPenaltyMode)
}

func TestWithdrawEarlyForeignCycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.fund(t, "u1", "500")

	id, err := env.svc.StartCycle(ctx, "u1", startReq(1, "100", 1))
	require.NoError(t, err)

	_, err = env.svc.WithdrawEarly(ctx, "intruder", id)
	assert.True(t, util.HasCode(err, util.ErrCodeNotFound))
	assert.Equal(t, "400.00", env.balance(t, "u1"))
}

func TestStartCyclePreconditions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.fund(t, "u1", "500")

	tests := []struct {
		name string
		req  *model.StartCycleRequest
		code string
	}{
		{"zero amount", startReq(1, "0", 1), util.ErrCodeValidation},
		{"three decimals", startReq(1, "1.234", 1), util.ErrCodeValidation},
		{"over max", startReq(1, "1000000.01", 1), util.ErrCodeValidation},
		{"unknown type", startReq(5, "10", 1), util.ErrCodeValidation},
		{"unknown chance", startReq(1, "10", 3), util.ErrCodeValidation},
		{"locked type", startReq(2, "10", 1), util.ErrCodeCycleLocked},
		{"insufficient", startReq(1, "500.01", 1), util.ErrCodeInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.StartCycle(ctx, "u1", tt.req)
			require.Error(t, err)
			assert.True(t, util.HasCode(err, tt.code), "got %v", err)
		})
	}

	assert.Equal(t, "500.00", env.balance(t, "u1"))
	assert.Empty(t, env.events.types())
}

func TestStartCycleOnePerChance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.fund(t, "u1", "500")

	_, err := env.svc.StartCycle(ctx, "u1", startReq(1, "100", 1))
	require.NoError(t, err)

	_, err = env.svc.StartCycle(ctx, "u1", startReq(1, "100", 1))
	assert.True(t, util.HasCode(err, util.ErrCodeCycleAlreadyActive))

	_, err = env.svc.StartCycle(ctx, "u1", startReq(1, "100", 2))
	require.NoError(t, err)
	assert.Equal(t, "300.00", env.balance(t, "u1"))
}

func TestStartCycleSecondChanceGate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.svc.rules.RequireSecondChance = true
	env.fund(t, "u1", "500")

	_, err := env.svc.StartCycle(ctx, "u1", startReq(1, "100", 2))
	assert.True(t, util.HasCode(err, util.ErrCodeCycleLocked))

	id, err := env.svc.StartCycle(ctx, "u1", startReq(1, "100", 1))
	require.NoError(t, err)
	_, err = env.svc.WithdrawEarly(ctx, "u1", id)
	require.NoError(t, err)

	_, err = env.svc.StartCycle(ctx, "u1", startReq(1, "100", 2))
	assert.NoError(t, err)
}

func TestStartCycleConcurrentDoubleSubmit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.fund(t, "u1", "500")

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.StartCycle(ctx, "u1", startReq(1, "100", 1))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, util.HasCode(err, util.ErrCodeCycleAlreadyActive) || util.HasCode(err, util.ErrCodeConflict), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, "400.00", env.balance(t, "u1"))

	cycles, err := env.cycles.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, cycles, 1)
}

func TestAddInvestment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.fund(t, "u1", "500")

	id, err := env.svc.StartCycle(ctx, "u1", startReq(1, "100", 1))
	require.NoError(t, err)

	c, err := env.svc.AddInvestment(ctx, "u1", &model.AddInvestmentRequest{CycleID: id, Amount: dec("50")})
	require.NoError(t, err)
	assert.Equal(t, "150", c.TotalInvested().String())
	assert.Equal(t, "350.00", env.balance(t, "u1"))

	_, err = env.svc.AddInvestment(ctx, "u1", &model.AddInvestmentRequest{CycleID: id, Amount: dec("351")})
	assert.True(t, util.HasCode(err, util.ErrCodeInsufficientBalance))

	res, err := env.svc.CompleteCycle(ctx, "admin-1", id)
	require.NoError(t, err)
	assert.Equal(t, "300", res.FinalAmount.String())

	_, err = env.svc.AddInvestment(ctx, "u1", &model.AddInvestmentRequest{CycleID: id, Amount: dec("10")})
	assert.True(t, util.HasCode(err, util.ErrCodeNotFound))
}

func TestAddInvestmentClosedAtEndDate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.fund(t, "u1", "1000")

	id, err := env.svc.StartCycle(ctx, "u1", startReq(1, "100", 1))
	require.NoError(t, err)

	env.clock.Advance(25 * 24 * time.Hour)
	_, err = env.svc.AddInvestment(ctx, "u1", &model.AddInvestmentRequest{CycleID: id, Amount: dec("900")})
	assert.True(t, util.HasCode(err, util.ErrCodeValidation), "got %v", err)

	env.clock.Advance(24 * time.Hour)
	_, err = env.svc.AddInvestment(ctx, "u1", &model.AddInvestmentRequest{CycleID: id, Amount: dec("900")})
	assert.True(t, util.HasCode(err, util.ErrCodeValidation), "got %v", err)
	assert.Equal(t, "900.00", env.balance(t, "u1"))

	res, err := env.svc.CompleteCycle(ctx, "admin-1", id)
	require.NoError(t, err)
	assert.Equal(t, "200.00", res.FinalAmount.StringFixed(2))
	assert.Equal(t, "1100.00", env.balance(t, "u1"))
}

func TestLateTopUpAccruesFromItsOwnDate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.fund(t, "u1", "1000")

	id, err := env.svc.StartCycle(ctx, "u1", startReq(1, "100", 1))
	require.NoError(t, err)

	env.clock.Advance(24 * 24 * time.Hour)
	_, err = env.svc.AddInvestment(ctx, "u1", &model.AddInvestmentRequest{CycleID: id, Amount: dec("900")})
	require.NoError(t, err)
	assert.Equal(t, "0.00", env.balance(t, "u1"))

	// 100 * 24/25 accrued, the fresh 900 nothing yet
	res, err := env.svc.WithdrawEarly(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, "96.00", res.ProfitSoFar.StringFixed(2))
	assert.Equal(t, "197.28", res.TaxApplied.StringFixed(2)) // 1096 * 0.18
	assert.Equal(t, "898.72", res.WithdrawnAmount.StringFixed(2))
	assert.Equal(t, "898.72", env.balance(t, "u1"))
}

func TestCompletionPaysTopUpsProRata(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.fund(t, "u1", "200")

	id, err := env.svc.StartCycle(ctx, "u1", startReq(1, "100", 1))
	require.NoError(t, err)

	env.clock.Advance(20 * 24 * time.Hour)
	_, err = env.svc.AddInvestment(ctx, "u1", &model.AddInvestmentRequest{CycleID: id, Amount: dec("100")})
	require.NoError(t, err)

	env.clock.Advance(5 * 24 * time.Hour)
	res, err := env.svc.CompleteCycle(ctx, "admin-1", id)
	require.NoError(t, err)
	assert.Equal(t, "120.00", res.Profit.StringFixed(2)) // 100 + 100 * 5/25
	assert.Equal(t, "320.00", res.FinalAmount.StringFixed(2))
	assert.Equal(t, "320.00", env.balance(t, "u1"))
}

func TestGetCycleInfoAndHistory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.fund(t, "u1", "1000")

	done, err := env.svc.StartCycle(ctx, "u1", startReq(1, "100", 1))
	require.NoError(t, err)
	_, err = env.svc.CompleteCycle(ctx, "admin-1", done)
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	broken, err := env.svc.StartCycle(ctx, "u1", startReq(2, "100", 1))
	require.NoError(t, err)
	env.clock.Advance(9 * 24 * time.Hour)
	_, err = env.svc.WithdrawEarly(ctx, "u1", broken)
	require.NoError(t, err)

	active, err := env.svc.StartCycle(ctx, "u1", startReq(2, "200", 2))
	require.NoError(t, err)
	env.clock.Advance(24 * time.Hour)

	info, err := env.svc.GetCycleInfo(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, info.ActiveCycle)
	assert.Equal(t, active, info.ActiveCycle.ID)
	assert.Nil(t, info.ActiveCycles[1])
	require.Len(t, info.Accrual, 1)
	// penalty mode: 200 * 0.02 * 1 day
	assert.Equal(t, "4", info.Accrual[0].ProfitSoFar.String())

	history, err := env.svc.GetCycleHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history.Cycles, 2)
	assert.Equal(t, broken, history.Cycles[0].ID)
	assert.Equal(t, done, history.Cycles[1].ID)
	assert.Equal(t, 1, history.Stats.CompletedCount)
	assert.Equal(t, 1, history.Stats.BrokenCount)
	// 100 + 50 profit; broken tax (100+50)*0.18
	assert.Equal(t, "150", history.Stats.TotalProfit.String())
	assert.Equal(t, "27", history.Stats.TotalTax.String())
}
