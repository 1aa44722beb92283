// Package cycle holds the pure rules of the investment cycle engine:
// durations, the unlock ladder, accrual, completion payout and early withdrawal.
// Nothing here touches storage or the clock; callers pass "now" in.
package cycle

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"whalecycle/backend/internal/model"
)

const (
	MinCycleType = 1
	MaxCycleType = 4

	MinChance = 1
	MaxChance = 2

	// AmountPlaces is the number of fractional digits money is kept at
	AmountPlaces = 2
)

var (
	ErrAmountNotPositive = errors.New("amount must be greater than zero")
	ErrAmountTooLarge    = errors.New("amount must not exceed 1,000,000")
	ErrAmountPrecision   = errors.New("amount must have at most 2 decimal places")
	ErrInvalidCycleType  = errors.New("cycle_type must be between 1 and 4")
	ErrInvalidChance     = errors.New("chance_number must be 1 or 2")
)

var (
	day           = decimal.NewFromInt(int64(24 * time.Hour / time.Millisecond))
	two           = decimal.NewFromInt(2)
	maxAmount     = decimal.NewFromInt(1_000_000)
	defaultDays   = map[int]int{1: 25, 2: 18, 3: 14, 4: 14}
	defaultRate   = decimal.RequireFromString("0.02")
	defaultTax    = decimal.RequireFromString("0.18")
	defaultExempt = []int{4}
)

// Rules parameterizes the engine. The zero value is not usable; start from DefaultRules.
type Rules struct {
	DurationDays       map[int]int
	PenaltyDailyRate   decimal.Decimal
	EarlyWithdrawTax   decimal.Decimal
	MaxAmount          decimal.Decimal
	TaxExemptTypes     map[int]bool
	PenaltyExemptTypes map[int]bool

	// RequireSecondChance refuses chance 2 until a chance 1 cycle has been broken
	RequireSecondChance bool
}

// DefaultRules returns durations {25,18,14,14}, 2% daily penalty rate and 18% early tax,
// with type 4 exempt from both the tax and penalty mode.
func DefaultRules() Rules {
	durations := make(map[int]int, len(defaultDays))
	for k, v := range defaultDays {
		durations[k] = v
	}
	return Rules{
		DurationDays:       durations,
		PenaltyDailyRate:   defaultRate,
		EarlyWithdrawTax:   defaultTax,
		MaxAmount:          maxAmount,
		TaxExemptTypes:     TypeSet(defaultExempt),
		PenaltyExemptTypes: TypeSet(defaultExempt),
	}
}

// TypeSet builds a lookup set from a list of cycle types
func TypeSet(types []int) map[int]bool {
	set := make(map[int]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

// ValidCycleType reports whether t is a known cycle type
func ValidCycleType(t int) bool {
	return t >= MinCycleType && t <= MaxCycleType
}

// ValidChance reports whether c is a known chance slot
func ValidChance(c int) bool {
	return c >= MinChance && c <= MaxChance
}

// ValidateAmount checks an investment amount: positive, capped, at most 2 decimals.
func (r Rules) ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrAmountNotPositive
	}
	if amount.GreaterThan(r.MaxAmount) {
		return ErrAmountTooLarge
	}
	if !amount.Equal(amount.Round(AmountPlaces)) {
		return ErrAmountPrecision
	}
	return nil
}

// Days returns the duration of a cycle type in days
func (r Rules) Days(cycleType int) int {
	return r.DurationDays[cycleType]
}

// Duration returns the duration of a cycle type
func (r Rules) Duration(cycleType int) time.Duration {
	return time.Duration(r.Days(cycleType)) * 24 * time.Hour
}

// TaxExempt reports whether early withdrawal of cycleType is untaxed
func (r Rules) TaxExempt(cycleType int) bool {
	return r.TaxExemptTypes[cycleType]
}

// PenaltyExempt reports whether breaking cycleType leaves penalty mode untouched
func (r Rules) PenaltyExempt(cycleType int) bool {
	return r.PenaltyExemptTypes[cycleType]
}

// Unlocked reports whether cycleType is available given the completed set.
// Type n needs every type 1..n-1 completed; type 1 is always open.
func Unlocked(completed []int, cycleType int) bool {
	if !ValidCycleType(cycleType) {
		return false
	}
	done := TypeSet(completed)
	for t := MinCycleType; t < cycleType; t++ {
		if !done[t] {
			return false
		}
	}
	return true
}

// UnlockedMap returns Unlocked for every cycle type
func UnlockedMap(completed []int) map[int]bool {
	out := make(map[int]bool, MaxCycleType)
	for t := MinCycleType; t <= MaxCycleType; t++ {
		out[t] = Unlocked(completed, t)
	}
	return out
}

// AddCompleted inserts cycleType into the completed set, keeping it sorted and unique
func AddCompleted(completed []int, cycleType int) []int {
	for _, t := range completed {
		if t == cycleType {
			return completed
		}
	}
	out := append(append([]int{}, completed...), cycleType)
	sort.Ints(out)
	return out
}

// CompletionPayout returns what a matured cycle pays out: principal plus the accrual
// of every tranche at end_date. Normal mode doubles a tranche held for the full duration,
// penalty mode pays the flat daily rate. A top-up only earns from its added_at.
func (r Rules) CompletionPayout(c *model.Cycle, penalty bool) (final, profit decimal.Decimal) {
	profit = r.CycleProfit(c, penalty, c.EndDate)
	return c.TotalInvested().Add(profit), profit
}

// Elapsed returns the time since start, clamped to [0, duration(cycleType)]
func (r Rules) Elapsed(cycleType int, start, now time.Time) time.Duration {
	elapsed := now.Sub(start)
	if elapsed < 0 {
		return 0
	}
	if d := r.Duration(cycleType); elapsed > d {
		return d
	}
	return elapsed
}

// ElapsedDays is Elapsed as fractional days
func (r Rules) ElapsedDays(cycleType int, start, now time.Time) decimal.Decimal {
	return decimal.NewFromInt(r.Elapsed(cycleType, start, now).Milliseconds()).Div(day)
}

// ProfitSoFar is the linear accrual of a single tranche invested at since, rounded to cents.
// Normal mode accrues the doubling schedule pro rata, penalty mode the flat daily rate.
func (r Rules) ProfitSoFar(amount decimal.Decimal, cycleType int, penalty bool, since, now time.Time) decimal.Decimal {
	return r.accrued(amount, cycleType, penalty, since, now).Round(AmountPlaces)
}

func (r Rules) accrued(amount decimal.Decimal, cycleType int, penalty bool, since, now time.Time) decimal.Decimal {
	days := r.ElapsedDays(cycleType, since, now)
	if penalty {
		return amount.Mul(r.PenaltyDailyRate).Mul(days)
	}
	duration := decimal.NewFromInt(int64(r.Days(cycleType)))
	if duration.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(days).Div(duration)
}

// CycleProfit is the accrual of a whole cycle at now. The initial investment accrues from
// start_date and each top-up from its own added_at; accrual stops at end_date.
func (r Rules) CycleProfit(c *model.Cycle, penalty bool, now time.Time) decimal.Decimal {
	if !c.EndDate.IsZero() && now.After(c.EndDate) {
		now = c.EndDate
	}
	profit := r.accrued(c.InvestmentAmount, c.CycleType, penalty, c.StartDate, now)
	for _, a := range c.AdditionalInvestments {
		profit = profit.Add(r.accrued(a.Amount, c.CycleType, penalty, a.AddedAt, now))
	}
	return profit.Round(AmountPlaces)
}

// Withdrawal is the breakdown of an early exit
type Withdrawal struct {
	ProfitSoFar decimal.Decimal
	Value       decimal.Decimal
	Tax         decimal.Decimal
	Withdrawn   decimal.Decimal
}

// EarlyWithdrawal computes value, tax and net credit for breaking c at now
func (r Rules) EarlyWithdrawal(c *model.Cycle, penalty bool, now time.Time) Withdrawal {
	return r.WithdrawalFor(c.TotalInvested(), r.CycleProfit(c, penalty, now), c.CycleType)
}

// WithdrawalFor taxes total+profit unless cycleType is exempt
func (r Rules) WithdrawalFor(total, profit decimal.Decimal, cycleType int) Withdrawal {
	value := total.Add(profit)
	tax := decimal.Zero
	if !r.TaxExempt(cycleType) {
		tax = value.Mul(r.EarlyWithdrawTax).Round(AmountPlaces)
	}
	return Withdrawal{
		ProfitSoFar: profit,
		Value:       value,
		Tax:         tax,
		Withdrawn:   value.Sub(tax),
	}
}

// Accrual projects an active cycle at now
func (r Rules) Accrual(c *model.Cycle, penalty bool, now time.Time) model.Accrual {
	total := c.TotalInvested()
	elapsed := r.ElapsedDays(c.CycleType, c.StartDate, now)
	remaining := decimal.NewFromInt(int64(r.Days(c.CycleType))).Sub(elapsed)
	final, _ := r.CompletionPayout(c, penalty)

	return model.Accrual{
		CycleID:        c.ID,
		ChanceNumber:   c.ChanceNumber,
		TotalInvested:  total,
		ProfitSoFar:    r.CycleProfit(c, penalty, now),
		DaysElapsed:    elapsed.Round(AmountPlaces),
		DaysRemaining:  remaining.Round(AmountPlaces),
		ProjectedFinal: final,
		Matured:        !now.Before(c.EndDate),
	}
}

// HistoryStats aggregates terminal cycles. Tax is recomputed from principal and
// realized profit over broken cycles that were not tax exempt.
func (r Rules) HistoryStats(cycles []*model.Cycle) model.CycleHistoryStats {
	stats := model.CycleHistoryStats{
		TotalProfit: decimal.Zero,
		TotalTax:    decimal.Zero,
	}
	for _, c := range cycles {
		switch c.Status {
		case model.CycleStatusCompleted:
			stats.CompletedCount++
		case model.CycleStatusBroken:
			stats.BrokenCount++
			if !r.TaxExempt(c.CycleType) {
				stats.TotalTax = stats.TotalTax.Add(c.TotalInvested().Add(c.CurrentProfit).Mul(r.EarlyWithdrawTax))
			}
		default:
			continue
		}
		stats.TotalProfit = stats.TotalProfit.Add(c.CurrentProfit)
	}
	stats.TotalTax = stats.TotalTax.Round(AmountPlaces)
	return stats
}
