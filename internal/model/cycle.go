package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CycleStatus represents the lifecycle state of a cycle
type CycleStatus string

const (
	CycleStatusActive    CycleStatus = "active"
	CycleStatusCompleted CycleStatus = "completed"
	CycleStatusBroken    CycleStatus = "broken"
)

// IsTerminal reports whether no further transition is possible
func (s CycleStatus) IsTerminal() bool {
	return s == CycleStatusCompleted || s == CycleStatusBroken
}

// AdditionalInvestment is a top-up added to an active cycle
type AdditionalInvestment struct {
	Amount  decimal.Decimal `json:"amount"`
	AddedAt time.Time       `json:"added_at"`
}

// Cycle is one investment position
type Cycle struct {
	ID                    string                 `json:"id"`
	UserID                string                 `json:"user_id"`
	CycleType             int                    `json:"cycle_type"`
	ChanceNumber          int                    `json:"chance_number"`
	InvestmentAmount      decimal.Decimal        `json:"investment_amount"`
	AdditionalInvestments []AdditionalInvestment `json:"additional_investments"`
	StartDate             time.Time              `json:"start_date"`
	EndDate               time.Time              `json:"end_date"`
	CurrentProfit         decimal.Decimal        `json:"current_profit"`
	Status                CycleStatus            `json:"status"`
	FinalAmount           *decimal.Decimal       `json:"final_amount,omitempty"`
	TaxApplied            *decimal.Decimal       `json:"tax_applied,omitempty"`
	WithdrawnAmount       *decimal.Decimal       `json:"withdrawn_amount,omitempty"`
	CompletedAt           *time.Time             `json:"completed_at,omitempty"`
	BrokenAt              *time.Time             `json:"broken_at,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

// IsActive checks if the cycle can still transition
func (c *Cycle) IsActive() bool {
	return c.Status == CycleStatusActive
}

// TotalInvested is the initial investment plus every top-up
func (c *Cycle) TotalInvested() decimal.Decimal {
	total := c.InvestmentAmount
	for _, a := range c.AdditionalInvestments {
		total = total.Add(a.Amount)
	}
	return total
}

// StartCycleRequest represents a request to open a new cycle.
// Amount stays a decimal so precision checks see what the client sent.
type StartCycleRequest struct {
	CycleType    int             `json:"cycle_type" binding:"required,min=1,max=4"`
	Amount       decimal.Decimal `json:"amount"`
	ChanceNumber int             `json:"chance_number" binding:"required,oneof=1 2"`
}

// AddInvestmentRequest represents a top-up of an active cycle
type AddInvestmentRequest struct {
	CycleID string          `json:"cycle_id" binding:"required"`
	Amount  decimal.Decimal `json:"amount"`
}

// CycleIDRequest is used by withdraw and admin complete
type CycleIDRequest struct {
	CycleID string `json:"cycle_id" binding:"required"`
}

// WithdrawResult is returned by an early withdrawal
type WithdrawResult struct {
	WithdrawnAmount      decimal.Decimal `json:"withdrawn_amount"`
	TaxApplied           decimal.Decimal `json:"tax_applied"`
	ProfitSoFar          decimal.Decimal `json:"profit_so_far"`
	PenaltyModeActivated bool            `json:"penalty_mode_activated"`
	NextChanceUnlocked   bool            `json:"next_chance_unlocked"`
}

// CompletionResult is returned by a completion
type CompletionResult struct {
	FinalAmount decimal.Decimal `json:"final_amount"`
	Profit      decimal.Decimal `json:"profit"`
}

// Accrual is a live projection of an active cycle
type Accrual struct {
	CycleID        string          `json:"cycle_id"`
	ChanceNumber   int             `json:"chance_number"`
	TotalInvested  decimal.Decimal `json:"total_invested"`
	ProfitSoFar    decimal.Decimal `json:"profit_so_far"`
	DaysElapsed    decimal.Decimal `json:"days_elapsed"`
	DaysRemaining  decimal.Decimal `json:"days_remaining"`
	ProjectedFinal decimal.Decimal `json:"projected_final"`
	Matured        bool            `json:"matured"`
}

// CycleInfo is the dashboard view of a user
type CycleInfo struct {
	ActiveCycle    *Cycle          `json:"active_cycle"`
	ActiveCycles   map[int]*Cycle  `json:"active_cycles"`
	Progress       *Progress       `json:"progress"`
	WalletBalance  decimal.Decimal `json:"wallet_balance"`
	UnlockedCycles map[int]bool    `json:"unlocked_cycles"`
	Accrual        []Accrual       `json:"accrual"`
}

// CycleHistoryStats summarizes terminal cycles
type CycleHistoryStats struct {
	CompletedCount int             `json:"completed_count"`
	BrokenCount    int             `json:"broken_count"`
	TotalProfit    decimal.Decimal `json:"total_profit"`
	TotalTax       decimal.Decimal `json:"total_tax"`
}

// CycleHistory is the terminal-cycle listing for a user
type CycleHistory struct {
	Cycles   []*Cycle          `json:"cycles"`
	Progress *Progress         `json:"progress"`
	Stats    CycleHistoryStats `json:"stats"`
}
