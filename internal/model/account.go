package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds a user's money. wallet_balance never goes negative.
type Account struct {
	UserID                string          `json:"user_id"`
	WalletBalance         decimal.Decimal `json:"wallet_balance"`
	TotalInvestment       decimal.Decimal `json:"total_investment"`
	TotalProfit           decimal.Decimal `json:"total_profit"`
	TotalDeposits         decimal.Decimal `json:"total_deposits"`
	TotalReferralEarnings decimal.Decimal `json:"total_referral_earnings"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// NewAccount returns a zeroed account for userID
func NewAccount(userID string) *Account {
	return &Account{
		UserID:    userID,
		UpdatedAt: time.Now().UTC(),
	}
}

// Progress tracks which cycle types a user has completed and whether penalty mode is on.
type Progress struct {
	UserID               string     `json:"user_id"`
	CompletedCycles      []int      `json:"completed_cycles"`
	IsPenaltyMode        bool       `json:"is_penalty_mode"`
	SecondChanceUnlocked bool       `json:"second_chance_unlocked"`
	LastPenaltyCheck     *time.Time `json:"last_penalty_check,omitempty"`
	LastCompletionCheck  *time.Time `json:"last_completion_check,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NewProgress returns empty progress for userID
func NewProgress(userID string) *Progress {
	return &Progress{
		UserID:          userID,
		CompletedCycles: []int{},
		UpdatedAt:       time.Now().UTC(),
	}
}
