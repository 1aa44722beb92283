package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Audit action types
const (
	AuditActionCompleteCycle  = "complete_cycle"
	AuditActionEnablePenalty  = "enable_penalty"
	AuditActionDisablePenalty = "disable_penalty"
	AuditActionLogoutUser     = "logout_user"
)

// Audit target types
const (
	AuditTargetCycle = "cycle"
	AuditTargetUser  = "user"
)

// ActorSystem is the admin id recorded for automatic actions
const ActorSystem = "system"

// AuditEntry is an append-only record of a privileged action
type AuditEntry struct {
	ID         string                 `json:"id"`
	AdminID    string                 `json:"admin_id"`
	ActionType string                 `json:"action_type"`
	TargetType string                 `json:"target_type"`
	TargetID   string                 `json:"target_id"`
	Details    map[string]interface{} `json:"details,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// ManagePenaltyRequest toggles penalty mode for a user
type ManagePenaltyRequest struct {
	TargetUserID  string `json:"target_user_id" binding:"required"`
	EnablePenalty *bool  `json:"enable_penalty" binding:"required"`
}

// GetAllCyclesRequest filters the admin cycle listing
type GetAllCyclesRequest struct {
	Status string `json:"status" binding:"omitempty,oneof=active completed broken all"`
}

// LogoutUserRequest revokes every session of a user
type LogoutUserRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// ProfileSummary is the user part of an admin cycle row
type ProfileSummary struct {
	UserID           string          `json:"user_id"`
	TelegramUsername string          `json:"telegram_username"`
	WalletBalance    decimal.Decimal `json:"wallet_balance"`
}

// AdminCycle is a cycle joined with its owner's profile
type AdminCycle struct {
	*Cycle
	Profile ProfileSummary `json:"profile"`
}

// AdminCycleStats summarizes the admin cycle listing
type AdminCycleStats struct {
	Total         int             `json:"total"`
	Active        int             `json:"active"`
	Completed     int             `json:"completed"`
	Broken        int             `json:"broken"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
}
