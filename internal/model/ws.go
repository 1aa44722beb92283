package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WSMessageType represents the type of WebSocket message
type WSMessageType string

const (
	MessageTypeCycleStarted   WSMessageType = "cycle_started"
	MessageTypeCycleToppedUp  WSMessageType = "cycle_topped_up"
	MessageTypeCycleCompleted WSMessageType = "cycle_completed"
	MessageTypeCycleBroken    WSMessageType = "cycle_broken"
	MessageTypePenaltyChanged WSMessageType = "penalty_changed"
	MessageTypeError          WSMessageType = "error"
	MessageTypePong           WSMessageType = "pong"
)

// WSMessage is the envelope for all WebSocket messages
type WSMessage struct {
	Type    WSMessageType `json:"type"`
	Payload interface{}   `json:"payload"`
}

// CycleEvent is the payload of every committed cycle transition.
// It is the body published to Redis, AMQP and Telegram alike.
type CycleEvent struct {
	Type          WSMessageType    `json:"type"`
	UserID        string           `json:"user_id"`
	CycleID       string           `json:"cycle_id,omitempty"`
	CycleType     int              `json:"cycle_type,omitempty"`
	ChanceNumber  int              `json:"chance_number,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Profit        *decimal.Decimal `json:"profit,omitempty"`
	Tax           *decimal.Decimal `json:"tax,omitempty"`
	WalletBalance *decimal.Decimal `json:"wallet_balance,omitempty"`
	PenaltyMode   *bool            `json:"penalty_mode,omitempty"`
	ActorID       string           `json:"actor_id,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}
