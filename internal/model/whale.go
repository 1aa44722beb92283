package model

import (
	"time"

	"github.com/shopspring/decimal"

	"whalecycle/backend/pkg/coinglass"
)

// WhalePnLSnapshot is an aggregate of a whale wallet's open positions at a point in time
type WhalePnLSnapshot struct {
	ID                 string                    `json:"id"`
	Address            string                    `json:"address"`
	TotalUnrealizedPnL decimal.Decimal           `json:"total_unrealized_pnl"`
	TotalPositionValue decimal.Decimal           `json:"total_position_value"`
	PositionCount      int                       `json:"position_count"`
	CapturedAt         time.Time                 `json:"captured_at"`
	Positions          []coinglass.WhalePosition `json:"positions"`
}

// NewWhalePnLSnapshot aggregates positions into a snapshot
func NewWhalePnLSnapshot(id, address string, positions []coinglass.WhalePosition, at time.Time) *WhalePnLSnapshot {
	s := &WhalePnLSnapshot{
		ID:                 id,
		Address:            address,
		TotalUnrealizedPnL: decimal.Zero,
		TotalPositionValue: decimal.Zero,
		PositionCount:      len(positions),
		CapturedAt:         at.UTC(),
		Positions:          positions,
	}
	for _, p := range positions {
		s.TotalUnrealizedPnL = s.TotalUnrealizedPnL.Add(decimal.NewFromFloat(p.UnrealizedPnL))
		s.TotalPositionValue = s.TotalPositionValue.Add(decimal.NewFromFloat(p.PositionValueUSD))
	}
	s.TotalUnrealizedPnL = s.TotalUnrealizedPnL.Round(2)
	s.TotalPositionValue = s.TotalPositionValue.Round(2)
	if s.Positions == nil {
		s.Positions = []coinglass.WhalePosition{}
	}
	return s
}
