package handler

import (
	"time"

	"whalecycle/backend/internal/service"
	"whalecycle/backend/internal/util"

	"github.com/gin-gonic/gin"
)

// MarketHandler proxies whale data from Coinglass
type MarketHandler struct {
	marketService *service.MarketService
}

func NewMarketHandler(marketService *service.MarketService) *MarketHandler {
	return &MarketHandler{
		marketService: marketService,
	}
}

// WhalePositions returns the tracked wallet's open positions
// GET /api/v1/coinglass-whale-position
func (h *MarketHandler) WhalePositions(c *gin.Context) {
	positions, err := h.marketService.GetWhalePositions(c.Request.Context())
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{
		"address":     h.marketService.Address(),
		"data":        positions,
		"count":       len(positions),
		"last_update": time.Now(),
	})
}

// WhaleAlerts returns the tracked wallet's large position events
// GET /api/v1/coinglass-whale-alerts
func (h *MarketHandler) WhaleAlerts(c *gin.Context) {
	alerts, err := h.marketService.GetWhaleAlerts(c.Request.Context())
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{
		"address":     h.marketService.Address(),
		"data":        alerts,
		"count":       len(alerts),
		"last_update": time.Now(),
	})
}

// SaveSnapshot captures the tracked wallet's PnL
// POST /api/v1/save-whale-pnl-snapshot
func (h *MarketHandler) SaveSnapshot(c *gin.Context) {
	snapshot, err := h.marketService.SaveSnapshot(c.Request.Context())
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{"snapshot": snapshot})
}

// ListSnapshots returns the newest snapshots
// GET /api/v1/whale-pnl-snapshots?limit=
func (h *MarketHandler) ListSnapshots(c *gin.Context) {
	snapshots, err := h.marketService.ListSnapshots(c.Request.Context(), queryInt(c, "limit", 50))
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}
