package handler

import (
	"whalecycle/backend/internal/model"
	"whalecycle/backend/internal/service"
	"whalecycle/backend/internal/util"

	"github.com/gin-gonic/gin"
)

// CycleHandler exposes the investment cycle engine to the caller's own account
type CycleHandler struct {
	cycleService *service.CycleService
}

func NewCycleHandler(cycleService *service.CycleService) *CycleHandler {
	return &CycleHandler{
		cycleService: cycleService,
	}
}

// StartCycle opens a cycle on a chance slot
// POST /api/v1/start-cycle
func (h *CycleHandler) StartCycle(c *gin.Context) {
	var req model.StartCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.SendValidationError(c, err.Error())
		return
	}

	cycleID, err := h.cycleService.StartCycle(c.Request.Context(), c.GetString("user_id"), &req)
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{"cycle_id": cycleID})
}

// AddInvestment tops up an active cycle
// POST /api/v1/add-investment
func (h *CycleHandler) AddInvestment(c *gin.Context) {
	var req model.AddInvestmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.SendValidationError(c, err.Error())
		return
	}

	cycle, err := h.cycleService.AddInvestment(c.Request.Context(), c.GetString("user_id"), &req)
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{"cycle": cycle})
}

// WithdrawCycle breaks an active cycle early
// POST /api/v1/withdraw-cycle
func (h *CycleHandler) WithdrawCycle(c *gin.Context) {
	var req model.CycleIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.SendValidationError(c, err.Error())
		return
	}

	res, err := h.cycleService.WithdrawEarly(c.Request.Context(), c.GetString("user_id"), req.CycleID)
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{
		"withdrawn_amount":       res.WithdrawnAmount,
		"tax_applied":            res.TaxApplied,
		"profit_so_far":          res.ProfitSoFar,
		"penalty_mode_activated": res.PenaltyModeActivated,
		"next_chance_unlocked":   res.NextChanceUnlocked,
	})
}

// GetCycleInfo returns the dashboard view
// GET|POST /api/v1/get-cycle-info
func (h *CycleHandler) GetCycleInfo(c *gin.Context) {
	info, err := h.cycleService.GetCycleInfo(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{
		"active_cycle":    info.ActiveCycle,
		"active_cycles":   info.ActiveCycles,
		"progress":        info.Progress,
		"wallet_balance":  info.WalletBalance,
		"unlocked_cycles": info.UnlockedCycles,
		"accrual":         info.Accrual,
	})
}

// GetCycleHistory returns finished cycles with stats
// GET|POST /api/v1/get-cycle-history
func (h *CycleHandler) GetCycleHistory(c *gin.Context) {
	history, err := h.cycleService.GetCycleHistory(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{
		"cycles":   history.Cycles,
		"progress": history.Progress,
		"stats":    history.Stats,
	})
}
