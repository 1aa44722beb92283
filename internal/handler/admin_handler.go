package handler

import (
	"whalecycle/backend/internal/model"
	"whalecycle/backend/internal/service"
	"whalecycle/backend/internal/util"

	"github.com/gin-gonic/gin"
)

// AdminHandler handles admin-only endpoints. RequireAdmin guards every route.
type AdminHandler struct {
	adminService *service.AdminService
}

func NewAdminHandler(adminService *service.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

// CompleteCycle matures a cycle
// POST /api/v1/admin-complete-cycle
func (h *AdminHandler) CompleteCycle(c *gin.Context) {
	var req model.CycleIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.SendValidationError(c, err.Error())
		return
	}

	res, err := h.adminService.CompleteCycle(c.Request.Context(), c.GetString("user_id"), req.CycleID)
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{
		"final_amount": res.FinalAmount,
		"profit":       res.Profit,
	})
}

// ManagePenalty turns penalty mode on or off for a user
// POST /api/v1/admin-manage-penalty
func (h *AdminHandler) ManagePenalty(c *gin.Context) {
	var req model.ManagePenaltyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.SendValidationError(c, err.Error())
		return
	}

	if err := h.adminService.SetPenalty(c.Request.Context(), c.GetString("user_id"), req.TargetUserID, *req.EnablePenalty); err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, nil)
}

// GetAllCycles lists every cycle with owner profiles
// POST /api/v1/admin-get-all-cycles
func (h *AdminHandler) GetAllCycles(c *gin.Context) {
	var req model.GetAllCyclesRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		util.SendValidationError(c, err.Error())
		return
	}
	if req.Status == "" {
		req.Status = c.Query("status")
	}

	cycles, stats, err := h.adminService.GetAllCycles(c.Request.Context(), req.Status)
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{
		"cycles": cycles,
		"stats":  stats,
	})
}

// LogoutUser revokes every session of a user
// POST /api/v1/admin-logout-user
func (h *AdminHandler) LogoutUser(c *gin.Context) {
	var req model.LogoutUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.SendValidationError(c, err.Error())
		return
	}

	if err := h.adminService.LogoutUser(c.Request.Context(), c.GetString("user_id"), req.UserID); err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{"message": "User logged out from all sessions"})
}

// AuditLog returns the newest audit entries
// GET /api/v1/admin-audit-log?limit=
func (h *AdminHandler) AuditLog(c *gin.Context) {
	entries, err := h.adminService.ListAuditLog(c.Request.Context(), int64(queryInt(c, "limit", 0)))
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{"entries": entries})
}
