package handler

import (
	"whalecycle/backend/internal/model"
	"whalecycle/backend/internal/service"
	"whalecycle/backend/internal/util"

	"github.com/gin-gonic/gin"
)

// UserHandler handles user management endpoints
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// GetProfile gets current user's profile
// GET /api/v1/users/profile
func (h *UserHandler) GetProfile(c *gin.Context) {
	profile, err := h.userService.GetProfile(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{
		"user":    profile.User,
		"account": profile.Account,
	})
}

// ChangePassword changes current user's password
// POST /api/v1/users/password
func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req model.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.SendValidationError(c, err.Error())
		return
	}

	if err := h.userService.ChangePassword(c.Request.Context(), c.GetString("user_id"), req.OldPassword, req.NewPassword); err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{"message": "Password changed successfully"})
}

// ListUsers lists all users (admin only)
// GET /api/v1/admin-list-users
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.userService.ListUsers(c.Request.Context())
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{
		"users": users,
		"count": len(users),
	})
}

// CreateUser creates a new user with a funded wallet (admin only)
// POST /api/v1/admin-create-user
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req model.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.SendValidationError(c, err.Error())
		return
	}

	profile, err := h.userService.CreateUser(c.Request.Context(), &req)
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{
		"user_id": profile.User.ID,
		"user":    profile.User,
		"account": profile.Account,
	})
}

// UpdateUser changes role, status or telegram chat (admin only)
// POST /api/v1/admin-update-user
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req model.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.SendValidationError(c, err.Error())
		return
	}

	user, err := h.userService.UpdateUser(c.Request.Context(), &req)
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{"user": user})
}

// ResetPassword resets a user's password (admin only)
// POST /api/v1/admin-reset-password
func (h *UserHandler) ResetPassword(c *gin.Context) {
	var req model.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.SendValidationError(c, err.Error())
		return
	}

	if err := h.userService.ResetPassword(c.Request.Context(), req.UserID, req.NewPassword); err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{"message": "Password reset successfully"})
}
