package handler

import (
	"whalecycle/backend/internal/model"
	"whalecycle/backend/internal/service"
	"whalecycle/backend/internal/util"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// LoginWithPassword handles password login
// POST /api/v1/login-with-password
func (h *AuthHandler) LoginWithPassword(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.SendValidationError(c, err.Error())
		return
	}

	authResp, err := h.authService.LoginWithPassword(c.Request.Context(), &req, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		util.SendError(c, err)
		return
	}

	sendAuth(c, authResp)
}

// RefreshToken handles token refresh
// POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req model.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.SendValidationError(c, err.Error())
		return
	}

	authResp, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		util.SendError(c, err)
		return
	}

	sendAuth(c, authResp)
}

// Logout handles user logout
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	accessToken, _ := bearer(c)

	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.SendValidationError(c, err.Error())
		return
	}

	if err := h.authService.Logout(c.Request.Context(), accessToken, req.RefreshToken); err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{"message": "Logged out successfully"})
}

// GetMe returns current user info
// GET /api/v1/auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	user, err := h.authService.GetUserByID(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendResult(c, gin.H{"user": user})
}

func sendAuth(c *gin.Context, resp *model.AuthResponse) {
	util.SendResult(c, gin.H{
		"auth_url":      resp.AuthURL,
		"user_id":       resp.User.ID,
		"user":          resp.User,
		"access_token":  resp.AccessToken,
		"refresh_token": resp.RefreshToken,
		"expires_in":    resp.ExpiresIn,
	})
}
