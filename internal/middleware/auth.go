package middleware

import (
	"context"
	"strings"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/internal/util"

	"github.com/gin-gonic/gin"
)

// TokenValidator resolves a bearer token to its user
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*model.User, error)
}

// AuthMiddleware creates authentication middleware
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			util.AbortWithError(c, err)
			return
		}

		user, err := validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			util.AbortWithError(c, err)
			return
		}

		// Set user in context
		c.Set("user_id", user.ID)
		c.Set("telegram_username", user.TelegramUsername)
		c.Set("user_role", user.Role)
		c.Set("user", user)

		c.Next()
	}
}

// bearerToken reads the Authorization header. Websocket upgrades cannot set
// headers from a browser, so they may pass ?token= instead.
func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if websocketUpgrade(c) {
			if token := c.Query("token"); token != "" {
				return token, nil
			}
		}
		return "", util.ErrUnauthorized("Missing authorization header")
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", util.ErrUnauthorized("Invalid authorization header format")
	}
	return parts[1], nil
}

func websocketUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

// RequireAdmin middleware requires admin role
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("user_role")
		if !exists {
			util.AbortWithError(c, util.ErrUnauthorized("Authentication required"))
			return
		}

		if role != model.RoleAdmin {
			util.AbortWithError(c, util.ErrForbidden("Admin access required"))
			return
		}

		c.Next()
	}
}
