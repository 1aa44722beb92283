package middleware

import (
	"fmt"
	"time"

	"whalecycle/backend/internal/util"
	"whalecycle/backend/pkg/logger"
	"whalecycle/backend/pkg/redis"

	"github.com/gin-gonic/gin"
)

// RateLimiter is a fixed-window counter shared by every instance through Redis
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	action string
	byIP   bool
	log    *logger.Logger
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration, action string, log *logger.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
		action: action,
		log:    log,
	}
}

// PerIP keys the counter by client IP even for authenticated requests
func (rl *RateLimiter) PerIP() *RateLimiter {
	rl.byIP = true
	return rl
}

// Limit returns a middleware that limits requests
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if userID := c.GetString("user_id"); userID != "" && !rl.byIP {
			identifier = fmt.Sprintf("user:%s", userID)
		}

		count, remaining, err := rl.redis.IncrWindow(c.Request.Context(), redis.RateLimitKey(identifier, rl.action), rl.window)
		if err != nil {
			// fail open
			rl.log.WithField("action", rl.action).Warnf("Rate limiter unavailable: %v", err)
			c.Next()
			return
		}

		if count > int64(rl.limit) {
			util.AbortWithError(c, util.ErrRateLimit("Rate limit exceeded. Please try again later.", remaining))
			return
		}

		c.Next()
	}
}

// RateLimit creates a per-minute rate limiting middleware keyed by user, or IP when anonymous
func RateLimit(redisClient *redis.Client, limit int, log *logger.Logger) gin.HandlerFunc {
	return NewRateLimiter(redisClient, limit, time.Minute, "general", log).Limit()
}

// LoginRateLimit creates a per-minute, per-IP limiter for the login endpoint
func LoginRateLimit(redisClient *redis.Client, limit int, log *logger.Logger) gin.HandlerFunc {
	return NewRateLimiter(redisClient, limit, time.Minute, "login", log).PerIP().Limit()
}
