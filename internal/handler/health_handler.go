package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is a dependency the health check probes
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports dependency status
type HealthHandler struct {
	checks map[string]Pinger
}

// NewHealthHandler probes redis and, when configured, postgres
func NewHealthHandler(redis Pinger, postgres Pinger) *HealthHandler {
	checks := map[string]Pinger{"redis": redis}
	if postgres != nil {
		checks["postgres"] = postgres
	}
	return &HealthHandler{checks: checks}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			deps[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "healthy"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":       overall,
		"dependencies": deps,
		"time":         time.Now().UTC(),
	})
}
