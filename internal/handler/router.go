package handler

import (
	"net/http"
	"time"

	"whalecycle/backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Router wires handlers to the /api/v1 routes
type Router struct {
	Auth   *AuthHandler
	Users  *UserHandler
	Cycles *CycleHandler
	Admin  *AdminHandler
	Market *MarketHandler
	Health *HealthHandler
	WS     gin.HandlerFunc

	RequireAuth  gin.HandlerFunc
	LoginLimit   gin.HandlerFunc
	GeneralLimit gin.HandlerFunc
}

// Register mounts every route on engine
func (r *Router) Register(engine *gin.Engine) {
	engine.GET("/health", r.Health.Health)

	v1 := engine.Group("/api/v1")
	{
		// Public routes
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"message": "pong",
				"time":    time.Now().Unix(),
			})
		})
		v1.GET("/health", r.Health.Health)
		v1.POST("/login-with-password", r.LoginLimit, r.Auth.LoginWithPassword)

		auth := v1.Group("/auth")
		{
			auth.POST("/refresh", r.LoginLimit, r.Auth.RefreshToken)
			auth.POST("/logout", r.RequireAuth, r.Auth.Logout)
			auth.GET("/me", r.RequireAuth, r.Auth.GetMe)
		}

		user := v1.Group("")
		user.Use(r.RequireAuth, r.GeneralLimit)
		{
			user.POST("/start-cycle", r.Cycles.StartCycle)
			user.POST("/add-investment", r.Cycles.AddInvestment)
			user.POST("/withdraw-cycle", r.Cycles.WithdrawCycle)
			user.GET("/get-cycle-info", r.Cycles.GetCycleInfo)
			user.POST("/get-cycle-info", r.Cycles.GetCycleInfo)
			user.GET("/get-cycle-history", r.Cycles.GetCycleHistory)
			user.POST("/get-cycle-history", r.Cycles.GetCycleHistory)

			user.GET("/coinglass-whale-position", r.Market.WhalePositions)
			user.GET("/coinglass-whale-alerts", r.Market.WhaleAlerts)
			user.POST("/save-whale-pnl-snapshot", r.Market.SaveSnapshot)
			user.GET("/whale-pnl-snapshots", r.Market.ListSnapshots)

			user.GET("/ws", r.WS)

			user.GET("/users/profile", r.Users.GetProfile)
			user.POST("/users/password", r.Users.ChangePassword)

			admin := user.Group("")
			admin.Use(middleware.RequireAdmin())
			{
				admin.POST("/admin-complete-cycle", r.Admin.CompleteCycle)
				admin.POST("/admin-manage-penalty", r.Admin.ManagePenalty)
				admin.POST("/admin-get-all-cycles", r.Admin.GetAllCycles)
				admin.POST("/admin-logout-user", r.Admin.LogoutUser)
				admin.GET("/admin-audit-log", r.Admin.AuditLog)

				admin.GET("/admin-list-users", r.Users.ListUsers)
				admin.POST("/admin-create-user", r.Users.CreateUser)
				admin.POST("/admin-update-user", r.Users.UpdateUser)
				admin.POST("/admin-reset-password", r.Users.ResetPassword)
			}
		}
	}
}
