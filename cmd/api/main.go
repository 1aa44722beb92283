package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whalecycle/backend/internal/config"
	"whalecycle/backend/internal/handler"
	"whalecycle/backend/internal/middleware"
	"whalecycle/backend/internal/repository"
	"whalecycle/backend/internal/service"
	"whalecycle/backend/internal/service/cycle"
	"whalecycle/backend/pkg/broker"
	"whalecycle/backend/pkg/coinglass"
	"whalecycle/backend/pkg/jwt"
	"whalecycle/backend/pkg/logger"
	"whalecycle/backend/pkg/redis"
	"whalecycle/backend/pkg/telegram"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func main() {
	// Load .env file (ignore error in production)
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log := logger.GetLogger()

	log.Info("Starting Whale Cycle Backend...")
	log.Infof("Environment: %s", cfg.Server.Env)

	// Money goes over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	// Initialize Redis
	log.Info("Connecting to Redis...")
	redisClient, err := redis.New(redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal("Failed to connect to Redis", err)
	}
	defer redisClient.Close()
	redis.InitKeys(cfg.Redis.KeyPrefix)
	log.Info("✓ Redis connected")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Snapshot history lives in Postgres when configured
	var (
		snapshots repository.SnapshotStore = repository.NewRedisSnapshotStore(redisClient)
		pgPinger  handler.Pinger
	)
	if cfg.Postgres.URL != "" {
		log.Info("Connecting to Postgres...")
		pgStore, err := repository.NewPostgresSnapshotStore(ctx, cfg.Postgres.URL)
		if err != nil {
			log.Fatal("Failed to connect to Postgres", err)
		}
		defer pgStore.Close()
		snapshots = pgStore
		pgPinger = pgStore
		log.Info("✓ Postgres connected")
	}

	// Initialize JWT manager
	jwtManager := jwt.NewJWTManager(
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpire,
		cfg.JWT.RefreshTokenExpire,
	)

	// Initialize repositories
	userRepo := repository.NewUserRepository(redisClient)
	cycleRepo := repository.NewCycleRepository(redisClient)
	auditRepo := repository.NewAuditRepository(redisClient)

	// Event fan-out
	notifier := service.NewNotificationService(redisClient, log)
	if cfg.AMQP.URL != "" {
		publisher, err := broker.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			log.Fatal("Failed to connect to AMQP broker", err)
		}
		defer publisher.Close()
		notifier.WithBroker(publisher)
		log.Info("✓ AMQP broker connected")
	}
	if cfg.Telegram.BotToken != "" {
		bot, err := telegram.NewNotifier(cfg.Telegram.BotToken)
		if err != nil {
			log.Fatal("Failed to start Telegram notifier", err)
		}
		notifier.WithTelegram(bot, userRepo)
		log.Info("✓ Telegram notifier enabled")
	}

	// Cycle rules
	rules := cycle.DefaultRules()
	rules.PenaltyDailyRate = cfg.Cycle.PenaltyDailyRate
	rules.EarlyWithdrawTax = cfg.Cycle.EarlyWithdrawTax
	rules.TaxExemptTypes = cycle.TypeSet(cfg.Cycle.TaxExemptTypes)
	rules.PenaltyExemptTypes = cycle.TypeSet(cfg.Cycle.PenaltyExemptTypes)
	rules.RequireSecondChance = cfg.Cycle.RequireSecondChance

	// Initialize services
	cycleService := service.NewCycleService(cycleRepo, rules, notifier, log)
	adminService := service.NewAdminService(cycleRepo, userRepo, auditRepo, cycleService, notifier, cfg.JWT.RefreshTokenExpire, log)
	authService := service.NewAuthService(userRepo, redisClient, jwtManager, service.LoginPolicy{
		MaxAttempts:     cfg.Login.MaxAttempts,
		LockoutDuration: cfg.Login.LockoutDuration,
	}, cfg.Server.PublicURL, cfg.JWT.RefreshTokenExpire, log)
	userService := service.NewUserService(userRepo, cycleRepo, cfg.JWT.RefreshTokenExpire, log)
	marketService := service.NewMarketService(
		coinglass.NewClient(cfg.Coinglass.APIURL, cfg.Coinglass.APIKey),
		redisClient,
		snapshots,
		cfg.Coinglass.WhaleAddress,
		cfg.Coinglass.CacheTTL,
		log,
	)

	// Background workers
	hub := service.NewWSHub(redisClient, log)
	go hub.Run(ctx)

	var worker *service.MaturityWorker
	if cfg.Cycle.AutoComplete {
		worker = service.NewMaturityWorker(cycleRepo, cycleService, redisClient, cfg.Cycle.AutoCompleteEvery, log)
		worker.Start(ctx)
	}

	// Set Gin mode
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Apply middleware
	router.Use(middleware.Recovery(log))                 // Panic recovery
	router.Use(middleware.RequestID())                   // Request ID
	router.Use(middleware.Logger(log))                   // Request logging
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins)) // CORS

	routes := &handler.Router{
		Auth:         handler.NewAuthHandler(authService),
		Users:        handler.NewUserHandler(userService),
		Cycles:       handler.NewCycleHandler(cycleService),
		Admin:        handler.NewAdminHandler(adminService),
		Market:       handler.NewMarketHandler(marketService),
		Health:       handler.NewHealthHandler(redisClient, pgPinger),
		WS:           hub.ServeWS,
		RequireAuth:  middleware.AuthMiddleware(authService),
		LoginLimit:   middleware.LoginRateLimit(redisClient, cfg.RateLimit.LoginRequestsPerMinute, log),
		GeneralLimit: middleware.RateLimit(redisClient, cfg.RateLimit.RequestsPerMinute, log),
	}
	routes.Register(router)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Infof("Server starting on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", err)
		}
	}()

	log.Info("✓ Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with 5 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err)
	}

	if worker != nil {
		worker.Stop()
	}
	stop()
	notifier.Wait()

	log.Info("Server exited")
}
