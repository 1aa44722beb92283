package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"whalecycle/backend/internal/config"
	"whalecycle/backend/internal/model"
	"whalecycle/backend/internal/repository"
	"whalecycle/backend/pkg/crypto"
	"whalecycle/backend/pkg/redis"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type seedUser struct {
	username string
	password string
	role     string
	balance  string
}

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize Redis
	redisClient, err := redis.New(redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize Redis key prefix
	redis.InitKeys(cfg.Redis.KeyPrefix)

	userRepo := repository.NewUserRepository(redisClient)
	cycleRepo := repository.NewCycleRepository(redisClient)

	users := []seedUser{
		{username: getEnv("SEED_ADMIN_USERNAME", "whale_admin"), password: getEnv("SEED_ADMIN_PASSWORD", "ChangeMe123!"), role: model.RoleAdmin, balance: "0"},
		{username: getEnv("SEED_DEMO_USERNAME", "whale_demo"), password: getEnv("SEED_DEMO_PASSWORD", "DemoPass123!"), role: model.RoleUser, balance: getEnv("SEED_DEMO_BALANCE", "1000")},
	}

	ctx := context.Background()
	for _, su := range users {
		if err := seed(ctx, userRepo, cycleRepo, su); err != nil {
			log.Fatalf("Failed to seed %s: %v", su.username, err)
		}
	}
}

func seed(ctx context.Context, userRepo *repository.UserRepository, cycleRepo *repository.CycleRepository, su seedUser) error {
	balance, err := decimal.NewFromString(su.balance)
	if err != nil {
		return fmt.Errorf("invalid balance %q: %w", su.balance, err)
	}

	// Hash password
	passwordHash, err := crypto.HashPassword(su.password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	// Check if already exists
	existing, _ := userRepo.GetByTelegramUsername(ctx, su.username)
	if existing != nil {
		fmt.Printf("User %s already exists. Updating password and role...\n", su.username)
		existing.PasswordHash = passwordHash
		existing.Role = su.role
		existing.Status = model.StatusActive
		existing.UpdatedAt = time.Now()
		if err := userRepo.Update(ctx, existing); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		fmt.Println("✓ User updated successfully")
		return nil
	}

	now := time.Now()
	user := &model.User{
		ID:               uuid.New().String(),
		TelegramUsername: su.username,
		PasswordHash:     passwordHash,
		Role:             su.role,
		Status:           model.StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := userRepo.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	account := model.NewAccount(user.ID)
	account.WalletBalance = balance
	account.TotalDeposits = balance
	account.UpdatedAt = now
	if err := cycleRepo.SaveAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	fmt.Printf("✓ User created successfully:\n")
	fmt.Printf("  Username: %s\n", su.username)
	fmt.Printf("  Role:     %s\n", su.role)
	fmt.Printf("  Balance:  %s\n", balance.StringFixed(2))
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
