package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"whalecycle/backend/internal/config"
	"whalecycle/backend/internal/model"
	"whalecycle/backend/pkg/redis"

	"github.com/joho/godotenv"
)

// check_redis prints the size of every cycle index so drift between them is easy to spot
func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

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

	redis.InitKeys(cfg.Redis.KeyPrefix)
	ctx := context.Background()

	users, err := redisClient.SMembers(ctx, redis.UsersIndexKey())
	if err != nil {
		log.Fatalf("Failed to read users index: %v", err)
	}
	fmt.Printf("Users (%s): %d\n", redis.UsersIndexKey(), len(users))

	total, err := redisClient.ZCard(ctx, redis.AllCyclesKey())
	if err != nil {
		log.Fatalf("Failed to read cycle index: %v", err)
	}
	fmt.Printf("Cycles (%s): %d\n", redis.AllCyclesKey(), total)

	var byStatus int64
	for _, status := range []model.CycleStatus{model.CycleStatusActive, model.CycleStatusCompleted, model.CycleStatusBroken} {
		n, err := redisClient.ZCard(ctx, redis.CyclesByStatusKey(string(status)))
		if err != nil {
			log.Fatalf("Failed to read %s index: %v", status, err)
		}
		byStatus += n
		fmt.Printf("- %-9s %d\n", status, n)
	}
	if byStatus != total {
		fmt.Printf("WARNING: status indexes hold %d cycles, all-cycles index holds %d\n", byStatus, total)
	}

	due, err := redisClient.ZRangeByScore(ctx, redis.ActiveByEndKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", time.Now().UnixMilli()),
	})
	if err != nil {
		log.Fatalf("Failed to read maturity index: %v", err)
	}
	fmt.Printf("Matured but still active: %d\n", len(due))

	audit, err := redisClient.ZCard(ctx, redis.AuditLogKey())
	if err != nil {
		log.Fatalf("Failed to read audit log: %v", err)
	}
	fmt.Printf("Audit entries (%s): %d\n", redis.AuditLogKey(), audit)
}
