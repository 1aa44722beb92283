package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	JWT       JWTConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Login     LoginConfig
	Cycle     CycleConfig
	Coinglass CoinglassConfig
	AMQP      AMQPConfig
	Telegram  TelegramConfig
	Log       LogConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host      string
	Port      string
	Env       string
	PublicURL string // frontend base URL used for login callbacks
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host      string
	Port      string
	Password  string
	DB        int
	KeyPrefix string
}

// PostgresConfig is optional; snapshots fall back to Redis when URL is empty
type PostgresConfig struct {
	URL string
}

// JWTConfig holds JWT token configuration
type JWTConfig struct {
	Secret             string
	AccessTokenExpire  time.Duration
	RefreshTokenExpire time.Duration
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute      int
	LoginRequestsPerMinute int
}

// LoginConfig holds the failed-login lockout policy
type LoginConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

// CycleConfig holds the investment cycle rules
type CycleConfig struct {
	PenaltyDailyRate    decimal.Decimal
	EarlyWithdrawTax    decimal.Decimal
	TaxExemptTypes      []int
	PenaltyExemptTypes  []int
	RequireSecondChance bool
	AutoComplete        bool
	AutoCompleteEvery   time.Duration
}

// CoinglassConfig holds the whale data upstream
type CoinglassConfig struct {
	APIURL       string
	APIKey       string
	WhaleAddress string
	CacheTTL     time.Duration
}

// AMQPConfig is optional; events are not fanned out when URL is empty
type AMQPConfig struct {
	URL      string
	Exchange string
}

// TelegramConfig is optional; no bot notifications when BotToken is empty
type TelegramConfig struct {
	BotToken string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:      getEnv("SERVER_HOST", "0.0.0.0"),
			Port:      getEnv("SERVER_PORT", "8080"),
			Env:       getEnv("SERVER_ENV", "development"),
			PublicURL: strings.TrimRight(getEnv("APP_PUBLIC_URL", "http://localhost:5173"), "/"),
		},
		Redis: RedisConfig{
			Host:      getEnv("REDIS_HOST", "localhost"),
			Port:      getEnv("REDIS_PORT", "6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "wc"),
		},
		Postgres: PostgresConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", ""),
			AccessTokenExpire:  time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRE_MINUTES", 60)) * time.Minute,
			RefreshTokenExpire: time.Duration(getEnvAsInt("JWT_REFRESH_TOKEN_EXPIRE_DAYS", 7)) * 24 * time.Hour,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}, ","),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute:      getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 120),
			LoginRequestsPerMinute: getEnvAsInt("LOGIN_RATE_LIMIT_PER_MINUTE", 10),
		},
		Login: LoginConfig{
			MaxAttempts:     getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
			LockoutDuration: time.Duration(getEnvAsInt("LOGIN_LOCKOUT_MINUTES", 15)) * time.Minute,
		},
		Cycle: CycleConfig{
			RequireSecondChance: getEnvAsBool("CYCLE_REQUIRE_SECOND_CHANCE", false),
			AutoComplete:        getEnvAsBool("CYCLE_AUTO_COMPLETE", false),
			AutoCompleteEvery:   getEnvAsDuration("CYCLE_AUTO_COMPLETE_INTERVAL", time.Minute),
		},
		Coinglass: CoinglassConfig{
			APIURL:       getEnv("COINGLASS_API_URL", "https://open-api-v4.coinglass.com"),
			APIKey:       getEnv("COINGLASS_API_KEY", ""),
			WhaleAddress: getEnv("WHALE_ADDRESS", ""),
			CacheTTL:     getEnvAsDuration("COINGLASS_CACHE_TTL", 15*time.Second),
		},
		AMQP: AMQPConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "cycle.events"),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	var err error
	if cfg.Cycle.PenaltyDailyRate, err = getEnvAsDecimal("CYCLE_PENALTY_DAILY_RATE", "0.02"); err != nil {
		return nil, err
	}
	if cfg.Cycle.EarlyWithdrawTax, err = getEnvAsDecimal("CYCLE_EARLY_WITHDRAW_TAX", "0.18"); err != nil {
		return nil, err
	}
	if cfg.Cycle.TaxExemptTypes, err = getEnvAsIntSlice("CYCLE_TAX_EXEMPT_TYPES", "4"); err != nil {
		return nil, err
	}
	if cfg.Cycle.PenaltyExemptTypes, err = getEnvAsIntSlice("CYCLE_PENALTY_EXEMPT_TYPES", "4"); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.Cycle.EarlyWithdrawTax.IsNegative() || cfg.Cycle.EarlyWithdrawTax.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("CYCLE_EARLY_WITHDRAW_TAX must be between 0 and 1")
	}

	if cfg.Cycle.PenaltyDailyRate.IsNegative() {
		return nil, fmt.Errorf("CYCLE_PENALTY_DAILY_RATE must not be negative")
	}

	return cfg, nil
}

// Address returns the full server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Address returns the full Redis address
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if running in development mode
func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *ServerConfig) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string, separator string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, separator)
}

func getEnvAsDecimal(key, defaultValue string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(getEnv(key, defaultValue))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal number: %w", key, err)
	}
	return value, nil
}

// getEnvAsIntSlice parses a comma separated list. "none" yields an empty list.
func getEnvAsIntSlice(key, defaultValue string) ([]int, error) {
	valueStr := strings.TrimSpace(getEnv(key, defaultValue))
	if valueStr == "" || strings.EqualFold(valueStr, "none") {
		return []int{}, nil
	}

	parts := strings.Split(valueStr, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%s must be a comma separated list of integers: %w", key, err)
		}
		out = append(out, v)
	}
	return out, nil
}
