package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a user in the system
type User struct {
	ID               string     `json:"id"`
	TelegramUsername string     `json:"telegram_username"`
	TelegramID       int64      `json:"telegram_id,omitempty"`
	PasswordHash     string     `json:"password_hash"` // Stored in Redis, but excluded from SafeUser responses
	Role             string     `json:"role"`          // "admin" or "user"
	Status           string     `json:"status"`        // "active" or "inactive"
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
}

// UserRole constants
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// UserStatus constants
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// IsAdmin checks if user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsActive checks if user is active
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// SafeUser returns user data safe for API response (no sensitive fields)
type SafeUser struct {
	ID               string     `json:"id"`
	TelegramUsername string     `json:"telegram_username"`
	Role             string     `json:"role"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
}

// ToSafeUser converts User to SafeUser
func (u *User) ToSafeUser() *SafeUser {
	return &SafeUser{
		ID:               u.ID,
		TelegramUsername: u.TelegramUsername,
		Role:             u.Role,
		Status:           u.Status,
		CreatedAt:        u.CreatedAt,
		LastLoginAt:      u.LastLoginAt,
	}
}

// LoginRequest represents the password login request
type LoginRequest struct {
	TelegramUsername string `json:"telegram_username" binding:"required,max=64"`
	Password         string `json:"password" binding:"required,max=128"`
}

// AuthResponse represents authentication response
type AuthResponse struct {
	User         *SafeUser `json:"user"`
	AuthURL      string    `json:"auth_url"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"` // seconds
}

// RefreshTokenRequest represents refresh token request
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Session represents a user session
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsedAt   time.Time `json:"last_used_at"`
	UserAgent    string    `json:"user_agent"`
	IP           string    `json:"ip"`
}

// UserProfile is the caller's own user record with wallet totals
type UserProfile struct {
	User    *SafeUser `json:"user"`
	Account *Account  `json:"account"`
}

// ChangePasswordRequest represents a password change by the user
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// CreateUserRequest is used by admins to onboard a user with a funded wallet
type CreateUserRequest struct {
	TelegramUsername string          `json:"telegram_username" binding:"required,max=64"`
	TelegramID       int64           `json:"telegram_id"`
	Password         string          `json:"password" binding:"required"`
	Role             string          `json:"role" binding:"omitempty,oneof=admin user"`
	InitialBalance   decimal.Decimal `json:"initial_balance"`
}

// UpdateUserRequest changes a user's role, status or linked chat
type UpdateUserRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	Role       string `json:"role" binding:"omitempty,oneof=admin user"`
	Status     string `json:"status" binding:"omitempty,oneof=active inactive"`
	TelegramID *int64 `json:"telegram_id"`
}

// ResetPasswordRequest is an admin password reset
type ResetPasswordRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}
