package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/internal/repository"
	"whalecycle/backend/internal/util"
	"whalecycle/backend/pkg/crypto"
	"whalecycle/backend/pkg/jwt"
	"whalecycle/backend/pkg/logger"
	"whalecycle/backend/pkg/redis"

	"github.com/google/uuid"
)

// LoginPolicy bounds failed password attempts per username
type LoginPolicy struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

// AuthService handles authentication logic
type AuthService struct {
	userRepo   *repository.UserRepository
	redis      *redis.Client
	jwtManager *jwt.JWTManager
	policy     LoginPolicy
	publicURL  string
	refreshTTL time.Duration
	log        *logger.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(userRepo *repository.UserRepository, redisClient *redis.Client, jwtManager *jwt.JWTManager, policy LoginPolicy, publicURL string, refreshTTL time.Duration, log *logger.Logger) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		redis:      redisClient,
		jwtManager: jwtManager,
		policy:     policy,
		publicURL:  strings.TrimRight(publicURL, "/"),
		refreshTTL: refreshTTL,
		log:        log,
	}
}

// LoginWithPassword authenticates by telegram username and password.
// After policy.MaxAttempts failures the username is locked for policy.LockoutDuration.
func (s *AuthService) LoginWithPassword(ctx context.Context, req *model.LoginRequest, userAgent, ip string) (*model.AuthResponse, error) {
	username := strings.TrimPrefix(strings.TrimSpace(req.TelegramUsername), "@")
	if username == "" {
		return nil, util.ErrValidation("telegram_username is required")
	}

	if ttl, err := s.redis.TTL(ctx, redis.LoginLockKey(username)); err != nil {
		s.log.WithField("ip", ip).Error("Failed to read login lock", err)
		return nil, util.ErrInternalServer("Internal server error")
	} else if ttl > 0 {
		return nil, util.ErrAccountLocked(ttl)
	}

	user, err := s.userRepo.GetByTelegramUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, s.recordFailure(ctx, username, ip)
		}
		s.log.WithField("ip", ip).Error("Failed to load user for login", err)
		return nil, util.ErrInternalServer("Internal server error")
	}

	if !crypto.CheckPassword(req.Password, user.PasswordHash) {
		return nil, s.recordFailure(ctx, username, ip)
	}

	if !user.IsActive() {
		return nil, util.ErrForbidden("User account is inactive")
	}

	if err := s.redis.Del(ctx, redis.LoginAttemptsKey(username)); err != nil {
		s.log.WithField("user_id", user.ID).Warnf("Failed to reset login attempts: %v", err)
	}

	resp, err := s.issueTokens(ctx, user, userAgent, ip)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.log.WithField("user_id", user.ID).Warnf("Failed to update last login: %v", err)
	}

	s.log.WithFields(map[string]interface{}{"user_id": user.ID, "ip": ip}).Info("User logged in")
	return resp, nil
}

func (s *AuthService) recordFailure(ctx context.Context, username, ip string) error {
	attempts, _, err := s.redis.IncrWindow(ctx, redis.LoginAttemptsKey(username), s.policy.LockoutDuration)
	if err != nil {
		s.log.WithField("ip", ip).Error("Failed to count login attempt", err)
		return util.ErrInternalServer("Internal server error")
	}

	if attempts < int64(s.policy.MaxAttempts) {
		return util.ErrInvalidCredentials()
	}

	if err := s.redis.Set(ctx, redis.LoginLockKey(username), ip, s.policy.LockoutDuration); err != nil {
		s.log.WithField("ip", ip).Error("Failed to lock account", err)
		return util.ErrInternalServer("Internal server error")
	}
	if err := s.redis.Del(ctx, redis.LoginAttemptsKey(username)); err != nil {
		s.log.WithField("ip", ip).Warnf("Failed to reset login attempts: %v", err)
	}

	s.log.WithFields(map[string]interface{}{"username": username, "ip": ip}).Warn("Login locked after repeated failures")
	return util.ErrAccountLocked(s.policy.LockoutDuration)
}

func (s *AuthService) issueTokens(ctx context.Context, user *model.User, userAgent, ip string) (*model.AuthResponse, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID, user.TelegramUsername, user.Role)
	if err != nil {
		return nil, util.ErrInternalServer("Failed to generate access token")
	}

	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, util.ErrInternalServer("Failed to generate refresh token")
	}

	now := time.Now()
	session := &model.Session{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(s.refreshTTL),
		CreatedAt:    now,
		LastUsedAt:   now,
		UserAgent:    userAgent,
		IP:           ip,
	}
	if err := s.userRepo.CreateSession(ctx, session); err != nil {
		s.log.WithField("user_id", user.ID).Error("Failed to create session", err)
		return nil, util.ErrInternalServer("Failed to create session")
	}

	return &model.AuthResponse{
		User:         user.ToSafeUser(),
		AuthURL:      s.authURL(accessToken, refreshToken),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.AccessTokenDuration().Seconds()),
	}, nil
}

// authURL is the frontend callback that completes the login. Tokens travel in the
// fragment so they never reach server logs.
func (s *AuthService) authURL(accessToken, refreshToken string) string {
	fragment := url.Values{}
	fragment.Set("access_token", accessToken)
	fragment.Set("refresh_token", refreshToken)
	return s.publicURL + "/auth/callback#" + fragment.Encode()
}

// RefreshToken refreshes access token using refresh token
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*model.AuthResponse, error) {
	claims, err := s.jwtManager.ValidateToken(refreshToken)
	if err != nil || claims.TokenType != jwt.TokenTypeRefresh {
		return nil, util.ErrTokenInvalid("Invalid refresh token")
	}

	user, err := s.checkClaims(ctx, claims)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID, user.TelegramUsername, user.Role)
	if err != nil {
		return nil, util.ErrInternalServer("Failed to generate access token")
	}

	return &model.AuthResponse{
		User:         user.ToSafeUser(),
		AuthURL:      s.authURL(accessToken, refreshToken),
		AccessToken:  accessToken,
		RefreshToken: refreshToken, // Return same refresh token
		ExpiresIn:    int64(s.jwtManager.AccessTokenDuration().Seconds()),
	}, nil
}

// Logout blacklists both tokens until they would have expired
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	for _, token := range []string{accessToken, refreshToken} {
		if token == "" {
			continue
		}
		claims, err := s.jwtManager.ValidateToken(token)
		if err != nil {
			continue // already unusable
		}
		if err := s.userRepo.BlacklistToken(ctx, claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
			s.log.WithField("user_id", claims.UserID).Error("Failed to blacklist token", err)
			return util.ErrInternalServer("Failed to revoke token")
		}
	}
	return nil
}

// GetUserByID gets a user by ID
func (s *AuthService) GetUserByID(ctx context.Context, userID string) (*model.SafeUser, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, util.ErrNotFound("User not found")
	}

	return user.ToSafeUser(), nil
}

// ValidateToken validates an access token and returns the caller
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil || claims.TokenType != jwt.TokenTypeAccess {
		return nil, util.ErrTokenInvalid("Invalid token")
	}
	return s.checkClaims(ctx, claims)
}

// checkClaims rejects blacklisted tokens, tokens issued before an admin logout and inactive users
func (s *AuthService) checkClaims(ctx context.Context, claims *jwt.Claims) (*model.User, error) {
	blacklisted, err := s.userRepo.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		s.log.WithField("user_id", claims.UserID).Error("Failed to check token status", err)
		return nil, util.ErrInternalServer("Failed to check token status")
	}
	if blacklisted {
		return nil, util.ErrTokenInvalid("Token has been revoked")
	}

	revokedAt, err := s.userRepo.RevokedBefore(ctx, claims.UserID)
	if err != nil {
		s.log.WithField("user_id", claims.UserID).Error("Failed to check session revocation", err)
		return nil, util.ErrInternalServer("Failed to check token status")
	}
	if !revokedAt.IsZero() && claims.IssuedAtMilli <= revokedAt.UnixMilli() {
		return nil, util.ErrTokenInvalid("Session has been revoked")
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, util.ErrTokenInvalid("Invalid token")
		}
		return nil, util.ErrInternalServer("Failed to load user")
	}

	if !user.IsActive() {
		return nil, util.ErrForbidden("User account is inactive")
	}

	return user, nil
}
