package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in Claims.TokenType
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims represents JWT claims
type Claims struct {
	UserID           string `json:"user_id"`
	TelegramUsername string `json:"telegram_username,omitempty"`
	Role             string `json:"role,omitempty"`
	TokenType        string `json:"token_type"`
	// IssuedAtMilli is compared against session revocation markers,
	// which need sub-second resolution.
	IssuedAtMilli int64 `json:"iat_ms"`
	jwt.RegisteredClaims
}

// IssuedAtTime returns the millisecond issue time
func (c *Claims) IssuedAtTime() time.Time {
	return time.UnixMilli(c.IssuedAtMilli)
}

// JWTManager handles JWT operations
type JWTManager struct {
	secretKey            string
	accessTokenDuration  time.Duration
	refreshTokenDuration time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secretKey string, accessTokenDuration, refreshTokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:            secretKey,
		accessTokenDuration:  accessTokenDuration,
		refreshTokenDuration: refreshTokenDuration,
	}
}

// AccessTokenDuration returns the access token lifetime
func (m *JWTManager) AccessTokenDuration() time.Duration {
	return m.accessTokenDuration
}

// GenerateAccessToken generates a new access token
func (m *JWTManager) GenerateAccessToken(userID, telegramUsername, role string) (string, error) {
	return m.sign(Claims{
		UserID:           userID,
		TelegramUsername: telegramUsername,
		Role:             role,
		TokenType:        TokenTypeAccess,
	}, m.accessTokenDuration)
}

// GenerateRefreshToken generates a new refresh token
func (m *JWTManager) GenerateRefreshToken(userID string) (string, error) {
	return m.sign(Claims{
		UserID:    userID,
		TokenType: TokenTypeRefresh,
	}, m.refreshTokenDuration)
}

func (m *JWTManager) sign(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAtMilli = now.UnixMilli()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secretKey))
}

// ValidateToken validates a JWT token and returns claims
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(m.secretKey), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
