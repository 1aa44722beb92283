package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Minute, time.Hour)

	token, err := m.GenerateAccessToken("u1", "whale", "admin")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "whale", claims.TelegramUsername)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now(), claims.IssuedAtTime(), 2*time.Second)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	token, err := NewJWTManager("one", time.Minute, time.Hour).GenerateRefreshToken("u1")
	require.NoError(t, err)

	_, err = NewJWTManager("two", time.Minute, time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	m := NewJWTManager("secret", -time.Minute, time.Hour)
	token, err := m.GenerateAccessToken("u1", "whale", "user")
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.Error(t, err)
}
