package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCheck(t *testing.T) {
	hash, err := hashWithCost("correct horse", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, CheckPassword("correct horse", hash))
	assert.False(t, CheckPassword("wrong horse", hash))
}

func TestValidatePasswordStrength(t *testing.T) {
	assert.False(t, ValidatePasswordStrength("short"))
	assert.True(t, ValidatePasswordStrength("longenough"))
	assert.False(t, ValidatePasswordStrength(strings.Repeat("x", 73)))
}
