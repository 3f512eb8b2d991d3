package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riddle-backend/internal/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", ExpiresIn: time.Hour, Issuer: "riddle-test"}
}

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager(testJWTConfig())

	token, err := m.Issue("u1", "a@example.com", true)
	require.NoError(t, err)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.True(t, claims.IsPremium)
}

func TestTokenExpired(t *testing.T) {
	m := NewTokenManager(testJWTConfig())
	issued := time.Now().Add(-2 * time.Hour)
	m.SetClock(func() time.Time { return issued })

	token, err := m.Issue("u1", "a@example.com", false)
	require.NoError(t, err)

	m.SetClock(time.Now)
	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewTokenManager(testJWTConfig()).Issue("u1", "a@example.com", false)
	require.NoError(t, err)

	other := testJWTConfig()
	other.Secret = "different"
	_, err = NewTokenManager(other).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRejectsOtherAlgorithms(t *testing.T) {
	cfg := testJWTConfig()
	claims := Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = NewTokenManager(cfg).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
}

func TestResetToken(t *testing.T) {
	plain, hash, err := NewResetToken()
	require.NoError(t, err)

	assert.Len(t, plain, 64)
	assert.Equal(t, hash, HashResetToken(plain))
	assert.NotEqual(t, plain, hash)
}
