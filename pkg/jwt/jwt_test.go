package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager("test-secret", time.Hour, "groupchat")
	require.NoError(t, err)
	return m
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := NewManager("", time.Hour, "groupchat")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestGenerateAndValidate(t *testing.T) {
	m := newManager(t)

	token, exp, err := m.GenerateToken("alice")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username())
	assert.NotEmpty(t, claims.ID)
}

func TestValidateRejects(t *testing.T) {
	m := newManager(t)

	t.Run("garbage", func(t *testing.T) {
		_, err := m.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := NewManager("another-secret", time.Hour, "groupchat")
		require.NoError(t, err)
		token, _, err := other.GenerateToken("alice")
		require.NoError(t, err)

		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		past := time.Now().Add(-2 * time.Hour)
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
			ID:        "old",
			Issuer:    "groupchat",
			Subject:   "alice",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})
}

func TestRevokeToken(t *testing.T) {
	m := newManager(t)

	first, _, err := m.GenerateToken("alice")
	require.NoError(t, err)
	second, _, err := m.GenerateToken("alice")
	require.NoError(t, err)

	claims, err := m.ValidateToken(first)
	require.NoError(t, err)
	m.RevokeToken(claims)

	_, err = m.ValidateToken(first)
	assert.ErrorIs(t, err, ErrRevokedToken)

	_, err = m.ValidateToken(second)
	assert.NoError(t, err)
}

func TestRevokeUserTokens(t *testing.T) {
	m := newManager(t)

	alice, _, err := m.GenerateToken("alice")
	require.NoError(t, err)
	bob, _, err := m.GenerateToken("bob")
	require.NoError(t, err)

	m.RevokeUserTokens("alice")

	_, err = m.ValidateToken(alice)
	assert.ErrorIs(t, err, ErrRevokedToken)
	_, err = m.ValidateToken(bob)
	assert.NoError(t, err)

	// A fresh sign-in after revocation is valid again.
	again, _, err := m.GenerateToken("alice")
	require.NoError(t, err)
	_, err = m.ValidateToken(again)
	assert.NoError(t, err)
}

func TestCleanupExpiredRevocations(t *testing.T) {
	m := newManager(t)
	m.revokedTokens["stale"] = time.Now().Add(-time.Minute)
	m.revokedTokens["live"] = time.Now().Add(time.Minute)

	m.CleanupExpiredRevocations()

	assert.NotContains(t, m.revokedTokens, "stale")
	assert.Contains(t, m.revokedTokens, "live")
}
