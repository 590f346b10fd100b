package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshyvodetaene/chatual-sub000/internal/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:     "test-secret",
		Issuer:     "chatual-test",
		Expiration: time.Hour,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := testJWTConfig()

	token, err := NewToken(cfg, "alice", "Alice")
	require.NoError(t, err)

	claims, err := ParseToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "Alice", claims.Username)
	assert.Equal(t, cfg.Issuer, claims.Issuer)
}

func TestTokenWrongSecret(t *testing.T) {
	cfg := testJWTConfig()
	token, err := NewToken(cfg, "alice", "Alice")
	require.NoError(t, err)

	cfg.Secret = "other-secret"
	_, err = ParseToken(cfg, token)
	assert.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.Expiration = -time.Minute

	token, err := NewToken(cfg, "alice", "Alice")
	require.NoError(t, err)

	_, err = ParseToken(cfg, token)
	assert.Error(t, err)
}
