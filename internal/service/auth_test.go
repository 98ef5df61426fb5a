package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/apperror"
)

func TestAuthService_GenerateToken(t *testing.T) {
	t.Run("Token round-trips to the player id", func(t *testing.T) {
		// Given: an auth service
		auth, err := NewAuthService("secret", time.Hour)
		require.NoError(t, err)

		// When: a token is issued and parsed
		token, err := auth.GenerateToken("alice@example.com")
		require.NoError(t, err)

		playerID, err := auth.ParseToken(token)

		// Then: the subject is the player id
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", playerID)
	})

	t.Run("Returns ErrEmptySecretKey without a secret", func(t *testing.T) {
		auth, err := NewAuthService("", time.Hour)

		require.ErrorIs(t, err, ErrEmptySecretKey)
		assert.Nil(t, auth)
	})
}

func TestAuthService_ParseToken(t *testing.T) {
	t.Run("Rejects a token signed with another key", func(t *testing.T) {
		// Given: a token from a different secret
		other, err := NewAuthService("other", time.Hour)
		require.NoError(t, err)
		token, err := other.GenerateToken("alice@example.com")
		require.NoError(t, err)

		auth, err := NewAuthService("secret", time.Hour)
		require.NoError(t, err)

		// When: it is parsed
		_, err = auth.ParseToken(token)

		// Then: it is unauthorized
		require.ErrorIs(t, err, apperror.ErrUnauthorized)
	})

	t.Run("Rejects an expired token", func(t *testing.T) {
		// Given: a token issued two hours ago with a one hour lifetime
		auth := &authService{
			secretKey: []byte("secret"),
			tokenTTL:  time.Hour,
			now:       func() time.Time { return time.Now().Add(-2 * time.Hour) },
		}
		token, err := auth.GenerateToken("alice@example.com")
		require.NoError(t, err)

		auth.now = time.Now

		// When: it is parsed now
		_, err = auth.ParseToken(token)

		// Then: it is unauthorized
		require.ErrorIs(t, err, apperror.ErrUnauthorized)
	})

	t.Run("Rejects garbage", func(t *testing.T) {
		auth, err := NewAuthService("secret", time.Hour)
		require.NoError(t, err)

		_, err = auth.ParseToken("not-a-token")

		require.ErrorIs(t, err, apperror.ErrUnauthorized)
	})
}
