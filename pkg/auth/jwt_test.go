package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyToken(t *testing.T) {
	const secret = "test-secret"

	t.Run("round trip", func(t *testing.T) {
		raw, err := GenerateToken(42, secret, time.Hour)
		require.NoError(t, err)

		uid, err := VerifyToken(raw, secret)
		require.NoError(t, err)
		assert.Equal(t, uint(42), uid)
	})

	t.Run("wrong secret", func(t *testing.T) {
		raw, err := GenerateToken(42, secret, time.Hour)
		require.NoError(t, err)

		_, err = VerifyToken(raw, "other-secret")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		raw, err := GenerateToken(42, secret, -time.Minute)
		require.NoError(t, err)

		_, err = VerifyToken(raw, secret)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := VerifyToken("not-a-jwt", secret)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := VerifyToken("", secret)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
