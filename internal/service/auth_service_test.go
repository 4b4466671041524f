package service

import (
	"testing"
	"time"

	"lobbyd/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService(t *testing.T) {
	auth := NewAuthService("test-secret")

	t.Run("round trip", func(t *testing.T) {
		token, err := auth.IssueToken("user_1", "Ada", time.Hour)
		require.NoError(t, err)

		claims, err := auth.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "user_1", claims.Subject)
		assert.Equal(t, "Ada", claims.Name)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := auth.IssueToken("user_1", "", -time.Minute)
		require.NoError(t, err)
		_, err = auth.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewAuthService("other").IssueToken("user_1", "", time.Hour)
		require.NoError(t, err)
		_, err = auth.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := auth.ValidateToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		token, err := auth.IssueToken("", "", time.Hour)
		require.NoError(t, err)
		_, err = auth.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("bot identities cannot authenticate", func(t *testing.T) {
		token, err := auth.IssueToken("bot_abcd", "", time.Hour)
		require.NoError(t, err)
		_, err = auth.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other signing methods are rejected", func(t *testing.T) {
		claims := &model.UserClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user_1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = auth.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
