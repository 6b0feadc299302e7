package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-only-secret"))
	require.NoError(t, err)
	return s
}

func TestJWT_Inspect_AccessToken(t *testing.T) {
	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	access := sign(t, jwt.MapClaims{
		"user_id":      42,
		"email":        "admin@shop.test",
		"is_staff":     true,
		"is_superuser": false,
		"token_type":   "access",
		"exp":          exp.Unix(),
	})

	claims, err := NewJWT().Inspect(access)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "admin@shop.test", claims.Email)
	assert.True(t, claims.IsAdmin())
	assert.True(t, exp.Equal(claims.ExpiresAt))
}

func TestJWT_Inspect_SubjectFallback(t *testing.T) {
	access := sign(t, jwt.RegisteredClaims{Subject: "u-7"})

	claims, err := NewJWT().Inspect(access)
	require.NoError(t, err)
	assert.Equal(t, "u-7", claims.UserID)
	assert.True(t, claims.ExpiresAt.IsZero())
	assert.False(t, claims.IsAdmin())
}

func TestJWT_Inspect_ExpiredTokenStillReadable(t *testing.T) {
	access := sign(t, jwt.MapClaims{"user_id": "9", "exp": time.Now().Add(-time.Hour).Unix()})

	claims, err := NewJWT().Inspect(access)
	require.NoError(t, err)
	assert.True(t, claims.ExpiresAt.Before(time.Now()))
}

func TestJWT_Inspect_TokenTypeMismatch(t *testing.T) {
	refresh := sign(t, jwt.MapClaims{"user_id": 1, "token_type": "refresh"})

	_, err := NewJWT().Inspect(refresh)
	require.Error(t, err)
}

func TestJWT_Inspect_Garbage(t *testing.T) {
	_, err := NewJWT().Inspect("not-a-jwt")
	require.Error(t, err)
}
