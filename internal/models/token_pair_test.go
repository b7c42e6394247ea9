package models

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestTokenPair_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, TokenPair{AccessToken: "a", RefreshToken: "r"}.Validate())
	require.ErrorIs(t, TokenPair{AccessToken: "a"}.Validate(), ErrEmptyToken)
	require.ErrorIs(t, TokenPair{RefreshToken: "r"}.Validate(), ErrEmptyToken)
}

func TestTokenPair_AccessExpiresAt_JWT(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("any-secret"))
	require.NoError(t, err)

	got, ok := TokenPair{AccessToken: signed, RefreshToken: "r"}.AccessExpiresAt()
	require.True(t, ok)
	require.True(t, exp.Equal(got))
}

func TestTokenPair_AccessExpiresAt_Opaque(t *testing.T) {
	t.Parallel()

	_, ok := TokenPair{AccessToken: "opaque-token", RefreshToken: "r"}.AccessExpiresAt()
	require.False(t, ok)

	_, ok = TokenExpiresAt("")
	require.False(t, ok)
}
