package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, subject string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(expiresAt.Add(-time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestSessionValidToken(t *testing.T) {
	token := signedToken(t, "user:42", time.Now().Add(time.Hour))
	s := NewSession(token)

	got, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, token, got)
	assert.Equal(t, "user:42", s.Subject())
}

func TestSessionExpiredToken(t *testing.T) {
	s := NewSession(signedToken(t, "user:42", time.Now().Add(-time.Minute)))

	_, err := s.Token()
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestSessionOpaqueToken(t *testing.T) {
	s := NewSession("opaque-token")

	got, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", got)
	assert.Equal(t, "", s.Subject())
}

func TestSessionClear(t *testing.T) {
	s := NewSession("opaque-token")
	s.Clear()

	_, err := s.Token()
	assert.ErrorIs(t, err, ErrNoSession)

	s.Set("  next  ")
	got, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "next", got)
}
