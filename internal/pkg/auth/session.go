// internal/pkg/auth/session.go
package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoSession is returned when no bearer token is held
	ErrNoSession = errors.New("no active session")
	// ErrSessionExpired is returned when the held token is past its expiry
	ErrSessionExpired = errors.New("session expired")
)

// Session holds the bearer token issued by the authentication layer. The token is
// never verified here; the signature is the backend's business. Only the expiry
// claim is read so an expired session fails locally instead of round-tripping.
type Session struct {
	mu    sync.RWMutex
	token string
	now   func() time.Time
}

// NewSession creates a session, optionally seeded with a token
func NewSession(token string) *Session {
	return &Session{token: strings.TrimSpace(token), now: time.Now}
}

// Token returns the bearer token for the next request
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		return "", ErrNoSession
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// Opaque tokens are passed through untouched
		return token, nil
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.Time.After(s.now()) {
		return "", ErrSessionExpired
	}
	return token, nil
}

// Set replaces the held token, e.g. after a refresh
func (s *Session) Set(token string) {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
}

// Clear drops the held token
func (s *Session) Clear() {
	s.Set("")
}

// Subject returns the token subject when the token is a JWT
func (s *Session) Subject() string {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	return claims.Subject
}
