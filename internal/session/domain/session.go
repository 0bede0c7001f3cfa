package domain

import "time"

// Session represents an authenticated session for an account.
type Session struct {
	ID               string
	AccountID        string
	ExpiresAt        time.Time
	RevokedAt        *time.Time // nil when not revoked
	LastSeenAt       *time.Time
	IPAddress        string
	RefreshJti       string // current refresh token jti for rotation; empty if not set
	RefreshTokenHash string // SHA-256 hash of current refresh token
	CreatedAt        time.Time
}

// Active reports whether the session can still be used at the given time.
func (s *Session) Active(at time.Time) bool {
	return s.RevokedAt == nil && at.Before(s.ExpiresAt)
}
