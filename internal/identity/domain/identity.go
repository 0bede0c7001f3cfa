package domain

import "time"

// Identity represents an account's linked credential (local email+password today).
type Identity struct {
	ID           string
	AccountID    string
	Provider     IdentityProvider
	ProviderID   string
	PasswordHash string // empty if not local
	CreatedAt    time.Time
}

type IdentityProvider string

const (
	IdentityProviderLocal IdentityProvider = "local"
)
