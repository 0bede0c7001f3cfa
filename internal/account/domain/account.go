package domain

import (
	"errors"
	"time"
)

// Account is the core account entity.
type Account struct {
	ID             string
	Email          string
	Name           string
	Status         AccountStatus
	EmailChangedAt *time.Time // nil until the first committed email change
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusDisabled AccountStatus = "disabled"
)

// Validate validates the account for persistence. Returns an error describing the first validation failure.
func (a *Account) Validate() error {
	if a.Email == "" {
		return errors.New("email is required")
	}
	if a.Status == "" {
		a.Status = AccountStatusActive
	}
	return nil
}
