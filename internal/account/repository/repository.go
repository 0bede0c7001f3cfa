package repository

import (
	"context"
	"time"

	"snaplink/backend/internal/account/domain"
)

// Repository defines persistence for accounts.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	// UpdateEmail sets the account's email and records when the change was
	// committed. Callers gate this behind a verified step-up challenge.
	UpdateEmail(ctx context.Context, accountID, newEmail string, changedAt time.Time) error
}
