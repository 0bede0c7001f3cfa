package repository

import (
	"context"

	"snaplink/backend/internal/identity/domain"
)

// Repository defines persistence for identities.
type Repository interface {
	GetByAccountAndProvider(ctx context.Context, accountID string, provider domain.IdentityProvider) (*domain.Identity, error)
	Create(ctx context.Context, i *domain.Identity) error
}
