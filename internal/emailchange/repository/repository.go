package repository

import (
	"context"
	"time"

	"snaplink/backend/internal/emailchange/domain"
)

// Repository defines persistence for pending email changes.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.PendingEmailChange, error)
	// GetActiveByAccount returns the account's awaiting_code change, or nil
	// if the account has none in flight.
	GetActiveByAccount(ctx context.Context, accountID string) (*domain.PendingEmailChange, error)
	Create(ctx context.Context, c *domain.PendingEmailChange) error
	UpdateState(ctx context.Context, id string, state domain.ChangeState, at time.Time) error
	// UpdateChallengeID points the change at a freshly issued challenge,
	// keeping the row in step with the code actually outstanding.
	UpdateChallengeID(ctx context.Context, id, challengeID string, at time.Time) error
	// Delete removes the change row. The table allows at most one
	// awaiting_code row per account; terminal rows are kept for the janitor.
	Delete(ctx context.Context, id string) error
	// DeleteStale removes terminal-state rows older than the cutoff.
	// Returns the number of rows removed.
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}
