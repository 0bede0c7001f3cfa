package repository

import (
	"context"
	"time"

	"snaplink/backend/internal/twofactor/domain"
)

// Repository defines persistence for second-factor profiles and their
// pending challenges.
type Repository interface {
	GetByAccountID(ctx context.Context, accountID string) (*domain.SecondFactorProfile, error)
	GetByChallengeID(ctx context.Context, challengeID string) (*domain.SecondFactorProfile, error)
	Create(ctx context.Context, p *domain.SecondFactorProfile) error
	SetEnabled(ctx context.Context, accountID string, enabled bool) error
	// SetPendingChallenge overwrites the profile's pending challenge in a
	// single statement and resets the attempt count to zero.
	SetPendingChallenge(ctx context.Context, accountID, challengeID, codeHash string, purpose domain.CodePurpose, issuedAt, expiresAt time.Time) error
	ClearPendingChallenge(ctx context.Context, accountID string) error
	IncrementAttempts(ctx context.Context, accountID string) (int, error)
	// DeleteExpiredChallenges clears pending challenges whose expiry is
	// before the cutoff. Returns the number of rows cleared.
	DeleteExpiredChallenges(ctx context.Context, cutoff time.Time) (int64, error)
}

// DefaultChallengeTTL is the default verification-code expiry.
const DefaultChallengeTTL = 10 * time.Minute

// DefaultMaxAttempts is the default number of wrong codes tolerated per challenge.
const DefaultMaxAttempts = 5
