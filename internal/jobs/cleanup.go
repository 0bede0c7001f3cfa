package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ChallengeCleaner deletes pending second-factor codes whose expiry is at
// or before the cutoff.
type ChallengeCleaner interface {
	DeleteExpiredChallenges(ctx context.Context, cutoff time.Time) (int64, error)
}

// ChangeCleaner deletes email-change records in a terminal state not
// updated since the cutoff.
type ChangeCleaner interface {
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// staleChangeAge is how long committed or abandoned email changes are kept
// before the janitor removes them. The audit log remains the durable record.
const staleChangeAge = 30 * 24 * time.Hour

// NewExpiredChallengeCleanup returns a job that purges expired pending codes.
// Verification already rejects expired codes; the janitor only reclaims rows.
func NewExpiredChallengeCleanup(cleaner ChallengeCleaner, logger *zap.Logger, timeout time.Duration) Job {
	return NewJob("ExpiredChallengeCleanup", func(ctx context.Context) error {
		n, err := cleaner.DeleteExpiredChallenges(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("purged expired challenges", zap.Int64("count", n))
		}
		return nil
	}, timeout)
}

// NewStaleEmailChangeCleanup returns a job that purges settled email-change rows.
func NewStaleEmailChangeCleanup(cleaner ChangeCleaner, logger *zap.Logger, timeout time.Duration) Job {
	return NewJob("StaleEmailChangeCleanup", func(ctx context.Context) error {
		n, err := cleaner.DeleteStale(ctx, time.Now().UTC().Add(-staleChangeAge))
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("purged stale email changes", zap.Int64("count", n))
		}
		return nil
	}, timeout)
}
