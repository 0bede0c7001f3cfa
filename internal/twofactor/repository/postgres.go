package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"snaplink/backend/internal/twofactor/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a second-factor profile repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const profileColumns = `account_id, enabled, challenge_id, code_hash, code_purpose, code_issued_at, code_expires_at, attempt_count, updated_at`

// GetByAccountID returns the profile for the account, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByAccountID(ctx context.Context, accountID string) (*domain.SecondFactorProfile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM second_factor_profiles WHERE account_id = $1`, accountID)
	return scanProfile(row)
}

// GetByChallengeID returns the profile holding the pending challenge, or nil if not found.
func (r *PostgresRepository) GetByChallengeID(ctx context.Context, challengeID string) (*domain.SecondFactorProfile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM second_factor_profiles WHERE challenge_id = $1`, challengeID)
	return scanProfile(row)
}

// Create persists the profile to the database.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.SecondFactorProfile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO second_factor_profiles (account_id, enabled, challenge_id, code_hash, code_purpose, code_issued_at, code_expires_at, attempt_count, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.AccountID, p.Enabled,
		nullString(p.ChallengeID), nullString(p.CodeHash), nullString(string(p.CodePurpose)),
		timeToNullTime(p.CodeIssuedAt), timeToNullTime(p.CodeExpiresAt),
		p.AttemptCount, p.UpdatedAt,
	)
	return err
}

// SetEnabled toggles the second factor for the account. Returns an error if the update fails.
func (r *PostgresRepository) SetEnabled(ctx context.Context, accountID string, enabled bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE second_factor_profiles SET enabled = $2, updated_at = $3 WHERE account_id = $1`,
		accountID, enabled, time.Now())
	return err
}

// SetPendingChallenge overwrites the profile's pending challenge in a single
// statement and resets the attempt count to zero.
func (r *PostgresRepository) SetPendingChallenge(ctx context.Context, accountID, challengeID, codeHash string, purpose domain.CodePurpose, issuedAt, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE second_factor_profiles
		 SET challenge_id = $2, code_hash = $3, code_purpose = $4, code_issued_at = $5, code_expires_at = $6, attempt_count = 0, updated_at = $7
		 WHERE account_id = $1`,
		accountID, challengeID, codeHash, string(purpose), issuedAt, expiresAt, time.Now())
	return err
}

// ClearPendingChallenge removes the profile's pending challenge, if any.
func (r *PostgresRepository) ClearPendingChallenge(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE second_factor_profiles
		 SET challenge_id = NULL, code_hash = NULL, code_purpose = NULL, code_issued_at = NULL, code_expires_at = NULL, attempt_count = 0, updated_at = $2
		 WHERE account_id = $1`,
		accountID, time.Now())
	return err
}

// IncrementAttempts bumps the failed-attempt counter for the account's pending
// challenge and returns the new count.
func (r *PostgresRepository) IncrementAttempts(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`UPDATE second_factor_profiles SET attempt_count = attempt_count + 1, updated_at = $2
		 WHERE account_id = $1 RETURNING attempt_count`,
		accountID, time.Now()).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// DeleteExpiredChallenges clears pending challenges whose expiry is before the
// cutoff. Returns the number of rows cleared.
func (r *PostgresRepository) DeleteExpiredChallenges(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE second_factor_profiles
		 SET challenge_id = NULL, code_hash = NULL, code_purpose = NULL, code_issued_at = NULL, code_expires_at = NULL, attempt_count = 0, updated_at = $2
		 WHERE code_expires_at IS NOT NULL AND code_expires_at < $1`,
		cutoff, time.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanProfile(row *sql.Row) (*domain.SecondFactorProfile, error) {
	var (
		p             domain.SecondFactorProfile
		challengeID   sql.NullString
		codeHash      sql.NullString
		codePurpose   sql.NullString
		codeIssuedAt  sql.NullTime
		codeExpiresAt sql.NullTime
	)
	err := row.Scan(&p.AccountID, &p.Enabled, &challengeID, &codeHash, &codePurpose, &codeIssuedAt, &codeExpiresAt, &p.AttemptCount, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if challengeID.Valid {
		p.ChallengeID = challengeID.String
	}
	if codeHash.Valid {
		p.CodeHash = codeHash.String
	}
	if codePurpose.Valid {
		p.CodePurpose = domain.CodePurpose(codePurpose.String)
	}
	p.CodeIssuedAt = nullTimeToPtr(codeIssuedAt)
	p.CodeExpiresAt = nullTimeToPtr(codeExpiresAt)
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
