package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"snaplink/backend/internal/emailchange/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a pending email change repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const changeColumns = `id, account_id, new_email, state, challenge_id, created_at, updated_at`

// GetByID returns the change for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.PendingEmailChange, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+changeColumns+` FROM pending_email_changes WHERE id = $1`, id)
	return scanChange(row)
}

// GetActiveByAccount returns the account's awaiting_code change, or nil if none is in flight.
func (r *PostgresRepository) GetActiveByAccount(ctx context.Context, accountID string) (*domain.PendingEmailChange, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+changeColumns+` FROM pending_email_changes WHERE account_id = $1 AND state = $2`,
		accountID, string(domain.StateAwaitingCode))
	return scanChange(row)
}

// Create persists the change to the database. The change must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.PendingEmailChange) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pending_email_changes (id, account_id, new_email, state, challenge_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.AccountID, c.NewEmail, string(c.State),
		sql.NullString{String: c.ChallengeID, Valid: c.ChallengeID != ""},
		c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// UpdateState moves the change to the given state. Returns an error if the update fails.
func (r *PostgresRepository) UpdateState(ctx context.Context, id string, state domain.ChangeState, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE pending_email_changes SET state = $2, updated_at = $3 WHERE id = $1`,
		id, string(state), at)
	return err
}

// UpdateChallengeID points the change at a freshly issued challenge.
func (r *PostgresRepository) UpdateChallengeID(ctx context.Context, id, challengeID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE pending_email_changes SET challenge_id = $2, updated_at = $3 WHERE id = $1`,
		id, sql.NullString{String: challengeID, Valid: challengeID != ""}, at)
	return err
}

// Delete removes the change row. Returns an error if the delete fails.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_email_changes WHERE id = $1`, id)
	return err
}

// DeleteStale removes terminal-state rows older than the cutoff.
// Returns the number of rows removed.
func (r *PostgresRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM pending_email_changes WHERE state <> $1 AND updated_at < $2`,
		string(domain.StateAwaitingCode), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanChange(row *sql.Row) (*domain.PendingEmailChange, error) {
	var (
		c           domain.PendingEmailChange
		state       string
		challengeID sql.NullString
	)
	err := row.Scan(&c.ID, &c.AccountID, &c.NewEmail, &state, &challengeID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.State = domain.ChangeState(state)
	if challengeID.Valid {
		c.ChallengeID = challengeID.String
	}
	return &c, nil
}
