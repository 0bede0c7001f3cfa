package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"snaplink/backend/internal/account/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an account repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, email, name, status, email_changed_at, created_at, updated_at`

// GetByID returns the account for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetByEmail returns the account with the given email, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

// Create persists the account to the database. The account must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	name := sql.NullString{String: a.Name, Valid: a.Name != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, name, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Email, name, string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	return err
}

// UpdateEmail sets the account's email and email_changed_at.
func (r *PostgresRepository) UpdateEmail(ctx context.Context, accountID, newEmail string, changedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET email = $2, email_changed_at = $3, updated_at = $3 WHERE id = $1`,
		accountID, newEmail, changedAt,
	)
	return err
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var (
		a              domain.Account
		name           sql.NullString
		status         string
		emailChangedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Email, &name, &status, &emailChangedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if name.Valid {
		a.Name = name.String
	}
	a.Status = domain.AccountStatus(status)
	if emailChangedAt.Valid {
		t := emailChangedAt.Time
		a.EmailChangedAt = &t
	}
	return &a, nil
}
