package repository

import (
	"context"
	"database/sql"
	"errors"

	"snaplink/backend/internal/identity/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an identity repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByAccountAndProvider returns the identity for the account and provider, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByAccountAndProvider(ctx context.Context, accountID string, provider domain.IdentityProvider) (*domain.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, provider, provider_id, password_hash, created_at
		 FROM identities WHERE account_id = $1 AND provider = $2`,
		accountID, string(provider),
	)
	var (
		i            domain.Identity
		prov         string
		passwordHash sql.NullString
	)
	err := row.Scan(&i.ID, &i.AccountID, &prov, &i.ProviderID, &passwordHash, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	i.Provider = domain.IdentityProvider(prov)
	if passwordHash.Valid {
		i.PasswordHash = passwordHash.String
	}
	return &i, nil
}

// Create persists the identity to the database. The identity must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Identity) error {
	passwordHash := sql.NullString{String: i.PasswordHash, Valid: i.PasswordHash != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (id, account_id, provider, provider_id, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		i.ID, i.AccountID, string(i.Provider), i.ProviderID, passwordHash, i.CreatedAt,
	)
	return err
}
