// seed inserts development sample data for local testing: go run ./cmd/seed.
// Idempotent: skips inserts if the dev account (dev@example.com) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	accountdomain "snaplink/backend/internal/account/domain"
	accountrepo "snaplink/backend/internal/account/repository"
	"snaplink/backend/internal/config"
	"snaplink/backend/internal/db"
	identitydomain "snaplink/backend/internal/identity/domain"
	identityrepo "snaplink/backend/internal/identity/repository"
	policydomain "snaplink/backend/internal/policy/domain"
	policyrepo "snaplink/backend/internal/policy/repository"
	"snaplink/backend/internal/security"
	twofactordomain "snaplink/backend/internal/twofactor/domain"
	twofactorrepo "snaplink/backend/internal/twofactor/repository"
)

// defaultStepUpPolicy matches the built-in policy in internal/policy/engine/opa_evaluator.go.
const defaultStepUpPolicy = `package snaplink.step_up

default step_up_required = false

step_up_required if {
	input.purpose == "login"
	input.profile.exists
	input.profile.enabled
}

step_up_required if {
	input.purpose == "email_change"
}
`

const (
	devAccountEmail  = "dev@example.com"
	devPassword      = "Sup3r-Secret-Pass!"
	devAccountID     = "dev-account-001"
	devAccount2ID    = "dev-account-002"
	devIdentityID    = "dev-identity-001"
	devIdentity2ID   = "dev-identity-002"
	devPolicyID      = "dev-policy-001"
	secondUserEmail  = "member@example.com"
	devPolicyName    = "default-step-up"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	accounts := accountrepo.NewPostgresRepository(conn)
	identities := identityrepo.NewPostgresRepository(conn)
	profiles := twofactorrepo.NewPostgresRepository(conn)
	policies := policyrepo.NewPostgresRepository(conn)

	ctx := context.Background()

	existing, err := accounts.GetByEmail(ctx, devAccountEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (dev@example.com exists). Skipping.")
		os.Exit(0)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()

	if err := accounts.Create(ctx, &accountdomain.Account{
		ID:        devAccountID,
		Email:     devAccountEmail,
		Name:      "Dev User",
		Status:    accountdomain.AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		log.Fatalf("create dev account: %v", err)
	}

	if err := accounts.Create(ctx, &accountdomain.Account{
		ID:        devAccount2ID,
		Email:     secondUserEmail,
		Name:      "Member User",
		Status:    accountdomain.AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		log.Fatalf("create member account: %v", err)
	}

	if err := identities.Create(ctx, &identitydomain.Identity{
		ID:           devIdentityID,
		AccountID:    devAccountID,
		Provider:     identitydomain.IdentityProviderLocal,
		ProviderID:   devAccountEmail,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}); err != nil {
		log.Fatalf("create dev identity: %v", err)
	}

	if err := identities.Create(ctx, &identitydomain.Identity{
		ID:           devIdentity2ID,
		AccountID:    devAccount2ID,
		Provider:     identitydomain.IdentityProviderLocal,
		ProviderID:   secondUserEmail,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}); err != nil {
		log.Fatalf("create member identity: %v", err)
	}

	// The dev account opts in to the second factor; the member account does
	// not, so both login paths are exercisable locally.
	if err := profiles.Create(ctx, &twofactordomain.SecondFactorProfile{
		AccountID: devAccountID,
		Enabled:   true,
		UpdatedAt: now,
	}); err != nil {
		log.Fatalf("create dev profile: %v", err)
	}

	if err := profiles.Create(ctx, &twofactordomain.SecondFactorProfile{
		AccountID: devAccount2ID,
		Enabled:   false,
		UpdatedAt: now,
	}); err != nil {
		log.Fatalf("create member profile: %v", err)
	}

	if err := policies.Create(ctx, &policydomain.Policy{
		ID:        devPolicyID,
		Name:      devPolicyName,
		Rules:     defaultStepUpPolicy,
		Enabled:   true,
		CreatedAt: now,
	}); err != nil {
		log.Fatalf("create policy: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Dev login (2FA on): %s / %s\n", devAccountEmail, devPassword)
	fmt.Printf("Member login (2FA off): %s / %s\n", secondUserEmail, devPassword)
}
