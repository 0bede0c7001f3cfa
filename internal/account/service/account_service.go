package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	accountdomain "snaplink/backend/internal/account/domain"
	"snaplink/backend/internal/audit"
	emailchangedomain "snaplink/backend/internal/emailchange/domain"
	twofactordomain "snaplink/backend/internal/twofactor/domain"
	twofactorservice "snaplink/backend/internal/twofactor/service"
)

// Sentinel errors for the account service; handlers map them to HTTP codes.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailInUse      = errors.New("email already in use")
	ErrEmailUnchanged  = errors.New("new email matches the current one")
	// ErrChangeCooldown means the account changed its email too recently.
	ErrChangeCooldown = errors.New("email was changed recently; try again later")
	// ErrNoPendingChange means no email change is awaiting confirmation.
	ErrNoPendingChange = errors.New("no pending email change")
)

// AccountRepo is the minimal account repository needed by the account service.
type AccountRepo interface {
	GetByID(ctx context.Context, id string) (*accountdomain.Account, error)
	GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error)
	UpdateEmail(ctx context.Context, accountID, newEmail string, changedAt time.Time) error
}

// ChangeRepo is the minimal pending email change repository needed by the account service.
type ChangeRepo interface {
	GetActiveByAccount(ctx context.Context, accountID string) (*emailchangedomain.PendingEmailChange, error)
	Create(ctx context.Context, c *emailchangedomain.PendingEmailChange) error
	UpdateState(ctx context.Context, id string, state emailchangedomain.ChangeState, at time.Time) error
	UpdateChallengeID(ctx context.Context, id, challengeID string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// ProfileRepo is the minimal second-factor profile repository needed by the account service.
type ProfileRepo interface {
	GetByAccountID(ctx context.Context, accountID string) (*twofactordomain.SecondFactorProfile, error)
	SetEnabled(ctx context.Context, accountID string, enabled bool) error
	ClearPendingChallenge(ctx context.Context, accountID string) error
}

// Challenges is the subset of the challenge service used by the email change
// guard. Issuing overwrites any outstanding code, so a resend is simply a
// fresh Issue for the same account.
type Challenges interface {
	Issue(ctx context.Context, accountID string, purpose twofactordomain.CodePurpose) (challengeID string, expiresAt time.Time, err error)
	Verify(ctx context.Context, challengeID, code string, purpose twofactordomain.CodePurpose) (accountID string, err error)
}

// AccountService manages account settings, the second factor toggle, and the
// email change flow. Changing the email is guarded: a verification code goes
// to the address currently on record, and the swap only happens once that
// code is confirmed.
type AccountService struct {
	accountRepo AccountRepo
	changeRepo  ChangeRepo
	profileRepo ProfileRepo
	challenges  Challenges
	auditLog    audit.AuditLogger
	cooldown    time.Duration
	nowF        func() time.Time
}

// NewAccountService returns an AccountService with the given dependencies.
// cooldown bounds how often the email can be changed; zero disables the bound.
func NewAccountService(
	accountRepo AccountRepo,
	changeRepo ChangeRepo,
	profileRepo ProfileRepo,
	challenges Challenges,
	auditLog audit.AuditLogger,
	cooldown time.Duration,
) *AccountService {
	return &AccountService{
		accountRepo: accountRepo,
		changeRepo:  changeRepo,
		profileRepo: profileRepo,
		challenges:  challenges,
		auditLog:    auditLog,
		cooldown:    cooldown,
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the account, or ErrAccountNotFound.
func (s *AccountService) Get(ctx context.Context, accountID string) (*accountdomain.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// GetSecondFactor returns whether the second factor is enabled for the account.
func (s *AccountService) GetSecondFactor(ctx context.Context, accountID string) (bool, error) {
	profile, err := s.profileRepo.GetByAccountID(ctx, accountID)
	if err != nil {
		return false, err
	}
	if profile == nil {
		return false, ErrAccountNotFound
	}
	return profile.Enabled, nil
}

// SetSecondFactor toggles the second factor. Disabling it also discards any
// outstanding sign-in code.
func (s *AccountService) SetSecondFactor(ctx context.Context, accountID string, enabled bool) error {
	profile, err := s.profileRepo.GetByAccountID(ctx, accountID)
	if err != nil {
		return err
	}
	if profile == nil {
		return ErrAccountNotFound
	}
	if err := s.profileRepo.SetEnabled(ctx, accountID, enabled); err != nil {
		return err
	}
	if !enabled && profile.HasPendingChallenge() {
		_ = s.profileRepo.ClearPendingChallenge(ctx, accountID)
	}
	action := "second_factor_disabled"
	if enabled {
		action = "second_factor_enabled"
	}
	s.auditLog.LogEvent(ctx, accountID, action, "second_factor", "")
	return nil
}

// RequestEmailChange starts an email change. The verification code goes to
// the address currently on record, never to the requested one: possession of
// a session alone must not be enough to redirect the account's email. Any
// earlier in-flight change is abandoned and its code overwritten.
func (s *AccountService) RequestEmailChange(ctx context.Context, accountID, newEmail string) (challengeID string, expiresAt time.Time, err error) {
	newEmail = strings.TrimSpace(strings.ToLower(newEmail))
	if err := validateEmail(newEmail); err != nil {
		return "", time.Time{}, err
	}
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return "", time.Time{}, err
	}
	if account == nil {
		return "", time.Time{}, ErrAccountNotFound
	}
	if account.Email == newEmail {
		return "", time.Time{}, ErrEmailUnchanged
	}
	if s.cooldown > 0 && account.EmailChangedAt != nil && s.nowF().Sub(*account.EmailChangedAt) < s.cooldown {
		return "", time.Time{}, ErrChangeCooldown
	}
	taken, err := s.accountRepo.GetByEmail(ctx, newEmail)
	if err != nil {
		return "", time.Time{}, err
	}
	if taken != nil {
		return "", time.Time{}, ErrEmailInUse
	}

	now := s.nowF()
	if prev, err := s.changeRepo.GetActiveByAccount(ctx, accountID); err != nil {
		return "", time.Time{}, err
	} else if prev != nil {
		if err := prev.Abandon(now); err == nil {
			_ = s.changeRepo.UpdateState(ctx, prev.ID, prev.State, now)
		}
		// The table allows one awaiting_code row per account; the superseded
		// request is removed rather than left for the cleanup worker.
		if err := s.changeRepo.Delete(ctx, prev.ID); err != nil {
			return "", time.Time{}, err
		}
	}

	challengeID, expiresAt, err = s.challenges.Issue(ctx, accountID, twofactordomain.CodePurposeEmailChange)
	if err != nil {
		return "", time.Time{}, err
	}
	change := &emailchangedomain.PendingEmailChange{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		NewEmail:    newEmail,
		State:       emailchangedomain.StateAwaitingCode,
		ChallengeID: challengeID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.changeRepo.Create(ctx, change); err != nil {
		return "", time.Time{}, err
	}
	s.auditLog.LogEvent(ctx, accountID, "email_change_requested", "account", "")
	return challengeID, expiresAt, nil
}

// ConfirmEmailChange checks the submitted code and, on success, commits the
// pending change: the account's email becomes the requested address and the
// cooldown clock restarts. accountID is the authenticated caller; a code
// belonging to a different account is rejected before anything is committed.
func (s *AccountService) ConfirmEmailChange(ctx context.Context, accountID, challengeID, code string) (*accountdomain.Account, error) {
	ownerID, err := s.challenges.Verify(ctx, challengeID, code, twofactordomain.CodePurposeEmailChange)
	if err != nil {
		return nil, err
	}
	if ownerID != accountID {
		s.auditLog.LogEvent(ctx, accountID, "email_change_rejected", "account", "owner_mismatch")
		return nil, twofactorservice.ErrChallengeRejected
	}
	change, err := s.changeRepo.GetActiveByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if change == nil {
		return nil, ErrNoPendingChange
	}
	now := s.nowF()
	if err := change.Commit(now); err != nil {
		return nil, err
	}
	if err := s.accountRepo.UpdateEmail(ctx, accountID, change.NewEmail, now); err != nil {
		return nil, err
	}
	if err := s.changeRepo.UpdateState(ctx, change.ID, change.State, now); err != nil {
		return nil, err
	}
	s.auditLog.LogEvent(ctx, accountID, "email_change_committed", "account", "")
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// CancelEmailChange abandons the in-flight change and discards its code.
func (s *AccountService) CancelEmailChange(ctx context.Context, accountID string) error {
	change, err := s.changeRepo.GetActiveByAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if change == nil {
		return ErrNoPendingChange
	}
	now := s.nowF()
	if err := change.Abandon(now); err != nil {
		return err
	}
	if err := s.changeRepo.UpdateState(ctx, change.ID, change.State, now); err != nil {
		return err
	}
	_ = s.profileRepo.ClearPendingChallenge(ctx, accountID)
	s.auditLog.LogEvent(ctx, accountID, "email_change_abandoned", "account", "")
	return nil
}

// ResendEmailChangeCode replaces the outstanding confirmation code with a
// fresh one, still delivered to the current address. The change row is
// re-pointed at the new challenge so a further resend keeps working.
func (s *AccountService) ResendEmailChangeCode(ctx context.Context, accountID string) (newChallengeID string, expiresAt time.Time, err error) {
	change, err := s.changeRepo.GetActiveByAccount(ctx, accountID)
	if err != nil {
		return "", time.Time{}, err
	}
	if change == nil {
		return "", time.Time{}, ErrNoPendingChange
	}
	newChallengeID, expiresAt, err = s.challenges.Issue(ctx, accountID, twofactordomain.CodePurposeEmailChange)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.changeRepo.UpdateChallengeID(ctx, change.ID, newChallengeID, s.nowF()); err != nil {
		return "", time.Time{}, err
	}
	return newChallengeID, expiresAt, nil
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	ok, _ := regexp.MatchString(simpleEmail, email)
	if !ok {
		return errors.New("invalid email format")
	}
	return nil
}
