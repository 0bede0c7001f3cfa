package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	accountdomain "snaplink/backend/internal/account/domain"
	"snaplink/backend/internal/audit"
	"snaplink/backend/internal/delivery"
	"snaplink/backend/internal/devcode"
	"snaplink/backend/internal/otp"
	"snaplink/backend/internal/twofactor/domain"
)

// Sentinel errors for the challenge service; handlers map them to HTTP codes.
var (
	// ErrDeliveryFailed means the code email could not be sent. The pending
	// code is rolled back so the caller may retry from scratch.
	ErrDeliveryFailed = errors.New("could not deliver verification code")
	// ErrChallengeRejected is the single rejection returned for a wrong
	// code, an expired code, an unknown challenge, or too many attempts.
	// The precise reason is recorded in the audit log only.
	ErrChallengeRejected = errors.New("verification failed")
	// ErrProfileLookupFailed means the account's second-factor profile
	// could not be loaded or does not exist.
	ErrProfileLookupFailed = errors.New("second factor profile unavailable")
)

// ProfileRepo is the minimal second-factor profile repository needed by the challenge service.
type ProfileRepo interface {
	GetByAccountID(ctx context.Context, accountID string) (*domain.SecondFactorProfile, error)
	GetByChallengeID(ctx context.Context, challengeID string) (*domain.SecondFactorProfile, error)
	SetPendingChallenge(ctx context.Context, accountID, challengeID, codeHash string, purpose domain.CodePurpose, issuedAt, expiresAt time.Time) error
	ClearPendingChallenge(ctx context.Context, accountID string) error
	IncrementAttempts(ctx context.Context, accountID string) (int, error)
}

// AccountRepo is the minimal account repository needed by the challenge service.
type AccountRepo interface {
	GetByID(ctx context.Context, id string) (*accountdomain.Account, error)
}

// ChallengeService issues and verifies emailed verification codes. Codes are
// stored hashed; at most one is outstanding per account, and issuing a new
// code overwrites the previous one.
type ChallengeService struct {
	profileRepo ProfileRepo
	accountRepo AccountRepo
	sender      delivery.Sender
	devStore    devcode.Store // nil outside dev mode
	auditLog    audit.AuditLogger
	ttl         time.Duration
	maxAttempts int
	nowF        func() time.Time
}

// NewChallengeService returns a ChallengeService with the given dependencies.
// devStore may be nil; then plain codes are never retained.
func NewChallengeService(
	profileRepo ProfileRepo,
	accountRepo AccountRepo,
	sender delivery.Sender,
	devStore devcode.Store,
	auditLog audit.AuditLogger,
	ttl time.Duration,
	maxAttempts int,
) *ChallengeService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &ChallengeService{
		profileRepo: profileRepo,
		accountRepo: accountRepo,
		sender:      sender,
		devStore:    devStore,
		auditLog:    auditLog,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue generates a fresh code for the account, stores its hash on the
// profile (replacing any outstanding code) and emails it to the account's
// current address. Returns the opaque challenge id and the code expiry.
// On delivery failure the pending code is rolled back and ErrDeliveryFailed
// is returned.
func (s *ChallengeService) Issue(ctx context.Context, accountID string, purpose domain.CodePurpose) (challengeID string, expiresAt time.Time, err error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return "", time.Time{}, err
	}
	if account == nil {
		return "", time.Time{}, ErrProfileLookupFailed
	}
	profile, err := s.profileRepo.GetByAccountID(ctx, accountID)
	if err != nil || profile == nil {
		return "", time.Time{}, ErrProfileLookupFailed
	}

	code, err := otp.GenerateCode()
	if err != nil {
		return "", time.Time{}, err
	}
	challengeID = uuid.New().String()
	now := s.nowF()
	expiresAt = now.Add(s.ttl)
	if err := s.profileRepo.SetPendingChallenge(ctx, accountID, challengeID, otp.HashCode(code), purpose, now, expiresAt); err != nil {
		return "", time.Time{}, err
	}

	// The code always goes to the address on record, never to an address
	// supplied with the request.
	if err := s.sender.SendCode(ctx, account.Email, code); err != nil {
		_ = s.profileRepo.ClearPendingChallenge(ctx, accountID)
		s.auditLog.LogEvent(ctx, accountID, "challenge_delivery_failed", "challenge", string(purpose))
		return "", time.Time{}, ErrDeliveryFailed
	}
	if s.devStore != nil {
		s.devStore.Put(ctx, challengeID, code, expiresAt)
	}
	s.auditLog.LogEvent(ctx, accountID, "challenge_issued", "challenge", string(purpose))
	return challengeID, expiresAt, nil
}

// Reissue replaces the outstanding code behind challengeID with a fresh one
// and emails it. The old challenge id stops working; the new one is returned.
func (s *ChallengeService) Reissue(ctx context.Context, challengeID string) (newChallengeID string, expiresAt time.Time, err error) {
	profile, err := s.profileRepo.GetByChallengeID(ctx, challengeID)
	if err != nil {
		return "", time.Time{}, err
	}
	if profile == nil || !profile.HasPendingChallenge() {
		return "", time.Time{}, ErrChallengeRejected
	}
	return s.Issue(ctx, profile.AccountID, profile.CodePurpose)
}

// Verify checks the submitted code against the challenge. On success the
// pending code is consumed and the owning account id is returned. Every
// rejection surfaces as ErrChallengeRejected; expiry, mismatch and
// attempts-exceeded are distinguished only in the audit log.
func (s *ChallengeService) Verify(ctx context.Context, challengeID, code string, purpose domain.CodePurpose) (accountID string, err error) {
	profile, err := s.profileRepo.GetByChallengeID(ctx, challengeID)
	if err != nil {
		return "", err
	}
	if profile == nil || !profile.HasPendingChallenge() || profile.CodePurpose != purpose {
		rejectedID := audit.SentinelAccountID
		if profile != nil {
			rejectedID = profile.AccountID
		}
		s.auditLog.LogEvent(ctx, rejectedID, "challenge_rejected", "challenge", audit.ReasonUnknownChallenge)
		return "", ErrChallengeRejected
	}

	now := s.nowF()
	if profile.CodeExpired(now) {
		_ = s.profileRepo.ClearPendingChallenge(ctx, profile.AccountID)
		s.auditLog.LogEvent(ctx, profile.AccountID, "challenge_rejected", "challenge", audit.ReasonCodeExpired)
		return "", ErrChallengeRejected
	}
	if profile.AttemptCount >= s.maxAttempts {
		_ = s.profileRepo.ClearPendingChallenge(ctx, profile.AccountID)
		s.auditLog.LogEvent(ctx, profile.AccountID, "challenge_rejected", "challenge", audit.ReasonAttemptsExceeded)
		return "", ErrChallengeRejected
	}
	if !otp.CodeEqual(code, profile.CodeHash) {
		attempts, incErr := s.profileRepo.IncrementAttempts(ctx, profile.AccountID)
		if incErr != nil {
			return "", incErr
		}
		if attempts >= s.maxAttempts {
			_ = s.profileRepo.ClearPendingChallenge(ctx, profile.AccountID)
			s.auditLog.LogEvent(ctx, profile.AccountID, "challenge_rejected", "challenge", audit.ReasonAttemptsExceeded)
		} else {
			s.auditLog.LogEvent(ctx, profile.AccountID, "challenge_rejected", "challenge", audit.ReasonCodeMismatch)
		}
		return "", ErrChallengeRejected
	}

	if err := s.profileRepo.ClearPendingChallenge(ctx, profile.AccountID); err != nil {
		return "", err
	}
	s.auditLog.LogEvent(ctx, profile.AccountID, "challenge_verified", "challenge", string(purpose))
	return profile.AccountID, nil
}
