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
	identitydomain "snaplink/backend/internal/identity/domain"
	"snaplink/backend/internal/policy/engine"
	"snaplink/backend/internal/security"
	"snaplink/backend/internal/server/middleware"
	sessiondomain "snaplink/backend/internal/session/domain"
	twofactordomain "snaplink/backend/internal/twofactor/domain"
	twofactorservice "snaplink/backend/internal/twofactor/service"
)

// Sentinel errors for the auth service; handlers map them to HTTP codes.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidRefreshToken    = errors.New("invalid or expired refresh token")
	ErrRefreshTokenReuse      = errors.New("refresh token reuse detected; all sessions revoked")
)

// AuthResult holds issued tokens after a completed sign-in or refresh.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	AccountID    string
}

// LoginResult is the outcome of Login: either tokens right away, or a
// challenge id the caller must verify first.
type LoginResult struct {
	StepUpRequired     bool
	ChallengeID        string
	ChallengeExpiresAt time.Time
	Auth               *AuthResult
}

// AccountRepo is the minimal account repository needed by the auth service.
type AccountRepo interface {
	GetByID(ctx context.Context, id string) (*accountdomain.Account, error)
	GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error)
	Create(ctx context.Context, a *accountdomain.Account) error
}

// IdentityRepo is the minimal identity repository needed by the auth service.
type IdentityRepo interface {
	GetByAccountAndProvider(ctx context.Context, accountID string, provider identitydomain.IdentityProvider) (*identitydomain.Identity, error)
	Create(ctx context.Context, i *identitydomain.Identity) error
}

// SessionRepo is the minimal session repository needed by the auth service.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	Create(ctx context.Context, s *sessiondomain.Session) error
	Revoke(ctx context.Context, id string) error
	RevokeAllByAccount(ctx context.Context, accountID string) error
	UpdateRefreshToken(ctx context.Context, sessionID, jti, refreshTokenHash string) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
}

// ProfileRepo is the minimal second-factor profile repository needed by the auth service.
type ProfileRepo interface {
	GetByAccountID(ctx context.Context, accountID string) (*twofactordomain.SecondFactorProfile, error)
	Create(ctx context.Context, p *twofactordomain.SecondFactorProfile) error
}

// Challenges is the subset of the challenge service used during sign-in.
type Challenges interface {
	Issue(ctx context.Context, accountID string, purpose twofactordomain.CodePurpose) (challengeID string, expiresAt time.Time, err error)
	Reissue(ctx context.Context, challengeID string) (newChallengeID string, expiresAt time.Time, err error)
	Verify(ctx context.Context, challengeID, code string, purpose twofactordomain.CodePurpose) (accountID string, err error)
}

// AuthService implements password register, step-up login, refresh, and logout.
type AuthService struct {
	accountRepo  AccountRepo
	identityRepo IdentityRepo
	sessionRepo  SessionRepo
	profileRepo  ProfileRepo
	challenges   Challenges
	evaluator    engine.Evaluator
	auditLog     audit.AuditLogger
	hasher       *security.Hasher
	tokens       *security.TokenProvider
	refreshTTL   time.Duration
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	accountRepo AccountRepo,
	identityRepo IdentityRepo,
	sessionRepo SessionRepo,
	profileRepo ProfileRepo,
	challenges Challenges,
	evaluator engine.Evaluator,
	auditLog audit.AuditLogger,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	refreshTTL time.Duration,
) *AuthService {
	return &AuthService{
		accountRepo:  accountRepo,
		identityRepo: identityRepo,
		sessionRepo:  sessionRepo,
		profileRepo:  profileRepo,
		challenges:   challenges,
		evaluator:    evaluator,
		auditLog:     auditLog,
		hasher:       hasher,
		tokens:       tokens,
		refreshTTL:   refreshTTL,
	}
}

// Register creates an account, a local identity, and a second-factor profile
// (disabled) for the given email and password. Returns the new account id.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return "", err
	}
	if err := validatePassword(password); err != nil {
		return "", err
	}
	existing, err := s.accountRepo.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", ErrEmailAlreadyRegistered
	}
	accountID := uuid.New().String()
	now := time.Now().UTC()
	account := &accountdomain.Account{
		ID:        accountID,
		Email:     email,
		Name:      strings.TrimSpace(name),
		Status:    accountdomain.AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := account.Validate(); err != nil {
		return "", err
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return "", err
	}
	identity := &identitydomain.Identity{
		ID:           uuid.New().String(),
		AccountID:    accountID,
		Provider:     identitydomain.IdentityProviderLocal,
		ProviderID:   email,
		PasswordHash: hashed,
		CreatedAt:    now,
	}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		return "", err
	}
	if err := s.identityRepo.Create(ctx, identity); err != nil {
		return "", err
	}
	profile := &twofactordomain.SecondFactorProfile{
		AccountID: accountID,
		Enabled:   false,
		UpdatedAt: now,
	}
	if err := s.profileRepo.Create(ctx, profile); err != nil {
		return "", err
	}
	s.auditLog.LogEvent(ctx, accountID, "account_registered", "account", "")
	return accountID, nil
}

// Login authenticates with email/password. When step-up policy requires a
// second factor, a code is emailed to the account's address and the returned
// LoginResult carries the challenge id instead of tokens.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	account, err := s.accountRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account == nil || account.Status != accountdomain.AccountStatusActive {
		s.auditLog.LogEvent(ctx, "", "login_failure", "auth", "unknown or inactive account")
		return nil, ErrInvalidCredentials
	}
	ident, err := s.identityRepo.GetByAccountAndProvider(ctx, account.ID, identitydomain.IdentityProviderLocal)
	if err != nil {
		return nil, err
	}
	if ident == nil || ident.PasswordHash == "" {
		s.auditLog.LogEvent(ctx, account.ID, "login_failure", "auth", "no local identity")
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(ident.PasswordHash, []byte(password)); err != nil {
		s.auditLog.LogEvent(ctx, account.ID, "login_failure", "auth", "password mismatch")
		return nil, ErrInvalidCredentials
	}

	profile, err := s.profileRepo.GetByAccountID(ctx, account.ID)
	if err != nil || profile == nil {
		return nil, twofactorservice.ErrProfileLookupFailed
	}
	decision, err := s.evaluator.EvaluateStepUp(ctx, account, profile, twofactordomain.CodePurposeLogin)
	if err != nil {
		return nil, err
	}
	if !decision.StepUpRequired {
		auth, err := s.createSession(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		s.auditLog.LogEvent(ctx, account.ID, "login_success", "auth", "")
		return &LoginResult{Auth: auth}, nil
	}

	challengeID, expiresAt, err := s.challenges.Issue(ctx, account.ID, twofactordomain.CodePurposeLogin)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		StepUpRequired:     true,
		ChallengeID:        challengeID,
		ChallengeExpiresAt: expiresAt,
	}, nil
}

// VerifyLogin completes a step-up sign-in: the submitted code is checked
// against the challenge and, on success, a session is created.
func (s *AuthService) VerifyLogin(ctx context.Context, challengeID, code string) (*AuthResult, error) {
	accountID, err := s.challenges.Verify(ctx, challengeID, code, twofactordomain.CodePurposeLogin)
	if err != nil {
		return nil, err
	}
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil || account.Status != accountdomain.AccountStatusActive {
		return nil, ErrInvalidCredentials
	}
	auth, err := s.createSession(ctx, accountID)
	if err != nil {
		return nil, err
	}
	s.auditLog.LogEvent(ctx, accountID, "login_success", "auth", "step_up")
	return auth, nil
}

// ResendLoginCode replaces the outstanding sign-in code with a fresh one.
// The previous challenge id stops working.
func (s *AuthService) ResendLoginCode(ctx context.Context, challengeID string) (newChallengeID string, expiresAt time.Time, err error) {
	return s.challenges.Reissue(ctx, challengeID)
}

// Refresh validates the refresh token, rotates it, and returns new tokens.
// Presenting a stale token for a live session revokes every session of the
// account and returns ErrRefreshTokenReuse.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	sessionID, jti, accountID, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.RevokedAt != nil {
		return nil, ErrInvalidRefreshToken
	}
	if sess.RefreshJti != jti {
		_ = s.sessionRepo.RevokeAllByAccount(ctx, accountID)
		s.auditLog.LogEvent(ctx, accountID, "refresh_token_reuse", "session", "")
		return nil, ErrRefreshTokenReuse
	}
	if sess.RefreshTokenHash != "" && !security.RefreshTokenHashEqual(refreshToken, sess.RefreshTokenHash) {
		return nil, ErrInvalidRefreshToken
	}
	now := time.Now().UTC()
	_ = s.sessionRepo.UpdateLastSeen(ctx, sessionID, now)
	newRefresh, newJti, _, err := s.tokens.IssueRefresh(sessionID, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.UpdateRefreshToken(ctx, sessionID, newJti, security.HashRefreshToken(newRefresh)); err != nil {
		return nil, err
	}
	accessToken, _, accessExp, err := s.tokens.IssueAccess(sessionID, accountID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    accessExp,
		AccountID:    accountID,
	}, nil
}

// Logout revokes the session identified by the refresh token or by the access
// token in context. If refreshToken is non-empty, validates it and revokes
// that session. Otherwise revokes the session set in context by the auth
// middleware, or no-ops.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		sessionID, _, accountID, err := s.tokens.ValidateRefresh(refreshToken)
		if err != nil {
			return nil
		}
		s.auditLog.LogEvent(ctx, accountID, "logout", "session", "")
		return s.sessionRepo.Revoke(ctx, sessionID)
	}
	sessionID, ok := middleware.GetSessionID(ctx)
	if !ok {
		return nil
	}
	if accountID, ok := middleware.GetAccountID(ctx); ok {
		s.auditLog.LogEvent(ctx, accountID, "logout", "session", "")
	}
	return s.sessionRepo.Revoke(ctx, sessionID)
}

func (s *AuthService) createSession(ctx context.Context, accountID string) (*AuthResult, error) {
	sessionID := uuid.New().String()
	now := time.Now().UTC()
	refreshToken, jti, _, err := s.tokens.IssueRefresh(sessionID, accountID)
	if err != nil {
		return nil, err
	}
	accessToken, _, accessExp, err := s.tokens.IssueAccess(sessionID, accountID)
	if err != nil {
		return nil, err
	}
	sess := &sessiondomain.Session{
		ID:               sessionID,
		AccountID:        accountID,
		ExpiresAt:        now.Add(s.refreshTTL),
		RefreshJti:       jti,
		RefreshTokenHash: security.HashRefreshToken(refreshToken),
		CreatedAt:        now,
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExp,
		AccountID:    accountID,
	}, nil
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

func validatePassword(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return errors.New("password must contain at least one number")
	}
	if !hasSymbol {
		return errors.New("password must contain at least one symbol")
	}
	return nil
}
