package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	accountdomain "snaplink/backend/internal/account/domain"
	"snaplink/backend/internal/devcode"
	"snaplink/backend/internal/otp"
	"snaplink/backend/internal/twofactor/domain"
)

// memProfileRepo implements ProfileRepo in memory for tests.
type memProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*domain.SecondFactorProfile // by account id
	setErr   error
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: make(map[string]*domain.SecondFactorProfile)}
}

func (m *memProfileRepo) GetByAccountID(ctx context.Context, accountID string) (*domain.SecondFactorProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[accountID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memProfileRepo) GetByChallengeID(ctx context.Context, challengeID string) (*domain.SecondFactorProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.ChallengeID == challengeID && challengeID != "" {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memProfileRepo) SetPendingChallenge(ctx context.Context, accountID, challengeID, codeHash string, purpose domain.CodePurpose, issuedAt, expiresAt time.Time) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[accountID]
	if !ok {
		return errors.New("profile not found")
	}
	p.ChallengeID = challengeID
	p.CodeHash = codeHash
	p.CodePurpose = purpose
	p.CodeIssuedAt = &issuedAt
	p.CodeExpiresAt = &expiresAt
	p.AttemptCount = 0
	return nil
}

func (m *memProfileRepo) ClearPendingChallenge(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[accountID]
	if !ok {
		return nil
	}
	p.ChallengeID = ""
	p.CodeHash = ""
	p.CodePurpose = ""
	p.CodeIssuedAt = nil
	p.CodeExpiresAt = nil
	p.AttemptCount = 0
	return nil
}

func (m *memProfileRepo) IncrementAttempts(ctx context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[accountID]
	if !ok {
		return 0, nil
	}
	p.AttemptCount++
	return p.AttemptCount, nil
}

// memAccountRepo implements AccountRepo in memory for tests.
type memAccountRepo struct {
	accounts map[string]*accountdomain.Account
}

func (m *memAccountRepo) GetByID(ctx context.Context, id string) (*accountdomain.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	return a, nil
}

// fakeSender records sent codes and can be told to fail.
type fakeSender struct {
	sentTo    []string
	sentCodes []string
	err       error
}

func (f *fakeSender) SendCode(ctx context.Context, toEmail, code string) error {
	if f.err != nil {
		return f.err
	}
	f.sentTo = append(f.sentTo, toEmail)
	f.sentCodes = append(f.sentCodes, code)
	return nil
}

// fakeAudit records audit events.
type fakeAudit struct {
	actions  []string
	reasons  []string
	accounts []string
}

func (f *fakeAudit) LogEvent(ctx context.Context, accountID, action, resource, metadata string) {
	f.accounts = append(f.accounts, accountID)
	f.actions = append(f.actions, action)
	f.reasons = append(f.reasons, metadata)
}

func (f *fakeAudit) lastReason() string {
	if len(f.reasons) == 0 {
		return ""
	}
	return f.reasons[len(f.reasons)-1]
}

func newTestService(t *testing.T) (*ChallengeService, *memProfileRepo, *fakeSender, *fakeAudit) {
	t.Helper()
	profiles := newMemProfileRepo()
	profiles.profiles["acc-1"] = &domain.SecondFactorProfile{AccountID: "acc-1", Enabled: true}
	accounts := &memAccountRepo{accounts: map[string]*accountdomain.Account{
		"acc-1": {ID: "acc-1", Email: "user@example.com", Status: accountdomain.AccountStatusActive},
	}}
	sender := &fakeSender{}
	auditLog := &fakeAudit{}
	svc := NewChallengeService(profiles, accounts, sender, nil, auditLog, 10*time.Minute, 5)
	return svc, profiles, sender, auditLog
}

func TestIssue_SendsCodeToCurrentEmail(t *testing.T) {
	svc, profiles, sender, _ := newTestService(t)
	ctx := context.Background()

	challengeID, expiresAt, err := svc.Issue(ctx, "acc-1", domain.CodePurposeLogin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if challengeID == "" {
		t.Fatal("challengeID should be set")
	}
	if len(sender.sentTo) != 1 || sender.sentTo[0] != "user@example.com" {
		t.Errorf("sentTo = %v, want [user@example.com]", sender.sentTo)
	}
	if len(sender.sentCodes) != 1 || len(sender.sentCodes[0]) != 6 {
		t.Errorf("sentCodes = %v, want one 6-digit code", sender.sentCodes)
	}
	if time.Until(expiresAt) > 10*time.Minute || time.Until(expiresAt) < 9*time.Minute {
		t.Errorf("expiresAt = %v, want ~10m from now", expiresAt)
	}

	// Only the hash is stored, never the plain code.
	p := profiles.profiles["acc-1"]
	if p.CodeHash == sender.sentCodes[0] {
		t.Error("plain code must not be stored")
	}
	if p.CodeHash != otp.HashCode(sender.sentCodes[0]) {
		t.Error("stored hash should match the sent code")
	}
	if p.ChallengeID != challengeID {
		t.Errorf("profile ChallengeID = %q, want %q", p.ChallengeID, challengeID)
	}
}

func TestIssue_OverwritesPreviousCode(t *testing.T) {
	svc, _, sender, _ := newTestService(t)
	ctx := context.Background()

	first, _, err := svc.Issue(ctx, "acc-1", domain.CodePurposeLogin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second, _, err := svc.Issue(ctx, "acc-1", domain.CodePurposeLogin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if first == second {
		t.Error("reissue should mint a new challenge id")
	}

	// The first code and challenge id no longer verify.
	if _, err := svc.Verify(ctx, first, sender.sentCodes[0], domain.CodePurposeLogin); !errors.Is(err, ErrChallengeRejected) {
		t.Errorf("old challenge: err = %v, want ErrChallengeRejected", err)
	}
	if _, err := svc.Verify(ctx, second, sender.sentCodes[0], domain.CodePurposeLogin); !errors.Is(err, ErrChallengeRejected) {
		t.Errorf("old code on new challenge: err = %v, want ErrChallengeRejected", err)
	}
	accountID, err := svc.Verify(ctx, second, sender.sentCodes[1], domain.CodePurposeLogin)
	if err != nil {
		t.Fatalf("Verify with fresh code: %v", err)
	}
	if accountID != "acc-1" {
		t.Errorf("accountID = %q, want acc-1", accountID)
	}
}

func TestIssue_DeliveryFailureRollsBack(t *testing.T) {
	svc, profiles, sender, auditLog := newTestService(t)
	sender.err = errors.New("smtp down")

	_, _, err := svc.Issue(context.Background(), "acc-1", domain.CodePurposeLogin)
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("err = %v, want ErrDeliveryFailed", err)
	}
	p := profiles.profiles["acc-1"]
	if p.HasPendingChallenge() {
		t.Error("pending code should have been rolled back")
	}
	if auditLog.actions[len(auditLog.actions)-1] != "challenge_delivery_failed" {
		t.Errorf("last audit action = %q, want challenge_delivery_failed", auditLog.actions[len(auditLog.actions)-1])
	}
}

func TestIssue_NoProfile(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	// Account exists in the repo used by newTestService only as acc-1.
	_, _, err := svc.Issue(context.Background(), "acc-2", domain.CodePurposeLogin)
	if !errors.Is(err, ErrProfileLookupFailed) {
		t.Errorf("err = %v, want ErrProfileLookupFailed", err)
	}
}

func TestVerify_Success(t *testing.T) {
	svc, profiles, sender, auditLog := newTestService(t)
	ctx := context.Background()

	challengeID, _, err := svc.Issue(ctx, "acc-1", domain.CodePurposeLogin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	accountID, err := svc.Verify(ctx, challengeID, sender.sentCodes[0], domain.CodePurposeLogin)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if accountID != "acc-1" {
		t.Errorf("accountID = %q, want acc-1", accountID)
	}
	// The code is consumed: a second verify fails.
	if _, err := svc.Verify(ctx, challengeID, sender.sentCodes[0], domain.CodePurposeLogin); !errors.Is(err, ErrChallengeRejected) {
		t.Errorf("replay: err = %v, want ErrChallengeRejected", err)
	}
	if !profilesCleared(profiles, "acc-1") {
		t.Error("pending challenge should be cleared after success")
	}
	if auditLog.actions[len(auditLog.actions)-2] != "challenge_verified" {
		t.Errorf("audit actions = %v, want challenge_verified before replay rejection", auditLog.actions)
	}
	// The replay is recorded with its precise reason; the caller only ever
	// sees the uniform rejection.
	if auditLog.lastReason() != "unknown_challenge" {
		t.Errorf("audit reason = %q, want unknown_challenge", auditLog.lastReason())
	}
}

func TestVerify_UnknownChallengeAudited(t *testing.T) {
	svc, _, _, auditLog := newTestService(t)

	_, err := svc.Verify(context.Background(), "no-such-challenge", "123456", domain.CodePurposeLogin)
	if !errors.Is(err, ErrChallengeRejected) {
		t.Fatalf("err = %v, want ErrChallengeRejected", err)
	}
	if auditLog.lastReason() != "unknown_challenge" {
		t.Errorf("audit reason = %q, want unknown_challenge", auditLog.lastReason())
	}
	if auditLog.accounts[len(auditLog.accounts)-1] != "_unknown" {
		t.Errorf("audit account = %q, want the sentinel for an unresolved challenge", auditLog.accounts[len(auditLog.accounts)-1])
	}
}

func profilesCleared(m *memProfileRepo, accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.profiles[accountID].HasPendingChallenge()
}

func TestVerify_WrongCode(t *testing.T) {
	svc, _, _, auditLog := newTestService(t)
	ctx := context.Background()

	challengeID, _, err := svc.Issue(ctx, "acc-1", domain.CodePurposeLogin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = svc.Verify(ctx, challengeID, "000000", domain.CodePurposeLogin)
	if !errors.Is(err, ErrChallengeRejected) {
		t.Fatalf("err = %v, want ErrChallengeRejected", err)
	}
	if auditLog.lastReason() != "code_mismatch" {
		t.Errorf("audit reason = %q, want code_mismatch", auditLog.lastReason())
	}
}

func TestVerify_ExpiredCode(t *testing.T) {
	svc, profiles, sender, auditLog := newTestService(t)
	ctx := context.Background()

	challengeID, _, err := svc.Issue(ctx, "acc-1", domain.CodePurposeLogin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// Jump past the expiry window.
	svc.nowF = func() time.Time { return time.Now().UTC().Add(11 * time.Minute) }

	_, err = svc.Verify(ctx, challengeID, sender.sentCodes[0], domain.CodePurposeLogin)
	if !errors.Is(err, ErrChallengeRejected) {
		t.Fatalf("err = %v, want ErrChallengeRejected", err)
	}
	if auditLog.lastReason() != "code_expired" {
		t.Errorf("audit reason = %q, want code_expired", auditLog.lastReason())
	}
	if !profilesCleared(profiles, "acc-1") {
		t.Error("expired challenge should be cleared")
	}
}

func TestVerify_AttemptsExceeded(t *testing.T) {
	svc, _, sender, auditLog := newTestService(t)
	ctx := context.Background()

	challengeID, _, err := svc.Issue(ctx, "acc-1", domain.CodePurposeLogin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := svc.Verify(ctx, challengeID, "000000", domain.CodePurposeLogin); !errors.Is(err, ErrChallengeRejected) {
			t.Fatalf("attempt %d: err = %v, want ErrChallengeRejected", i+1, err)
		}
	}
	if auditLog.lastReason() != "attempts_exceeded" {
		t.Errorf("audit reason = %q, want attempts_exceeded", auditLog.lastReason())
	}
	// Even the correct code no longer works.
	if _, err := svc.Verify(ctx, challengeID, sender.sentCodes[0], domain.CodePurposeLogin); !errors.Is(err, ErrChallengeRejected) {
		t.Errorf("correct code after lockout: err = %v, want ErrChallengeRejected", err)
	}
}

func TestVerify_UniformRejection(t *testing.T) {
	svc, _, sender, _ := newTestService(t)
	ctx := context.Background()

	challengeID, _, err := svc.Issue(ctx, "acc-1", domain.CodePurposeLogin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Unknown challenge, wrong code and expired code all yield the same error value.
	_, unknownErr := svc.Verify(ctx, "no-such-challenge", "123456", domain.CodePurposeLogin)
	_, mismatchErr := svc.Verify(ctx, challengeID, "000000", domain.CodePurposeLogin)
	svc.nowF = func() time.Time { return time.Now().UTC().Add(11 * time.Minute) }
	_, expiredErr := svc.Verify(ctx, challengeID, sender.sentCodes[0], domain.CodePurposeLogin)

	for name, err := range map[string]error{"unknown": unknownErr, "mismatch": mismatchErr, "expired": expiredErr} {
		if !errors.Is(err, ErrChallengeRejected) {
			t.Errorf("%s: err = %v, want ErrChallengeRejected", name, err)
		}
		if err.Error() != ErrChallengeRejected.Error() {
			t.Errorf("%s: message = %q, want uniform %q", name, err.Error(), ErrChallengeRejected.Error())
		}
	}
}

func TestVerify_PurposeMismatch(t *testing.T) {
	svc, _, sender, _ := newTestService(t)
	ctx := context.Background()

	challengeID, _, err := svc.Issue(ctx, "acc-1", domain.CodePurposeLogin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// A login code must not confirm an email change.
	if _, err := svc.Verify(ctx, challengeID, sender.sentCodes[0], domain.CodePurposeEmailChange); !errors.Is(err, ErrChallengeRejected) {
		t.Errorf("err = %v, want ErrChallengeRejected", err)
	}
}

func TestReissue_MintsNewChallenge(t *testing.T) {
	svc, _, sender, _ := newTestService(t)
	ctx := context.Background()

	first, _, err := svc.Issue(ctx, "acc-1", domain.CodePurposeEmailChange)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second, _, err := svc.Reissue(ctx, first)
	if err != nil {
		t.Fatalf("Reissue: %v", err)
	}
	if second == first {
		t.Error("Reissue should mint a new challenge id")
	}
	// Purpose carries over.
	accountID, err := svc.Verify(ctx, second, sender.sentCodes[1], domain.CodePurposeEmailChange)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if accountID != "acc-1" {
		t.Errorf("accountID = %q, want acc-1", accountID)
	}
}

func TestReissue_UnknownChallenge(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	if _, _, err := svc.Reissue(context.Background(), "no-such-challenge"); !errors.Is(err, ErrChallengeRejected) {
		t.Errorf("err = %v, want ErrChallengeRejected", err)
	}
}

func TestIssue_DevStoreReceivesCode(t *testing.T) {
	profiles := newMemProfileRepo()
	profiles.profiles["acc-1"] = &domain.SecondFactorProfile{AccountID: "acc-1", Enabled: true}
	accounts := &memAccountRepo{accounts: map[string]*accountdomain.Account{
		"acc-1": {ID: "acc-1", Email: "user@example.com", Status: accountdomain.AccountStatusActive},
	}}
	sender := &fakeSender{}
	store := devcode.NewMemoryStore()
	svc := NewChallengeService(profiles, accounts, sender, store, &fakeAudit{}, 10*time.Minute, 5)

	challengeID, _, err := svc.Issue(context.Background(), "acc-1", domain.CodePurposeLogin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	code, ok := store.Get(context.Background(), challengeID)
	if !ok {
		t.Fatal("dev store should hold the code")
	}
	if code != sender.sentCodes[0] {
		t.Errorf("dev store code = %q, want %q", code, sender.sentCodes[0])
	}
}
