package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	accountdomain "snaplink/backend/internal/account/domain"
	emailchangedomain "snaplink/backend/internal/emailchange/domain"
	twofactordomain "snaplink/backend/internal/twofactor/domain"
	twofactorservice "snaplink/backend/internal/twofactor/service"
)

// memAccountRepo implements AccountRepo in memory for tests.
type memAccountRepo struct {
	mu   sync.Mutex
	byID map[string]*accountdomain.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{byID: make(map[string]*accountdomain.Account)}
}

func (m *memAccountRepo) GetByID(ctx context.Context, id string) (*accountdomain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *memAccountRepo) GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memAccountRepo) UpdateEmail(ctx context.Context, accountID, newEmail string, changedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[accountID]
	if !ok {
		return errors.New("account not found")
	}
	a.Email = newEmail
	a.EmailChangedAt = &changedAt
	a.UpdatedAt = changedAt
	return nil
}

// memChangeRepo implements ChangeRepo in memory for tests.
type memChangeRepo struct {
	mu      sync.Mutex
	changes map[string]*emailchangedomain.PendingEmailChange
}

func newMemChangeRepo() *memChangeRepo {
	return &memChangeRepo{changes: make(map[string]*emailchangedomain.PendingEmailChange)}
}

func (m *memChangeRepo) GetActiveByAccount(ctx context.Context, accountID string) (*emailchangedomain.PendingEmailChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.changes {
		if c.AccountID == accountID && c.State == emailchangedomain.StateAwaitingCode {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memChangeRepo) Create(ctx context.Context, c *emailchangedomain.PendingEmailChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Mirror the partial unique index: one awaiting_code row per account.
	for _, existing := range m.changes {
		if existing.AccountID == c.AccountID && existing.State == emailchangedomain.StateAwaitingCode {
			return errors.New("duplicate active change for account")
		}
	}
	cp := *c
	m.changes[c.ID] = &cp
	return nil
}

func (m *memChangeRepo) UpdateState(ctx context.Context, id string, state emailchangedomain.ChangeState, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.changes[id]; ok {
		c.State = state
		c.UpdatedAt = at
	}
	return nil
}

func (m *memChangeRepo) UpdateChallengeID(ctx context.Context, id, challengeID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.changes[id]; ok {
		c.ChallengeID = challengeID
		c.UpdatedAt = at
	}
	return nil
}

func (m *memChangeRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.changes, id)
	return nil
}

// memProfileRepo implements ProfileRepo in memory for tests.
type memProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*twofactordomain.SecondFactorProfile
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: make(map[string]*twofactordomain.SecondFactorProfile)}
}

func (m *memProfileRepo) GetByAccountID(ctx context.Context, accountID string) (*twofactordomain.SecondFactorProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[accountID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memProfileRepo) SetEnabled(ctx context.Context, accountID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[accountID]; ok {
		p.Enabled = enabled
	}
	return nil
}

func (m *memProfileRepo) ClearPendingChallenge(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[accountID]; ok {
		p.ChallengeID = ""
		p.CodeHash = ""
		p.CodePurpose = ""
		p.CodeIssuedAt = nil
		p.CodeExpiresAt = nil
		p.AttemptCount = 0
	}
	return nil
}

// fakeChallenges implements Challenges for tests.
type fakeChallenges struct {
	issued     int
	issueErr   error
	verifyAcct string
	verifyErr  error
}

func (f *fakeChallenges) Issue(ctx context.Context, accountID string, purpose twofactordomain.CodePurpose) (string, time.Time, error) {
	if f.issueErr != nil {
		return "", time.Time{}, f.issueErr
	}
	f.issued++
	// Every issue mints a distinct id, as the real service does.
	return fmt.Sprintf("chal-%s-%d", accountID, f.issued), time.Now().UTC().Add(10 * time.Minute), nil
}

func (f *fakeChallenges) Verify(ctx context.Context, challengeID, code string, purpose twofactordomain.CodePurpose) (string, error) {
	if f.verifyErr != nil {
		return "", f.verifyErr
	}
	return f.verifyAcct, nil
}

// nopAudit discards audit events.
type nopAudit struct{}

func (nopAudit) LogEvent(ctx context.Context, accountID, action, resource, metadata string) {}

type accountFixture struct {
	svc        *AccountService
	accounts   *memAccountRepo
	changes    *memChangeRepo
	profiles   *memProfileRepo
	challenges *fakeChallenges
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	f := &accountFixture{
		accounts:   newMemAccountRepo(),
		changes:    newMemChangeRepo(),
		profiles:   newMemProfileRepo(),
		challenges: &fakeChallenges{},
	}
	now := time.Now().UTC()
	f.accounts.byID["acc-1"] = &accountdomain.Account{
		ID:        "acc-1",
		Email:     "old@example.com",
		Name:      "Test User",
		Status:    accountdomain.AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.profiles.profiles["acc-1"] = &twofactordomain.SecondFactorProfile{AccountID: "acc-1", Enabled: false, UpdatedAt: now}
	f.svc = NewAccountService(f.accounts, f.changes, f.profiles, f.challenges, nopAudit{}, 14*24*time.Hour)
	return f
}

func TestRequestEmailChange_IssuesChallenge(t *testing.T) {
	f := newAccountFixture(t)

	challengeID, _, err := f.svc.RequestEmailChange(context.Background(), "acc-1", "new@example.com")
	if err != nil {
		t.Fatalf("RequestEmailChange: %v", err)
	}
	if challengeID == "" {
		t.Fatal("challengeID should be set")
	}
	// The email stays unchanged until the code is confirmed.
	a, _ := f.accounts.GetByID(context.Background(), "acc-1")
	if a.Email != "old@example.com" {
		t.Errorf("Email = %q, want old@example.com before confirmation", a.Email)
	}
	change, _ := f.changes.GetActiveByAccount(context.Background(), "acc-1")
	if change == nil {
		t.Fatal("pending change should exist")
	}
	if change.State != emailchangedomain.StateAwaitingCode {
		t.Errorf("State = %q, want awaiting_code", change.State)
	}
	if change.NewEmail != "new@example.com" {
		t.Errorf("NewEmail = %q, want new@example.com", change.NewEmail)
	}
}

func TestRequestEmailChange_SameEmail(t *testing.T) {
	f := newAccountFixture(t)
	_, _, err := f.svc.RequestEmailChange(context.Background(), "acc-1", "old@example.com")
	if !errors.Is(err, ErrEmailUnchanged) {
		t.Errorf("err = %v, want ErrEmailUnchanged", err)
	}
}

func TestRequestEmailChange_EmailTaken(t *testing.T) {
	f := newAccountFixture(t)
	f.accounts.byID["acc-2"] = &accountdomain.Account{ID: "acc-2", Email: "new@example.com", Status: accountdomain.AccountStatusActive}

	_, _, err := f.svc.RequestEmailChange(context.Background(), "acc-1", "new@example.com")
	if !errors.Is(err, ErrEmailInUse) {
		t.Errorf("err = %v, want ErrEmailInUse", err)
	}
}

func TestRequestEmailChange_Cooldown(t *testing.T) {
	f := newAccountFixture(t)
	recent := time.Now().UTC().Add(-24 * time.Hour)
	f.accounts.byID["acc-1"].EmailChangedAt = &recent

	_, _, err := f.svc.RequestEmailChange(context.Background(), "acc-1", "new@example.com")
	if !errors.Is(err, ErrChangeCooldown) {
		t.Errorf("err = %v, want ErrChangeCooldown", err)
	}

	// After the window passes the change is allowed again.
	old := time.Now().UTC().Add(-15 * 24 * time.Hour)
	f.accounts.byID["acc-1"].EmailChangedAt = &old
	if _, _, err := f.svc.RequestEmailChange(context.Background(), "acc-1", "new@example.com"); err != nil {
		t.Errorf("RequestEmailChange after cooldown: %v", err)
	}
}

func TestRequestEmailChange_SupersedesPrevious(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	first, _, err := f.svc.RequestEmailChange(ctx, "acc-1", "first@example.com")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, _, err := f.svc.RequestEmailChange(ctx, "acc-1", "second@example.com")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if first == second {
		t.Error("each request should mint a fresh challenge")
	}
	change, _ := f.changes.GetActiveByAccount(ctx, "acc-1")
	if change == nil || change.NewEmail != "second@example.com" {
		t.Errorf("active change = %+v, want second@example.com", change)
	}
	if f.challenges.issued != 2 {
		t.Errorf("issued = %d, want 2", f.challenges.issued)
	}
}

func TestRequestEmailChange_DeliveryFailure(t *testing.T) {
	f := newAccountFixture(t)
	f.challenges.issueErr = twofactorservice.ErrDeliveryFailed

	_, _, err := f.svc.RequestEmailChange(context.Background(), "acc-1", "new@example.com")
	if !errors.Is(err, twofactorservice.ErrDeliveryFailed) {
		t.Fatalf("err = %v, want ErrDeliveryFailed", err)
	}
	change, _ := f.changes.GetActiveByAccount(context.Background(), "acc-1")
	if change != nil {
		t.Error("no pending change should exist after delivery failure")
	}
}

func TestConfirmEmailChange_CommitsSwap(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	challengeID, _, err := f.svc.RequestEmailChange(ctx, "acc-1", "new@example.com")
	if err != nil {
		t.Fatalf("RequestEmailChange: %v", err)
	}
	f.challenges.verifyAcct = "acc-1"

	account, err := f.svc.ConfirmEmailChange(ctx, "acc-1", challengeID, "482913")
	if err != nil {
		t.Fatalf("ConfirmEmailChange: %v", err)
	}
	if account.Email != "new@example.com" {
		t.Errorf("Email = %q, want new@example.com", account.Email)
	}
	if account.EmailChangedAt == nil {
		t.Error("EmailChangedAt should be set, starting the cooldown")
	}
	// The change reached its terminal state.
	if active, _ := f.changes.GetActiveByAccount(ctx, "acc-1"); active != nil {
		t.Error("no change should remain active after commit")
	}
}

func TestConfirmEmailChange_RejectedCode(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	challengeID, _, err := f.svc.RequestEmailChange(ctx, "acc-1", "new@example.com")
	if err != nil {
		t.Fatalf("RequestEmailChange: %v", err)
	}
	f.challenges.verifyErr = twofactorservice.ErrChallengeRejected

	_, err = f.svc.ConfirmEmailChange(ctx, "acc-1", challengeID, "000000")
	if !errors.Is(err, twofactorservice.ErrChallengeRejected) {
		t.Fatalf("err = %v, want ErrChallengeRejected", err)
	}
	// Rejection leaves the swap untouched and the change still pending.
	a, _ := f.accounts.GetByID(ctx, "acc-1")
	if a.Email != "old@example.com" {
		t.Errorf("Email = %q, want old@example.com", a.Email)
	}
	if active, _ := f.changes.GetActiveByAccount(ctx, "acc-1"); active == nil {
		t.Error("change should remain awaiting_code after a rejected attempt")
	}
}

func TestConfirmEmailChange_WrongOwner(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	f.accounts.byID["acc-2"] = &accountdomain.Account{ID: "acc-2", Email: "other@example.com", Status: accountdomain.AccountStatusActive}

	challengeID, _, err := f.svc.RequestEmailChange(ctx, "acc-1", "new@example.com")
	if err != nil {
		t.Fatalf("RequestEmailChange: %v", err)
	}
	// The code checks out, but it was issued to somebody else.
	f.challenges.verifyAcct = "acc-1"

	_, err = f.svc.ConfirmEmailChange(ctx, "acc-2", challengeID, "482913")
	if !errors.Is(err, twofactorservice.ErrChallengeRejected) {
		t.Fatalf("err = %v, want ErrChallengeRejected", err)
	}
	// Nothing was committed for either account.
	a1, _ := f.accounts.GetByID(ctx, "acc-1")
	if a1.Email != "old@example.com" {
		t.Errorf("acc-1 email = %q, want old@example.com", a1.Email)
	}
	a2, _ := f.accounts.GetByID(ctx, "acc-2")
	if a2.Email != "other@example.com" {
		t.Errorf("acc-2 email = %q, want other@example.com", a2.Email)
	}
}

func TestCancelEmailChange_Abandons(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	if _, _, err := f.svc.RequestEmailChange(ctx, "acc-1", "new@example.com"); err != nil {
		t.Fatalf("RequestEmailChange: %v", err)
	}
	if err := f.svc.CancelEmailChange(ctx, "acc-1"); err != nil {
		t.Fatalf("CancelEmailChange: %v", err)
	}
	if active, _ := f.changes.GetActiveByAccount(ctx, "acc-1"); active != nil {
		t.Error("change should be abandoned")
	}
	// Cancelling twice reports no pending change.
	if err := f.svc.CancelEmailChange(ctx, "acc-1"); !errors.Is(err, ErrNoPendingChange) {
		t.Errorf("err = %v, want ErrNoPendingChange", err)
	}
}

func TestRequestEmailChange_AfterCancel(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	if _, _, err := f.svc.RequestEmailChange(ctx, "acc-1", "new@example.com"); err != nil {
		t.Fatalf("RequestEmailChange: %v", err)
	}
	if err := f.svc.CancelEmailChange(ctx, "acc-1"); err != nil {
		t.Fatalf("CancelEmailChange: %v", err)
	}
	// The abandoned row lingers for the cleanup worker; it must not block
	// a fresh request.
	if _, _, err := f.svc.RequestEmailChange(ctx, "acc-1", "another@example.com"); err != nil {
		t.Fatalf("RequestEmailChange after cancel: %v", err)
	}
	change, _ := f.changes.GetActiveByAccount(ctx, "acc-1")
	if change == nil || change.NewEmail != "another@example.com" {
		t.Errorf("active change = %+v, want another@example.com", change)
	}
}

func TestRequestEmailChange_AfterCommittedChange(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	challengeID, _, err := f.svc.RequestEmailChange(ctx, "acc-1", "new@example.com")
	if err != nil {
		t.Fatalf("RequestEmailChange: %v", err)
	}
	f.challenges.verifyAcct = "acc-1"
	if _, err := f.svc.ConfirmEmailChange(ctx, "acc-1", challengeID, "482913"); err != nil {
		t.Fatalf("ConfirmEmailChange: %v", err)
	}

	// Once the cooldown has passed, the committed row from the previous
	// change must not block the next one.
	old := time.Now().UTC().Add(-15 * 24 * time.Hour)
	f.accounts.byID["acc-1"].EmailChangedAt = &old

	if _, _, err := f.svc.RequestEmailChange(ctx, "acc-1", "third@example.com"); err != nil {
		t.Fatalf("RequestEmailChange after committed change: %v", err)
	}
}

func TestResendEmailChangeCode(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	first, _, err := f.svc.RequestEmailChange(ctx, "acc-1", "new@example.com")
	if err != nil {
		t.Fatalf("RequestEmailChange: %v", err)
	}
	second, _, err := f.svc.ResendEmailChangeCode(ctx, "acc-1")
	if err != nil {
		t.Fatalf("ResendEmailChangeCode: %v", err)
	}
	if second == first {
		t.Error("resend should mint a new challenge id")
	}

	// A second resend must work too: each resend overwrites the profile's
	// outstanding code, so the service cannot rely on the id it stored at
	// request time.
	third, _, err := f.svc.ResendEmailChangeCode(ctx, "acc-1")
	if err != nil {
		t.Fatalf("second ResendEmailChangeCode: %v", err)
	}
	if third == second || third == first {
		t.Errorf("third = %q, want a fresh id (first %q, second %q)", third, first, second)
	}
	// The change row follows the live challenge.
	change, _ := f.changes.GetActiveByAccount(ctx, "acc-1")
	if change == nil || change.ChallengeID != third {
		t.Errorf("change.ChallengeID = %+v, want %q", change, third)
	}
}

func TestResendEmailChangeCode_NoPending(t *testing.T) {
	f := newAccountFixture(t)
	_, _, err := f.svc.ResendEmailChangeCode(context.Background(), "acc-1")
	if !errors.Is(err, ErrNoPendingChange) {
		t.Errorf("err = %v, want ErrNoPendingChange", err)
	}
}

func TestSetSecondFactor_EnableDisable(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	if err := f.svc.SetSecondFactor(ctx, "acc-1", true); err != nil {
		t.Fatalf("SetSecondFactor(true): %v", err)
	}
	enabled, err := f.svc.GetSecondFactor(ctx, "acc-1")
	if err != nil || !enabled {
		t.Fatalf("GetSecondFactor = (%v, %v), want (true, nil)", enabled, err)
	}

	// Disabling discards any outstanding sign-in code.
	now := time.Now().UTC()
	expires := now.Add(10 * time.Minute)
	f.profiles.profiles["acc-1"].ChallengeID = "chal-1"
	f.profiles.profiles["acc-1"].CodeHash = "deadbeef"
	f.profiles.profiles["acc-1"].CodeExpiresAt = &expires

	if err := f.svc.SetSecondFactor(ctx, "acc-1", false); err != nil {
		t.Fatalf("SetSecondFactor(false): %v", err)
	}
	p := f.profiles.profiles["acc-1"]
	if p.Enabled {
		t.Error("profile should be disabled")
	}
	if p.HasPendingChallenge() {
		t.Error("pending challenge should be cleared when disabling")
	}
}

func TestSetSecondFactor_UnknownAccount(t *testing.T) {
	f := newAccountFixture(t)
	if err := f.svc.SetSecondFactor(context.Background(), "ghost", true); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestGet_UnknownAccount(t *testing.T) {
	f := newAccountFixture(t)
	if _, err := f.svc.Get(context.Background(), "ghost"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("err = %v, want ErrAccountNotFound", err)
	}
}
