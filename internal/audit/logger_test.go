package audit

import (
	"context"
	"errors"
	"testing"

	"snaplink/backend/internal/audit/domain"
)

// mockAuditRepo implements audit repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	return nil, nil
}

func (m *mockAuditRepo) ListByAccount(ctx context.Context, accountID string, limit, offset int32) ([]*domain.AuditLog, error) {
	return nil, nil
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	ipExtractor := func(ctx context.Context) string {
		return "192.168.1.1"
	}
	logger := NewLogger(repo, ipExtractor, nil)

	logger.LogEvent(context.Background(), "acc-1", "challenge_rejected", "challenge", ReasonCodeMismatch)

	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.AccountID != "acc-1" {
		t.Errorf("AccountID = %q, want %q", entry.AccountID, "acc-1")
	}
	if entry.Action != "challenge_rejected" {
		t.Errorf("Action = %q, want %q", entry.Action, "challenge_rejected")
	}
	if entry.Metadata != ReasonCodeMismatch {
		t.Errorf("Metadata = %q, want %q", entry.Metadata, ReasonCodeMismatch)
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("IP = %q, want %q", entry.IP, "192.168.1.1")
	}
	if entry.ID == "" {
		t.Error("ID should be set")
	}
}

func TestLogger_LogEvent_EmptyAccountUsesSentinel(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil, nil)

	logger.LogEvent(context.Background(), "", "login_failure", "auth", "")

	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
	if repo.entries[0].AccountID != SentinelAccountID {
		t.Errorf("AccountID = %q, want %q", repo.entries[0].AccountID, SentinelAccountID)
	}
	if repo.entries[0].IP != "unknown" {
		t.Errorf("IP = %q, want %q", repo.entries[0].IP, "unknown")
	}
}

func TestLogger_LogEvent_RepoErrorDoesNotPanic(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("db down")}
	logger := NewLogger(repo, nil, nil)

	// Best-effort: the error must be swallowed.
	logger.LogEvent(context.Background(), "acc-1", "logout", "session", "")

	if len(repo.entries) != 0 {
		t.Errorf("entries = %d, want 0", len(repo.entries))
	}
}

func TestLogger_NilRepoIsNoop(t *testing.T) {
	logger := NewLogger(nil, nil, nil)
	logger.LogEvent(context.Background(), "acc-1", "login_success", "auth", "")
}
