package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"snaplink/backend/internal/audit/domain"
	auditrepo "snaplink/backend/internal/audit/repository"
)

// SentinelAccountID is the account_id used for audit events that have no
// resolved account (e.g. a login attempt against an unknown email).
const SentinelAccountID = "_unknown"

// Challenge rejection reasons. Callers see one uniform rejection message;
// the precise reason is recorded here and nowhere else.
const (
	ReasonCodeMismatch     = "code_mismatch"
	ReasonCodeExpired      = "code_expired"
	ReasonAttemptsExceeded = "attempts_exceeded"
	// ReasonUnknownChallenge covers a consumed, replayed, or never-issued
	// challenge id, and codes submitted for the wrong purpose.
	ReasonUnknownChallenge = "unknown_challenge"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, accountID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         *zap.Logger
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: log}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, accountID, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if accountID == "" {
		accountID = SentinelAccountID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.Warn("audit: failed to log event",
			zap.String("action", action),
			zap.String("resource", resource),
			zap.Error(err))
	}
}
