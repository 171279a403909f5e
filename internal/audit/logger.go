package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/circuitpointe-dev/centora-sub011/internal/audit/domain"
	"github.com/circuitpointe-dev/centora-sub011/internal/logging"
)

// SentinelOrgID is the org_id used for audit events that have no org (e.g. a request rejected before validation).
const SentinelOrgID = "_system"

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string)
}

// Writer persists audit entries.
type Writer interface {
	Create(ctx context.Context, a *domain.AuditLog) error
}

// Logger implements AuditLogger using an audit Writer and an optional IP extractor.
type Logger struct {
	repo        Writer
	ipExtractor IPExtractor
	log         logrus.FieldLogger
	now         func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown". A nil log discards write failures.
func NewLogger(repo Writer, ipExtractor IPExtractor, log logrus.FieldLogger) *Logger {
	if log == nil {
		log = logging.Discard()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: log, now: time.Now}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	if orgID == "" {
		orgID = SentinelOrgID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: l.now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.WithFields(logrus.Fields{
			"action":   action,
			"resource": resource,
			"org_id":   orgID,
		}).WithError(err).Warn("audit: failed to log event")
	}
}
