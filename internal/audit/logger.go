package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coliving-platform/backend/internal/audit/domain"
	auditrepo "coliving-platform/backend/internal/audit/repository"
	"coliving-platform/backend/internal/telemetry"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// Recorder writes audit events. Recording is best-effort and never fails the caller.
type Recorder interface {
	Record(ctx context.Context, e domain.Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, domain.Event) {}

// Logger persists events to the repository and fans them out to telemetry emitters (Kafka, OTel logs).
type Logger struct {
	repo        auditrepo.Repository
	emitters    []telemetry.EventEmitter
	ipExtractor IPExtractor
	logger      *zap.Logger
	now         func() time.Time
}

// NewLogger returns a Logger. repo and ipExtractor may be nil; nil emitters are skipped.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, logger *zap.Logger, emitters ...telemetry.EventEmitter) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Logger{repo: repo, ipExtractor: ipExtractor, logger: logger, now: time.Now}
	for _, e := range emitters {
		if e != nil {
			l.emitters = append(l.emitters, e)
		}
	}
	return l
}

// Record fills id, time and client IP, writes the event to the repository and emits it
// asynchronously. Failures are logged.
func (l *Logger) Record(ctx context.Context, e domain.Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}
	if e.IP == "" {
		e.IP = "unknown"
		if l.ipExtractor != nil {
			if ip := l.ipExtractor(ctx); ip != "" {
				e.IP = ip
			}
		}
	}
	if l.repo != nil {
		if err := l.repo.Create(ctx, &e); err != nil {
			l.logger.Warn("audit: failed to persist event",
				zap.String("action", e.Action), zap.String("outcome", e.Outcome), zap.Error(err))
		}
	}
	for _, em := range l.emitters {
		telemetry.EmitAsync(l.logger, em, e)
	}
}
