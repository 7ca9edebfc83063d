package telemetry

import (
	"context"

	auditdomain "coliving-platform/backend/internal/audit/domain"
)

// EventEmitter ships audit events to an external pipeline (Kafka, OTel logs). Best-effort;
// callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event auditdomain.Event) error
}
