package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	auditdomain "coliving-platform/backend/internal/audit/domain"
	"coliving-platform/backend/internal/telemetry"
)

const loggerName = "coliving.auth.audit"

// NewEventEmitter returns an EventEmitter that sends audit events as OTel log records via the
// given LoggerProvider. A nil provider yields a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger(loggerName)}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, auditdomain.Event) error { return nil }

type otelEmitter struct {
	logger otellog.Logger
}

// Emit converts the audit event to a log record. Failures mark severity WARN.
func (e *otelEmitter) Emit(ctx context.Context, event auditdomain.Event) error {
	rec := otellog.Record{}
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetEventName("auth." + event.Action)
	rec.SetBody(otellog.StringValue(event.Action + " " + event.Outcome))
	if event.Outcome == auditdomain.OutcomeFailure {
		rec.SetSeverity(otellog.SeverityWarn)
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
	}
	attrs := []otellog.KeyValue{
		otellog.String("audit.id", event.ID),
		otellog.String("audit.action", event.Action),
		otellog.String("audit.outcome", event.Outcome),
	}
	for k, v := range map[string]string{
		"enduser.id":     event.Subject,
		"audit.reason":   event.Reason,
		"url.path":       event.Path,
		"client.address": event.IP,
		"token.fp":       event.TokenFP,
	} {
		if v != "" {
			attrs = append(attrs, otellog.String(k, v))
		}
	}
	rec.AddAttributes(attrs...)
	e.logger.Emit(ctx, rec)
	return nil
}
