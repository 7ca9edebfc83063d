package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	auditdomain "coliving-platform/backend/internal/audit/domain"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the servers stop before shutting down exporters,
// so in-flight async emits can finish. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine so the request is not blocked. The goroutine uses a fresh
// context bounded by emitTimeout; request cancellation does not abort an in-flight emit.
// A nil emitter is a no-op.
func EmitAsync(logger *zap.Logger, emitter EventEmitter, event auditdomain.Event) {
	if emitter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(ctx, event); err != nil && logger != nil {
			logger.Warn("telemetry: async emit failed", zap.String("action", event.Action), zap.Error(err))
		}
	}()
}
