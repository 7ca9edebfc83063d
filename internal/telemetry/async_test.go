package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	auditdomain "coliving-platform/backend/internal/audit/domain"
)

type chanEmitter struct {
	ch  chan auditdomain.Event
	err error
}

func (c *chanEmitter) Emit(ctx context.Context, e auditdomain.Event) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("no deadline")
	}
	c.ch <- e
	return c.err
}

func TestEmitAsync_Delivers(t *testing.T) {
	em := &chanEmitter{ch: make(chan auditdomain.Event, 1)}
	EmitAsync(zap.NewNop(), em, auditdomain.Event{Action: auditdomain.ActionLogin})
	select {
	case e := <-em.ch:
		if e.Action != auditdomain.ActionLogin {
			t.Errorf("action = %q", e.Action)
		}
	case <-time.After(time.Second):
		t.Fatal("event not emitted")
	}
}

func TestEmitAsync_LogsFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	em := &chanEmitter{ch: make(chan auditdomain.Event, 1), err: errors.New("broker down")}
	EmitAsync(zap.New(core), em, auditdomain.Event{Action: auditdomain.ActionLogout})
	<-em.ch
	deadline := time.Now().Add(time.Second)
	for logs.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if logs.Len() != 1 {
		t.Fatalf("want 1 warning, got %d", logs.Len())
	}
}

func TestEmitAsync_NilEmitter(t *testing.T) {
	EmitAsync(nil, nil, auditdomain.Event{})
}

func TestShutdownDrainCoversEmitTimeout(t *testing.T) {
	if ShutdownDrainDuration < emitTimeout {
		t.Fatalf("ShutdownDrainDuration %v < emitTimeout %v", ShutdownDrainDuration, emitTimeout)
	}
}
