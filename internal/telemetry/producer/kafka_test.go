package producer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditdomain "coliving-platform/backend/internal/audit/domain"
)

type recordingWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewKafkaProducer_Unconfigured(t *testing.T) {
	assert.Nil(t, NewKafkaProducer(nil, "topic"))
	assert.Nil(t, NewKafkaProducer([]string{"localhost:9092"}, ""))

	var p *KafkaProducer
	assert.NoError(t, p.Emit(context.Background(), auditdomain.Event{}))
	assert.NoError(t, p.Close())
}

func TestKafkaProducer_Emit(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaProducer{writer: w}
	ev := auditdomain.Event{
		ID: "e1", Subject: "uid-1", Action: auditdomain.ActionLogin, Outcome: auditdomain.OutcomeSuccess,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Emit(context.Background(), ev))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, []byte("uid-1"), msg.Key)
	var got auditdomain.Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, ev, got)
	assert.Equal(t, "action", msg.Headers[0].Key)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
