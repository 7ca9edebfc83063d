// Package consumer reads audit events back from Kafka for out-of-process sinks.
package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	auditdomain "coliving-platform/backend/internal/audit/domain"
)

// messageReader is the subset of *kafka.Reader used here.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Sink stores one decoded event.
type Sink func(ctx context.Context, e auditdomain.Event) error

// KafkaConsumer decodes audit events from a topic and hands them to a Sink.
type KafkaConsumer struct {
	reader  messageReader
	logger  *zap.Logger
	timeout time.Duration
}

// NewKafkaConsumer joins groupID on topic. Call Close when done.
func NewKafkaConsumer(brokers []string, topic, groupID string, logger *zap.Logger) *KafkaConsumer {
	return newConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	}), logger)
}

func newConsumer(r messageReader, logger *zap.Logger) *KafkaConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaConsumer{reader: r, logger: logger, timeout: 10 * time.Second}
}

// Run reads until ctx is cancelled. Undecodable messages and sink failures are logged and skipped.
func (c *KafkaConsumer) Run(ctx context.Context, sink Sink) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("consumer: kafka read error", zap.Error(err))
			continue
		}

		var e auditdomain.Event
		if err := json.Unmarshal(msg.Value, &e); err != nil || e.ID == "" {
			c.logger.Warn("consumer: skipping malformed event",
				zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.Error(err))
			continue
		}

		sinkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		if err := sink(sinkCtx, e); err != nil {
			c.logger.Error("consumer: sink failed",
				zap.String("id", e.ID), zap.String("action", e.Action), zap.Error(err))
		}
		cancel()
	}
}

// Close closes the underlying reader.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
