// worker consumes audit events from Kafka and stores them in Postgres. It lets instances running on
// bolt, or several instances behind a load balancer, keep one audit trail.
// Set KAFKA_BROKERS, AUDIT_KAFKA_TOPIC, KAFKA_GROUP_ID and DATABASE_URL.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	auditdomain "coliving-platform/backend/internal/audit/domain"
	auditrepo "coliving-platform/backend/internal/audit/repository"
	"coliving-platform/backend/internal/config"
	"coliving-platform/backend/internal/db"
	"coliving-platform/backend/internal/logging"
	"coliving-platform/backend/internal/telemetry/consumer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("worker exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		return errors.New("worker: KAFKA_BROKERS is required")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("worker: DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer sqlDB.Close()
	repo := auditrepo.NewPostgresRepository(sqlDB)

	c := consumer.NewKafkaConsumer(brokers, cfg.AuditKafkaTopic, cfg.KafkaGroupID, logger)
	defer c.Close()

	logger.Info("worker: consuming audit events",
		zap.String("topic", cfg.AuditKafkaTopic), zap.String("group", cfg.KafkaGroupID))
	err = c.Run(ctx, func(ctx context.Context, e auditdomain.Event) error {
		return repo.Create(ctx, &e)
	})
	logger.Info("worker: stopped")
	return err
}
