// Package storage opens the repositories selected by STORAGE_BACKEND.
package storage

import (
	"context"
	"fmt"

	auditrepo "coliving-platform/backend/internal/audit/repository"
	"coliving-platform/backend/internal/config"
	"coliving-platform/backend/internal/db"
	healthhandler "coliving-platform/backend/internal/health/handler"
	identityrepo "coliving-platform/backend/internal/identity/repository"
	sessionrepo "coliving-platform/backend/internal/session/repository"
	userrepo "coliving-platform/backend/internal/user/repository"
)

// Stores groups the storage-backed collaborators. Audit is nil on bolt: events then only go to
// the telemetry emitters.
type Stores struct {
	Credentials identityrepo.Repository
	Profiles    userrepo.Repository
	Audit       auditrepo.Repository
	Revocations sessionrepo.Repository
	// Pingers feed readiness checks, keyed by dependency name.
	Pingers map[string]healthhandler.Pinger
	Close   func() error
}

// Open connects to Postgres or opens the bolt file, per cfg.StorageBackend.
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return &Stores{
			Credentials: identityrepo.NewPostgresRepository(sqlDB),
			Profiles:    userrepo.NewPostgresRepository(sqlDB),
			Audit:       auditrepo.NewPostgresRepository(sqlDB),
			Revocations: sessionrepo.NewPostgresRepository(sqlDB),
			Pingers:     map[string]healthhandler.Pinger{"postgres": sqlDB},
			Close:       sqlDB.Close,
		}, nil
	case config.StorageBolt:
		bdb, err := db.OpenBolt(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("bolt: %w", err)
		}
		creds, err := identityrepo.NewBoltRepository(bdb)
		if err != nil {
			_ = bdb.Close()
			return nil, err
		}
		profiles, err := userrepo.NewBoltRepository(bdb)
		if err != nil {
			_ = bdb.Close()
			return nil, err
		}
		revoked, err := sessionrepo.NewBoltRepository(bdb)
		if err != nil {
			_ = bdb.Close()
			return nil, err
		}
		return &Stores{
			Credentials: creds,
			Profiles:    profiles,
			Revocations: revoked,
			Pingers:     map[string]healthhandler.Pinger{},
			Close:       bdb.Close,
		}, nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.StorageBackend)
	}
}
