// server runs the co-living session service: the HTTP session API, route guard and pages, plus a
// gRPC health endpoint for probes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"coliving-platform/backend/internal/audit"
	"coliving-platform/backend/internal/config"
	healthhandler "coliving-platform/backend/internal/health/handler"
	identityhandler "coliving-platform/backend/internal/identity/handler"
	"coliving-platform/backend/internal/identity/provider"
	identityrepo "coliving-platform/backend/internal/identity/repository"
	"coliving-platform/backend/internal/identity/service"
	"coliving-platform/backend/internal/logging"
	"coliving-platform/backend/internal/metrics"
	policyengine "coliving-platform/backend/internal/policy/engine"
	"coliving-platform/backend/internal/security"
	"coliving-platform/backend/internal/server"
	"coliving-platform/backend/internal/server/interceptors"
	"coliving-platform/backend/internal/session/cookiestore"
	sessionrepo "coliving-platform/backend/internal/session/repository"
	"coliving-platform/backend/internal/session/revocation"
	"coliving-platform/backend/internal/storage"
	"coliving-platform/backend/internal/telemetry"
	oteltelemetry "coliving-platform/backend/internal/telemetry/otel"
	"coliving-platform/backend/internal/telemetry/producer"
	userrepo "coliving-platform/backend/internal/user/repository"
)

const serviceName = "coliving-auth"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

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
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newIdentityProvider(cfg *config.Config, creds identityrepo.Repository) provider.IdentityProvider {
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	switch cfg.IdentityProvider {
	case config.ProviderFirebase:
		return provider.NewFirebase(cfg.FirebaseAPIKey, cfg.FirebaseBaseURL, httpClient)
	case config.ProviderSupabase:
		return provider.NewSupabase(cfg.SupabaseURL, cfg.SupabaseAnonKey, httpClient)
	default:
		return provider.NewLocal(creds, security.NewHasher(cfg.BcryptCost), cfg.AutoVerifyEmail)
	}
}

const purgeInterval = time.Hour

// purgeRevocations drops stored revocations whose token has expired anyway.
func purgeRevocations(ctx context.Context, repo sessionrepo.Repository, logger *zap.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("purge revoked tokens", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("purged revoked tokens", zap.Int("count", n))
			}
		}
	}
}

func run(cfg *config.Config, logger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	otelProviders, err := oteltelemetry.NewProviders(ctx, oteltelemetry.Options{
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	otelProviders.SetGlobal()
	closers = append(closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return otelProviders.Shutdown(shutdownCtx)
	})

	codec, err := security.NewCodec(cfg.JWTSecret, cfg.JWTPrivateKey, cfg.JWTPublicKey, cfg.JWTIssuer)
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}

	st, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	closers = append(closers, st.Close)
	profiles := st.Profiles

	var revocations revocation.List = st.Revocations
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		rdb := redis.NewClient(opts)
		closers = append(closers, rdb.Close)
		revocations = revocation.NewRedisList(rdb)
		profiles = userrepo.NewCached(profiles, rdb, cfg.ProfileCacheTTL, logger)
		st.Pingers["redis"] = healthhandler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	} else {
		logger.Info("REDIS_URL not set: revoked tokens are kept in storage", zap.String("backend", cfg.StorageBackend))
		go purgeRevocations(ctx, st.Revocations, logger)
	}

	emitters := []telemetry.EventEmitter{oteltelemetry.NewEventEmitter(otelProviders.LoggerProvider)}
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AuditKafkaTopic); kp != nil {
		emitters = append(emitters, kp)
		closers = append(closers, kp.Close)
	}
	auditor := audit.NewLogger(st.Audit, interceptors.ClientIP, logger, emitters...)

	m := metrics.New()
	gw := service.NewGateway(
		provider.WithTimeout(newIdentityProvider(cfg, st.Credentials), cfg.ProviderTimeout),
		codec,
		service.WithDirectory(profiles),
		service.WithRevocations(revocations),
		service.WithAuditor(auditor),
		service.WithMetrics(m),
		service.WithLogger(logger),
	)

	policySrc, err := policyengine.LoadPolicyFile(cfg.RoutePolicyFile)
	if err != nil {
		return err
	}
	policy, err := policyengine.NewOPAEvaluator(ctx, policySrc)
	if err != nil {
		return err
	}

	cookies := cookiestore.New(cookiestore.Options{Secure: cfg.IsProduction(), Domain: cfg.CookieDomain})
	guardCfg := interceptors.DefaultGuardConfig()
	guardCfg.LoginPath = cfg.LoginPath
	guardCfg.LandingPath = cfg.LandingPath
	checker := healthhandler.NewChecker(st.Pingers, policy)

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.HTTPDeps{
			Identity:   identityhandler.New(gw, cookies, logger),
			Guard:      interceptors.NewGuard(guardCfg, gw, cookies, policy, auditor, m, logger),
			Health:     checker,
			Metrics:    m,
			Logger:     logger,
			CORSOrigin: cfg.CORSAllowedOrigin,
			StaticDir:  cfg.StaticDir,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP server listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("provider", cfg.IdentityProvider),
			zap.String("storage", cfg.StorageBackend),
			zap.String("alg", codec.Algorithm()))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	grpcSrv := server.NewGRPCServer(logger)
	server.RegisterServices(grpcSrv, server.Deps{Health: checker})
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		go func() {
			logger.Info("gRPC health server listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server failed, shutting down", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	grpcSrv.GracefulStop()
	return multierr.Append(err, httpSrv.Shutdown(shutdownCtx))
}
