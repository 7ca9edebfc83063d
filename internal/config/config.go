// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Identity provider and storage backend names.
const (
	ProviderLocal    = "local"
	ProviderFirebase = "firebase"
	ProviderSupabase = "supabase"

	StoragePostgres = "postgres"
	StorageBolt     = "bolt"
)

const (
	minSecretLen           = 16
	minProductionSecretLen = 32
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :3000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the gRPC health endpoint address; empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment ("development", "production"). Production turns on Secure cookies.
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// JWTSecret is the HS256 signing secret. Ignored when a key pair is configured.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`

	// IdentityProvider selects the credential backend: local, firebase or supabase.
	IdentityProvider string        `mapstructure:"IDENTITY_PROVIDER"`
	ProviderTimeout  time.Duration `mapstructure:"PROVIDER_TIMEOUT"`
	FirebaseAPIKey   string        `mapstructure:"FIREBASE_API_KEY"`
	FirebaseBaseURL  string        `mapstructure:"FIREBASE_BASE_URL"`
	SupabaseURL      string        `mapstructure:"SUPABASE_URL"`
	SupabaseAnonKey  string        `mapstructure:"SUPABASE_ANON_KEY"`
	// AutoVerifyEmail marks new local accounts verified. Must not be true when Env is production.
	AutoVerifyEmail bool `mapstructure:"AUTO_VERIFY_EMAIL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// StorageBackend is postgres or bolt. It holds local credentials, profiles and (postgres only) audit events.
	StorageBackend  string        `mapstructure:"STORAGE_BACKEND"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	BoltPath        string        `mapstructure:"BOLT_PATH"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	ProfileCacheTTL time.Duration `mapstructure:"PROFILE_CACHE_TTL"`

	CookieDomain      string `mapstructure:"COOKIE_DOMAIN"`
	LoginPath         string `mapstructure:"LOGIN_PATH"`
	LandingPath       string `mapstructure:"LANDING_PATH"`
	RoutePolicyFile   string `mapstructure:"ROUTE_POLICY_FILE"`
	CORSAllowedOrigin string `mapstructure:"CORS_ALLOWED_ORIGIN"`
	// StaticDir, when set, is served for page routes instead of the placeholder pages.
	StaticDir string `mapstructure:"STATIC_DIR"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses; empty disables audit streaming.
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group of cmd/worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// OTLPEndpoint is the OTLP gRPC collector (e.g. localhost:4317). Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "coliving-auth")
	v.SetDefault("IDENTITY_PROVIDER", ProviderLocal)
	v.SetDefault("PROVIDER_TIMEOUT", "5s")
	v.SetDefault("FIREBASE_API_KEY", "")
	v.SetDefault("FIREBASE_BASE_URL", "")
	v.SetDefault("SUPABASE_URL", "")
	v.SetDefault("SUPABASE_ANON_KEY", "")
	v.SetDefault("AUTO_VERIFY_EMAIL", false)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("STORAGE_BACKEND", StorageBolt)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("BOLT_PATH", "coliving.db")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("PROFILE_CACHE_TTL", "10m")
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("LOGIN_PATH", "/auth/login")
	v.SetDefault("LANDING_PATH", "/dashboard")
	v.SetDefault("ROUTE_POLICY_FILE", "")
	v.SetDefault("CORS_ALLOWED_ORIGIN", "*")
	v.SetDefault("STATIC_DIR", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "coliving-auth-events")
	v.SetDefault("KAFKA_GROUP_ID", "coliving-audit-worker")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}

	switch c.IdentityProvider {
	case ProviderLocal:
	case ProviderFirebase:
		if c.FirebaseAPIKey == "" {
			return errors.New("config: FIREBASE_API_KEY must be set when IDENTITY_PROVIDER=firebase")
		}
	case ProviderSupabase:
		if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
			return errors.New("config: SUPABASE_URL and SUPABASE_ANON_KEY must be set when IDENTITY_PROVIDER=supabase")
		}
	default:
		return fmt.Errorf("config: unknown IDENTITY_PROVIDER %q", c.IdentityProvider)
	}
	if c.ProviderTimeout <= 0 {
		return errors.New("config: PROVIDER_TIMEOUT must be positive")
	}

	switch c.StorageBackend {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when STORAGE_BACKEND=postgres")
		}
	case StorageBolt:
		if c.BoltPath == "" {
			return errors.New("config: BOLT_PATH must be set when STORAGE_BACKEND=bolt")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	if c.HasKeyPair() {
		if c.JWTPrivateKey == "" || c.JWTPublicKey == "" {
			return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together")
		}
	} else {
		minLen := minSecretLen
		if c.IsProduction() {
			minLen = minProductionSecretLen
		}
		if len(c.JWTSecret) < minLen {
			return fmt.Errorf("config: JWT_SECRET must be at least %d bytes (or set JWT_PRIVATE_KEY/JWT_PUBLIC_KEY)", minLen)
		}
	}

	if c.AutoVerifyEmail && c.IsProduction() {
		return errors.New("config: AUTO_VERIFY_EMAIL must not be true when APP_ENV=production")
	}

	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.ProfileCacheTTL < 0 {
		return errors.New("config: PROFILE_CACHE_TTL must not be negative")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// HasKeyPair reports whether an asymmetric signing key is configured.
func (c *Config) HasKeyPair() bool {
	return c.JWTPrivateKey != "" || c.JWTPublicKey != ""
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables the audit event producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
