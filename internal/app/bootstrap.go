// Package app turns configuration into the runtime components shared by the
// ledger API and the worker.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/progression-ledger/config"
	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/progression-ledger/internal/infrastructure/persistence/postgres"
	rediscache "github.com/alem-hub/progression-ledger/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/progression-ledger/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/progression-ledger/pkg/logger"
	"github.com/alem-hub/progression-ledger/pkg/retry"
	"github.com/alem-hub/progression-ledger/pkg/telemetry"
)

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	opts.Format = logger.Format(cfg.Observability.LogFormat)
	return logger.New(opts).With(
		logger.String("service", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// SetupTelemetry installs the tracer provider. Tracing stays a no-op unless
// enabled.
func SetupTelemetry(ctx context.Context, cfg *config.Config, log *logger.Logger) (telemetry.ShutdownFunc, error) {
	return telemetry.Setup(ctx, telemetry.Config{
		ServiceName: cfg.App.Name,
		Version:     cfg.App.Version,
		Environment: string(cfg.App.Environment),
		Enabled:     cfg.Observability.TracingEnabled,
		Endpoint:    cfg.Observability.TracingEndpoint,
		Insecure:    !cfg.IsProduction(),
		SampleRatio: cfg.Observability.TracingSample,
	}, log)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER HOST
// ══════════════════════════════════════════════════════════════════════════════

// OpenHost opens the configured ledger host, applying migrations. Network
// backends are retried while the database comes up.
func OpenHost(ctx context.Context, cfg config.LedgerConfig, log *logger.Logger) (progression.Host, error) {
	log = log.With(logger.Component("ledger"), logger.String("backend", string(cfg.Backend)))

	onRetry := func(attempt int, err error, delay time.Duration) {
		log.Warn("ledger host unavailable, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}

	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory ledger; data is lost on exit")
		return memory.New(), nil

	case config.BackendSQLite:
		host, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		log.Info("sqlite ledger ready", logger.String("path", cfg.SQLitePath))
		return host, nil

	case config.BackendPostgres:
		pg := postgres.DefaultConfig()
		pg.URL = cfg.DatabaseURL
		if cfg.MaxOpenConns > 0 {
			pg.MaxConns = int32(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			pg.MinConns = int32(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			pg.MaxConnLifetime = cfg.ConnMaxLifetime
		}
		if cfg.ConnMaxIdleTime > 0 {
			pg.MaxConnIdleTime = cfg.ConnMaxIdleTime
		}

		host, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Ledger, error) {
			return postgres.Open(ctx, pg)
		}, retry.Startup(cfg.ConnectAttempts, onRetry)...)
		if err != nil {
			return nil, fmt.Errorf("open postgres ledger: %w", err)
		}
		log.Info("postgres ledger ready")
		return host, nil

	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS
// ══════════════════════════════════════════════════════════════════════════════

// OpenRedis connects to Redis. It returns a nil cache when Redis is disabled
// or unreachable; callers run without caching in that case.
func OpenRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *rediscache.Cache {
	log = log.With(logger.Component("redis"))
	if cfg.Disabled {
		log.Info("redis disabled, caching off")
		return nil
	}

	rc := rediscache.DefaultConfig()
	rc.URL = cfg.URL
	rc.Host = cfg.Host
	rc.Port = cfg.Port
	rc.Password = cfg.Password
	rc.DB = cfg.DB
	if cfg.PoolSize > 0 {
		rc.PoolSize = cfg.PoolSize
	}
	rc.MinIdleConns = cfg.MinIdleConns
	rc.DialTimeout = cfg.DialTimeout
	rc.ReadTimeout = cfg.ReadTimeout
	rc.WriteTimeout = cfg.WriteTimeout

	cache, err := rediscache.NewCache(ctx, rc)
	if err != nil {
		log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		return nil
	}
	log.Info("redis connection established")
	return cache
}
