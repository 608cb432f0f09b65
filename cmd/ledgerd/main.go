// Package main is the entry point of the progression ledger API.
//
// ledgerd serves the HTTP/JSON API over the configured ledger host, keeps
// the Redis read caches in step through the event bus, and relays events to
// other instances when Redis is available.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alem-hub/progression-ledger/config"
	"github.com/alem-hub/progression-ledger/internal/app"
	"github.com/alem-hub/progression-ledger/internal/application/command"
	"github.com/alem-hub/progression-ledger/internal/application/eventhandler"
	"github.com/alem-hub/progression-ledger/internal/application/query"
	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/internal/infrastructure/messaging"
	rediscache "github.com/alem-hub/progression-ledger/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/progression-ledger/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/progression-ledger/internal/infrastructure/security"
	httpserver "github.com/alem-hub/progression-ledger/internal/interface/http"
	"github.com/alem-hub/progression-ledger/internal/interface/http/handlers"
	"github.com/alem-hub/progression-ledger/pkg/logger"
)

type closableBus interface {
	shared.EventBus
	Close() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration and logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := app.NewLogger(cfg)
	defer func() { _ = log.Sync() }()
	log.Info("starting progression ledger",
		logger.String("version", cfg.App.Version),
		logger.String("backend", string(cfg.Ledger.Backend)),
		logger.Bool("debug", cfg.App.Debug),
	)

	shutdownTracing, err := app.SetupTelemetry(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			log.Warn("tracer shutdown failed", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Ledger host
	// ─────────────────────────────────────────────────────────────────────────
	host, err := app.OpenHost(ctx, cfg.Ledger, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing ledger host")
		_ = host.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Redis caches (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		leaderboard progression.LeaderboardCache
		profiles    progression.ProfileCache
		counter     httpserver.WindowCounter
	)
	cache := app.OpenRedis(ctx, cfg.Redis, log)
	if cache != nil {
		defer func() { _ = cache.Close() }()
		leaderboard = rediscache.NewLeaderboardCache(cache)
		profiles = rediscache.NewProfileCache(cache, cfg.Redis.ProfileTTL)
		counter = cache
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Event bus
	// Handlers run synchronously after commit; with Redis the bus also fans
	// events out to the other instances.
	// ─────────────────────────────────────────────────────────────────────────
	localCfg := messaging.InMemoryEventBusConfig{AsyncMode: false, Logger: log}
	var bus closableBus
	if cache != nil {
		redisBus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
			Client:         cache.Client(),
			LocalBusConfig: localCfg,
			Logger:         log,
		})
		if err != nil {
			log.Warn("redis event relay unavailable, using local bus", logger.Err(err))
		} else {
			bus = redisBus
		}
	}
	if bus == nil {
		bus = messaging.NewInMemoryEventBus(localCfg)
	}
	defer func() {
		log.Info("closing event bus")
		_ = bus.Close()
	}()

	// Cache projections are retried briefly; what still fails is dead-lettered
	// and repaired by the next leaderboard rebuild.
	dispatcherCfg := messaging.DefaultDispatcherConfig(bus)
	dispatcherCfg.Logger = log
	dispatcher := messaging.NewDispatcher(dispatcherCfg)
	defer dispatcher.Stop()

	projector := eventhandler.NewProgressProjector(leaderboard, profiles, log, eventhandler.DefaultProgressProjectorConfig())
	if err := projector.Register(dispatcher); err != nil {
		return fmt.Errorf("failed to register projector: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Application layer
	// ─────────────────────────────────────────────────────────────────────────
	clock := shared.SystemClock{}

	var rebuilder httpserver.LeaderboardRebuilder
	if leaderboard != nil {
		rebuilder = jobs.NewRebuildLeaderboardJob(host, leaderboard, bus, clock, log, jobs.RebuildLeaderboardConfig{
			Size:    cfg.Scheduler.LeaderboardSize,
			Timeout: cfg.Scheduler.JobTimeout,
		}).WithLocker(cache)
	}

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("ledger", handlers.NewPingCheck(host))
	if cache != nil {
		health.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
	}

	deps := httpserver.Dependencies{
		InitializeProfile: command.NewInitializeProfileHandler(host, clock, bus, log),
		SubmitQuiz:        command.NewSubmitQuizHandler(host, clock, bus, log),
		AwardAchievement: command.NewAwardAchievementHandler(host, clock, bus, log, command.AwardAchievementHandlerConfig{
			LevelPolicy: cfg.Ledger.LevelPolicy(),
		}),
		UpdateStreak: command.NewUpdateStreakHandler(host, clock, bus, log),

		GetProfile:       query.NewGetProfileHandler(host, profiles, log),
		ListQuizAttempts: query.NewListQuizAttemptsHandler(host),
		GetQuizAttempt:   query.NewGetQuizAttemptHandler(host),
		ListAchievements: query.NewListAchievementsHandler(host),
		GetAchievement:   query.NewGetAchievementHandler(host),
		GetLeaderboard:   query.NewGetLeaderboardHandler(host, leaderboard, clock, log),

		Rebuilder:   rebuilder,
		Tokens:      security.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
		APIKeys:     security.NewAPIKeyChecker(cfg.Auth.APIKeyHashes),
		RateCounter: counter,
		Health:      health,
		Logger:      log,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	server := httpserver.NewServer(httpserver.Config{
		Addr:              cfg.HTTP.Addr,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		AllowedOrigins:    cfg.HTTP.AllowedOrigins,
		RateLimit:         cfg.HTTP.RateLimit,
		RateLimitWindow:   cfg.HTTP.RateLimitWindow,
		ServiceName:       cfg.App.Name,
		Debug:             cfg.App.Debug,
	}, deps)

	errCh := server.StartAsync()
	log.Info("progression ledger is running", logger.String("addr", cfg.HTTP.Addr))

	// ─────────────────────────────────────────────────────────────────────────
	// 7. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err, ok := <-errCh:
		if ok && err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("http server shutdown failed", logger.Err(err))
		return err
	}

	log.Info("shutdown completed successfully")
	return nil
}
