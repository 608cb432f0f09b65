// Package main is the entry point of the progression ledger worker.
//
// The worker runs periodic maintenance on gocron. Today that is one job,
// rebuild_leaderboard, which reloads the Redis leaderboard from the ledger
// host so cache drift never outlives one interval.
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
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/internal/infrastructure/messaging"
	rediscache "github.com/alem-hub/progression-ledger/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/progression-ledger/internal/infrastructure/scheduler"
	"github.com/alem-hub/progression-ledger/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/progression-ledger/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
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

	log := app.NewLogger(cfg).With(logger.Component("worker"))
	defer func() { _ = log.Sync() }()

	if !cfg.Scheduler.Enabled {
		log.Info("scheduler disabled, nothing to do")
		return nil
	}
	log.Info("starting progression ledger worker",
		logger.String("version", cfg.App.Version),
		logger.Duration("leaderboard_interval", cfg.Scheduler.RebuildLeaderboardInterval),
	)

	shutdownTracing, err := app.SetupTelemetry(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(tctx)
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Ledger host and Redis
	// ─────────────────────────────────────────────────────────────────────────
	host, err := app.OpenHost(ctx, cfg.Ledger, log)
	if err != nil {
		return err
	}
	defer func() { _ = host.Close() }()

	cache := app.OpenRedis(ctx, cfg.Redis, log)
	if cache == nil {
		return errors.New("the worker rebuilds the Redis leaderboard and needs Redis")
	}
	defer func() { _ = cache.Close() }()

	// Rebuild results go out on the shared channel so API instances see them.
	var publisher shared.EventPublisher
	bus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
		Client: cache.Client(),
		Logger: log,
	})
	if err != nil {
		log.Warn("redis event relay unavailable, rebuild events stay local", logger.Err(err))
	} else {
		defer func() { _ = bus.Close() }()
		publisher = bus
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Scheduler
	// ─────────────────────────────────────────────────────────────────────────
	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = log
	schedCfg.JobTimeout = cfg.Scheduler.JobTimeout

	sched, err := scheduler.NewScheduler(schedCfg)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	rebuild := jobs.NewRebuildLeaderboardJob(
		host,
		rediscache.NewLeaderboardCache(cache),
		publisher,
		shared.SystemClock{},
		log,
		jobs.RebuildLeaderboardConfig{
			Size:    cfg.Scheduler.LeaderboardSize,
			Timeout: cfg.Scheduler.JobTimeout,
		},
	).WithLocker(cache)
	if err := sched.Register(rebuild, scheduler.NewIntervalSchedule(cfg.Scheduler.RebuildLeaderboardInterval)); err != nil {
		return fmt.Errorf("failed to register %s: %w", rebuild.Name(), err)
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	for _, job := range sched.ListJobs() {
		log.Info("job scheduled",
			logger.String("job", job.Name),
			logger.String("schedule", job.Schedule),
			logger.Time("next_run", job.NextRun),
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	if err := sched.Stop(); err != nil {
		log.Error("scheduler stop failed", logger.Err(err))
		return err
	}
	log.Info("shutdown completed successfully")
	return nil
}
