// Package jobs contains the scheduled jobs of the progression ledger.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// RebuildLeaderboardJob reloads the cached leaderboard from the ledger.
// The projector keeps the cache current between runs; this job repairs
// whatever drift a lost event or a Redis restart leaves behind.
type RebuildLeaderboardJob struct {
	reader    progression.Reader
	cache     progression.LeaderboardCache
	publisher shared.EventPublisher
	clock     shared.Clock
	log       *logger.Logger

	config RebuildLeaderboardConfig
	locker Locker

	lastRebuildStats atomic.Pointer[RebuildStats]
}

// ErrRebuildInProgress is returned when another instance holds the rebuild
// lock.
var ErrRebuildInProgress = shared.NewDomainError("jobs", "RebuildLeaderboard", shared.ErrAlreadyExists,
	"a leaderboard rebuild is already in progress")

// Locker is a cross-instance mutex. The Redis cache implements it.
type Locker interface {
	TryLock(ctx context.Context, resource string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// RebuildLeaderboardConfig contains configuration for the rebuild job.
type RebuildLeaderboardConfig struct {
	// Size is how many profiles are loaded into the cache. Zero loads all.
	Size int

	// Timeout is the maximum duration for one rebuild.
	Timeout time.Duration
}

// DefaultRebuildLeaderboardConfig returns sensible defaults.
func DefaultRebuildLeaderboardConfig() RebuildLeaderboardConfig {
	return RebuildLeaderboardConfig{
		Size:    1000,
		Timeout: time.Minute,
	}
}

// RebuildStats contains statistics from a rebuild run.
type RebuildStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Entries     int
}

// NewRebuildLeaderboardJob creates a new rebuild leaderboard job.
// publisher may be nil.
func NewRebuildLeaderboardJob(
	reader progression.Reader,
	cache progression.LeaderboardCache,
	publisher shared.EventPublisher,
	clock shared.Clock,
	log *logger.Logger,
	config RebuildLeaderboardConfig,
) *RebuildLeaderboardJob {
	if log == nil {
		log = logger.Nop()
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &RebuildLeaderboardJob{
		reader:    reader,
		cache:     cache,
		publisher: publisher,
		clock:     clock,
		log:       log.With(logger.Component("rebuild_leaderboard")),
		config:    config,
	}
}

// WithLocker makes runs on different instances exclusive. The lock is held
// for at most the job timeout.
func (j *RebuildLeaderboardJob) WithLocker(l Locker) *RebuildLeaderboardJob {
	j.locker = l
	return j
}

// Name returns the job name.
func (j *RebuildLeaderboardJob) Name() string {
	return "rebuild_leaderboard"
}

// Description returns a human-readable description.
func (j *RebuildLeaderboardJob) Description() string {
	return "Reloads the cached leaderboard from the ledger's top profiles"
}

// Run executes the rebuild job.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	if j.reader == nil || j.cache == nil {
		return errors.New("rebuild_leaderboard: reader and cache are required")
	}
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	if j.locker != nil {
		ttl := j.config.Timeout
		if ttl <= 0 {
			ttl = time.Minute
		}
		unlock, ok, err := j.locker.TryLock(ctx, j.Name(), ttl)
		if err != nil {
			return fmt.Errorf("acquire rebuild lock: %w", err)
		}
		if !ok {
			return ErrRebuildInProgress
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				j.log.Warn("failed to release rebuild lock", logger.Err(err))
			}
		}()
	}

	startedAt := time.Now()
	at := j.clock.Now()

	profiles, err := j.reader.TopProfiles(ctx, j.config.Size)
	if err != nil {
		return fmt.Errorf("load top profiles: %w", err)
	}
	entries := progression.RankProfiles(profiles)

	if err := j.cache.Rebuild(ctx, entries, at); err != nil {
		return fmt.Errorf("rebuild cache: %w", err)
	}

	took := time.Since(startedAt)
	j.lastRebuildStats.Store(&RebuildStats{
		StartedAt:   startedAt,
		CompletedAt: startedAt.Add(took),
		Duration:    took,
		Entries:     len(entries),
	})

	if j.publisher != nil {
		if err := j.publisher.Publish(shared.NewLeaderboardRebuiltEvent(len(entries), took, at)); err != nil {
			j.log.Warn("failed to publish rebuild event", logger.Err(err))
		}
	}

	j.log.Info("leaderboard rebuilt",
		logger.Int("entries", len(entries)),
		logger.Latency(took),
	)
	return nil
}

// LastRebuildStats returns statistics from the last successful rebuild.
func (j *RebuildLeaderboardJob) LastRebuildStats() *RebuildStats {
	return j.lastRebuildStats.Load()
}
