// Package eventhandler contains domain event handlers.
package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// PROGRESS PROJECTOR
// Keeps the read-side caches in step with committed ledger changes:
//   - the leaderboard learns new owners, XP totals and levels
//   - the owner's cached profile is dropped so the next read reloads it
//
// Every write is idempotent, so an event seen twice (locally and again over
// the Redis relay) leaves the same state behind.
// ═══════════════════════════════════════════════════════════════════════════

// ProgressProjector projects progression events into the caches.
type ProgressProjector struct {
	leaderboard progression.LeaderboardCache
	profiles    progression.ProfileCache
	log         *logger.Logger
	config      ProgressProjectorConfig
}

// ProgressProjectorConfig contains configuration for the projector.
type ProgressProjectorConfig struct {
	// Timeout bounds the cache writes made for one event.
	Timeout time.Duration
}

// DefaultProgressProjectorConfig returns the default configuration.
func DefaultProgressProjectorConfig() ProgressProjectorConfig {
	return ProgressProjectorConfig{Timeout: 2 * time.Second}
}

// NewProgressProjector creates a projector. Either cache may be nil.
func NewProgressProjector(
	leaderboard progression.LeaderboardCache,
	profiles progression.ProfileCache,
	log *logger.Logger,
	config ProgressProjectorConfig,
) *ProgressProjector {
	if log == nil {
		log = logger.Nop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultProgressProjectorConfig().Timeout
	}
	return &ProgressProjector{
		leaderboard: leaderboard,
		profiles:    profiles,
		log:         log.With(logger.Component("progress_projector")),
		config:      config,
	}
}

// ProjectedEvents lists the event types the projector handles.
func ProjectedEvents() []shared.EventType {
	return []shared.EventType{
		shared.EventProfileInitialized,
		shared.EventQuizCompleted,
		shared.EventLevelUp,
		shared.EventAchievementUnlocked,
		shared.EventStreakUpdated,
		shared.EventStreakReset,
	}
}

// Register subscribes the projector to every projected event type.
func (p *ProgressProjector) Register(bus shared.EventSubscriber) error {
	for _, t := range ProjectedEvents() {
		if err := bus.Subscribe(t, p.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

// Handle implements shared.EventHandler.
func (p *ProgressProjector) Handle(event shared.Event) error {
	owner := event.AggregateID()
	if owner == "" {
		p.log.Warn("event without owner", logger.EventType(string(event.EventType())))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.config.Timeout)
	defer cancel()

	var errs []error
	if p.leaderboard != nil {
		if err := p.project(ctx, owner, event); err != nil {
			errs = append(errs, fmt.Errorf("leaderboard: %w", err))
		}
	}
	if p.profiles != nil {
		if err := p.profiles.Invalidate(ctx, owner); err != nil {
			errs = append(errs, fmt.Errorf("profile cache: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		p.log.Warn("projection failed",
			logger.EventType(string(event.EventType())),
			logger.Owner(owner),
			logger.Err(err),
		)
		return err
	}
	return nil
}

func (p *ProgressProjector) project(ctx context.Context, owner string, event shared.Event) error {
	switch event.EventType() {
	case shared.EventProfileInitialized:
		name, _ := textField(event, "display_name")
		return p.leaderboard.Register(ctx, owner, name, 0, 1)

	case shared.EventQuizCompleted, shared.EventAchievementUnlocked:
		xp, ok := uintField(event, "new_xp")
		if !ok {
			return fmt.Errorf("%s: missing new_xp", event.EventType())
		}
		return p.leaderboard.UpdateXP(ctx, owner, xp)

	case shared.EventLevelUp:
		level, ok := uintField(event, "new_level")
		if !ok {
			return fmt.Errorf("%s: missing new_level", event.EventType())
		}
		if xp, ok := uintField(event, "xp"); ok {
			if err := p.leaderboard.UpdateXP(ctx, owner, xp); err != nil {
				return err
			}
		}
		return p.leaderboard.SetLevel(ctx, owner, level)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYLOAD ACCESS
// Local events carry typed payload values; events relayed from another
// instance expose accessors over their decoded JSON.
// ══════════════════════════════════════════════════════════════════════════════

type uintReader interface {
	Uint64(key string) (uint64, bool)
}

type textReader interface {
	Text(key string) (string, bool)
}

func uintField(event shared.Event, key string) (uint64, bool) {
	if r, ok := event.(uintReader); ok {
		return r.Uint64(key)
	}
	switch v := event.Payload()[key].(type) {
	case uint64:
		return v, true
	case uint32:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case int:
		if v >= 0 {
			return uint64(v), true
		}
	}
	return 0, false
}

func textField(event shared.Event, key string) (string, bool) {
	if r, ok := event.(textReader); ok {
		return r.Text(key)
	}
	s, ok := event.Payload()[key].(string)
	return s, ok
}
