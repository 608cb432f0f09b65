package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD ACHIEVEMENT COMMAND
// Grants a named achievement once and credits the tier bonus XP.
// ══════════════════════════════════════════════════════════════════════════════

// AwardAchievementCommand contains the achievement to grant.
type AwardAchievementCommand struct {
	Actor

	AchievementID   string
	AchievementName string
	Tier            progression.Tier
}

// AwardAchievementResult contains the grant and the updated profile.
type AwardAchievementResult struct {
	Profile     progression.Profile
	Achievement progression.Achievement
	BonusXP     uint64
	LeveledUp   bool
	Events      []shared.Event
}

// AwardAchievementHandler handles the AwardAchievementCommand.
type AwardAchievementHandler struct {
	ledger    progression.Ledger
	clock     shared.Clock
	publisher shared.EventPublisher
	log       *logger.Logger

	// Configuration
	levelPolicy progression.LevelPolicy
}

// AwardAchievementHandlerConfig contains configuration for the handler.
type AwardAchievementHandlerConfig struct {
	LevelPolicy progression.LevelPolicy
}

// DefaultAwardAchievementHandlerConfig returns default configuration.
func DefaultAwardAchievementHandlerConfig() AwardAchievementHandlerConfig {
	return AwardAchievementHandlerConfig{LevelPolicy: progression.LevelPolicyQuizOnly}
}

// NewAwardAchievementHandler creates a new AwardAchievementHandler.
func NewAwardAchievementHandler(
	ledger progression.Ledger,
	clock shared.Clock,
	publisher shared.EventPublisher,
	log *logger.Logger,
	config AwardAchievementHandlerConfig,
) *AwardAchievementHandler {
	return &AwardAchievementHandler{
		ledger:      ledger,
		clock:       clock,
		publisher:   publisher,
		log:         log.With(logger.Component("award_achievement")),
		levelPolicy: config.LevelPolicy,
	}
}

// Handle executes the award achievement command.
func (h *AwardAchievementHandler) Handle(ctx context.Context, cmd AwardAchievementCommand) (res *AwardAchievementResult, err error) {
	const op = "AwardAchievement"

	owner, err := cmd.target(op)
	if err != nil {
		return nil, err
	}
	ctx, span := startSpan(ctx, op, owner)
	defer func() { endSpan(span, err) }()

	now := h.clock.Now()
	var out progression.AwardOutcome

	err = h.ledger.WithinTx(ctx, func(ctx context.Context, tx progression.Tx) error {
		profile, err := tx.GetProfileForUpdate(ctx, owner)
		if err != nil {
			return err
		}
		if err := profile.Authorize(op, cmd.Caller); err != nil {
			return err
		}

		out, err = progression.AwardAchievement(*profile, progression.AchievementInput{
			AchievementID:   cmd.AchievementID,
			AchievementName: cmd.AchievementName,
			Tier:            cmd.Tier,
		}, h.levelPolicy, now)
		if err != nil {
			return err
		}

		if err := tx.CreateAchievement(ctx, &out.Achievement); err != nil {
			return err
		}
		return tx.UpdateProfile(ctx, &out.Profile)
	})
	if err != nil {
		logFailure(h.log, op, err)
		return nil, fmt.Errorf("award_achievement: %w", err)
	}

	p, a := out.Profile, out.Achievement
	events := []shared.Event{
		shared.NewAchievementUnlockedEvent(owner.String(), a.AchievementID, a.AchievementName, a.Tier.String(), out.Bonus, p.XP, now),
	}
	if out.LeveledUp() {
		events = append(events, shared.NewLevelUpEvent(owner.String(), out.PreviousLevel, p.Level, p.XP, now))
	}
	events = cmd.stamp(events)

	h.log.Info(fmt.Sprintf("Achievement unlocked: %s (%s)", a.AchievementName, a.Tier),
		logger.Owner(owner.String()),
		logger.AchievementID(a.AchievementID),
		logger.Uint64("bonus_xp", out.Bonus),
		logger.XP(p.XP),
	)
	publish(ctx, h.publisher, h.log, events)

	return &AwardAchievementResult{
		Profile:     p,
		Achievement: a,
		BonusXP:     out.Bonus,
		LeveledUp:   out.LeveledUp(),
		Events:      events,
	}, nil
}
