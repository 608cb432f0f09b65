package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE STREAK COMMAND
// A daily check-in. Extends the streak within 24h of the last activity,
// otherwise starts over at 1.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateStreakCommand carries no payload beyond the actor.
type UpdateStreakCommand struct {
	Actor
}

// UpdateStreakResult contains the updated profile.
type UpdateStreakResult struct {
	Profile progression.Profile
	Change  progression.StreakChange
	Events  []shared.Event
}

// UpdateStreakHandler handles the UpdateStreakCommand.
type UpdateStreakHandler struct {
	ledger    progression.Ledger
	clock     shared.Clock
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewUpdateStreakHandler creates a new UpdateStreakHandler.
func NewUpdateStreakHandler(
	ledger progression.Ledger,
	clock shared.Clock,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *UpdateStreakHandler {
	return &UpdateStreakHandler{
		ledger:    ledger,
		clock:     clock,
		publisher: publisher,
		log:       log.With(logger.Component("update_streak")),
	}
}

// Handle executes the update streak command.
func (h *UpdateStreakHandler) Handle(ctx context.Context, cmd UpdateStreakCommand) (res *UpdateStreakResult, err error) {
	const op = "UpdateStreak"

	owner, err := cmd.target(op)
	if err != nil {
		return nil, err
	}
	ctx, span := startSpan(ctx, op, owner)
	defer func() { endSpan(span, err) }()

	now := h.clock.Now()
	var out progression.StreakOutcome

	err = h.ledger.WithinTx(ctx, func(ctx context.Context, tx progression.Tx) error {
		profile, err := tx.GetProfileForUpdate(ctx, owner)
		if err != nil {
			return err
		}
		if err := profile.Authorize(op, cmd.Caller); err != nil {
			return err
		}

		if out, err = progression.UpdateStreak(*profile, now); err != nil {
			return err
		}
		return tx.UpdateProfile(ctx, &out.Profile)
	})
	if err != nil {
		logFailure(h.log, op, err)
		return nil, fmt.Errorf("update_streak: %w", err)
	}

	events := cmd.stamp([]shared.Event{streakEvent(owner, out.Change, now)})

	h.log.Info(fmt.Sprintf("Streak updated: %d", out.Profile.Streak),
		logger.Owner(owner.String()),
		logger.Bool("reset", out.Change.Reset),
	)
	publish(ctx, h.publisher, h.log, events)

	return &UpdateStreakResult{Profile: out.Profile, Change: out.Change, Events: events}, nil
}
