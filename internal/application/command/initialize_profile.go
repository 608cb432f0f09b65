package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// INITIALIZE PROFILE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// InitializeProfileCommand creates the caller's profile.
type InitializeProfileCommand struct {
	Actor

	// DisplayName is the chosen name, at most 32 bytes.
	DisplayName string
}

// InitializeProfileResult contains the created profile.
type InitializeProfileResult struct {
	Profile progression.Profile
	Events  []shared.Event
}

// InitializeProfileHandler handles the InitializeProfileCommand.
type InitializeProfileHandler struct {
	ledger    progression.Ledger
	clock     shared.Clock
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewInitializeProfileHandler creates a new InitializeProfileHandler.
func NewInitializeProfileHandler(
	ledger progression.Ledger,
	clock shared.Clock,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *InitializeProfileHandler {
	return &InitializeProfileHandler{
		ledger:    ledger,
		clock:     clock,
		publisher: publisher,
		log:       log.With(logger.Component("initialize_profile")),
	}
}

// Handle executes the initialize profile command.
func (h *InitializeProfileHandler) Handle(ctx context.Context, cmd InitializeProfileCommand) (res *InitializeProfileResult, err error) {
	const op = "InitializeProfile"

	owner, err := cmd.target(op)
	if err != nil {
		return nil, err
	}
	ctx, span := startSpan(ctx, op, owner)
	defer func() { endSpan(span, err) }()

	now := h.clock.Now()
	profile, err := progression.InitializeProfile(owner, cmd.DisplayName, now)
	if err != nil {
		return nil, err
	}

	err = h.ledger.WithinTx(ctx, func(ctx context.Context, tx progression.Tx) error {
		return tx.CreateProfile(ctx, profile)
	})
	if err != nil {
		logFailure(h.log, op, err)
		return nil, fmt.Errorf("initialize_profile: %w", err)
	}

	events := cmd.stamp([]shared.Event{
		shared.NewProfileInitializedEvent(owner.String(), profile.DisplayName, now),
	})
	h.log.Info("User profile initialized for: "+profile.DisplayName, logger.Owner(owner.String()))
	publish(ctx, h.publisher, h.log, events)

	return &InitializeProfileResult{Profile: *profile, Events: events}, nil
}
