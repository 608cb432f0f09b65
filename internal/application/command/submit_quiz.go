package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT QUIZ COMMAND
// Grades one quiz attempt and credits its XP to the caller's profile.
// A quiz can be submitted once per user.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitQuizCommand contains one quiz attempt.
type SubmitQuizCommand struct {
	Actor

	QuizID         string
	Score          uint8
	TotalQuestions uint8
}

// SubmitQuizResult contains the graded attempt and the updated profile.
type SubmitQuizResult struct {
	Profile   progression.Profile
	Attempt   progression.QuizAttempt
	LeveledUp bool
	Streak    progression.StreakChange
	Events    []shared.Event
}

// SubmitQuizHandler handles the SubmitQuizCommand.
type SubmitQuizHandler struct {
	ledger    progression.Ledger
	clock     shared.Clock
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewSubmitQuizHandler creates a new SubmitQuizHandler.
func NewSubmitQuizHandler(
	ledger progression.Ledger,
	clock shared.Clock,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *SubmitQuizHandler {
	return &SubmitQuizHandler{
		ledger:    ledger,
		clock:     clock,
		publisher: publisher,
		log:       log.With(logger.Component("submit_quiz")),
	}
}

// Handle executes the submit quiz command.
func (h *SubmitQuizHandler) Handle(ctx context.Context, cmd SubmitQuizCommand) (res *SubmitQuizResult, err error) {
	const op = "SubmitQuiz"

	owner, err := cmd.target(op)
	if err != nil {
		return nil, err
	}
	ctx, span := startSpan(ctx, op, owner)
	defer func() { endSpan(span, err) }()

	// Reject a bad score before touching storage
	if _, err := progression.Reward(cmd.Score, cmd.TotalQuestions); err != nil {
		logFailure(h.log, op, err)
		return nil, err
	}

	now := h.clock.Now()
	var out progression.QuizOutcome

	err = h.ledger.WithinTx(ctx, func(ctx context.Context, tx progression.Tx) error {
		profile, err := tx.GetProfileForUpdate(ctx, owner)
		if err != nil {
			return err
		}
		if err := profile.Authorize(op, cmd.Caller); err != nil {
			return err
		}

		out, err = progression.GradeQuiz(*profile, progression.QuizInput{
			QuizID:         cmd.QuizID,
			Score:          cmd.Score,
			TotalQuestions: cmd.TotalQuestions,
		}, now)
		if err != nil {
			return err
		}

		if err := tx.CreateQuizAttempt(ctx, &out.Attempt); err != nil {
			return err
		}
		return tx.UpdateProfile(ctx, &out.Profile)
	})
	if err != nil {
		logFailure(h.log, op, err)
		return nil, fmt.Errorf("submit_quiz: %w", err)
	}

	p, a := out.Profile, out.Attempt
	events := []shared.Event{
		shared.NewQuizCompletedEvent(owner.String(), a.QuizID, a.Score, a.TotalQuestions, a.XPEarned, p.XP, now),
		streakEvent(owner, out.Streak, now),
	}
	if out.LeveledUp() {
		events = append(events, shared.NewLevelUpEvent(owner.String(), out.PreviousLevel, p.Level, p.XP, now))
	}
	events = cmd.stamp(events)

	h.log.Info(fmt.Sprintf("Quiz completed! Score: %d/%d, XP earned: %d", a.Score, a.TotalQuestions, a.XPEarned),
		logger.Owner(owner.String()),
		logger.QuizID(a.QuizID),
		logger.XP(p.XP),
		logger.Uint64("level", p.Level),
		logger.Uint64("streak", p.Streak),
	)
	publish(ctx, h.publisher, h.log, events)

	return &SubmitQuizResult{
		Profile:   p,
		Attempt:   a,
		LeveledUp: out.LeveledUp(),
		Streak:    out.Streak,
		Events:    events,
	}, nil
}
