// Package command contains write operations (CQRS - Commands).
//
// Each handler runs exactly one ledger transaction: read the caller's
// profile, apply a progression rule, write the result back. Domain events
// are published only after the transaction has committed.
package command

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/pkg/logger"
)

var tracer = otel.Tracer("github.com/alem-hub/progression-ledger/internal/application/command")

// Actor identifies who is calling and on whose profile.
type Actor struct {
	// Caller is the authenticated identity. Required.
	Caller shared.Owner

	// Owner is the profile being acted on. Empty means the caller's own.
	Owner shared.Owner

	// CorrelationID for tracing.
	CorrelationID string
}

// target returns the profile owner the call may touch. Acting on someone
// else's profile is refused.
func (a Actor) target(op string) (shared.Owner, error) {
	if a.Caller.IsEmpty() {
		return "", shared.NewDomainError("command", op, shared.ErrUnauthorized, "caller identity is required")
	}
	if !a.Caller.IsValid() {
		return "", shared.NewDomainError("command", op, shared.ErrInvalidInput, "caller identity is invalid")
	}
	if !a.Owner.IsEmpty() && a.Owner != a.Caller {
		return "", progression.NewAccessDeniedError(op, a.Caller, a.Owner)
	}
	return a.Caller, nil
}

func (a Actor) stamp(events []shared.Event) []shared.Event {
	if a.CorrelationID == "" {
		return events
	}
	out := make([]shared.Event, 0, len(events))
	for _, e := range events {
		out = append(out, withCorrelation(e, a.CorrelationID))
	}
	return out
}

func withCorrelation(e shared.Event, id string) shared.Event {
	switch ev := e.(type) {
	case shared.ProfileInitializedEvent:
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(id)
		return ev
	case shared.QuizCompletedEvent:
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(id)
		return ev
	case shared.LevelUpEvent:
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(id)
		return ev
	case shared.AchievementUnlockedEvent:
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(id)
		return ev
	case shared.StreakUpdatedEvent:
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(id)
		return ev
	case shared.StreakResetEvent:
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(id)
		return ev
	default:
		return e
	}
}

// streakEvent turns a streak change into its event.
func streakEvent(owner shared.Owner, change progression.StreakChange, at time.Time) shared.Event {
	if change.Reset {
		return shared.NewStreakResetEvent(owner.String(), change.Previous, change.Gap, at)
	}
	return shared.NewStreakUpdatedEvent(owner.String(), change.Current, at)
}

// publish delivers events after commit. Delivery failures are logged and do
// not fail the call: the ledger is already updated.
func publish(ctx context.Context, pub shared.EventPublisher, log *logger.Logger, events []shared.Event) {
	if pub == nil {
		return
	}
	for _, e := range events {
		if err := pub.Publish(e); err != nil {
			log.Warn("event publish failed",
				logger.EventType(string(e.EventType())),
				logger.Owner(e.AggregateID()),
				logger.Err(err),
			)
		}
	}
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(attribute.Int("ledger.events", len(events)))
	}
}

// startSpan opens the operation span.
func startSpan(ctx context.Context, op string, owner shared.Owner) (context.Context, trace.Span) {
	return tracer.Start(ctx, "command."+op, trace.WithAttributes(
		attribute.String("ledger.operation", op),
		attribute.String("ledger.owner", owner.String()),
	))
}

// endSpan records err on the span and closes it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// logFailure logs at Warn for caller mistakes and Error for everything else.
func logFailure(log *logger.Logger, op string, err error) {
	if isCallerError(err) {
		log.Warn(op+" rejected", logger.Operation(op), logger.Err(err))
		return
	}
	log.Error(op+" failed", logger.Operation(op), logger.Err(err))
}

func isCallerError(err error) bool {
	return shared.IsValidation(err) ||
		shared.IsNotFound(err) ||
		shared.IsAlreadyExists(err) ||
		shared.IsForbidden(err) ||
		shared.IsUnauthorized(err) ||
		shared.IsOverflow(err) ||
		errors.Is(err, context.Canceled)
}
