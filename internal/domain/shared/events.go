package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each one is published after the ledger transaction
// that produced it has committed.
const (
	// Profile events
	EventProfileInitialized EventType = "profile.initialized"

	// Progress events
	EventQuizCompleted       EventType = "progress.quiz_completed"
	EventLevelUp             EventType = "progress.level_up"
	EventAchievementUnlocked EventType = "progress.achievement_unlocked"
	EventStreakUpdated       EventType = "progress.streak_updated"
	EventStreakReset         EventType = "progress.streak_reset"

	// System events
	EventLeaderboardRebuilt EventType = "system.leaderboard_rebuilt"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped with the given ledger time.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Profile Events
// ═══════════════════════════════════════════════════════════════════════════

// ProfileInitializedEvent is emitted when a user creates their profile.
type ProfileInitializedEvent struct {
	BaseEvent
	Owner       string `json:"owner"`
	DisplayName string `json:"display_name"`
}

// Payload implements Event interface.
func (e ProfileInitializedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"owner":        e.Owner,
		"display_name": e.DisplayName,
	}
}

// NewProfileInitializedEvent creates a new ProfileInitializedEvent.
func NewProfileInitializedEvent(owner, displayName string, at time.Time) ProfileInitializedEvent {
	return ProfileInitializedEvent{
		BaseEvent:   NewBaseEvent(EventProfileInitialized, owner, at),
		Owner:       owner,
		DisplayName: displayName,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// QuizCompletedEvent is emitted when a quiz attempt is recorded.
type QuizCompletedEvent struct {
	BaseEvent
	Owner          string `json:"owner"`
	QuizID         string `json:"quiz_id"`
	Score          uint8  `json:"score"`
	TotalQuestions uint8  `json:"total_questions"`
	XPEarned       uint64 `json:"xp_earned"`
	NewXP          uint64 `json:"new_xp"`
}

// Payload implements Event interface.
func (e QuizCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"owner":           e.Owner,
		"quiz_id":         e.QuizID,
		"score":           e.Score,
		"total_questions": e.TotalQuestions,
		"xp_earned":       e.XPEarned,
		"new_xp":          e.NewXP,
	}
}

// NewQuizCompletedEvent creates a new QuizCompletedEvent.
func NewQuizCompletedEvent(owner, quizID string, score, total uint8, earned, newXP uint64, at time.Time) QuizCompletedEvent {
	return QuizCompletedEvent{
		BaseEvent:      NewBaseEvent(EventQuizCompleted, owner, at),
		Owner:          owner,
		QuizID:         quizID,
		Score:          score,
		TotalQuestions: total,
		XPEarned:       earned,
		NewXP:          newXP,
	}
}

// IsPerfect reports whether every question was answered correctly.
func (e QuizCompletedEvent) IsPerfect() bool {
	return e.Score == e.TotalQuestions
}

// LevelUpEvent is emitted when a recomputed level is higher than before.
type LevelUpEvent struct {
	BaseEvent
	Owner    string `json:"owner"`
	OldLevel uint64 `json:"old_level"`
	NewLevel uint64 `json:"new_level"`
	XP       uint64 `json:"xp"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"owner":     e.Owner,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
		"xp":        e.XP,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(owner string, oldLevel, newLevel, xp uint64, at time.Time) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, owner, at),
		Owner:     owner,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		XP:        xp,
	}
}

// AchievementUnlockedEvent is emitted when an achievement is granted.
type AchievementUnlockedEvent struct {
	BaseEvent
	Owner           string `json:"owner"`
	AchievementID   string `json:"achievement_id"`
	AchievementName string `json:"achievement_name"`
	Tier            string `json:"tier"`
	BonusXP         uint64 `json:"bonus_xp"`
	NewXP           uint64 `json:"new_xp"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"owner":            e.Owner,
		"achievement_id":   e.AchievementID,
		"achievement_name": e.AchievementName,
		"tier":             e.Tier,
		"bonus_xp":         e.BonusXP,
		"new_xp":           e.NewXP,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(owner, id, name, tier string, bonus, newXP uint64, at time.Time) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:       NewBaseEvent(EventAchievementUnlocked, owner, at),
		Owner:           owner,
		AchievementID:   id,
		AchievementName: name,
		Tier:            tier,
		BonusXP:         bonus,
		NewXP:           newXP,
	}
}

// StreakUpdatedEvent is emitted when the streak counter grows.
type StreakUpdatedEvent struct {
	BaseEvent
	Owner  string `json:"owner"`
	Streak uint64 `json:"streak"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"owner":  e.Owner,
		"streak": e.Streak,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(owner string, streak uint64, at time.Time) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent: NewBaseEvent(EventStreakUpdated, owner, at),
		Owner:     owner,
		Streak:    streak,
	}
}

// StreakResetEvent is emitted when a gap longer than the streak window
// sends the counter back to 1.
type StreakResetEvent struct {
	BaseEvent
	Owner          string        `json:"owner"`
	PreviousStreak uint64        `json:"previous_streak"`
	Gap            time.Duration `json:"gap"`
}

// Payload implements Event interface.
func (e StreakResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"owner":           e.Owner,
		"previous_streak": e.PreviousStreak,
		"gap":             e.Gap.String(),
	}
}

// NewStreakResetEvent creates a new StreakResetEvent.
func NewStreakResetEvent(owner string, previous uint64, gap time.Duration, at time.Time) StreakResetEvent {
	return StreakResetEvent{
		BaseEvent:      NewBaseEvent(EventStreakReset, owner, at),
		Owner:          owner,
		PreviousStreak: previous,
		Gap:            gap,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// LeaderboardRebuiltEvent is emitted after the read-side leaderboard has been
// reloaded from the ledger.
type LeaderboardRebuiltEvent struct {
	BaseEvent
	Entries  int           `json:"entries"`
	Duration time.Duration `json:"duration"`
}

// Payload implements Event interface.
func (e LeaderboardRebuiltEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"entries":  e.Entries,
		"duration": e.Duration.String(),
	}
}

// NewLeaderboardRebuiltEvent creates a new LeaderboardRebuiltEvent.
func NewLeaderboardRebuiltEvent(entries int, took time.Duration, at time.Time) LeaderboardRebuiltEvent {
	return LeaderboardRebuiltEvent{
		BaseEvent: NewBaseEvent(EventLeaderboardRebuilt, "leaderboard", at),
		Entries:   entries,
		Duration:  took,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEventEnvelope serializes an event's payload into an envelope.
func NewEventEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	env := EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if b, ok := event.(interface{ Base() BaseEvent }); ok {
		env.Version = b.Base().Version
		env.CorrelationID = b.Base().CorrelationID
	}
	return env, nil
}

// Base returns the embedded base event.
func (e BaseEvent) Base() BaseEvent {
	return e
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
