package progression

import (
	"context"

	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HOST PORTS
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Ledger runs one atomic unit of work. If fn returns an error every write made
// through tx is discarded; otherwise all of them commit together. Calls for
// the same owner are serialized by the host.
type Ledger interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write side available inside WithinTx.
type Tx interface {
	// CreateProfile inserts p. Returns ErrProfileExists if the owner has one.
	CreateProfile(ctx context.Context, p *Profile) error

	// GetProfileForUpdate loads the owner's profile and holds it for the rest
	// of the transaction. Returns ErrProfileNotFound if there is none.
	GetProfileForUpdate(ctx context.Context, owner shared.Owner) (*Profile, error)

	// UpdateProfile overwrites the mutable counters of an existing profile.
	UpdateProfile(ctx context.Context, p *Profile) error

	// CreateQuizAttempt appends a. Returns ErrQuizAlreadySubmitted on a
	// duplicate (user, quiz_id).
	CreateQuizAttempt(ctx context.Context, a *QuizAttempt) error

	// CreateAchievement appends a. Returns ErrAchievementAlreadyGranted on a
	// duplicate (user, achievement_id).
	CreateAchievement(ctx context.Context, a *Achievement) error
}

// Reader is the read side used by queries.
type Reader interface {
	GetProfile(ctx context.Context, owner shared.Owner) (*Profile, error)
	GetQuizAttempt(ctx context.Context, owner shared.Owner, quizID string) (*QuizAttempt, error)
	// ListQuizAttempts returns attempts newest first.
	ListQuizAttempts(ctx context.Context, owner shared.Owner, page shared.Pagination) ([]*QuizAttempt, error)
	GetAchievement(ctx context.Context, owner shared.Owner, achievementID string) (*Achievement, error)
	// ListAchievements returns achievements newest first.
	ListAchievements(ctx context.Context, owner shared.Owner, page shared.Pagination) ([]*Achievement, error)
	// TopProfiles returns profiles by XP descending, ties broken by owner.
	TopProfiles(ctx context.Context, limit int) ([]*Profile, error)
}

// Host is a complete ledger host.
type Host interface {
	Ledger
	Reader
	Ping(ctx context.Context) error
	Close() error
}
