// Package persistence holds helpers shared by the SQL ledger hosts.
// Counters are unsigned in the domain and signed 64-bit in SQL, so every
// value crossing the boundary is range-checked.
package persistence

import (
	"fmt"
	"math"
	"time"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

const domainName = "persistence"

// Int64 converts a counter for storage. Values above math.MaxInt64 do not
// fit a SQL BIGINT and fail with ErrCounterOverflow.
func Int64(op, field string, v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, shared.WrapError(domainName, op, shared.ErrOverflow,
			fmt.Sprintf("%s %d exceeds storage range", field, v), progression.ErrCounterOverflow)
	}
	return int64(v), nil
}

// Uint64 converts a stored counter back. A negative value means the row is
// corrupt.
func Uint64(op, field string, v int64) (uint64, error) {
	if v < 0 {
		return 0, shared.NewDomainError(domainName, op, shared.ErrValidation,
			fmt.Sprintf("stored %s is negative", field))
	}
	return uint64(v), nil
}

// Unix stores a ledger time as unix seconds.
func Unix(t time.Time) int64 {
	return t.Unix()
}

// FromUnix loads unix seconds as a UTC time.
func FromUnix(s int64) time.Time {
	return time.Unix(s, 0).UTC()
}

// ProfileRow is the storage shape of a profile.
type ProfileRow struct {
	Key                string
	Owner              string
	DisplayName        string
	XP                 int64
	Level              int64
	Streak             int64
	QuizzesCompleted   int64
	AchievementsEarned int64
	CreatedAt          int64
	LastActive         int64
}

// NewProfileRow converts p for storage.
func NewProfileRow(op string, p *progression.Profile) (ProfileRow, error) {
	row := ProfileRow{
		Key:         p.Key().String(),
		Owner:       p.Owner.String(),
		DisplayName: p.DisplayName,
		CreatedAt:   Unix(p.CreatedAt),
		LastActive:  Unix(p.LastActive),
	}
	var err error
	if row.XP, err = Int64(op, "xp", p.XP); err != nil {
		return row, err
	}
	if row.Level, err = Int64(op, "level", p.Level); err != nil {
		return row, err
	}
	if row.Streak, err = Int64(op, "streak", p.Streak); err != nil {
		return row, err
	}
	if row.QuizzesCompleted, err = Int64(op, "quizzes_completed", p.QuizzesCompleted); err != nil {
		return row, err
	}
	if row.AchievementsEarned, err = Int64(op, "achievements_earned", p.AchievementsEarned); err != nil {
		return row, err
	}
	return row, nil
}

// Profile converts a stored row back and validates it.
func (r ProfileRow) Profile(op string) (*progression.Profile, error) {
	p := &progression.Profile{
		Owner:       shared.Owner(r.Owner),
		DisplayName: r.DisplayName,
		CreatedAt:   FromUnix(r.CreatedAt),
		LastActive:  FromUnix(r.LastActive),
	}
	var err error
	if p.XP, err = Uint64(op, "xp", r.XP); err != nil {
		return nil, err
	}
	if p.Level, err = Uint64(op, "level", r.Level); err != nil {
		return nil, err
	}
	if p.Streak, err = Uint64(op, "streak", r.Streak); err != nil {
		return nil, err
	}
	if p.QuizzesCompleted, err = Uint64(op, "quizzes_completed", r.QuizzesCompleted); err != nil {
		return nil, err
	}
	if p.AchievementsEarned, err = Uint64(op, "achievements_earned", r.AchievementsEarned); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// AttemptRow is the storage shape of a quiz attempt.
type AttemptRow struct {
	Key            string
	User           string
	QuizID         string
	Score          int64
	TotalQuestions int64
	XPEarned       int64
	CompletedAt    int64
}

// NewAttemptRow converts a for storage.
func NewAttemptRow(op string, a *progression.QuizAttempt) (AttemptRow, error) {
	xp, err := Int64(op, "xp_earned", a.XPEarned)
	if err != nil {
		return AttemptRow{}, err
	}
	return AttemptRow{
		Key:            a.Key().String(),
		User:           a.User.String(),
		QuizID:         a.QuizID,
		Score:          int64(a.Score),
		TotalQuestions: int64(a.TotalQuestions),
		XPEarned:       xp,
		CompletedAt:    Unix(a.CompletedAt),
	}, nil
}

// Attempt converts a stored row back.
func (r AttemptRow) Attempt(op string) (*progression.QuizAttempt, error) {
	if r.Score < 0 || r.Score > math.MaxUint8 || r.TotalQuestions < 0 || r.TotalQuestions > math.MaxUint8 {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "stored score out of range")
	}
	xp, err := Uint64(op, "xp_earned", r.XPEarned)
	if err != nil {
		return nil, err
	}
	return &progression.QuizAttempt{
		User:           shared.Owner(r.User),
		QuizID:         r.QuizID,
		Score:          uint8(r.Score),
		TotalQuestions: uint8(r.TotalQuestions),
		XPEarned:       xp,
		CompletedAt:    FromUnix(r.CompletedAt),
	}, nil
}

// AchievementRow is the storage shape of an achievement. Tier is stored by
// name so the column stays readable.
type AchievementRow struct {
	Key             string
	User            string
	AchievementID   string
	AchievementName string
	Tier            string
	AwardedAt       int64
}

// NewAchievementRow converts a for storage.
func NewAchievementRow(a *progression.Achievement) AchievementRow {
	return AchievementRow{
		Key:             a.Key().String(),
		User:            a.User.String(),
		AchievementID:   a.AchievementID,
		AchievementName: a.AchievementName,
		Tier:            a.Tier.String(),
		AwardedAt:       Unix(a.AwardedAt),
	}
}

// Achievement converts a stored row back.
func (r AchievementRow) Achievement() (*progression.Achievement, error) {
	tier, err := progression.ParseTier(r.Tier)
	if err != nil {
		return nil, err
	}
	return &progression.Achievement{
		User:            shared.Owner(r.User),
		AchievementID:   r.AchievementID,
		AchievementName: r.AchievementName,
		Tier:            tier,
		AwardedAt:       FromUnix(r.AwardedAt),
	}, nil
}
