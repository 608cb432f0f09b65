package progression

import (
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIMITS
// ══════════════════════════════════════════════════════════════════════════════

// Text bounds in UTF-8 bytes.
const (
	MaxDisplayNameLen     = 32
	MaxQuizIDLen          = 64
	MaxAchievementIDLen   = 64
	MaxAchievementNameLen = 128
)

// XPPerLevel is the XP span of one level.
const XPPerLevel = 100

// LevelFor derives the level from XP: xp/100 + 1.
func LevelFor(xp uint64) uint64 {
	return xp/XPPerLevel + 1
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Profile is a user's progression record. Timestamps have second resolution.
type Profile struct {
	Owner              shared.Owner
	DisplayName        string
	XP                 uint64
	Level              uint64
	Streak             uint64
	QuizzesCompleted   uint64
	AchievementsEarned uint64
	CreatedAt          time.Time
	LastActive         time.Time
}

// Key returns the profile's storage key.
func (p *Profile) Key() uuid.UUID {
	return ProfileKey(p.Owner)
}

// NextLevelXP is the XP total at which the next level begins.
func (p *Profile) NextLevelXP() uint64 {
	return p.Level * XPPerLevel
}

// Authorize fails with ErrAccessDenied unless caller owns the profile.
func (p *Profile) Authorize(op string, caller shared.Owner) error {
	if p.Owner != caller {
		return NewAccessDeniedError(op, caller, p.Owner)
	}
	return nil
}

// Validate checks the stored invariants. Hosts call it on load so a corrupt
// row never reaches the rules.
func (p *Profile) Validate() error {
	if !p.Owner.IsValid() {
		return shared.NewDomainError(domainName, "Validate", shared.ErrValidation, "profile owner is invalid")
	}
	if p.LastActive.Before(p.CreatedAt) {
		return shared.NewDomainError(domainName, "Validate", shared.ErrValidation, "last_active precedes created_at")
	}
	return nil
}

// InitializeProfile creates a profile with zeroed counters at level 1.
func InitializeProfile(owner shared.Owner, displayName string, now time.Time) (*Profile, error) {
	const op = "InitializeProfile"

	if !owner.IsValid() {
		return nil, shared.NewDomainError(domainName, op, shared.ErrInvalidInput, "owner identity is invalid")
	}
	name, err := shared.BoundedText(domainName, op, "display_name", displayName, MaxDisplayNameLen, kindFieldTooLong)
	if err != nil {
		return nil, err
	}

	now = now.Truncate(time.Second)
	return &Profile{
		Owner:       owner,
		DisplayName: name,
		Level:       LevelFor(0),
		CreatedAt:   now,
		LastActive:  now,
	}, nil
}
