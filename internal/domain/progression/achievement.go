package progression

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TIER
// ══════════════════════════════════════════════════════════════════════════════

// Tier is the rank of an achievement. The set is closed.
type Tier uint8

const (
	TierBronze Tier = iota
	TierSilver
	TierGold
	TierPlatinum
)

var tierNames = [...]string{"Bronze", "Silver", "Gold", "Platinum"}

var tierBonus = [...]uint64{50, 100, 200, 500}

// Tiers lists every tier in ascending order.
func Tiers() []Tier {
	return []Tier{TierBronze, TierSilver, TierGold, TierPlatinum}
}

// IsValid reports whether t is one of the four tiers.
func (t Tier) IsValid() bool {
	return int(t) < len(tierNames)
}

// Bonus is the XP credited when an achievement of this tier is granted.
func (t Tier) Bonus() uint64 {
	if !t.IsValid() {
		return 0
	}
	return tierBonus[t]
}

// String returns the tier name.
func (t Tier) String() string {
	if !t.IsValid() {
		return fmt.Sprintf("Tier(%d)", uint8(t))
	}
	return tierNames[t]
}

// ParseTier accepts a tier name, case-insensitively.
func ParseTier(s string) (Tier, error) {
	s = strings.TrimSpace(s)
	for i, name := range tierNames {
		if strings.EqualFold(s, name) {
			return Tier(i), nil
		}
	}
	return 0, shared.WrapError(domainName, "ParseTier", shared.ErrInvalidInput,
		fmt.Sprintf("unknown tier %q", s), ErrUnknownTier)
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.IsValid() {
		return nil, shared.WrapError(domainName, "MarshalText", shared.ErrInvalidInput, t.String(), ErrUnknownTier)
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL POLICY
// ══════════════════════════════════════════════════════════════════════════════

// LevelPolicy decides whether an achievement bonus recomputes the level.
type LevelPolicy int

const (
	// LevelPolicyQuizOnly leaves the level alone on award; the next graded
	// quiz catches it up.
	LevelPolicyQuizOnly LevelPolicy = iota
	// LevelPolicyAlways recomputes the level on every XP change.
	LevelPolicyAlways
)

func (lp LevelPolicy) String() string {
	if lp == LevelPolicyAlways {
		return "always"
	}
	return "quiz_only"
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Achievement is an immutable record of one granted achievement.
type Achievement struct {
	User            shared.Owner
	AchievementID   string
	AchievementName string
	Tier            Tier
	AwardedAt       time.Time
}

// Key returns the achievement's storage key.
func (a *Achievement) Key() uuid.UUID {
	return AchievementKey(a.User, a.AchievementID)
}

// AchievementInput is the payload of an award.
type AchievementInput struct {
	AchievementID   string
	AchievementName string
	Tier            Tier
}

// AwardOutcome is the result of AwardAchievement.
type AwardOutcome struct {
	Profile       Profile
	Achievement   Achievement
	Bonus         uint64
	PreviousLevel uint64
}

// LeveledUp reports whether the award raised the level.
func (o AwardOutcome) LeveledUp() bool {
	return o.Profile.Level > o.PreviousLevel
}

// AwardAchievement grants an achievement: achievements_earned += 1 and
// xp += tier bonus. Streak and last_active are untouched.
func AwardAchievement(p Profile, in AchievementInput, policy LevelPolicy, now time.Time) (AwardOutcome, error) {
	const op = "AwardAchievement"

	if !in.Tier.IsValid() {
		return AwardOutcome{}, shared.WrapError(domainName, op, shared.ErrInvalidInput, in.Tier.String(), ErrUnknownTier)
	}
	id, err := shared.BoundedText(domainName, op, "achievement_id", in.AchievementID, MaxAchievementIDLen, kindFieldTooLong)
	if err != nil {
		return AwardOutcome{}, err
	}
	name, err := shared.BoundedText(domainName, op, "achievement_name", in.AchievementName, MaxAchievementNameLen, kindFieldTooLong)
	if err != nil {
		return AwardOutcome{}, err
	}

	previousLevel := p.Level
	bonus := in.Tier.Bonus()

	if p.AchievementsEarned, err = incCounter(op, "achievements_earned", p.AchievementsEarned); err != nil {
		return AwardOutcome{}, err
	}
	if p.XP, err = addCounter(op, "xp", p.XP, bonus); err != nil {
		return AwardOutcome{}, err
	}
	if policy == LevelPolicyAlways {
		p.Level = LevelFor(p.XP)
	}

	return AwardOutcome{
		Profile: p,
		Achievement: Achievement{
			User:            p.Owner,
			AchievementID:   id,
			AchievementName: name,
			Tier:            in.Tier,
			AwardedAt:       now.Truncate(time.Second),
		},
		Bonus:         bonus,
		PreviousLevel: previousLevel,
	}, nil
}
