package progression

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierBonus(t *testing.T) {
	want := map[Tier]uint64{
		TierBronze:   50,
		TierSilver:   100,
		TierGold:     200,
		TierPlatinum: 500,
	}
	for _, tier := range Tiers() {
		assert.Equal(t, want[tier], tier.Bonus(), tier.String())
	}
	assert.False(t, Tier(4).IsValid())
	assert.Equal(t, uint64(0), Tier(4).Bonus())
}

func TestParseTier(t *testing.T) {
	for _, name := range []string{"Bronze", "silver", "GOLD", " Platinum "} {
		tier, err := ParseTier(name)
		require.NoError(t, err, name)
		assert.Equal(t, strings.ToLower(strings.TrimSpace(name)), strings.ToLower(tier.String()))
	}

	_, err := ParseTier("diamond")
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestTier_JSON(t *testing.T) {
	var body struct {
		Tier Tier `json:"tier"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"tier":"gold"}`), &body))
	assert.Equal(t, TierGold, body.Tier)

	out, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tier":"Gold"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"tier":"wood"}`), &body))
}

func TestAwardAchievement_BonusPerTier(t *testing.T) {
	for _, tier := range Tiers() {
		p := newProfile(t)
		p.XP, p.Level = 90, 1

		out, err := AwardAchievement(p, AchievementInput{
			AchievementID:   "a-" + tier.String(),
			AchievementName: tier.String() + " badge",
			Tier:            tier,
		}, LevelPolicyQuizOnly, t0.Add(time.Hour))
		require.NoError(t, err)

		assert.Equal(t, 90+tier.Bonus(), out.Profile.XP)
		assert.Equal(t, tier.Bonus(), out.Bonus)
		assert.Equal(t, uint64(1), out.Profile.AchievementsEarned)
		assert.Equal(t, uint64(1), out.Profile.Level, "level is not recomputed on award")
		assert.Equal(t, p.Streak, out.Profile.Streak)
		assert.Equal(t, p.LastActive, out.Profile.LastActive)
		assert.Equal(t, t0.Add(time.Hour), out.Achievement.AwardedAt)
		assert.False(t, out.LeveledUp())
	}
}

func TestAwardAchievement_LevelPolicyAlways(t *testing.T) {
	p := newProfile(t)
	p.XP = 90

	out, err := AwardAchievement(p, AchievementInput{AchievementID: "a", AchievementName: "A", Tier: TierPlatinum}, LevelPolicyAlways, t0)
	require.NoError(t, err)
	assert.Equal(t, uint64(590), out.Profile.XP)
	assert.Equal(t, uint64(6), out.Profile.Level)
	assert.True(t, out.LeveledUp())
}

func TestAwardAchievement_Validation(t *testing.T) {
	p := newProfile(t)

	_, err := AwardAchievement(p, AchievementInput{AchievementID: "a", AchievementName: "A", Tier: Tier(9)}, LevelPolicyQuizOnly, t0)
	assert.ErrorIs(t, err, ErrUnknownTier)

	_, err = AwardAchievement(p, AchievementInput{AchievementID: "a", AchievementName: strings.Repeat("n", MaxAchievementNameLen+1), Tier: TierGold}, LevelPolicyQuizOnly, t0)
	assert.ErrorIs(t, err, ErrFieldTooLong)

	_, err = AwardAchievement(p, AchievementInput{AchievementID: strings.Repeat("i", MaxAchievementIDLen+1), AchievementName: "A", Tier: TierGold}, LevelPolicyQuizOnly, t0)
	assert.ErrorIs(t, err, ErrFieldTooLong)

	out, err := AwardAchievement(p, AchievementInput{Tier: TierGold}, LevelPolicyQuizOnly, t0)
	require.NoError(t, err)
	assert.Empty(t, out.Achievement.AchievementID)
	assert.Empty(t, out.Achievement.AchievementName)
}

func TestAwardAchievement_Overflow(t *testing.T) {
	p := newProfile(t)
	p.XP = math.MaxUint64 - 49

	_, err := AwardAchievement(p, AchievementInput{AchievementID: "a", AchievementName: "A", Tier: TierBronze}, LevelPolicyQuizOnly, t0)
	assert.ErrorIs(t, err, ErrCounterOverflow)
}
