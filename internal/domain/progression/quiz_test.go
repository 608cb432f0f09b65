package progression

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newProfile(t *testing.T) Profile {
	t.Helper()
	p, err := InitializeProfile("alice-key", "alice", t0)
	require.NoError(t, err)
	return *p
}

func TestReward(t *testing.T) {
	tests := []struct {
		score, total uint8
		want         uint64
	}{
		{8, 10, 80},
		{10, 10, 150},
		{0, 10, 0},
		{0, 0, 50},
		{255, 255, 2600},
		{254, 255, 2540},
	}
	for _, tt := range tests {
		got, err := Reward(tt.score, tt.total)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "score %d/%d", tt.score, tt.total)
	}
}

func TestReward_InvalidScore(t *testing.T) {
	_, err := Reward(11, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidScore)
	assert.True(t, shared.IsValidation(err))
}

func TestGradeQuiz_UpdatesProfile(t *testing.T) {
	p := newProfile(t)

	out, err := GradeQuiz(p, QuizInput{QuizID: "q1", Score: 8, TotalQuestions: 10}, t0.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, uint64(80), out.Attempt.XPEarned)
	assert.Equal(t, uint64(80), out.Profile.XP)
	assert.Equal(t, uint64(1), out.Profile.Level)
	assert.Equal(t, uint64(1), out.Profile.QuizzesCompleted)
	assert.Equal(t, uint64(1), out.Profile.Streak)
	assert.Equal(t, t0.Add(time.Minute), out.Profile.LastActive)
	assert.Equal(t, t0.Add(time.Minute), out.Attempt.CompletedAt)
	assert.Equal(t, shared.Owner("alice-key"), out.Attempt.User)
	assert.False(t, out.LeveledUp())

	// input is a value; the caller's copy stays untouched
	assert.Equal(t, uint64(0), p.XP)
}

func TestGradeQuiz_InvalidScoreLeavesProfile(t *testing.T) {
	p := newProfile(t)
	_, err := GradeQuiz(p, QuizInput{QuizID: "q1", Score: 5, TotalQuestions: 4}, t0)
	assert.ErrorIs(t, err, ErrInvalidScore)
	assert.Equal(t, newProfile(t), p)
}

func TestGradeQuiz_QuizIDBounds(t *testing.T) {
	p := newProfile(t)

	out, err := GradeQuiz(p, QuizInput{QuizID: "", Score: 1, TotalQuestions: 1}, t0)
	require.NoError(t, err)
	assert.Empty(t, out.Attempt.QuizID)

	long := make([]byte, MaxQuizIDLen+1)
	for i := range long {
		long[i] = 'q'
	}
	_, err = GradeQuiz(p, QuizInput{QuizID: string(long), Score: 1, TotalQuestions: 1}, t0)
	assert.ErrorIs(t, err, ErrFieldTooLong)
	assert.True(t, shared.IsValidation(err))

	_, err = GradeQuiz(p, QuizInput{QuizID: string(long[:MaxQuizIDLen]), Score: 1, TotalQuestions: 1}, t0)
	assert.NoError(t, err)
}

func TestGradeQuiz_StreakUsesPriorLastActive(t *testing.T) {
	p := newProfile(t)

	out, err := GradeQuiz(p, QuizInput{QuizID: "q1", Score: 1, TotalQuestions: 2}, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), out.Profile.Streak)
	assert.False(t, out.Streak.Reset)

	out, err = GradeQuiz(out.Profile, QuizInput{QuizID: "q2", Score: 1, TotalQuestions: 2}, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), out.Profile.Streak)

	out, err = GradeQuiz(out.Profile, QuizInput{QuizID: "q3", Score: 1, TotalQuestions: 2}, t0.Add(2*time.Hour+StreakWindow+time.Second))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), out.Profile.Streak)
	assert.True(t, out.Streak.Reset)
	assert.Equal(t, uint64(2), out.Streak.Previous)
}

func TestGradeQuiz_Overflow(t *testing.T) {
	p := newProfile(t)
	p.XP = math.MaxUint64 - 10

	_, err := GradeQuiz(p, QuizInput{QuizID: "q1", Score: 10, TotalQuestions: 10}, t0)
	assert.ErrorIs(t, err, ErrCounterOverflow)
	assert.True(t, shared.IsOverflow(err))

	p = newProfile(t)
	p.QuizzesCompleted = math.MaxUint64
	_, err = GradeQuiz(p, QuizInput{QuizID: "q1", Score: 0, TotalQuestions: 1}, t0)
	assert.ErrorIs(t, err, ErrCounterOverflow)
}

func TestGradeQuiz_LevelTracksXP(t *testing.T) {
	p := newProfile(t)
	now := t0
	for i := 0; i < 30; i++ {
		now = now.Add(time.Minute)
		out, err := GradeQuiz(p, QuizInput{QuizID: string(rune('a' + i)), Score: uint8(i % 11), TotalQuestions: 10}, now)
		require.NoError(t, err)
		p = out.Profile
		assert.Equal(t, p.XP/100+1, p.Level)
	}
}

func TestAliceScenario(t *testing.T) {
	p := newProfile(t)
	assert.Equal(t, uint64(0), p.XP)
	assert.Equal(t, uint64(1), p.Level)
	assert.Equal(t, uint64(0), p.Streak)

	q1, err := GradeQuiz(p, QuizInput{QuizID: "q1", Score: 8, TotalQuestions: 10}, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, uint64(80), q1.Attempt.XPEarned)
	assert.Equal(t, uint64(80), q1.Profile.XP)
	assert.Equal(t, uint64(1), q1.Profile.Level)
	assert.Equal(t, uint64(1), q1.Profile.QuizzesCompleted)

	q2, err := GradeQuiz(q1.Profile, QuizInput{QuizID: "q2", Score: 10, TotalQuestions: 10}, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, uint64(150), q2.Attempt.XPEarned)
	assert.Equal(t, uint64(230), q2.Profile.XP)
	assert.Equal(t, uint64(3), q2.Profile.Level)
	assert.True(t, q2.LeveledUp())

	award, err := AwardAchievement(q2.Profile, AchievementInput{
		AchievementID:   "first_perfect",
		AchievementName: "First Perfect",
		Tier:            TierGold,
	}, LevelPolicyQuizOnly, t0.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, uint64(430), award.Profile.XP)
	assert.Equal(t, uint64(1), award.Profile.AchievementsEarned)
	assert.Equal(t, uint64(3), award.Profile.Level)

	q3, err := GradeQuiz(award.Profile, QuizInput{QuizID: "q3", Score: 0, TotalQuestions: 5}, t0.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), q3.Profile.Level)
}
