// Package hosttest is the behavioural contract every ledger host must pass.
// Host packages call Run from their own tests with a constructor for a
// fresh, empty host.
package hosttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

// Opener returns an empty host. It should register its own cleanup.
type Opener func(t *testing.T) progression.Host

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var errAbort = errors.New("abort")

// Run executes the contract against hosts produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("create and read profile", func(t *testing.T) { testCreateProfile(t, open(t)) })
	t.Run("duplicate profile", func(t *testing.T) { testDuplicateProfile(t, open(t)) })
	t.Run("missing profile", func(t *testing.T) { testMissingProfile(t, open(t)) })
	t.Run("update keeps immutable fields", func(t *testing.T) { testUpdateImmutable(t, open(t)) })
	t.Run("failed unit of work rolls back", func(t *testing.T) { testRollback(t, open(t)) })
	t.Run("cancelled context does not commit", func(t *testing.T) { testCancelled(t, open(t)) })
	t.Run("quiz attempts", func(t *testing.T) { testQuizAttempts(t, open(t)) })
	t.Run("achievements", func(t *testing.T) { testAchievements(t, open(t)) })
	t.Run("top profiles", func(t *testing.T) { testTopProfiles(t, open(t)) })
	t.Run("ping", func(t *testing.T) { require.NoError(t, open(t).Ping(context.Background())) })
}

func seed(t *testing.T, h progression.Host, owner, name string) *progression.Profile {
	t.Helper()
	p, err := progression.InitializeProfile(shared.Owner(owner), name, t0)
	require.NoError(t, err)
	require.NoError(t, h.WithinTx(context.Background(), func(ctx context.Context, tx progression.Tx) error {
		return tx.CreateProfile(ctx, p)
	}))
	return p
}

func testCreateProfile(t *testing.T, h progression.Host) {
	want := seed(t, h, "alice-key", "alice")

	got, err := h.GetProfile(context.Background(), "alice-key")
	require.NoError(t, err)
	assert.Equal(t, *want, *got)
	assert.Equal(t, uint64(1), got.Level)
	assert.True(t, got.CreatedAt.Equal(t0))
}

func testDuplicateProfile(t *testing.T, h progression.Host) {
	seed(t, h, "alice-key", "alice")

	p, err := progression.InitializeProfile("alice-key", "other", t0.Add(time.Hour))
	require.NoError(t, err)
	err = h.WithinTx(context.Background(), func(ctx context.Context, tx progression.Tx) error {
		return tx.CreateProfile(ctx, p)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, progression.ErrProfileExists)
	assert.True(t, shared.IsAlreadyExists(err))

	got, err := h.GetProfile(context.Background(), "alice-key")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.DisplayName)
}

func testMissingProfile(t *testing.T, h progression.Host) {
	_, err := h.GetProfile(context.Background(), "nobody")
	assert.ErrorIs(t, err, progression.ErrProfileNotFound)
	assert.True(t, shared.IsNotFound(err))

	err = h.WithinTx(context.Background(), func(ctx context.Context, tx progression.Tx) error {
		_, err := tx.GetProfileForUpdate(ctx, "nobody")
		return err
	})
	assert.ErrorIs(t, err, progression.ErrProfileNotFound)
}

func testUpdateImmutable(t *testing.T, h progression.Host) {
	seed(t, h, "alice-key", "alice")

	err := h.WithinTx(context.Background(), func(ctx context.Context, tx progression.Tx) error {
		p, err := tx.GetProfileForUpdate(ctx, "alice-key")
		if err != nil {
			return err
		}
		p.DisplayName = "mallory"
		p.CreatedAt = t0.Add(-time.Hour)
		p.XP = 80
		p.Level = 1
		p.Streak = 1
		p.QuizzesCompleted = 1
		p.LastActive = t0.Add(time.Minute)
		return tx.UpdateProfile(ctx, p)
	})
	require.NoError(t, err)

	got, err := h.GetProfile(context.Background(), "alice-key")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.DisplayName)
	assert.True(t, got.CreatedAt.Equal(t0))
	assert.Equal(t, uint64(80), got.XP)
	assert.Equal(t, uint64(1), got.QuizzesCompleted)
	assert.True(t, got.LastActive.Equal(t0.Add(time.Minute)))
}

func testRollback(t *testing.T, h progression.Host) {
	seed(t, h, "alice-key", "alice")

	err := h.WithinTx(context.Background(), func(ctx context.Context, tx progression.Tx) error {
		p, err := tx.GetProfileForUpdate(ctx, "alice-key")
		if err != nil {
			return err
		}
		out, err := progression.GradeQuiz(*p, progression.QuizInput{QuizID: "q1", Score: 3, TotalQuestions: 5}, t0.Add(time.Hour))
		if err != nil {
			return err
		}
		if err := tx.CreateQuizAttempt(ctx, &out.Attempt); err != nil {
			return err
		}
		if err := tx.UpdateProfile(ctx, &out.Profile); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	got, err := h.GetProfile(context.Background(), "alice-key")
	require.NoError(t, err)
	assert.Zero(t, got.XP)
	assert.Zero(t, got.QuizzesCompleted)

	_, err = h.GetQuizAttempt(context.Background(), "alice-key", "q1")
	assert.True(t, shared.IsNotFound(err))
}

func testCancelled(t *testing.T, h progression.Host) {
	seed(t, h, "alice-key", "alice")

	ctx, cancel := context.WithCancel(context.Background())
	err := h.WithinTx(ctx, func(ctx context.Context, tx progression.Tx) error {
		p, err := tx.GetProfileForUpdate(ctx, "alice-key")
		if err != nil {
			return err
		}
		p.XP = 999
		if err := tx.UpdateProfile(ctx, p); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.Error(t, err)

	got, err := h.GetProfile(context.Background(), "alice-key")
	require.NoError(t, err)
	assert.Zero(t, got.XP)
}

func createAttempt(ctx context.Context, h progression.Host, a progression.QuizAttempt) error {
	return h.WithinTx(ctx, func(ctx context.Context, tx progression.Tx) error {
		return tx.CreateQuizAttempt(ctx, &a)
	})
}

func testQuizAttempts(t *testing.T, h progression.Host) {
	ctx := context.Background()
	seed(t, h, "alice-key", "alice")

	attempts := []progression.QuizAttempt{
		{User: "alice-key", QuizID: "q1", Score: 3, TotalQuestions: 5, XPEarned: 30, CompletedAt: t0},
		{User: "alice-key", QuizID: "q2", Score: 10, TotalQuestions: 10, XPEarned: 150, CompletedAt: t0.Add(time.Hour)},
		// same second as q2: insertion order breaks the tie
		{User: "alice-key", QuizID: "q3", Score: 0, TotalQuestions: 5, XPEarned: 0, CompletedAt: t0.Add(time.Hour)},
	}
	for _, a := range attempts {
		require.NoError(t, createAttempt(ctx, h, a))
	}

	err := createAttempt(ctx, h, attempts[0])
	assert.ErrorIs(t, err, progression.ErrQuizAlreadySubmitted)
	assert.True(t, shared.IsAlreadyExists(err))

	// Another owner may take the same quiz
	seed(t, h, "bob-key", "bob")
	require.NoError(t, createAttempt(ctx, h, progression.QuizAttempt{
		User: "bob-key", QuizID: "q1", Score: 1, TotalQuestions: 1, XPEarned: 60, CompletedAt: t0,
	}))

	got, err := h.GetQuizAttempt(ctx, "alice-key", "q2")
	require.NoError(t, err)
	assert.Equal(t, attempts[1], *got)

	_, err = h.GetQuizAttempt(ctx, "alice-key", "q9")
	assert.True(t, shared.IsNotFound(err))

	list, err := h.ListQuizAttempts(ctx, "alice-key", shared.NewPagination(1, 10))
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "q3", list[0].QuizID)
	assert.Equal(t, "q2", list[1].QuizID)
	assert.Equal(t, "q1", list[2].QuizID)

	page2, err := h.ListQuizAttempts(ctx, "alice-key", shared.NewPagination(2, 2))
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "q1", page2[0].QuizID)

	empty, err := h.ListQuizAttempts(ctx, "nobody", shared.DefaultPagination())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testAchievements(t *testing.T, h progression.Host) {
	ctx := context.Background()
	seed(t, h, "alice-key", "alice")

	create := func(a progression.Achievement) error {
		return h.WithinTx(ctx, func(ctx context.Context, tx progression.Tx) error {
			return tx.CreateAchievement(ctx, &a)
		})
	}

	first := progression.Achievement{User: "alice-key", AchievementID: "first-steps", AchievementName: "First Steps", Tier: progression.TierBronze, AwardedAt: t0}
	gold := progression.Achievement{User: "alice-key", AchievementID: "quiz-master", AchievementName: "Quiz Master", Tier: progression.TierGold, AwardedAt: t0.Add(time.Minute)}
	require.NoError(t, create(first))
	require.NoError(t, create(gold))

	err := create(first)
	assert.ErrorIs(t, err, progression.ErrAchievementAlreadyGranted)

	got, err := h.GetAchievement(ctx, "alice-key", "quiz-master")
	require.NoError(t, err)
	assert.Equal(t, gold, *got)

	_, err = h.GetAchievement(ctx, "alice-key", "nope")
	assert.True(t, shared.IsNotFound(err))

	list, err := h.ListAchievements(ctx, "alice-key", shared.DefaultPagination())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "quiz-master", list[0].AchievementID)
	assert.Equal(t, progression.TierGold, list[0].Tier)
}

func testTopProfiles(t *testing.T, h progression.Host) {
	ctx := context.Background()
	for _, owner := range []string{"carol", "alice", "bob"} {
		seed(t, h, owner, owner)
	}
	setXP := func(owner string, xp uint64) {
		require.NoError(t, h.WithinTx(ctx, func(ctx context.Context, tx progression.Tx) error {
			p, err := tx.GetProfileForUpdate(ctx, shared.Owner(owner))
			if err != nil {
				return err
			}
			p.XP, p.Level = xp, progression.LevelFor(xp)
			return tx.UpdateProfile(ctx, p)
		}))
	}
	setXP("carol", 100)
	setXP("alice", 100)
	setXP("bob", 300)

	top, err := h.TopProfiles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, shared.Owner("bob"), top[0].Owner)
	assert.Equal(t, shared.Owner("alice"), top[1].Owner)
	assert.Equal(t, shared.Owner("carol"), top[2].Owner)

	top, err = h.TopProfiles(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, uint64(300), top[0].XP)
}
