package progression

import (
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

// Reward constants.
const (
	XPPerCorrectAnswer = 10
	PerfectScoreBonus  = 50
)

// QuizAttempt is an immutable record of one graded quiz.
type QuizAttempt struct {
	User           shared.Owner
	QuizID         string
	Score          uint8
	TotalQuestions uint8
	XPEarned       uint64
	CompletedAt    time.Time
}

// Key returns the attempt's storage key.
func (a *QuizAttempt) Key() uuid.UUID {
	return QuizAttemptKey(a.User, a.QuizID)
}

// IsPerfect reports whether every question was answered correctly.
// 0 of 0 counts as perfect.
func (a *QuizAttempt) IsPerfect() bool {
	return a.Score == a.TotalQuestions
}

// Reward computes the XP for a score: 10 per correct answer plus 50 for a
// perfect score. It fails with ErrInvalidScore when score > total.
func Reward(score, total uint8) (uint64, error) {
	if score > total {
		return 0, NewInvalidScoreError(score, total)
	}
	xp := uint64(score) * XPPerCorrectAnswer
	if score == total {
		xp += PerfectScoreBonus
	}
	return xp, nil
}

// QuizInput is the payload of a quiz submission.
type QuizInput struct {
	QuizID         string
	Score          uint8
	TotalQuestions uint8
}

// QuizOutcome is the result of GradeQuiz.
type QuizOutcome struct {
	Profile       Profile
	Attempt       QuizAttempt
	PreviousLevel uint64
	Streak        StreakChange
}

// LeveledUp reports whether the submission raised the level.
func (o QuizOutcome) LeveledUp() bool {
	return o.Profile.Level > o.PreviousLevel
}

// GradeQuiz validates a submission, computes its reward and returns the
// updated profile together with the attempt to append. Update order: xp,
// quizzes_completed, streak (against the prior last_active), last_active,
// level.
func GradeQuiz(p Profile, in QuizInput, now time.Time) (QuizOutcome, error) {
	const op = "GradeQuiz"

	earned, err := Reward(in.Score, in.TotalQuestions)
	if err != nil {
		return QuizOutcome{}, err
	}
	quizID, err := shared.BoundedText(domainName, op, "quiz_id", in.QuizID, MaxQuizIDLen, kindFieldTooLong)
	if err != nil {
		return QuizOutcome{}, err
	}

	now = now.Truncate(time.Second)
	prior := p.LastActive
	previousLevel := p.Level

	if p.XP, err = addCounter(op, "xp", p.XP, earned); err != nil {
		return QuizOutcome{}, err
	}
	if p.QuizzesCompleted, err = incCounter(op, "quizzes_completed", p.QuizzesCompleted); err != nil {
		return QuizOutcome{}, err
	}
	change, err := nextStreak(op, p.Streak, prior, now)
	if err != nil {
		return QuizOutcome{}, err
	}
	p.Streak = change.Current
	p.LastActive = touch(prior, now)
	p.Level = LevelFor(p.XP)

	return QuizOutcome{
		Profile: p,
		Attempt: QuizAttempt{
			User:           p.Owner,
			QuizID:         quizID,
			Score:          in.Score,
			TotalQuestions: in.TotalQuestions,
			XPEarned:       earned,
			CompletedAt:    now,
		},
		PreviousLevel: previousLevel,
		Streak:        change,
	}, nil
}
