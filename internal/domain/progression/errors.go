package progression

import (
	"errors"
	"fmt"

	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

const domainName = "progression"

// Domain and host errors. Callers match them with errors.Is; every error
// returned by this package and by the hosts also matches one of the shared
// kinds (ErrNotFound, ErrAlreadyExists, ErrValidation family, ErrForbidden,
// ErrOverflow).
var (
	// ErrInvalidScore is the only error the grading rules raise themselves.
	ErrInvalidScore = errors.New("invalid score: score cannot exceed total questions")

	ErrAccessDenied              = errors.New("caller does not own this profile")
	ErrProfileExists             = errors.New("profile already exists")
	ErrProfileNotFound           = errors.New("profile not found")
	ErrQuizAlreadySubmitted      = errors.New("quiz already submitted")
	ErrAchievementAlreadyGranted = errors.New("achievement already granted")
	ErrFieldTooLong              = errors.New("field exceeds maximum length")
	ErrCounterOverflow           = errors.New("counter overflow")
	ErrUnknownTier               = errors.New("unknown achievement tier")
)

// Kinds tie the package sentinels to the shared taxonomy so transports can
// classify errors without importing this package.
var kindFieldTooLong = kindOf(ErrFieldTooLong, shared.ErrTooLong)

type kindError struct {
	sentinel error
	kind     error
}

func kindOf(sentinel, kind error) error { return &kindError{sentinel: sentinel, kind: kind} }

func (k *kindError) Error() string { return k.sentinel.Error() }

func (k *kindError) Is(target error) bool {
	return target == k.sentinel || errors.Is(k.kind, target)
}

// NewInvalidScoreError reports a score above the question count.
func NewInvalidScoreError(score, total uint8) error {
	return shared.WrapError(domainName, "GradeQuiz", shared.ErrValueOutOfRange,
		fmt.Sprintf("score %d exceeds total questions %d", score, total), ErrInvalidScore)
}

// NewAccessDeniedError reports a caller acting on a profile it does not own.
func NewAccessDeniedError(op string, caller, owner shared.Owner) error {
	return shared.WrapError(domainName, op, shared.ErrForbidden,
		fmt.Sprintf("caller %q may not act on profile of %q", caller, owner), ErrAccessDenied)
}

// NewProfileExistsError reports a second initialization for the same owner.
func NewProfileExistsError(op string, owner shared.Owner) error {
	return shared.WrapError(domainName, op, shared.ErrAlreadyExists,
		fmt.Sprintf("profile for %q already exists", owner), ErrProfileExists)
}

// NewProfileNotFoundError reports a missing profile.
func NewProfileNotFoundError(op string, owner shared.Owner) error {
	return shared.WrapError(domainName, op, shared.ErrNotFound,
		fmt.Sprintf("no profile for %q", owner), ErrProfileNotFound)
}

// NewQuizAlreadySubmittedError reports a resubmission of the same quiz.
func NewQuizAlreadySubmittedError(op string, owner shared.Owner, quizID string) error {
	return shared.WrapError(domainName, op, shared.ErrAlreadyExists,
		fmt.Sprintf("quiz %q already submitted by %q", quizID, owner), ErrQuizAlreadySubmitted)
}

// NewQuizAttemptNotFoundError reports a missing quiz attempt.
func NewQuizAttemptNotFoundError(op string, owner shared.Owner, quizID string) error {
	return shared.NewDomainError(domainName, op, shared.ErrNotFound,
		fmt.Sprintf("no attempt of quiz %q by %q", quizID, owner))
}

// NewAchievementAlreadyGrantedError reports a second grant of one achievement.
func NewAchievementAlreadyGrantedError(op string, owner shared.Owner, achievementID string) error {
	return shared.WrapError(domainName, op, shared.ErrAlreadyExists,
		fmt.Sprintf("achievement %q already granted to %q", achievementID, owner), ErrAchievementAlreadyGranted)
}

// NewAchievementNotFoundError reports a missing achievement.
func NewAchievementNotFoundError(op string, owner shared.Owner, achievementID string) error {
	return shared.NewDomainError(domainName, op, shared.ErrNotFound,
		fmt.Sprintf("achievement %q not granted to %q", achievementID, owner))
}

// IsAccessDenied checks if the caller was refused.
func IsAccessDenied(err error) bool { return errors.Is(err, ErrAccessDenied) }
