// Package progression is the reward and state-transition engine of the ledger.
//
// It owns three record types and the rules that move them forward:
//
//   - Profile: one per owner, carrying XP, the derived level, the activity
//     streak and the completion counters.
//   - QuizAttempt: append-only, at most one per (owner, quiz_id).
//   - Achievement: append-only, at most one per (owner, achievement_id).
//
// # Rules
//
// Every transition is a pure function from the current Profile and the
// call's input to a new Profile plus, where applicable, the record to append:
//
//	InitializeProfile(owner, name, now)            -> Profile
//	GradeQuiz(profile, input, now)                 -> QuizOutcome
//	AwardAchievement(profile, input, policy, now)  -> AwardOutcome
//	UpdateStreak(profile, now)                     -> StreakOutcome
//
// The input Profile is never modified, so a failed call leaves nothing to
// roll back in memory. Counter increments are checked and fail with
// ErrCounterOverflow instead of wrapping.
//
// # Storage
//
// The package does no I/O. Ledger, Tx and Reader describe what a host must
// provide: one atomic transaction per call, create-if-absent records keyed by
// RecordKey, and reads for the query side. Hosts live in
// internal/infrastructure/persistence.
package progression
