package progression

import "time"

// StreakWindow is the longest gap between activities that keeps a streak.
const StreakWindow = 86400 * time.Second

// StreakChange describes one application of the streak rule.
type StreakChange struct {
	Previous uint64
	Current  uint64
	Reset    bool
	Gap      time.Duration
}

// nextStreak applies the streak rule: a gap of at most StreakWindow since
// prior extends the streak, a longer gap resets it to 1. prior must be the
// last_active value read before the call mutated anything.
func nextStreak(op string, streak uint64, prior, now time.Time) (StreakChange, error) {
	gap := now.Sub(prior)
	if gap <= StreakWindow {
		next, err := incCounter(op, "streak", streak)
		if err != nil {
			return StreakChange{}, err
		}
		return StreakChange{Previous: streak, Current: next, Gap: gap}, nil
	}
	return StreakChange{Previous: streak, Current: 1, Reset: true, Gap: gap}, nil
}

// touch returns the new last_active. A clock reading behind the stored value
// keeps the stored value so last_active never moves backwards.
func touch(prior, now time.Time) time.Time {
	if now.Before(prior) {
		return prior
	}
	return now
}

// StreakOutcome is the result of UpdateStreak.
type StreakOutcome struct {
	Profile Profile
	Change  StreakChange
}

// UpdateStreak applies the streak rule to a check-in at now.
func UpdateStreak(p Profile, now time.Time) (StreakOutcome, error) {
	now = now.Truncate(time.Second)
	prior := p.LastActive

	change, err := nextStreak("UpdateStreak", p.Streak, prior, now)
	if err != nil {
		return StreakOutcome{}, err
	}

	p.Streak = change.Current
	p.LastActive = touch(prior, now)
	return StreakOutcome{Profile: p, Change: change}, nil
}
