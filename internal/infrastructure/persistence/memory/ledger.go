// Package memory is an in-process ledger host. Transactions hold a single
// writer lock and stage writes in an overlay that is merged on commit and
// dropped on error.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

// Ledger implements progression.Host in memory.
type Ledger struct {
	mu           sync.RWMutex
	profiles     map[uuid.UUID]progression.Profile
	attempts     map[uuid.UUID]progression.QuizAttempt
	achievements map[uuid.UUID]progression.Achievement

	// per-owner key lists in insertion order
	attemptsByOwner     map[shared.Owner][]uuid.UUID
	achievementsByOwner map[shared.Owner][]uuid.UUID
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		profiles:            make(map[uuid.UUID]progression.Profile),
		attempts:            make(map[uuid.UUID]progression.QuizAttempt),
		achievements:        make(map[uuid.UUID]progression.Achievement),
		attemptsByOwner:     make(map[shared.Owner][]uuid.UUID),
		achievementsByOwner: make(map[shared.Owner][]uuid.UUID),
	}
}

var _ progression.Host = (*Ledger)(nil)

// WithinTx implements progression.Ledger.
func (l *Ledger) WithinTx(ctx context.Context, fn func(ctx context.Context, tx progression.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &memTx{
		base:         l,
		profiles:     make(map[uuid.UUID]progression.Profile),
		attempts:     make(map[uuid.UUID]progression.QuizAttempt),
		achievements: make(map[uuid.UUID]progression.Achievement),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	// a cancelled context must not commit
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// Ping implements progression.Host.
func (l *Ledger) Ping(ctx context.Context) error { return ctx.Err() }

// Close implements progression.Host.
func (l *Ledger) Close() error { return nil }

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

type memTx struct {
	base *Ledger

	profiles     map[uuid.UUID]progression.Profile
	attempts     map[uuid.UUID]progression.QuizAttempt
	attemptOrder []uuid.UUID
	achievements map[uuid.UUID]progression.Achievement
	achOrder     []uuid.UUID
}

func (t *memTx) profile(key uuid.UUID) (progression.Profile, bool) {
	if p, ok := t.profiles[key]; ok {
		return p, true
	}
	p, ok := t.base.profiles[key]
	return p, ok
}

func (t *memTx) CreateProfile(_ context.Context, p *progression.Profile) error {
	key := p.Key()
	if _, ok := t.profile(key); ok {
		return progression.NewProfileExistsError("CreateProfile", p.Owner)
	}
	t.profiles[key] = *p
	return nil
}

func (t *memTx) GetProfileForUpdate(_ context.Context, owner shared.Owner) (*progression.Profile, error) {
	p, ok := t.profile(progression.ProfileKey(owner))
	if !ok {
		return nil, progression.NewProfileNotFoundError("GetProfileForUpdate", owner)
	}
	return &p, nil
}

func (t *memTx) UpdateProfile(_ context.Context, p *progression.Profile) error {
	key := p.Key()
	stored, ok := t.profile(key)
	if !ok {
		return progression.NewProfileNotFoundError("UpdateProfile", p.Owner)
	}
	// owner, display name and created_at are immutable
	next := *p
	next.Owner, next.DisplayName, next.CreatedAt = stored.Owner, stored.DisplayName, stored.CreatedAt
	t.profiles[key] = next
	return nil
}

func (t *memTx) CreateQuizAttempt(_ context.Context, a *progression.QuizAttempt) error {
	key := a.Key()
	if _, ok := t.attempts[key]; ok {
		return progression.NewQuizAlreadySubmittedError("CreateQuizAttempt", a.User, a.QuizID)
	}
	if _, ok := t.base.attempts[key]; ok {
		return progression.NewQuizAlreadySubmittedError("CreateQuizAttempt", a.User, a.QuizID)
	}
	t.attempts[key] = *a
	t.attemptOrder = append(t.attemptOrder, key)
	return nil
}

func (t *memTx) CreateAchievement(_ context.Context, a *progression.Achievement) error {
	key := a.Key()
	if _, ok := t.achievements[key]; ok {
		return progression.NewAchievementAlreadyGrantedError("CreateAchievement", a.User, a.AchievementID)
	}
	if _, ok := t.base.achievements[key]; ok {
		return progression.NewAchievementAlreadyGrantedError("CreateAchievement", a.User, a.AchievementID)
	}
	t.achievements[key] = *a
	t.achOrder = append(t.achOrder, key)
	return nil
}

func (t *memTx) commit() {
	b := t.base
	for k, p := range t.profiles {
		b.profiles[k] = p
	}
	for _, k := range t.attemptOrder {
		a := t.attempts[k]
		b.attempts[k] = a
		b.attemptsByOwner[a.User] = append(b.attemptsByOwner[a.User], k)
	}
	for _, k := range t.achOrder {
		a := t.achievements[k]
		b.achievements[k] = a
		b.achievementsByOwner[a.User] = append(b.achievementsByOwner[a.User], k)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// READER
// ══════════════════════════════════════════════════════════════════════════════

// GetProfile implements progression.Reader.
func (l *Ledger) GetProfile(ctx context.Context, owner shared.Owner) (*progression.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.profiles[progression.ProfileKey(owner)]
	if !ok {
		return nil, progression.NewProfileNotFoundError("GetProfile", owner)
	}
	return &p, nil
}

// GetQuizAttempt implements progression.Reader.
func (l *Ledger) GetQuizAttempt(ctx context.Context, owner shared.Owner, quizID string) (*progression.QuizAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.attempts[progression.QuizAttemptKey(owner, quizID)]
	if !ok {
		return nil, progression.NewQuizAttemptNotFoundError("GetQuizAttempt", owner, quizID)
	}
	return &a, nil
}

// ListQuizAttempts implements progression.Reader.
func (l *Ledger) ListQuizAttempts(ctx context.Context, owner shared.Owner, page shared.Pagination) ([]*progression.QuizAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	keys := l.attemptsByOwner[owner]
	out := make([]*progression.QuizAttempt, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		a := l.attempts[keys[i]]
		out = append(out, &a)
	}
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	return paginate(out, page), nil
}

// GetAchievement implements progression.Reader.
func (l *Ledger) GetAchievement(ctx context.Context, owner shared.Owner, achievementID string) (*progression.Achievement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.achievements[progression.AchievementKey(owner, achievementID)]
	if !ok {
		return nil, progression.NewAchievementNotFoundError("GetAchievement", owner, achievementID)
	}
	return &a, nil
}

// ListAchievements implements progression.Reader.
func (l *Ledger) ListAchievements(ctx context.Context, owner shared.Owner, page shared.Pagination) ([]*progression.Achievement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	keys := l.achievementsByOwner[owner]
	out := make([]*progression.Achievement, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		a := l.achievements[keys[i]]
		out = append(out, &a)
	}
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].AwardedAt.After(out[j].AwardedAt) })
	return paginate(out, page), nil
}

// TopProfiles implements progression.Reader.
func (l *Ledger) TopProfiles(ctx context.Context, limit int) ([]*progression.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	out := make([]*progression.Profile, 0, len(l.profiles))
	for _, p := range l.profiles {
		p := p
		out = append(out, &p)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].XP != out[j].XP {
			return out[i].XP > out[j].XP
		}
		return out[i].Owner < out[j].Owner
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func paginate[T any](items []T, page shared.Pagination) []T {
	off := page.Offset()
	if off >= len(items) {
		return []T{}
	}
	end := off + page.Limit()
	if end > len(items) {
		end = len(items)
	}
	return items[off:end]
}
