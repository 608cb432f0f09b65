package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

// ProfileCache stores cache-aside copies of profiles.
type ProfileCache struct {
	cache *Cache
	ttl   time.Duration
}

var _ progression.ProfileCache = (*ProfileCache)(nil)

// NewProfileCache creates a ProfileCache. A non-positive ttl selects
// TTLProfileCache.
func NewProfileCache(cache *Cache, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = TTLProfileCache
	}
	return &ProfileCache{cache: cache, ttl: ttl}
}

// cachedProfile is the JSON shape of a cached profile.
type cachedProfile struct {
	Owner              string `json:"owner"`
	DisplayName        string `json:"display_name"`
	XP                 uint64 `json:"xp"`
	Level              uint64 `json:"level"`
	Streak             uint64 `json:"streak"`
	QuizzesCompleted   uint64 `json:"quizzes_completed"`
	AchievementsEarned uint64 `json:"achievements_earned"`
	CreatedAt          int64  `json:"created_at"`
	LastActive         int64  `json:"last_active"`
}

func toCached(p *progression.Profile) cachedProfile {
	return cachedProfile{
		Owner:              p.Owner.String(),
		DisplayName:        p.DisplayName,
		XP:                 p.XP,
		Level:              p.Level,
		Streak:             p.Streak,
		QuizzesCompleted:   p.QuizzesCompleted,
		AchievementsEarned: p.AchievementsEarned,
		CreatedAt:          p.CreatedAt.Unix(),
		LastActive:         p.LastActive.Unix(),
	}
}

func (c cachedProfile) toDomain() *progression.Profile {
	return &progression.Profile{
		Owner:              shared.Owner(c.Owner),
		DisplayName:        c.DisplayName,
		XP:                 c.XP,
		Level:              c.Level,
		Streak:             c.Streak,
		QuizzesCompleted:   c.QuizzesCompleted,
		AchievementsEarned: c.AchievementsEarned,
		CreatedAt:          time.Unix(c.CreatedAt, 0).UTC(),
		LastActive:         time.Unix(c.LastActive, 0).UTC(),
	}
}

// Get returns a cached profile or ErrCacheMiss.
func (s *ProfileCache) Get(ctx context.Context, owner shared.Owner) (*progression.Profile, error) {
	var c cachedProfile
	if err := s.cache.Get(ctx, ProfileKey(owner.String()), &c); err != nil {
		return nil, err
	}
	p := c.toDomain()
	if err := p.Validate(); err != nil {
		// Treat a corrupt entry as a miss so the caller reloads it
		_ = s.cache.Delete(ctx, ProfileKey(owner.String()))
		return nil, errors.Join(ErrCacheMiss, err)
	}
	return p, nil
}

// Set stores a profile.
func (s *ProfileCache) Set(ctx context.Context, p *progression.Profile) error {
	if p == nil {
		return ErrCacheNilValue
	}
	return s.cache.Set(ctx, ProfileKey(p.Owner.String()), toCached(p), s.ttl)
}

// Invalidate removes an owner's cached profile.
func (s *ProfileCache) Invalidate(ctx context.Context, owner string) error {
	return s.cache.Delete(ctx, ProfileKey(owner))
}
