package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrOwnerEmpty is returned when an entry has no owner.
	ErrOwnerEmpty = errors.New("leaderboard_cache: owner cannot be empty")

	// ErrOwnerNotInLeaderboard is returned when the owner has no entry.
	ErrOwnerNotInLeaderboard = errors.New("leaderboard_cache: owner not in leaderboard")

	// ErrInvalidLimit is returned when a non-positive limit is provided.
	ErrInvalidLimit = errors.New("leaderboard_cache: invalid limit")
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD ENTRY STRUCTURE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardEntry is one ranked row.
type LeaderboardEntry = progression.LeaderboardEntry

// LeaderboardMeta describes the last full rebuild.
type LeaderboardMeta struct {
	RebuiltAt time.Time `json:"rebuilt_at"`
	Entries   int       `json:"entries"`
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache ranks owners by XP.
//
// Layout:
//   - Sorted Set "ledger:leaderboard:xp" stores owner -> XP
//   - Hash "ledger:leaderboard:names" stores owner -> display name
//   - Hash "ledger:leaderboard:levels" stores owner -> level
//   - String "ledger:leaderboard:meta" stores the last rebuild
//
// Scores are float64, so XP totals above 2^53 lose precision in ordering.
// The rebuild job restores exact values from the ledger host.
type LeaderboardCache struct {
	cache *Cache
}

var _ progression.LeaderboardCache = (*LeaderboardCache)(nil)

const (
	keyLeaderboardXP     = PrefixLeaderboard + "xp"
	keyLeaderboardNames  = PrefixLeaderboard + "names"
	keyLeaderboardLevels = PrefixLeaderboard + "levels"
	keyLeaderboardMeta   = PrefixLeaderboard + "meta"
)

// NewLeaderboardCache creates a LeaderboardCache.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache}
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Register adds an owner with its display name, XP and level.
func (l *LeaderboardCache) Register(ctx context.Context, owner, displayName string, xp, level uint64) error {
	if owner == "" {
		return ErrOwnerEmpty
	}

	pipe := l.cache.Client().TxPipeline()
	pipe.HSet(ctx, keyLeaderboardNames, owner, displayName)
	pipe.HSet(ctx, keyLeaderboardLevels, owner, strconv.FormatUint(level, 10))
	pipe.ZAddGT(ctx, keyLeaderboardXP, redis.Z{Score: float64(xp), Member: owner})

	_, err := pipe.Exec(ctx)
	return err
}

// UpdateXP records a new XP total. XP never decreases, so a late or
// duplicated update cannot lower the score.
func (l *LeaderboardCache) UpdateXP(ctx context.Context, owner string, xp uint64) error {
	if owner == "" {
		return ErrOwnerEmpty
	}

	return l.cache.Client().ZAddGT(ctx, keyLeaderboardXP, redis.Z{
		Score:  float64(xp),
		Member: owner,
	}).Err()
}

// SetLevel records an owner's level.
func (l *LeaderboardCache) SetLevel(ctx context.Context, owner string, level uint64) error {
	if owner == "" {
		return ErrOwnerEmpty
	}

	return l.cache.Client().HSet(ctx, keyLeaderboardLevels, owner, strconv.FormatUint(level, 10)).Err()
}

// Rebuild replaces the whole leaderboard in one MULTI/EXEC.
func (l *LeaderboardCache) Rebuild(ctx context.Context, entries []LeaderboardEntry, at time.Time) error {
	pipe := l.cache.Client().TxPipeline()
	pipe.Del(ctx, keyLeaderboardXP, keyLeaderboardNames, keyLeaderboardLevels)

	members := make([]redis.Z, 0, len(entries))
	names := make(map[string]interface{}, len(entries))
	levels := make(map[string]interface{}, len(entries))
	for _, e := range entries {
		if e.Owner == "" {
			continue
		}
		members = append(members, redis.Z{Score: float64(e.XP), Member: e.Owner})
		names[e.Owner] = e.DisplayName
		levels[e.Owner] = strconv.FormatUint(e.Level, 10)
	}

	if len(members) > 0 {
		pipe.ZAdd(ctx, keyLeaderboardXP, members...)
		pipe.HSet(ctx, keyLeaderboardNames, names)
		pipe.HSet(ctx, keyLeaderboardLevels, levels)
	}

	meta, err := json.Marshal(LeaderboardMeta{RebuiltAt: at.UTC(), Entries: len(members)})
	if err != nil {
		return err
	}
	pipe.Set(ctx, keyLeaderboardMeta, meta, 0)

	_, err = pipe.Exec(ctx)
	return err
}

// Remove drops an owner from the leaderboard.
func (l *LeaderboardCache) Remove(ctx context.Context, owner string) error {
	if owner == "" {
		return ErrOwnerEmpty
	}

	pipe := l.cache.Client().TxPipeline()
	pipe.ZRem(ctx, keyLeaderboardXP, owner)
	pipe.HDel(ctx, keyLeaderboardNames, owner)
	pipe.HDel(ctx, keyLeaderboardLevels, owner)

	_, err := pipe.Exec(ctx)
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// READ OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Top returns the first limit entries, highest XP first.
func (l *LeaderboardCache) Top(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	scored, err := l.cache.Client().ZRevRangeWithScores(ctx, keyLeaderboardXP, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return []LeaderboardEntry{}, nil
	}

	owners := make([]string, len(scored))
	for i, z := range scored {
		owners[i], _ = z.Member.(string)
	}

	pipe := l.cache.Client().Pipeline()
	namesCmd := pipe.HMGet(ctx, keyLeaderboardNames, owners...)
	levelsCmd := pipe.HMGet(ctx, keyLeaderboardLevels, owners...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	names, levels := namesCmd.Val(), levelsCmd.Val()

	entries := make([]LeaderboardEntry, len(scored))
	for i, z := range scored {
		name, _ := names[i].(string)
		entries[i] = LeaderboardEntry{
			Owner:       owners[i],
			DisplayName: name,
			XP:          uint64(z.Score),
			Level:       parseLevel(levels[i]),
		}
	}

	return rankEntries(entries), nil
}

// Rank returns the 1-based position of an owner.
func (l *LeaderboardCache) Rank(ctx context.Context, owner string) (int64, error) {
	if owner == "" {
		return 0, ErrOwnerEmpty
	}

	// ZRevRank is 0-based with the highest score at 0
	rank, err := l.cache.Client().ZRevRank(ctx, keyLeaderboardXP, owner).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrOwnerNotInLeaderboard
		}
		return 0, err
	}

	return rank + 1, nil
}

// Count returns the number of ranked owners.
func (l *LeaderboardCache) Count(ctx context.Context) (int64, error) {
	return l.cache.Client().ZCard(ctx, keyLeaderboardXP).Result()
}

// Exists reports whether the leaderboard has been populated.
func (l *LeaderboardCache) Exists(ctx context.Context) (bool, error) {
	n, err := l.cache.Client().Exists(ctx, keyLeaderboardXP, keyLeaderboardMeta).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Meta returns the last rebuild record.
func (l *LeaderboardCache) Meta(ctx context.Context) (*LeaderboardMeta, error) {
	var meta LeaderboardMeta
	if err := l.cache.Get(ctx, keyLeaderboardMeta, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

// parseLevel reads a stored level. A missing value reads as level 1.
func parseLevel(v interface{}) uint64 {
	s, _ := v.(string)
	level, err := strconv.ParseUint(s, 10, 64)
	if err != nil || level == 0 {
		return 1
	}
	return level
}

// rankEntries orders entries by XP desc then owner asc and numbers them.
// Redis breaks score ties by member descending, the ledger host by owner
// ascending; sorting here keeps both sources consistent.
func rankEntries(entries []LeaderboardEntry) []LeaderboardEntry {
	return progression.RankEntries(entries)
}
