package progression

import (
	"context"
	"sort"
	"time"

	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

// LeaderboardEntry is one ranked row of the XP leaderboard.
type LeaderboardEntry struct {
	Owner       string `json:"owner"`
	DisplayName string `json:"display_name"`
	XP          uint64 `json:"xp"`
	Level       uint64 `json:"level"`

	// Rank is the 1-based position.
	Rank int64 `json:"rank"`
}

// RankProfiles converts profiles into leaderboard entries ordered by XP
// descending, ties broken by owner ascending.
func RankProfiles(profiles []*Profile) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(profiles))
	for _, p := range profiles {
		if p == nil {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			Owner:       p.Owner.String(),
			DisplayName: p.DisplayName,
			XP:          p.XP,
			Level:       p.Level,
		})
	}
	return RankEntries(entries)
}

// RankEntries sorts entries in place and numbers them from 1.
func RankEntries(entries []LeaderboardEntry) []LeaderboardEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].XP != entries[j].XP {
			return entries[i].XP > entries[j].XP
		}
		return entries[i].Owner < entries[j].Owner
	})
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	return entries
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE PORTS
// Read-side caches. The ledger host stays the source of truth; a cache may
// lag behind it or be missing entirely.
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache is a materialized XP ranking.
type LeaderboardCache interface {
	Register(ctx context.Context, owner, displayName string, xp, level uint64) error
	// UpdateXP never lowers a stored score.
	UpdateXP(ctx context.Context, owner string, xp uint64) error
	SetLevel(ctx context.Context, owner string, level uint64) error
	Rebuild(ctx context.Context, entries []LeaderboardEntry, at time.Time) error
	Top(ctx context.Context, limit int) ([]LeaderboardEntry, error)
	Exists(ctx context.Context) (bool, error)
}

// ProfileCache holds cache-aside copies of profiles.
type ProfileCache interface {
	Get(ctx context.Context, owner shared.Owner) (*Profile, error)
	Set(ctx context.Context, p *Profile) error
	Invalidate(ctx context.Context, owner string) error
}
