package query

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Returns the top profiles by XP. The Redis ranking answers when it exists;
// otherwise the ledger host is read directly.
// ══════════════════════════════════════════════════════════════════════════════

// Leaderboard sources.
const (
	SourceCache  = "cache"
	SourceLedger = "ledger"
)

// DefaultLeaderboardLimit and MaxLeaderboardLimit bound GetLeaderboardQuery.Limit.
const (
	DefaultLeaderboardLimit = 20
	MaxLeaderboardLimit     = 100
)

// GetLeaderboardQuery contains the read parameters.
type GetLeaderboardQuery struct {
	// Limit is the number of entries (default 20, max 100).
	Limit int
}

// Validate checks and normalizes the parameters.
func (q *GetLeaderboardQuery) Validate() error {
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = DefaultLeaderboardLimit
	}
	if q.Limit > MaxLeaderboardLimit {
		q.Limit = MaxLeaderboardLimit
	}
	return nil
}

// GetLeaderboardResult contains the ranked entries.
type GetLeaderboardResult struct {
	Entries     []progression.LeaderboardEntry `json:"entries"`
	Source      string                         `json:"source"`
	GeneratedAt time.Time                      `json:"generated_at"`
}

// GetLeaderboardHandler handles GetLeaderboardQuery.
type GetLeaderboardHandler struct {
	reader progression.Reader
	cache  progression.LeaderboardCache
	clock  shared.Clock
	log    *logger.Logger
}

// NewGetLeaderboardHandler creates a new GetLeaderboardHandler. cache may be nil.
func NewGetLeaderboardHandler(
	reader progression.Reader,
	cache progression.LeaderboardCache,
	clock shared.Clock,
	log *logger.Logger,
) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{
		reader: reader,
		cache:  cache,
		clock:  clock,
		log:    log.With(logger.Component("get_leaderboard")),
	}
}

// Handle executes the query.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrValidation, err.Error(), err)
	}

	if entries, ok := h.tryGetFromCache(ctx, q.Limit); ok {
		return h.buildResult(entries, SourceCache), nil
	}

	profiles, err := h.reader.TopProfiles(ctx, q.Limit)
	if err != nil {
		return nil, err
	}
	return h.buildResult(progression.RankProfiles(profiles), SourceLedger), nil
}

// tryGetFromCache reads the cached ranking. A missing or failing cache is
// not an error for the caller.
func (h *GetLeaderboardHandler) tryGetFromCache(ctx context.Context, limit int) ([]progression.LeaderboardEntry, bool) {
	if h.cache == nil {
		return nil, false
	}

	exists, err := h.cache.Exists(ctx)
	if err != nil {
		h.log.Warn("leaderboard cache unavailable", logger.Err(err))
		return nil, false
	}
	if !exists {
		return nil, false
	}

	entries, err := h.cache.Top(ctx, limit)
	if err != nil {
		h.log.Warn("leaderboard cache read failed", logger.Err(err))
		return nil, false
	}
	return entries, true
}

func (h *GetLeaderboardHandler) buildResult(entries []progression.LeaderboardEntry, source string) *GetLeaderboardResult {
	if entries == nil {
		entries = []progression.LeaderboardEntry{}
	}
	return &GetLeaderboardResult{
		Entries:     entries,
		Source:      source,
		GeneratedAt: h.clock.Now(),
	}
}
