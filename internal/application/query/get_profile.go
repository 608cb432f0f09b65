package query

import (
	"context"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROFILE QUERY
// Reads the caller's profile, cache-aside: a hit is served from the profile
// cache, a miss is loaded from the ledger host and written back.
// ══════════════════════════════════════════════════════════════════════════════

// GetProfileQuery contains the read parameters.
type GetProfileQuery struct {
	Viewer
}

// GetProfileResult contains the profile and where it came from.
type GetProfileResult struct {
	Profile progression.Profile

	// NextLevelXP is the XP total at which the next level is reached.
	NextLevelXP uint64

	// FromCache is true when the profile cache answered.
	FromCache bool
}

// GetProfileHandler handles GetProfileQuery.
type GetProfileHandler struct {
	reader progression.Reader
	cache  progression.ProfileCache
	log    *logger.Logger
}

// NewGetProfileHandler creates a new GetProfileHandler. cache may be nil.
func NewGetProfileHandler(reader progression.Reader, cache progression.ProfileCache, log *logger.Logger) *GetProfileHandler {
	return &GetProfileHandler{
		reader: reader,
		cache:  cache,
		log:    log.With(logger.Component("get_profile")),
	}
}

// Handle executes the query.
func (h *GetProfileHandler) Handle(ctx context.Context, q GetProfileQuery) (*GetProfileResult, error) {
	const op = "GetProfile"

	owner, err := q.target(op)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if p, err := h.cache.Get(ctx, owner); err == nil {
			return newProfileResult(p, true), nil
		}
	}

	p, err := h.reader.GetProfile(ctx, owner)
	if err != nil {
		return nil, err
	}
	if err := p.Authorize(op, q.Caller); err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, p); err != nil {
			h.log.Warn("profile cache write failed", logger.Owner(owner.String()), logger.Err(err))
		}
	}

	return newProfileResult(p, false), nil
}

func newProfileResult(p *progression.Profile, cached bool) *GetProfileResult {
	return &GetProfileResult{
		Profile:     *p,
		NextLevelXP: p.NextLevelXP(),
		FromCache:   cached,
	}
}
