package query

import (
	"context"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// ListAchievementsQuery pages through the caller's achievements, newest first.
type ListAchievementsQuery struct {
	Viewer

	Page     int
	PageSize int
}

// ListAchievementsHandler handles ListAchievementsQuery.
type ListAchievementsHandler struct {
	reader progression.Reader
}

// NewListAchievementsHandler creates a new ListAchievementsHandler.
func NewListAchievementsHandler(reader progression.Reader) *ListAchievementsHandler {
	return &ListAchievementsHandler{reader: reader}
}

// Handle executes the query.
func (h *ListAchievementsHandler) Handle(ctx context.Context, q ListAchievementsQuery) (*Page[progression.Achievement], error) {
	owner, err := q.target("ListAchievements")
	if err != nil {
		return nil, err
	}

	page := shared.NewPagination(q.Page, q.PageSize)
	achievements, err := h.reader.ListAchievements(ctx, owner, page)
	if err != nil {
		return nil, err
	}

	items := make([]progression.Achievement, 0, len(achievements))
	for _, a := range achievements {
		items = append(items, *a)
	}
	out := newPage(items, page)
	return &out, nil
}

// GetAchievementQuery reads one granted achievement.
type GetAchievementQuery struct {
	Viewer

	AchievementID string
}

// GetAchievementHandler handles GetAchievementQuery.
type GetAchievementHandler struct {
	reader progression.Reader
}

// NewGetAchievementHandler creates a new GetAchievementHandler.
func NewGetAchievementHandler(reader progression.Reader) *GetAchievementHandler {
	return &GetAchievementHandler{reader: reader}
}

// Handle executes the query.
func (h *GetAchievementHandler) Handle(ctx context.Context, q GetAchievementQuery) (*progression.Achievement, error) {
	const op = "GetAchievement"

	owner, err := q.target(op)
	if err != nil {
		return nil, err
	}
	if q.AchievementID == "" {
		return nil, shared.NewDomainError("query", op, shared.ErrEmptyValue, "achievement_id is required")
	}

	return h.reader.GetAchievement(ctx, owner, q.AchievementID)
}
