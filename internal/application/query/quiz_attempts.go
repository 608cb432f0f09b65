package query

import (
	"context"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUIZ ATTEMPT QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// ListQuizAttemptsQuery pages through the caller's attempts, newest first.
type ListQuizAttemptsQuery struct {
	Viewer

	Page     int
	PageSize int
}

// ListQuizAttemptsHandler handles ListQuizAttemptsQuery.
type ListQuizAttemptsHandler struct {
	reader progression.Reader
}

// NewListQuizAttemptsHandler creates a new ListQuizAttemptsHandler.
func NewListQuizAttemptsHandler(reader progression.Reader) *ListQuizAttemptsHandler {
	return &ListQuizAttemptsHandler{reader: reader}
}

// Handle executes the query.
func (h *ListQuizAttemptsHandler) Handle(ctx context.Context, q ListQuizAttemptsQuery) (*Page[progression.QuizAttempt], error) {
	owner, err := q.target("ListQuizAttempts")
	if err != nil {
		return nil, err
	}

	page := shared.NewPagination(q.Page, q.PageSize)
	attempts, err := h.reader.ListQuizAttempts(ctx, owner, page)
	if err != nil {
		return nil, err
	}

	items := make([]progression.QuizAttempt, 0, len(attempts))
	for _, a := range attempts {
		items = append(items, *a)
	}
	out := newPage(items, page)
	return &out, nil
}

// GetQuizAttemptQuery reads one attempt.
type GetQuizAttemptQuery struct {
	Viewer

	QuizID string
}

// GetQuizAttemptHandler handles GetQuizAttemptQuery.
type GetQuizAttemptHandler struct {
	reader progression.Reader
}

// NewGetQuizAttemptHandler creates a new GetQuizAttemptHandler.
func NewGetQuizAttemptHandler(reader progression.Reader) *GetQuizAttemptHandler {
	return &GetQuizAttemptHandler{reader: reader}
}

// Handle executes the query.
func (h *GetQuizAttemptHandler) Handle(ctx context.Context, q GetQuizAttemptQuery) (*progression.QuizAttempt, error) {
	const op = "GetQuizAttempt"

	owner, err := q.target(op)
	if err != nil {
		return nil, err
	}
	if q.QuizID == "" {
		return nil, shared.NewDomainError("query", op, shared.ErrEmptyValue, "quiz_id is required")
	}

	return h.reader.GetQuizAttempt(ctx, owner, q.QuizID)
}
