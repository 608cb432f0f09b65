package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alem-hub/progression-ledger/internal/application/query"
	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is the body of every failed response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope wraps APIError as {"error": {...}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Error codes.
const (
	CodeBadRequest    = "bad_request"
	CodeValidation    = "validation_error"
	CodeInvalidScore  = "invalid_score"
	CodeUnauthorized  = "unauthorized"
	CodeAccessDenied  = "access_denied"
	CodeNotFound      = "not_found"
	CodeAlreadyExists = "already_exists"
	CodeOverflow      = "counter_overflow"
	CodeRateLimited   = "rate_limited"
	CodeUnavailable   = "service_unavailable"
	CodeTimeout       = "timeout"
	CodeInternal      = "internal_error"
)

// classify maps an error onto a status and code. Order matters:
// ErrInvalidScore is also a validation error.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, progression.ErrInvalidScore):
		return http.StatusUnprocessableEntity, CodeInvalidScore
	case shared.IsOverflow(err):
		return http.StatusUnprocessableEntity, CodeOverflow
	case shared.IsUnauthorized(err):
		return http.StatusUnauthorized, CodeUnauthorized
	case shared.IsForbidden(err):
		return http.StatusForbidden, CodeAccessDenied
	case shared.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, CodeAlreadyExists
	case shared.IsValidation(err):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests, CodeRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable
	}
	return http.StatusInternalServerError, CodeInternal
}

// respondError writes err as an error envelope. Internal errors are logged
// and their message is not exposed.
func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		requestLogger(c).Error("request failed", logger.Err(err))
		msg = "an unexpected error occurred"
	}
	abortWith(c, status, code, msg)
}

func abortWith(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Code: code, Message: msg}})
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE BODIES
// ══════════════════════════════════════════════════════════════════════════════

type profileResponse struct {
	Owner              string    `json:"owner"`
	DisplayName        string    `json:"display_name"`
	XP                 uint64    `json:"xp"`
	Level              uint64    `json:"level"`
	NextLevelXP        uint64    `json:"next_level_xp"`
	Streak             uint64    `json:"streak"`
	QuizzesCompleted   uint64    `json:"quizzes_completed"`
	AchievementsEarned uint64    `json:"achievements_earned"`
	CreatedAt          time.Time `json:"created_at"`
	LastActive         time.Time `json:"last_active"`
}

func toProfileResponse(p progression.Profile) profileResponse {
	return profileResponse{
		Owner:              p.Owner.String(),
		DisplayName:        p.DisplayName,
		XP:                 p.XP,
		Level:              p.Level,
		NextLevelXP:        p.NextLevelXP(),
		Streak:             p.Streak,
		QuizzesCompleted:   p.QuizzesCompleted,
		AchievementsEarned: p.AchievementsEarned,
		CreatedAt:          p.CreatedAt,
		LastActive:         p.LastActive,
	}
}

type attemptResponse struct {
	QuizID         string    `json:"quiz_id"`
	Score          uint8     `json:"score"`
	TotalQuestions uint8     `json:"total_questions"`
	XPEarned       uint64    `json:"xp_earned"`
	CompletedAt    time.Time `json:"completed_at"`
}

func toAttemptResponse(a progression.QuizAttempt) attemptResponse {
	return attemptResponse{
		QuizID:         a.QuizID,
		Score:          a.Score,
		TotalQuestions: a.TotalQuestions,
		XPEarned:       a.XPEarned,
		CompletedAt:    a.CompletedAt,
	}
}

type achievementResponse struct {
	AchievementID   string           `json:"achievement_id"`
	AchievementName string           `json:"achievement_name"`
	Tier            progression.Tier `json:"tier"`
	AwardedAt       time.Time        `json:"awarded_at"`
}

func toAchievementResponse(a progression.Achievement) achievementResponse {
	return achievementResponse{
		AchievementID:   a.AchievementID,
		AchievementName: a.AchievementName,
		Tier:            a.Tier,
		AwardedAt:       a.AwardedAt,
	}
}

type streakResponse struct {
	Previous uint64 `json:"previous"`
	Current  uint64 `json:"current"`
	Reset    bool   `json:"reset"`
}

func toStreakResponse(s progression.StreakChange) streakResponse {
	return streakResponse{Previous: s.Previous, Current: s.Current, Reset: s.Reset}
}

// pageResponse mirrors query.Page with transport item types.
type pageResponse[T any] struct {
	Items    []T  `json:"items"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
}

func mapPage[S, T any](p *query.Page[S], fn func(S) T) pageResponse[T] {
	items := make([]T, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, fn(it))
	}
	return pageResponse[T]{Items: items, Page: p.Page, PageSize: p.PageSize, HasMore: p.HasMore}
}
