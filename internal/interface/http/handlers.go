package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/alem-hub/progression-ledger/internal/application/command"
	"github.com/alem-hub/progression-ledger/internal/application/query"
	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

// LeaderboardRebuilder reloads the cached leaderboard on demand.
type LeaderboardRebuilder interface {
	Run(ctx context.Context) error
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST BODIES
// ══════════════════════════════════════════════════════════════════════════════

type initializeProfileRequest struct {
	DisplayName string `json:"display_name"`
}

type submitQuizRequest struct {
	Score          *uint8 `json:"score" binding:"required"`
	TotalQuestions *uint8 `json:"total_questions" binding:"required"`
}

type awardAchievementRequest struct {
	AchievementID   string            `json:"achievement_id"`
	AchievementName string            `json:"achievement_name"`
	Tier            *progression.Tier `json:"tier" binding:"required"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) actor(c *gin.Context) command.Actor {
	caller, _ := callerFrom(c)
	return command.Actor{Caller: caller, CorrelationID: c.GetString(ctxKeyRequestID)}
}

func (s *Server) viewer(c *gin.Context) query.Viewer {
	caller, _ := callerFrom(c)
	return query.Viewer{Caller: caller}
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		abortWith(c, http.StatusBadRequest, CodeBadRequest, "malformed request body: "+err.Error())
		return false
	}
	return true
}

// intParam reads a non-negative integer query parameter; absent means 0.
func intParam(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		abortWith(c, http.StatusBadRequest, CodeBadRequest, key+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func pageParams(c *gin.Context) (page, size int, ok bool) {
	if page, ok = intParam(c, "page"); !ok {
		return 0, 0, false
	}
	if size, ok = intParam(c, "page_size"); !ok {
		return 0, 0, false
	}
	return page, size, true
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleInitializeProfile(c *gin.Context) {
	var req initializeProfileRequest
	if !bind(c, &req) {
		return
	}

	res, err := s.deps.InitializeProfile.Handle(c.Request.Context(), command.InitializeProfileCommand{
		Actor:       s.actor(c),
		DisplayName: req.DisplayName,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toProfileResponse(res.Profile))
}

func (s *Server) handleGetProfile(c *gin.Context) {
	res, err := s.deps.GetProfile.Handle(c.Request.Context(), query.GetProfileQuery{Viewer: s.viewer(c)})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProfileResponse(res.Profile))
}

// ══════════════════════════════════════════════════════════════════════════════
// QUIZZES
// ══════════════════════════════════════════════════════════════════════════════

type submitQuizResponse struct {
	Profile   profileResponse `json:"profile"`
	Attempt   attemptResponse `json:"attempt"`
	LeveledUp bool            `json:"leveled_up"`
	Streak    streakResponse  `json:"streak"`
}

func (s *Server) handleSubmitQuiz(c *gin.Context) {
	var req submitQuizRequest
	if !bind(c, &req) {
		return
	}

	res, err := s.deps.SubmitQuiz.Handle(c.Request.Context(), command.SubmitQuizCommand{
		Actor:          s.actor(c),
		QuizID:         c.Param("quiz_id"),
		Score:          *req.Score,
		TotalQuestions: *req.TotalQuestions,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, submitQuizResponse{
		Profile:   toProfileResponse(res.Profile),
		Attempt:   toAttemptResponse(res.Attempt),
		LeveledUp: res.LeveledUp,
		Streak:    toStreakResponse(res.Streak),
	})
}

func (s *Server) handleListQuizAttempts(c *gin.Context) {
	page, size, ok := pageParams(c)
	if !ok {
		return
	}
	res, err := s.deps.ListQuizAttempts.Handle(c.Request.Context(), query.ListQuizAttemptsQuery{
		Viewer:   s.viewer(c),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapPage(res, toAttemptResponse))
}

func (s *Server) handleGetQuizAttempt(c *gin.Context) {
	res, err := s.deps.GetQuizAttempt.Handle(c.Request.Context(), query.GetQuizAttemptQuery{
		Viewer: s.viewer(c),
		QuizID: c.Param("quiz_id"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAttemptResponse(*res))
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

type awardAchievementResponse struct {
	Profile     profileResponse     `json:"profile"`
	Achievement achievementResponse `json:"achievement"`
	BonusXP     uint64              `json:"bonus_xp"`
	LeveledUp   bool                `json:"leveled_up"`
}

func (s *Server) handleAwardAchievement(c *gin.Context) {
	var req awardAchievementRequest
	if !bind(c, &req) {
		return
	}

	res, err := s.deps.AwardAchievement.Handle(c.Request.Context(), command.AwardAchievementCommand{
		Actor:           s.actor(c),
		AchievementID:   req.AchievementID,
		AchievementName: req.AchievementName,
		Tier:            *req.Tier,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, awardAchievementResponse{
		Profile:     toProfileResponse(res.Profile),
		Achievement: toAchievementResponse(res.Achievement),
		BonusXP:     res.BonusXP,
		LeveledUp:   res.LeveledUp,
	})
}

func (s *Server) handleListAchievements(c *gin.Context) {
	page, size, ok := pageParams(c)
	if !ok {
		return
	}
	res, err := s.deps.ListAchievements.Handle(c.Request.Context(), query.ListAchievementsQuery{
		Viewer:   s.viewer(c),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapPage(res, toAchievementResponse))
}

func (s *Server) handleGetAchievement(c *gin.Context) {
	res, err := s.deps.GetAchievement.Handle(c.Request.Context(), query.GetAchievementQuery{
		Viewer:        s.viewer(c),
		AchievementID: c.Param("achievement_id"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAchievementResponse(*res))
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK
// ══════════════════════════════════════════════════════════════════════════════

type updateStreakResponse struct {
	Profile profileResponse `json:"profile"`
	Streak  streakResponse  `json:"streak"`
}

func (s *Server) handleUpdateStreak(c *gin.Context) {
	res, err := s.deps.UpdateStreak.Handle(c.Request.Context(), command.UpdateStreakCommand{Actor: s.actor(c)})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updateStreakResponse{
		Profile: toProfileResponse(res.Profile),
		Streak:  toStreakResponse(res.Change),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetLeaderboard(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			abortWith(c, http.StatusBadRequest, CodeBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	res, err := s.deps.GetLeaderboard.Handle(c.Request.Context(), query.GetLeaderboardQuery{Limit: limit})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleRebuildLeaderboard(c *gin.Context) {
	if s.deps.Rebuilder == nil {
		respondError(c, shared.NewDomainError("http", "RebuildLeaderboard", shared.ErrServiceUnavailable,
			"leaderboard cache is not configured"))
		return
	}
	if err := s.deps.Rebuilder.Run(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rebuilt"})
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReady(c *gin.Context) {
	status := s.health.Check(c.Request.Context())
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
