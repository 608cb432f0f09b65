package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alem-hub/progression-ledger/internal/application/command"
	"github.com/alem-hub/progression-ledger/internal/application/query"
	"github.com/alem-hub/progression-ledger/internal/domain/progression"
	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/progression-ledger/internal/infrastructure/security"
	"github.com/alem-hub/progression-ledger/internal/interface/http/handlers"
	"github.com/alem-hub/progression-ledger/pkg/logger"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURES
// ══════════════════════════════════════════════════════════════════════════════

type fakeCounter struct {
	counts map[string]int64
	err    error
}

func (f *fakeCounter) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	f.counts[key]++
	return f.counts[key], window, nil
}

type fakeRebuilder struct {
	runs int
	err  error
}

func (f *fakeRebuilder) Run(context.Context) error {
	f.runs++
	return f.err
}

type testEnv struct {
	server    *Server
	clock     *shared.FixedClock
	tokens    *security.TokenManager
	rebuilder *fakeRebuilder
}

type envOption func(*Config, *Dependencies)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	host := memory.New()
	clock := shared.NewFixedClock(t0)
	log := logger.Nop()
	tokens := security.NewTokenManager(testSecret, "")

	hash, err := bcrypt.GenerateFromPassword([]byte("op-key"), bcrypt.MinCost)
	require.NoError(t, err)

	env := &testEnv{
		clock:     clock,
		tokens:    tokens,
		rebuilder: &fakeRebuilder{},
	}

	cfg := DefaultConfig()
	deps := Dependencies{
		InitializeProfile: command.NewInitializeProfileHandler(host, clock, nil, log),
		SubmitQuiz:        command.NewSubmitQuizHandler(host, clock, nil, log),
		AwardAchievement:  command.NewAwardAchievementHandler(host, clock, nil, log, command.DefaultAwardAchievementHandlerConfig()),
		UpdateStreak:      command.NewUpdateStreakHandler(host, clock, nil, log),
		GetProfile:        query.NewGetProfileHandler(host, nil, log),
		ListQuizAttempts:  query.NewListQuizAttemptsHandler(host),
		GetQuizAttempt:    query.NewGetQuizAttemptHandler(host),
		ListAchievements:  query.NewListAchievementsHandler(host),
		GetAchievement:    query.NewGetAchievementHandler(host),
		GetLeaderboard:    query.NewGetLeaderboardHandler(host, nil, clock, log),
		Rebuilder:         env.rebuilder,
		Tokens:            tokens,
		APIKeys:           security.NewAPIKeyChecker([]string{string(hash)}),
		Logger:            log,
	}
	for _, o := range opts {
		o(&cfg, &deps)
	}
	env.server = NewServer(cfg, deps)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		token, err := e.tokens.Generate(shared.Owner(owner))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	return decode[ErrorEnvelope](t, rec).Error.Code
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))

	rec = env.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReady_Failing(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("ledger", func(context.Context) error { return errors.New("down") })
	env := newTestEnv(t, func(_ *Config, d *Dependencies) { d.Health = checker })

	rec := env.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	status := decode[handlers.HealthStatus](t, rec)
	assert.False(t, status.Checks["ledger"].Healthy)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUnauthorized, errorCode(t, rec))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProgressionFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/profile", "alice", map[string]any{"display_name": "Alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[profileResponse](t, rec)
	assert.Equal(t, "alice", p.Owner)
	assert.Equal(t, uint64(1), p.Level)
	assert.Equal(t, uint64(100), p.NextLevelXP)

	rec = env.do(t, http.MethodPost, "/api/v1/profile", "alice", map[string]any{"display_name": "Alice"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeAlreadyExists, errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/api/v1/quizzes/quiz-1/attempts", "alice", map[string]any{"score": 8, "total_questions": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sq := decode[submitQuizResponse](t, rec)
	assert.Equal(t, uint64(80), sq.Profile.XP)
	assert.Equal(t, uint64(80), sq.Attempt.XPEarned)
	assert.False(t, sq.LeveledUp)

	env.clock.Advance(time.Hour)
	rec = env.do(t, http.MethodPost, "/api/v1/quizzes/quiz-2/attempts", "alice", map[string]any{"score": 10, "total_questions": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sq = decode[submitQuizResponse](t, rec)
	assert.Equal(t, uint64(230), sq.Profile.XP)
	assert.Equal(t, uint64(3), sq.Profile.Level)
	assert.True(t, sq.LeveledUp)
	assert.Equal(t, uint64(2), sq.Streak.Current)

	rec = env.do(t, http.MethodPost, "/api/v1/quizzes/quiz-2/attempts", "alice", map[string]any{"score": 10, "total_questions": 10})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/achievements", "alice", map[string]any{
		"achievement_id": "first-perfect", "achievement_name": "First Perfect", "tier": "Gold",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	aw := decode[awardAchievementResponse](t, rec)
	assert.Equal(t, uint64(200), aw.BonusXP)
	assert.Equal(t, uint64(430), aw.Profile.XP)
	assert.Equal(t, uint64(3), aw.Profile.Level)
	assert.Equal(t, progression.TierGold, aw.Achievement.Tier)

	rec = env.do(t, http.MethodGet, "/api/v1/profile", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p = decode[profileResponse](t, rec)
	assert.Equal(t, uint64(430), p.XP)
	assert.Equal(t, uint64(2), p.QuizzesCompleted)
	assert.Equal(t, uint64(1), p.AchievementsEarned)

	rec = env.do(t, http.MethodGet, "/api/v1/quizzes/attempts?page_size=1", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[pageResponse[attemptResponse]](t, rec)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "quiz-2", page.Items[0].QuizID)
	assert.True(t, page.HasMore)

	rec = env.do(t, http.MethodGet, "/api/v1/quizzes/quiz-1/attempts", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint8(8), decode[attemptResponse](t, rec).Score)

	rec = env.do(t, http.MethodGet, "/api/v1/quizzes/quiz-9/attempts", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/achievements", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[pageResponse[achievementResponse]](t, rec).Items, 1)

	rec = env.do(t, http.MethodGet, "/api/v1/achievements/first-perfect", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "First Perfect", decode[achievementResponse](t, rec).AchievementName)

	rec = env.do(t, http.MethodGet, "/api/v1/leaderboard?limit=5", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lb := decode[query.GetLeaderboardResult](t, rec)
	require.Len(t, lb.Entries, 1)
	assert.Equal(t, query.SourceLedger, lb.Source)
	assert.Equal(t, uint64(430), lb.Entries[0].XP)
}

func TestStreak(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/api/v1/profile", "bob", map[string]any{"display_name": "Bob"}).Code)

	env.clock.Advance(23 * time.Hour)
	rec := env.do(t, http.MethodPost, "/api/v1/streak", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[updateStreakResponse](t, rec)
	assert.Equal(t, uint64(1), res.Streak.Current)
	assert.False(t, res.Streak.Reset)

	env.clock.Advance(25 * time.Hour)
	rec = env.do(t, http.MethodPost, "/api/v1/streak", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res = decode[updateStreakResponse](t, rec)
	assert.Equal(t, uint64(1), res.Streak.Current)
	assert.True(t, res.Streak.Reset)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/profile", "nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/api/v1/profile", "carol", map[string]any{"display_name": "Carol"}).Code)

	rec = env.do(t, http.MethodPost, "/api/v1/quizzes/q/attempts", "carol", map[string]any{"score": 11, "total_questions": 10})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, CodeInvalidScore, errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/api/v1/quizzes/q/attempts", "carol", map[string]any{"score": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeBadRequest, errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/api/v1/achievements", "carol", map[string]any{"achievement_id": "x", "achievement_name": "X", "tier": "Diamond"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/achievements", "carol", map[string]any{"achievement_id": "x", "achievement_name": "X"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeBadRequest, errorCode(t, rec))

	rec = env.do(t, http.MethodGet, "/api/v1/profile", "carol", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"achievements_earned":0`, "no tier, no award")

	rec = env.do(t, http.MethodPost, "/api/v1/profile", "dave", map[string]any{"display_name": ""})
	assert.Equal(t, http.StatusCreated, rec.Code, "empty display names are accepted")

	rec = env.do(t, http.MethodPost, "/api/v1/profile", "erin", map[string]any{"display_name": strings.Repeat("x", 33)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, errorCode(t, rec))

	rec = env.do(t, http.MethodGet, "/api/v1/leaderboard?limit=-1", "carol", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/quizzes/attempts?page=x", "carol", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{progression.NewInvalidScoreError(3, 2), http.StatusUnprocessableEntity},
		{progression.NewAccessDeniedError("op", "a", "b"), http.StatusForbidden},
		{progression.NewProfileNotFoundError("op", "a"), http.StatusNotFound},
		{progression.NewProfileExistsError("op", "a"), http.StatusConflict},
		{shared.NewDomainError("x", "op", shared.ErrOverflow, "big"), http.StatusUnprocessableEntity},
		{shared.NewDomainError("x", "op", shared.ErrTooLong, "long"), http.StatusBadRequest},
		{shared.NewDomainError("x", "op", shared.ErrUnauthorized, "who"), http.StatusUnauthorized},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}

func TestRebuildEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/internal/leaderboard/rebuild", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, env.rebuilder.runs)

	req = httptest.NewRequest(http.MethodPost, "/internal/leaderboard/rebuild", nil)
	req.Header.Set(headerAPIKey, "op-key")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.rebuilder.runs)
}

func TestRebuildEndpoint_NotConfigured(t *testing.T) {
	env := newTestEnv(t, func(_ *Config, d *Dependencies) { d.APIKeys = security.NewAPIKeyChecker(nil) })

	req := httptest.NewRequest(http.MethodPost, "/internal/leaderboard/rebuild", nil)
	req.Header.Set(headerAPIKey, "op-key")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRateLimit(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{}}
	env := newTestEnv(t, func(c *Config, d *Dependencies) {
		c.RateLimit = 2
		d.RateCounter = counter
	})

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodGet, "/api/v1/leaderboard", "alice", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/api/v1/leaderboard", "alice", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, CodeRateLimited, errorCode(t, rec))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	counter.err = errors.New("redis down")
	rec = env.do(t, http.MethodGet, "/api/v1/leaderboard", "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDPropagation(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "req-123")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(headerRequestID))
}

func TestServerLifecycle(t *testing.T) {
	s := NewServer(Config{Addr: "127.0.0.1:0"}, Dependencies{})
	errCh := s.StartAsync()
	require.Eventually(t, func() bool { return s.Uptime() > 0 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err, ok := <-errCh:
		assert.NoError(t, err)
		assert.False(t, ok, "channel closed after a clean stop")
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Zero(t, s.Uptime())
	assert.NoError(t, s.Shutdown(ctx), "second shutdown is a no-op")
}
