// Package http exposes the progression ledger over a JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/alem-hub/progression-ledger/internal/application/command"
	"github.com/alem-hub/progression-ledger/internal/application/query"
	"github.com/alem-hub/progression-ledger/internal/interface/http/handlers"
	"github.com/alem-hub/progression-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Addr to listen on (default: ":8080").
	Addr string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// AllowedOrigins for CORS. "*" allows any origin.
	AllowedOrigins []string

	// RateLimit is requests per RateLimitWindow per client IP. 0 disables.
	RateLimit       int
	RateLimitWindow time.Duration

	// ServiceName tags trace spans.
	ServiceName string

	// Debug switches gin to debug mode.
	Debug bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		AllowedOrigins:    []string{"*"},
		RateLimitWindow:   time.Minute,
		ServiceName:       "progression-ledger",
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Command Handlers (CQRS Write Side)
	InitializeProfile *command.InitializeProfileHandler
	SubmitQuiz        *command.SubmitQuizHandler
	AwardAchievement  *command.AwardAchievementHandler
	UpdateStreak      *command.UpdateStreakHandler

	// Query Handlers (CQRS Read Side)
	GetProfile       *query.GetProfileHandler
	ListQuizAttempts *query.ListQuizAttemptsHandler
	GetQuizAttempt   *query.GetQuizAttemptHandler
	ListAchievements *query.ListAchievementsHandler
	GetAchievement   *query.GetAchievementHandler
	GetLeaderboard   *query.GetLeaderboardHandler

	// Rebuilder backs POST /internal/leaderboard/rebuild. Optional.
	Rebuilder LeaderboardRebuilder

	// Auth
	Tokens  TokenVerifier
	APIKeys APIKeyVerifier

	// RateCounter enables rate limiting. Optional.
	RateCounter WindowCounter

	// Health checks for /health/ready. Optional.
	Health handlers.HealthChecker

	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	engine     *gin.Engine
	httpServer *http.Server
	health     handlers.HealthChecker
	log        *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	if config.ServiceName == "" {
		config.ServiceName = DefaultConfig().ServiceName
	}
	if config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config: config,
		deps:   deps,
		health: deps.Health,
		log:    deps.Logger,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.With(logger.Component("http"))
	if s.health == nil {
		s.health = handlers.NewNoopHealthChecker()
	}

	s.engine = gin.New()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	r := s.engine
	r.Use(
		otelgin.Middleware(s.config.ServiceName),
		requestID(s.log),
		recovery(),
		accessLog(),
		cors.New(s.corsConfig()),
	)
	r.NoRoute(func(c *gin.Context) {
		abortWith(c, http.StatusNotFound, CodeNotFound, "route not found")
	})

	// ─────────────────────────────────────────────────────────────────────────
	// Health
	// ─────────────────────────────────────────────────────────────────────────
	r.GET("/health", s.handleLive)
	r.GET("/health/ready", s.handleReady)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1
	// ─────────────────────────────────────────────────────────────────────────
	api := r.Group("/api/v1")
	if s.deps.RateCounter != nil && s.config.RateLimit > 0 {
		api.Use(rateLimit(s.deps.RateCounter, "api", s.config.RateLimit, s.config.RateLimitWindow))
	}
	api.Use(requireCaller(s.deps.Tokens))
	{
		api.POST("/profile", s.handleInitializeProfile)
		api.GET("/profile", s.handleGetProfile)

		api.GET("/quizzes/attempts", s.handleListQuizAttempts)
		api.POST("/quizzes/:quiz_id/attempts", s.handleSubmitQuiz)
		api.GET("/quizzes/:quiz_id/attempts", s.handleGetQuizAttempt)

		api.POST("/achievements", s.handleAwardAchievement)
		api.GET("/achievements", s.handleListAchievements)
		api.GET("/achievements/:achievement_id", s.handleGetAchievement)

		api.POST("/streak", s.handleUpdateStreak)

		api.GET("/leaderboard", s.handleGetLeaderboard)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Operator
	// ─────────────────────────────────────────────────────────────────────────
	internal := r.Group("/internal")
	internal.Use(requireAPIKey(s.deps.APIKeys))
	{
		internal.POST("/leaderboard/rebuild", s.handleRebuildLeaderboard)
	}
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", headerAPIKey, headerRequestID}
	cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cfg.ExposeHeaders = []string{headerRequestID}
	cfg.MaxAge = 12 * time.Hour

	origins := s.config.AllowedOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.Info("starting HTTP server", logger.String("address", s.config.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}
