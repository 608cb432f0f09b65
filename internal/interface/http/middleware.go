package http

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	rediscache "github.com/alem-hub/progression-ledger/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/progression-ledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION PORTS
// ══════════════════════════════════════════════════════════════════════════════

// TokenVerifier turns a bearer token into the caller's identity.
type TokenVerifier interface {
	Verify(token string) (shared.Owner, error)
}

// APIKeyVerifier checks operator keys.
type APIKeyVerifier interface {
	Enabled() bool
	Check(key string) error
}

// WindowCounter counts hits in a fixed window. Satisfied by the Redis cache.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

const (
	headerRequestID = "X-Request-ID"
	headerAPIKey    = "X-API-Key"

	ctxKeyCaller    = "caller"
	ctxKeyRequestID = "request_id"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST SCOPE
// ══════════════════════════════════════════════════════════════════════════════

// requestID reuses an incoming X-Request-ID or issues a new one, and puts a
// request-scoped logger into the request context.
func requestID(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(headerRequestID, id)

		ctx := logger.WithContext(c.Request.Context(), log.WithRequestID(id))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// requestLogger returns the logger installed by requestID.
func requestLogger(c *gin.Context) *logger.Logger {
	return logger.FromContext(c.Request.Context())
}

// accessLog logs one line per request, at a level chosen by status.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", status),
			logger.Latency(time.Since(start)),
			logger.String("ip", c.ClientIP()),
		}
		if caller, ok := callerFrom(c); ok {
			fields = append(fields, logger.Owner(caller.String()))
		}

		log := requestLogger(c)
		switch {
		case status >= 500:
			log.Error("http request", fields...)
		case status >= 400:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	}
}

// recovery turns a panic into a 500 envelope.
func recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestLogger(c).Error("panic recovered",
					logger.Any("panic", r),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", c.Request.URL.Path),
				)
				abortWith(c, http.StatusInternalServerError, CodeInternal, "an unexpected error occurred")
			}
		}()
		c.Next()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH
// ══════════════════════════════════════════════════════════════════════════════

// requireCaller authenticates "Authorization: Bearer <token>".
func requireCaller(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortWith(c, http.StatusUnauthorized, CodeUnauthorized, "authorization header is required")
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			abortWith(c, http.StatusUnauthorized, CodeUnauthorized, "invalid authorization header format")
			return
		}
		if tokens == nil {
			abortWith(c, http.StatusUnauthorized, CodeUnauthorized, "token verification is not configured")
			return
		}

		owner, err := tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			requestLogger(c).Debug("token rejected", logger.Err(err))
			abortWith(c, http.StatusUnauthorized, CodeUnauthorized, "invalid or expired token")
			return
		}

		c.Set(ctxKeyCaller, owner)
		c.Next()
	}
}

// callerFrom returns the identity set by requireCaller.
func callerFrom(c *gin.Context) (shared.Owner, bool) {
	v, ok := c.Get(ctxKeyCaller)
	if !ok {
		return "", false
	}
	owner, ok := v.(shared.Owner)
	return owner, ok
}

// requireAPIKey guards operator routes. With no keys configured every
// request is refused.
func requireAPIKey(keys APIKeyVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if keys == nil || !keys.Enabled() {
			abortWith(c, http.StatusForbidden, CodeAccessDenied, "operator access is not configured")
			return
		}
		if err := keys.Check(c.GetHeader(headerAPIKey)); err != nil {
			abortWith(c, http.StatusUnauthorized, CodeUnauthorized, "invalid api key")
			return
		}
		c.Next()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMIT
// ══════════════════════════════════════════════════════════════════════════════

// rateLimit allows limit requests per window per client IP. Counter errors
// let the request through.
func rateLimit(counter WindowCounter, scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rediscache.RateLimitKey(c.ClientIP(), scope)
		count, ttl, err := counter.IncrWindow(c.Request.Context(), key, window)
		if err != nil {
			requestLogger(c).Warn("rate limit check failed", logger.Err(err))
			c.Next()
			return
		}

		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(limit) {
			if ttl <= 0 {
				ttl = window
			}
			c.Header("Retry-After", strconv.Itoa(int(ttl.Round(time.Second)/time.Second)))
			respondError(c, shared.NewDomainError("http", "RateLimit", shared.ErrRateLimited,
				fmt.Sprintf("too many requests, retry in %s", ttl.Round(time.Second))))
			return
		}
		c.Next()
	}
}
