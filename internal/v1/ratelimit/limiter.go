// Package ratelimit implements rate limiting logic using Redis or local memory.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/taskboard/core/internal/v1/auth"
	"github.com/taskboard/core/internal/v1/config"
	"github.com/taskboard/core/internal/v1/logging"
	"github.com/taskboard/core/internal/v1/metrics"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// TokenValidator verifies a bearer token and returns its claims. It is the
// same contract as auth.Validator / auth.MockValidator, defined locally so
// the limiter does not need to trust context values set by a middleware
// that may or may not have already run.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.CustomClaims, error)
}

// RateLimiter holds the rate limiter instances.
type RateLimiter struct {
	apiGlobal   *limiter.Limiter
	apiPublic   *limiter.Limiter
	apiBoards   *limiter.Limiter
	apiComments *limiter.Limiter
	wsIP        *limiter.Limiter
	wsUser      *limiter.Limiter
	store       limiter.Store
	redisClient *redis.Client
	validator   TokenValidator
}

// NewRateLimiter creates a new RateLimiter instance.
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client, validator TokenValidator) (*RateLimiter, error) {
	apiGlobalRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIGlobal)
	if err != nil {
		return nil, fmt.Errorf("invalid API global rate: %w", err)
	}

	apiPublicRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIPublic)
	if err != nil {
		return nil, fmt.Errorf("invalid API public rate: %w", err)
	}

	apiBoardsRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIBoards)
	if err != nil {
		return nil, fmt.Errorf("invalid API boards rate: %w", err)
	}

	apiCommentsRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIComments)
	if err != nil {
		return nil, fmt.Errorf("invalid API comments rate: %w", err)
	}

	wsIPRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsIP)
	if err != nil {
		return nil, fmt.Errorf("invalid WS IP rate: %w", err)
	}

	wsUserRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsUser)
	if err != nil {
		return nil, fmt.Errorf("invalid WS User rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:v1:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "rate limiter using memory store (Redis disabled or unavailable)")
	}

	return &RateLimiter{
		apiGlobal:   limiter.New(store, apiGlobalRate),
		apiPublic:   limiter.New(store, apiPublicRate),
		apiBoards:   limiter.New(store, apiBoardsRate),
		apiComments: limiter.New(store, apiCommentsRate),
		wsIP:        limiter.New(store, wsIPRate),
		wsUser:      limiter.New(store, wsUserRate),
		store:       store,
		redisClient: redisClient,
		validator:   validator,
	}, nil
}

// identify extracts the caller's identity for rate-limit keying.
// It validates the bearer token itself rather than trusting any "claims"
// value a preceding middleware may have set, closing a time-of-check/
// time-of-use gap where a rate limiter running before auth could be
// tricked into using the generous per-user limit with an invalid token.
func (rl *RateLimiter) identify(c *gin.Context) (key string, limitType string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" || rl.validator == nil {
		return c.ClientIP(), "ip"
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	claims, err := rl.validator.ValidateToken(tokenString)
	if err != nil || claims.Subject == "" {
		return c.ClientIP(), "ip"
	}

	return claims.Subject, "user"
}

// GlobalMiddleware returns a Gin middleware that enforces global rate limits:
// the generous per-user limit for authenticated callers, the strict per-IP
// limit for everyone else.
func (rl *RateLimiter) GlobalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, limitType := rl.identify(c)

		var limiterInstance *limiter.Limiter
		if limitType == "user" {
			limiterInstance = rl.apiGlobal
		} else {
			limiterInstance = rl.apiPublic
		}

		ctx := c.Request.Context()
		lctx, err := limiterInstance.Get(ctx, key)
		if err != nil {
			// Fail open: availability over strict enforcement when the store is down.
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), limitType).Inc()
			c.Header("Retry-After", strconv.FormatInt(lctx.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// MiddlewareForEndpoint returns a Gin middleware that enforces a specific endpoint rate limit.
func (rl *RateLimiter) MiddlewareForEndpoint(endpointType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var limiterInstance *limiter.Limiter

		switch endpointType {
		case "boards":
			limiterInstance = rl.apiBoards
		case "comments":
			limiterInstance = rl.apiComments
		default:
			limiterInstance = rl.apiGlobal
		}

		key, _ := rl.identify(c)

		ctx := c.Request.Context()
		lctx, err := limiterInstance.Get(ctx, key)
		if err != nil {
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), endpointType).Inc()
			c.Header("X-RateLimit-Retry-After", strconv.FormatInt(lctx.Reset, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// CheckWebSocket checks if a WebSocket handshake should be allowed by IP.
// Returns true if allowed, false if the limit is exceeded (and writes the error response).
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()

	ip := c.ClientIP()
	ipContext, err := rl.wsIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "WS rate limiter store failed (IP)", zap.Error(err))
		return true // Fail open
	}

	if ipContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("session_connect", "ip").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(ipContext.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many connections from this IP"})
		return false
	}

	return true
}

// CheckWebSocketUser checks the user-specific limit for WebSocket handshakes.
// Call this after successfully authenticating the user.
func (rl *RateLimiter) CheckWebSocketUser(ctx context.Context, userID string) error {
	userContext, err := rl.wsUser.Get(ctx, userID)
	if err != nil {
		logging.Error(ctx, "WS rate limiter store failed (user)", zap.Error(err))
		return nil // Fail open
	}

	if userContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("session_connect", "user").Inc()
		return fmt.Errorf("rate limit exceeded for user")
	}

	return nil
}

// StandardMiddleware exposes the stock ulule/limiter middleware for callers
// that don't need the user/IP distinction GlobalMiddleware provides.
func (rl *RateLimiter) StandardMiddleware() gin.HandlerFunc {
	return mgin.NewMiddleware(rl.apiPublic)
}
