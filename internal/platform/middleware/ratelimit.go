package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/clinic/clinic/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// MaxKeys bounds the number of callers tracked at once.
	MaxKeys int
	// IdleTTL drops a caller's limiter after this long without requests.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
		MaxKeys:           10000,
		IdleTTL:           10 * time.Minute,
	}
}

// RateLimit limits each caller to a token bucket. Authenticated callers are
// keyed by user id, anonymous ones by client IP, so it must run after the
// authentication middleware.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	def := DefaultRateLimitConfig()
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = def.MaxKeys
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	limiters := lru.NewLRU[string, *rate.Limiter](cfg.MaxKeys, nil, cfg.IdleTTL)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "ip:" + c.RealIP()
			if userID := auth.UserIDFromContext(c.Request().Context()); userID != "" {
				key = "user:" + userID
			}

			l, ok := limiters.Get(key)
			if !ok {
				l = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize)
			}
			// Re-adding refreshes the idle TTL.
			limiters.Add(key, l)

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			r := l.Reserve()
			if !r.OK() || r.Delay() > 0 {
				retry := time.Second
				if r.OK() {
					retry = r.Delay()
					r.Cancel()
				}
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
