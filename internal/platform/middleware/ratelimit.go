package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting settings sized for
// the public booking surface.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
	}
}

// tokenBucket implements a token bucket rate limiter.
type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func (b *tokenBucket) allow(now time.Time) bool {
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

const staleBucketAge = 10 * time.Minute

// RateLimit returns middleware that throttles requests per client IP using a
// token bucket. Stale buckets are evicted opportunistically so the map does
// not grow without bound.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	var mu sync.Mutex
	buckets := make(map[string]*tokenBucket)
	lastSweep := time.Now()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			now := time.Now()

			mu.Lock()
			if now.Sub(lastSweep) > staleBucketAge {
				for k, b := range buckets {
					if now.Sub(b.lastRefill) > staleBucketAge {
						delete(buckets, k)
					}
				}
				lastSweep = now
			}

			b, ok := buckets[ip]
			if !ok {
				b = &tokenBucket{
					tokens:     float64(cfg.BurstSize),
					maxTokens:  float64(cfg.BurstSize),
					refillRate: cfg.RequestsPerSecond,
					lastRefill: now,
				}
				buckets[ip] = b
			}
			allowed := b.allow(now)
			mu.Unlock()

			if !allowed {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
