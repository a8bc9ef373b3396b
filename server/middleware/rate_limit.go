package middleware

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	apierrors "github.com/hrygo/harvestline/server/internal/errors"
)

const (
	// DefaultRate is the sustained requests per second per key.
	DefaultRate = rate.Limit(2)
	// DefaultBurst is the burst allowance per key.
	DefaultBurst = 10

	idleLimiterTTL = 10 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key.
type RateLimiter struct {
	mu     sync.Mutex
	limits map[string]*limiterEntry
	rate   rate.Limit
	burst  int
	now    func() time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	if r <= 0 {
		r = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &RateLimiter{
		limits: make(map[string]*limiterEntry),
		rate:   r,
		burst:  burst,
		now:    time.Now,
	}
}

// getLimiter gets or creates a limiter for the given key and drops idle ones.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if entry, ok := rl.limits[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	for k, entry := range rl.limits {
		if now.Sub(entry.lastSeen) > idleLimiterTTL {
			delete(rl.limits, k)
		}
	}
	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limits[key] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// Allow checks if a request is allowed for the given key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// PerIP limits requests by client IP and answers 429 beyond the limit.
func (rl *RateLimiter) PerIP() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rl.Allow(c.RealIP()) {
				return apierrors.ToHTTP(c, apierrors.RateLimitExceeded("too many requests"))
			}
			return next(c)
		}
	}
}
