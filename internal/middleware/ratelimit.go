package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jengzang/ais-anomaly-go/pkg/response"
)

// idleLimiterTTL is how long an unused client limiter is kept
const idleLimiterTTL = time.Hour

// RateLimiter limits detection requests per client IP
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter allows limit requests per window per IP, refilling evenly
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Every(window / time.Duration(limit)),
		burst:    limit,
		now:      time.Now,
	}
}

// Allow checks if a request from the given IP is allowed
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.evictIdle(now)

	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastAccess = now
	return entry.limiter.AllowN(now, 1)
}

// evictIdle drops limiters unused for idleLimiterTTL. Callers hold mu.
func (rl *RateLimiter) evictIdle(now time.Time) {
	for ip, e := range rl.limiters {
		if now.Sub(e.lastAccess) > idleLimiterTTL {
			delete(rl.limiters, ip)
		}
	}
}

// RateLimit middleware limits requests per IP. A non-positive limit
// disables limiting.
func RateLimit(limit int, window time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := NewRateLimiter(limit, window)

	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			response.Error(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		c.Next()
	}
}
