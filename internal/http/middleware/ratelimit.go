// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the in-memory token-bucket limiter guarding the API.
// Buckets are keyed per user (all contexts of one user share a bucket) or,
// for anonymous requests, per client IP. Routes may cost more than one token
// so that AI-backed endpoints drain a bucket faster than cart reads.
//
// The limiter is process-local; it is edge-level abuse control, not an
// authorization mechanism.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc selects the bucket a request draws from.
type KeyFunc func(*gin.Context) string

// CostFunc returns how many tokens a request consumes (at least 1).
type CostFunc func(*gin.Context) int

// KeyByUserOrIP keys buckets by the user resolved by ContextIdentity and
// falls back to the client IP. Keys are namespaced ("user:u1", "ip:203.0.113.7").
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if s := c.GetString("userID"); s != "" {
			return "user:" + s
		}
		return "ip:" + c.ClientIP()
	}
}

// CostByPrefix charges cost tokens for routes whose pattern starts with one of
// prefixes and 1 token otherwise.
func CostByPrefix(cost int, prefixes ...string) CostFunc {
	return func(c *gin.Context) int {
		path := c.FullPath()
		for _, p := range prefixes {
			if len(path) >= len(p) && path[:len(p)] == p {
				return cost
			}
		}
		return 1
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter. Idle buckets are swept every
// sweepEvery lookups. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn KeyFunc
	cost  CostFunc

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups int

	idleTTL    time.Duration
	sweepEvery int
	now        func() time.Time
}

// RateOption customizes a RateLimiter.
type RateOption func(*RateLimiter)

// WithCost sets the per-request token cost.
func WithCost(fn CostFunc) RateOption {
	return func(rl *RateLimiter) { rl.cost = fn }
}

// WithIdleTTL sets how long an unused bucket is kept.
func WithIdleTTL(d time.Duration) RateOption {
	return func(rl *RateLimiter) {
		if d > 0 {
			rl.idleTTL = d
		}
	}
}

// NewRateLimiter returns a limiter refilling rps tokens per second up to
// burst (coerced to at least 1).
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc, opts ...RateOption) *RateLimiter {
	rl := &RateLimiter{
		rps:        rate.Limit(rps),
		burst:      max(burst, 1),
		keyFn:      keyFn,
		buckets:    make(map[string]*bucket),
		idleTTL:    10 * time.Minute,
		sweepEvery: 5000,
		now:        time.Now,
	}
	for _, o := range opts {
		o(rl)
	}
	return rl
}

// limiterFor returns the bucket for key, creating it on first use. The sweep
// runs before the lookup so a stale bucket for key itself is replaced.
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= rl.sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.buckets[key] = &bucket{limiter: lim, lastSeen: now}
	return lim
}

// costOf returns the request's token cost bounded to [1, burst].
func (rl *RateLimiter) costOf(c *gin.Context) int {
	if rl.cost == nil {
		return 1
	}
	return min(max(rl.cost(c), 1), rl.burst)
}

// retryAfter returns whole seconds until n tokens are available, at least 1.
func retryAfter(lim *rate.Limiter, now time.Time, n int) int {
	r := lim.ReserveN(now, n)
	if !r.OK() {
		return 1
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return max(int(math.Ceil(d.Seconds())), 1)
}

// IsRateBypass reports whether IdempotencyValidator marked the request as a
// replay, which is served without consuming tokens.
func IsRateBypass(c *gin.Context) bool {
	return c.GetBool(ctxKeyRateBypass)
}

// Handler enforces the limits. Rejected requests get 429 with Retry-After
// and a {request_id, code, message} body.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		lim := rl.limiterFor(rl.keyFn(c))
		n := rl.costOf(c)
		now := rl.now()
		if lim.AllowN(now, n) {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRateLimited.WithLabelValues(route).Inc()
		c.Header("Retry-After", strconv.Itoa(retryAfter(lim, now, n)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
