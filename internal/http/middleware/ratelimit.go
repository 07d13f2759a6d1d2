// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the process-local token-bucket limiter. The router mounts
// two of them: "global" in front of every route and "chat" on POST /chat,
// whose default refill (CHAT_RATE_RPS=0.5) is below one token per second
// because each prompt may cost a completion call. Rejections carry a
// Retry-After computed from the caller's own bucket and are counted in
// hr_http_rate_limited_total{limiter}.
//
// Replays flagged by IdempotencyValidator skip the limiter: they are served
// from stored results and cost nothing upstream.
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

// KeyFunc picks the bucket a request draws from.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by "user:<X-User-ID>" when Identity resolved a
// caller and by "ip:<client ip>" otherwise.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get("userID"); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// noRefillRetryAfter is advertised when the limiter never refills.
const noRefillRetryAfter = 60

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter hands out one token bucket per key. Buckets idle for longer
// than idleTTL are dropped on the next sweep, at most once per idleTTL.
// Safe for concurrent use.
type RateLimiter struct {
	name    string
	limit   rate.Limit
	burst   int
	key     KeyFunc
	idleTTL time.Duration
	now     func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter returns a limiter named name (the metric label) refilling
// rps tokens per second up to burst. A burst below 1 is raised to 1.
func NewRateLimiter(name string, rps float64, burst int, key KeyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if key == nil {
		key = KeyByUserOrIP()
	}
	return &RateLimiter{
		name:    name,
		limit:   rate.Limit(rps),
		burst:   burst,
		key:     key,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (rl *RateLimiter) bucketFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.lastSweep.IsZero() {
		rl.lastSweep = now
	}
	if now.Sub(rl.lastSweep) >= rl.idleTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	return b.lim
}

// IsRateBypass reports whether IdempotencyValidator exempted this request.
func IsRateBypass(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyRateBypass)
	b, _ := v.(bool)
	return b
}

// retryAfter returns the whole seconds until a bucket holding tokens has one
// full token again, at least 1.
func retryAfter(limit rate.Limit, tokens float64) int {
	switch {
	case limit <= 0:
		return noRefillRetryAfter
	case limit == rate.Inf:
		return 1
	}
	missing := 1 - tokens
	if missing <= 0 {
		return 1
	}
	secs := int(math.Ceil(missing / float64(limit)))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Handler enforces the limit, answering 429 with the error envelope and a
// Retry-After header when the caller's bucket is empty.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := rl.now()
		lim := rl.bucketFor(rl.key(c), now)
		if lim.AllowN(now, 1) {
			c.Next()
			return
		}

		rateLimited.WithLabelValues(rl.name).Inc()
		c.Header("Retry-After", strconv.Itoa(retryAfter(rl.limit, lim.TokensAt(now))))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
