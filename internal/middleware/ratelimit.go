package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	apperrors "github.com/rofiliofernandes/somudai/internal/errors"
	"github.com/rofiliofernandes/somudai/internal/metrics"
	"github.com/rofiliofernandes/somudai/internal/util"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Requests per window
	Limit int
	// Window duration
	Window time.Duration
	// KeyFunc picks the bucket for a request; defaults to the client IP
	KeyFunc func(c *gin.Context) string
	// Name labels rate limit metrics and Redis keys
	Name string
}

// DefaultRateLimitConfig returns the general API limits
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:  100,
		Window: time.Minute,
		Name:   "api",
	}
}

// MessageRateLimitConfig limits direct message sends per user
func MessageRateLimitConfig(limit int, window time.Duration) RateLimitConfig {
	return RateLimitConfig{
		Limit:   limit,
		Window:  window,
		KeyFunc: UserKey,
		Name:    "message_send",
	}
}

// UserKey buckets by authenticated user, falling back to client IP
func UserKey(c *gin.Context) string {
	if userID := c.GetString("user_id"); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

func (cfg RateLimitConfig) key(c *gin.Context) string {
	if cfg.KeyFunc != nil {
		return cfg.KeyFunc(c)
	}
	return "ip:" + c.ClientIP()
}

// TokenBucket for rate limiting
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket
func NewTokenBucket(maxTokens, refillRate float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: now,
	}
}

// Allow takes a token if one is available at now
func (tb *TokenBucket) Allow(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens = math.Min(tb.maxTokens, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// RetryAfter returns whole seconds until the next token
func (tb *TokenBucket) RetryAfter() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.tokens >= 1 {
		return 0
	}
	return int(math.Ceil((1 - tb.tokens) / tb.refillRate))
}

func (tb *TokenBucket) idleSince(now time.Time, d time.Duration) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return now.Sub(tb.lastRefill) > d
}

// RateLimiter keeps one token bucket per key
type RateLimiter struct {
	buckets   map[string]*TokenBucket
	config    RateLimitConfig
	clock     clockwork.Clock
	lastSweep time.Time
	mu        sync.Mutex
}

// NewRateLimiter creates an in-memory limiter. clock may be nil.
func NewRateLimiter(config RateLimitConfig, clock clockwork.Clock) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimiter{
		buckets:   make(map[string]*TokenBucket),
		config:    config,
		clock:     clock,
		lastSweep: clock.Now(),
	}
}

// Allow reports whether key may make a request now
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.clock.Now()

	rl.mu.Lock()
	if now.Sub(rl.lastSweep) > rl.config.Window {
		rl.sweepLocked(now)
	}
	bucket, exists := rl.buckets[key]
	if !exists {
		refillRate := float64(rl.config.Limit) / rl.config.Window.Seconds()
		bucket = NewTokenBucket(float64(rl.config.Limit), refillRate, now)
		rl.buckets[key] = bucket
	}
	rl.mu.Unlock()

	return bucket.Allow(now)
}

// RetryAfter gets retry-after seconds for key
func (rl *RateLimiter) RetryAfter(key string) int {
	rl.mu.Lock()
	bucket, exists := rl.buckets[key]
	rl.mu.Unlock()
	if !exists {
		return 1
	}
	return bucket.RetryAfter()
}

// Sweep drops buckets idle for longer than a window. Those are full again.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.sweepLocked(rl.clock.Now())
}

func (rl *RateLimiter) sweepLocked(now time.Time) int {
	rl.lastSweep = now
	removed := 0
	for key, bucket := range rl.buckets {
		if bucket.idleSince(now, rl.config.Window) {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked keys
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Middleware enforces the limiter on each request
func (rl *RateLimiter) Middleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rl.config.key(c)
		if rl.Allow(key) {
			c.Next()
			return
		}
		rejectRateLimited(c, m, rl.config, rl.RetryAfter(key))
	}
}

func rejectRateLimited(c *gin.Context, m *metrics.Metrics, cfg RateLimitConfig, retryAfter int) {
	if m != nil {
		RecordRateLimitExceeded(m, cfg.Name, c.Request.Method)
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
	c.Header("X-RateLimit-Remaining", "0")
	util.RespondWithAPIError(c, apperrors.RateLimited("").WithDetails("retry after "+strconv.Itoa(retryAfter)+"s"))
	c.Abort()
}
