package middleware

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/rofiliofernandes/somudai/internal/errors"
	"github.com/rofiliofernandes/somudai/internal/logger"
	"github.com/rofiliofernandes/somudai/internal/metrics"
	"github.com/rofiliofernandes/somudai/internal/util"
	"go.uber.org/zap"
)

// WindowCounter counts hits in a fixed window shared across instances.
// cache.RedisClient implements it.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisRateLimitMiddleware enforces cfg with a fixed-window counter in Redis.
// With no counter it falls back to an in-memory token bucket. A Redis error
// rejects the request with 503 rather than letting it through unmetered.
func RedisRateLimitMiddleware(counter WindowCounter, cfg RateLimitConfig, m *metrics.Metrics) gin.HandlerFunc {
	if counter == nil {
		logger.Log.Warn("Redis rate limiter unavailable, using in-memory limiter",
			zap.String("limiter", cfg.Name))
		return NewRateLimiter(cfg, nil).Middleware(m)
	}

	return func(c *gin.Context) {
		key := fmt.Sprintf("rate_limit:%s:%s", cfg.Name, cfg.key(c))
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		count, ttl, err := counter.IncrWindow(ctx, key, cfg.Window)
		if m != nil {
			RecordRedisOperation(m, "rate_limit_incr", err)
		}
		if err != nil {
			logger.Log.Error("Rate limit check failed, rejecting request",
				zap.String("key", key),
				zap.Error(err))
			util.RespondWithAPIError(c, apperrors.ServiceUnavailable("rate limiter"))
			c.Abort()
			return
		}

		if count > int64(cfg.Limit) {
			retryAfter := int(math.Ceil(ttl.Seconds()))
			if retryAfter <= 0 {
				retryAfter = 1
			}
			logger.Log.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.Int("max_requests", cfg.Limit),
				zap.Int64("current_requests", count))
			rejectRateLimited(c, m, cfg, retryAfter)
			return
		}

		c.Next()
	}
}
