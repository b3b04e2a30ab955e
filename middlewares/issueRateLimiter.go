package middlewares

import (
	"log/slog"
	"net/http"
	"time"

	"civicpulse-be/apperr"
	"civicpulse-be/identity"
	"civicpulse-be/logging"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// IssueRateLimiter caps how many issues one user may report per window.
// Without a Redis client it lets everything through.
func IssueRateLimiter(client *redis.Client, prefix string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || limit <= 0 {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		actor, err := identity.Require(ctx)
		if err != nil {
			abort(c, http.StatusUnauthorized, apperr.KindUnauthorized, err.Error())
			return
		}

		// Create individual key for each user
		userKey := prefix + ":" + actor.ID

		count, err := client.Incr(ctx, userKey).Result()
		if err != nil {
			logging.Error(ctx, "rate limit increment failed", slog.Any("err", apperr.Loggable(err)))
			abort(c, http.StatusServiceUnavailable, apperr.KindUpstreamUnavailable, "rate limiter unavailable")
			return
		}
		// Set TTL only for the first increment
		if count == 1 {
			if err := client.Expire(ctx, userKey, window).Err(); err != nil {
				logging.Error(ctx, "rate limit expiry failed", slog.Any("err", apperr.Loggable(err)))
				abort(c, http.StatusServiceUnavailable, apperr.KindUpstreamUnavailable, "rate limiter unavailable")
				return
			}
		}

		if count > int64(limit) {
			retryAfter, _ := client.TTL(ctx, userKey).Result()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":        "RATE_LIMITED",
				"error":       "rate limit exceeded",
				"retry_after": retryAfter.Seconds(),
			})
			return
		}

		c.Next()
	}
}
