package security

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis *redis.Client

	// fixed window per client
	window time.Duration
	limit  int64
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		window: time.Minute,
		limit:  30,
	}
}

// PaymentRateLimit limits how often a single client may hit the payment
// endpoints. QR generation renders an image per call, so an unthrottled
// client can burn CPU for free.
func (r *RateLimiter) PaymentRateLimit() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		key := fmt.Sprintf("ratelimit:payment:%s", e.RealIP())
		ctx := e.Request.Context()

		count, err := r.redis.Incr(ctx, key).Result()
		if err != nil {
			// Redis trouble should not take the payment path down
			slog.Error("rate limiter incr failed", "key", key, "error", err)
			return e.Next()
		}

		if count == 1 {
			r.redis.Expire(ctx, key, r.window)
		}

		if count > r.limit {
			return apis.NewApiError(http.StatusTooManyRequests,
				"Rate limit exceeded. Please try again later.", nil)
		}

		return e.Next()
	}
}
