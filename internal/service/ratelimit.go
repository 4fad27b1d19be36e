package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	mutationRateLimit  = 60
	mutationRateWindow = time.Minute
)

// rateLimiter throttles grant mutations per actor with a fixed redis window.
// Redis failures let the request through; throttling is a safeguard, not a
// correctness requirement, and the store stays authoritative either way.
type rateLimiter struct {
	logger *slog.Logger
	redis  redis.UniversalClient
}

func (r *rateLimiter) allow(ctx context.Context, actorID string) error {
	key := fmt.Sprintf("permissions:mutations:%s", actorID)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		r.logger.Warn("rate limit check failed", "error", err)
		return nil
	}
	if count == 1 {
		r.redis.Expire(ctx, key, mutationRateWindow)
	}
	if count > mutationRateLimit {
		return ErrRateLimited
	}
	return nil
}
