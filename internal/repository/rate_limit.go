package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"room_chat/pkg/logger"
)

type RateLimitRepository interface {
	// Hit counts one request against key. It returns the count within the
	// current fixed window and the time left until the window resets.
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type rateLimitRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewRateLimitRepository(redis *redis.Client, log logger.Logger) RateLimitRepository {
	return &rateLimitRepository{redis: redis, log: log}
}

func (r *rateLimitRepository) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to increment rate limit", "error", err, "key", key)
		return 0, 0, err
	}

	count, left := incr.Val(), ttl.Val()
	// a fresh key (or one that lost its expiry) starts a new window
	if count == 1 || left < 0 {
		if err := r.redis.PExpire(ctx, key, window).Err(); err != nil {
			r.log.Warn("Failed to set rate limit window", "error", err, "key", key)
		}
		left = window
	}
	return count, left, nil
}
