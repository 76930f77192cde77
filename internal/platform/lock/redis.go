package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medimart/medimart/internal/platform/apperr"
)

// RedisLocker is a Locker shared by every instance pointed at the same Redis.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  time.Duration
	prefix string
	logger zerolog.Logger
}

// NewRedisLocker parses redisURL ("redis://host:6379/0") and pings the server.
func NewRedisLocker(ctx context.Context, redisURL string, ttl time.Duration, logger zerolog.Logger) (*RedisLocker, *redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisLocker{
		client: redislock.New(rdb),
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		prefix: "medimart:lock:",
		logger: logger,
	}, rdb, nil
}

// Acquire retries until the lock is obtained or ctx is done. The lock expires
// after the configured TTL if the holder dies.
func (r *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lk, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.retry),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, apperr.Conflict("resource %s is busy, try again", key)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.Persistence(err, "obtain lock %s", key)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := lk.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.logger.Warn().Err(err).Str("key", key).Msg("release redis lock")
		}
	}, nil
}
