package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisLimiter is a fixed-window limiter shared by every process talking to the same Redis.
// A window key is created with its expiry and incremented in one MULTI/EXEC,
// so no counter outlives its window.
type RedisLimiter struct {
	client  redis.Cmdable
	cfg     Config
	prefix  string
	timeout time.Duration
	log     zerolog.Logger
}

// NewRedisLimiter returns a RedisLimiter whose keys are namespaced by prefix.
func NewRedisLimiter(client redis.Cmdable, cfg Config, prefix string, log zerolog.Logger) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg, prefix: prefix, timeout: 500 * time.Millisecond, log: log}
}

// Allow counts one request for key. When Redis is unreachable the request
// is allowed and the failure logged.
func (l *RedisLimiter) Allow(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	k := "ratelimit:" + l.prefix + ":" + key
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, k, 0, l.cfg.Window)
		incr = pipe.Incr(ctx, k)
		return nil
	})
	if err != nil {
		l.log.Warn().Err(err).Str("scope", l.prefix).Msg("rate limiter backend unavailable")
		return true
	}
	return incr.Val() <= int64(l.cfg.Max)
}

// Close is a no-op; the Redis client is owned by the caller.
func (l *RedisLimiter) Close() error { return nil }
