package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGate counts calls per identifier+category in a fixed window keyed in
// redis. First increment in a window sets the expiry; TTL on rejection
// becomes the retry hint.
type RedisGate struct {
	rdb    *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

func NewRedisGate(rdb *redis.Client, prefix string, limit int, window time.Duration) *RedisGate {
	return &RedisGate{rdb: rdb, prefix: prefix, limit: int64(limit), window: window}
}

func (g *RedisGate) Check(ctx context.Context, identifier, category string) (Result, error) {
	key := fmt.Sprintf("%s:%s:%s", g.prefix, category, identifier)
	count, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, err
	}
	if count == 1 {
		g.rdb.Expire(ctx, key, g.window)
	}
	if count > g.limit {
		ttl, err := g.rdb.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = g.window
		}
		return Result{Allowed: false, RetryAfter: ttl}, nil
	}
	return Result{Allowed: true}, nil
}
