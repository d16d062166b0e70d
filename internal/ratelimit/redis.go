package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pipeliner is the slice of the Redis client the limiter uses.
type Pipeliner interface {
	TxPipeline() redis.Pipeliner
}

// Redis is a fixed-window limiter shared by every instance. Each window is
// one counter key that expires with the window.
type Redis struct {
	client Pipeliner
	prefix string
	now    func() time.Time
}

func NewRedis(client Pipeliner, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix, now: time.Now}
}

func (l *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := l.now()
	slot := now.UnixMilli() / window.Milliseconds()
	resetAt := time.UnixMilli((slot + 1) * window.Milliseconds())
	counter := l.prefix + key + ":" + strconv.FormatInt(slot, 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, counter)
	pipe.PExpire(ctx, counter, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	hits := int(incr.Val())
	if hits > limit {
		return Result{Allowed: false, Limit: limit, ResetAt: resetAt}, nil
	}
	return Result{Allowed: true, Limit: limit, Remaining: limit - hits, ResetAt: resetAt}, nil
}
