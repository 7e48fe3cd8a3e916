package redislimiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/PaulFidika/userauth/ratelimit"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "auth:rl:"

// Limiter is a Redis-backed sliding window limiter using ZSETs, shared by
// all replicas.
type Limiter struct {
	rdb     redis.Cmdable
	limits  map[string]ratelimit.Limit
	timeout time.Duration
}

// New constructs a limiter. A nil map uses ratelimit.DefaultLimits.
func New(rdb redis.Cmdable, limits map[string]ratelimit.Limit) *Limiter {
	if limits == nil {
		limits = ratelimit.DefaultLimits()
	}
	return &Limiter{rdb: rdb, limits: limits, timeout: 500 * time.Millisecond}
}

// AllowNamed satisfies the adapter's RateLimiter interface.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	return l.AllowNamedCtx(ctx, bucket, key)
}

func (l *Limiter) AllowNamedCtx(ctx context.Context, bucket, key string) (bool, error) {
	if l == nil || l.rdb == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, fmt.Errorf("bucket and key required")
	}
	lim := ratelimit.Resolve(l.limits, bucket)
	now := time.Now().UnixMilli()
	start := now - lim.Window.Milliseconds()
	limitKey := keyPrefix + bucket + ":" + key
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, limitKey, "0", strconv.FormatInt(start, 10))
	pipe.ZAdd(ctx, limitKey, redis.Z{Score: float64(now), Member: member})
	countCmd := pipe.ZCard(ctx, limitKey)
	pipe.Expire(ctx, limitKey, lim.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	count, err := countCmd.Result()
	if err != nil {
		return false, err
	}
	if count > int64(lim.Limit) {
		l.rdb.ZRem(ctx, limitKey, member)
		return false, nil
	}
	return true, nil
}
