package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter is a sliding-window counter over a Redis sorted set. Each request
// becomes a member scored by its nanosecond timestamp; members older than
// the window are pruned on every call, so the cardinality of a key is
// bounded by the window's request budget.
type Limiter struct {
	Client *redis.Client
	Prefix string
}

// Allow records one request under key and reports whether it fits the
// window. Remaining counts down to zero; reset is the end of the current
// window. A nil client or non-positive budget disables limiting.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}

	now := time.Now()
	reset = now.Add(window)
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)
	entry := redis.Z{
		Score:  float64(now.UnixNano()),
		Member: key + ":" + uuid.NewString(),
	}

	bucket := l.Prefix + key
	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, bucket, "-inf", cutoff)
	pipe.ZAdd(ctx, bucket, entry)
	count := pipe.ZCard(ctx, bucket)
	pipe.Expire(ctx, bucket, window)
	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, reset, err
	}

	seen := int(count.Val())
	remaining = max - seen
	if remaining < 0 {
		remaining = 0
	}
	return seen <= max, remaining, reset, nil
}
