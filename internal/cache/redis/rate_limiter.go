package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfold/obagg/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowSrc string

// APILimiter implements domain.RateLimiter with a sliding-window counter
// over a Redis sorted set, evaluated atomically by a Lua script. The window
// is shared across server instances, unlike the in-process per-exchange
// limiter that paces outbound fetches.
type APILimiter struct {
	rdb    *redis.Client
	script *redis.Script
}

// NewAPILimiter wraps an existing client in a shared rate limiter.
func NewAPILimiter(rdb *redis.Client) *APILimiter {
	return &APILimiter{
		rdb:    rdb,
		script: redis.NewScript(slidingWindowSrc),
	}
}

var _ domain.RateLimiter = (*APILimiter)(nil)

// Allow records a request for key and reports whether it fits inside the
// window. Timestamps are microseconds so bursts within the same millisecond
// still order correctly.
func (l *APILimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateDecision, error) {
	res, err := l.script.Run(ctx, l.rdb,
		[]string{"obagg:rl:" + key},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return domain.RateDecision{}, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) != 2 {
		return domain.RateDecision{}, fmt.Errorf("redis: rate limit %s: script returned %d values", key, len(res))
	}

	return domain.RateDecision{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
	}, nil
}
