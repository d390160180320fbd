package calls

import (
	"context"
	"time"

	"voip-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Limiter caps concurrent calls per user. A slot is taken for a call before
// the provider is asked to dial and given back when the call turns terminal.
// Both operations are idempotent per call.
type Limiter interface {
	Acquire(ctx context.Context, userID, callID string) (bool, error)
	Release(ctx context.Context, userID, callID string) error
}

// RedisLimiter keeps one sorted set of live call ids per user. Each slot
// expires on its own after ttl, which bounds a slot leaked by a crash to
// roughly one long call.
type RedisLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisLimiter(rdb *redis.Client, limit int, ttl time.Duration) *RedisLimiter {
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	return &RedisLimiter{rdb: rdb, limit: limit, ttl: ttl}
}

func (l *RedisLimiter) Acquire(ctx context.Context, userID, callID string) (bool, error) {
	return utils.AcquireSlot(ctx, l.rdb, limiterKey(userID), callID, l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context, userID, callID string) error {
	return utils.ReleaseSlot(ctx, l.rdb, limiterKey(userID), callID)
}

func limiterKey(userID string) string { return "calls:active:" + userID }

// NoLimit admits every call.
type NoLimit struct{}

func (NoLimit) Acquire(context.Context, string, string) (bool, error) { return true, nil }
func (NoLimit) Release(context.Context, string, string) error         { return nil }
