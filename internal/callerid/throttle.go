package callerid

import (
	"context"
	"time"

	"voip-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Throttle limits how often a code may be sent to one number. Release hands
// back a claim whose send never went out.
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisThrottle claims a key for interval with SET NX.
type RedisThrottle struct {
	rdb      *redis.Client
	interval time.Duration
}

func NewRedisThrottle(rdb *redis.Client, interval time.Duration) *RedisThrottle {
	return &RedisThrottle{rdb: rdb, interval: interval}
}

func (t *RedisThrottle) Allow(ctx context.Context, key string) (bool, error) {
	return utils.AcquireThrottle(ctx, t.rdb, key, t.interval)
}

func (t *RedisThrottle) Release(ctx context.Context, key string) error {
	return utils.ReleaseThrottle(ctx, t.rdb, key)
}

// NoThrottle allows every send.
type NoThrottle struct{}

func (NoThrottle) Allow(context.Context, string) (bool, error) { return true, nil }
func (NoThrottle) Release(context.Context, string) error         { return nil }
