package reconcile

import (
	"context"
	"time"

	"voip-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisLock is held for ttl and never released early, so runs across
// replicas are at least ttl apart.
type RedisLock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{rdb: rdb, key: key, ttl: ttl}
}

func (l *RedisLock) TryLock(ctx context.Context) (bool, error) {
	return utils.AcquireThrottle(ctx, l.rdb, l.key, l.ttl)
}
