package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker hands out short-lived exclusive leases keyed by name.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker builds a locker on an existing client.
func NewRedisLocker(r *Redis, prefix string) *RedisLocker {
	if r == nil {
		return &RedisLocker{prefix: prefix}
	}
	return &RedisLocker{client: r.Client, prefix: prefix}
}

// TryLock acquires key for ttl. The returned release func is a no-op when
// the lock was not acquired.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, func(context.Context), error) {
	noop := func(context.Context) {}
	if l == nil || l.client == nil {
		return false, noop, errors.New("redis client not configured")
	}
	fullKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return false, noop, err
	}
	if !ok {
		return false, noop, nil
	}
	release := func(ctx context.Context) {
		_ = releaseLockScript.Run(ctx, l.client, []string{fullKey}, token).Err()
	}
	return true, release, nil
}
