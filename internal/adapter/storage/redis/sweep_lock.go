package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still carries the caller's
// token, so an expired holder cannot free a successor's lock.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SweepLock implements ports.SweepLock with SET NX PX and a guarded release.
type SweepLock struct {
	client goredis.Cmdable
	prefix string
}

func NewSweepLock(client goredis.Cmdable) *SweepLock {
	return &SweepLock{client: client, prefix: keyPrefix + "lock:"}
}

func (l *SweepLock) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+name, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis lock acquire: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *SweepLock) Release(ctx context.Context, name string, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.prefix + name}, token).Err(); err != nil {
		return fmt.Errorf("redis lock release: %w", err)
	}
	return nil
}
