package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// NonceStore implements ports.NonceStore using Redis SET NX. Nonces are
// scoped per operator, so two operators may reuse the same value.
type NonceStore struct {
	client goredis.Cmdable
	prefix string
}

// NewNonceStore creates a new Redis-backed nonce store.
func NewNonceStore(client goredis.Cmdable) *NonceStore {
	return &NonceStore{
		client: client,
		prefix: keyPrefix + "nonce:",
	}
}

// CheckAndSet atomically records the nonce. It returns true if the nonce is
// new and false if it was already used within ttl.
func (s *NonceStore) CheckAndSet(ctx context.Context, operatorID string, nonce string, ttl time.Duration) (bool, error) {
	fresh, err := s.client.SetNX(ctx, s.prefix+operatorID+":"+nonce, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis nonce check: %w", err)
	}
	return fresh, nil
}
