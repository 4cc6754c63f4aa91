// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// compareAndDeleteLua deletes KEYS[1] when its value equals ARGV[1].
// Returns 1 when the key was deleted, 0 otherwise.
var compareAndDeleteLua = redis.NewScript(`
local stored = redis.call('GET', KEYS[1])
if not stored then
  return 0
end
if stored ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

// RedisStore keeps codes in Redis so that several instances share them.
type RedisStore struct {
	redis redis.UniversalClient
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client}
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key, digest string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, key, digest, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// CompareAndDelete implements Store. Expiry is left to Redis.
func (s *RedisStore) CompareAndDelete(ctx context.Context, key, digest string) (bool, error) {
	n, err := compareAndDeleteLua.Run(ctx, s.redis, []string{key}, digest).Int()
	if err != nil {
		return false, fmt.Errorf("redis compare-and-delete: %w", err)
	}
	return n == 1, nil
}
