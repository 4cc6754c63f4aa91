// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package token

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBlacklist stores revoked ids as Redis keys that expire with the token.
type RedisBlacklist struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisBlacklist creates a RedisBlacklist.
func NewRedisBlacklist(client redis.UniversalClient) *RedisBlacklist {
	return &RedisBlacklist{redis: client, prefix: "blacklist:", now: time.Now}
}

// Revoke implements Blacklist with SET NX, so the first caller wins.
func (b *RedisBlacklist) Revoke(ctx context.Context, jti string, userID int64, until time.Time) (bool, error) {
	ttl := until.Sub(b.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := b.redis.SetNX(ctx, b.prefix+jti, userID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// IsRevoked implements Blacklist.
func (b *RedisBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.redis.Exists(ctx, b.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// RevocationStore is the persistence the database blacklist needs.
type RevocationStore interface {
	RevokeToken(ctx context.Context, jti string, userID int64, expiresAt time.Time) (bool, error)
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// DatabaseBlacklist keeps revoked ids in the revoked_tokens table.
type DatabaseBlacklist struct {
	store RevocationStore
}

// NewDatabaseBlacklist creates a DatabaseBlacklist.
func NewDatabaseBlacklist(store RevocationStore) *DatabaseBlacklist {
	return &DatabaseBlacklist{store: store}
}

// Revoke implements Blacklist.
func (b *DatabaseBlacklist) Revoke(ctx context.Context, jti string, userID int64, until time.Time) (bool, error) {
	return b.store.RevokeToken(ctx, jti, userID, until)
}

// IsRevoked implements Blacklist.
func (b *DatabaseBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return b.store.IsTokenRevoked(ctx, jti)
}
