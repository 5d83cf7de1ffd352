package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIndex implements Index on Redis for multi-instance deployments.
// SET NX gives the required atomic insert-if-absent without any Lua.
type RedisIndex struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisIndex builds an index over the given Redis instance. Entries never
// expire when ttl is zero.
func NewRedisIndex(addr, password string, db int, ttl time.Duration) *RedisIndex {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisIndex{client: rdb, prefix: "evidence:", ttl: ttl}
}

// NewRedisIndexWithClient wraps an existing client, for tests and shared
// connection pools.
func NewRedisIndexWithClient(client *redis.Client, ttl time.Duration) *RedisIndex {
	return &RedisIndex{client: client, prefix: "evidence:", ttl: ttl}
}

func (r *RedisIndex) InsertIfAbsent(ctx context.Context, hash, contributionID string) (string, bool, error) {
	key := r.prefix + hash
	inserted, err := r.client.SetNX(ctx, key, contributionID, r.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("evidence index setnx: %w", err)
	}
	if inserted {
		return contributionID, true, nil
	}
	owner, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return "", false, fmt.Errorf("evidence index get: %w", err)
	}
	return owner, false, nil
}
