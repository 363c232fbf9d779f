package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var _ Store = (*Redis)(nil)

const redisKeyPrefix = "docstill:cache:"

// Redis is a Store backed by a Redis instance, for sharing stage artifacts
// across processes. A zero TTL keeps entries until evicted.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (s *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

func (s *Redis) Put(ctx context.Context, key string, val []byte) error {
	if err := s.client.Set(ctx, redisKeyPrefix+key, val, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
