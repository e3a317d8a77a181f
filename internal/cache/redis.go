package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "checkin:cache:"

// RedisKV backs the cache with redis, for deployments where several kiosk
// processes on one site share the provisioned user list.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV connects to redis with short timeouts.
func NewRedisKV(addr string) *RedisKV {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &RedisKV{client: client}
}

// Get returns the stored bytes, or (nil, nil) when the key is absent.
func (s *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Set stores value under key with no expiry.
func (s *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, redisPrefix+key, value, 0).Err()
}

// Delete removes key; deleting an absent key is not an error.
func (s *RedisKV) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisPrefix+key).Err()
}

// Healthy verifies redis connectivity.
func (s *RedisKV) Healthy(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}
