package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "storm-timeline:prefs:"

// RedisStore keeps preferences in Redis so several instances share them.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store for the Redis server at addr. The connection
// is established lazily.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Get returns the value stored under key and whether it exists.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key with no expiry.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

// LoadSpeed implements playback.SpeedStore.
func (s *RedisStore) LoadSpeed(ctx context.Context) (int, bool, error) {
	value, ok, err := s.Get(ctx, SpeedKey)
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := parseSpeed(value)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// SaveSpeed implements playback.SpeedStore.
func (s *RedisStore) SaveSpeed(ctx context.Context, speed int) error {
	return s.Set(ctx, SpeedKey, strconv.Itoa(speed))
}

// Ping checks the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
