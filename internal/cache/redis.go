// Package cache stores rendered reports in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ibeckermayer/trendteller/internal/config"
)

// KeyPrefix namespaces every key this package writes
const KeyPrefix = "trendteller:report:"

// RedisCache is a JSON cache over redis.Client. A nil *RedisCache is a
// valid cache that never hits.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis. It returns nil when no address is
// configured or the server cannot be reached, so callers run uncached.
func NewRedisCache(cfg config.RedisConfig) *RedisCache {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("Failed to connect to Redis, reports will not be cached", "addr", cfg.Addr, "err", err)
		_ = client.Close()
		return nil
	}

	slog.Info("Connected to Redis", "addr", cfg.Addr)
	return &RedisCache{client: client}
}

// Key builds a cache key from its parts
func Key(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(p)), ":", "_")
	}
	return KeyPrefix + strings.Join(escaped, ":")
}

// Get decodes the value at key into dest. found is false on a miss.
func (r *RedisCache) Get(ctx context.Context, key string, dest any) (found bool, err error) {
	if r == nil || r.client == nil {
		return false, nil
	}

	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached %s: %w", key, err)
	}
	return true, nil
}

// Set stores value as JSON with expiration
func (r *RedisCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	if r == nil || r.client == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

// Invalidate deletes every report key. Called after the store changes.
func (r *RedisCache) Invalidate(ctx context.Context) (int, error) {
	if r == nil || r.client == nil {
		return 0, nil
	}

	deleted := 0
	iter := r.client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			n, err := r.client.Del(ctx, batch...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	if len(batch) > 0 {
		n, err := r.client.Del(ctx, batch...).Result()
		if err != nil {
			return deleted, err
		}
		deleted += int(n)
	}
	return deleted, nil
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
