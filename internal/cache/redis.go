package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis is a Redis-backed Store. Read errors degrade to misses and write
// errors are logged, so a Redis outage never blocks the request path.
type Redis struct {
	client      *redis.Client
	scanPattern string
}

// NewRedis wraps a Redis client. scanPattern bounds FlushAll; empty means
// every key in the selected database. A nil client returns nil, making the
// backend optional.
func NewRedis(client *redis.Client, scanPattern string) *Redis {
	if client == nil {
		return nil
	}
	if scanPattern == "" {
		scanPattern = "*"
	}
	return &Redis{client: client, scanPattern: scanPattern}
}

// Get returns the value and true on a hit. Backend errors are logged at
// debug and reported as misses.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	if r == nil || r.client == nil {
		return nil, false
	}

	opCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	value, err := r.client.Get(opCtx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().
				Err(err).
				Str("key", key).
				Msg("Redis get error - treating as cache miss")
		}
		return nil, false
	}
	return value, true
}

// Set stores the value with the given TTL. Failures are logged and returned,
// but callers are free to ignore them.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("cache not initialized")
	}
	if ttl <= 0 {
		return r.Delete(ctx, key)
	}

	opCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := r.client.Set(opCtx, key, value, ttl).Err(); err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to write cache entry")
		return err
	}
	return nil
}

// Delete removes the key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	opCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := r.client.Del(opCtx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key: %w", err)
	}
	return nil
}

// FlushAll removes every key matching the configured scan pattern.
func (r *Redis) FlushAll(ctx context.Context) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	iter := r.client.Scan(opCtx, 0, r.scanPattern, 0).Iterator()
	count := 0
	for iter.Next(opCtx) {
		if err := r.client.Del(opCtx, iter.Val()).Err(); err != nil {
			log.Warn().
				Err(err).
				Str("key", iter.Val()).
				Msg("Failed to delete cache key")
		} else {
			count++
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan error: %w", err)
	}

	log.Info().
		Int("keys_deleted", count).
		Str("pattern", r.scanPattern).
		Msg("Cache flushed")
	return nil
}

// Health verifies the Redis connection.
func (r *Redis) Health(ctx context.Context) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	opCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.client.Ping(opCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
