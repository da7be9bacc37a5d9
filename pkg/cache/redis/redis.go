// Package redis implements a fingerprint cache store on a Redis hash, for
// deployments where several workers share results.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sa-platform/sa/pkg/models"
)

// KeyPrefix is prepended to the namespace to form the hash key.
const KeyPrefix = "sa:cache:"

// Store keeps one Redis hash per namespace, field = fingerprint.
type Store struct {
	client *goredis.Client
	key    string
	logger *slog.Logger
}

// New connects to url and verifies the connection. A nil logger uses
// slog.Default.
func New(ctx context.Context, url, namespace string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	key := KeyPrefix + namespace
	logger = logger.With("key", key)
	logger.Info("redis cache connected")

	return &Store{client: client, key: key, logger: logger}, nil
}

// Key returns the hash key this store writes to.
func (s *Store) Key() string { return s.key }

// Get retrieves a cached value. Redis errors are reported as misses.
func (s *Store) Get(ctx context.Context, key string) (models.CacheValue, bool) {
	data, err := s.client.HGet(ctx, s.key, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			s.logger.Warn("redis cache get failed", "err", err)
		}
		return models.CacheValue{}, false
	}

	var v models.CacheValue
	if err := json.Unmarshal(data, &v); err != nil {
		s.logger.Warn("redis cache entry corrupt", "field", key, "err", err)
		return models.CacheValue{}, false
	}
	return v, true
}

// Put stores a value in the namespace hash.
func (s *Store) Put(ctx context.Context, key string, value models.CacheValue) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, key, data).Err(); err != nil {
		return fmt.Errorf("failed to set cache in redis: %w", err)
	}
	return nil
}

// Clear deletes the namespace hash.
func (s *Store) Clear(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count redis cache: %w", err)
	}
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return 0, fmt.Errorf("failed to clear redis cache: %w", err)
	}
	return int(n), nil
}

// Size returns the number of fields in the namespace hash.
func (s *Store) Size(ctx context.Context) int {
	n, err := s.client.HLen(ctx, s.key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
