package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/sa-platform/sa/pkg/cache/redis"
	"github.com/sa-platform/sa/pkg/cache/sqlite"
	"github.com/sa-platform/sa/pkg/config"
	"github.com/sa-platform/sa/pkg/models"
)

// Store persists fingerprint to result mappings.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key. A missing key is a miss, never an error.
	Get(ctx context.Context, key string) (models.CacheValue, bool)

	// Put inserts or overwrites key and persists it before returning.
	Put(ctx context.Context, key string, value models.CacheValue) error

	// Clear removes every entry and returns how many there were.
	Clear(ctx context.Context) (int, error)

	// Size returns the current number of entries.
	Size(ctx context.Context) int

	// Close releases any resources held by the store.
	Close() error
}

// Cache wraps a Store for one generator kind. Get only reports a hit when
// every artifact the entry references is still reachable.
type Cache struct {
	store     Store
	namespace string
	backend   string
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

// New wraps store. backend is a label used in stats output.
func New(store Store, namespace, backend string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:     store,
		namespace: namespace,
		backend:   backend,
		logger:    logger.With("cache", namespace),
	}
}

// Open builds the store selected by cfg.Cache.Backend for namespace.
func Open(ctx context.Context, cfg *config.Config, namespace string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		store Store
		err   error
	)
	switch cfg.Cache.Backend {
	case "", config.BackendJSON:
		store = NewIndex(cfg.CacheDir(namespace), logger)
	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.Cache.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		store, err = sqlite.New(filepath.Join(cfg.Cache.Dir, "cache.db"), namespace)
	case config.BackendRedis:
		store, err = redis.New(ctx, cfg.Cache.RedisURL, namespace, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.Cache.Backend, err)
	}
	backend := cfg.Cache.Backend
	if backend == "" {
		backend = config.BackendJSON
	}
	return New(store, namespace, backend, logger), nil
}

// Get returns the cached value when the key exists and its artifacts are
// still reachable.
func (c *Cache) Get(ctx context.Context, key string) (models.CacheValue, bool) {
	v, ok := c.store.Get(ctx, key)
	if !ok || v.IsZero() {
		c.misses.Add(1)
		return models.CacheValue{}, false
	}
	if !Reachable(v) {
		c.logger.Info("cache entry stale, treating as miss", "key", key)
		c.misses.Add(1)
		return models.CacheValue{}, false
	}
	c.hits.Add(1)
	return v, true
}

// Put stores value under key.
func (c *Cache) Put(ctx context.Context, key string, value models.CacheValue) error {
	if err := c.store.Put(ctx, key, value); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	n, err := c.store.Clear(ctx)
	if err != nil {
		return n, fmt.Errorf("cache clear: %w", err)
	}
	c.logger.Info("cache cleared", "entries", n)
	return n, nil
}

// Size returns the number of stored entries.
func (c *Cache) Size(ctx context.Context) int {
	return c.store.Size(ctx)
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

// Stats returns the entry count and hit ratio inputs.
func (c *Cache) Stats(ctx context.Context) models.CacheStats {
	return models.CacheStats{
		Kind:    c.namespace,
		Backend: c.backend,
		Entries: c.store.Size(ctx),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// Reachable reports whether every item in v can still be served. Remote URLs
// count as reachable once recorded; local paths must exist.
func Reachable(v models.CacheValue) bool {
	for _, item := range v.Items() {
		if item == "" {
			return false
		}
		if strings.HasPrefix(item, "http://") || strings.HasPrefix(item, "https://") {
			continue
		}
		if _, err := os.Stat(item); err != nil {
			return false
		}
	}
	return true
}
