package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/sa-platform/sa/pkg/models"
)

// IndexFile is the name of the JSON index inside a cache directory.
const IndexFile = "cache_index.json"

// Index is a Store backed by a single JSON file. The whole map is held in
// memory and rewritten on every Put via temp file and rename, so readers
// never observe a partial file.
type Index struct {
	mu      sync.RWMutex
	path    string
	entries map[string]models.CacheValue
	logger  *slog.Logger
}

// NewIndex loads <dir>/cache_index.json. A missing, unreadable or corrupt
// file yields an empty index.
func NewIndex(dir string, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &Index{
		path:    filepath.Join(dir, IndexFile),
		entries: make(map[string]models.CacheValue),
		logger:  logger,
	}
	idx.load()
	return idx
}

func (i *Index) load() {
	data, err := os.ReadFile(i.path)
	if err != nil {
		if !os.IsNotExist(err) {
			i.logger.Warn("cache index unreadable, starting empty", "path", i.path, "err", err)
		}
		return
	}
	var entries map[string]models.CacheValue
	if err := json.Unmarshal(data, &entries); err != nil {
		i.logger.Warn("cache index corrupt, starting empty", "path", i.path, "err", err)
		return
	}
	if entries != nil {
		i.entries = entries
	}
	i.logger.Debug("cache index loaded", "path", i.path, "entries", len(i.entries))
}

// Path returns the index file location.
func (i *Index) Path() string { return i.path }

// Get returns the value recorded for key.
func (i *Index) Get(_ context.Context, key string) (models.CacheValue, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v, ok := i.entries[key]
	return v, ok
}

// Put records value under key and flushes the index. A failed flush leaves
// the in-memory index unchanged.
func (i *Index) Put(_ context.Context, key string, value models.CacheValue) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	prev, had := i.entries[key]
	i.entries[key] = value
	if err := i.flush(); err != nil {
		if had {
			i.entries[key] = prev
		} else {
			delete(i.entries, key)
		}
		i.logger.Warn("cache index flush failed", "path", i.path, "err", err)
		return err
	}
	return nil
}

// Clear empties the index in memory and on disk. When the empty index
// cannot be written the entries are kept.
func (i *Index) Clear(_ context.Context) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	old := i.entries
	i.entries = make(map[string]models.CacheValue)
	if err := i.flush(); err != nil {
		i.entries = old
		return 0, err
	}
	return len(old), nil
}

// Size returns the number of entries.
func (i *Index) Size(_ context.Context) int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Close is a no-op; every Put is already durable.
func (i *Index) Close() error { return nil }

// flush must be called with mu held.
func (i *Index) flush() error {
	dir := filepath.Dir(i.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.MarshalIndent(i.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache index: %w", err)
	}

	tmp, err := os.CreateTemp(dir, IndexFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp index: %w", err)
	}
	if err := os.Rename(tmpName, i.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename cache index: %w", err)
	}
	return nil
}
