package soletic

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryCacheEntries = 1000

// CacheKey identifies a deployment lookup.
type CacheKey struct {
	Address string
	Network Network
}

// String renders the key as stored in the persisted cache file.
func (k CacheKey) String() string {
	return k.Address + "_" + string(k.Network)
}

// DeploymentCache stores resolved deployment timestamps.
type DeploymentCache interface {
	Get(key CacheKey) (int64, bool)
	Put(key CacheKey, timestamp int64) error
	EvictIfNeeded()
}

// MemoryCache is a bounded in-process cache. Reads never refresh an entry,
// so once full the oldest inserted entry is evicted first.
type MemoryCache struct {
	capacity int
	store    *lru.Cache[string, int64]
	logger   Logger
}

// NewMemoryCache builds a cache holding at most capacity entries. A
// non-positive capacity falls back to SOLETIC_CACHE_MAX_ENTRIES or 1000.
func NewMemoryCache(capacity int, logger Logger) (*MemoryCache, error) {
	if capacity <= 0 {
		capacity = loadIntEnv(cacheMaxEntriesEnv, defaultMemoryCacheEntries)
	}
	if capacity <= 0 {
		capacity = defaultMemoryCacheEntries
	}
	if logger == nil {
		logger = NewDiscardLogger()
	}
	store, err := lru.NewWithEvict[string, int64](capacity, func(key string, _ int64) {
		logger.Debugf("memory cache evicted key=%s", key)
	})
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	return &MemoryCache{
		capacity: capacity,
		store:    store,
		logger:   logger,
	}, nil
}

func (c *MemoryCache) Get(key CacheKey) (int64, bool) {
	if c == nil {
		return 0, false
	}
	return c.store.Peek(key.String())
}

func (c *MemoryCache) Put(key CacheKey, timestamp int64) error {
	if c == nil {
		return nil
	}
	c.store.Add(key.String(), timestamp)
	c.EvictIfNeeded()
	return nil
}

// EvictIfNeeded drops the oldest entries beyond capacity.
func (c *MemoryCache) EvictIfNeeded() {
	if c == nil {
		return
	}
	for c.store.Len() > c.capacity {
		if _, _, ok := c.store.RemoveOldest(); !ok {
			return
		}
	}
}

// Len reports the number of cached entries.
func (c *MemoryCache) Len() int {
	if c == nil {
		return 0
	}
	return c.store.Len()
}

// Purge empties the cache.
func (c *MemoryCache) Purge() {
	if c == nil {
		return
	}
	c.store.Purge()
}

// TieredCache consults memory first, then the persisted store. Disk hits are
// promoted into memory; writes go to both tiers.
type TieredCache struct {
	memory *MemoryCache
	disk   *FileStore
	logger Logger
}

// NewTieredCache composes the two tiers. disk may be nil for a memory-only cache.
func NewTieredCache(memory *MemoryCache, disk *FileStore, logger Logger) *TieredCache {
	if logger == nil {
		logger = NewDiscardLogger()
	}
	return &TieredCache{memory: memory, disk: disk, logger: logger}
}

// OpenCache opens the persisted store at path and fronts it with a memory tier.
func OpenCache(path string, logger Logger) (*TieredCache, error) {
	memory, err := NewMemoryCache(0, logger)
	if err != nil {
		return nil, err
	}
	disk, err := OpenFileStore(path, logger)
	if err != nil {
		return nil, err
	}
	return NewTieredCache(memory, disk, logger), nil
}

// OpenDefaultCache opens the cache under the configured cache directory.
func OpenDefaultCache(logger Logger) (*TieredCache, error) {
	path, err := DefaultCacheFilePath()
	if err != nil {
		return nil, err
	}
	return OpenCache(path, logger)
}

func (c *TieredCache) Get(key CacheKey) (int64, bool) {
	start := time.Now()
	if value, ok := c.memory.Get(key); ok {
		recordCacheLookup("memory")
		c.logger.Debugf("cache hit tier=memory key=%s elapsed=%s", key, time.Since(start))
		return value, true
	}
	if value, ok := c.disk.Get(key); ok {
		recordCacheLookup("disk")
		c.logger.Debugf("cache hit tier=disk key=%s elapsed=%s", key, time.Since(start))
		_ = c.memory.Put(key, value)
		return value, true
	}
	recordCacheLookup("miss")
	return 0, false
}

func (c *TieredCache) Put(key CacheKey, timestamp int64) error {
	if err := c.memory.Put(key, timestamp); err != nil {
		return err
	}
	if err := c.disk.Put(key, timestamp); err != nil {
		return fmt.Errorf("persist cache entry %s: %w", key, err)
	}
	return nil
}

func (c *TieredCache) EvictIfNeeded() {
	c.memory.EvictIfNeeded()
}

// Clear empties both tiers and removes the persisted file.
func (c *TieredCache) Clear() error {
	c.memory.Purge()
	return c.disk.Clear()
}
