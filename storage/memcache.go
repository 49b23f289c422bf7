package storage

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	log "github.com/coopsys/sessionkit/logger"
)

var (
	_ Storage = (*MemCache)(nil)
	_ Closer  = (*MemCache)(nil)
)

// MemCacheConfig holds configuration for the process cache
type MemCacheConfig struct {
	// MaxCost is the maximum cost of cache (in bytes, roughly)
	MaxCost int64

	// NumCounters is the number of keys to track frequency
	NumCounters int64
}

// DefaultMemCacheConfig returns a configuration sized for the handful
// of derived values a client process caches.
func DefaultMemCacheConfig() *MemCacheConfig {
	return &MemCacheConfig{
		MaxCost:     1 << 20, // 1 MB
		NumCounters: 1e4,
	}
}

// MemCache is a ristretto-backed Storage valid for the process
// lifetime. It holds only non-secret derived values (device identity,
// tenant context mirrors), never tokens.
type MemCache struct {
	cache  *ristretto.Cache[string, string]
	config *MemCacheConfig
	logger log.Logger
}

func NewMemCache(logger log.Logger, config *MemCacheConfig) (*MemCache, error) {
	if config == nil {
		config = DefaultMemCacheConfig()
	}

	mc := &MemCache{
		config: config,
		logger: logger,
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: config.NumCounters,
		MaxCost:     config.MaxCost,
		BufferItems: 64,
		OnEvict:     mc.onEvict,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	mc.cache = cache
	return mc, nil
}

// onEvict is called when a value is evicted from the cache
func (mc *MemCache) onEvict(item *ristretto.Item[string]) {
	mc.logger.Debug("value evicted from process cache",
		log.Any("key", item.Key),
	)
}

func (mc *MemCache) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	value, found := mc.cache.Get(key)
	if !found {
		return "", ErrNotFound
	}
	return value, nil
}

func (mc *MemCache) Put(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cost := int64(len(key) + len(value))
	mc.cache.Set(key, value, cost)

	// Writes are buffered; wait so a subsequent Get observes the value.
	mc.cache.Wait()
	return nil
}

func (mc *MemCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mc.cache.Del(key)
	return nil
}

// Clear drops every cached value but keeps the cache usable.
func (mc *MemCache) Clear() {
	mc.cache.Clear()
}

// Close shuts the cache down
func (mc *MemCache) Close() error {
	mc.cache.Clear()
	mc.cache.Close()
	return nil
}
