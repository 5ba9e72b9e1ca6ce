// Package cache is a small bounded cache keyed by content hashes.
package cache

import (
	"encoding/hex"

	"github.com/dgraph-io/ristretto"
	"github.com/spaolacci/murmur3"
)

// Cache is a bounded, concurrency-safe cache. Every entry costs 1, so size is
// the maximum number of entries. Writes are applied asynchronously; a Get
// right after a Set may miss.
type Cache struct {
	cache *ristretto.Cache
}

// New creates a cache holding up to size entries.
func New(size int64) (*Cache, error) {
	if size <= 0 {
		size = 1
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10 * size,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{cache: c}, nil
}

// Get returns the cached value for key.
func (c *Cache) Get(key string) (any, bool) {
	return c.cache.Get(key)
}

// Set stores a value. It may be dropped under contention.
func (c *Cache) Set(key string, value any) {
	c.cache.Set(key, value, 1)
}

// Del removes a key.
func (c *Cache) Del(key string) {
	c.cache.Del(key)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.cache.Clear()
}

// Wait blocks until pending writes are applied.
func (c *Cache) Wait() {
	c.cache.Wait()
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	c.cache.Close()
}

// Key hashes parts into a stable murmur3 128-bit key.
// Parts are separated so ("ab","c") and ("a","bc") differ.
func Key(parts ...string) string {
	h := murmur3.New128()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
