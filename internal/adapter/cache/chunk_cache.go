// Package cache holds processed chunks keyed by document content and
// chunking configuration, so re-ingesting an unchanged document skips the
// split entirely. Entries live in a bounded in-memory LRU backed by the
// catalog, and concurrent requests for the same key produce at most once.
package cache

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"docqa/internal/domain"
	"docqa/internal/port"
)

type ChunkCache struct {
	mu      sync.RWMutex
	entries map[string][]domain.Chunk
	order   []string
	maxSize int

	group   singleflight.Group
	catalog port.Catalog
}

// New creates a chunk cache. catalog may be nil, in which case entries are
// memory-only.
func New(maxSize int, catalog port.Catalog) *ChunkCache {
	if maxSize <= 0 {
		maxSize = 64
	}
	return &ChunkCache{
		entries: make(map[string][]domain.Chunk),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		catalog: catalog,
	}
}

func cacheKey(contentHash, configHash string) string {
	return contentHash + "|" + configHash
}

// GetOrCreate returns the cached chunks for the content/config pair, or
// runs produce and stores its result. Concurrent callers with the same key
// share a single produce invocation.
func (c *ChunkCache) GetOrCreate(contentHash, configHash string, produce func() ([]domain.Chunk, error)) ([]domain.Chunk, bool, error) {
	key := cacheKey(contentHash, configHash)

	if chunks, ok := c.get(key); ok {
		return chunks, true, nil
	}

	hit := false
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if chunks, ok := c.get(key); ok {
			hit = true
			return chunks, nil
		}
		if c.catalog != nil {
			chunks, ok, err := c.catalog.GetCachedChunks(contentHash, configHash)
			if err == nil && ok {
				c.put(key, chunks)
				hit = true
				return chunks, nil
			}
		}

		chunks, err := produce()
		if err != nil {
			return nil, err
		}

		c.put(key, chunks)
		if c.catalog != nil {
			if perr := c.catalog.PutCachedChunks(contentHash, configHash, chunks); perr != nil {
				// The in-memory entry still serves this process; only the
				// persisted copy is lost.
				return chunks, nil
			}
		}
		return chunks, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]domain.Chunk), hit, nil
}

// Invalidate drops every entry for the given content hash, across all
// chunking configurations.
func (c *ChunkCache) Invalidate(contentHash string) error {
	c.mu.Lock()
	prefix := contentHash + "|"
	kept := c.order[:0]
	for _, key := range c.order {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept
	c.mu.Unlock()

	if c.catalog != nil {
		return c.catalog.DeleteCachedChunks(contentHash)
	}
	return nil
}

func (c *ChunkCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// get looks up and LRU-bumps under a single write lock so no eviction can
// interleave between the lookup and the bump.
func (c *ChunkCache) get(key string) ([]domain.Chunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chunks, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToEnd(key)
	return chunks, true
}

func (c *ChunkCache) put(key string, chunks []domain.Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = chunks
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = chunks
	c.order = append(c.order, key)
}

func (c *ChunkCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *ChunkCache) moveToEnd(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, key)
}
