package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"docqa/internal/port"
)

// CachedEmbedder wraps an embedder with a bounded per-text vector cache.
// Keys include the model name so switching models never serves stale
// vectors.
type CachedEmbedder struct {
	inner port.Embedder

	mu      sync.Mutex
	entries map[string][]float32
	order   []string
	maxSize int
}

func NewCached(inner port.Embedder, maxSize int) *CachedEmbedder {
	if maxSize <= 0 {
		maxSize = 4096
	}
	return &CachedEmbedder{
		inner:   inner,
		entries: make(map[string][]float32),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

func (e *CachedEmbedder) textKey(text string) string {
	hash := sha256.Sum256([]byte(e.inner.ModelName() + "|" + text))
	return hex.EncodeToString(hash[:16])
}

// Embed serves cached vectors where possible and forwards only the misses,
// preserving input order in the result.
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	e.mu.Lock()
	for i, text := range texts {
		key := e.textKey(text)
		if v, ok := e.entries[key]; ok {
			vectors[i] = v
			e.moveToEnd(key)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	e.mu.Unlock()

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := e.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	for j, i := range missIdx {
		vectors[i] = fresh[j]
		e.put(e.textKey(missTexts[j]), fresh[j])
	}
	e.mu.Unlock()

	return vectors, nil
}

func (e *CachedEmbedder) Dimension() int {
	return e.inner.Dimension()
}

func (e *CachedEmbedder) ModelName() string {
	return e.inner.ModelName()
}

func (e *CachedEmbedder) Size() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

func (e *CachedEmbedder) put(key string, vector []float32) {
	if _, exists := e.entries[key]; exists {
		e.entries[key] = vector
		e.moveToEnd(key)
		return
	}
	if len(e.entries) >= e.maxSize {
		oldest := e.order[0]
		e.order = e.order[1:]
		delete(e.entries, oldest)
	}
	e.entries[key] = vector
	e.order = append(e.order, key)
}

func (e *CachedEmbedder) moveToEnd(key string) {
	for i, k := range e.order {
		if k == key {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.order = append(e.order, key)
}
