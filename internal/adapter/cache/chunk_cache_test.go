package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"docqa/internal/domain"
)

func testChunks(contentHash string, n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ID:      fmt.Sprintf("%s-%04d", contentHash[:16], i),
			DocName: "doc.pdf",
			Seq:     i,
			Text:    fmt.Sprintf("chunk %d", i),
		}
	}
	return chunks
}

const hashA = "aaaaaaaaaaaaaaaaaaaaaaaa"
const hashB = "bbbbbbbbbbbbbbbbbbbbbbbb"

func TestGetOrCreateProducesOnce(t *testing.T) {
	c := New(8, nil)

	calls := 0
	produce := func() ([]domain.Chunk, error) {
		calls++
		return testChunks(hashA, 3), nil
	}

	chunks, hit, err := c.GetOrCreate(hashA, "cfg1", produce)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit {
		t.Error("first call should not be a hit")
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	_, hit, err = c.GetOrCreate(hashA, "cfg1", produce)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit {
		t.Error("second call should hit")
	}
	if calls != 1 {
		t.Errorf("produce ran %d times, want 1", calls)
	}
}

func TestGetOrCreateDistinctConfigs(t *testing.T) {
	c := New(8, nil)

	calls := 0
	produce := func() ([]domain.Chunk, error) {
		calls++
		return testChunks(hashA, 1), nil
	}

	c.GetOrCreate(hashA, "cfg1", produce)
	c.GetOrCreate(hashA, "cfg2", produce)

	if calls != 2 {
		t.Errorf("different configs must produce separately, got %d calls", calls)
	}
}

func TestGetOrCreateConcurrentSingleProduce(t *testing.T) {
	c := New(8, nil)

	var calls atomic.Int32
	release := make(chan struct{})
	produce := func() ([]domain.Chunk, error) {
		calls.Add(1)
		<-release
		return testChunks(hashA, 2), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chunks, _, err := c.GetOrCreate(hashA, "cfg1", produce)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if len(chunks) != 2 {
				t.Errorf("expected 2 chunks, got %d", len(chunks))
			}
		}()
	}
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("produce ran %d times, want 1", n)
	}
}

func TestGetOrCreatePropagatesError(t *testing.T) {
	c := New(8, nil)

	boom := errors.New("extraction failed")
	_, _, err := c.GetOrCreate(hashA, "cfg1", func() ([]domain.Chunk, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected produce error, got %v", err)
	}

	// A failed produce must not poison the key.
	calls := 0
	_, hit, err := c.GetOrCreate(hashA, "cfg1", func() ([]domain.Chunk, error) {
		calls++
		return testChunks(hashA, 1), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit || calls != 1 {
		t.Errorf("expected a fresh produce after failure, hit=%v calls=%d", hit, calls)
	}
}

func TestInvalidateDropsAllConfigsForHash(t *testing.T) {
	c := New(8, nil)

	produce := func() ([]domain.Chunk, error) { return testChunks(hashA, 1), nil }
	c.GetOrCreate(hashA, "cfg1", produce)
	c.GetOrCreate(hashA, "cfg2", produce)
	c.GetOrCreate(hashB, "cfg1", func() ([]domain.Chunk, error) { return testChunks(hashB, 1), nil })

	if err := c.Invalidate(hashA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Size() != 1 {
		t.Errorf("expected only the other document to remain, size %d", c.Size())
	}

	calls := 0
	_, hit, _ := c.GetOrCreate(hashA, "cfg1", func() ([]domain.Chunk, error) {
		calls++
		return testChunks(hashA, 1), nil
	})
	if hit || calls != 1 {
		t.Errorf("invalidated entry should be reproduced, hit=%v calls=%d", hit, calls)
	}

	_, hit, _ = c.GetOrCreate(hashB, "cfg1", produce)
	if !hit {
		t.Error("unrelated document lost its entry")
	}
}

func TestConcurrentHitsAndInvalidationsKeepOrderConsistent(t *testing.T) {
	c := New(4, nil)

	produce := func(hash string) func() ([]domain.Chunk, error) {
		return func() ([]domain.Chunk, error) { return testChunks(hash, 1), nil }
	}
	hashes := []string{hashA, hashB, "cccccccccccccccccccccccc", "dddddddddddddddddddddddd"}
	for _, h := range hashes {
		c.GetOrCreate(h, "cfg", produce(h))
	}

	var wg sync.WaitGroup
	for _, h := range hashes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.GetOrCreate(h, "cfg", produce(h))
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if err := c.Invalidate(h); err != nil {
					t.Errorf("invalidate failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) != len(c.entries) {
		t.Fatalf("order and entries drifted: %d keys in order, %d entries", len(c.order), len(c.entries))
	}
	seen := make(map[string]bool, len(c.order))
	for _, key := range c.order {
		if seen[key] {
			t.Errorf("key %s appears twice in order", key)
		}
		seen[key] = true
		if _, ok := c.entries[key]; !ok {
			t.Errorf("key %s in order has no entry", key)
		}
	}
}

func TestEvictionKeepsRecentlyUsed(t *testing.T) {
	c := New(2, nil)

	mk := func(hash string) func() ([]domain.Chunk, error) {
		return func() ([]domain.Chunk, error) { return testChunks(hash, 1), nil }
	}
	hashC := "cccccccccccccccccccccccc"

	c.GetOrCreate(hashA, "cfg", mk(hashA))
	c.GetOrCreate(hashB, "cfg", mk(hashB))
	c.GetOrCreate(hashA, "cfg", mk(hashA)) // refresh A
	c.GetOrCreate(hashC, "cfg", mk(hashC)) // evicts B

	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}

	_, hit, _ := c.GetOrCreate(hashA, "cfg", mk(hashA))
	if !hit {
		t.Error("recently used entry was evicted")
	}
	calls := 0
	c.GetOrCreate(hashB, "cfg", func() ([]domain.Chunk, error) {
		calls++
		return testChunks(hashB, 1), nil
	})
	if calls != 1 {
		t.Error("oldest entry should have been evicted")
	}
}
