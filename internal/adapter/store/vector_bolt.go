package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.etcd.io/bbolt"

	"docqa/internal/domain"
	"docqa/internal/port"
)

var bucketVectors = []byte("vectors")

// BoltVectorStore keeps chunk embeddings in bbolt with an in-memory copy
// for search. Search scans brute force with cosine similarity, which is
// fine at single-machine corpus sizes; an approximate index can replace it
// behind the same interface.
type BoltVectorStore struct {
	db        *bbolt.DB
	dimension int

	mu      sync.RWMutex
	vectors map[string]vectorEntry
}

type vectorEntry struct {
	vector  []float32
	docName string
}

type storedVector struct {
	Vector  []float32 `json:"v"`
	DocName string    `json:"d"`
}

func NewBoltVectorStore(db *bbolt.DB, dimension int) (*BoltVectorStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketVectors)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vectors bucket: %w", err)
	}

	s := &BoltVectorStore{
		db:        db,
		dimension: dimension,
		vectors:   make(map[string]vectorEntry),
	}

	if err := s.loadVectors(); err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}

	return s, nil
}

func (s *BoltVectorStore) loadVectors() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil // skip corrupted entries
			}
			s.vectors[string(k)] = vectorEntry{
				vector:  stored.Vector,
				docName: stored.DocName,
			}
			return nil
		})
	})
}

func (s *BoltVectorStore) Upsert(ctx context.Context, records []domain.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, rec := range records {
		if len(rec.Vector) != s.dimension {
			return fmt.Errorf("vector dimension mismatch for chunk %s: expected %d, got %d",
				rec.ChunkID, s.dimension, len(rec.Vector))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return fmt.Errorf("vectors bucket not found")
		}
		for _, rec := range records {
			data, err := json.Marshal(storedVector{Vector: rec.Vector, DocName: rec.DocName})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(rec.ChunkID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Mirror into memory only after the transaction committed; a rolled
	// back write must not leave entries searchable.
	for _, rec := range records {
		s.vectors[rec.ChunkID] = vectorEntry{vector: rec.Vector, docName: rec.DocName}
	}
	return nil
}

func (s *BoltVectorStore) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return nil
		}
		for _, id := range chunkIDs {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range chunkIDs {
		delete(s.vectors, id)
	}
	return nil
}

func (s *BoltVectorStore) Query(ctx context.Context, vector []float32, k int, docFilter string) ([]port.VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", s.dimension, len(vector))
	}
	if len(s.vectors) == 0 || k <= 0 {
		return nil, nil
	}

	hits := make([]port.VectorHit, 0, len(s.vectors))
	for id, entry := range s.vectors {
		if docFilter != "" && entry.docName != docFilter {
			continue
		}
		hits = append(hits, port.VectorHit{
			ChunkID:    id,
			Similarity: cosineSimilarity(vector, entry.vector),
		})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Similarity != hits[b].Similarity {
			return hits[a].Similarity > hits[b].Similarity
		}
		return hits[a].ChunkID < hits[b].ChunkID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *BoltVectorStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
