package port

import (
	"context"

	"docqa/internal/domain"
)

// LexicalHit is one scored result from the lexical index.
type LexicalHit struct {
	ChunkID string
	Score   float64
}

// LexicalIndex is a BM25 term index over chunks. Index and Remove are
// atomic with respect to concurrent Search calls: a search never observes
// a partially-added or partially-removed document.
type LexicalIndex interface {
	Index(records []domain.IndexRecord) error

	Remove(chunkIDs []string) error

	// Search scores chunks against the query tokens and returns the top k.
	// A non-empty docFilter restricts candidates to that document.
	Search(queryTokens []string, k int, docFilter string) ([]LexicalHit, error)

	Stats() domain.Stats
}

// VectorHit is one similarity result from the vector store.
type VectorHit struct {
	ChunkID    string
	Similarity float64
}

// VectorStore is a nearest-neighbor index over chunk embeddings using
// cosine similarity. The reference implementation scans brute force; a
// production implementation may substitute an approximate index without
// changing callers. Same atomicity requirement as LexicalIndex.
type VectorStore interface {
	Upsert(ctx context.Context, records []domain.IndexRecord) error

	Delete(ctx context.Context, chunkIDs []string) error

	// Query returns the k nearest chunks to the vector. A non-empty
	// docFilter restricts candidates to that document.
	Query(ctx context.Context, vector []float32, k int, docFilter string) ([]VectorHit, error)

	Count() (int, error)
}
