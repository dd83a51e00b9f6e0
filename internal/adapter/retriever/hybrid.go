// Package retriever fuses lexical and vector search into one candidate
// list and reorders it with a cross-encoder reranker.
package retriever

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"docqa/internal/domain"
	"docqa/internal/logger"
	"docqa/internal/port"
)

// HybridRetriever runs BM25 and vector search concurrently, normalizes
// both score lists to [0,1] with min-max, and fuses them as a weighted
// sum. A chunk found by only one index keeps its weighted single-source
// score, so weights alone decide the balance between the two signals.
type HybridRetriever struct {
	lexical   port.LexicalIndex
	vectors   port.VectorStore
	embedder  port.Embedder
	catalog   port.Catalog
	tokenizer port.Tokenizer

	vectorWeight  float64
	lexicalWeight float64
	candidateK    int // 0 means derive from k
}

func NewHybrid(
	lexical port.LexicalIndex,
	vectors port.VectorStore,
	embedder port.Embedder,
	catalog port.Catalog,
	tokenizer port.Tokenizer,
	vectorWeight, lexicalWeight float64,
	candidateK int,
) *HybridRetriever {
	if vectorWeight < 0 || lexicalWeight < 0 || vectorWeight+lexicalWeight == 0 {
		vectorWeight, lexicalWeight = 0.7, 0.3
	}
	return &HybridRetriever{
		lexical:       lexical,
		vectors:       vectors,
		embedder:      embedder,
		catalog:       catalog,
		tokenizer:     tokenizer,
		vectorWeight:  vectorWeight,
		lexicalWeight: lexicalWeight,
		candidateK:    candidateK,
	}
}

func (r *HybridRetriever) poolSize(k int) int {
	if r.candidateK > 0 {
		return r.candidateK
	}
	pool := k * 3
	if pool < 20 {
		pool = 20
	}
	return pool
}

func (r *HybridRetriever) Retrieve(ctx context.Context, question, docFilter string, k int) ([]domain.RetrievalCandidate, error) {
	if k <= 0 {
		return nil, nil
	}
	pool := r.poolSize(k)

	var lexHits []port.LexicalHit
	var vecHits []port.VectorHit
	var lexErr, vecErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tokens := r.tokenizer.Tokenize(question)
		lexHits, lexErr = r.lexical.Search(tokens, pool, docFilter)
		return nil
	})
	g.Go(func() error {
		vecHits, vecErr = r.vectorQuery(gctx, question, pool, docFilter)
		return nil
	})
	g.Wait()

	// A failed leg fails the whole request. Answering from the surviving
	// index would silently drop one ranking signal.
	if lexErr != nil && vecErr != nil {
		return nil, fmt.Errorf("both retrieval paths failed: lexical: %v; vector: %w", lexErr, vecErr)
	}
	if lexErr != nil {
		return nil, fmt.Errorf("lexical search failed: %w", lexErr)
	}
	if vecErr != nil {
		return nil, fmt.Errorf("vector search failed: %w", vecErr)
	}

	candidates := r.fuse(lexHits, vecHits)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func (r *HybridRetriever) vectorQuery(ctx context.Context, question string, k int, docFilter string) ([]port.VectorHit, error) {
	vectors, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	return r.vectors.Query(ctx, vectors[0], k, docFilter)
}

// fuse merges the two hit lists into deduplicated candidates sorted by
// fused score. Ties break toward earlier chunks of the same document to
// keep ordering deterministic.
func (r *HybridRetriever) fuse(lexHits []port.LexicalHit, vecHits []port.VectorHit) []domain.RetrievalCandidate {
	byID := make(map[string]*domain.RetrievalCandidate)

	lexScores := make([]float64, len(lexHits))
	for i, h := range lexHits {
		lexScores[i] = h.Score
	}
	for i, h := range lexHits {
		norm := minMaxNormalize(lexScores, i)
		byID[h.ChunkID] = &domain.RetrievalCandidate{LexScore: &norm}
	}

	vecScores := make([]float64, len(vecHits))
	for i, h := range vecHits {
		vecScores[i] = h.Similarity
	}
	for i, h := range vecHits {
		norm := minMaxNormalize(vecScores, i)
		if cand, exists := byID[h.ChunkID]; exists {
			cand.VecScore = &norm
		} else {
			byID[h.ChunkID] = &domain.RetrievalCandidate{VecScore: &norm}
		}
	}

	candidates := make([]domain.RetrievalCandidate, 0, len(byID))
	for id, cand := range byID {
		chunk, err := r.catalog.GetChunk(id)
		if err != nil {
			// An index hit without catalog metadata is a consistency gap;
			// skip rather than fabricate a result.
			logger.Warn("index hit %s missing from catalog: %v", id, err)
			continue
		}
		cand.Chunk = chunk

		fused := 0.0
		if cand.LexScore != nil {
			fused += r.lexicalWeight * *cand.LexScore
		}
		if cand.VecScore != nil {
			fused += r.vectorWeight * *cand.VecScore
		}
		cand.Fused = fused
		candidates = append(candidates, *cand)
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Fused != candidates[b].Fused {
			return candidates[a].Fused > candidates[b].Fused
		}
		if candidates[a].Chunk.DocName != candidates[b].Chunk.DocName {
			return candidates[a].Chunk.DocName < candidates[b].Chunk.DocName
		}
		return candidates[a].Chunk.Seq < candidates[b].Chunk.Seq
	})

	return candidates
}

// minMaxNormalize maps scores[i] into [0,1] against the whole list. A
// single-element or constant list maps to 1.0 so the entry still counts.
func minMaxNormalize(scores []float64, i int) float64 {
	if len(scores) == 0 {
		return 0
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	if hi == lo {
		return 1.0
	}
	return (scores[i] - lo) / (hi - lo)
}
