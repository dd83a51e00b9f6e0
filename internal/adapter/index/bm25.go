// Package index provides the in-memory lexical index used for keyword
// retrieval. Scoring is BM25 over tokenized chunk text. Writers build a
// fresh snapshot and swap it in atomically, so searches never observe a
// half-applied update.
package index

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"docqa/internal/domain"
	"docqa/internal/port"
)

type BM25Index struct {
	k1        float64
	b         float64
	tokenizer port.Tokenizer

	writeMu  sync.Mutex
	snapshot atomic.Pointer[bm25Snapshot]
}

type bm25Snapshot struct {
	postings    map[string]map[string]int // term -> chunkID -> tf
	lengths     map[string]int            // chunkID -> token count
	docOf       map[string]string         // chunkID -> document name
	totalTokens int
}

func NewBM25Index(k1, b float64, tokenizer port.Tokenizer) *BM25Index {
	if k1 <= 0 {
		k1 = 1.2
	}
	if b < 0 || b > 1 {
		b = 0.75
	}
	idx := &BM25Index{k1: k1, b: b, tokenizer: tokenizer}
	idx.snapshot.Store(emptySnapshot())
	return idx
}

func emptySnapshot() *bm25Snapshot {
	return &bm25Snapshot{
		postings: make(map[string]map[string]int),
		lengths:  make(map[string]int),
		docOf:    make(map[string]string),
	}
}

func (s *bm25Snapshot) clone() *bm25Snapshot {
	next := &bm25Snapshot{
		postings:    make(map[string]map[string]int, len(s.postings)),
		lengths:     make(map[string]int, len(s.lengths)),
		docOf:       make(map[string]string, len(s.docOf)),
		totalTokens: s.totalTokens,
	}
	for term, posting := range s.postings {
		copied := make(map[string]int, len(posting))
		for id, tf := range posting {
			copied[id] = tf
		}
		next.postings[term] = copied
	}
	for id, l := range s.lengths {
		next.lengths[id] = l
	}
	for id, doc := range s.docOf {
		next.docOf[id] = doc
	}
	return next
}

// Index adds or replaces the given records. The update becomes visible to
// searches all at once.
func (i *BM25Index) Index(records []domain.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}

	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	next := i.snapshot.Load().clone()
	for _, rec := range records {
		next.remove(rec.ChunkID)

		tokens := i.tokenizer.Tokenize(rec.Text)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for term, count := range tf {
			posting := next.postings[term]
			if posting == nil {
				posting = make(map[string]int)
				next.postings[term] = posting
			}
			posting[rec.ChunkID] = count
		}
		next.lengths[rec.ChunkID] = len(tokens)
		next.docOf[rec.ChunkID] = rec.DocName
		next.totalTokens += len(tokens)
	}

	i.snapshot.Store(next)
	return nil
}

// Remove drops the given chunks from the index. Unknown IDs are ignored.
func (i *BM25Index) Remove(chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	next := i.snapshot.Load().clone()
	for _, id := range chunkIDs {
		next.remove(id)
	}

	i.snapshot.Store(next)
	return nil
}

func (s *bm25Snapshot) remove(chunkID string) {
	length, ok := s.lengths[chunkID]
	if !ok {
		return
	}
	for term, posting := range s.postings {
		if _, hit := posting[chunkID]; hit {
			delete(posting, chunkID)
			if len(posting) == 0 {
				delete(s.postings, term)
			}
		}
	}
	delete(s.lengths, chunkID)
	delete(s.docOf, chunkID)
	s.totalTokens -= length
}

// Search scores chunks containing any query token and returns the top k by
// descending score. docFilter, when non-empty, restricts results to one
// document.
func (i *BM25Index) Search(queryTokens []string, k int, docFilter string) ([]port.LexicalHit, error) {
	if len(queryTokens) == 0 || k <= 0 {
		return nil, nil
	}

	snap := i.snapshot.Load()
	totalChunks := len(snap.lengths)
	if totalChunks == 0 {
		return nil, nil
	}
	avgDl := float64(snap.totalTokens) / float64(totalChunks)
	if avgDl == 0 {
		return nil, nil
	}

	scores := make(map[string]float64)
	for _, term := range queryTokens {
		posting, ok := snap.postings[term]
		if !ok {
			continue
		}

		n := float64(len(posting))
		N := float64(totalChunks)
		idf := math.Log((N-n+0.5)/(n+0.5) + 1)

		for chunkID, tf := range posting {
			if docFilter != "" && snap.docOf[chunkID] != docFilter {
				continue
			}
			dl := float64(snap.lengths[chunkID])
			tfFloat := float64(tf)
			scores[chunkID] += idf * (tfFloat * (i.k1 + 1)) / (tfFloat + i.k1*(1-i.b+i.b*dl/avgDl))
		}
	}

	hits := make([]port.LexicalHit, 0, len(scores))
	for chunkID, score := range scores {
		hits = append(hits, port.LexicalHit{ChunkID: chunkID, Score: score})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ChunkID < hits[b].ChunkID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (i *BM25Index) Stats() domain.Stats {
	snap := i.snapshot.Load()
	stats := domain.Stats{TotalChunks: len(snap.lengths)}
	if stats.TotalChunks > 0 {
		stats.AvgChunkLen = float64(snap.totalTokens) / float64(stats.TotalChunks)
	}
	return stats
}
