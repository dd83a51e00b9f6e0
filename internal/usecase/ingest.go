// Package usecase wires the adapters into the operations the CLI exposes:
// ingesting documents, answering questions, managing the corpus, and
// reporting component health.
package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"docqa/internal/domain"
	"docqa/internal/logger"
	"docqa/internal/port"
)

// ChunkCache is the document-level cache consulted before reprocessing.
type ChunkCache interface {
	GetOrCreate(contentHash, configHash string, produce func() ([]domain.Chunk, error)) ([]domain.Chunk, bool, error)
	Invalidate(contentHash string) error
}

// IngestUseCase runs the upload pipeline: extract, chunk, embed, index.
// Concurrent uploads are capped by a weighted semaphore and uploads of the
// same document name are serialized.
type IngestUseCase struct {
	extractor port.Extractor
	chunker   port.Chunker
	cache     ChunkCache
	embedder  port.Embedder
	lexical   port.LexicalIndex
	vectors   port.VectorStore
	catalog   port.Catalog

	sem *semaphore.Weighted

	mu       sync.Mutex
	docLocks map[string]*sync.Mutex
}

func NewIngest(
	extractor port.Extractor,
	chunker port.Chunker,
	cache ChunkCache,
	embedder port.Embedder,
	lexical port.LexicalIndex,
	vectors port.VectorStore,
	catalog port.Catalog,
	concurrency int,
) *IngestUseCase {
	if concurrency <= 0 {
		concurrency = 2
	}
	return &IngestUseCase{
		extractor: extractor,
		chunker:   chunker,
		cache:     cache,
		embedder:  embedder,
		lexical:   lexical,
		vectors:   vectors,
		catalog:   catalog,
		sem:       semaphore.NewWeighted(int64(concurrency)),
		docLocks:  make(map[string]*sync.Mutex),
	}
}

// IngestResult describes the outcome of one upload.
type IngestResult struct {
	Doc      domain.Document
	Skipped  bool // content already ingested
	CacheHit bool // chunks came from the processed-chunk cache
}

// ProgressFunc reports pipeline progress: the stage name plus done/total
// counts within that stage.
type ProgressFunc func(stage string, done, total int)

func (u *IngestUseCase) lockDoc(name string) *sync.Mutex {
	u.mu.Lock()
	defer u.mu.Unlock()
	l, ok := u.docLocks[name]
	if !ok {
		l = &sync.Mutex{}
		u.docLocks[name] = l
	}
	return l
}

// Ingest processes one uploaded PDF. Re-uploading identical content is a
// no-op that returns the existing document.
func (u *IngestUseCase) Ingest(ctx context.Context, name string, data []byte, progress ProgressFunc) (*IngestResult, error) {
	if name == "" || len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document upload", domain.ErrMalformedInput)
	}
	if progress == nil {
		progress = func(string, int, int) {}
	}

	if err := u.sem.Acquire(ctx, 1); err != nil {
		return nil, domain.FailAt(domain.StageIngesting, err)
	}
	defer u.sem.Release(1)

	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])

	lock := u.lockDoc(name)
	lock.Lock()
	defer lock.Unlock()

	if existing, found, err := u.catalog.FindByContentHash(contentHash); err != nil {
		return nil, domain.FailAt(domain.StageIngesting, err)
	} else if found {
		logger.Info("content of %s already ingested as %s, skipping", name, existing.Name)
		return &IngestResult{Doc: existing, Skipped: true}, nil
	}

	// Same name with new content replaces the old version.
	if _, err := u.catalog.GetDocument(name); err == nil {
		logger.Info("replacing existing document %s", name)
		if err := u.remove(ctx, name); err != nil {
			return nil, domain.FailAt(domain.StageIngesting, err)
		}
	}

	progress("extract", 0, 1)
	pages, toc, err := u.extractor.Extract(data)
	if err != nil {
		return nil, domain.FailAt(domain.StageIngesting, err)
	}
	progress("extract", 1, 1)

	cached, cacheHit, err := u.cache.GetOrCreate(contentHash, u.chunker.ConfigHash(), func() ([]domain.Chunk, error) {
		return u.chunker.Process(name, contentHash, pages, toc)
	})
	if err != nil {
		return nil, domain.FailAt(domain.StageIngesting, err)
	}
	// Cached chunks may carry the name of an earlier upload; rewrite on a
	// copy so the cache entry stays untouched.
	chunks := make([]domain.Chunk, len(cached))
	copy(chunks, cached)
	for i := range chunks {
		chunks[i].DocName = name
	}
	progress("chunk", len(chunks), len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := u.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, domain.FailAt(domain.StageIngesting, err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.FailAt(domain.StageIngesting,
			fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)))
	}
	progress("embed", len(chunks), len(chunks))

	records := make([]domain.IndexRecord, len(chunks))
	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		records[i] = domain.IndexRecord{
			ChunkID: c.ID,
			DocName: c.DocName,
			Seq:     c.Seq,
			Page:    c.Page,
			Section: c.Section,
			Text:    c.Text,
			Vector:  vectors[i],
		}
		chunkIDs[i] = c.ID
	}

	// Vector store first, lexical second. A lexical failure rolls the
	// vectors back so a chunk is never searchable in only one index.
	if err := u.vectors.Upsert(ctx, records); err != nil {
		return nil, domain.FailAt(domain.StageIngesting, err)
	}
	if err := u.lexical.Index(records); err != nil {
		if delErr := u.vectors.Delete(ctx, chunkIDs); delErr != nil {
			return nil, domain.FailAt(domain.StageIngesting,
				fmt.Errorf("%w: lexical indexing failed (%v) and vector rollback failed: %v",
					domain.ErrIndexConsistency, err, delErr))
		}
		return nil, domain.FailAt(domain.StageIngesting, err)
	}
	progress("index", len(chunks), len(chunks))

	doc := domain.Document{
		Name:        name,
		ContentHash: contentHash,
		ChunkCount:  len(chunks),
		Pages:       len(pages),
		UploadedAt:  time.Now(),
	}
	if err := u.catalog.PutChunks(chunks); err != nil {
		return nil, domain.FailAt(domain.StageIngesting, err)
	}
	if err := u.catalog.PutDocument(doc); err != nil {
		return nil, domain.FailAt(domain.StageIngesting, err)
	}

	logger.Info("ingested %s: %d pages, %d chunks (cache hit: %v)", name, len(pages), len(chunks), cacheHit)
	return &IngestResult{Doc: doc, CacheHit: cacheHit}, nil
}

// remove tears a document out of every store. Used for replacement and by
// the delete operation; callers hold the document lock where needed.
func (u *IngestUseCase) remove(ctx context.Context, name string) error {
	doc, err := u.catalog.GetDocument(name)
	if err != nil {
		return err
	}

	chunks, err := u.catalog.GetChunksByDoc(name)
	if err != nil {
		return err
	}
	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ID
	}

	var lexErr, vecErr error
	if len(chunkIDs) > 0 {
		lexErr = u.lexical.Remove(chunkIDs)
		vecErr = u.vectors.Delete(ctx, chunkIDs)
	}
	if (lexErr == nil) != (vecErr == nil) {
		return fmt.Errorf("%w: partial removal of %s: lexical=%v vector=%v",
			domain.ErrIndexConsistency, name, lexErr, vecErr)
	}
	if lexErr != nil {
		return fmt.Errorf("failed to remove %s from indexes: %w", name, lexErr)
	}

	if err := u.catalog.DeleteChunksByDoc(name); err != nil {
		return err
	}
	if err := u.catalog.DeleteDocument(name); err != nil {
		return err
	}
	if err := u.cache.Invalidate(doc.ContentHash); err != nil {
		logger.Warn("failed to invalidate chunk cache for %s: %v", name, err)
	}
	return nil
}

// Delete removes a document and all derived data.
func (u *IngestUseCase) Delete(ctx context.Context, name string) error {
	lock := u.lockDoc(name)
	lock.Lock()
	defer lock.Unlock()

	return u.remove(ctx, name)
}
