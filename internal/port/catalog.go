package port

import "docqa/internal/domain"

// Catalog persists the document registry and chunk metadata. It is the
// source of truth for what has been ingested; the lexical index and vector
// store hold derived data.
type Catalog interface {
	PutDocument(doc domain.Document) error

	GetDocument(name string) (domain.Document, error)

	// FindByContentHash returns the document with the given content hash,
	// if any. Used for idempotent re-uploads.
	FindByContentHash(hash string) (domain.Document, bool, error)

	DeleteDocument(name string) error

	ListDocuments() ([]domain.Document, error)

	PutChunks(chunks []domain.Chunk) error

	GetChunk(id string) (domain.Chunk, error)

	GetChunksByDoc(name string) ([]domain.Chunk, error)

	DeleteChunksByDoc(name string) error

	// PutCachedChunks and GetCachedChunks persist processor output keyed by
	// (content hash, config hash) so restarts keep the document cache warm.
	PutCachedChunks(contentHash, configHash string, chunks []domain.Chunk) error

	GetCachedChunks(contentHash, configHash string) ([]domain.Chunk, bool, error)

	DeleteCachedChunks(contentHash string) error

	Close() error
}
