package port

import "docqa/internal/domain"

// Chunker splits page-tagged document text into ordered chunks.
// Implementations must be deterministic: identical input and configuration
// always produce an identical chunk sequence.
type Chunker interface {
	Process(docName string, contentHash string, pages []domain.PageText, toc []domain.TOCEntry) ([]domain.Chunk, error)

	// ConfigHash identifies the chunking configuration; a changed
	// configuration produces a different hash and therefore a different
	// cache key.
	ConfigHash() string
}
