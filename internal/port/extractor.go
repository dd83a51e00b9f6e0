package port

import "docqa/internal/domain"

// Extractor turns raw PDF bytes into page-tagged text plus an optional
// table of contents. Extraction itself is an external concern; the core
// only depends on this boundary.
type Extractor interface {
	Extract(data []byte) ([]domain.PageText, []domain.TOCEntry, error)
}
