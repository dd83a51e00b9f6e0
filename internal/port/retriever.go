package port

import (
	"context"

	"docqa/internal/domain"
)

// Retriever searches the indexed corpus for chunks matching a question.
type Retriever interface {
	// Retrieve returns the top-k fused candidates for the question.
	// A non-empty docFilter restricts the search to one document.
	Retrieve(ctx context.Context, question string, docFilter string, k int) ([]domain.RetrievalCandidate, error)
}
