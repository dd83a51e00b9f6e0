package port

import "context"

// LLM represents a language model for answer generation.
type LLM interface {
	// GenerateWithSystem generates text from a system prompt and a user
	// prompt.
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}

// RerankedResult is one scored entry from a reranker.
type RerankedResult struct {
	Index int     // Original index in the input slice
	Score float64 // Raw relevance score (higher is better)
}

// Reranker jointly scores (question, passage) pairs. Implementations score
// only the passages supplied and never expand the set.
type Reranker interface {
	Rerank(ctx context.Context, question string, passages []string) ([]RerankedResult, error)

	// ModelName returns the name of the reranking model.
	ModelName() string
}
