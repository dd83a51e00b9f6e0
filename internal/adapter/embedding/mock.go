package embedding

import "context"

// MockEmbedder produces deterministic vectors derived from text bytes.
// Intended for tests and offline runs.
type MockEmbedder struct {
	dimension int
	Calls     int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.Calls++
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, e.dimension)
		for j, r := range texts[i] {
			vectors[i][j%e.dimension] += float32(r) / 1000.0
		}
	}
	return vectors, nil
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}
