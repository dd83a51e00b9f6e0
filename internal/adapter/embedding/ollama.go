package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"

	"docqa/internal/domain"
)

// OllamaEmbedder generates embeddings through a local Ollama server.
type OllamaEmbedder struct {
	client     *api.Client
	model      string
	dimension  int
	batchSize  int
	maxRetries int
}

func NewOllamaEmbedder(host, model string, dimension, batchSize, maxRetries int) (*OllamaEmbedder, error) {
	hostURL := envconfig.Host()
	if host != "" {
		parsed, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = parsed
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}
	if batchSize <= 0 {
		batchSize = 32
	}

	return &OllamaEmbedder{
		client:     api.NewClient(hostURL, http.DefaultClient),
		model:      model,
		dimension:  dimension,
		batchSize:  batchSize,
		maxRetries: maxRetries,
	}, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var all [][]float32
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, vectors...)
	}

	return all, nil
}

func (e *OllamaEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, err := e.client.Embed(ctx, &api.EmbedRequest{
			Model: e.model,
			Input: texts,
		})
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Embeddings) != len(texts) {
			lastErr = fmt.Errorf("server returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
			continue
		}
		for _, v := range resp.Embeddings {
			if len(v) != e.dimension {
				return nil, fmt.Errorf("%w: model %s returned %d-dimensional vector, want %d",
					domain.ErrEmbeddingUnavailable, e.model, len(v), e.dimension)
			}
		}
		return resp.Embeddings, nil
	}

	return nil, fmt.Errorf("%w: %d attempts exhausted: %v", domain.ErrEmbeddingUnavailable, e.maxRetries+1, lastErr)
}

func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

func (e *OllamaEmbedder) ModelName() string {
	return e.model
}
