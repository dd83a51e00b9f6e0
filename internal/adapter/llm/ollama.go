package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"

	"docqa/internal/domain"
)

// OllamaClient generates answers through a local Ollama server using its
// chat API.
type OllamaClient struct {
	client      *api.Client
	model       string
	temperature float64
	maxRetries  int
}

func NewOllamaClient(host, model string, temperature float64, maxRetries int) (*OllamaClient, error) {
	hostURL := envconfig.Host()
	if host != "" {
		parsed, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = parsed
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &OllamaClient{
		client:      api.NewClient(hostURL, http.DefaultClient),
		model:       model,
		temperature: temperature,
		maxRetries:  maxRetries,
	}, nil
}

func (c *OllamaClient) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream: &stream,
		Options: map[string]any{
			"temperature": c.temperature,
		},
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := llmRetryBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", domain.ErrLLMUnavailable, ctx.Err())
			case <-time.After(delay):
			}
		}

		var sb strings.Builder
		err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			sb.WriteString(resp.Message.Content)
			return nil
		})
		if err == nil {
			return sb.String(), nil
		}
		lastErr = err
	}

	return "", fmt.Errorf("%w: %d attempts exhausted: %v", domain.ErrLLMUnavailable, c.maxRetries+1, lastErr)
}

func (c *OllamaClient) ModelName() string {
	return c.model
}
