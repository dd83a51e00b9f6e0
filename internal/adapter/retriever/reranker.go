package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"docqa/internal/logger"
	"docqa/internal/port"
)

// CohereReranker scores (question, passage) pairs through a Cohere-style
// rerank endpoint. Relevance scores come back in [0,1].
type CohereReranker struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

func NewCohereReranker(apiKeyEnv, model, baseURL string) (*CohereReranker, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	if model == "" {
		model = "rerank-multilingual-v3.0"
	}
	if baseURL == "" {
		baseURL = "https://api.cohere.ai/v1"
	}

	return &CohereReranker{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (r *CohereReranker) Rerank(ctx context.Context, question string, passages []string) ([]port.RerankedResult, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	const maxDocs = 1000
	if len(passages) > maxDocs {
		passages = passages[:maxDocs]
	}

	jsonData, err := json.Marshal(rerankRequest{
		Query:     question,
		Documents: passages,
		Model:     r.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+"/rerank", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var rerankResp rerankResponse
	if err := json.Unmarshal(body, &rerankResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	results := make([]port.RerankedResult, 0, len(rerankResp.Results))
	for _, res := range rerankResp.Results {
		if res.Index < 0 || res.Index >= len(passages) {
			return nil, fmt.Errorf("API returned out-of-range index %d", res.Index)
		}
		results = append(results, port.RerankedResult{
			Index: res.Index,
			Score: clamp01(res.RelevanceScore),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})

	return results, nil
}

func (r *CohereReranker) ModelName() string {
	return r.model
}

// LocalReranker scores passages by query term overlap. It is the offline
// stand-in when no rerank service is configured, cheap and deterministic.
type LocalReranker struct {
	tokenizer port.Tokenizer
}

func NewLocalReranker(tokenizer port.Tokenizer) *LocalReranker {
	return &LocalReranker{tokenizer: tokenizer}
}

func (r *LocalReranker) Rerank(_ context.Context, question string, passages []string) ([]port.RerankedResult, error) {
	queryTerms := make(map[string]struct{})
	for _, t := range r.tokenizer.Tokenize(question) {
		queryTerms[t] = struct{}{}
	}

	results := make([]port.RerankedResult, len(passages))
	for i, passage := range passages {
		results[i] = port.RerankedResult{
			Index: i,
			Score: termOverlap(queryTerms, r.tokenizer.Tokenize(passage)),
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})

	return results, nil
}

func (r *LocalReranker) ModelName() string {
	return "local-term-overlap"
}

func termOverlap(queryTerms map[string]struct{}, passageTokens []string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(passageTokens))
	matches := 0
	for _, t := range passageTokens {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, hit := queryTerms[t]; hit {
			matches++
		}
	}
	return float64(matches) / float64(len(queryTerms))
}

// NewAutoReranker picks the Cohere backend when its API key is configured
// and falls back to the local reranker otherwise.
func NewAutoReranker(apiKeyEnv, model, baseURL string, tokenizer port.Tokenizer) port.Reranker {
	if reranker, err := NewCohereReranker(apiKeyEnv, model, baseURL); err == nil {
		return reranker
	}
	logger.Debug("no rerank API key configured, using local term-overlap reranker")
	return NewLocalReranker(tokenizer)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
