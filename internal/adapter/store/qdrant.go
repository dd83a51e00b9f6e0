package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"docqa/internal/domain"
	"docqa/internal/port"
)

// QdrantVectorStore talks to a Qdrant server over its REST API. Point IDs
// are UUIDs derived from chunk IDs, so upserts for the same chunk always
// land on the same point.
type QdrantVectorStore struct {
	baseURL    string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

func NewQdrantVectorStore(ctx context.Context, baseURL, apiKeyEnv, collection string, dimension int) (*QdrantVectorStore, error) {
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	if collection == "" {
		collection = "docqa_chunks"
	}

	s := &QdrantVectorStore{
		baseURL:    baseURL,
		apiKey:     os.Getenv(apiKeyEnv),
		collection: collection,
		dimension:  dimension,
		client:     &http.Client{Timeout: 30 * time.Second},
	}

	if err := s.ensureCollection(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare collection %s: %w", collection, err)
	}
	return s, nil
}

func (s *QdrantVectorStore) ensureCollection(ctx context.Context) error {
	_, err := s.doRequest(ctx, http.MethodGet, "/collections/"+s.collection, nil)
	if err == nil {
		return nil
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	_, err = s.doRequest(ctx, http.MethodPut, "/collections/"+s.collection, body)
	return err
}

func (s *QdrantVectorStore) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// pointID maps a chunk ID onto a stable UUID, which Qdrant requires as the
// point identifier.
func pointID(chunkID string) string {
	sum := sha256.Sum256([]byte(chunkID))
	return fmt.Sprintf("%x-%x-%x-%x-%x", sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}

func (s *QdrantVectorStore) Upsert(ctx context.Context, records []domain.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		if len(rec.Vector) != s.dimension {
			return fmt.Errorf("vector dimension mismatch for chunk %s: expected %d, got %d",
				rec.ChunkID, s.dimension, len(rec.Vector))
		}
		points = append(points, map[string]interface{}{
			"id":     pointID(rec.ChunkID),
			"vector": rec.Vector,
			"payload": map[string]interface{}{
				"chunk_id": rec.ChunkID,
				"doc_name": rec.DocName,
			},
		})
	}

	_, err := s.doRequest(ctx, http.MethodPut,
		"/collections/"+s.collection+"/points?wait=true",
		map[string]interface{}{"points": points})
	return err
}

func (s *QdrantVectorStore) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	ids := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = pointID(id)
	}

	_, err := s.doRequest(ctx, http.MethodPost,
		"/collections/"+s.collection+"/points/delete?wait=true",
		map[string]interface{}{"points": ids})
	return err
}

type qdrantSearchResponse struct {
	Result []struct {
		Score   float64                `json:"score"`
		Payload map[string]interface{} `json:"payload"`
	} `json:"result"`
}

func (s *QdrantVectorStore) Query(ctx context.Context, vector []float32, k int, docFilter string) ([]port.VectorHit, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", s.dimension, len(vector))
	}
	if k <= 0 {
		return nil, nil
	}

	body := map[string]interface{}{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if docFilter != "" {
		body["filter"] = map[string]interface{}{
			"must": []map[string]interface{}{
				{"key": "doc_name", "match": map[string]interface{}{"value": docFilter}},
			},
		}
	}

	respBody, err := s.doRequest(ctx, http.MethodPost,
		"/collections/"+s.collection+"/points/search", body)
	if err != nil {
		return nil, err
	}

	var resp qdrantSearchResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	hits := make([]port.VectorHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		chunkID, _ := r.Payload["chunk_id"].(string)
		if chunkID == "" {
			continue
		}
		hits = append(hits, port.VectorHit{ChunkID: chunkID, Similarity: r.Score})
	}
	return hits, nil
}

type qdrantCountResponse struct {
	Result struct {
		Count int `json:"count"`
	} `json:"result"`
}

func (s *QdrantVectorStore) Count() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	respBody, err := s.doRequest(ctx, http.MethodPost,
		"/collections/"+s.collection+"/points/count",
		map[string]interface{}{"exact": true})
	if err != nil {
		return 0, err
	}

	var resp qdrantCountResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, fmt.Errorf("failed to parse count response: %w", err)
	}
	return resp.Result.Count, nil
}
