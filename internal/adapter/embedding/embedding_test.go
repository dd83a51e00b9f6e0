package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"docqa/internal/domain"
)

const testDim = 4

func embeddingServer(t *testing.T, failures int, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	var failed atomic.Int32

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if failed.Load() < int32(failures) {
			failed.Add(1)
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp := embeddingResponse{Data: make([]embeddingData, len(req.Input))}
		for i := range req.Input {
			vec := make([]float32, testDim)
			vec[0] = float32(len(req.Input[i]))
			resp.Data[i] = embeddingData{Embedding: vec, Index: i}
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestEmbedder(t *testing.T, baseURL string, batchSize, maxRetries int) *OpenAIEmbedder {
	t.Helper()
	t.Setenv("TEST_EMBED_KEY", "test-key")
	e, err := NewOpenAICompatibleEmbedder("TEST_EMBED_KEY", "test-model", baseURL, testDim, batchSize, maxRetries)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}
	return e
}

func TestOpenAIEmbedBatching(t *testing.T) {
	var requests atomic.Int32
	srv := embeddingServer(t, 0, &requests)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 2, 0)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := e.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != testDim {
			t.Fatalf("vector %d has dimension %d", i, len(v))
		}
		if v[0] != float32(len(texts[i])) {
			t.Errorf("vector %d out of order: got %v for %q", i, v[0], texts[i])
		}
	}
	if n := requests.Load(); n != 3 {
		t.Errorf("expected 3 batch requests, got %d", n)
	}
}

func TestOpenAIEmbedRetriesThenSucceeds(t *testing.T) {
	var requests atomic.Int32
	srv := embeddingServer(t, 2, &requests)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 32, 3)

	vectors, err := e.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(vectors))
	}
	if n := requests.Load(); n != 3 {
		t.Errorf("expected 3 requests (2 failures + 1 success), got %d", n)
	}
}

func TestOpenAIEmbedExhaustsRetries(t *testing.T) {
	var requests atomic.Int32
	srv := embeddingServer(t, 100, &requests)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 32, 2)

	_, err := e.Embed(context.Background(), []string{"hello"})
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if n := requests.Load(); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestOpenAIEmbedEmptyInput(t *testing.T) {
	var requests atomic.Int32
	srv := embeddingServer(t, 0, &requests)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 32, 0)

	vectors, err := e.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil result for empty input")
	}
	if requests.Load() != 0 {
		t.Error("empty input should not reach the server")
	}
}

func TestCachedEmbedderSkipsKnownTexts(t *testing.T) {
	mock := NewMockEmbedder(testDim)
	cached := NewCached(mock, 16)
	ctx := context.Background()

	first, err := cached.Embed(ctx, []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.Calls != 1 {
		t.Fatalf("expected 1 backend call, got %d", mock.Calls)
	}

	second, err := cached.Embed(ctx, []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.Calls != 1 {
		t.Errorf("full cache hit still called backend, calls=%d", mock.Calls)
	}
	for i := range first {
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("cached vector %d differs", i)
			}
		}
	}
}

func TestCachedEmbedderPartialMissKeepsOrder(t *testing.T) {
	mock := NewMockEmbedder(testDim)
	cached := NewCached(mock, 16)
	ctx := context.Background()

	direct, _ := mock.Embed(ctx, []string{"alpha", "beta", "gamma"})
	mock.Calls = 0

	cached.Embed(ctx, []string{"beta"})
	got, err := cached.Embed(ctx, []string{"alpha", "beta", "gamma"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.Calls != 2 {
		t.Errorf("expected 2 backend calls, got %d", mock.Calls)
	}
	for i := range direct {
		for j := range direct[i] {
			if got[i][j] != direct[i][j] {
				t.Fatalf("vector %d not in input order", i)
			}
		}
	}
}

func TestCachedEmbedderEviction(t *testing.T) {
	mock := NewMockEmbedder(testDim)
	cached := NewCached(mock, 2)
	ctx := context.Background()

	cached.Embed(ctx, []string{"a"})
	cached.Embed(ctx, []string{"b"})
	cached.Embed(ctx, []string{"c"})

	if cached.Size() != 2 {
		t.Fatalf("expected bounded size 2, got %d", cached.Size())
	}

	mock.Calls = 0
	cached.Embed(ctx, []string{"a"})
	if mock.Calls != 1 {
		t.Error("evicted entry should miss")
	}
}
