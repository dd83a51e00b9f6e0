package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"docqa/internal/domain"
)

type qdrantFake struct {
	collections map[string]bool
	points      map[string]map[string]interface{}
	searchHits  []map[string]interface{}
}

func newQdrantFake() *qdrantFake {
	return &qdrantFake{
		collections: make(map[string]bool),
		points:      make(map[string]map[string]interface{}),
	}
}

func (f *qdrantFake) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/test":
			if !f.collections["test"] {
				http.Error(w, `{"status":"collection not found"}`, http.StatusNotFound)
				return
			}
			w.Write([]byte(`{"result":{}}`))

		case r.Method == http.MethodPut && r.URL.Path == "/collections/test":
			f.collections["test"] = true
			w.Write([]byte(`{"result":true}`))

		case r.Method == http.MethodPut && r.URL.Path == "/collections/test/points":
			var body struct {
				Points []map[string]interface{} `json:"points"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			for _, p := range body.Points {
				f.points[p["id"].(string)] = p
			}
			w.Write([]byte(`{"result":{}}`))

		case r.Method == http.MethodPost && r.URL.Path == "/collections/test/points/delete":
			var body struct {
				Points []string `json:"points"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			for _, id := range body.Points {
				delete(f.points, id)
			}
			w.Write([]byte(`{"result":{}}`))

		case r.Method == http.MethodPost && r.URL.Path == "/collections/test/points/search":
			json.NewEncoder(w).Encode(map[string]interface{}{"result": f.searchHits})

		case r.Method == http.MethodPost && r.URL.Path == "/collections/test/points/count":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"result": map[string]int{"count": len(f.points)},
			})

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.Error(w, "unexpected", http.StatusBadRequest)
		}
	}
}

func newTestQdrant(t *testing.T, fake *qdrantFake) *QdrantVectorStore {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	vs, err := NewQdrantVectorStore(context.Background(), srv.URL, "", "test", vecDim)
	if err != nil {
		t.Fatalf("failed to create qdrant store: %v", err)
	}
	return vs
}

func TestQdrantCreatesMissingCollection(t *testing.T) {
	fake := newQdrantFake()
	newTestQdrant(t, fake)

	if !fake.collections["test"] {
		t.Error("collection was not created")
	}
}

func TestQdrantUpsertDeleteCount(t *testing.T) {
	fake := newQdrantFake()
	vs := newTestQdrant(t, fake)
	ctx := context.Background()

	err := vs.Upsert(ctx, []domain.IndexRecord{
		vecRecord("c1", "a.pdf", []float32{1, 0, 0, 0}),
		vecRecord("c2", "a.pdf", []float32{0, 1, 0, 0}),
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if count, _ := vs.Count(); count != 2 {
		t.Errorf("expected 2 points, got %d", count)
	}

	// Upsert of the same chunk must hit the same point.
	vs.Upsert(ctx, []domain.IndexRecord{
		vecRecord("c1", "a.pdf", []float32{0.5, 0.5, 0, 0}),
	})
	if count, _ := vs.Count(); count != 2 {
		t.Errorf("re-upsert created a new point, count %d", count)
	}

	if err := vs.Delete(ctx, []string{"c1"}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if count, _ := vs.Count(); count != 1 {
		t.Errorf("expected 1 point after delete, got %d", count)
	}
}

func TestQdrantQueryMapsPayload(t *testing.T) {
	fake := newQdrantFake()
	vs := newTestQdrant(t, fake)

	fake.searchHits = []map[string]interface{}{
		{"score": 0.9, "payload": map[string]interface{}{"chunk_id": "c7", "doc_name": "a.pdf"}},
		{"score": 0.4, "payload": map[string]interface{}{"chunk_id": "c2", "doc_name": "a.pdf"}},
	}

	hits, err := vs.Query(context.Background(), []float32{1, 0, 0, 0}, 5, "")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ChunkID != "c7" || hits[0].Similarity != 0.9 {
		t.Errorf("unexpected first hit: %+v", hits[0])
	}
}

func TestQdrantQueryRejectsWrongDimension(t *testing.T) {
	fake := newQdrantFake()
	vs := newTestQdrant(t, fake)

	if _, err := vs.Query(context.Background(), []float32{1}, 5, ""); err == nil {
		t.Error("expected dimension error")
	}
}
