package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"docqa/internal/domain"
	"docqa/internal/port"
)

// memCatalog is an in-memory Catalog for pipeline tests.
type memCatalog struct {
	mu     sync.Mutex
	docs   map[string]domain.Document
	byHash map[string]string
	chunks map[string]domain.Chunk
	perDoc map[string][]string
	cached map[string][]domain.Chunk
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		docs:   make(map[string]domain.Document),
		byHash: make(map[string]string),
		chunks: make(map[string]domain.Chunk),
		perDoc: make(map[string][]string),
		cached: make(map[string][]domain.Chunk),
	}
}

func (m *memCatalog) PutDocument(doc domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.Name] = doc
	m.byHash[doc.ContentHash] = doc.Name
	return nil
}

func (m *memCatalog) GetDocument(name string) (domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[name]
	if !ok {
		return domain.Document{}, fmt.Errorf("%w: document %s", domain.ErrNotFound, name)
	}
	return doc, nil
}

func (m *memCatalog) FindByContentHash(hash string) (domain.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.byHash[hash]
	if !ok {
		return domain.Document{}, false, nil
	}
	doc, ok := m.docs[name]
	return doc, ok, nil
}

func (m *memCatalog) DeleteDocument(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[name]
	if !ok {
		return fmt.Errorf("%w: document %s", domain.ErrNotFound, name)
	}
	delete(m.byHash, doc.ContentHash)
	delete(m.docs, name)
	return nil
}

func (m *memCatalog) ListDocuments() ([]domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := make([]domain.Document, 0, len(m.docs))
	for _, d := range m.docs {
		docs = append(docs, d)
	}
	return docs, nil
}

func (m *memCatalog) PutChunks(chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks[c.ID] = c
		m.perDoc[c.DocName] = append(m.perDoc[c.DocName], c.ID)
	}
	return nil
}

func (m *memCatalog) GetChunk(id string) (domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[id]
	if !ok {
		return domain.Chunk{}, fmt.Errorf("%w: chunk %s", domain.ErrNotFound, id)
	}
	return c, nil
}

func (m *memCatalog) GetChunksByDoc(name string) ([]domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Chunk
	for _, id := range m.perDoc[name] {
		if c, ok := m.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCatalog) DeleteChunksByDoc(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.perDoc[name] {
		delete(m.chunks, id)
	}
	delete(m.perDoc, name)
	return nil
}

func (m *memCatalog) PutCachedChunks(contentHash, configHash string, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached[contentHash+"|"+configHash] = chunks
	return nil
}

func (m *memCatalog) GetCachedChunks(contentHash, configHash string) ([]domain.Chunk, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunks, ok := m.cached[contentHash+"|"+configHash]
	return chunks, ok, nil
}

func (m *memCatalog) DeleteCachedChunks(contentHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.cached {
		if len(key) > len(contentHash) && key[:len(contentHash)+1] == contentHash+"|" {
			delete(m.cached, key)
		}
	}
	return nil
}

func (m *memCatalog) Close() error { return nil }

// fakeLexical records indexed chunk IDs and can be told to fail.
type fakeLexical struct {
	mu      sync.Mutex
	ids     map[string]bool
	failPut bool
}

func newFakeLexical() *fakeLexical {
	return &fakeLexical{ids: make(map[string]bool)}
}

func (f *fakeLexical) Index(records []domain.IndexRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut {
		return errors.New("lexical index down")
	}
	for _, r := range records {
		f.ids[r.ChunkID] = true
	}
	return nil
}

func (f *fakeLexical) Remove(chunkIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range chunkIDs {
		delete(f.ids, id)
	}
	return nil
}

func (f *fakeLexical) Search([]string, int, string) ([]port.LexicalHit, error) {
	return nil, nil
}

func (f *fakeLexical) Stats() domain.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.Stats{TotalChunks: len(f.ids)}
}

func (f *fakeLexical) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids)
}

// fakeVectors records upserted chunk IDs and can fail either operation.
type fakeVectors struct {
	mu         sync.Mutex
	ids        map[string]bool
	failUpsert bool
	failDelete bool
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{ids: make(map[string]bool)}
}

func (f *fakeVectors) Upsert(_ context.Context, records []domain.IndexRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert {
		return errors.New("vector store down")
	}
	for _, r := range records {
		f.ids[r.ChunkID] = true
	}
	return nil
}

func (f *fakeVectors) Delete(_ context.Context, chunkIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return errors.New("vector delete down")
	}
	for _, id := range chunkIDs {
		delete(f.ids, id)
	}
	return nil
}

func (f *fakeVectors) Query(context.Context, []float32, int, string) ([]port.VectorHit, error) {
	return nil, nil
}

func (f *fakeVectors) Count() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids), nil
}

// fakeExtractor returns one page per newline-separated block.
type fakeExtractor struct {
	err error
}

func (f *fakeExtractor) Extract(data []byte) ([]domain.PageText, []domain.TOCEntry, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return []domain.PageText{{Page: 1, Text: string(data)}}, nil, nil
}

// fakeChunker splits extracted text into fixed two-word chunks.
type fakeChunker struct {
	calls int
}

func (f *fakeChunker) Process(docName, contentHash string, pages []domain.PageText, _ []domain.TOCEntry) ([]domain.Chunk, error) {
	f.calls++
	var chunks []domain.Chunk
	for _, p := range pages {
		chunks = append(chunks, domain.Chunk{
			ID:         fmt.Sprintf("%s-%04d", contentHash[:16], len(chunks)),
			DocName:    docName,
			Seq:        len(chunks),
			Text:       p.Text,
			Page:       p.Page,
			TokenCount: 10,
		})
	}
	return chunks, nil
}

func (f *fakeChunker) ConfigHash() string { return "testcfg" }

// fakeEmbedder returns fixed-size vectors and counts calls.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int    { return 2 }
func (f *fakeEmbedder) ModelName() string { return "fake-embed" }

// fakeLLM echoes a canned answer.
type fakeLLM struct {
	answer     string
	err        error
	lastPrompt string
}

func (f *fakeLLM) GenerateWithSystem(_ context.Context, _, userPrompt string) (string, error) {
	f.lastPrompt = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeLLM) ModelName() string { return "fake-llm" }
