package cli

import (
	"context"
	"fmt"

	"docqa/config"
	"docqa/internal/adapter/analyzer"
	"docqa/internal/adapter/cache"
	"docqa/internal/adapter/embedding"
	"docqa/internal/adapter/index"
	"docqa/internal/adapter/llm"
	"docqa/internal/adapter/pdfext"
	"docqa/internal/adapter/processor"
	"docqa/internal/adapter/retriever"
	"docqa/internal/adapter/store"
	"docqa/internal/domain"
	"docqa/internal/logger"
	"docqa/internal/port"
	"docqa/internal/usecase"
)

// app holds the wired storage and retrieval components shared by the
// commands. The language model and reranker are constructed only by the
// commands that use them, so ingest works without any generation backend
// configured.
type app struct {
	cfg      *config.Config
	catalog  *store.BoltCatalog
	lexical  port.LexicalIndex
	vectors  port.VectorStore
	embedder port.Embedder
	tok      *analyzer.Tokenizer
	chunks   *cache.ChunkCache
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}

	catalog, err := store.NewBoltCatalog(cfg.CatalogPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		catalog.Close()
		return nil, err
	}

	vectors, err := newVectorStore(ctx, cfg, catalog, embedder.Dimension())
	if err != nil {
		catalog.Close()
		return nil, err
	}

	tok := analyzer.NewTokenizer()
	lexical := index.NewBM25Index(cfg.Retrieval.K1, cfg.Retrieval.B, tok)
	if err := rebuildLexical(catalog, lexical); err != nil {
		catalog.Close()
		return nil, fmt.Errorf("failed to rebuild lexical index: %w", err)
	}

	return &app{
		cfg:      cfg,
		catalog:  catalog,
		lexical:  lexical,
		vectors:  vectors,
		embedder: embedder,
		tok:      tok,
		chunks:   cache.New(cfg.Ingest.CacheSize, catalog),
	}, nil
}

func (a *app) Close() {
	if err := a.catalog.Close(); err != nil {
		logger.Warn("failed to close catalog: %v", err)
	}
}

func (a *app) newIngest() *usecase.IngestUseCase {
	proc := processor.New(a.cfg.Chunking.MaxChunkTokens, a.cfg.Chunking.OverlapTokens, a.tok)
	return usecase.NewIngest(
		pdfext.New(),
		proc,
		a.chunks,
		a.embedder,
		a.lexical,
		a.vectors,
		a.catalog,
		a.cfg.Ingest.Concurrency,
	)
}

func (a *app) newRetriever() *retriever.HybridRetriever {
	return retriever.NewHybrid(
		a.lexical,
		a.vectors,
		a.embedder,
		a.catalog,
		a.tok,
		a.cfg.Retrieval.VectorWeight,
		a.cfg.Retrieval.LexicalWeight,
		a.cfg.Retrieval.CandidateK,
	)
}

func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	e := cfg.Embedding
	var inner port.Embedder
	var err error
	switch e.Provider {
	case "openai":
		inner, err = embedding.NewOpenAICompatibleEmbedder(
			e.APIKeyEnv, e.Model, e.BaseURL, e.Dimension, e.BatchSize, e.MaxRetries)
	case "ollama":
		inner, err = embedding.NewOllamaEmbedder(
			e.BaseURL, e.Model, e.Dimension, e.BatchSize, e.MaxRetries)
	case "mock":
		inner = embedding.NewMockEmbedder(e.Dimension)
	default:
		err = fmt.Errorf("unknown embedding provider %q", e.Provider)
	}
	if err != nil {
		return nil, err
	}
	return embedding.NewCached(inner, e.CacheSize), nil
}

func newVectorStore(ctx context.Context, cfg *config.Config, catalog *store.BoltCatalog, dimension int) (port.VectorStore, error) {
	s := cfg.Storage
	switch s.VectorBackend {
	case "", "bolt":
		return store.NewBoltVectorStore(catalog.DB(), dimension)
	case "qdrant":
		return store.NewQdrantVectorStore(ctx, s.QdrantURL, s.QdrantAPIKey, s.Collection, dimension)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", s.VectorBackend)
	}
}

func newReranker(cfg *config.Config, tok port.Tokenizer) (port.Reranker, error) {
	r := cfg.Rerank
	switch r.Backend {
	case "off":
		return nil, nil
	case "local":
		return retriever.NewLocalReranker(tok), nil
	case "http":
		return retriever.NewCohereReranker(r.APIKeyEnv, r.Model, r.BaseURL)
	case "", "auto":
		return retriever.NewAutoReranker(r.APIKeyEnv, r.Model, r.BaseURL, tok), nil
	default:
		return nil, fmt.Errorf("unknown rerank backend %q", r.Backend)
	}
}

func newLLM(cfg *config.Config) (port.LLM, error) {
	l := cfg.LLM
	switch l.Provider {
	case "ollama":
		return llm.NewOllamaClient(l.BaseURL, l.Model, l.Temperature, l.MaxRetries)
	default:
		return llm.NewOpenAIClient(l.Provider, l.Model, l.BaseURL, l.Temperature, l.MaxRetries)
	}
}

// rebuildLexical replays every cataloged chunk into the in-memory term
// index. The vector store persists its own data; the lexical postings are
// rebuilt on startup instead.
func rebuildLexical(catalog port.Catalog, lexical port.LexicalIndex) error {
	docs, err := catalog.ListDocuments()
	if err != nil {
		return err
	}
	total := 0
	for _, doc := range docs {
		chunks, err := catalog.GetChunksByDoc(doc.Name)
		if err != nil {
			return err
		}
		records := make([]domain.IndexRecord, 0, len(chunks))
		for _, c := range chunks {
			records = append(records, domain.IndexRecord{
				ChunkID: c.ID,
				DocName: c.DocName,
				Seq:     c.Seq,
				Page:    c.Page,
				Section: c.Section,
				Text:    c.Text,
			})
		}
		if err := lexical.Index(records); err != nil {
			return err
		}
		total += len(records)
	}
	if total > 0 {
		logger.Debug("rebuilt lexical index with %d chunks from %d documents", total, len(docs))
	}
	return nil
}
