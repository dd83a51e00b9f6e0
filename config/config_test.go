package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Chunking.MaxChunkTokens != 512 {
		t.Errorf("expected MaxChunkTokens=512, got %d", cfg.Chunking.MaxChunkTokens)
	}
	if cfg.Retrieval.K1 != 1.2 {
		t.Errorf("expected K1=1.2, got %f", cfg.Retrieval.K1)
	}
	if cfg.Retrieval.B != 0.75 {
		t.Errorf("expected B=0.75, got %f", cfg.Retrieval.B)
	}
	if cfg.Retrieval.VectorWeight != 0.7 || cfg.Retrieval.LexicalWeight != 0.3 {
		t.Errorf("expected default fusion weights 0.7/0.3, got %f/%f",
			cfg.Retrieval.VectorWeight, cfg.Retrieval.LexicalWeight)
	}
	if cfg.LLM.ContextTokenBudget != 4000 {
		t.Errorf("expected ContextTokenBudget=4000, got %d", cfg.LLM.ContextTokenBudget)
	}
	if cfg.Ingest.Concurrency != 2 {
		t.Errorf("expected ingest concurrency=2, got %d", cfg.Ingest.Concurrency)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/docqa.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "docqa.yaml")

	content := `
chunking:
  max_chunk_tokens: 256
retrieval:
  top_k: 5
  vector_weight: 1.0
  lexical_weight: 0.0
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Chunking.MaxChunkTokens != 256 {
		t.Errorf("expected MaxChunkTokens=256, got %d", cfg.Chunking.MaxChunkTokens)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("expected TopK=5, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.VectorWeight != 1.0 || cfg.Retrieval.LexicalWeight != 0.0 {
		t.Errorf("expected weights 1.0/0.0, got %f/%f",
			cfg.Retrieval.VectorWeight, cfg.Retrieval.LexicalWeight)
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "docqa.yaml")

	content := `
llm:
  context_token_budget: 8000
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LLM.ContextTokenBudget != 8000 {
		t.Errorf("expected ContextTokenBudget=8000, got %d", cfg.LLM.ContextTokenBudget)
	}
}

func TestCatalogPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.DataDir = "/var/lib/docqa"
	expected := filepath.Join("/var/lib/docqa", "catalog.db")
	if got := cfg.CatalogPath(); got != expected {
		t.Errorf("expected %s, got %s", expected, got)
	}
}
