package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the docqa service. It is constructed
// once at startup and passed into every component; no component reads
// ambient global state.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Rerank    RerankConfig    `yaml:"rerank"`
	LLM       LLMConfig       `yaml:"llm"`
	Ingest    IngestConfig    `yaml:"ingest"`
}

// StorageConfig holds catalog and vector store configuration.
type StorageConfig struct {
	DataDir       string `yaml:"data_dir"`
	VectorBackend string `yaml:"vector_backend"` // "bolt" or "qdrant"
	QdrantURL     string `yaml:"qdrant_url"`
	QdrantAPIKey  string `yaml:"qdrant_api_key_env"`
	Collection    string `yaml:"qdrant_collection"`
}

// ChunkingConfig holds document processor configuration.
type ChunkingConfig struct {
	MaxChunkTokens int `yaml:"max_chunk_tokens"`
	OverlapTokens  int `yaml:"overlap_tokens"`
}

// EmbeddingConfig holds embedding client configuration.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "openai", "ollama", "mock"
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Dimension  int    `yaml:"dimension"`
	BatchSize  int    `yaml:"batch_size"`
	MaxRetries int    `yaml:"max_retries"`
	CacheSize  int    `yaml:"cache_size"`
}

// RetrievalConfig holds hybrid search configuration.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	VectorWeight   float64 `yaml:"vector_weight"`
	LexicalWeight  float64 `yaml:"lexical_weight"`
	CandidateK     int     `yaml:"candidate_k"` // per-source pool; 0 = 3*TopK
	K1             float64 `yaml:"k1"`
	B              float64 `yaml:"b"`
	ScoreThreshold float64 `yaml:"score_threshold"` // drop fused results below this (0 = disabled)
}

// RerankConfig holds cross-encoder reranking configuration.
type RerankConfig struct {
	Backend   string `yaml:"backend"` // "auto", "http", "local", "off"
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	TopN      int    `yaml:"top_n"`
}

// LLMConfig holds language model configuration.
type LLMConfig struct {
	Provider           string  `yaml:"provider"` // "openai", "ollama"
	Model              string  `yaml:"model"`
	BaseURL            string  `yaml:"base_url"`
	APIKeyEnv          string  `yaml:"api_key_env"`
	Temperature        float64 `yaml:"temperature"`
	ContextTokenBudget int     `yaml:"context_token_budget"`
	MaxRetries         int     `yaml:"max_retries"`
}

// IngestConfig holds ingestion pipeline configuration.
type IngestConfig struct {
	Concurrency int `yaml:"concurrency"` // max simultaneous in-flight ingestions
	CacheSize   int `yaml:"cache_size"`  // chunk cache entry capacity
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:       ".docqa",
			VectorBackend: "bolt",
			QdrantURL:     "http://localhost:6333",
			QdrantAPIKey:  "QDRANT_API_KEY",
			Collection:    "docqa",
		},
		Chunking: ChunkingConfig{
			MaxChunkTokens: 512,
			OverlapTokens:  50,
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "bge-m3",
			BaseURL:    "",
			APIKeyEnv:  "OPENAI_API_KEY",
			Dimension:  1024,
			BatchSize:  32,
			MaxRetries: 3,
			CacheSize:  4096,
		},
		Retrieval: RetrievalConfig{
			TopK:          10,
			VectorWeight:  0.7,
			LexicalWeight: 0.3,
			K1:            1.2,
			B:             0.75,
		},
		Rerank: RerankConfig{
			Backend: "auto",
			Model:   "rerank-multilingual-v3.0",
			BaseURL: "https://api.cohere.ai/v1",
			APIKeyEnv: "COHERE_API_KEY",
			TopN:    5,
		},
		LLM: LLMConfig{
			Provider:           "ollama",
			Model:              "llama3",
			BaseURL:            "",
			APIKeyEnv:          "OPENAI_API_KEY",
			Temperature:        0.1,
			ContextTokenBudget: 4000,
			MaxRetries:         2,
		},
		Ingest: IngestConfig{
			Concurrency: 2,
			CacheSize:   64,
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for docqa.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "docqa.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}
	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// CatalogPath returns the path to the catalog database.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Storage.DataDir, "catalog.db")
}

// EnsureDataDir ensures the data directory exists.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.Storage.DataDir, 0755)
}
