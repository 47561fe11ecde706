// Package config holds process configuration resolved once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultChunkSize          = 500
	DefaultChunkOverlap       = 100
	DefaultEmbeddingDimension = 1536
	DefaultTopK               = 3
	DefaultMinScore           = 0.0
	DefaultMaxContextChars    = 8000
	DefaultEmbeddingTimeout   = 30 * time.Second
	DefaultGenerationTimeout  = 120 * time.Second
)

// Config is the immutable application configuration. It is populated from
// the environment by Load and validated exactly once; request handling never
// mutates it.
type Config struct {
	// Chunking parameters (characters).
	ChunkSize    int
	ChunkOverlap int

	// Embedding space. Ingestion and query embedding must share the same
	// model, so the model name lives here rather than per request.
	EmbeddingModel     string
	EmbeddingDimension int
	EmbeddingTimeout   time.Duration

	// Generation capability.
	GenerationBackend string // "openai" or "ollama"
	GenerationModel   string
	GenerationTimeout time.Duration
	OllamaBaseURL     string

	// Retrieval.
	TopKDefault     int
	MinScore        float64
	MaxContextChars int

	// Index backend: "sqlite" (embedded, exact) or "qdrant".
	IndexBackend   string
	SQLitePath     string
	QdrantHost     string
	QdrantPort     int
	CollectionName string

	// HTTP surface.
	ListenAddr string
}

// Load reads configuration from the environment, applying defaults for
// anything unset, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		ChunkSize:          getEnvInt("DOCQA_CHUNK_SIZE", DefaultChunkSize),
		ChunkOverlap:       getEnvInt("DOCQA_CHUNK_OVERLAP", DefaultChunkOverlap),
		EmbeddingModel:     getEnv("DOCQA_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimension: getEnvInt("DOCQA_EMBEDDING_DIMENSION", DefaultEmbeddingDimension),
		EmbeddingTimeout:   getEnvDuration("DOCQA_EMBEDDING_TIMEOUT", DefaultEmbeddingTimeout),
		GenerationBackend:  getEnv("DOCQA_GENERATION_BACKEND", "openai"),
		GenerationModel:    getEnv("DOCQA_GENERATION_MODEL", ""),
		GenerationTimeout:  getEnvDuration("DOCQA_GENERATION_TIMEOUT", DefaultGenerationTimeout),
		OllamaBaseURL:      getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		TopKDefault:        getEnvInt("DOCQA_TOP_K", DefaultTopK),
		MinScore:           getEnvFloat("DOCQA_MIN_SCORE", DefaultMinScore),
		MaxContextChars:    getEnvInt("DOCQA_MAX_CONTEXT_CHARS", DefaultMaxContextChars),
		IndexBackend:       getEnv("DOCQA_INDEX_BACKEND", "sqlite"),
		SQLitePath:         getEnv("DOCQA_SQLITE_PATH", ""),
		QdrantHost:         getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:         getEnvInt("QDRANT_PORT", 6334),
		CollectionName:     getEnv("DOCQA_COLLECTION", "product_docs"),
		ListenAddr:         getEnv("DOCQA_LISTEN_ADDR", "0.0.0.0:8080"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would produce undefined pipeline
// behavior. Chunking constraints are enforced here so they can never fail at
// request time.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, chunk size), got %d with size %d",
			c.ChunkOverlap, c.ChunkSize)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.EmbeddingDimension)
	}
	if c.TopKDefault < 1 {
		return fmt.Errorf("default top_k must be at least 1, got %d", c.TopKDefault)
	}
	if c.MaxContextChars <= 0 {
		return fmt.Errorf("max context size must be positive, got %d", c.MaxContextChars)
	}
	if c.EmbeddingTimeout <= 0 || c.GenerationTimeout <= 0 {
		return fmt.Errorf("capability timeouts must be positive")
	}
	switch c.IndexBackend {
	case "sqlite", "qdrant":
	default:
		return fmt.Errorf("unknown index backend %q", c.IndexBackend)
	}
	switch c.GenerationBackend {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unknown generation backend %q", c.GenerationBackend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
