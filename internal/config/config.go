// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (DOCCHAT_* and DATABASE_URL)
//  2. Config file (~/.docchat/config.yaml)
//  3. Default values
//
// Sensitive values (the database password) are never logged.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidEmbeddingDim indicates the embedding dimension is out of range.
	ErrInvalidEmbeddingDim = errors.New("invalid embedding dimension")

	// ErrInvalidThreshold indicates the similarity threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidRetrievalLimit indicates the retrieval limit is out of range.
	ErrInvalidRetrievalLimit = errors.New("invalid retrieval limit")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidChunking indicates chunk size/overlap values are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions, which is
	// what the pgvector schema provisions (db/migrations).
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultModelName is the default generation model.
	DefaultModelName = "googleai/gemini-2.5-flash"

	// DefaultEmbeddingDim matches the vector(768) column in the schema.
	DefaultEmbeddingDim = 768

	// DefaultRetrievalLimit is the default number of sources per query.
	DefaultRetrievalLimit = 5

	// DefaultSimilarityThreshold is the minimum cosine similarity a chunk
	// must exceed to count as relevant. Deliberately loose, favoring recall.
	DefaultSimilarityThreshold = 0.3

	// DefaultHistoryLimit caps how many stored messages one chat request loads.
	DefaultHistoryLimit = 20
)

// Config holds all application configuration.
type Config struct {
	// Server
	Addr string `mapstructure:"addr"`

	// Logging
	LogLevel string `mapstructure:"log_level"` // debug|info|warn|error
	LogJSON  bool   `mapstructure:"log_json"`

	// PostgreSQL
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// AI provider: "gemini" (default) or "ollama"
	Provider      string `mapstructure:"provider"`
	ModelName     string `mapstructure:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model"`
	EmbeddingDim  int    `mapstructure:"embedding_dimension"`
	OllamaHost    string `mapstructure:"ollama_host"`

	// Retrieval
	RetrievalLimit      int     `mapstructure:"retrieval_limit"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	HistoryLimit        int     `mapstructure:"history_limit"`

	// Ingestion
	ChunkSize      int     `mapstructure:"chunk_size"`
	ChunkOverlap   int     `mapstructure:"chunk_overlap"`
	IngestBatch    int     `mapstructure:"ingest_batch_size"`
	EmbedRateLimit float64 `mapstructure:"embed_rate_limit"` // embed calls per second, 0 = unlimited
	IngestLockFile string  `mapstructure:"ingest_lock_file"`

	// Observability (opt-in OTLP tracing)
	TraceEnabled  bool   `mapstructure:"trace_enabled"`
	TraceEndpoint string `mapstructure:"trace_endpoint"`
}

// Load reads configuration from file, environment, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".docchat"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("DOCCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; defaults and env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// DATABASE_URL overrides the individual postgres_* settings; this is the
	// common single-variable form in cloud deployments.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:3400")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "postgres")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_dbname", "docchat")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("provider", "gemini")
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("embedding_dimension", DefaultEmbeddingDim)
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("retrieval_limit", DefaultRetrievalLimit)
	v.SetDefault("similarity_threshold", DefaultSimilarityThreshold)
	v.SetDefault("history_limit", DefaultHistoryLimit)

	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 150)
	v.SetDefault("ingest_batch_size", 10)
	v.SetDefault("embed_rate_limit", 0)
	v.SetDefault("ingest_lock_file", filepath.Join(os.TempDir(), "docchat-ingest.lock"))

	v.SetDefault("trace_enabled", false)
	v.SetDefault("trace_endpoint", "localhost:4318")
}

// Validate checks configuration values for consistency.
func (c *Config) Validate() error {
	switch c.Provider {
	case "gemini", "ollama":
	default:
		return fmt.Errorf("%w: %q (expected gemini or ollama)", ErrInvalidProvider, c.Provider)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.EmbeddingDim < 1 || c.EmbeddingDim > 16000 {
		return fmt.Errorf("%w: %d", ErrInvalidEmbeddingDim, c.EmbeddingDim)
	}

	if c.SimilarityThreshold < 0 || c.SimilarityThreshold >= 1 {
		return fmt.Errorf("%w: %v (expected [0, 1))", ErrInvalidThreshold, c.SimilarityThreshold)
	}

	if c.RetrievalLimit < 1 || c.RetrievalLimit > 100 {
		return fmt.Errorf("%w: %d (expected 1-100)", ErrInvalidRetrievalLimit, c.RetrievalLimit)
	}

	if c.ChunkSize < 1 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunking, c.ChunkSize, c.ChunkOverlap)
	}

	return nil
}
