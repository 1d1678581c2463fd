package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/halwind/mnemo/pkg/chunker"
)

// Config represents the main mnemo configuration
type Config struct {
	// Database
	Database DatabaseConfig `json:"database" mapstructure:"database"`

	// Embedding provider
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`

	// Memory tiers
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`

	// Retrieval
	Retrieval RetrievalConfig `json:"retrieval" mapstructure:"retrieval"`

	// Chunking
	Chunking ChunkingConfig `json:"chunking" mapstructure:"chunking"`

	// Ingest watch directory
	Ingest IngestConfig `json:"ingest" mapstructure:"ingest"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// EmbeddingConfig holds embedding provider settings
type EmbeddingConfig struct {
	Provider  string `json:"provider" mapstructure:"provider"` // ollama, openai
	BaseURL   string `json:"base_url" mapstructure:"base_url"`
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	Model     string `json:"model" mapstructure:"model"`
	Dimension int    `json:"dimension" mapstructure:"dimension"`
}

// MemoryConfig holds memory tier settings
type MemoryConfig struct {
	ShortTermMaxMessages int `json:"short_term_max_messages" mapstructure:"short_term_max_messages"`
	ShortTermTTLSeconds  int `json:"short_term_ttl_seconds" mapstructure:"short_term_ttl_seconds"`
	ShortTermTimeoutMS   int `json:"short_term_timeout_ms" mapstructure:"short_term_timeout_ms"`
	SearchTimeoutMS      int `json:"search_timeout_ms" mapstructure:"search_timeout_ms"`
	CleanupIntervalSecs  int `json:"cleanup_interval_seconds" mapstructure:"cleanup_interval_seconds"`
}

func (m MemoryConfig) ShortTermTTL() time.Duration {
	return time.Duration(m.ShortTermTTLSeconds) * time.Second
}

func (m MemoryConfig) ShortTermTimeout() time.Duration {
	return time.Duration(m.ShortTermTimeoutMS) * time.Millisecond
}

func (m MemoryConfig) SearchTimeout() time.Duration {
	return time.Duration(m.SearchTimeoutMS) * time.Millisecond
}

func (m MemoryConfig) CleanupInterval() time.Duration {
	return time.Duration(m.CleanupIntervalSecs) * time.Second
}

// RetrievalConfig holds search depth and threshold settings
type RetrievalConfig struct {
	DocTopK                 int     `json:"doc_top_k" mapstructure:"doc_top_k"`
	LongTopK                int     `json:"long_top_k" mapstructure:"long_top_k"`
	DocANNMultiplier        int     `json:"doc_ann_multiplier" mapstructure:"doc_ann_multiplier"`
	LongANNMultiplier       int     `json:"long_ann_multiplier" mapstructure:"long_ann_multiplier"`
	DocSimilarityThreshold  float64 `json:"doc_similarity_threshold" mapstructure:"doc_similarity_threshold"`
	LongSimilarityThreshold float64 `json:"long_similarity_threshold" mapstructure:"long_similarity_threshold"`
	SurroundingChunks       int     `json:"surrounding_chunks" mapstructure:"surrounding_chunks"`
}

// ChunkingConfig holds document segmentation settings
type ChunkingConfig struct {
	Strategy     string `json:"strategy" mapstructure:"strategy"` // sentence, phrase, fixed, semantic_section
	ChunkSize    int    `json:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap" mapstructure:"chunk_overlap"`
	SentenceLink int    `json:"sentence_link" mapstructure:"sentence_link"` // sentences linked per chunk
	PhraseLink   int    `json:"phrase_link" mapstructure:"phrase_link"`     // phrases linked per chunk
}

// IngestConfig holds the document drop directory settings
type IngestConfig struct {
	WatchEnabled bool   `json:"watch_enabled" mapstructure:"watch_enabled"`
	WatchDir     string `json:"watch_dir" mapstructure:"watch_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "", // resolved under DataDir when empty
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			BaseURL:   "http://localhost:11434",
			Model:     "all-minilm",
			Dimension: 384,
		},
		Memory: MemoryConfig{
			ShortTermMaxMessages: 5,
			ShortTermTTLSeconds:  3600,
			ShortTermTimeoutMS:   2000,
			SearchTimeoutMS:      10000,
			CleanupIntervalSecs:  300,
		},
		Retrieval: RetrievalConfig{
			DocTopK:                 6,
			LongTopK:                4,
			DocANNMultiplier:        1,
			LongANNMultiplier:       1,
			DocSimilarityThreshold:  0.0,
			LongSimilarityThreshold: 0.3,
			SurroundingChunks:       2,
		},
		Chunking: ChunkingConfig{
			Strategy:     string(chunker.StrategySentence),
			ChunkSize:    512,
			ChunkOverlap: 50,
			SentenceLink: 2,
			PhraseLink:   3,
		},
		Ingest: IngestConfig{
			WatchEnabled: false,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9271",
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("invalid embedding provider %q (must be: ollama, openai)", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		return fmt.Errorf("openai embedding provider requires an api_key")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding model is required")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	if c.Memory.ShortTermMaxMessages <= 0 {
		return fmt.Errorf("short_term_max_messages must be positive")
	}
	if c.Memory.ShortTermTTLSeconds <= 0 {
		return fmt.Errorf("short_term_ttl_seconds must be positive")
	}

	if c.Retrieval.DocTopK < 0 || c.Retrieval.LongTopK < 0 {
		return fmt.Errorf("top_k values must not be negative")
	}
	if c.Retrieval.DocANNMultiplier < 1 || c.Retrieval.LongANNMultiplier < 1 {
		return fmt.Errorf("ann multipliers must be at least 1")
	}
	if t := c.Retrieval.DocSimilarityThreshold; t < -1 || t > 1 {
		return fmt.Errorf("doc_similarity_threshold must be within [-1, 1]")
	}
	if t := c.Retrieval.LongSimilarityThreshold; t < -1 || t > 1 {
		return fmt.Errorf("long_similarity_threshold must be within [-1, 1]")
	}
	if c.Retrieval.SurroundingChunks < 0 {
		return fmt.Errorf("surrounding_chunks must not be negative")
	}

	switch chunker.Strategy(c.Chunking.Strategy) {
	case chunker.StrategySentence, chunker.StrategyPhrase, chunker.StrategyFixed, chunker.StrategySection:
	default:
		return fmt.Errorf("invalid chunking strategy %q", c.Chunking.Strategy)
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunk_overlap must be non-negative and smaller than chunk_size")
	}
	if c.Chunking.SentenceLink < 0 || c.Chunking.PhraseLink < 0 {
		return fmt.Errorf("link counts must not be negative")
	}

	if c.Ingest.WatchEnabled && c.Ingest.WatchDir == "" {
		return fmt.Errorf("watch_dir is required when ingest watching is enabled")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics addr is required when metrics are enabled")
	}

	return nil
}
