package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/docqd/internal/logging"
)

// Config is the root configuration for docqd.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   logging.Config  `koanf:"logging"`
	Index     IndexConfig     `koanf:"index"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	LLM       LLMConfig       `koanf:"llm"`
	Cache     CacheConfig     `koanf:"cache"`
	Agent     AgentConfig     `koanf:"agent"`
	Notes     NotesConfig     `koanf:"notes"`
	Watcher   WatcherConfig   `koanf:"watcher"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// IndexConfig holds vector index configuration.
type IndexConfig struct {
	// Path is the directory holding the persisted index.
	Path string `koanf:"path"`

	// Collection is the index collection name.
	Collection string `koanf:"collection"`

	// VectorSize is the fixed embedding dimension. Must match the
	// embedder's output dimension.
	VectorSize int `koanf:"vector_size"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`
}

// EmbeddingConfig holds embedding endpoint configuration.
//
// Any OpenAI-compatible embedding endpoint works (TEI, Ollama, OpenAI).
type EmbeddingConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`

	// Timeout bounds a single embedding call.
	Timeout time.Duration `koanf:"timeout"`
}

// LLMConfig holds generation endpoint configuration.
type LLMConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`

	// Timeout bounds a single generation call.
	Timeout time.Duration `koanf:"timeout"`

	// RequestsPerSecond throttles calls to the generation endpoint.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
}

// CacheConfig holds document cache configuration.
type CacheConfig struct {
	// TTL is how long extracted documents stay cached.
	TTL time.Duration `koanf:"ttl"`

	// SweepInterval is how often expired entries are purged.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// AgentConfig holds control-loop configuration.
type AgentConfig struct {
	// MaxIterations bounds reasoning/action cycles per exchange.
	MaxIterations int `koanf:"max_iterations"`

	// DefaultTopK is the passage count when the caller does not ask.
	DefaultTopK int `koanf:"default_top_k"`

	// MaxTopK clamps caller-requested passage counts.
	MaxTopK int `koanf:"max_top_k"`
}

// NotesConfig holds batch notes configuration.
type NotesConfig struct {
	// MaxQueries bounds sub-queries per topic batch.
	MaxQueries int `koanf:"max_queries"`

	// PassagesPerQuery is the top-k used for each sub-query.
	PassagesPerQuery int `koanf:"passages_per_query"`

	// BatchSize is the default topic batch size.
	BatchSize int `koanf:"batch_size"`
}

// WatcherConfig holds upload-directory watcher configuration.
type WatcherConfig struct {
	// Enabled turns the fsnotify watcher on.
	Enabled bool `koanf:"enabled"`

	// Dir is the directory watched for dropped PDFs.
	Dir string `koanf:"dir"`
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	cfg.Logging.ApplyDefaults()
	if cfg.Index.Path == "" {
		cfg.Index.Path = "~/.local/share/docqd/index"
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = "docqd_pages"
	}
	if cfg.Index.VectorSize == 0 {
		cfg.Index.VectorSize = 384
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:8081/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 60 * time.Second
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama3.1"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 120 * time.Second
	}
	if cfg.LLM.RequestsPerSecond == 0 {
		cfg.LLM.RequestsPerSecond = 2
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 8192
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Cache.SweepInterval == 0 {
		cfg.Cache.SweepInterval = 10 * time.Minute
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 8
	}
	if cfg.Agent.DefaultTopK == 0 {
		cfg.Agent.DefaultTopK = 6
	}
	if cfg.Agent.MaxTopK == 0 {
		cfg.Agent.MaxTopK = 20
	}
	if cfg.Notes.MaxQueries == 0 {
		cfg.Notes.MaxQueries = 10
	}
	if cfg.Notes.PassagesPerQuery == 0 {
		cfg.Notes.PassagesPerQuery = 4
	}
	if cfg.Notes.BatchSize == 0 {
		cfg.Notes.BatchSize = 2
	}
	if cfg.Watcher.Dir == "" {
		cfg.Watcher.Dir = "./uploads"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Index.VectorSize <= 0 {
		return fmt.Errorf("index: vector size must be positive")
	}
	if c.Embedding.Timeout <= 0 {
		return fmt.Errorf("embedding: timeout must be positive")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm: timeout must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache: ttl must be positive")
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent: max_iterations must be positive")
	}
	if c.Agent.MaxTopK < c.Agent.DefaultTopK {
		return fmt.Errorf("agent: max_top_k must be >= default_top_k")
	}
	if c.Notes.MaxQueries <= 0 {
		return fmt.Errorf("notes: max_queries must be positive")
	}
	return nil
}
