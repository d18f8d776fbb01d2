// Package config provides configuration loading for journalgpt.
//
// Configuration is read from an optional YAML file, overridden by environment
// variables, then completed with defaults. See LoadWithFile for precedence.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete journalgpt configuration.
type Config struct {
	// UserID is the journal owner used by the CLI when --user is not given.
	UserID string `koanf:"user_id"`

	Server        ServerConfig        `koanf:"server"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Completion    CompletionConfig    `koanf:"completion"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Analysis      AnalysisConfig      `koanf:"analysis"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// VectorStoreConfig selects and configures the vector index backend.
type VectorStoreConfig struct {
	// Provider is "qdrant" or "chromem".
	Provider string `koanf:"provider"`

	// Collection is the single collection holding every journal entry.
	Collection string `koanf:"collection"`

	// Dimension is fixed at collection creation and must match the embedder.
	Dimension int `koanf:"dimension"`

	Qdrant  QdrantConfig  `koanf:"qdrant"`
	Chromem ChromemConfig `koanf:"chromem"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	APIKey     Secret `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
	MaxRetries int    `koanf:"max_retries"`
}

// ChromemConfig holds embedded chromem-go settings.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "openai", "tei" or "fastembed".
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    Secret `koanf:"api_key"`
	CacheDir  string `koanf:"cache_dir"`
	CacheSize int    `koanf:"cache_size"`
}

// CompletionConfig selects the completion provider.
type CompletionConfig struct {
	// Provider is "openai" or "anthropic".
	Provider  string        `koanf:"provider"`
	Model     string        `koanf:"model"`
	BaseURL   string        `koanf:"base_url"`
	APIKey    Secret        `koanf:"api_key"`
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"`
	Burst     int           `koanf:"burst"`
}

// RetrievalConfig tunes the retriever.
type RetrievalConfig struct {
	// ScanCap bounds how many entries are fetched for the fallback ranking.
	ScanCap int `koanf:"scan_cap"`
	// Limit is the number of entries used to answer a question.
	Limit int `koanf:"limit"`
}

// AnalysisConfig tunes prompt construction.
type AnalysisConfig struct {
	MaxContextChars int `koanf:"max_context_chars"`
	MaxAnswerTokens int `koanf:"max_answer_tokens"`
}

// ObservabilityConfig holds logging and OpenTelemetry settings.
type ObservabilityConfig struct {
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
	ServiceName     string `koanf:"service_name"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.VectorStore.Provider {
	case "qdrant":
		if c.VectorStore.Qdrant.Host == "" {
			return errors.New("vectorstore.qdrant.host is required")
		}
		if c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid qdrant port: %d", c.VectorStore.Qdrant.Port)
		}
	case "chromem":
		if c.VectorStore.Chromem.Path == "" {
			return errors.New("vectorstore.chromem.path is required")
		}
	default:
		return fmt.Errorf("unknown vectorstore provider %q (want qdrant or chromem)", c.VectorStore.Provider)
	}
	if c.VectorStore.Collection == "" {
		return errors.New("vectorstore.collection is required")
	}
	if c.VectorStore.Dimension <= 0 {
		return fmt.Errorf("vectorstore.dimension must be positive, got %d", c.VectorStore.Dimension)
	}

	switch c.Embeddings.Provider {
	case "openai", "tei", "fastembed":
	default:
		return fmt.Errorf("unknown embeddings provider %q", c.Embeddings.Provider)
	}

	switch c.Completion.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown completion provider %q", c.Completion.Provider)
	}

	if c.Retrieval.ScanCap <= 0 {
		return errors.New("retrieval.scan_cap must be positive")
	}
	if c.Retrieval.Limit <= 0 {
		return errors.New("retrieval.limit must be positive")
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}
