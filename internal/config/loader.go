package config

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every journalgpt environment variable.
	EnvPrefix = "JOURNALGPT_"
)

// LoadWithFile loads configuration from YAML file, then overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (JOURNALGPT_SERVER__HTTP_PORT, OPENAI_API_KEY, ...)
//  2. YAML config file (~/.config/journalgpt/config.yaml)
//  3. Hardcoded defaults
//
// A .env file in the working directory is loaded first when present. Variables
// already set in the process environment are not overwritten by it.
//
// # Environment Variable Mapping
//
// The JOURNALGPT_ prefix is stripped, the rest is lowercased and a double
// underscore separates sections:
//
//	JOURNALGPT_SERVER__HTTP_PORT       -> server.http_port
//	JOURNALGPT_VECTORSTORE__QDRANT__HOST -> vectorstore.qdrant.host
//	JOURNALGPT_USER_ID                 -> user_id
//
// The variables used by the original journaling tool are honored as aliases
// when the corresponding field is unset: OPENAI_API_KEY, ANTHROPIC_API_KEY,
// QDRANT_URL and USER_ID.
//
// # Security Considerations
//
// The config file must live in ~/.config/journalgpt/ or /etc/journalgpt/, be
// 0600 or 0400, and be smaller than 1MB.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Missing .env is the common case.
	_ = godotenv.Load()

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "journalgpt", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate the descriptor to avoid a TOCTOU race.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}

		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvAliases(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKey maps JOURNALGPT_SECTION__FIELD_NAME to section.field_name.
func envKey(s string) string {
	trimmed := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(trimmed, "__", ".")
}

// EnsureConfigDir creates the journalgpt config directory with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "journalgpt")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Path may not exist yet.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "journalgpt"),
		"/etc/journalgpt",
	}

	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.config/journalgpt/ or /etc/journalgpt/")
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyEnvAliases fills unset fields from the variables the original tool read.
func applyEnvAliases(cfg *Config) {
	if cfg.UserID == "" {
		cfg.UserID = os.Getenv("USER_ID")
	}

	openAIKey := Secret(os.Getenv("OPENAI_API_KEY"))
	if !cfg.Embeddings.APIKey.IsSet() {
		cfg.Embeddings.APIKey = openAIKey
	}
	if !cfg.Completion.APIKey.IsSet() {
		if cfg.Completion.Provider == "anthropic" {
			cfg.Completion.APIKey = Secret(os.Getenv("ANTHROPIC_API_KEY"))
		} else {
			cfg.Completion.APIKey = openAIKey
		}
	}

	if cfg.VectorStore.Qdrant.Host == "" {
		if raw := os.Getenv("QDRANT_URL"); raw != "" {
			if host := hostFromURL(raw); host != "" {
				cfg.VectorStore.Qdrant.Host = host
				if cfg.VectorStore.Provider == "" {
					cfg.VectorStore.Provider = "qdrant"
				}
			}
		}
	}
}

// hostFromURL extracts the hostname of a Qdrant REST URL. The gRPC port is
// configured separately since QDRANT_URL usually points at the REST port.
func hostFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err == nil && u.Host != "" {
		return u.Hostname()
	}
	host, _, err := net.SplitHostPort(raw)
	if err == nil {
		return host
	}
	return raw
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.UserID == "" {
		cfg.UserID = "anonymous"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	// Chromem is the default: embedded, no external service.
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "journals"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.MaxRetries == 0 {
		cfg.VectorStore.Qdrant.MaxRetries = 3
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.config/journalgpt/vectorstore"
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "openai"
	}
	if cfg.Embeddings.Model == "" {
		switch cfg.Embeddings.Provider {
		case "fastembed", "tei":
			cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
		default:
			cfg.Embeddings.Model = "text-embedding-ada-002"
		}
	}
	if cfg.Embeddings.BaseURL == "" && cfg.Embeddings.Provider == "tei" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.CacheSize == 0 {
		cfg.Embeddings.CacheSize = 256
	}

	// The dimension follows the embedding model unless set explicitly.
	if cfg.VectorStore.Dimension == 0 {
		cfg.VectorStore.Dimension = DefaultDimension(cfg.Embeddings.Model)
	}

	if cfg.Completion.Provider == "" {
		cfg.Completion.Provider = "openai"
	}
	if cfg.Completion.Model == "" {
		if cfg.Completion.Provider == "anthropic" {
			cfg.Completion.Model = "claude-sonnet-4-5"
		} else {
			cfg.Completion.Model = "gpt-4"
		}
	}
	if cfg.Completion.Timeout == 0 {
		cfg.Completion.Timeout = 60 * time.Second
	}
	if cfg.Completion.RateLimit == 0 {
		cfg.Completion.RateLimit = 1
	}
	if cfg.Completion.Burst == 0 {
		cfg.Completion.Burst = 2
	}

	if cfg.Retrieval.ScanCap == 0 {
		cfg.Retrieval.ScanCap = 100
	}
	if cfg.Retrieval.Limit == 0 {
		cfg.Retrieval.Limit = 8
	}

	if cfg.Analysis.MaxContextChars == 0 {
		cfg.Analysis.MaxContextChars = 24000
	}
	if cfg.Analysis.MaxAnswerTokens == 0 {
		cfg.Analysis.MaxAnswerTokens = 800
	}

	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "console"
	}
	if cfg.Observability.OTLPEndpoint == "" {
		cfg.Observability.OTLPEndpoint = "localhost:4317"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "journalgpt"
	}
}

// DefaultDimension returns the embedding width for well-known models.
// Unknown models fall back to 1536, the width of OpenAI's ada-002.
func DefaultDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "BAAI/bge-small-en-v1.5", "BAAI/bge-small-en", "sentence-transformers/all-MiniLM-L6-v2":
		return 384
	case "BAAI/bge-base-en-v1.5", "BAAI/bge-base-en":
		return 768
	default:
		return 1536
	}
}
