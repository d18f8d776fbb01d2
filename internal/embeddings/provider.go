// Package embeddings turns journal text into fixed-length vectors.
//
// Three backends are available: OpenAI (and any OpenAI-compatible server such
// as TEI) through langchaingo, and local ONNX models through fastembed-go in
// cgo builds. NewProvider wraps the selected backend in an LRU cache.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/journalgpt/internal/config"
	"github.com/fyrsmithlabs/journalgpt/internal/logging"
	"go.uber.org/zap"
)

var (
	// ErrEmbedding indicates the provider was unreachable or rejected the input.
	ErrEmbedding = errors.New("embedding failed")

	// ErrEmptyInput indicates empty input text.
	ErrEmptyInput = errors.New("empty input text")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Provider embeds a single text. Implementations are safe for concurrent use.
type Provider interface {
	// Embed returns the embedding of text. Failures wrap ErrEmbedding.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the embedding width of the configured model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// NewProvider creates the configured embedding provider. dimension is the
// collection width; vectors of another width are rejected at embed time.
func NewProvider(cfg config.EmbeddingsConfig, dimension int, logger *logging.Logger) (Provider, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "openai", "":
		p, err = NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey.Value(),
			Dimension: dimension,
		})
	case "tei":
		// TEI serves an OpenAI-compatible API under /v1.
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("%w: base URL required for tei", ErrInvalidConfig)
		}
		p, err = NewOpenAIProvider(OpenAIConfig{
			BaseURL:   teiBaseURL(cfg.BaseURL),
			Model:     cfg.Model,
			Dimension: dimension,
		})
	case "fastembed":
		var fe *FastEmbedProvider
		fe, err = NewFastEmbedProvider(FastEmbedConfig{Model: cfg.Model, CacheDir: cfg.CacheDir})
		if err == nil {
			p = fe
			if fe.Dimension() != dimension {
				_ = fe.Close()
				return nil, fmt.Errorf("%w: model %s produces %d-dimensional vectors, collection expects %d",
					ErrInvalidConfig, cfg.Model, fe.Dimension(), dimension)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown provider %q (supported: openai, tei, fastembed)", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info(context.Background(), "embedding provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimension", dimension),
		zap.Int("cache_size", cfg.CacheSize),
	)

	instrumented := newInstrumented(p, cfg.Provider, cfg.Model)
	if cfg.CacheSize <= 0 {
		return instrumented, nil
	}
	return NewCachedProvider(instrumented, cfg.CacheSize)
}

func teiBaseURL(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

// checkDimension verifies that a provider returned a vector of the expected width.
func checkDimension(vec []float32, want int) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d-dimensional vector, expected %d", ErrEmbedding, len(vec), want)
	}
	return nil
}
