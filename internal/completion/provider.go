// Package completion generates text from a system prompt and a user message.
//
// OpenAI is reached through langchaingo and Anthropic through its official
// SDK. NewProvider wraps either backend in RateLimited, which owns rate
// limiting, per-call timeouts and retries of transient faults.
package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/journalgpt/internal/config"
	"github.com/fyrsmithlabs/journalgpt/internal/logging"
	"go.uber.org/zap"
)

var (
	// ErrGeneration indicates the completion provider failed.
	ErrGeneration = errors.New("generation failed")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Request is a single-shot completion request. No conversation state is kept
// between requests.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Provider generates text. Implementations are safe for concurrent use.
type Provider interface {
	// Complete returns the generated text. Failures wrap ErrGeneration.
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f ProviderFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

const defaultMaxTokens = 1024

// NewProvider creates the configured completion provider.
func NewProvider(cfg config.CompletionConfig, logger *logging.Logger) (Provider, error) {
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
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey.Value(),
		})
	case "anthropic":
		p, err = NewAnthropicProvider(AnthropicConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey.Value(),
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q (supported: openai, anthropic)", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info(context.Background(), "completion provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Float64("rate_limit", cfg.RateLimit),
		zap.Duration("timeout", cfg.Timeout),
	)

	return NewRateLimited(p, RateLimitConfig{
		Rate:    cfg.RateLimit,
		Burst:   cfg.Burst,
		Timeout: cfg.Timeout,
	}, logger), nil
}

func generationErr(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrGeneration, provider, err)
}
