package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIConfig configures an OpenAI or OpenAI-compatible embedding endpoint.
type OpenAIConfig struct {
	// BaseURL overrides the API root, e.g. http://localhost:8080/v1 for TEI.
	// Empty uses api.openai.com.
	BaseURL string

	// Model is the embedding model, e.g. text-embedding-ada-002.
	Model string

	// APIKey is required by OpenAI and ignored by TEI.
	APIKey string

	// Dimension is the expected vector width.
	Dimension int
}

// Validate validates the configuration.
func (c OpenAIConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if c.BaseURL == "" && c.APIKey == "" {
		return fmt.Errorf("%w: API key required for api.openai.com", ErrInvalidConfig)
	}
	return nil
}

// OpenAIProvider embeds text through langchaingo's OpenAI client.
type OpenAIProvider struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
}

// NewOpenAIProvider creates a provider for OpenAI or a compatible server.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		// langchaingo requires a token; TEI ignores it.
		apiKey = "placeholder"
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &OpenAIProvider{embedder: embedder, model: cfg.Model, dimension: cfg.Dimension}, nil
}

// Embed returns the embedding of text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, ErrEmptyInput)
	}

	vec, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmbedding, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrEmbedding, p.model, err)
	}
	if err := checkDimension(vec, p.dimension); err != nil {
		return nil, err
	}
	return vec, nil
}

// Dimension returns the configured vector width.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op; the client is plain HTTP.
func (p *OpenAIProvider) Close() error {
	return nil
}
