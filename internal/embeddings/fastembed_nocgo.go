//go:build !cgo

package embeddings

import (
	"context"
	"errors"
	"fmt"
)

// ErrFastEmbedNotAvailable is returned by binaries built without cgo.
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available (binary built without cgo, use the openai or tei provider)")

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbedProvider is a stub for non-cgo builds.
type FastEmbedProvider struct{}

// NewFastEmbedProvider always fails without cgo.
func NewFastEmbedProvider(_ FastEmbedConfig) (*FastEmbedProvider, error) {
	return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, ErrFastEmbedNotAvailable)
}

// Embed always fails without cgo.
func (p *FastEmbedProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("%w: %w", ErrEmbedding, ErrFastEmbedNotAvailable)
}

// Dimension returns 0 without cgo.
func (p *FastEmbedProvider) Dimension() int {
	return 0
}

// Close is a no-op without cgo.
func (p *FastEmbedProvider) Close() error {
	return nil
}
