package embeddings

import (
	"context"
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
)

// CachedProvider memoizes embeddings by text. Asking the same question twice
// in a chat session costs one provider call.
type CachedProvider struct {
	next    Provider
	cache   *lru.Cache[[sha256.Size]byte, []float32]
	metrics *metrics
}

// NewCachedProvider wraps next with an LRU cache of size entries.
func NewCachedProvider(next Provider, size int) (*CachedProvider, error) {
	cache, err := lru.New[[sha256.Size]byte, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("%w: cache: %v", ErrInvalidConfig, err)
	}
	return &CachedProvider{
		next:    next,
		cache:   cache,
		metrics: newMetrics(otel.Meter(instrumentationName)),
	}, nil
}

// Embed returns a cached vector or computes and caches one. Failures are not cached.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := sha256.Sum256([]byte(text))
	if vec, ok := c.cache.Get(key); ok {
		if c.metrics.cacheHits != nil {
			c.metrics.cacheHits.Add(ctx, 1)
		}
		return clone(vec), nil
	}
	if c.metrics.cacheMiss != nil {
		c.metrics.cacheMiss.Add(ctx, 1)
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, clone(vec))
	return vec, nil
}

// Dimension returns the wrapped provider's dimension.
func (c *CachedProvider) Dimension() int {
	return c.next.Dimension()
}

// Close purges the cache and closes the wrapped provider.
func (c *CachedProvider) Close() error {
	c.cache.Purge()
	return c.next.Close()
}

// Len returns the number of cached vectors.
func (c *CachedProvider) Len() int {
	return c.cache.Len()
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
