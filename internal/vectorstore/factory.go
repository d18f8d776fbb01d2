package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/journalgpt/internal/config"
	"github.com/fyrsmithlabs/journalgpt/internal/logging"
	"go.uber.org/zap"
)

// NewIndex builds the configured backend and binds it to cfg.Collection.
//
//   - "chromem" (default): embedded, file-backed, no external service
//   - "qdrant": remote Qdrant over gRPC
//
// A dimension mismatch with an existing collection is returned as
// ErrDimensionMismatch and the index is closed.
func NewIndex(ctx context.Context, cfg config.VectorStoreConfig, logger *logging.Logger) (Index, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	var (
		idx Index
		err error
	)
	switch cfg.Provider {
	case "chromem", "":
		idx, err = NewChromemIndex(ChromemConfig{
			Path:     cfg.Chromem.Path,
			Compress: cfg.Chromem.Compress,
		}, logger)
	case "qdrant":
		idx, err = NewQdrantIndex(ctx, QdrantConfig{
			Host:          cfg.Qdrant.Host,
			Port:          cfg.Qdrant.Port,
			APIKey:        cfg.Qdrant.APIKey.Value(),
			UseTLS:        cfg.Qdrant.UseTLS,
			MaxRetries:    cfg.Qdrant.MaxRetries,
			IndexedFields: []string{"user_id", "kind"},
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if err := idx.EnsureCollection(ctx, cfg.Collection, cfg.Dimension); err != nil {
		_ = idx.Close()
		return nil, err
	}

	logger.Info(ctx, "vector index ready",
		zap.String("provider", cfg.Provider),
		zap.String("collection", cfg.Collection),
		zap.Int("dimension", cfg.Dimension),
	)
	return idx, nil
}
