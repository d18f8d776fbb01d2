package services

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/journalgpt/internal/analysis"
	"github.com/fyrsmithlabs/journalgpt/internal/completion"
	"github.com/fyrsmithlabs/journalgpt/internal/config"
	"github.com/fyrsmithlabs/journalgpt/internal/embeddings"
	"github.com/fyrsmithlabs/journalgpt/internal/journal"
	"github.com/fyrsmithlabs/journalgpt/internal/logging"
	"github.com/fyrsmithlabs/journalgpt/internal/retrieval"
	"github.com/fyrsmithlabs/journalgpt/internal/vectorstore"
)

// Dependencies overrides components that New would otherwise build from
// configuration. Nil fields are built.
type Dependencies struct {
	Index     vectorstore.Index
	Embedder  embeddings.Provider
	Completer completion.Provider

	// Telemetry, when set, receives retrieval spans and metrics.
	Telemetry retrieval.Instrumentation
}

// New builds the whole pipeline from cfg. On error every component built so
// far is closed.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger, deps Dependencies) (_ Registry, err error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	opts := Options{
		Index:     deps.Index,
		Embedder:  deps.Embedder,
		Completer: deps.Completer,
	}
	defer func() {
		if err != nil {
			_ = NewRegistry(opts).Close()
		}
	}()

	if opts.Embedder == nil {
		opts.Embedder, err = embeddings.NewProvider(cfg.Embeddings, cfg.VectorStore.Dimension, logger.Named("embeddings"))
		if err != nil {
			return nil, fmt.Errorf("creating embedding provider: %w", err)
		}
	}
	if opts.Index == nil {
		opts.Index, err = vectorstore.NewIndex(ctx, cfg.VectorStore, logger.Named("vectorstore"))
		if err != nil {
			return nil, fmt.Errorf("opening vector index: %w", err)
		}
	}
	if opts.Completer == nil {
		opts.Completer, err = completion.NewProvider(cfg.Completion, logger.Named("completion"))
		if err != nil {
			return nil, fmt.Errorf("creating completion provider: %w", err)
		}
	}

	opts.Store = journal.NewStore(opts.Index, opts.Embedder, journal.WithLogger(logger.Named("store")))

	retrieverOpts := []retrieval.Option{
		retrieval.WithScanCap(cfg.Retrieval.ScanCap),
		retrieval.WithLogger(logger.Named("retrieval")),
	}
	if deps.Telemetry != nil {
		retrieverOpts = append(retrieverOpts, retrieval.WithTelemetry(deps.Telemetry))
	}
	opts.Retriever = retrieval.New(opts.Store, opts.Embedder, retrieverOpts...)

	opts.Engine = analysis.NewEngine(opts.Retriever, opts.Completer, analysis.Config{
		Limit:           cfg.Retrieval.Limit,
		MaxContextChars: cfg.Analysis.MaxContextChars,
		MaxAnswerTokens: cfg.Analysis.MaxAnswerTokens,
	}, logger)

	opts.Journal = NewJournal(opts.Store, opts.Engine, logger)
	return NewRegistry(opts), nil
}
