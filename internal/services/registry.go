package services

import (
	"errors"

	"github.com/fyrsmithlabs/journalgpt/internal/analysis"
	"github.com/fyrsmithlabs/journalgpt/internal/completion"
	"github.com/fyrsmithlabs/journalgpt/internal/embeddings"
	"github.com/fyrsmithlabs/journalgpt/internal/journal"
	"github.com/fyrsmithlabs/journalgpt/internal/retrieval"
	"github.com/fyrsmithlabs/journalgpt/internal/vectorstore"
)

// Registry provides access to the pipeline components.
type Registry interface {
	Index() vectorstore.Index
	Embedder() embeddings.Provider
	Completer() completion.Provider
	Store() *journal.Store
	Retriever() *retrieval.Retriever
	Engine() *analysis.Engine
	Journal() *Journal

	// Close releases the embedder and the index.
	Close() error
}

// Options configures the registry with component instances.
type Options struct {
	Index     vectorstore.Index
	Embedder  embeddings.Provider
	Completer completion.Provider
	Store     *journal.Store
	Retriever *retrieval.Retriever
	Engine    *analysis.Engine
	Journal   *Journal
}

type registry struct {
	index     vectorstore.Index
	embedder  embeddings.Provider
	completer completion.Provider
	store     *journal.Store
	retriever *retrieval.Retriever
	engine    *analysis.Engine
	journal   *Journal
}

// NewRegistry creates a registry over already constructed components.
func NewRegistry(opts Options) Registry {
	return &registry{
		index:     opts.Index,
		embedder:  opts.Embedder,
		completer: opts.Completer,
		store:     opts.Store,
		retriever: opts.Retriever,
		engine:    opts.Engine,
		journal:   opts.Journal,
	}
}

func (r *registry) Index() vectorstore.Index        { return r.index }
func (r *registry) Embedder() embeddings.Provider   { return r.embedder }
func (r *registry) Completer() completion.Provider  { return r.completer }
func (r *registry) Store() *journal.Store           { return r.store }
func (r *registry) Retriever() *retrieval.Retriever { return r.retriever }
func (r *registry) Engine() *analysis.Engine        { return r.engine }
func (r *registry) Journal() *Journal               { return r.journal }

func (r *registry) Close() error {
	var errs []error
	if r.embedder != nil {
		errs = append(errs, r.embedder.Close())
	}
	if r.index != nil {
		errs = append(errs, r.index.Close())
	}
	return errors.Join(errs...)
}
