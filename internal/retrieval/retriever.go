// Package retrieval selects the journal entries used to answer a question.
//
// Search runs a semantic branch (embed the query, filtered similarity search)
// and falls back to a pure recency ranking of the already-listed entries when
// that branch fails for any reason other than cancellation.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/journalgpt/internal/embeddings"
	"github.com/fyrsmithlabs/journalgpt/internal/journal"
	"github.com/fyrsmithlabs/journalgpt/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/journalgpt/internal/retrieval"

// DefaultScanCap bounds how many entries are listed per search.
const DefaultScanCap = 100

// Strategy names the ranking that produced a Result.
type Strategy string

const (
	// StrategyNone marks an empty result that ran no ranking.
	StrategyNone Strategy = ""
	// StrategySemantic orders by descending similarity to the query.
	StrategySemantic Strategy = "semantic"
	// StrategyRecency orders by descending timestamp.
	StrategyRecency Strategy = "recency"
)

// Result is an ordered list of entry texts. The two orderings are never mixed.
type Result struct {
	Texts    []string
	Strategy Strategy
}

// Empty reports whether the result holds no texts.
func (r Result) Empty() bool {
	return len(r.Texts) == 0
}

// EntrySource lists and searches a user's entries. journal.Store implements it.
type EntrySource interface {
	ListEntries(ctx context.Context, userID, kind string, capCount int) ([]journal.Entry, error)
	SimilarEntries(ctx context.Context, userID, kind string, vector []float32, k int) ([]journal.Entry, error)
}

// Retriever implements Search.
type Retriever struct {
	source   EntrySource
	embedder embeddings.Provider
	scanCap  int
	logger   *logging.Logger

	tracer      trace.Tracer
	meter       metric.Meter
	searches    metric.Int64Counter
	resultSizes metric.Int64Histogram
}

// Instrumentation supplies a tracer and a meter. *telemetry.Telemetry
// implements it.
type Instrumentation interface {
	Tracer(name string, opts ...trace.TracerOption) trace.Tracer
	Meter(name string, opts ...metric.MeterOption) metric.Meter
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithScanCap overrides DefaultScanCap.
func WithScanCap(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.scanCap = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Retriever) { r.logger = logger }
}

// WithTelemetry records spans and metrics through inst instead of the
// global providers.
func WithTelemetry(inst Instrumentation) Option {
	return func(r *Retriever) {
		r.tracer = inst.Tracer(instrumentationName)
		r.meter = inst.Meter(instrumentationName)
	}
}

// New creates a Retriever.
func New(source EntrySource, embedder embeddings.Provider, opts ...Option) *Retriever {
	r := &Retriever{
		source:   source,
		embedder: embedder,
		scanCap:  DefaultScanCap,
		logger:   logging.NewNop(),
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.searches, _ = r.meter.Int64Counter("journalgpt.retrieval.searches",
		metric.WithDescription("Searches by the strategy that produced the result"))
	r.resultSizes, _ = r.meter.Int64Histogram("journalgpt.retrieval.result_size",
		metric.WithDescription("Number of texts returned per search"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 4, 8, 16, 32))
	return r
}

// Search returns at most min(limit, entries owned by userID) texts.
//
// limit <= 0 and a user without entries both yield an empty result without
// any provider call. A listing failure is returned since nothing remains to
// fall back on. Semantic failures other than cancellation fall back to
// RankByRecency.
func (r *Retriever) Search(ctx context.Context, userID, query string, limit int) (res Result, err error) {
	ctx, span := r.tracer.Start(ctx, "Retriever.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		span.SetAttributes(
			attribute.String("strategy", string(res.Strategy)),
			attribute.Int("results", len(res.Texts)),
		)
		r.record(ctx, res)
	}()

	if limit <= 0 {
		return Result{}, nil
	}

	entries, err := r.source.ListEntries(ctx, userID, journal.KindJournal, r.scanCap)
	if err != nil {
		return Result{}, fmt.Errorf("listing entries: %w", err)
	}
	if len(entries) == 0 {
		return Result{}, nil
	}

	texts, err := r.semantic(ctx, userID, query, min(limit, len(entries)))
	if err == nil {
		return Result{Texts: texts, Strategy: StrategySemantic}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, fmt.Errorf("semantic search: %w", ctxErr)
	}

	r.logger.Warn(ctx, "semantic search failed, ranking by recency",
		zap.Error(err),
		zap.Int("entries", len(entries)),
	)
	return Result{Texts: RankByRecency(entries, limit), Strategy: StrategyRecency}, nil
}

func (r *Retriever) semantic(ctx context.Context, userID, query string, k int) ([]string, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	matches, err := r.source.SimilarEntries(ctx, userID, journal.KindJournal, vector, k)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(matches))
	for _, e := range matches {
		if e.UserID != userID {
			// The index filters by user; a foreign record means the filter was ignored.
			return nil, errors.New("similarity search returned an entry owned by another user")
		}
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		texts = append(texts, e.Text)
	}
	return texts, nil
}

func (r *Retriever) record(ctx context.Context, res Result) {
	strategy := string(res.Strategy)
	if strategy == "" {
		strategy = "none"
	}
	opt := metric.WithAttributes(attribute.String("strategy", strategy))
	if r.searches != nil {
		r.searches.Add(ctx, 1, opt)
	}
	if r.resultSizes != nil {
		r.resultSizes.Record(ctx, int64(len(res.Texts)), opt)
	}
}

// RankByRecency returns the texts of entries ordered by descending timestamp,
// truncated to limit. Ties keep their input order and entries without text
// are skipped. entries is not modified.
func RankByRecency(entries []journal.Entry, limit int) []string {
	if limit <= 0 {
		return nil
	}
	sorted := make([]journal.Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp > sorted[j].Timestamp
	})

	texts := make([]string, 0, min(limit, len(sorted)))
	for _, e := range sorted {
		if len(texts) == limit {
			break
		}
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		texts = append(texts, e.Text)
	}
	return texts
}
