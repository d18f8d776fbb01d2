package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fyrsmithlabs/journalgpt/internal/embeddings"
	"github.com/fyrsmithlabs/journalgpt/internal/journal"
	"github.com/fyrsmithlabs/journalgpt/internal/telemetry"
	"github.com/fyrsmithlabs/journalgpt/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

// faultySource wraps a journal.Store and injects failures.
type faultySource struct {
	*journal.Store
	listErr    error
	similarErr error
	foreign    *journal.Entry

	lists    int
	similars int
}

func (f *faultySource) ListEntries(ctx context.Context, userID, kind string, capCount int) ([]journal.Entry, error) {
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Store.ListEntries(ctx, userID, kind, capCount)
}

func (f *faultySource) SimilarEntries(ctx context.Context, userID, kind string, vector []float32, k int) ([]journal.Entry, error) {
	f.similars++
	if f.similarErr != nil {
		return nil, f.similarErr
	}
	entries, err := f.Store.SimilarEntries(ctx, userID, kind, vector, k)
	if f.foreign != nil {
		entries = append([]journal.Entry{*f.foreign}, entries...)
	}
	return entries, err
}

type fixture struct {
	source *faultySource
	emb    *embeddings.KeywordEmbedder
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{emb: embeddings.NewKeywordEmbedder()}
	idx, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, idx.EnsureCollection(context.Background(), "journals", f.emb.Dimension()))
	store := journal.NewStore(idx, f.emb, journal.WithClock(func() time.Time { return f.clock }))
	f.source = &faultySource{Store: store}
	return f
}

func (f *fixture) add(t *testing.T, user, text string, ts int64) {
	t.Helper()
	f.clock = time.Unix(ts, 0)
	_, err := f.source.AddEntry(context.Background(), user, text)
	require.NoError(t, err)
}

func TestSearch_SemanticIsolatesUsers(t *testing.T) {
	f := newFixture(t)
	f.add(t, "u1", "I felt anxious before my presentation", 100)
	f.add(t, "u1", "I went for a calm walk by the lake", 200)
	f.add(t, "u2", "I am furious about my coworker.", 300)

	r := New(f.source, f.emb)
	res, err := r.Search(context.Background(), "u1", "Tell me about moments of calm", 5)
	require.NoError(t, err)

	assert.Equal(t, StrategySemantic, res.Strategy)
	require.Len(t, res.Texts, 2)
	assert.Equal(t, "I went for a calm walk by the lake", res.Texts[0])
	assert.Equal(t, "I felt anxious before my presentation", res.Texts[1])
	assert.NotContains(t, res.Texts, "I am furious about my coworker.")
}

func TestSearch_SimilarityFaultFallsBackToRecency(t *testing.T) {
	f := newFixture(t)
	f.add(t, "u1", "first", 100)
	f.add(t, "u1", "second", 200)
	f.add(t, "u1", "third", 300)
	f.add(t, "u2", "other user, newest", 400)
	f.source.similarErr = vectorstore.ErrIndex

	r := New(f.source, f.emb)
	res, err := r.Search(context.Background(), "u1", "anything", 2)
	require.NoError(t, err)

	assert.Equal(t, StrategyRecency, res.Strategy)
	assert.Equal(t, []string{"third", "second"}, res.Texts)
}

func TestSearch_EmbeddingFaultFallsBack(t *testing.T) {
	f := newFixture(t)
	f.add(t, "u1", "older", 100)
	f.add(t, "u1", "newer", 200)
	f.emb.FailWith(errors.New("provider down"))

	r := New(f.source, f.emb)
	res, err := r.Search(context.Background(), "u1", "question", 8)
	require.NoError(t, err)

	assert.Equal(t, StrategyRecency, res.Strategy)
	assert.Equal(t, []string{"newer", "older"}, res.Texts)
	assert.Zero(t, f.source.similars)
}

func TestSearch_ForeignRecordFallsBack(t *testing.T) {
	f := newFixture(t)
	f.add(t, "u1", "mine", 100)
	f.source.foreign = &journal.Entry{ID: "x", UserID: "u2", Text: "not mine", Timestamp: 999}

	r := New(f.source, f.emb)
	res, err := r.Search(context.Background(), "u1", "question", 5)
	require.NoError(t, err)

	assert.Equal(t, StrategyRecency, res.Strategy)
	assert.Equal(t, []string{"mine"}, res.Texts)
}

func TestSearch_NonPositiveLimitMakesNoCalls(t *testing.T) {
	f := newFixture(t)
	f.add(t, "u1", "entry", 100)
	calls := f.emb.Calls()

	r := New(f.source, f.emb)
	for _, limit := range []int{0, -3} {
		res, err := r.Search(context.Background(), "u1", "q", limit)
		require.NoError(t, err)
		assert.True(t, res.Empty())
	}
	assert.Equal(t, calls, f.emb.Calls())
	assert.Zero(t, f.source.lists)
}

func TestSearch_NoEntriesMakesNoProviderCalls(t *testing.T) {
	f := newFixture(t)
	f.add(t, "u2", "someone else", 100)
	calls := f.emb.Calls()

	r := New(f.source, f.emb)
	res, err := r.Search(context.Background(), "u1", "q", 8)
	require.NoError(t, err)

	assert.True(t, res.Empty())
	assert.Equal(t, StrategyNone, res.Strategy)
	assert.Equal(t, calls, f.emb.Calls())
	assert.Zero(t, f.source.similars)
}

func TestSearch_BoundedByLimitAndEntryCount(t *testing.T) {
	f := newFixture(t)
	f.add(t, "u1", "calm one", 100)
	f.add(t, "u1", "calm two", 200)
	f.add(t, "u1", "calm three", 300)

	r := New(f.source, f.emb)
	res, err := r.Search(context.Background(), "u1", "calm", 2)
	require.NoError(t, err)
	assert.Len(t, res.Texts, 2)

	res, err = r.Search(context.Background(), "u1", "calm", 10)
	require.NoError(t, err)
	assert.Len(t, res.Texts, 3)
}

func TestSearch_DuplicatesPreserved(t *testing.T) {
	f := newFixture(t)
	f.add(t, "u1", "calm lake", 100)
	f.add(t, "u1", "calm lake", 200)

	r := New(f.source, f.emb)
	res, err := r.Search(context.Background(), "u1", "calm", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"calm lake", "calm lake"}, res.Texts)
}

func TestSearch_ListingFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	f.source.listErr = vectorstore.ErrIndex

	r := New(f.source, f.emb)
	_, err := r.Search(context.Background(), "u1", "q", 8)
	assert.ErrorIs(t, err, vectorstore.ErrIndex)
}

func TestSearch_CancellationIsNotRecovered(t *testing.T) {
	f := newFixture(t)
	f.add(t, "u1", "entry", 100)

	ctx, cancel := context.WithCancel(context.Background())
	// Cancel after listing succeeds, during the semantic branch.
	f.source.similarErr = nil
	src := &cancelingSource{faultySource: f.source, cancel: cancel}

	r := New(src, f.emb)
	_, err := r.Search(ctx, "u1", "q", 8)
	assert.ErrorIs(t, err, context.Canceled)
}

type cancelingSource struct {
	*faultySource
	cancel context.CancelFunc
}

func (c *cancelingSource) ListEntries(ctx context.Context, userID, kind string, capCount int) ([]journal.Entry, error) {
	entries, err := c.faultySource.ListEntries(ctx, userID, kind, capCount)
	c.cancel()
	return entries, err
}

func TestSearch_RecordsTelemetry(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	f := newFixture(t)
	f.add(t, "u1", "calm", 100)

	r := New(f.source, f.emb, WithTelemetry(tt))
	_, err := r.Search(context.Background(), "u1", "calm", 3)
	require.NoError(t, err)

	f.source.similarErr = vectorstore.ErrIndex
	_, err = r.Search(context.Background(), "u1", "calm", 3)
	require.NoError(t, err)

	tt.AssertSpanExists(t, "Retriever.Search")
	assert.Equal(t, int64(1), tt.CounterValue(t, "journalgpt.retrieval.searches", attribute.String("strategy", "semantic")))
	assert.Equal(t, int64(1), tt.CounterValue(t, "journalgpt.retrieval.searches", attribute.String("strategy", "recency")))
}

func TestRankByRecency(t *testing.T) {
	entries := []journal.Entry{
		{ID: "a", Text: "a", Timestamp: 100},
		{ID: "b", Text: "b", Timestamp: 300},
		{ID: "c", Text: "", Timestamp: 400},
		{ID: "d", Text: "d", Timestamp: 300},
		{ID: "e", Text: "e", Timestamp: 200},
	}
	original := append([]journal.Entry(nil), entries...)

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"ties keep input order and empty text is skipped", 10, []string{"b", "d", "e", "a"}},
		{"truncates", 2, []string{"b", "d"}},
		{"zero limit", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RankByRecency(entries, tt.limit)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, original, entries, "input must not be reordered")
	assert.Empty(t, RankByRecency(nil, 5))
}
