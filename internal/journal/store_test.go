package journal

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/fyrsmithlabs/journalgpt/internal/embeddings"
	"github.com/fyrsmithlabs/journalgpt/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *embeddings.KeywordEmbedder, *vectorstore.ChromemIndex) {
	t.Helper()
	emb := embeddings.NewKeywordEmbedder()
	idx, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, idx.EnsureCollection(context.Background(), "journals", emb.Dimension()))
	return NewStore(idx, emb, opts...), emb, idx
}

func TestStore_AddEntryPersistsSchema(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(1700000000, 0)
	s, _, _ := newTestStore(t,
		WithClock(func() time.Time { return at }),
		WithIDGenerator(func() string { return "2b1f4a9e-0c4d-4b8e-9a57-0f4c1e2d3a4b" }),
	)

	id, err := s.AddEntry(ctx, "u1", "I went for a calm walk by the lake")
	require.NoError(t, err)
	assert.Equal(t, "2b1f4a9e-0c4d-4b8e-9a57-0f4c1e2d3a4b", id)

	entries, err := s.ListEntries(ctx, "u1", KindJournal, 100)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, id, e.ID)
	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, "I went for a calm walk by the lake", e.Text)
	assert.Equal(t, int64(1700000000), e.Timestamp)
	assert.Equal(t, KindJournal, e.Kind)
}

func TestStore_AddEntryIsNotIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	id1, err := s.AddEntry(ctx, "u1", "same words")
	require.NoError(t, err)
	id2, err := s.AddEntry(ctx, "u1", "same words")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	entries, err := s.ListEntries(ctx, "u1", KindJournal, 100)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStore_EmbeddingFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	s, emb, _ := newTestStore(t)
	emb.FailWith(errors.New("provider down"))

	_, err := s.AddEntry(ctx, "u1", "lost entry")
	require.ErrorIs(t, err, embeddings.ErrEmbedding)

	emb.FailWith(nil)
	entries, err := s.ListEntries(ctx, "u1", KindJournal, 100)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_CanceledContextWritesNothing(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.AddEntry(ctx, "u1", "never stored")
	require.ErrorIs(t, err, context.Canceled)

	entries, err := s.ListEntries(context.Background(), "u1", KindJournal, 100)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_InvalidInput(t *testing.T) {
	ctx := context.Background()
	s, emb, _ := newTestStore(t)

	_, err := s.AddEntry(ctx, "", "text")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.AddEntry(ctx, "u1", "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.ListEntries(ctx, "", KindJournal, 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, emb.Calls())
}

func TestStore_ScopesByUser(t *testing.T) {
	ctx := context.Background()
	s, emb, _ := newTestStore(t)

	_, err := s.AddEntry(ctx, "u1", "I felt anxious before my presentation")
	require.NoError(t, err)
	_, err = s.AddEntry(ctx, "u2", "I am furious about my coworker.")
	require.NoError(t, err)

	entries, err := s.ListEntries(ctx, "u1", KindJournal, 100)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].UserID)

	vec, err := emb.Embed(ctx, "furious coworker")
	require.NoError(t, err)
	similar, err := s.SimilarEntries(ctx, "u1", KindJournal, vec, 5)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, "u1", similar[0].UserID)
}

func TestStore_ListEntriesHonorsCap(t *testing.T) {
	ctx := context.Background()
	n := 0
	s, _, _ := newTestStore(t, WithClock(func() time.Time { n++; return time.Unix(int64(n), 0) }))
	for i := 0; i < 5; i++ {
		_, err := s.AddEntry(ctx, "u1", "entry "+strconv.Itoa(i))
		require.NoError(t, err)
	}

	entries, err := s.ListEntries(ctx, "u1", KindJournal, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestStore_IndexFailureWrapsErrIndex(t *testing.T) {
	emb := embeddings.NewKeywordEmbedder()
	idx, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)
	// Never bound to a collection.
	s := NewStore(idx, emb)

	_, err = s.AddEntry(context.Background(), "u1", "text")
	assert.ErrorIs(t, err, vectorstore.ErrNotInitialized)
	assert.ErrorIs(t, err, vectorstore.ErrIndex)
}
