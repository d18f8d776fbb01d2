// Package journal persists journal entries as vectorized records scoped by user.
package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/journalgpt/internal/embeddings"
	"github.com/fyrsmithlabs/journalgpt/internal/logging"
	"github.com/fyrsmithlabs/journalgpt/internal/vectorstore"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KindJournal is the only entry kind today.
const KindJournal = "journal"

// Payload keys persisted with every entry.
const (
	FieldUserID    = "user_id"
	FieldTimestamp = "timestamp"
	FieldKind      = "kind"
	FieldText      = "text"
)

// ErrInvalidInput indicates an empty user id or entry text.
var ErrInvalidInput = errors.New("invalid input")

// Entry is one persisted journal entry. Entries are append-only.
type Entry struct {
	ID        string
	UserID    string
	Text      string
	Vector    []float32
	Timestamp int64
	Kind      string
}

// Store adds and lists entries. It owns the entry schema and user scoping;
// every read filters by user id inside the index query.
type Store struct {
	index    vectorstore.Index
	embedder embeddings.Provider
	logger   *logging.Logger

	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the UUIDv4 generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a Store over index, embedding text with embedder.
func NewStore(index vectorstore.Index, embedder embeddings.Provider, opts ...Option) *Store {
	s := &Store{
		index:    index,
		embedder: embedder,
		logger:   logging.NewNop(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddEntry embeds text and persists it for userID, returning the new id.
// Nothing is written unless a vector was obtained. Storing identical text
// twice yields two entries.
func (s *Store) AddEntry(ctx context.Context, userID, text string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: user id is empty", ErrInvalidInput)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: entry text is empty", ErrInvalidInput)
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("embedding entry: %w", err)
	}

	id := s.newID()
	rec := vectorstore.Record{
		ID:     id,
		Vector: vector,
		Payload: map[string]any{
			FieldUserID:    userID,
			FieldTimestamp: s.now().Unix(),
			FieldKind:      KindJournal,
			FieldText:      text,
		},
	}
	if err := s.index.Upsert(ctx, rec); err != nil {
		return "", fmt.Errorf("storing entry: %w", err)
	}

	s.logger.Info(ctx, "journal entry stored",
		zap.String("entry_id", id),
		logging.TextLen("text", text),
	)
	return id, nil
}

// ListEntries returns up to capCount of userID's entries of kind, in no
// particular order.
func (s *Store) ListEntries(ctx context.Context, userID, kind string, capCount int) ([]Entry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is empty", ErrInvalidInput)
	}
	recs, err := s.index.Scan(ctx, scope(userID, kind), capCount)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	entries := make([]Entry, 0, len(recs))
	for _, r := range recs {
		entries = append(entries, fromRecord(r))
	}
	return entries, nil
}

// SimilarEntries returns up to k of userID's entries of kind closest to
// vector, most similar first.
func (s *Store) SimilarEntries(ctx context.Context, userID, kind string, vector []float32, k int) ([]Entry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is empty", ErrInvalidInput)
	}
	res, err := s.index.SimilaritySearch(ctx, vector, scope(userID, kind), k)
	if err != nil {
		return nil, fmt.Errorf("searching entries: %w", err)
	}
	entries := make([]Entry, 0, len(res))
	for _, r := range res {
		entries = append(entries, fromRecord(r.Record))
	}
	return entries, nil
}

func scope(userID, kind string) vectorstore.Filter {
	f := vectorstore.Filter{FieldUserID: userID}
	if kind != "" {
		f[FieldKind] = kind
	}
	return f
}

func fromRecord(r vectorstore.Record) Entry {
	return Entry{
		ID:        r.ID,
		UserID:    r.String(FieldUserID),
		Text:      r.String(FieldText),
		Vector:    r.Vector,
		Timestamp: r.Int(FieldTimestamp),
		Kind:      r.String(FieldKind),
	}
}
