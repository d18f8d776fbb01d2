// Package vectorstore stores journal records as vectors and serves exact-match
// scans and filtered cosine similarity search over them.
//
// Two backends implement Index:
//   - QdrantIndex talks to a Qdrant server over gRPC.
//   - ChromemIndex is an embedded, file-backed chromem-go database.
//
// An Index is bound to a single collection by EnsureCollection, which must be
// called before any other operation.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrIndex wraps every backend fault.
	ErrIndex = errors.New("vector index error")

	// ErrDimensionMismatch is returned when a collection or vector disagrees
	// with the configured dimension. It is a configuration error.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidConfig indicates invalid backend configuration.
	ErrInvalidConfig = errors.New("invalid vectorstore configuration")

	// ErrInvalidCollectionName indicates the collection name failed validation.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrNotInitialized is returned when an operation runs before EnsureCollection.
	// It wraps ErrIndex.
	ErrNotInitialized = fmt.Errorf("%w: collection not initialized", ErrIndex)
)

// Index is a persistent vector index bound to one collection.
//
// Implementations are safe for concurrent use.
type Index interface {
	// EnsureCollection creates the collection if missing. An existing
	// collection with a different dimension yields ErrDimensionMismatch.
	EnsureCollection(ctx context.Context, name string, dim int) error

	// Upsert inserts or replaces a record by ID.
	Upsert(ctx context.Context, rec Record) error

	// Scan returns up to limit records matching every key of filter, in no
	// particular order.
	Scan(ctx context.Context, filter Filter, limit int) ([]Record, error)

	// SimilaritySearch returns the k records closest to vector among those
	// matching filter, most similar first.
	SimilaritySearch(ctx context.Context, vector []float32, filter Filter, k int) ([]ScoredRecord, error)

	// Close releases backend resources.
	Close() error
}

// Record is a stored vector with its payload.
//
// Payload values are strings or int64. Vector may be nil on records read back.
type Record struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// String returns a payload string value, or "" when absent.
func (r Record) String(key string) string {
	s, _ := r.Payload[key].(string)
	return s
}

// Int returns a payload integer value, or 0 when absent.
func (r Record) Int(key string) int64 {
	switch v := r.Payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// ScoredRecord is a Record with its cosine similarity to the query.
type ScoredRecord struct {
	Record
	Score float32
}

// Filter is an exact-match filter on string payload values. All keys must match.
type Filter map[string]string

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName checks name against ^[a-z0-9_]{1,64}$.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

func validatePayload(payload map[string]any) error {
	for k, v := range payload {
		switch v.(type) {
		case string, int64, int:
		default:
			return fmt.Errorf("%w: payload %q has unsupported type %T", ErrIndex, k, v)
		}
	}
	return nil
}

// indexErr wraps a backend fault so both ErrIndex and the cause match errors.Is.
func indexErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIndex, op, err)
}

func recordSpanError(span trace.Span, errp *error) {
	if *errp != nil {
		span.RecordError(*errp)
		span.SetStatus(codes.Error, (*errp).Error())
	}
}
