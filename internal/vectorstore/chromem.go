package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/journalgpt/internal/logging"
	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// intKeysField lists the payload keys stored as integers. chromem metadata is
// string-only, so the types are kept alongside the values.
const intKeysField = "_int_keys"

// ChromemConfig holds configuration for the embedded chromem-go index.
type ChromemConfig struct {
	// Path is the persistence directory. A leading ~ expands to $HOME.
	// Empty means in-memory only.
	Path string

	// Compress gzips persisted documents.
	Compress bool
}

// ChromemIndex is an Index backed by an embedded chromem-go database.
//
// chromem performs exhaustive cosine search, so filters are always applied
// before ranking.
type ChromemIndex struct {
	db     *chromem.DB
	path   string
	logger *logging.Logger

	mu   sync.RWMutex
	coll *chromem.Collection
	dim  int
	// dims records the dimension each collection was ensured with. Persistent
	// databases also keep it in a <name>.dimension file beside the collections,
	// since an empty collection has no vectors to check against.
	dims map[string]int
}

// NewChromemIndex opens (or creates) a chromem database at cfg.Path.
func NewChromemIndex(cfg ChromemConfig, logger *logging.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	var (
		db   *chromem.DB
		path string
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		path, err = expandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: expanding path: %v", ErrInvalidConfig, err)
		}
		if err := os.MkdirAll(path, 0700); err != nil {
			return nil, indexErr("create directory", err)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, indexErr("open database", err)
		}
	}

	return &ChromemIndex{db: db, path: path, logger: logger.Named("chromem"), dims: map[string]int{}}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Close is a no-op; chromem persists on every write.
func (c *ChromemIndex) Close() error {
	return nil
}

// noEmbedding rejects text queries. Every vector is supplied by the caller.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem index does not embed text")
}

// EnsureCollection gets or creates the collection and verifies the dimension
// of existing documents with a fixed query vector.
func (c *ChromemIndex) EnsureCollection(ctx context.Context, name string, dim int) (err error) {
	defer observe("chromem", "ensure_collection", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "ChromemIndex.EnsureCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("dimension", dim))
	defer recordSpanError(span, &err)

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dim)
	}

	known, err := c.knownDimension(name)
	if err != nil {
		return err
	}
	if known > 0 && known != dim {
		return fmt.Errorf("%w: collection %q has dimension %d, configured %d", ErrDimensionMismatch, name, known, dim)
	}

	coll, err := c.db.GetOrCreateCollection(name, map[string]string{"dimension": strconv.Itoa(dim)}, noEmbedding)
	if err != nil {
		return indexErr("get or create collection", err)
	}

	if coll.Count() > 0 {
		if _, err := coll.QueryEmbedding(ctx, unitQuery(dim), 1, nil, nil); err != nil {
			if ctx.Err() != nil {
				return indexErr("dimension check", ctx.Err())
			}
			return fmt.Errorf("%w: collection %q does not hold %d-dimensional vectors: %v", ErrDimensionMismatch, name, dim, err)
		}
	}

	if known == 0 {
		if err := c.recordDimension(name, dim); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.coll, c.dim = coll, dim
	c.dims[name] = dim
	c.mu.Unlock()

	c.logger.Debug(ctx, "collection ready", zap.String("collection", name), zap.Int("count", coll.Count()))
	return nil
}

// knownDimension returns the dimension name was first ensured with, or 0.
func (c *ChromemIndex) knownDimension(name string) (int, error) {
	c.mu.RLock()
	dim, ok := c.dims[name]
	c.mu.RUnlock()
	if ok || c.path == "" {
		return dim, nil
	}

	data, err := os.ReadFile(c.dimensionFile(name))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, indexErr("read dimension", err)
	}
	dim, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || dim <= 0 {
		return 0, fmt.Errorf("%w: corrupt dimension file for %q: %q", ErrInvalidConfig, name, data)
	}
	return dim, nil
}

func (c *ChromemIndex) recordDimension(name string, dim int) error {
	if c.path == "" {
		return nil
	}
	if err := os.WriteFile(c.dimensionFile(name), []byte(strconv.Itoa(dim)+"\n"), 0600); err != nil {
		return indexErr("write dimension", err)
	}
	return nil
}

func (c *ChromemIndex) dimensionFile(name string) string {
	return filepath.Join(c.path, name+".dimension")
}

func (c *ChromemIndex) bound() (*chromem.Collection, int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.coll == nil {
		return nil, 0, ErrNotInitialized
	}
	return c.coll, c.dim, nil
}

// Upsert stores one document. chromem replaces documents with the same ID.
func (c *ChromemIndex) Upsert(ctx context.Context, rec Record) (err error) {
	defer observe("chromem", "upsert", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "ChromemIndex.Upsert")
	defer span.End()
	defer recordSpanError(span, &err)

	coll, dim, err := c.bound()
	if err != nil {
		return err
	}
	if len(rec.Vector) != dim {
		return fmt.Errorf("%w: vector has %d values, collection expects %d", ErrDimensionMismatch, len(rec.Vector), dim)
	}
	if rec.ID == "" {
		return fmt.Errorf("%w: record id is empty", ErrIndex)
	}
	if err := validatePayload(rec.Payload); err != nil {
		return err
	}
	if isZero(rec.Vector) {
		return fmt.Errorf("%w: zero vector has no direction", ErrIndex)
	}

	// chromem normalizes in place; keep the caller's slice intact.
	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)

	err = coll.AddDocument(ctx, chromem.Document{
		ID:        rec.ID,
		Metadata:  toMetadata(rec.Payload),
		Embedding: vec,
		Content:   rec.String("text"),
	})
	if err != nil {
		return indexErr("add document", err)
	}
	return nil
}

// Scan returns up to limit matching documents. chromem has no listing API, so
// a fixed query over the filtered set is used; its order carries no meaning.
func (c *ChromemIndex) Scan(ctx context.Context, filter Filter, limit int) (recs []Record, err error) {
	defer observe("chromem", "scan", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "ChromemIndex.Scan")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit))
	defer recordSpanError(span, &err)

	coll, dim, err := c.bound()
	if err != nil {
		return nil, err
	}
	n := min(limit, coll.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := coll.QueryEmbedding(ctx, unitQuery(dim), n, filter, nil)
	if err != nil {
		return nil, indexErr("scan", err)
	}

	// Present a stable order: by id.
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })

	recs = make([]Record, 0, len(results))
	for _, r := range results {
		recs = append(recs, Record{ID: r.ID, Vector: r.Embedding, Payload: fromMetadata(r.Metadata)})
	}
	return recs, nil
}

// SimilaritySearch ranks the filtered documents by cosine similarity.
func (c *ChromemIndex) SimilaritySearch(ctx context.Context, vector []float32, filter Filter, k int) (res []ScoredRecord, err error) {
	defer observe("chromem", "search", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "ChromemIndex.SimilaritySearch")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))
	defer recordSpanError(span, &err)

	coll, dim, err := c.bound()
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d values, collection expects %d", ErrDimensionMismatch, len(vector), dim)
	}
	n := min(k, coll.Count())
	if n <= 0 {
		return nil, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)

	results, err := coll.QueryEmbedding(ctx, query, n, filter, nil)
	if err != nil {
		return nil, indexErr("query", err)
	}

	res = make([]ScoredRecord, 0, len(results))
	for _, r := range results {
		res = append(res, ScoredRecord{
			Record: Record{ID: r.ID, Vector: r.Embedding, Payload: fromMetadata(r.Metadata)},
			Score:  r.Similarity,
		})
	}
	span.SetAttributes(attribute.Int("results", len(res)))
	return res, nil
}

// unitQuery is the fixed unit vector used for listing and dimension checks.
func unitQuery(dim int) []float32 {
	v := make([]float32, dim)
	val := float32(1 / math.Sqrt(float64(dim)))
	for i := range v {
		v[i] = val
	}
	return v
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func toMetadata(payload map[string]any) map[string]string {
	md := make(map[string]string, len(payload)+1)
	var ints []string
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			md[k] = val
		case int64:
			md[k] = strconv.FormatInt(val, 10)
			ints = append(ints, k)
		case int:
			md[k] = strconv.Itoa(val)
			ints = append(ints, k)
		}
	}
	if len(ints) > 0 {
		sort.Strings(ints)
		md[intKeysField] = strings.Join(ints, ",")
	}
	return md
}

func fromMetadata(md map[string]string) map[string]any {
	ints := map[string]bool{}
	if list := md[intKeysField]; list != "" {
		for _, k := range strings.Split(list, ",") {
			ints[k] = true
		}
	}
	payload := make(map[string]any, len(md))
	for k, v := range md {
		if k == intKeysField {
			continue
		}
		if ints[k] {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				payload[k] = n
				continue
			}
		}
		payload[k] = v
	}
	return payload
}
