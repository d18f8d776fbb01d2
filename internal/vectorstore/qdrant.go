package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/journalgpt/internal/logging"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var tracer = otel.Tracer("journalgpt/vectorstore")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default: "localhost".
	Host string

	// Port is the gRPC port, not the REST port. Default: 6334.
	Port int

	APIKey string
	UseTLS bool

	// MaxRetries bounds retries of transient gRPC faults. Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per attempt. Default: 500ms.
	RetryBackoff time.Duration

	// MaxMessageSize is the gRPC message cap in bytes. Default: 16MB.
	MaxMessageSize int

	// CircuitBreakerThreshold is the failure count that opens the circuit. Default: 5.
	CircuitBreakerThreshold int

	// CircuitBreakerCooldown is how long the circuit stays open. Default: 30s.
	CircuitBreakerCooldown time.Duration

	// IndexedFields get a keyword payload index on collection creation.
	IndexedFields []string
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 16 * 1024 * 1024
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.CircuitBreakerCooldown == 0 {
		c.CircuitBreakerCooldown = 30 * time.Second
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// IsTransientError reports whether a gRPC error is worth retrying.
func IsTransientError(err error) bool {
	st, ok := status.FromError(err)
	if !ok || err == nil {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantIndex is an Index backed by Qdrant's native gRPC API.
type QdrantIndex struct {
	client *qdrant.Client
	config QdrantConfig
	logger *logging.Logger

	mu         sync.RWMutex
	collection string
	dim        int

	breaker circuitBreaker
}

// NewQdrantIndex connects to Qdrant and performs a health check.
func NewQdrantIndex(ctx context.Context, config QdrantConfig, logger *logging.Logger) (*QdrantIndex, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, indexErr("connect", err)
	}

	idx := &QdrantIndex{
		client:  client,
		config:  config,
		logger:  logger.Named("qdrant"),
		breaker: circuitBreaker{threshold: config.CircuitBreakerThreshold, cooldown: config.CircuitBreakerCooldown},
	}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, indexErr("health check", err)
	}

	if !config.UseTLS {
		idx.logger.Warn(ctx, "qdrant gRPC connection is plaintext", zap.String("host", config.Host))
	}
	return idx, nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

func (q *QdrantIndex) bound() (string, int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.collection == "" {
		return "", 0, ErrNotInitialized
	}
	return q.collection, q.dim, nil
}

// EnsureCollection creates the collection with cosine distance if it does not
// exist and binds the index to it.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, name string, dim int) (err error) {
	defer observe("qdrant", "ensure_collection", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "QdrantIndex.EnsureCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("dimension", dim))
	defer recordSpanError(span, &err)

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dim)
	}

	var exists bool
	if err := q.retryOperation(ctx, "collection_exists", func() error {
		var err error
		exists, err = q.client.CollectionExists(ctx, name)
		return err
	}); err != nil {
		return indexErr("collection exists", err)
	}

	if exists {
		var info *qdrant.CollectionInfo
		if err := q.retryOperation(ctx, "collection_info", func() error {
			var err error
			info, err = q.client.GetCollectionInfo(ctx, name)
			return err
		}); err != nil {
			return indexErr("collection info", err)
		}
		got := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
		if got != dim {
			return fmt.Errorf("%w: collection %q has dimension %d, configured %d", ErrDimensionMismatch, name, got, dim)
		}
	} else {
		if err := q.retryOperation(ctx, "create_collection", func() error {
			return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: name,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     uint64(dim),
					Distance: qdrant.Distance_Cosine,
				}),
			})
		}); err != nil {
			return indexErr("create collection", err)
		}
		for _, field := range q.config.IndexedFields {
			if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: name,
				FieldName:      field,
				FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
				Wait:           qdrant.PtrOf(true),
			}); err != nil {
				// Filtering still works without the index, only slower.
				q.logger.Warn(ctx, "creating payload index failed", zap.String("field", field), zap.Error(err))
			}
		}
		q.logger.Info(ctx, "created collection", zap.String("collection", name), zap.Int("dimension", dim))
	}

	q.mu.Lock()
	q.collection, q.dim = name, dim
	q.mu.Unlock()
	return nil
}

// Upsert writes one point and waits for it to be applied.
func (q *QdrantIndex) Upsert(ctx context.Context, rec Record) (err error) {
	defer observe("qdrant", "upsert", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "QdrantIndex.Upsert")
	defer span.End()
	defer recordSpanError(span, &err)

	collection, dim, err := q.bound()
	if err != nil {
		return err
	}
	if len(rec.Vector) != dim {
		return fmt.Errorf("%w: vector has %d values, collection expects %d", ErrDimensionMismatch, len(rec.Vector), dim)
	}
	if _, err := uuid.Parse(rec.ID); err != nil {
		return fmt.Errorf("%w: point id must be a UUID: %v", ErrIndex, err)
	}
	if err := validatePayload(rec.Payload); err != nil {
		return err
	}
	payload, err := qdrant.TryValueMap(rec.Payload)
	if err != nil {
		return indexErr("payload", err)
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(rec.ID),
		Vectors: qdrant.NewVectors(rec.Vector...),
		Payload: payload,
	}
	err = q.retryOperation(ctx, "upsert", func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         []*qdrant.PointStruct{point},
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		return indexErr("upsert", err)
	}
	return nil
}

// Scan scrolls through points matching filter.
func (q *QdrantIndex) Scan(ctx context.Context, filter Filter, limit int) (recs []Record, err error) {
	defer observe("qdrant", "scan", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "QdrantIndex.Scan")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit))
	defer recordSpanError(span, &err)

	collection, _, err := q.bound()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	var points []*qdrant.RetrievedPoint
	err = q.retryOperation(ctx, "scroll", func() error {
		var err error
		points, err = q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Filter:         qdrantFilter(filter),
			Limit:          qdrant.PtrOf(uint32(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		return err
	})
	if err != nil {
		return nil, indexErr("scroll", err)
	}

	recs = make([]Record, 0, len(points))
	for _, p := range points {
		recs = append(recs, Record{ID: p.GetId().GetUuid(), Payload: fromQdrantPayload(p.GetPayload())})
	}
	span.SetAttributes(attribute.Int("results", len(recs)))
	return recs, nil
}

// SimilaritySearch runs a filtered nearest-neighbour query. Qdrant applies the
// filter during the HNSW traversal, before ranking.
func (q *QdrantIndex) SimilaritySearch(ctx context.Context, vector []float32, filter Filter, k int) (res []ScoredRecord, err error) {
	defer observe("qdrant", "search", time.Now(), &err)
	ctx, span := tracer.Start(ctx, "QdrantIndex.SimilaritySearch")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))
	defer recordSpanError(span, &err)

	collection, dim, err := q.bound()
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d values, collection expects %d", ErrDimensionMismatch, len(vector), dim)
	}

	var points []*qdrant.ScoredPoint
	err = q.retryOperation(ctx, "query", func() error {
		var err error
		points, err = q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collection,
			Query:          qdrant.NewQuery(vector...),
			Filter:         qdrantFilter(filter),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		return err
	})
	if err != nil {
		return nil, indexErr("query", err)
	}

	res = make([]ScoredRecord, 0, len(points))
	for _, p := range points {
		res = append(res, ScoredRecord{
			Record: Record{ID: p.GetId().GetUuid(), Payload: fromQdrantPayload(p.GetPayload())},
			Score:  p.GetScore(),
		})
	}
	span.SetAttributes(attribute.Int("results", len(res)))
	return res, nil
}

func qdrantFilter(filter Filter) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		conditions = append(conditions, qdrant.NewMatchKeyword(key, value))
	}
	return &qdrant.Filter{Must: conditions}
}

func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch val := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			out[k] = val.StringValue
		case *qdrant.Value_IntegerValue:
			out[k] = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[k] = int64(val.DoubleValue)
		}
	}
	return out
}

// retryOperation retries transient failures with exponential backoff.
func (q *QdrantIndex) retryOperation(ctx context.Context, op string, operation func() error) error {
	if q.breaker.open() {
		return fmt.Errorf("%s: circuit breaker open", op)
	}

	backoff := q.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := operation()
		if err == nil {
			q.breaker.reset()
			return nil
		}
		if !IsTransientError(err) {
			return err
		}

		q.breaker.recordFailure()
		if attempt >= q.config.MaxRetries || q.breaker.open() {
			return fmt.Errorf("%s failed after %d attempts: %w", op, attempt+1, err)
		}

		RetriesTotal.WithLabelValues(op).Inc()
		q.logger.Debug(ctx, "retrying qdrant operation",
			zap.String("op", op), zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", op, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// circuitBreaker opens after threshold consecutive transient failures and
// closes again after cooldown.
type circuitBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	lastFail  time.Time
}

func (b *circuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFail = time.Now()
}

func (b *circuitBreaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

func (b *circuitBreaker) open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.threshold <= 0 || b.failures < b.threshold {
		return false
	}
	if time.Since(b.lastFail) > b.cooldown {
		b.failures = 0
		return false
	}
	return true
}
