package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/fyrsmithlabs/careerd/internal/metadata"
)

// Reserved payload keys. Metadata keys never start with an underscore.
const (
	payloadRecordID = "_record_id"
	payloadText     = "_text"
)

// pointNamespace derives deterministic point UUIDs from record IDs so that
// an upsert with the same ID replaces the point.
var pointNamespace = uuid.MustParse("6f1c7a52-4c1b-4f6e-9a57-3b1f2f0c8d21")

// QdrantConfig holds configuration for a Qdrant gRPC connection.
type QdrantConfig struct {
	Host       string
	Port       int
	UseTLS     bool
	APIKey     string
	Collection string

	// Dimension is the vector size of the collection. Required when the
	// collection does not exist yet.
	Dimension int

	// MaxMessageSize bounds gRPC messages in bytes. Default: 50MB.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "user_profiles"
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c *QdrantConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}
	return ValidateCollectionName(c.Collection)
}

// QdrantStore implements Index on Qdrant.
type QdrantStore struct {
	client    *qdrant.Client
	config    QdrantConfig
	isolation IsolationMode
	logger    *zap.Logger

	mu    sync.Mutex
	ready bool
}

// NewQdrantStore connects to Qdrant and checks its health. The collection
// is created on first use.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if !cfg.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)", zap.String("host", cfg.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check: %w", err)
	}

	logger.Info("qdrant store initialized",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("collection", cfg.Collection),
	)
	return &QdrantStore{client: client, config: cfg, isolation: NewPayloadIsolation(), logger: logger}, nil
}

// ensureCollection creates the cosine collection and the user_id payload
// index if they are missing.
func (s *QdrantStore) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if exists {
		s.ready = true
		return nil
	}
	if s.config.Dimension > 0 {
		dimension = s.config.Dimension
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: vector dimension unknown for new collection", ErrInvalidConfig)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}
	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.config.Collection,
		FieldName:      metadata.KeyUserID,
		FieldType:      qdrant.PtrOf(qdrant.FieldType_FieldTypeKeyword),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("indexing %s: %w", metadata.KeyUserID, err)
	}

	s.logger.Info("created qdrant collection",
		zap.String("collection", s.config.Collection),
		zap.Int("dimension", dimension))
	s.ready = true
	return nil
}

// PointID returns the deterministic Qdrant point UUID for a record ID.
func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

// Upsert writes records as points keyed by PointID.
func (s *QdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, s.config.Dimension); err != nil {
		return err
	}
	if err := s.isolation.InjectMetadata(ctx, records); err != nil {
		return fmt.Errorf("injecting tenant metadata: %w", err)
	}
	if err := s.ensureCollection(ctx, len(records[0].Embedding)); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		payload := toQdrantPayload(r.Metadata)
		payload[payloadRecordID] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: r.ID}}
		payload[payloadText] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: r.Text}}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(r.ID)),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: payload,
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}
	return nil
}

// Query searches with a keyword filter on user_id.
func (s *QdrantStore) Query(ctx context.Context, embedding []float32, k int) ([]Hit, error) {
	where, err := userFilter(ctx, s.isolation)
	if err != nil {
		return nil, fmt.Errorf("injecting tenant filter: %w", err)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return nil, fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if !exists {
		return []Hit{}, nil
	}

	conditions := make([]*qdrant.Condition, 0, len(where))
	for key, value := range where {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: value},
					},
				},
			},
		})
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(k)),
		Filter:         &qdrant.Filter{Must: conditions},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		meta := fromQdrantPayload(p.GetPayload())
		id, _ := meta[payloadRecordID].(string)
		text, _ := meta[payloadText].(string)
		delete(meta, payloadRecordID)
		delete(meta, payloadText)
		hits = append(hits, Hit{ID: id, Text: text, Metadata: meta, Distance: 1 - p.GetScore()})
	}
	return hits, nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return 0, fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if !exists {
		return 0, nil
	}
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.config.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return int(n), nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func toQdrantPayload(m metadata.Map) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(m)+2)
	for _, e := range m {
		v := e.Value.Flatten()
		switch v.Kind() {
		case metadata.KindNull:
			payload[e.Key] = &qdrant.Value{Kind: &qdrant.Value_NullValue{}}
		case metadata.KindInt:
			payload[e.Key] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: v.Interface().(int64)}}
		case metadata.KindFloat:
			payload[e.Key] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: v.Interface().(float64)}}
		case metadata.KindBool:
			payload[e.Key] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: v.Interface().(bool)}}
		default:
			payload[e.Key] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v.String()}}
		}
	}
	return payload
}

func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			out[k] = kind.StringValue
		case *qdrant.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[k] = kind.DoubleValue
		case *qdrant.Value_BoolValue:
			out[k] = kind.BoolValue
		default:
			out[k] = nil
		}
	}
	return out
}

var _ Index = (*QdrantStore)(nil)
