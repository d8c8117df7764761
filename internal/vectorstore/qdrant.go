package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// QdrantConfig holds configuration for the Qdrant backend.
type QdrantConfig struct {
	// Host is the Qdrant gRPC host. Default: "localhost".
	Host string

	// Port is the Qdrant gRPC port. Default: 6334.
	Port int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// Collection is the collection name. Default: "memoryd_ltm".
	Collection string

	// Dimension is the expected embedding dimension. Default: 384.
	Dimension int

	// MaxMessageSize bounds gRPC messages. Default: 32MB.
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
		c.Collection = "memoryd_ltm"
	}
	if c.Dimension == 0 {
		c.Dimension = 384
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 32 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c *QdrantConfig) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// QdrantStore implements Store against an external Qdrant instance over
// gRPC. Use it when the record count outgrows the embedded backends.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrantStore connects to Qdrant and ensures the collection exists.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	store := &QdrantStore{client: client, config: config, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant store initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
	)
	return store, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.config.Dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}
	return nil
}

// Add inserts a record.
func (s *QdrantStore) Add(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: record id is empty", ErrInvalidArgument)
	}
	if len(rec.Vector) != s.config.Dimension {
		return fmt.Errorf("%w: got %d, store dimension %d", ErrDimensionMismatch, len(rec.Vector), s.config.Dimension)
	}

	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: map[string]*qdrant.Value{
				"payload":  qdrant.NewValueString(string(payload)),
				"category": qdrant.NewValueString(rec.Payload.Category),
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Get returns the record with the given id.
func (s *QdrantStore) Get(ctx context.Context, id string) (Record, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.config.Collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return Record{}, fmt.Errorf("%w: get: %v", ErrBackendUnavailable, err)
	}
	if len(points) == 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	rec := Record{ID: id}
	if v := points[0].Vectors.GetVector(); v != nil {
		rec.Vector = v.Data
	}
	if err := decodeQdrantPayload(points[0].Payload, &rec.Payload); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Delete removes the record with the given id.
func (s *QdrantStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.config.Collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(id)),
	})
	if err != nil {
		return fmt.Errorf("%w: delete: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Search returns the topK records by cosine similarity. Payload predicates
// are applied client-side after an over-fetch.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if len(vector) != s.config.Dimension {
		return nil, fmt.Errorf("%w: query dimension %d, store dimension %d", ErrDimensionMismatch, len(vector), s.config.Dimension)
	}
	if topK <= 0 {
		return nil, nil
	}

	// Over-fetch so client-side filtering can still fill topK.
	limit := uint64(topK)
	if filter != nil {
		limit *= 4
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrBackendUnavailable, err)
	}

	matches := make([]Match, 0, topK)
	for _, point := range points {
		var payload Payload
		if err := decodeQdrantPayload(point.Payload, &payload); err != nil {
			return nil, err
		}
		if filter != nil && !filter(payload) {
			continue
		}
		m := Match{
			ID:      point.Id.GetUuid(),
			Score:   point.Score,
			Payload: payload,
		}
		if v := point.Vectors.GetVector(); v != nil {
			m.Vector = v.Data
		}
		matches = append(matches, m)
		if len(matches) == topK {
			break
		}
	}
	return matches, nil
}

// Count returns the number of stored records.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.config.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrBackendUnavailable, err)
	}
	return int(count), nil
}

// Dimension returns the store's vector dimension.
func (s *QdrantStore) Dimension() int {
	return s.config.Dimension
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func decodeQdrantPayload(values map[string]*qdrant.Value, payload *Payload) error {
	if values == nil {
		return nil
	}
	raw, ok := values["payload"]
	if !ok {
		return nil
	}
	if str := raw.GetStringValue(); str != "" {
		if err := json.Unmarshal([]byte(str), payload); err != nil {
			return fmt.Errorf("unmarshaling payload: %w", err)
		}
	}
	return nil
}
