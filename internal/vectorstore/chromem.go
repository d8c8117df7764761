package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means a purely
	// in-memory database.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection name. Default: "memoryd_ltm".
	Collection string

	// Dimension is the expected embedding dimension. Must match the
	// embedder's output dimension. Default: 384.
	Dimension int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "memoryd_ltm"
	}
	if c.Dimension == 0 {
		c.Dimension = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go, an embeddable pure-Go
// vector database with optional gob persistence.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     ChromemConfig
	logger     *zap.Logger
}

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	// Vectors are always supplied precomputed; the embedding func must
	// never be called.
	noEmbed := chromem.EmbeddingFunc(func(_ context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("%w: document without precomputed embedding", ErrInvalidArgument)
	})

	collection, err := db.GetOrCreateCollection(config.Collection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", config.Collection, err)
	}

	logger.Info("chromem store initialized",
		zap.String("path", config.Path),
		zap.String("collection", config.Collection),
		zap.Int("dimension", config.Dimension),
	)

	return &ChromemStore{
		db:         db,
		collection: collection,
		config:     config,
		logger:     logger,
	}, nil
}

// expandPath expands ~ to the home directory.
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

// Add inserts a record.
func (s *ChromemStore) Add(ctx context.Context, rec Record) error {
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
	doc := chromem.Document{
		ID:        rec.ID,
		Embedding: rec.Vector,
		Content:   rec.Payload.Content,
		Metadata: map[string]string{
			"payload":  string(payload),
			"category": rec.Payload.Category,
		},
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("adding document: %w", err)
	}
	return nil
}

// Get returns the record with the given id.
func (s *ChromemStore) Get(ctx context.Context, id string) (Record, error) {
	doc, err := s.collection.GetByID(ctx, id)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.toRecord(doc)
}

// Delete removes the record with the given id.
func (s *ChromemStore) Delete(ctx context.Context, id string) error {
	if err := s.collection.Delete(ctx, nil, nil, id); err != nil {
		// chromem errors on unknown ids; absent ids are not an error here.
		if strings.Contains(err.Error(), "not found") {
			return nil
		}
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// Search returns the topK records by cosine similarity.
//
// chromem's where-filters only support exact metadata matches, so payload
// predicates are applied after querying the full candidate set.
func (s *ChromemStore) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if len(vector) != s.config.Dimension {
		return nil, fmt.Errorf("%w: query dimension %d, store dimension %d", ErrDimensionMismatch, len(vector), s.config.Dimension)
	}
	if topK <= 0 {
		return nil, nil
	}

	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	matches := make([]Match, 0, topK)
	for _, res := range results {
		var payload Payload
		if raw, ok := res.Metadata["payload"]; ok {
			if err := json.Unmarshal([]byte(raw), &payload); err != nil {
				return nil, fmt.Errorf("unmarshaling payload for %s: %w", res.ID, err)
			}
		}
		if filter != nil && !filter(payload) {
			continue
		}
		matches = append(matches, Match{
			ID:      res.ID,
			Score:   res.Similarity,
			Vector:  res.Embedding,
			Payload: payload,
		})
		if len(matches) == topK {
			break
		}
	}
	// chromem returns results sorted by similarity already; keep the
	// ordering contract explicit.
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

// Count returns the number of stored records.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Dimension returns the store's vector dimension.
func (s *ChromemStore) Dimension() int {
	return s.config.Dimension
}

// Close is a no-op; chromem persists on write.
func (s *ChromemStore) Close() error {
	return nil
}

func (s *ChromemStore) toRecord(doc chromem.Document) (Record, error) {
	var payload Payload
	if raw, ok := doc.Metadata["payload"]; ok {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return Record{}, fmt.Errorf("unmarshaling payload for %s: %w", doc.ID, err)
		}
	}
	return Record{ID: doc.ID, Vector: doc.Embedding, Payload: payload}, nil
}
