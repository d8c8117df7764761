package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
)

// MemoryStore is an in-process Store backed by a linear scan.
//
// A linear scan is adequate up to tens of thousands of records; beyond
// that, use the chromem or qdrant backends.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]Record
	order     []string // insertion order, for deterministic tie-breaking
	dimension int
	logger    *zap.Logger
}

// NewMemoryStore creates an in-memory store with the given dimension.
func NewMemoryStore(dimension int, logger *zap.Logger) (*MemoryStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		records:   make(map[string]Record),
		dimension: dimension,
		logger:    logger,
	}, nil
}

// Add inserts a record.
func (s *MemoryStore) Add(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: record id is empty", ErrInvalidArgument)
	}
	if len(rec.Vector) != s.dimension {
		return fmt.Errorf("%w: got %d, store dimension %d", ErrDimensionMismatch, len(rec.Vector), s.dimension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec
	return nil
}

// Get returns the record with the given id.
func (s *MemoryStore) Get(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// Delete removes the record with the given id.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return nil
	}
	delete(s.records, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Search scans all records and returns the topK by cosine similarity.
// Ties are broken by later insertion first, so results are stable and
// monotonic in topK.
func (s *MemoryStore) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, store dimension %d", ErrDimensionMismatch, len(vector), s.dimension)
	}
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		match Match
		pos   int
	}
	candidates := make([]scored, 0, len(s.order))
	for pos, id := range s.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := s.records[id]
		if filter != nil && !filter(rec.Payload) {
			continue
		}
		sim, err := embeddings.Similarity(vector, rec.Vector)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, scored{
			match: Match{ID: rec.ID, Score: sim, Vector: rec.Vector, Payload: rec.Payload},
			pos:   pos,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].match.Score != candidates[j].match.Score {
			return candidates[i].match.Score > candidates[j].match.Score
		}
		return candidates[i].pos > candidates[j].pos
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	matches := make([]Match, len(candidates))
	for i, c := range candidates {
		matches[i] = c.match
	}
	return matches, nil
}

// Count returns the number of stored records.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Dimension returns the store's vector dimension.
func (s *MemoryStore) Dimension() int {
	return s.dimension
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
