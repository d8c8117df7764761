package vectorstore

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for vector store operations.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDimensionMismatch is returned when a vector's dimension disagrees
	// with the store's configured dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidArgument indicates a bad call argument (empty id, nil vector).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrBackendUnavailable indicates the backing service cannot be reached.
	ErrBackendUnavailable = errors.New("vector backend unavailable")
)

// Payload carries the content and metadata stored alongside a vector.
type Payload struct {
	// Content is the original text. Immutable once stored.
	Content string `json:"content"`

	// Category drives the graph label vocabulary in the hybrid tier.
	Category string `json:"category,omitempty"`

	// Tags are free-form labels for filtering.
	Tags []string `json:"tags,omitempty"`

	// ProjectID scopes the record to a project.
	ProjectID string `json:"project_id,omitempty"`

	// FilePath, LineStart and LineEnd locate the content in a source tree.
	FilePath  string `json:"file_path,omitempty"`
	LineStart int    `json:"line_start,omitempty"`
	LineEnd   int    `json:"line_end,omitempty"`

	// Importance in [0, 1]; used as the LTM base score during aggregation.
	Importance float64 `json:"importance,omitempty"`

	// GraphEntityID back-links to the graph node paired with this record.
	GraphEntityID string `json:"graph_entity_id,omitempty"`

	// CreatedAt is the insertion timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// Record is a stored vector with its payload.
type Record struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Match is a single search result.
type Match struct {
	ID      string
	Score   float32 // cosine similarity in [-1, 1], higher is better
	Vector  []float32
	Payload Payload
}

// Filter is a predicate over record payloads applied during search.
// A nil Filter matches everything.
type Filter func(Payload) bool

// ByCategory matches records with the given category.
func ByCategory(category string) Filter {
	return func(p Payload) bool { return p.Category == category }
}

// ByProject matches records with the given project id.
func ByProject(projectID string) Filter {
	return func(p Payload) bool { return p.ProjectID == projectID }
}

// And combines filters conjunctively.
func And(filters ...Filter) Filter {
	return func(p Payload) bool {
		for _, f := range filters {
			if f != nil && !f(p) {
				return false
			}
		}
		return true
	}
}

// Store is the interface for vector storage operations.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Add inserts a record. Fails with ErrDimensionMismatch when the
	// vector's dimension disagrees with the store's dimension.
	Add(ctx context.Context, rec Record) error

	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// Delete removes the record with the given id. Deleting an absent id
	// is not an error.
	Delete(ctx context.Context, id string) error

	// Search returns up to topK records ordered by descending cosine
	// similarity with the query vector. filter restricts candidates by
	// payload; nil matches everything.
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Dimension returns the store's vector dimension.
	Dimension() int

	// Close releases backend resources.
	Close() error
}
