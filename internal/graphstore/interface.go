package graphstore

import (
	"context"
	"errors"
)

// Sentinel errors for graph store operations.
var (
	// ErrNotFound is returned when a node or edge does not exist.
	ErrNotFound = errors.New("graph entity not found")

	// ErrEndpointMissing is returned when an edge references an absent node.
	ErrEndpointMissing = errors.New("edge endpoint missing")

	// ErrConstraintViolation is returned when an operation would violate a
	// schema constraint, e.g. relabeling an existing node.
	ErrConstraintViolation = errors.New("graph constraint violation")

	// ErrInvalidArgument indicates a bad call argument.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrBackendUnavailable indicates the backing database cannot be reached.
	ErrBackendUnavailable = errors.New("graph backend unavailable")

	// ErrUnknownTemplate is returned for an unrecognized query template.
	ErrUnknownTemplate = errors.New("unknown query template")
)

// Store is the interface for property graph operations.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// UpsertNode creates or updates a node. An empty id generates one.
	// Updating an existing node merges properties; changing its label
	// fails with ErrConstraintViolation. Returns the node id.
	UpsertNode(ctx context.Context, label Label, id string, props Properties) (string, error)

	// UpsertEdge creates or updates the (from, to, type) edge. Fails with
	// ErrEndpointMissing when either node is absent. Returns the edge id.
	UpsertEdge(ctx context.Context, from, to string, edgeType EdgeType, props Properties) (string, error)

	// GetNode returns the node with the given id, or ErrNotFound.
	GetNode(ctx context.Context, id string) (Node, error)

	// DeleteNode removes a node and its incident edges. Deleting an
	// absent id is not an error.
	DeleteNode(ctx context.Context, id string) error

	// SetVectorID sets the vector cross-link on a node.
	SetVectorID(ctx context.Context, id, vectorID string) error

	// Neighbors returns nodes reachable from id under the given options,
	// ordered by ascending path length then discovery order.
	Neighbors(ctx context.Context, id string, opts NeighborOptions) ([]Neighbor, error)

	// Query executes a parameterized structural query.
	Query(ctx context.Context, template QueryTemplate, params QueryParams) ([]Row, error)

	// Close releases backend resources.
	Close() error
}
