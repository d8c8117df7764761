package graphstore

import "time"

// Label is a node type from the documented vocabulary.
type Label string

// Node labels. Unknown categories map to LabelFact.
const (
	LabelFunction Label = "Function"
	LabelModule   Label = "Module"
	LabelCommit   Label = "Commit"
	LabelBug      Label = "Bug"
	LabelConcept  Label = "Concept"
	LabelDoc      Label = "Doc"
	LabelSummary  Label = "Summary"
	LabelTopic    Label = "Topic"
	LabelFact     Label = "Fact"
)

// EdgeType is a directed relation type from the documented vocabulary.
type EdgeType string

// Edge types.
const (
	EdgeCalls     EdgeType = "CALLS"
	EdgeBelongsTo EdgeType = "BELONGS_TO"
	EdgeModifies  EdgeType = "MODIFIES"
	EdgeFixes     EdgeType = "FIXES"
	EdgeAffects   EdgeType = "AFFECTS"
	EdgeDependsOn EdgeType = "DEPENDS_ON"
	EdgeRelatedTo EdgeType = "RELATED_TO"
	EdgeMentions  EdgeType = "MENTIONS"
)

// Direction selects which edges a traversal follows.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// Properties is a free-form property bag attached to nodes and edges.
type Properties map[string]any

// Node is a typed graph entity.
type Node struct {
	ID         string     `json:"id"`
	Label      Label      `json:"label"`
	Properties Properties `json:"properties,omitempty"`

	// VectorID cross-links to the paired vector record; empty when the
	// node has no semantic content of its own.
	VectorID string `json:"vector_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Edge is a directed typed relation between two nodes.
type Edge struct {
	ID         string     `json:"id"`
	From       string     `json:"from"`
	To         string     `json:"to"`
	Type       EdgeType   `json:"type"`
	Properties Properties `json:"properties,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NeighborOptions configures a Neighbors traversal.
type NeighborOptions struct {
	// EdgeTypes restricts the traversal to the given types; empty means all.
	EdgeTypes []EdgeType

	// Direction selects edge orientation. Defaults to DirectionBoth.
	Direction Direction

	// MaxDepth bounds the traversal. Defaults to 1.
	MaxDepth int

	// Limit caps the number of returned neighbors; 0 means no cap.
	Limit int
}

// Neighbor is a node reached by a traversal, with the path that reached it.
type Neighbor struct {
	Node       Node
	PathLength int
	Path       []string // node ids from (and including) the start node
}

// QueryTemplate names a parameterized structural query.
type QueryTemplate string

const (
	// QueryNodesByLabel returns nodes with the given label.
	QueryNodesByLabel QueryTemplate = "nodes_by_label"

	// QueryNodesByProperty returns nodes whose property Key equals Value.
	QueryNodesByProperty QueryTemplate = "nodes_by_property"

	// QueryTraverse returns nodes reachable from StartID within MaxDepth.
	QueryTraverse QueryTemplate = "traverse"

	// QueryShortestPath returns a single row holding the shortest
	// undirected path between StartID and EndID, if one exists.
	QueryShortestPath QueryTemplate = "shortest_path"

	// QueryTextContains scans string properties for a substring,
	// case-insensitively. Used by the graph-first retrieval path.
	QueryTextContains QueryTemplate = "text_contains"
)

// QueryParams parameterizes a QueryTemplate.
type QueryParams struct {
	Label     Label
	Key       string
	Value     any
	StartID   string
	EndID     string
	EdgeTypes []EdgeType
	MaxDepth  int
	Text      string
	Limit     int
}

// Row is a single structural query result.
type Row struct {
	Node       Node
	PathLength int
	Path       []string
}
