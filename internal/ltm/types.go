package ltm

import (
	"errors"
	"strings"
	"time"

	"github.com/fyrsmithlabs/memoryd/internal/graphstore"
	"github.com/fyrsmithlabs/memoryd/internal/vectorstore"
)

// Sentinel errors.
var (
	// ErrBackendUnavailable is returned when a strategy depends on a
	// backend that is down or unconfigured.
	ErrBackendUnavailable = errors.New("ltm backend unavailable")

	// ErrInvalidArgument indicates a bad call argument.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownStrategy is returned for an unrecognized query strategy.
	ErrUnknownStrategy = errors.New("unknown query strategy")
)

// Strategy selects how a query combines the two backends.
type Strategy string

const (
	StrategyVectorOnly  Strategy = "vector_only"
	StrategyGraphOnly   Strategy = "graph_only"
	StrategyVectorFirst Strategy = "vector_first"
	StrategyGraphFirst  Strategy = "graph_first"
	StrategyParallel    Strategy = "parallel"
)

// GraphLink declares a relation the inserted entity has to another node.
type GraphLink struct {
	Type       graphstore.EdgeType
	Target     string
	Properties graphstore.Properties
}

// Metadata describes an ingested entity.
type Metadata struct {
	Category   string
	Tags       []string
	FilePath   string
	LineStart  int
	LineEnd    int
	Importance float64
	ProjectID  string
	GraphLinks []GraphLink
}

// AddResult carries the bidirectional id pair of an insertion.
type AddResult struct {
	VectorID      string
	GraphEntityID string
}

// Item is a single retrieval result.
type Item struct {
	VectorID      string
	GraphEntityID string
	Content       string
	Score         float32
	PathLength    int
	Importance    float64
	Source        string // "vector", "graph" or "both"
	CreatedAt     time.Time
	Payload       vectorstore.Payload
}

// Result is the outcome of a Query.
type Result struct {
	Items []Item

	// Degraded is set when a backend was down and the strategy fell
	// back to the other side.
	Degraded bool
}

// QueryInput parameterizes a Query call.
type QueryInput struct {
	// Text is used for graph text scans and, when Embedding is absent,
	// embedded for the vector side.
	Text string

	Embedding []float32
	TopK      int

	// Strategy overrides the configured default when non-empty.
	Strategy Strategy

	// Filter restricts vector matches by payload.
	Filter vectorstore.Filter
}

// defaultCategoryLabels maps ingestion categories to node labels.
var defaultCategoryLabels = map[string]graphstore.Label{
	"function":      graphstore.LabelFunction,
	"module":        graphstore.LabelModule,
	"commit_log":    graphstore.LabelCommit,
	"bug":           graphstore.LabelBug,
	"concept":       graphstore.LabelConcept,
	"documentation": graphstore.LabelDoc,
	"guideline":     graphstore.LabelDoc,
	"architecture":  graphstore.LabelConcept,
}

// placeholderPrefixes infer the label of a link target that does not
// exist yet from its id prefix.
var placeholderPrefixes = []struct {
	prefix string
	label  graphstore.Label
}{
	{"mod_", graphstore.LabelModule},
	{"fn_", graphstore.LabelFunction},
	{"func_", graphstore.LabelFunction},
	{"commit_", graphstore.LabelCommit},
	{"bug_", graphstore.LabelBug},
	{"doc_", graphstore.LabelDoc},
}

// inferPlaceholder derives the label and display name for an absent
// link target.
func inferPlaceholder(targetID string) (graphstore.Label, string) {
	for _, p := range placeholderPrefixes {
		if strings.HasPrefix(targetID, p.prefix) {
			return p.label, strings.TrimPrefix(targetID, p.prefix)
		}
	}
	return graphstore.LabelFact, targetID
}
