package graphstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type tripleKey struct {
	from, to string
	typ      EdgeType
}

// MemoryGraph is an in-process Store backed by adjacency maps.
type MemoryGraph struct {
	mu       sync.RWMutex
	nodes    map[string]Node
	edges    map[string]Edge
	out      map[string][]string // node id -> outgoing edge ids
	in       map[string][]string // node id -> incoming edge ids
	byTriple map[tripleKey]string
	logger   *zap.Logger
}

// NewMemoryGraph creates an empty in-memory graph.
func NewMemoryGraph(logger *zap.Logger) *MemoryGraph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryGraph{
		nodes:    make(map[string]Node),
		edges:    make(map[string]Edge),
		out:      make(map[string][]string),
		in:       make(map[string][]string),
		byTriple: make(map[tripleKey]string),
		logger:   logger,
	}
}

// UpsertNode creates or updates a node.
func (g *MemoryGraph) UpsertNode(ctx context.Context, label Label, id string, props Properties) (string, error) {
	if label == "" {
		return "", fmt.Errorf("%w: label is empty", ErrInvalidArgument)
	}
	if id == "" {
		id = uuid.NewString()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.nodes[id]; ok {
		if existing.Label != label {
			return "", fmt.Errorf("%w: node %s has label %s, cannot relabel to %s",
				ErrConstraintViolation, id, existing.Label, label)
		}
		if existing.Properties == nil {
			existing.Properties = make(Properties)
		}
		for k, v := range props {
			existing.Properties[k] = v
		}
		g.nodes[id] = existing
		return id, nil
	}

	g.nodes[id] = Node{
		ID:         id,
		Label:      label,
		Properties: cloneProps(props),
		CreatedAt:  time.Now().UTC(),
	}
	return id, nil
}

// UpsertEdge creates or updates the (from, to, type) edge.
func (g *MemoryGraph) UpsertEdge(ctx context.Context, from, to string, edgeType EdgeType, props Properties) (string, error) {
	if edgeType == "" {
		return "", fmt.Errorf("%w: edge type is empty", ErrInvalidArgument)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[from]; !ok {
		return "", fmt.Errorf("%w: from node %s", ErrEndpointMissing, from)
	}
	if _, ok := g.nodes[to]; !ok {
		return "", fmt.Errorf("%w: to node %s", ErrEndpointMissing, to)
	}

	key := tripleKey{from: from, to: to, typ: edgeType}
	if id, ok := g.byTriple[key]; ok {
		edge := g.edges[id]
		if edge.Properties == nil {
			edge.Properties = make(Properties)
		}
		for k, v := range props {
			edge.Properties[k] = v
		}
		g.edges[id] = edge
		return id, nil
	}

	id := uuid.NewString()
	g.edges[id] = Edge{
		ID:         id,
		From:       from,
		To:         to,
		Type:       edgeType,
		Properties: cloneProps(props),
		CreatedAt:  time.Now().UTC(),
	}
	g.byTriple[key] = id
	g.out[from] = append(g.out[from], id)
	g.in[to] = append(g.in[to], id)
	return id, nil
}

// GetNode returns the node with the given id.
func (g *MemoryGraph) GetNode(ctx context.Context, id string) (Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	return copyNode(node), nil
}

// DeleteNode removes a node and its incident edges.
func (g *MemoryGraph) DeleteNode(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return nil
	}
	for _, edgeID := range append(append([]string{}, g.out[id]...), g.in[id]...) {
		edge, ok := g.edges[edgeID]
		if !ok {
			continue
		}
		delete(g.byTriple, tripleKey{from: edge.From, to: edge.To, typ: edge.Type})
		delete(g.edges, edgeID)
		g.out[edge.From] = removeString(g.out[edge.From], edgeID)
		g.in[edge.To] = removeString(g.in[edge.To], edgeID)
	}
	delete(g.out, id)
	delete(g.in, id)
	delete(g.nodes, id)
	return nil
}

// SetVectorID sets the vector cross-link on a node.
func (g *MemoryGraph) SetVectorID(ctx context.Context, id, vectorID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	node.VectorID = vectorID
	g.nodes[id] = node
	return nil
}

// Neighbors returns nodes reachable from id, breadth-first.
func (g *MemoryGraph) Neighbors(ctx context.Context, id string, opts NeighborOptions) ([]Neighbor, error) {
	applyNeighborDefaults(&opts)

	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, id)
	}

	type frame struct {
		id   string
		path []string
	}
	visited := map[string]bool{id: true}
	queue := []frame{{id: id, path: []string{id}}}
	var result []Neighbor

	for depth := 1; depth <= opts.MaxDepth && len(queue) > 0; depth++ {
		var next []frame
		for _, f := range queue {
			for _, nid := range g.adjacent(f.id, opts) {
				if visited[nid] {
					continue
				}
				visited[nid] = true
				path := append(append([]string{}, f.path...), nid)
				result = append(result, Neighbor{
					Node:       copyNode(g.nodes[nid]),
					PathLength: depth,
					Path:       path,
				})
				if opts.Limit > 0 && len(result) >= opts.Limit {
					return result, nil
				}
				next = append(next, frame{id: nid, path: path})
			}
		}
		queue = next
	}
	return result, nil
}

// adjacent returns ids adjacent to id under opts. Caller holds the lock.
func (g *MemoryGraph) adjacent(id string, opts NeighborOptions) []string {
	var ids []string
	if opts.Direction == DirectionOut || opts.Direction == DirectionBoth {
		for _, eid := range g.out[id] {
			edge := g.edges[eid]
			if edgeTypeAllowed(edge.Type, opts.EdgeTypes) {
				ids = append(ids, edge.To)
			}
		}
	}
	if opts.Direction == DirectionIn || opts.Direction == DirectionBoth {
		for _, eid := range g.in[id] {
			edge := g.edges[eid]
			if edgeTypeAllowed(edge.Type, opts.EdgeTypes) {
				ids = append(ids, edge.From)
			}
		}
	}
	return ids
}

// Query executes a parameterized structural query.
func (g *MemoryGraph) Query(ctx context.Context, template QueryTemplate, params QueryParams) ([]Row, error) {
	switch template {
	case QueryNodesByLabel:
		return g.queryByPredicate(params.Limit, func(n Node) bool {
			return n.Label == params.Label
		})
	case QueryNodesByProperty:
		want := fmt.Sprint(params.Value)
		return g.queryByPredicate(params.Limit, func(n Node) bool {
			v, ok := n.Properties[params.Key]
			return ok && fmt.Sprint(v) == want
		})
	case QueryTextContains:
		needle := strings.ToLower(params.Text)
		if needle == "" {
			return nil, fmt.Errorf("%w: text is empty", ErrInvalidArgument)
		}
		return g.queryByPredicate(params.Limit, func(n Node) bool {
			return nodeContainsText(n, needle)
		})
	case QueryTraverse:
		neighbors, err := g.Neighbors(ctx, params.StartID, NeighborOptions{
			EdgeTypes: params.EdgeTypes,
			Direction: DirectionBoth,
			MaxDepth:  params.MaxDepth,
			Limit:     params.Limit,
		})
		if err != nil {
			return nil, err
		}
		rows := make([]Row, len(neighbors))
		for i, n := range neighbors {
			rows[i] = Row{Node: n.Node, PathLength: n.PathLength, Path: n.Path}
		}
		return rows, nil
	case QueryShortestPath:
		return g.shortestPath(params.StartID, params.EndID, params.MaxDepth)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, template)
	}
}

func (g *MemoryGraph) queryByPredicate(limit int, pred func(Node) bool) ([]Row, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var rows []Row
	for _, node := range g.nodes {
		if pred(node) {
			rows = append(rows, Row{Node: copyNode(node)})
		}
	}
	// Map iteration is unordered; sort for deterministic output.
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Node.CreatedAt.Equal(rows[j].Node.CreatedAt) {
			return rows[i].Node.CreatedAt.Before(rows[j].Node.CreatedAt)
		}
		return rows[i].Node.ID < rows[j].Node.ID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// shortestPath runs an undirected BFS from start to end.
func (g *MemoryGraph) shortestPath(start, end string, maxLen int) ([]Row, error) {
	if maxLen <= 0 {
		maxLen = 5
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[start]; !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, start)
	}
	if _, ok := g.nodes[end]; !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, end)
	}
	if start == end {
		return []Row{{Node: copyNode(g.nodes[end]), Path: []string{start}}}, nil
	}

	opts := NeighborOptions{Direction: DirectionBoth}
	type frame struct {
		id   string
		path []string
	}
	visited := map[string]bool{start: true}
	queue := []frame{{id: start, path: []string{start}}}

	for depth := 1; depth <= maxLen && len(queue) > 0; depth++ {
		var next []frame
		for _, f := range queue {
			for _, nid := range g.adjacent(f.id, opts) {
				if visited[nid] {
					continue
				}
				visited[nid] = true
				path := append(append([]string{}, f.path...), nid)
				if nid == end {
					return []Row{{Node: copyNode(g.nodes[end]), PathLength: depth, Path: path}}, nil
				}
				next = append(next, frame{id: nid, path: path})
			}
		}
		queue = next
	}
	return nil, nil
}

// Close is a no-op for the in-memory graph.
func (g *MemoryGraph) Close() error {
	return nil
}

func applyNeighborDefaults(opts *NeighborOptions) {
	if opts.Direction == "" {
		opts.Direction = DirectionBoth
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 1
	}
}

func edgeTypeAllowed(t EdgeType, allowed []EdgeType) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}

func nodeContainsText(n Node, needle string) bool {
	for _, v := range n.Properties {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func cloneProps(props Properties) Properties {
	cloned := make(Properties, len(props))
	for k, v := range props {
		cloned[k] = v
	}
	return cloned
}

func copyNode(n Node) Node {
	n.Properties = cloneProps(n.Properties)
	return n
}

func removeString(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
