package ltm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
	"github.com/fyrsmithlabs/memoryd/internal/graphstore"
	"github.com/fyrsmithlabs/memoryd/internal/vectorstore"
)

// Config configures the hybrid coordinator.
type Config struct {
	// Strategy is the default query strategy.
	Strategy Strategy

	// ExpandDepth bounds graph expansion for vector-first queries.
	ExpandDepth int

	// CategoryLabels overrides entries of the default category→label
	// mapping. Unknown categories map to Fact.
	CategoryLabels map[string]graphstore.Label
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Strategy == "" {
		c.Strategy = StrategyVectorFirst
	}
	if c.ExpandDepth <= 0 {
		c.ExpandDepth = 1
	}
}

// Hybrid coordinates the vector store and the property graph.
type Hybrid struct {
	provider embeddings.Provider
	vectors  vectorstore.Store
	graph    graphstore.Store // nil when no graph backend is configured
	cfg      Config
	logger   *zap.Logger
}

// NewHybrid creates the coordinator. graph may be nil; graph-dependent
// strategies then fail with ErrBackendUnavailable.
func NewHybrid(provider embeddings.Provider, vectors vectorstore.Store, graph graphstore.Store, cfg Config, logger *zap.Logger) *Hybrid {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hybrid{provider: provider, vectors: vectors, graph: graph, cfg: cfg, logger: logger}
}

// labelFor maps an ingestion category to a node label.
func (h *Hybrid) labelFor(category string) graphstore.Label {
	if label, ok := h.cfg.CategoryLabels[category]; ok {
		return label
	}
	if label, ok := defaultCategoryLabels[category]; ok {
		return label
	}
	return graphstore.LabelFact
}

// Add ingests content with its metadata. The node and vector record are
// created as a pair; on partial failure neither survives. Declared
// graph links are created best-effort afterwards.
func (h *Hybrid) Add(ctx context.Context, content string, meta Metadata) (AddResult, error) {
	if content == "" {
		return AddResult{}, fmt.Errorf("%w: content is empty", ErrInvalidArgument)
	}
	embedding, err := h.provider.EmbedQuery(ctx, content)
	if err != nil {
		return AddResult{}, fmt.Errorf("embed content: %w", err)
	}

	if h.graph == nil {
		return AddResult{}, fmt.Errorf("%w: no graph backend", ErrBackendUnavailable)
	}

	props := graphstore.Properties{
		"content":  content,
		"category": meta.Category,
	}
	if meta.FilePath != "" {
		props["file_path"] = meta.FilePath
	}
	if meta.ProjectID != "" {
		props["project_id"] = meta.ProjectID
	}
	entityID, err := h.graph.UpsertNode(ctx, h.labelFor(meta.Category), "", props)
	if err != nil {
		return AddResult{}, fmt.Errorf("create graph node: %w", err)
	}

	vectorID := uuid.NewString()
	record := vectorstore.Record{
		ID:     vectorID,
		Vector: embedding,
		Payload: vectorstore.Payload{
			Content:       content,
			Category:      meta.Category,
			Tags:          meta.Tags,
			ProjectID:     meta.ProjectID,
			FilePath:      meta.FilePath,
			LineStart:     meta.LineStart,
			LineEnd:       meta.LineEnd,
			Importance:    meta.Importance,
			GraphEntityID: entityID,
			CreatedAt:     time.Now().UTC(),
		},
	}
	if err := h.vectors.Add(ctx, record); err != nil {
		if derr := h.graph.DeleteNode(ctx, entityID); derr != nil {
			h.logger.Error("rollback node delete failed", zap.String("entity", entityID), zap.Error(derr))
		}
		return AddResult{}, fmt.Errorf("insert vector record: %w", err)
	}

	if err := h.graph.SetVectorID(ctx, entityID, vectorID); err != nil {
		if derr := h.vectors.Delete(ctx, vectorID); derr != nil {
			h.logger.Error("rollback vector delete failed", zap.String("vector", vectorID), zap.Error(derr))
		}
		if derr := h.graph.DeleteNode(ctx, entityID); derr != nil {
			h.logger.Error("rollback node delete failed", zap.String("entity", entityID), zap.Error(derr))
		}
		return AddResult{}, fmt.Errorf("set back-link: %w", err)
	}

	for _, link := range meta.GraphLinks {
		if err := h.createLink(ctx, entityID, link); err != nil {
			h.logger.Warn("graph link failed",
				zap.String("entity", entityID),
				zap.String("target", link.Target),
				zap.Error(err))
		}
	}
	return AddResult{VectorID: vectorID, GraphEntityID: entityID}, nil
}

// createLink ensures the target node exists (creating a placeholder
// when absent) and upserts the edge.
func (h *Hybrid) createLink(ctx context.Context, from string, link GraphLink) error {
	if _, err := h.graph.GetNode(ctx, link.Target); err != nil {
		label, name := inferPlaceholder(link.Target)
		if _, uerr := h.graph.UpsertNode(ctx, label, link.Target, graphstore.Properties{
			"name":        name,
			"placeholder": true,
		}); uerr != nil {
			return fmt.Errorf("create placeholder %s: %w", link.Target, uerr)
		}
	}
	if _, err := h.graph.UpsertEdge(ctx, from, link.Target, link.Type, link.Properties); err != nil {
		return fmt.Errorf("create edge: %w", err)
	}
	return nil
}

// Query retrieves long-term items with the given (or configured) strategy.
func (h *Hybrid) Query(ctx context.Context, in QueryInput) (Result, error) {
	if in.TopK <= 0 {
		return Result{}, fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidArgument, in.TopK)
	}
	strategy := in.Strategy
	if strategy == "" {
		strategy = h.cfg.Strategy
	}

	switch strategy {
	case StrategyVectorOnly:
		items, err := h.vectorSearch(ctx, in)
		if err != nil {
			return Result{}, err
		}
		return Result{Items: items}, nil
	case StrategyGraphOnly:
		items, err := h.graphSearch(ctx, in)
		if err != nil {
			return Result{}, err
		}
		return Result{Items: items}, nil
	case StrategyVectorFirst:
		return h.vectorFirst(ctx, in)
	case StrategyGraphFirst:
		return h.graphFirst(ctx, in)
	case StrategyParallel:
		return h.parallel(ctx, in)
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
	}
}

// vectorSearch runs the pure vector side.
func (h *Hybrid) vectorSearch(ctx context.Context, in QueryInput) ([]Item, error) {
	embedding := in.Embedding
	if embedding == nil {
		if in.Text == "" {
			return nil, fmt.Errorf("%w: neither embedding nor text given", ErrInvalidArgument)
		}
		vec, err := h.provider.EmbedQuery(ctx, in.Text)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		embedding = vec
	}

	matches, err := h.vectors.Search(ctx, embedding, in.TopK, in.Filter)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", ErrBackendUnavailable, err)
	}
	items := make([]Item, len(matches))
	for i, m := range matches {
		items[i] = Item{
			VectorID:      m.ID,
			GraphEntityID: m.Payload.GraphEntityID,
			Content:       m.Payload.Content,
			Score:         m.Score,
			Importance:    m.Payload.Importance,
			Source:        "vector",
			CreatedAt:     m.Payload.CreatedAt,
			Payload:       m.Payload,
		}
	}
	return items, nil
}

// graphSearch runs the pure graph side: a case-insensitive property
// text scan.
func (h *Hybrid) graphSearch(ctx context.Context, in QueryInput) ([]Item, error) {
	if h.graph == nil {
		return nil, fmt.Errorf("%w: no graph backend", ErrBackendUnavailable)
	}
	if in.Text == "" {
		return nil, fmt.Errorf("%w: graph search needs query text", ErrInvalidArgument)
	}
	rows, err := h.graph.Query(ctx, graphstore.QueryTextContains, graphstore.QueryParams{
		Text:  in.Text,
		Limit: in.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: graph search: %v", ErrBackendUnavailable, err)
	}
	items := make([]Item, len(rows))
	for i, row := range rows {
		items[i] = nodeItem(row.Node, row.PathLength)
	}
	return items, nil
}

// vectorFirst searches vectors, then expands linked entities through
// the graph. A down graph degrades to vector-only.
func (h *Hybrid) vectorFirst(ctx context.Context, in QueryInput) (Result, error) {
	items, err := h.vectorSearch(ctx, in)
	if err != nil {
		return Result{}, err
	}
	if h.graph == nil {
		return Result{Items: items, Degraded: true}, nil
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if item.GraphEntityID != "" {
			seen[item.GraphEntityID] = true
		}
	}
	merged := items
	degraded := false
	for _, item := range items {
		if item.GraphEntityID == "" {
			continue
		}
		neighbors, err := h.graph.Neighbors(ctx, item.GraphEntityID, graphstore.NeighborOptions{
			MaxDepth: h.cfg.ExpandDepth,
		})
		if err != nil {
			h.logger.Warn("graph expansion failed", zap.String("entity", item.GraphEntityID), zap.Error(err))
			degraded = true
			break
		}
		for _, n := range neighbors {
			if seen[n.Node.ID] {
				continue
			}
			seen[n.Node.ID] = true
			merged = append(merged, nodeItem(n.Node, n.PathLength))
		}
	}
	sortItems(merged)
	return Result{Items: merged, Degraded: degraded}, nil
}

// graphFirst scans the graph, then enriches matched nodes from their
// vector records. A down vector store degrades to graph-only content.
func (h *Hybrid) graphFirst(ctx context.Context, in QueryInput) (Result, error) {
	items, err := h.graphSearch(ctx, in)
	if err != nil {
		return Result{}, err
	}
	degraded := false
	for i, item := range items {
		if item.VectorID == "" {
			continue
		}
		record, err := h.vectors.Get(ctx, item.VectorID)
		if err != nil {
			h.logger.Warn("vector enrichment failed", zap.String("vector", item.VectorID), zap.Error(err))
			degraded = true
			continue
		}
		items[i].Content = record.Payload.Content
		items[i].Importance = record.Payload.Importance
		items[i].Payload = record.Payload
	}
	sortItems(items)
	return Result{Items: items, Degraded: degraded}, nil
}

// parallel runs both sides concurrently and joins results by entity id.
func (h *Hybrid) parallel(ctx context.Context, in QueryInput) (Result, error) {
	var vitems, gitems []Item
	var verr, gerr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vitems, verr = h.vectorSearch(gctx, in)
		return nil
	})
	g.Go(func() error {
		gitems, gerr = h.graphSearch(gctx, in)
		return nil
	})
	_ = g.Wait()

	if verr != nil && gerr != nil {
		return Result{}, fmt.Errorf("%w: vector: %v; graph: %v", ErrBackendUnavailable, verr, gerr)
	}

	byEntity := make(map[string]int, len(vitems))
	merged := make([]Item, 0, len(vitems)+len(gitems))
	for _, item := range vitems {
		if item.GraphEntityID != "" {
			byEntity[item.GraphEntityID] = len(merged)
		}
		merged = append(merged, item)
	}
	for _, item := range gitems {
		if idx, ok := byEntity[item.GraphEntityID]; ok {
			merged[idx].Source = "both"
			merged[idx].PathLength = item.PathLength
			continue
		}
		merged = append(merged, item)
	}
	sortItems(merged)
	return Result{Items: merged, Degraded: verr != nil || gerr != nil}, nil
}

// GetRelated returns entities connected to entityID, enriched from
// their vector records where possible.
func (h *Hybrid) GetRelated(ctx context.Context, entityID string, relTypes []graphstore.EdgeType, maxDepth int) ([]Item, error) {
	if h.graph == nil {
		return nil, fmt.Errorf("%w: no graph backend", ErrBackendUnavailable)
	}
	neighbors, err := h.graph.Neighbors(ctx, entityID, graphstore.NeighborOptions{
		EdgeTypes: relTypes,
		MaxDepth:  maxDepth,
	})
	if err != nil {
		return nil, err
	}
	items := make([]Item, len(neighbors))
	for i, n := range neighbors {
		items[i] = nodeItem(n.Node, n.PathLength)
		if n.Node.VectorID == "" {
			continue
		}
		if record, err := h.vectors.Get(ctx, n.Node.VectorID); err == nil {
			items[i].Content = record.Payload.Content
			items[i].Importance = record.Payload.Importance
			items[i].Payload = record.Payload
		}
	}
	return items, nil
}

// FindPath returns the node ids of the shortest undirected path between
// two entities, or nil when none exists within maxLen.
func (h *Hybrid) FindPath(ctx context.Context, start, end string, maxLen int) ([]string, error) {
	if h.graph == nil {
		return nil, fmt.Errorf("%w: no graph backend", ErrBackendUnavailable)
	}
	rows, err := h.graph.Query(ctx, graphstore.QueryShortestPath, graphstore.QueryParams{
		StartID:  start,
		EndID:    end,
		MaxDepth: maxLen,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].Path, nil
}

// nodeItem converts a graph node into a retrieval item.
func nodeItem(node graphstore.Node, pathLength int) Item {
	item := Item{
		VectorID:      node.VectorID,
		GraphEntityID: node.ID,
		PathLength:    pathLength,
		Source:        "graph",
		CreatedAt:     node.CreatedAt,
	}
	if content, ok := node.Properties["content"].(string); ok {
		item.Content = content
	} else if name, ok := node.Properties["name"].(string); ok {
		item.Content = name
	}
	return item
}

// sortItems orders by vector score descending, then path length
// ascending, then recency descending.
func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if items[i].PathLength != items[j].PathLength {
			return items[i].PathLength < items[j].PathLength
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
