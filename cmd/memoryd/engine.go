package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/aggregate"
	"github.com/fyrsmithlabs/memoryd/internal/compression"
	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
	"github.com/fyrsmithlabs/memoryd/internal/graphstore"
	"github.com/fyrsmithlabs/memoryd/internal/ltm"
	"github.com/fyrsmithlabs/memoryd/internal/memory"
	"github.com/fyrsmithlabs/memoryd/internal/orchestrator"
	"github.com/fyrsmithlabs/memoryd/internal/preprocess"
	"github.com/fyrsmithlabs/memoryd/internal/vectorstore"
)

// engine bundles the wired components plus their closers.
type engine struct {
	orch     *orchestrator.Orchestrator
	hybrid   *ltm.Hybrid
	provider embeddings.Provider
	vectors  vectorstore.Store
	graph    graphstore.Store
	logger   *zap.Logger
}

// buildEngine wires providers, stores and tiers from config.
func buildEngine(cfg *config.Config, logger *zap.Logger) (*engine, error) {
	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		CacheDir:  cfg.Embedding.CacheDir,
		Dimension: cfg.Embedding.Dim,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	vectors, err := buildVectorStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	graph, err := buildGraphStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	hybrid := ltm.NewHybrid(provider, vectors, graph, ltm.Config{
		Strategy:    ltm.Strategy(cfg.LTM.Strategy),
		ExpandDepth: cfg.LTM.ExpandDepth,
	}, logger)

	stm := memory.NewShortTerm(memory.ShortTermConfig{
		Max: cfg.STM.Max,
		TTL: time.Duration(cfg.STM.TTLSeconds) * time.Second,
	}, logger)

	var mirror graphstore.Store
	if cfg.MTM.GraphMirror {
		mirror = graph
	}
	mtm := memory.NewMidTerm(memory.MidTermConfig{Max: cfg.MTM.Max}, mirror, logger)

	orch := orchestrator.New(
		preprocess.New(provider, logger),
		stm,
		mtm,
		hybrid,
		memory.NewSummarizer(provider, nil, logger),
		aggregate.New(aggregate.Config{
			WeightSTM:      cfg.Aggregator.Weights.STM,
			WeightMTM:      cfg.Aggregator.Weights.MTM,
			WeightLTM:      cfg.Aggregator.Weights.LTM,
			Alpha:          cfg.Aggregator.Alpha,
			DedupThreshold: cfg.Aggregator.DedupThreshold,
		}, logger),
		compression.New(compression.Config{
			MaxTokens:           cfg.Compressor.MaxTokens,
			Strategy:            compression.Strategy(cfg.Compressor.Strategy),
			MMRLambda:           cfg.Compressor.MMRLambda,
			PreserveRecentCount: cfg.Compressor.PreserveRecentCount,
		}, nil, logger),
		orchestrator.Config{
			SummarizeEvery: cfg.SummarizeEvery,
			TierDeadline:   time.Duration(cfg.Orchestrator.TierDeadlineMS) * time.Millisecond,
			EmbeddingDim:   cfg.Embedding.Dim,
		},
		logger,
	)

	return &engine{
		orch:     orch,
		hybrid:   hybrid,
		provider: provider,
		vectors:  vectors,
		graph:    graph,
		logger:   logger,
	}, nil
}

func buildVectorStore(cfg *config.Config, logger *zap.Logger) (vectorstore.Store, error) {
	switch cfg.VectorStore.Backend {
	case "memory":
		return vectorstore.NewMemoryStore(cfg.Embedding.Dim, logger)
	case "chromem":
		return vectorstore.NewChromemStore(vectorstore.ChromemConfig{
			Path:       cfg.VectorStore.Path,
			Collection: cfg.VectorStore.Collection,
			Dimension:  cfg.Embedding.Dim,
		}, logger)
	case "qdrant":
		host, port, err := splitQdrantAddr(cfg.VectorStore.QdrantAddr)
		if err != nil {
			return nil, err
		}
		return vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: cfg.VectorStore.Collection,
			Dimension:  cfg.Embedding.Dim,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown vectorstore backend %q", cfg.VectorStore.Backend)
	}
}

func buildGraphStore(cfg *config.Config, logger *zap.Logger) (graphstore.Store, error) {
	switch cfg.GraphStore.Backend {
	case "memory":
		return graphstore.NewMemoryGraph(logger), nil
	case "sqlite":
		return graphstore.NewSQLiteGraph(graphstore.SQLiteConfig{
			Path: cfg.GraphStore.Path,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown graphstore backend %q", cfg.GraphStore.Backend)
	}
}

func splitQdrantAddr(addr string) (string, int, error) {
	if addr == "" {
		return "localhost", 6334, nil
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, nil
}

// Close releases backend resources.
func (e *engine) Close() {
	if err := e.vectors.Close(); err != nil {
		e.logger.Warn("closing vector store", zap.Error(err))
	}
	if err := e.graph.Close(); err != nil {
		e.logger.Warn("closing graph store", zap.Error(err))
	}
	if err := e.provider.Close(); err != nil {
		e.logger.Warn("closing embedding provider", zap.Error(err))
	}
}
