// Package config provides configuration loading for memoryd.
//
// Precedence, highest first: environment variables (MEMORYD_ prefix),
// YAML config file, hardcoded defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/memoryd/internal/logging"
)

const envPrefix = "MEMORYD_"

// topLevelKeys are config keys that live outside any section and must
// not be split at their first underscore by the env transformer.
var topLevelKeys = map[string]bool{
	"summarize_every": true,
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is deterministic, fastembed or tei.
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	CacheDir string `koanf:"cache_dir"`
	// Dim is the process-wide embedding dimension.
	Dim int `koanf:"dim"`
}

// VectorStoreConfig selects the vector backend.
type VectorStoreConfig struct {
	// Backend is memory, chromem or qdrant.
	Backend    string `koanf:"backend"`
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	QdrantAddr string `koanf:"qdrant_addr"`
}

// GraphStoreConfig selects the graph backend.
type GraphStoreConfig struct {
	// Backend is memory or sqlite.
	Backend string `koanf:"backend"`
	Path    string `koanf:"path"`
}

// STMConfig configures short-term memory.
type STMConfig struct {
	Max        int `koanf:"max"`
	TTLSeconds int `koanf:"ttl_seconds"`
}

// MTMConfig configures mid-term memory.
type MTMConfig struct {
	Max         int  `koanf:"max"`
	GraphMirror bool `koanf:"graph_mirror"`
}

// AggregatorWeights are the per-tier layer weights.
type AggregatorWeights struct {
	STM float64 `koanf:"stm"`
	MTM float64 `koanf:"mtm"`
	LTM float64 `koanf:"ltm"`
}

// AggregatorConfig configures result aggregation.
type AggregatorConfig struct {
	Weights        AggregatorWeights `koanf:"weights"`
	Alpha          float64           `koanf:"alpha"`
	DedupThreshold float64           `koanf:"dedup_threshold"`
}

// CompressorConfig configures token-budget compression.
type CompressorConfig struct {
	MaxTokens           int     `koanf:"max_tokens"`
	Strategy            string  `koanf:"strategy"`
	MMRLambda           float64 `koanf:"mmr_lambda"`
	PreserveRecentCount int     `koanf:"preserve_recent_count"`
}

// LTMConfig configures the hybrid long-term tier.
type LTMConfig struct {
	Strategy    string `koanf:"strategy"`
	ExpandDepth int    `koanf:"expand_depth"`
}

// OrchestratorConfig configures retrieval coordination.
type OrchestratorConfig struct {
	TierDeadlineMS int `koanf:"tier_deadline_ms"`
}

// SnapshotConfig configures tier persistence.
type SnapshotConfig struct {
	Path string `koanf:"path"`
}

// Config is the full memoryd configuration tree.
type Config struct {
	Log            logging.Config     `koanf:"log"`
	Embedding      EmbeddingConfig    `koanf:"embedding"`
	VectorStore    VectorStoreConfig  `koanf:"vectorstore"`
	GraphStore     GraphStoreConfig   `koanf:"graphstore"`
	STM            STMConfig          `koanf:"stm"`
	MTM            MTMConfig          `koanf:"mtm"`
	SummarizeEvery int                `koanf:"summarize_every"`
	Aggregator     AggregatorConfig   `koanf:"aggregator"`
	Compressor     CompressorConfig   `koanf:"compressor"`
	LTM            LTMConfig          `koanf:"ltm"`
	Orchestrator   OrchestratorConfig `koanf:"orchestrator"`
	Snapshot       SnapshotConfig     `koanf:"snapshot"`
}

// Default returns the built-in defaults.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	cfg.Log.ApplyDefaults()
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "deterministic"
	}
	if cfg.Embedding.Dim == 0 {
		cfg.Embedding.Dim = 384
	}
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = "memory"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "memoryd_ltm"
	}
	if cfg.GraphStore.Backend == "" {
		cfg.GraphStore.Backend = "memory"
	}
	if cfg.STM.Max == 0 {
		cfg.STM.Max = 10
	}
	if cfg.STM.TTLSeconds == 0 {
		cfg.STM.TTLSeconds = 3600
	}
	if cfg.MTM.Max == 0 {
		cfg.MTM.Max = 100
	}
	if cfg.SummarizeEvery == 0 {
		cfg.SummarizeEvery = 5
	}
	if cfg.Aggregator.Weights == (AggregatorWeights{}) {
		cfg.Aggregator.Weights = AggregatorWeights{STM: 0.5, MTM: 0.3, LTM: 0.2}
	}
	if cfg.Aggregator.Alpha == 0 {
		cfg.Aggregator.Alpha = 0.7
	}
	if cfg.Aggregator.DedupThreshold == 0 {
		cfg.Aggregator.DedupThreshold = 0.85
	}
	if cfg.Compressor.MaxTokens == 0 {
		cfg.Compressor.MaxTokens = 2000
	}
	if cfg.Compressor.Strategy == "" {
		cfg.Compressor.Strategy = "score_based"
	}
	if cfg.Compressor.MMRLambda == 0 {
		cfg.Compressor.MMRLambda = 0.7
	}
	if cfg.Compressor.PreserveRecentCount == 0 {
		cfg.Compressor.PreserveRecentCount = 3
	}
	if cfg.LTM.Strategy == "" {
		cfg.LTM.Strategy = "vector_first"
	}
	if cfg.LTM.ExpandDepth == 0 {
		cfg.LTM.ExpandDepth = 1
	}
	if cfg.Orchestrator.TierDeadlineMS == 0 {
		cfg.Orchestrator.TierDeadlineMS = 2000
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	switch c.Embedding.Provider {
	case "deterministic", "fastembed", "tei":
	default:
		return fmt.Errorf("invalid embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dim <= 0 {
		return fmt.Errorf("embedding dim must be positive, got %d", c.Embedding.Dim)
	}
	switch c.VectorStore.Backend {
	case "memory", "chromem", "qdrant":
	default:
		return fmt.Errorf("invalid vectorstore backend %q", c.VectorStore.Backend)
	}
	switch c.GraphStore.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("invalid graphstore backend %q", c.GraphStore.Backend)
	}
	if c.STM.Max <= 0 {
		return fmt.Errorf("stm.max must be positive, got %d", c.STM.Max)
	}
	if c.STM.TTLSeconds < 0 {
		return fmt.Errorf("stm.ttl_seconds must be non-negative, got %d", c.STM.TTLSeconds)
	}
	if c.MTM.Max <= 0 {
		return fmt.Errorf("mtm.max must be positive, got %d", c.MTM.Max)
	}
	if c.SummarizeEvery <= 0 {
		return fmt.Errorf("summarize_every must be positive, got %d", c.SummarizeEvery)
	}
	if c.Aggregator.Alpha < 0 || c.Aggregator.Alpha > 1 {
		return fmt.Errorf("aggregator.alpha must be in [0,1], got %v", c.Aggregator.Alpha)
	}
	if c.Aggregator.DedupThreshold < 0 || c.Aggregator.DedupThreshold > 1 {
		return fmt.Errorf("aggregator.dedup_threshold must be in [0,1], got %v", c.Aggregator.DedupThreshold)
	}
	switch c.Compressor.Strategy {
	case "truncate", "score_based", "mmr":
	default:
		return fmt.Errorf("invalid compressor strategy %q", c.Compressor.Strategy)
	}
	switch c.LTM.Strategy {
	case "vector_only", "graph_only", "vector_first", "graph_first", "parallel":
	default:
		return fmt.Errorf("invalid ltm strategy %q", c.LTM.Strategy)
	}
	if c.Orchestrator.TierDeadlineMS <= 0 {
		return fmt.Errorf("orchestrator.tier_deadline_ms must be positive, got %d", c.Orchestrator.TierDeadlineMS)
	}
	return nil
}

// Load reads configuration from the YAML file at path (skipped when
// empty or absent), then overrides from MEMORYD_* environment
// variables, e.g. MEMORYD_STM_MAX -> stm.max.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if content, err := os.ReadFile(path); err == nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	// MEMORYD_STM_MAX -> stm.max; the first underscore separates the
	// section, the rest stays a field name. Top-level keys map as-is.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		if topLevelKeys[lower] {
			return lower
		}
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
