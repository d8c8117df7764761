package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryd/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10, cfg.STM.Max)
	assert.Equal(t, 3600, cfg.STM.TTLSeconds)
	assert.Equal(t, 100, cfg.MTM.Max)
	assert.Equal(t, 5, cfg.SummarizeEvery)
	assert.Equal(t, 384, cfg.Embedding.Dim)
	assert.Equal(t, "deterministic", cfg.Embedding.Provider)
	assert.Equal(t, "memory", cfg.VectorStore.Backend)
	assert.Equal(t, "memory", cfg.GraphStore.Backend)
	assert.Equal(t, 2000, cfg.Compressor.MaxTokens)
	assert.Equal(t, "score_based", cfg.Compressor.Strategy)
	assert.InDelta(t, 0.7, cfg.Compressor.MMRLambda, 1e-9)
	assert.InDelta(t, 0.5, cfg.Aggregator.Weights.STM, 1e-9)
	assert.InDelta(t, 0.3, cfg.Aggregator.Weights.MTM, 1e-9)
	assert.InDelta(t, 0.2, cfg.Aggregator.Weights.LTM, 1e-9)
	assert.InDelta(t, 0.85, cfg.Aggregator.DedupThreshold, 1e-9)
	assert.Equal(t, "vector_first", cfg.LTM.Strategy)
	assert.Equal(t, 1, cfg.LTM.ExpandDepth)
	assert.Equal(t, 2000, cfg.Orchestrator.TierDeadlineMS)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
stm:
  max: 4
  ttl_seconds: 60
compressor:
  strategy: mmr
  max_tokens: 800
ltm:
  strategy: parallel
log:
  level: debug
  format: console
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.STM.Max)
	assert.Equal(t, 60, cfg.STM.TTLSeconds)
	assert.Equal(t, "mmr", cfg.Compressor.Strategy)
	assert.Equal(t, 800, cfg.Compressor.MaxTokens)
	assert.Equal(t, "parallel", cfg.LTM.Strategy)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Unset keys keep their defaults.
	assert.Equal(t, 100, cfg.MTM.Max)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stm:\n  max: 4\n"), 0o600))

	t.Setenv("MEMORYD_STM_MAX", "7")
	t.Setenv("MEMORYD_VECTORSTORE_BACKEND", "chromem")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.STM.Max)
	assert.Equal(t, "chromem", cfg.VectorStore.Backend)
}

func TestLoad_EnvTopLevelKey(t *testing.T) {
	t.Setenv("MEMORYD_SUMMARIZE_EVERY", "9")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.SummarizeEvery)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.STM.Max)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad strategy", "compressor:\n  strategy: gzip\n"},
		{"bad ltm strategy", "ltm:\n  strategy: psychic\n"},
		{"negative stm max", "stm:\n  max: -1\n"},
		{"bad backend", "vectorstore:\n  backend: excel\n"},
		{"alpha out of range", "aggregator:\n  alpha: 1.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))
			_, err := config.Load(path)
			assert.Error(t, err)
		})
	}
}
