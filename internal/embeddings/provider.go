package embeddings

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDimensionMismatch indicates vectors of disagreeing dimension.
	// This is fatal to the current call: it indicates a misconfiguration.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is the interface for embedding providers.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns one unit-norm vector per input text.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "deterministic", "fastembed" or "tei".
	Provider string
	// Model is the embedding model name (fastembed, tei).
	Model string
	// BaseURL is the TEI URL (only used for the TEI provider).
	BaseURL string
	// CacheDir is the model cache directory (only used for FastEmbed).
	CacheDir string
	// Dimension is the vector dimension for the deterministic provider.
	Dimension int
}

// NewProvider creates an embedding provider based on the configuration.
//
// When a model-backed provider fails to initialize, NewProvider falls back
// to the deterministic provider so the engine can run without a model. The
// fallback is logged; callers can detect it via Deterministic().
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dim := cfg.Dimension
	if dim == 0 {
		dim = DefaultDimension
	}

	switch cfg.Provider {
	case "deterministic", "":
		return NewDeterministicProvider(dim), nil
	case "fastembed":
		p, err := NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
		if err != nil {
			logger.Warn("fastembed unavailable, falling back to deterministic embeddings",
				zap.String("model", cfg.Model),
				zap.Error(err),
			)
			return NewDeterministicProvider(dim), nil
		}
		return p, nil
	case "tei":
		p, err := NewTEIProvider(TEIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}, logger)
		if err != nil {
			logger.Warn("tei unavailable, falling back to deterministic embeddings",
				zap.String("base_url", cfg.BaseURL),
				zap.Error(err),
			)
			return NewDeterministicProvider(dim), nil
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// Deterministic reports whether the provider produces hash-seeded vectors
// rather than model embeddings. The orchestrator surfaces this in the
// bundle's query info.
func Deterministic(p Provider) bool {
	_, ok := p.(*DeterministicProvider)
	return ok
}
