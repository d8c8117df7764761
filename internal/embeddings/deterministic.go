package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
)

// DeterministicProvider generates hash-seeded pseudo-random unit vectors.
//
// The same text always yields the same vector across runs and processes.
// It never fails and needs no model, which makes it the fallback for every
// other provider and the default for tests.
type DeterministicProvider struct {
	dimension int
}

// NewDeterministicProvider creates a deterministic provider with the given
// dimension. A non-positive dimension falls back to DefaultDimension.
func NewDeterministicProvider(dimension int) *DeterministicProvider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &DeterministicProvider{dimension: dimension}
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *DeterministicProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.embed(t)
	}
	return out, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *DeterministicProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.embed(text), nil
}

// Dimension returns the configured embedding dimension.
func (p *DeterministicProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op.
func (p *DeterministicProvider) Close() error {
	return nil
}

// embed derives a unit-norm vector from an FNV-1a seed over the text.
func (p *DeterministicProvider) embed(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	v := make([]float32, p.dimension)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return Normalize(v)
}
