package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// TEIConfig holds configuration for the TEI embedding provider.
type TEIConfig struct {
	// BaseURL is the base URL for the TEI endpoint.
	BaseURL string

	// Model is the embedding model served by the endpoint. Only used to
	// derive the expected dimension; the endpoint decides the model.
	Model string

	// Timeout bounds a single HTTP request. Defaults to 30s.
	Timeout time.Duration
}

// Validate validates the configuration.
func (c TEIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return nil
}

// TEIProvider generates embeddings via a Text Embeddings Inference HTTP
// endpoint.
type TEIProvider struct {
	config    TEIConfig
	client    *http.Client
	dimension int
	logger    *zap.Logger
}

// NewTEIProvider creates a new TEI provider with the given configuration.
func NewTEIProvider(cfg TEIConfig, logger *zap.Logger) (*TEIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &TEIProvider{
		config:    cfg,
		client:    &http.Client{Timeout: timeout},
		dimension: dimensionForModel(cfg.Model),
		logger:    logger,
	}, nil
}

// teiRequest is the request body for the TEI embed endpoint.
type teiRequest struct {
	Inputs   any  `json:"inputs"`
	Truncate bool `json:"truncate"`
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *TEIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors, err := p.post(ctx, teiRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	for i := range vectors {
		if len(vectors[i]) != p.dimension {
			return nil, fmt.Errorf("%w: endpoint returned dimension %d, expected %d",
				ErrDimensionMismatch, len(vectors[i]), p.dimension)
		}
		Normalize(vectors[i])
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *TEIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimension returns the embedding dimension for the configured model.
func (p *TEIProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op for TEI since it uses HTTP.
func (p *TEIProvider) Close() error {
	return nil
}

func (p *TEIProvider) post(ctx context.Context, req teiRequest) ([][]float32, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return vectors, nil
}

// dimensionForModel returns the embedding dimension for a model name.
// Falls back to DefaultDimension if the model is unknown.
func dimensionForModel(model string) int {
	if dim, ok := knownModelDimensions[model]; ok {
		return dim
	}
	return DefaultDimension
}

var knownModelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-large-en-v1.5":                 1024,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
}
