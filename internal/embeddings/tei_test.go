package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTEITestServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs []string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vectors := make([][]float32, len(req.Inputs))
		for i := range vectors {
			v := make([]float32, dim)
			v[i%dim] = 1
			vectors[i] = v
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	}))
}

func TestTEIProvider_EmbedDocuments(t *testing.T) {
	srv := newTEITestServer(t, 384)
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	defer p.Close()

	vectors, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 384)
	assert.InDelta(t, 1.0, float64(Norm(vectors[0])), 1e-5)
}

func TestTEIProvider_DimensionMismatch(t *testing.T) {
	srv := newTEITestServer(t, 12)
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "q")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestTEIProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "q")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestTEIProvider_RequiresBaseURL(t *testing.T) {
	_, err := NewTEIProvider(TEIConfig{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTEIProvider_EmptyInput(t *testing.T) {
	p, err := NewTEIProvider(TEIConfig{BaseURL: "http://localhost:1"}, nil)
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}
