package vectorstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryd/internal/vectorstore"
)

func newTestChromemStore(t *testing.T) *vectorstore.ChromemStore {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Dimension: 4,
	}, nil)
	require.NoError(t, err)
	return store
}

func TestChromemStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t)

	rec := vectorstore.Record{
		ID:     "doc-1",
		Vector: axis(4, 1),
		Payload: vectorstore.Payload{
			Content:       "fn foo",
			Category:      "function",
			GraphEntityID: "ent-1",
		},
	}
	require.NoError(t, store.Add(ctx, rec))

	got, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "fn foo", got.Payload.Content)
	assert.Equal(t, "ent-1", got.Payload.GraphEntityID)
	assert.Equal(t, rec.Vector, got.Vector)
}

func TestChromemStore_SearchRanksByCosine(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Add(ctx, vectorstore.Record{
			ID:      string(rune('a' + i)),
			Vector:  axis(4, i),
			Payload: vectorstore.Payload{Content: "item"},
		}))
	}

	matches, err := store.Search(ctx, axis(4, 1), 2, nil)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "b", matches[0].ID)
	assert.InDelta(t, 1.0, float64(matches[0].Score), 1e-5)
}

func TestChromemStore_SearchEmpty(t *testing.T) {
	store := newTestChromemStore(t)
	matches, err := store.Search(context.Background(), axis(4, 0), 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestChromemStore_DimensionMismatch(t *testing.T) {
	store := newTestChromemStore(t)
	err := store.Add(context.Background(), vectorstore.Record{ID: "x", Vector: axis(3, 0)})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestChromemStore_GetMissing(t *testing.T) {
	store := newTestChromemStore(t)
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, vectorstore.ErrNotFound)
}

func TestChromemStore_FilterByCategory(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t)

	require.NoError(t, store.Add(ctx, vectorstore.Record{
		ID: "f", Vector: axis(4, 0),
		Payload: vectorstore.Payload{Content: "a function", Category: "function"},
	}))
	require.NoError(t, store.Add(ctx, vectorstore.Record{
		ID: "c", Vector: axis(4, 0),
		Payload: vectorstore.Payload{Content: "a commit", Category: "commit_log"},
	}))

	matches, err := store.Search(ctx, axis(4, 0), 10, vectorstore.ByCategory("commit_log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c", matches[0].ID)
}

func TestChromemStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:      dir,
		Dimension: 4,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, vectorstore.Record{
		ID: "persisted", Vector: axis(4, 2),
		Payload: vectorstore.Payload{Content: "keep me"},
	}))
	require.NoError(t, store.Close())

	reopened, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:      dir,
		Dimension: 4,
	}, nil)
	require.NoError(t, err)

	got, err := reopened.Get(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "keep me", got.Payload.Content)
}
