package graphstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryd/internal/graphstore"
)

func backends(t *testing.T) map[string]graphstore.Store {
	t.Helper()
	sqlite, err := graphstore.NewSQLiteGraph(graphstore.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "graph.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]graphstore.Store{
		"memory": graphstore.NewMemoryGraph(nil),
		"sqlite": sqlite,
	}
}

func TestUpsertNode_GenerateAndMerge(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			id, err := store.UpsertNode(ctx, graphstore.LabelFunction, "", graphstore.Properties{"name": "parse"})
			require.NoError(t, err)
			require.NotEmpty(t, id)

			// Second upsert merges properties.
			_, err = store.UpsertNode(ctx, graphstore.LabelFunction, id, graphstore.Properties{"file": "parser.go"})
			require.NoError(t, err)

			node, err := store.GetNode(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, graphstore.LabelFunction, node.Label)
			assert.Equal(t, "parse", node.Properties["name"])
			assert.Equal(t, "parser.go", node.Properties["file"])
		})
	}
}

func TestUpsertNode_RelabelFails(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			id, err := store.UpsertNode(ctx, graphstore.LabelBug, "bug_1", nil)
			require.NoError(t, err)

			_, err = store.UpsertNode(ctx, graphstore.LabelDoc, id, nil)
			assert.ErrorIs(t, err, graphstore.ErrConstraintViolation)
		})
	}
}

func TestUpsertEdge_MissingEndpoint(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.UpsertNode(ctx, graphstore.LabelModule, "mod_auth", nil)
			require.NoError(t, err)

			_, err = store.UpsertEdge(ctx, "mod_auth", "ghost", graphstore.EdgeDependsOn, nil)
			assert.ErrorIs(t, err, graphstore.ErrEndpointMissing)
		})
	}
}

func TestUpsertEdge_Idempotent(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.UpsertNode(ctx, graphstore.LabelFunction, "fn_a", nil)
			require.NoError(t, err)
			_, err = store.UpsertNode(ctx, graphstore.LabelFunction, "fn_b", nil)
			require.NoError(t, err)

			first, err := store.UpsertEdge(ctx, "fn_a", "fn_b", graphstore.EdgeCalls, nil)
			require.NoError(t, err)
			second, err := store.UpsertEdge(ctx, "fn_a", "fn_b", graphstore.EdgeCalls, graphstore.Properties{"weight": "2"})
			require.NoError(t, err)
			assert.Equal(t, first, second)

			neighbors, err := store.Neighbors(ctx, "fn_a", graphstore.NeighborOptions{})
			require.NoError(t, err)
			require.Len(t, neighbors, 1)
			assert.Equal(t, "fn_b", neighbors[0].Node.ID)
		})
	}
}

func TestDeleteNode_RemovesIncidentEdges(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"a", "b", "c"} {
				_, err := store.UpsertNode(ctx, graphstore.LabelConcept, id, nil)
				require.NoError(t, err)
			}
			_, err := store.UpsertEdge(ctx, "a", "b", graphstore.EdgeRelatedTo, nil)
			require.NoError(t, err)
			_, err = store.UpsertEdge(ctx, "b", "c", graphstore.EdgeRelatedTo, nil)
			require.NoError(t, err)

			require.NoError(t, store.DeleteNode(ctx, "b"))
			require.NoError(t, store.DeleteNode(ctx, "b")) // absent id is fine

			_, err = store.GetNode(ctx, "b")
			assert.ErrorIs(t, err, graphstore.ErrNotFound)

			neighbors, err := store.Neighbors(ctx, "a", graphstore.NeighborOptions{MaxDepth: 3})
			require.NoError(t, err)
			assert.Empty(t, neighbors)
		})
	}
}

func TestSetVectorID(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.UpsertNode(ctx, graphstore.LabelFact, "fact_1", nil)
			require.NoError(t, err)

			require.NoError(t, store.SetVectorID(ctx, "fact_1", "vec-123"))
			node, err := store.GetNode(ctx, "fact_1")
			require.NoError(t, err)
			assert.Equal(t, "vec-123", node.VectorID)

			err = store.SetVectorID(ctx, "missing", "vec-456")
			assert.ErrorIs(t, err, graphstore.ErrNotFound)
		})
	}
}

// chain builds a -> b -> c -> d with CALLS edges.
func chain(t *testing.T, store graphstore.Store) {
	t.Helper()
	ctx := context.Background()
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		_, err := store.UpsertNode(ctx, graphstore.LabelFunction, id, graphstore.Properties{"name": id})
		require.NoError(t, err)
	}
	for i := 0; i+1 < len(ids); i++ {
		_, err := store.UpsertEdge(ctx, ids[i], ids[i+1], graphstore.EdgeCalls, nil)
		require.NoError(t, err)
	}
}

func TestNeighbors_DepthAndDirection(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			chain(t, store)

			// Depth 1, outgoing only.
			out, err := store.Neighbors(ctx, "b", graphstore.NeighborOptions{
				Direction: graphstore.DirectionOut,
			})
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, "c", out[0].Node.ID)
			assert.Equal(t, 1, out[0].PathLength)
			assert.Equal(t, []string{"b", "c"}, out[0].Path)

			// Depth 2, both directions, from b reaches a, c, d.
			both, err := store.Neighbors(ctx, "b", graphstore.NeighborOptions{MaxDepth: 2})
			require.NoError(t, err)
			ids := make([]string, len(both))
			for i, n := range both {
				ids[i] = n.Node.ID
			}
			assert.ElementsMatch(t, []string{"a", "c", "d"}, ids)

			// Ascending path length.
			for i := 1; i < len(both); i++ {
				assert.GreaterOrEqual(t, both[i].PathLength, both[i-1].PathLength)
			}
		})
	}
}

func TestNeighbors_EdgeTypeFilterAndLimit(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"hub", "x", "y", "z"} {
				_, err := store.UpsertNode(ctx, graphstore.LabelConcept, id, nil)
				require.NoError(t, err)
			}
			_, err := store.UpsertEdge(ctx, "hub", "x", graphstore.EdgeCalls, nil)
			require.NoError(t, err)
			_, err = store.UpsertEdge(ctx, "hub", "y", graphstore.EdgeMentions, nil)
			require.NoError(t, err)
			_, err = store.UpsertEdge(ctx, "hub", "z", graphstore.EdgeMentions, nil)
			require.NoError(t, err)

			mentions, err := store.Neighbors(ctx, "hub", graphstore.NeighborOptions{
				EdgeTypes: []graphstore.EdgeType{graphstore.EdgeMentions},
			})
			require.NoError(t, err)
			require.Len(t, mentions, 2)

			capped, err := store.Neighbors(ctx, "hub", graphstore.NeighborOptions{Limit: 1})
			require.NoError(t, err)
			assert.Len(t, capped, 1)
		})
	}
}

func TestNeighbors_MissingStart(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Neighbors(ctx, "nope", graphstore.NeighborOptions{})
			assert.ErrorIs(t, err, graphstore.ErrNotFound)
		})
	}
}

func TestQuery_NodesByLabelAndProperty(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.UpsertNode(ctx, graphstore.LabelBug, "bug_1", graphstore.Properties{"severity": "high"})
			require.NoError(t, err)
			_, err = store.UpsertNode(ctx, graphstore.LabelBug, "bug_2", graphstore.Properties{"severity": "low"})
			require.NoError(t, err)
			_, err = store.UpsertNode(ctx, graphstore.LabelDoc, "doc_1", nil)
			require.NoError(t, err)

			bugs, err := store.Query(ctx, graphstore.QueryNodesByLabel, graphstore.QueryParams{
				Label: graphstore.LabelBug,
			})
			require.NoError(t, err)
			assert.Len(t, bugs, 2)

			high, err := store.Query(ctx, graphstore.QueryNodesByProperty, graphstore.QueryParams{
				Key: "severity", Value: "high",
			})
			require.NoError(t, err)
			require.Len(t, high, 1)
			assert.Equal(t, "bug_1", high[0].Node.ID)
		})
	}
}

func TestQuery_TextContains(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.UpsertNode(ctx, graphstore.LabelDoc, "doc_1",
				graphstore.Properties{"summary": "How the Auth middleware validates tokens"})
			require.NoError(t, err)
			_, err = store.UpsertNode(ctx, graphstore.LabelDoc, "doc_2",
				graphstore.Properties{"summary": "Release checklist"})
			require.NoError(t, err)

			rows, err := store.Query(ctx, graphstore.QueryTextContains, graphstore.QueryParams{
				Text: "auth middleware",
			})
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "doc_1", rows[0].Node.ID)

			_, err = store.Query(ctx, graphstore.QueryTextContains, graphstore.QueryParams{})
			assert.ErrorIs(t, err, graphstore.ErrInvalidArgument)
		})
	}
}

func TestQuery_ShortestPath(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			chain(t, store)

			rows, err := store.Query(ctx, graphstore.QueryShortestPath, graphstore.QueryParams{
				StartID: "a", EndID: "d", MaxDepth: 5,
			})
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, []string{"a", "b", "c", "d"}, rows[0].Path)
			assert.Equal(t, 3, rows[0].PathLength)

			// Unreachable within the cap.
			rows, err = store.Query(ctx, graphstore.QueryShortestPath, graphstore.QueryParams{
				StartID: "a", EndID: "d", MaxDepth: 2,
			})
			require.NoError(t, err)
			assert.Empty(t, rows)
		})
	}
}

func TestQuery_UnknownTemplate(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Query(ctx, graphstore.QueryTemplate("bogus"), graphstore.QueryParams{})
			assert.ErrorIs(t, err, graphstore.ErrUnknownTemplate)
		})
	}
}
