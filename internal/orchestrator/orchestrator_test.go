package orchestrator_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryd/internal/aggregate"
	"github.com/fyrsmithlabs/memoryd/internal/compression"
	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
	"github.com/fyrsmithlabs/memoryd/internal/graphstore"
	"github.com/fyrsmithlabs/memoryd/internal/ltm"
	"github.com/fyrsmithlabs/memoryd/internal/memory"
	"github.com/fyrsmithlabs/memoryd/internal/orchestrator"
	"github.com/fyrsmithlabs/memoryd/internal/preprocess"
	"github.com/fyrsmithlabs/memoryd/internal/vectorstore"
)

const dim = 16

type fixture struct {
	orch   *orchestrator.Orchestrator
	stm    *memory.ShortTerm
	mtm    *memory.MidTerm
	hybrid *ltm.Hybrid
}

func build(t *testing.T, cfg orchestrator.Config, stmMax int, graph graphstore.Store) fixture {
	t.Helper()
	provider := embeddings.NewDeterministicProvider(dim)
	stm := memory.NewShortTerm(memory.ShortTermConfig{Max: stmMax}, nil)
	mtm := memory.NewMidTerm(memory.MidTermConfig{}, nil, nil)

	var hybrid *ltm.Hybrid
	if graph != nil {
		vectors, err := vectorstore.NewMemoryStore(dim, nil)
		require.NoError(t, err)
		hybrid = ltm.NewHybrid(provider, vectors, graph, ltm.Config{}, nil)
	}

	cfg.EmbeddingDim = dim
	orch := orchestrator.New(
		preprocess.New(provider, nil),
		stm,
		mtm,
		hybrid,
		memory.NewSummarizer(provider, nil, nil),
		aggregate.New(aggregate.Config{}, nil),
		compression.New(compression.Config{}, nil, nil),
		cfg,
		nil,
	)
	return fixture{orch: orch, stm: stm, mtm: mtm, hybrid: hybrid}
}

func TestOrchestrator_CapacityAndPromotion(t *testing.T) {
	ctx := context.Background()
	f := build(t, orchestrator.Config{SummarizeEvery: 3}, 3, nil)

	var ids []string
	for _, content := range []string{"turn one", "turn two", "turn three", "turn four", "turn five", "turn six"} {
		turn, err := f.orch.AddMessage(ctx, memory.RoleUser, content)
		require.NoError(t, err)
		ids = append(ids, turn.ID)
	}

	// Short-term holds only the last three turns.
	turns := f.stm.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, "turn four", turns[0].Content)
	assert.Equal(t, "turn six", turns[2].Content)

	// Two promotions happened, each sourcing a contiguous triple.
	chunks := f.mtm.Chunks()
	require.Len(t, chunks, 2)
	assert.Equal(t, ids[0:3], chunks[0].SourceTurnIDs)
	assert.Equal(t, ids[3:6], chunks[1].SourceTurnIDs)
	assert.Equal(t, 3, chunks[0].MessageCount)
}

func TestOrchestrator_GetContextEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := build(t, orchestrator.Config{}, 10, graphstore.NewMemoryGraph(nil))

	_, err := f.orch.AddMessage(ctx, memory.RoleUser, "how do we handle cache invalidation")
	require.NoError(t, err)
	_, err = f.orch.AddMessage(ctx, memory.RoleAssistant, "the cache is invalidated on every write")
	require.NoError(t, err)
	_, err = f.hybrid.Add(ctx, "cache entries expire after five minutes", ltm.Metadata{
		Category:   "concept",
		Importance: 0.8,
	})
	require.NoError(t, err)

	bundle, err := f.orch.GetContext(ctx, "cache invalidation", orchestrator.ContextOptions{})
	require.NoError(t, err)

	assert.True(t, bundle.Query.EmbeddingPresent)
	assert.True(t, bundle.Query.EmbeddingFallback)
	assert.NotEmpty(t, bundle.Items)
	assert.Equal(t, 2, bundle.Counts.STM)
	assert.Positive(t, bundle.Counts.LTM)
	assert.Empty(t, bundle.Timeouts)
	assert.Empty(t, bundle.Errors)
	assert.LessOrEqual(t, bundle.Compression.TotalTokens, 2000)

	for i := 1; i < len(bundle.Items); i++ {
		assert.GreaterOrEqual(t, bundle.Items[i-1].FinalScore, bundle.Items[i].FinalScore)
	}
}

func TestOrchestrator_EmptyQuery(t *testing.T) {
	f := build(t, orchestrator.Config{}, 10, nil)

	bundle, err := f.orch.GetContext(context.Background(), "   ", orchestrator.ContextOptions{})
	require.NoError(t, err)
	assert.Empty(t, bundle.Items)
	assert.Zero(t, bundle.Compression.TotalTokens)
	assert.False(t, bundle.Query.EmbeddingPresent)
}

func TestOrchestrator_InvalidArguments(t *testing.T) {
	f := build(t, orchestrator.Config{}, 10, nil)
	ctx := context.Background()

	_, err := f.orch.GetContext(ctx, "q", orchestrator.ContextOptions{NRecent: -1})
	assert.ErrorIs(t, err, orchestrator.ErrInvalidArgument)

	_, err = f.orch.AddMessage(ctx, memory.RoleUser, "")
	assert.ErrorIs(t, err, orchestrator.ErrInvalidArgument)
}

// slowGraph simulates a graph backend that blocks without honoring
// cancellation.
type slowGraph struct {
	graphstore.Store
	delay time.Duration
}

func (s *slowGraph) Neighbors(ctx context.Context, id string, opts graphstore.NeighborOptions) ([]graphstore.Neighbor, error) {
	time.Sleep(s.delay)
	return s.Store.Neighbors(ctx, id, opts)
}

func (s *slowGraph) Query(ctx context.Context, template graphstore.QueryTemplate, params graphstore.QueryParams) ([]graphstore.Row, error) {
	time.Sleep(s.delay)
	return s.Store.Query(ctx, template, params)
}

func TestOrchestrator_TierTimeout(t *testing.T) {
	ctx := context.Background()
	slow := &slowGraph{Store: graphstore.NewMemoryGraph(nil), delay: 2 * time.Second}
	f := build(t, orchestrator.Config{TierDeadline: 200 * time.Millisecond}, 10, slow)

	_, err := f.orch.AddMessage(ctx, memory.RoleUser, "recent context survives a slow graph")
	require.NoError(t, err)
	_, err = f.hybrid.Add(ctx, "fact behind the slow graph", ltm.Metadata{Category: "concept"})
	require.NoError(t, err)

	start := time.Now()
	bundle, err := f.orch.GetContext(ctx, "slow graph", orchestrator.ContextOptions{})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 600*time.Millisecond)
	assert.Zero(t, bundle.Counts.LTM)
	assert.Contains(t, bundle.Timeouts, "ltm")
	assert.Equal(t, 1, bundle.Counts.STM)
}

func TestOrchestrator_ParentCancellation(t *testing.T) {
	slow := &slowGraph{Store: graphstore.NewMemoryGraph(nil), delay: 2 * time.Second}
	f := build(t, orchestrator.Config{TierDeadline: 5 * time.Second}, 10, slow)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := f.orch.AddMessage(ctx, memory.RoleUser, "retrieval interrupted by the caller")
	require.NoError(t, err)
	_, err = f.hybrid.Add(ctx, "fact behind the slow graph", ltm.Metadata{Category: "concept"})
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	// Cancellation lands while the graph tier is still blocked: it must
	// surface as an error, not as a tier timeout.
	bundle, err := f.orch.GetContext(ctx, "slow graph", orchestrator.ContextOptions{})
	require.NoError(t, err)
	assert.NotContains(t, bundle.Timeouts, "ltm")
	assert.Contains(t, bundle.Errors, "ltm: context canceled")
	assert.Zero(t, bundle.Counts.LTM)
}

func TestOrchestrator_SkipLTM(t *testing.T) {
	ctx := context.Background()
	f := build(t, orchestrator.Config{}, 10, graphstore.NewMemoryGraph(nil))
	_, err := f.hybrid.Add(ctx, "skipped fact", ltm.Metadata{Category: "concept"})
	require.NoError(t, err)

	bundle, err := f.orch.GetContext(ctx, "skipped fact", orchestrator.ContextOptions{SkipLTM: true})
	require.NoError(t, err)
	assert.Zero(t, bundle.Counts.LTM)
}

func TestOrchestrator_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snap.json")

	f := build(t, orchestrator.Config{SummarizeEvery: 2}, 10, nil)
	for _, content := range []string{"alpha", "beta", "gamma"} {
		_, err := f.orch.AddMessage(ctx, memory.RoleUser, content)
		require.NoError(t, err)
	}
	require.NoError(t, f.orch.SaveSnapshot(path))

	restored := build(t, orchestrator.Config{SummarizeEvery: 2}, 10, nil)
	ok, err := restored.orch.LoadSnapshot(path)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, f.stm.Turns(), restored.stm.Turns())
	assert.Equal(t, f.mtm.Chunks(), restored.mtm.Chunks())

	stmLen, mtmLen, since := restored.orch.Stats()
	assert.Equal(t, 3, stmLen)
	assert.Equal(t, 1, mtmLen)
	assert.Equal(t, 1, since)
}

func TestOrchestrator_LoadSnapshotMissing(t *testing.T) {
	f := build(t, orchestrator.Config{}, 10, nil)
	ok, err := f.orch.LoadSnapshot(filepath.Join(t.TempDir(), "absent.json"))
	assert.False(t, ok)
	assert.Error(t, err)
	assert.Equal(t, 0, f.stm.Len())
}
