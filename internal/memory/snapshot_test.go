package memory_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryd/internal/memory"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	created := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	snap := memory.Snapshot{
		STM: []memory.Turn{
			{ID: "t1", Role: memory.RoleUser, Content: "hello", CreatedAt: created, TokenEstimate: 2},
			{ID: "t2", Role: memory.RoleAssistant, Content: "hi", Embedding: []float32{1, 0}, CreatedAt: created, TokenEstimate: 1},
		},
		MTM: []memory.Chunk{
			{ID: "c1", Summary: "greeting", SourceTurnIDs: []string{"t1", "t2"}, Topics: []string{"hello"}, Importance: 0.4, MessageCount: 2, CreatedAt: created},
		},
		Counters:     memory.Counters{TurnsSinceLastSummary: 2},
		EmbeddingDim: 2,
	}
	require.NoError(t, memory.SaveSnapshot(path, snap))

	loaded, ok, err := memory.LoadSnapshot(path)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, memory.SnapshotVersion, loaded.Version)
	assert.Equal(t, snap.STM, loaded.STM)
	assert.Equal(t, snap.MTM, loaded.MTM)
	assert.Equal(t, snap.Counters, loaded.Counters)
	assert.Equal(t, 2, loaded.EmbeddingDim)
}

func TestSnapshot_LoadMissingFile(t *testing.T) {
	loaded, ok, err := memory.LoadSnapshot(filepath.Join(t.TempDir(), "absent.json"))
	assert.False(t, ok)
	assert.Error(t, err)
	assert.Empty(t, loaded.STM)
	assert.Empty(t, loaded.MTM)
}

func TestSnapshot_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	loaded, ok, err := memory.LoadSnapshot(path)
	assert.False(t, ok)
	assert.Error(t, err)
	assert.Equal(t, memory.SnapshotVersion, loaded.Version)
}

func TestSnapshot_VersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99}`), 0o644))

	_, ok, err := memory.LoadSnapshot(path)
	assert.False(t, ok)
	assert.Error(t, err)
}
