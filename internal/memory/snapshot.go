package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotVersion is the current snapshot document version.
const SnapshotVersion = 1

// Counters holds orchestration state persisted alongside the tiers.
type Counters struct {
	TurnsSinceLastSummary int `json:"turns_since_last_summary"`
}

// Snapshot is the durable serialization of both in-memory tiers.
// Vector and graph backends persist themselves; they are referenced only
// through configuration.
type Snapshot struct {
	Version      int      `json:"version"`
	STM          []Turn   `json:"stm"`
	MTM          []Chunk  `json:"mtm"`
	Counters     Counters `json:"counters"`
	EmbeddingDim int      `json:"embedding_dim"`
}

// SaveSnapshot writes the snapshot atomically (temp file + rename).
func SaveSnapshot(path string, snap Snapshot) error {
	snap.Version = SnapshotVersion
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot from disk. On any failure it returns a
// fresh empty snapshot, ok=false, and the cause; callers continue with
// the fresh state rather than crashing.
func LoadSnapshot(path string) (Snapshot, bool, error) {
	fresh := Snapshot{Version: SnapshotVersion}

	data, err := os.ReadFile(path)
	if err != nil {
		return fresh, false, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fresh, false, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return fresh, false, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	return snap, true, nil
}
