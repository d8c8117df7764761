package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
	"github.com/fyrsmithlabs/memoryd/internal/graphstore"
)

// MidTermConfig configures the mid-term tier.
type MidTermConfig struct {
	// Max is the FIFO capacity. Defaults to 100.
	Max int
}

// ApplyDefaults fills unset fields.
func (c *MidTermConfig) ApplyDefaults() {
	if c.Max <= 0 {
		c.Max = 100
	}
}

// MidTerm is a bounded FIFO of summary chunks with optional graph mirror.
//
// When a mirror is attached, AddChunk upserts a Summary node per chunk
// and MENTIONS edges to its topic nodes. The mirror is independent of
// long-term memory; evicting a chunk never touches either graph.
type MidTerm struct {
	mu     sync.RWMutex
	chunks []Chunk
	cfg    MidTermConfig
	mirror graphstore.Store
	logger *zap.Logger
}

// NewMidTerm creates a mid-term tier. mirror may be nil.
func NewMidTerm(cfg MidTermConfig, mirror graphstore.Store, logger *zap.Logger) *MidTerm {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MidTerm{cfg: cfg, mirror: mirror, logger: logger}
}

// AddChunk appends a chunk, evicting the oldest when over capacity.
// Mirror failures are logged, never surfaced.
func (m *MidTerm) AddChunk(ctx context.Context, chunk Chunk) Chunk {
	if m.mirror != nil {
		if id, err := m.mirrorChunk(ctx, chunk); err != nil {
			m.logger.Warn("graph mirror failed", zap.String("chunk", chunk.ID), zap.Error(err))
		} else {
			chunk.GraphMirrorID = id
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunk)
	if len(m.chunks) > m.cfg.Max {
		m.chunks = append([]Chunk{}, m.chunks[len(m.chunks)-m.cfg.Max:]...)
	}
	return chunk
}

// mirrorChunk upserts the Summary node and MENTIONS edges.
func (m *MidTerm) mirrorChunk(ctx context.Context, chunk Chunk) (string, error) {
	nodeID, err := m.mirror.UpsertNode(ctx, graphstore.LabelSummary, chunk.ID, graphstore.Properties{
		"summary":       chunk.Summary,
		"message_count": chunk.MessageCount,
		"importance":    chunk.Importance,
	})
	if err != nil {
		return "", fmt.Errorf("upsert summary node: %w", err)
	}
	for _, topic := range chunk.Topics {
		topicID := "topic_" + strings.ToLower(topic)
		if _, err := m.mirror.UpsertNode(ctx, graphstore.LabelTopic, topicID, graphstore.Properties{
			"name": topic,
		}); err != nil {
			return nodeID, fmt.Errorf("upsert topic %s: %w", topic, err)
		}
		if _, err := m.mirror.UpsertEdge(ctx, nodeID, topicID, graphstore.EdgeMentions, nil); err != nil {
			return nodeID, fmt.Errorf("link topic %s: %w", topic, err)
		}
	}
	return nodeID, nil
}

// GetRecentChunks returns the last n chunks in insertion order.
func (m *MidTerm) GetRecentChunks(n int) []Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chunks := m.chunks
	if n > 0 && len(chunks) > n {
		chunks = chunks[len(chunks)-n:]
	}
	return append([]Chunk{}, chunks...)
}

// SearchByEmbedding returns the top-k chunks by cosine similarity.
// Chunks without embeddings score 0.
func (m *MidTerm) SearchByEmbedding(queryEmbedding []float32, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidArgument, topK)
	}
	if queryEmbedding == nil {
		return nil, fmt.Errorf("%w: query embedding is nil", ErrInvalidArgument)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	scored := make([]ScoredChunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		var score float32
		if c.Embedding != nil {
			sim, err := embeddings.Similarity(queryEmbedding, c.Embedding)
			if err != nil {
				return nil, fmt.Errorf("score chunk %s: %w", c.ID, err)
			}
			score = sim
		}
		scored = append(scored, ScoredChunk{Chunk: c, Score: score})
	}
	return topChunks(scored, topK), nil
}

// SearchByKeywords scores chunks by Jaccard overlap of topics with the
// query keywords, ties broken by recency.
func (m *MidTerm) SearchByKeywords(keywords []string, topK int) []ScoredChunk {
	if topK <= 0 || len(keywords) == 0 {
		return nil
	}
	query := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		query[strings.ToLower(k)] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	scored := make([]ScoredChunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		scored = append(scored, ScoredChunk{Chunk: c, Score: topicJaccard(query, c.Topics)})
	}
	return topChunks(scored, topK)
}

// Len returns the number of held chunks.
func (m *MidTerm) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

// Clear removes all chunks.
func (m *MidTerm) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = nil
}

// Chunks returns a copy of the chunks in insertion order.
func (m *MidTerm) Chunks() []Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Chunk{}, m.chunks...)
}

// Restore replaces the tier contents, preserving the given order.
func (m *MidTerm) Restore(chunks []Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append([]Chunk{}, chunks...)
	if len(m.chunks) > m.cfg.Max {
		m.chunks = m.chunks[len(m.chunks)-m.cfg.Max:]
	}
}

func topChunks(scored []ScoredChunk, topK int) []ScoredChunk {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].CreatedAt.After(scored[j].CreatedAt)
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

func topicJaccard(query map[string]bool, topics []string) float32 {
	if len(query) == 0 || len(topics) == 0 {
		return 0
	}
	seen := make(map[string]bool, len(topics))
	intersection := 0
	for _, t := range topics {
		lt := strings.ToLower(t)
		if seen[lt] {
			continue
		}
		seen[lt] = true
		if query[lt] {
			intersection++
		}
	}
	union := len(query) + len(seen) - intersection
	if union == 0 {
		return 0
	}
	return float32(intersection) / float32(union)
}
