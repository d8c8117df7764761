// Package aggregate merges per-tier retrieval results into one ranked
// list: per-item base and relevance scores, layer-weighted final score,
// near-duplicate suppression.
package aggregate

import (
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
	"github.com/fyrsmithlabs/memoryd/internal/ltm"
	"github.com/fyrsmithlabs/memoryd/internal/memory"
)

// Source tags where an aggregated item came from.
const (
	SourceSTM = "stm"
	SourceMTM = "mtm"
	SourceLTM = "ltm"
)

// stmHalflife controls the recency decay of short-term base scores,
// in positions from the most recent turn.
const stmHalflife = 3.0

// Config configures aggregation.
type Config struct {
	// WeightSTM / WeightMTM / WeightLTM are the layer weights.
	// Defaults 0.5 / 0.3 / 0.2.
	WeightSTM float64
	WeightMTM float64
	WeightLTM float64

	// Alpha mixes relevance against base score. Default 0.7.
	Alpha float64

	// DedupThreshold is the token-Jaccard overlap above which the
	// lower-scored of two items is dropped. Default 0.85.
	DedupThreshold float64
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.WeightSTM == 0 && c.WeightMTM == 0 && c.WeightLTM == 0 {
		c.WeightSTM, c.WeightMTM, c.WeightLTM = 0.5, 0.3, 0.2
	}
	if c.Alpha == 0 {
		c.Alpha = 0.7
	}
	if c.DedupThreshold == 0 {
		c.DedupThreshold = 0.85
	}
}

// Item is one entry of the aggregated list.
type Item struct {
	Source         string         `json:"source"`
	Content        string         `json:"content"`
	FinalScore     float64        `json:"final_score"`
	BaseScore      float64        `json:"base_score"`
	RelevanceScore float64        `json:"relevance_score"`
	CreatedAt      time.Time      `json:"created_at"`
	Embedding      []float32      `json:"-"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Aggregator merges tier results.
type Aggregator struct {
	cfg    Config
	logger *zap.Logger
}

// New creates an aggregator.
func New(cfg Config, logger *zap.Logger) *Aggregator {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{cfg: cfg, logger: logger}
}

// Aggregate merges the three tier result lists into one list sorted by
// final score, non-increasing, with near-duplicates dropped.
func (a *Aggregator) Aggregate(stm []memory.ScoredTurn, mtm []memory.ScoredChunk, long []ltm.Item, queryEmbedding []float32) []Item {
	items := make([]Item, 0, len(stm)+len(mtm)+len(long))
	items = append(items, a.fromSTM(stm, queryEmbedding)...)
	items = append(items, a.fromMTM(mtm, queryEmbedding)...)
	items = append(items, a.fromLTM(long)...)

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].FinalScore > items[j].FinalScore
	})
	return a.dedup(items)
}

// fromSTM scores turns: base is an exponential recency decay over the
// position from the most recent turn.
func (a *Aggregator) fromSTM(turns []memory.ScoredTurn, queryEmbedding []float32) []Item {
	order := make([]int, len(turns))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return turns[order[i]].CreatedAt.After(turns[order[j]].CreatedAt)
	})
	rank := make([]int, len(turns))
	for pos, idx := range order {
		rank[idx] = pos
	}

	items := make([]Item, len(turns))
	for i, t := range turns {
		base := math.Exp(-float64(rank[i]) / stmHalflife)
		rel := relevance(queryEmbedding, t.Embedding, t.Similarity)
		items[i] = Item{
			Source:         SourceSTM,
			Content:        t.Content,
			BaseScore:      base,
			RelevanceScore: rel,
			FinalScore:     a.final(a.cfg.WeightSTM, rel, base),
			CreatedAt:      t.CreatedAt,
			Embedding:      t.Embedding,
			Metadata: map[string]any{
				"turn_id": t.ID,
				"role":    string(t.Role),
				"intent":  t.Intent,
			},
		}
	}
	return items
}

// fromMTM scores chunks: base is positional, newest 1 decreasing
// linearly across the result list.
func (a *Aggregator) fromMTM(chunks []memory.ScoredChunk, queryEmbedding []float32) []Item {
	order := make([]int, len(chunks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return chunks[order[i]].CreatedAt.After(chunks[order[j]].CreatedAt)
	})
	rank := make([]int, len(chunks))
	for pos, idx := range order {
		rank[idx] = pos
	}

	items := make([]Item, len(chunks))
	for i, c := range chunks {
		base := 1.0 - float64(rank[i])/float64(len(chunks))
		rel := relevance(queryEmbedding, c.Embedding, c.Score)
		items[i] = Item{
			Source:         SourceMTM,
			Content:        c.Summary,
			BaseScore:      base,
			RelevanceScore: rel,
			FinalScore:     a.final(a.cfg.WeightMTM, rel, base),
			CreatedAt:      c.CreatedAt,
			Embedding:      c.Embedding,
			Metadata: map[string]any{
				"chunk_id":   c.ID,
				"topics":     c.Topics,
				"importance": c.Importance,
			},
		}
	}
	return items
}

// fromLTM scores long-term items: base is the stored importance,
// relevance the vector similarity the search attached.
func (a *Aggregator) fromLTM(long []ltm.Item) []Item {
	items := make([]Item, len(long))
	for i, l := range long {
		base := l.Importance
		rel := float64(l.Score)
		items[i] = Item{
			Source:         SourceLTM,
			Content:        l.Content,
			BaseScore:      base,
			RelevanceScore: rel,
			FinalScore:     a.final(a.cfg.WeightLTM, rel, base),
			CreatedAt:      l.CreatedAt,
			Metadata: map[string]any{
				"vector_id":       l.VectorID,
				"graph_entity_id": l.GraphEntityID,
				"ltm_source":      l.Source,
				"path_length":     l.PathLength,
			},
		}
	}
	return items
}

func (a *Aggregator) final(weight, rel, base float64) float64 {
	return weight * (a.cfg.Alpha*rel + (1-a.cfg.Alpha)*base)
}

// relevance prefers a fresh cosine against the query embedding and
// falls back to the similarity the tier search attached.
func relevance(queryEmbedding, itemEmbedding []float32, attached float32) float64 {
	if queryEmbedding != nil && itemEmbedding != nil {
		if sim, err := embeddings.Similarity(queryEmbedding, itemEmbedding); err == nil {
			return float64(sim)
		}
	}
	return float64(attached)
}

// dedup drops items whose normalized text overlaps a higher-scored item
// above the threshold. Input must already be sorted by final score.
func (a *Aggregator) dedup(items []Item) []Item {
	kept := make([]Item, 0, len(items))
	keptTokens := make([]map[string]bool, 0, len(items))
	for _, item := range items {
		tokens := tokenSet(item.Content)
		dup := false
		for _, prev := range keptTokens {
			if jaccard(tokens, prev) > a.cfg.DedupThreshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		kept = append(kept, item)
		keptTokens = append(keptTokens, tokens)
	}
	if dropped := len(items) - len(kept); dropped > 0 {
		a.logger.Debug("dropped near-duplicates", zap.Int("count", dropped))
	}
	return kept
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(tok, ".,!?;:")] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
