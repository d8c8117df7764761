package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
)

// ShortTermConfig configures the short-term tier.
type ShortTermConfig struct {
	// Max is the FIFO capacity. Defaults to 10.
	Max int

	// TTL expires turns older than this; 0 disables expiry.
	TTL time.Duration
}

// ApplyDefaults fills unset fields.
func (c *ShortTermConfig) ApplyDefaults() {
	if c.Max <= 0 {
		c.Max = 10
	}
}

// ShortTerm is a bounded FIFO of recent turns with optional TTL.
//
// Writes are exclusive, reads concurrent. Expired turns are skipped by
// reads and purged on the next write.
type ShortTerm struct {
	mu     sync.RWMutex
	turns  []Turn
	cfg    ShortTermConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewShortTerm creates a short-term tier.
func NewShortTerm(cfg ShortTermConfig, logger *zap.Logger) *ShortTerm {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShortTerm{cfg: cfg, logger: logger, now: time.Now}
}

// Add appends a turn, evicting the oldest when over capacity.
func (s *ShortTerm) Add(role Role, content string, embedding []float32, intent string, keywords []string) Turn {
	turn := Turn{
		ID:            uuid.NewString(),
		Role:          role,
		Content:       content,
		Embedding:     embedding,
		Intent:        intent,
		Keywords:      keywords,
		CreatedAt:     s.now().UTC(),
		TokenEstimate: EstimateTokens(content),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked()
	s.turns = append(s.turns, turn)
	if len(s.turns) > s.cfg.Max {
		evicted := len(s.turns) - s.cfg.Max
		s.turns = append([]Turn{}, s.turns[evicted:]...)
	}
	return turn
}

// GetRecent returns up to n turns. Without a query embedding, the last n
// in insertion order. With one, the top-n by cosine similarity, ties
// broken by more recent creation; turns without embeddings score 0 and
// are used only to fill to n.
func (s *ShortTerm) GetRecent(n int, queryEmbedding []float32) ([]ScoredTurn, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: n must be positive, got %d", ErrInvalidArgument, n)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	live := s.liveLocked()
	if queryEmbedding == nil {
		if len(live) > n {
			live = live[len(live)-n:]
		}
		out := make([]ScoredTurn, len(live))
		for i, t := range live {
			out[i] = ScoredTurn{Turn: t}
		}
		return out, nil
	}
	return rankTurns(live, queryEmbedding, n)
}

// SearchByEmbedding returns the top-k live turns by cosine similarity.
func (s *ShortTerm) SearchByEmbedding(queryEmbedding []float32, topK int) ([]ScoredTurn, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidArgument, topK)
	}
	if queryEmbedding == nil {
		return nil, fmt.Errorf("%w: query embedding is nil", ErrInvalidArgument)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return rankTurns(s.liveLocked(), queryEmbedding, topK)
}

// Expire purges turns past their TTL.
func (s *ShortTerm) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
}

// Clear removes all turns.
func (s *ShortTerm) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// Len returns the number of live turns.
func (s *ShortTerm) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.liveLocked())
}

// Turns returns a copy of the live turns in insertion order.
func (s *ShortTerm) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn{}, s.liveLocked()...)
}

// Restore replaces the tier contents, preserving the given order.
func (s *ShortTerm) Restore(turns []Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append([]Turn{}, turns...)
	if len(s.turns) > s.cfg.Max {
		s.turns = s.turns[len(s.turns)-s.cfg.Max:]
	}
}

// purgeLocked drops expired turns. Caller holds the write lock.
func (s *ShortTerm) purgeLocked() {
	if s.cfg.TTL <= 0 {
		return
	}
	cutoff := s.now().Add(-s.cfg.TTL)
	kept := s.turns[:0]
	for _, t := range s.turns {
		if t.CreatedAt.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if dropped := len(s.turns) - len(kept); dropped > 0 {
		s.logger.Debug("purged expired turns", zap.Int("count", dropped))
	}
	s.turns = kept
}

// liveLocked returns turns within TTL. Caller holds a lock.
func (s *ShortTerm) liveLocked() []Turn {
	if s.cfg.TTL <= 0 {
		return s.turns
	}
	cutoff := s.now().Add(-s.cfg.TTL)
	var live []Turn
	for _, t := range s.turns {
		if t.CreatedAt.After(cutoff) {
			live = append(live, t)
		}
	}
	return live
}

// rankTurns scores turns against the query embedding and returns the
// top n. Turns without embeddings fill trailing slots by recency.
func rankTurns(turns []Turn, query []float32, n int) ([]ScoredTurn, error) {
	var scored, unscored []ScoredTurn
	for _, t := range turns {
		if t.Embedding == nil {
			unscored = append(unscored, ScoredTurn{Turn: t})
			continue
		}
		sim, err := embeddings.Similarity(query, t.Embedding)
		if err != nil {
			return nil, fmt.Errorf("score turn %s: %w", t.ID, err)
		}
		scored = append(scored, ScoredTurn{Turn: t, Similarity: sim})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].CreatedAt.After(scored[j].CreatedAt)
	})
	sort.SliceStable(unscored, func(i, j int) bool {
		return unscored[i].CreatedAt.After(unscored[j].CreatedAt)
	})

	out := scored
	if len(out) < n {
		out = append(out, unscored...)
	}
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}
