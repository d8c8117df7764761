// Package compression fits a ranked item list under a token budget.
//
// Three strategies: truncate (input order), score_based (by final score,
// optionally force-keeping the most recent short-term items) and mmr
// (diversity-aware Maximal Marginal Relevance). Token counts come from
// an injectable estimator defaulting to ceil(chars/4).
package compression

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/aggregate"
	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
)

// ErrInvalidArgument indicates a bad call argument.
var ErrInvalidArgument = fmt.Errorf("invalid argument")

// Strategy selects the compression algorithm.
type Strategy string

const (
	StrategyTruncate   Strategy = "truncate"
	StrategyScoreBased Strategy = "score_based"
	StrategyMMR        Strategy = "mmr"
)

// TokenEstimator approximates the token count of a text.
type TokenEstimator func(string) int

func defaultEstimator(text string) int {
	return (len(text) + 3) / 4
}

// Config configures the compressor.
type Config struct {
	// MaxTokens is the default budget. Default 2000.
	MaxTokens int

	// Strategy is the default algorithm. Default score_based.
	Strategy Strategy

	// MMRLambda trades relevance against diversity. Default 0.7.
	MMRLambda float64

	// PreserveRecentCount is how many of the most recent short-term
	// items score_based keeps unconditionally. Default 3.
	PreserveRecentCount int
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2000
	}
	if c.Strategy == "" {
		c.Strategy = StrategyScoreBased
	}
	if c.MMRLambda == 0 {
		c.MMRLambda = 0.7
	}
	if c.PreserveRecentCount <= 0 {
		c.PreserveRecentCount = 3
	}
}

// Item is an aggregated item with its token count attached.
type Item struct {
	aggregate.Item
	Tokens    int  `json:"tokens"`
	Truncated bool `json:"truncated,omitempty"`
}

// Result is the outcome of a Compress call.
type Result struct {
	Items            []Item   `json:"items"`
	TotalTokens      int      `json:"total_tokens"`
	OriginalTokens   int      `json:"original_tokens"`
	CompressionRatio float64  `json:"compression_ratio"`
	Strategy         Strategy `json:"strategy"`
	ItemsKept        int      `json:"items_kept"`
	ItemsRemoved     int      `json:"items_removed"`
}

// Compressor fits item lists under token budgets.
type Compressor struct {
	cfg      Config
	estimate TokenEstimator
	logger   *zap.Logger
}

// New creates a compressor. estimator may be nil for the default.
func New(cfg Config, estimator TokenEstimator, logger *zap.Logger) *Compressor {
	cfg.ApplyDefaults()
	if estimator == nil {
		estimator = defaultEstimator
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compressor{cfg: cfg, estimate: estimator, logger: logger}
}

// DefaultMaxTokens returns the configured budget.
func (c *Compressor) DefaultMaxTokens() int {
	return c.cfg.MaxTokens
}

// Compress reduces items to fit maxTokens. A zero budget yields an
// empty result with ratio 0; a negative budget is an error.
func (c *Compressor) Compress(items []aggregate.Item, maxTokens int, preserveRecent bool) (Result, error) {
	if maxTokens < 0 {
		return Result{}, fmt.Errorf("%w: negative token budget %d", ErrInvalidArgument, maxTokens)
	}

	original := 0
	sized := make([]Item, len(items))
	for i, item := range items {
		tokens := c.estimate(item.Content)
		sized[i] = Item{Item: item, Tokens: tokens}
		original += tokens
	}

	result := Result{
		OriginalTokens: original,
		Strategy:       c.cfg.Strategy,
	}
	if maxTokens == 0 || len(sized) == 0 {
		result.ItemsRemoved = len(sized)
		return result, nil
	}

	var kept []Item
	switch c.cfg.Strategy {
	case StrategyTruncate:
		kept = c.truncate(sized, maxTokens)
	case StrategyScoreBased:
		kept = c.scoreBased(sized, maxTokens, preserveRecent)
	case StrategyMMR:
		kept = c.mmr(sized, maxTokens)
	default:
		return Result{}, fmt.Errorf("%w: unknown strategy %q", ErrInvalidArgument, c.cfg.Strategy)
	}

	for _, item := range kept {
		result.TotalTokens += item.Tokens
	}
	result.Items = kept
	result.ItemsKept = len(kept)
	result.ItemsRemoved = len(sized) - len(kept)
	if original > 0 {
		result.CompressionRatio = float64(result.TotalTokens) / float64(original)
	}
	return result, nil
}

// truncate keeps items in input order while they fit.
func (c *Compressor) truncate(items []Item, budget int) []Item {
	var kept []Item
	total := 0
	for _, item := range items {
		if total+item.Tokens > budget {
			if len(kept) == 0 {
				kept = append(kept, c.clipItem(item, budget))
			}
			break
		}
		kept = append(kept, item)
		total += item.Tokens
	}
	return kept
}

// scoreBased keeps the highest-scored items that fit. With
// preserveRecent, the most recent short-term items are kept first.
func (c *Compressor) scoreBased(items []Item, budget int, preserveRecent bool) []Item {
	forced := make(map[int]bool)
	if preserveRecent {
		stm := make([]int, 0, len(items))
		for i, item := range items {
			if item.Source == aggregate.SourceSTM {
				stm = append(stm, i)
			}
		}
		sort.SliceStable(stm, func(a, b int) bool {
			return items[stm[a]].CreatedAt.After(items[stm[b]].CreatedAt)
		})
		if len(stm) > c.cfg.PreserveRecentCount {
			stm = stm[:c.cfg.PreserveRecentCount]
		}
		for _, i := range stm {
			forced[i] = true
		}
	}

	order := make([]int, 0, len(items))
	for i := range items {
		order = append(order, i)
	}
	sort.SliceStable(order, func(a, b int) bool {
		// Forced items go first so the budget covers them even when
		// lower-scored items would otherwise win.
		if forced[order[a]] != forced[order[b]] {
			return forced[order[a]]
		}
		return items[order[a]].FinalScore > items[order[b]].FinalScore
	})

	var kept []Item
	total := 0
	for _, idx := range order {
		item := items[idx]
		if total+item.Tokens > budget {
			if len(kept) == 0 {
				kept = append(kept, c.clipItem(item, budget))
				total = budget
			}
			continue
		}
		kept = append(kept, item)
		total += item.Tokens
	}

	sort.SliceStable(kept, func(a, b int) bool {
		return kept[a].FinalScore > kept[b].FinalScore
	})
	return kept
}

// mmr picks items by Maximal Marginal Relevance: relevance traded
// against similarity to the already-selected set.
func (c *Compressor) mmr(items []Item, budget int) []Item {
	remaining := append([]Item{}, items...)
	var kept []Item
	total := 0

	for len(remaining) > 0 {
		bestIdx := -1
		bestObjective := 0.0
		for i, cand := range remaining {
			penalty := 0.0
			for _, sel := range kept {
				if cand.Embedding == nil || sel.Embedding == nil {
					continue
				}
				if sim, err := embeddings.Similarity(cand.Embedding, sel.Embedding); err == nil && float64(sim) > penalty {
					penalty = float64(sim)
				}
			}
			objective := c.cfg.MMRLambda*cand.FinalScore - (1-c.cfg.MMRLambda)*penalty
			if bestIdx == -1 || objective > bestObjective {
				bestIdx, bestObjective = i, objective
			}
		}

		item := remaining[bestIdx]
		if total+item.Tokens > budget {
			if len(kept) == 0 {
				kept = append(kept, c.clipItem(item, budget))
			}
			break
		}
		kept = append(kept, item)
		total += item.Tokens
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return kept
}

// clipItem truncates a single over-budget item to a prefix of the
// budget and flags it.
func (c *Compressor) clipItem(item Item, budget int) Item {
	maxChars := budget * 4
	if len(item.Content) > maxChars {
		// Back off to a rune boundary so the cut never leaves invalid UTF-8.
		for maxChars > 0 && !utf8.RuneStart(item.Content[maxChars]) {
			maxChars--
		}
		item.Content = item.Content[:maxChars]
	}
	item.Tokens = c.estimate(item.Content)
	item.Truncated = true
	return item
}
