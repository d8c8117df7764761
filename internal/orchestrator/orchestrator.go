package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/aggregate"
	"github.com/fyrsmithlabs/memoryd/internal/compression"
	"github.com/fyrsmithlabs/memoryd/internal/ltm"
	"github.com/fyrsmithlabs/memoryd/internal/memory"
	"github.com/fyrsmithlabs/memoryd/internal/preprocess"
)

// ErrInvalidArgument indicates a bad call argument.
var ErrInvalidArgument = fmt.Errorf("invalid argument")

// Config configures the orchestrator.
type Config struct {
	// SummarizeEvery is the promotion threshold. Default 5.
	SummarizeEvery int

	// TierDeadline bounds each tier retrieval. Default 2s.
	TierDeadline time.Duration

	// EmbeddingDim is recorded in snapshots.
	EmbeddingDim int
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.SummarizeEvery <= 0 {
		c.SummarizeEvery = 5
	}
	if c.TierDeadline <= 0 {
		c.TierDeadline = 2 * time.Second
	}
}

// ContextOptions parameterizes GetContext. The zero value gives the
// standard behavior: all tiers on, embedding search on.
type ContextOptions struct {
	NRecent int // short-term items, default 5
	NChunks int // mid-term items, default 3
	NLTM    int // long-term items, default 5

	SkipLTM             bool
	SkipEmbeddingSearch bool

	// MaxTokens overrides the compressor budget when positive.
	MaxTokens int
}

func (o *ContextOptions) applyDefaults() {
	if o.NRecent == 0 {
		o.NRecent = 5
	}
	if o.NChunks == 0 {
		o.NChunks = 3
	}
	if o.NLTM == 0 {
		o.NLTM = 5
	}
}

// QueryInfo is the bundle's view of the preprocessed query.
type QueryInfo struct {
	Raw              string   `json:"raw"`
	Normalized       string   `json:"normalized"`
	Intent           string   `json:"intent"`
	Keywords         []string `json:"keywords"`
	EmbeddingPresent bool     `json:"embedding_present"`

	// EmbeddingFallback marks a hash-seeded embedding, so consumers can
	// tell degraded retrieval from model-backed retrieval.
	EmbeddingFallback bool `json:"embedding_fallback"`
}

// Counts reports how many items each tier contributed.
type Counts struct {
	STM int `json:"stm"`
	MTM int `json:"mtm"`
	LTM int `json:"ltm"`
}

// Timings holds per-stage wall time in milliseconds.
type Timings struct {
	Preprocess int64 `json:"preprocess"`
	STM        int64 `json:"stm"`
	MTM        int64 `json:"mtm"`
	LTM        int64 `json:"ltm"`
	Aggregate  int64 `json:"aggregate"`
	Compress   int64 `json:"compress"`
	Total      int64 `json:"total"`
}

// Bundle is the context package returned to the shell.
type Bundle struct {
	Query       QueryInfo          `json:"query"`
	Items       []compression.Item `json:"items"`
	Compression compression.Result `json:"compression"`
	Counts      Counts             `json:"counts"`
	TimingsMS   Timings            `json:"timings_ms"`
	Timeouts    []string           `json:"timeouts,omitempty"`
	Errors      []string           `json:"errors,omitempty"`
}

// Orchestrator wires the tiers together. It owns no tier data, only the
// promotion counter; AddMessage calls are serialized.
type Orchestrator struct {
	pre        *preprocess.Preprocessor
	stm        *memory.ShortTerm
	mtm        *memory.MidTerm
	hybrid     *ltm.Hybrid // nil when long-term memory is off
	summarizer *memory.Summarizer
	agg        *aggregate.Aggregator
	comp       *compression.Compressor
	cfg        Config
	logger     *zap.Logger

	mu                sync.Mutex
	turnsSinceSummary int
}

// New creates an orchestrator. hybrid may be nil.
func New(
	pre *preprocess.Preprocessor,
	stm *memory.ShortTerm,
	mtm *memory.MidTerm,
	hybrid *ltm.Hybrid,
	summarizer *memory.Summarizer,
	agg *aggregate.Aggregator,
	comp *compression.Compressor,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		pre:        pre,
		stm:        stm,
		mtm:        mtm,
		hybrid:     hybrid,
		summarizer: summarizer,
		agg:        agg,
		comp:       comp,
		cfg:        cfg,
		logger:     logger,
	}
}

// AddMessage ingests one turn and promotes to mid-term memory every
// SummarizeEvery turns. Promotion runs synchronously under the writer
// lock, which keeps promotions serialized per instance.
func (o *Orchestrator) AddMessage(ctx context.Context, role memory.Role, content string) (memory.Turn, error) {
	if content == "" {
		return memory.Turn{}, fmt.Errorf("%w: empty content", ErrInvalidArgument)
	}
	q := o.pre.Preprocess(ctx, content)

	o.mu.Lock()
	defer o.mu.Unlock()

	turn := o.stm.Add(role, content, q.Embedding, q.Intent, q.Keywords)
	o.turnsSinceSummary++
	if o.turnsSinceSummary < o.cfg.SummarizeEvery {
		return turn, nil
	}

	recent, err := o.stm.GetRecent(o.cfg.SummarizeEvery, nil)
	if err != nil {
		return turn, fmt.Errorf("collect turns for promotion: %w", err)
	}
	turns := make([]memory.Turn, len(recent))
	for i, st := range recent {
		turns[i] = st.Turn
	}
	chunk, err := o.summarizer.Summarize(ctx, turns)
	if err != nil {
		return turn, fmt.Errorf("summarize: %w", err)
	}
	o.mtm.AddChunk(ctx, chunk)
	o.turnsSinceSummary = 0
	o.logger.Debug("promoted turns to mid-term memory",
		zap.Int("turns", len(turns)),
		zap.String("chunk", chunk.ID))
	return turn, nil
}

// GetContext retrieves, aggregates and compresses memory for a query.
func (o *Orchestrator) GetContext(ctx context.Context, query string, opts ContextOptions) (Bundle, error) {
	if opts.NRecent < 0 || opts.NChunks < 0 || opts.NLTM < 0 || opts.MaxTokens < 0 {
		return Bundle{}, fmt.Errorf("%w: negative retrieval parameter", ErrInvalidArgument)
	}
	opts.applyDefaults()
	start := time.Now()

	q := o.pre.Preprocess(ctx, query)
	bundle := Bundle{
		Query: QueryInfo{
			Raw:               q.Raw,
			Normalized:        q.Normalized,
			Intent:            q.Intent,
			Keywords:          q.Keywords,
			EmbeddingPresent:  q.EmbeddingPresent(),
			EmbeddingFallback: q.EmbeddingFallback,
		},
	}
	bundle.TimingsMS.Preprocess = time.Since(start).Milliseconds()

	if q.Normalized == "" {
		bundle.TimingsMS.Total = time.Since(start).Milliseconds()
		return bundle, nil
	}

	stmItems, mtmItems, ltmItems := o.retrieveTiers(ctx, q, opts, &bundle)
	bundle.Counts = Counts{STM: len(stmItems), MTM: len(mtmItems), LTM: len(ltmItems)}

	aggStart := time.Now()
	aggregated := o.agg.Aggregate(stmItems, mtmItems, ltmItems, q.Embedding)
	bundle.TimingsMS.Aggregate = time.Since(aggStart).Milliseconds()

	budget := opts.MaxTokens
	if budget == 0 {
		budget = o.comp.DefaultMaxTokens()
	}
	compStart := time.Now()
	compressed, err := o.comp.Compress(aggregated, budget, true)
	if err != nil {
		return Bundle{}, fmt.Errorf("compress: %w", err)
	}
	bundle.TimingsMS.Compress = time.Since(compStart).Milliseconds()

	bundle.Items = compressed.Items
	bundle.Compression = compressed
	bundle.TimingsMS.Total = time.Since(start).Milliseconds()
	return bundle, nil
}

// retrieveTiers runs the three tier retrievals in parallel, each under
// its own deadline. Failures and timeouts empty the tier and are
// recorded on the bundle; they never fail the call.
func (o *Orchestrator) retrieveTiers(ctx context.Context, q preprocess.Query, opts ContextOptions, bundle *Bundle) ([]memory.ScoredTurn, []memory.ScoredChunk, []ltm.Item) {
	var (
		stmItems []memory.ScoredTurn
		mtmItems []memory.ScoredChunk
		ltmItems []ltm.Item
		mu       sync.Mutex
		wg       sync.WaitGroup
	)

	note := func(tier string, elapsed time.Duration, timedOut bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		ms := elapsed.Milliseconds()
		switch tier {
		case "stm":
			bundle.TimingsMS.STM = ms
		case "mtm":
			bundle.TimingsMS.MTM = ms
		case "ltm":
			bundle.TimingsMS.LTM = ms
		}
		if timedOut {
			bundle.Timeouts = append(bundle.Timeouts, tier)
			o.logger.Warn("tier retrieval timed out", zap.String("tier", tier))
		} else if err != nil {
			bundle.Errors = append(bundle.Errors, fmt.Sprintf("%s: %v", tier, err))
			o.logger.Warn("tier retrieval failed", zap.String("tier", tier), zap.Error(err))
		}
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		start := time.Now()
		items, timedOut, err := runWithDeadline(ctx, o.cfg.TierDeadline, func(context.Context) ([]memory.ScoredTurn, error) {
			if opts.SkipEmbeddingSearch || !q.EmbeddingPresent() {
				return o.stm.GetRecent(opts.NRecent, nil)
			}
			return o.stm.GetRecent(opts.NRecent, q.Embedding)
		})
		if err == nil && !timedOut {
			stmItems = items
		}
		note("stm", time.Since(start), timedOut, err)
	}()
	go func() {
		defer wg.Done()
		start := time.Now()
		items, timedOut, err := runWithDeadline(ctx, o.cfg.TierDeadline, func(context.Context) ([]memory.ScoredChunk, error) {
			if opts.SkipEmbeddingSearch || !q.EmbeddingPresent() {
				chunks := o.mtm.GetRecentChunks(opts.NChunks)
				scored := make([]memory.ScoredChunk, len(chunks))
				for i, c := range chunks {
					scored[i] = memory.ScoredChunk{Chunk: c}
				}
				return scored, nil
			}
			return o.mtm.SearchByEmbedding(q.Embedding, opts.NChunks)
		})
		if err == nil && !timedOut {
			mtmItems = items
		}
		note("mtm", time.Since(start), timedOut, err)
	}()
	go func() {
		defer wg.Done()
		if opts.SkipLTM || o.hybrid == nil {
			note("ltm", 0, false, nil)
			return
		}
		start := time.Now()
		result, timedOut, err := runWithDeadline(ctx, o.cfg.TierDeadline, func(tctx context.Context) (ltm.Result, error) {
			return o.hybrid.Query(tctx, ltm.QueryInput{
				Text:      q.Normalized,
				Embedding: q.Embedding,
				TopK:      opts.NLTM,
			})
		})
		if err == nil && !timedOut {
			ltmItems = result.Items
		}
		note("ltm", time.Since(start), timedOut, err)
	}()
	wg.Wait()

	return stmItems, mtmItems, ltmItems
}

type tierOutcome[T any] struct {
	value T
	err   error
}

// runWithDeadline executes fn with a deadline; on expiry the result is
// abandoned and timedOut is set. Cancellation of the parent context is
// reported as its error, not as a timeout.
func runWithDeadline[T any](ctx context.Context, deadline time.Duration, fn func(context.Context) (T, error)) (T, bool, error) {
	tctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ch := make(chan tierOutcome[T], 1)
	go func() {
		value, err := fn(tctx)
		ch <- tierOutcome[T]{value: value, err: err}
	}()

	select {
	case out := <-ch:
		return out.value, false, out.err
	case <-tctx.Done():
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, false, err
		}
		return zero, true, nil
	}
}

// SaveSnapshot persists both tiers plus the promotion counter.
func (o *Orchestrator) SaveSnapshot(path string) error {
	o.mu.Lock()
	counter := o.turnsSinceSummary
	o.mu.Unlock()

	return memory.SaveSnapshot(path, memory.Snapshot{
		STM:          o.stm.Turns(),
		MTM:          o.mtm.Chunks(),
		Counters:     memory.Counters{TurnsSinceLastSummary: counter},
		EmbeddingDim: o.cfg.EmbeddingDim,
	})
}

// LoadSnapshot restores tier state from disk. On failure the tiers are
// left untouched and ok is false.
func (o *Orchestrator) LoadSnapshot(path string) (bool, error) {
	snap, ok, err := memory.LoadSnapshot(path)
	if !ok {
		return false, err
	}
	if o.cfg.EmbeddingDim != 0 && snap.EmbeddingDim != 0 && snap.EmbeddingDim != o.cfg.EmbeddingDim {
		return false, fmt.Errorf("snapshot embedding dim %d does not match configured %d",
			snap.EmbeddingDim, o.cfg.EmbeddingDim)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.stm.Restore(snap.STM)
	o.mtm.Restore(snap.MTM)
	o.turnsSinceSummary = snap.Counters.TurnsSinceLastSummary
	return true, nil
}

// Stats reports current tier sizes and the promotion counter.
func (o *Orchestrator) Stats() (stmLen, mtmLen, sinceSummary int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stm.Len(), o.mtm.Len(), o.turnsSinceSummary
}
