package memory

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
)

// LLMSummarizeFunc produces a summary of the given turns via an external
// model. Returning an error triggers the local fallback.
type LLMSummarizeFunc func(ctx context.Context, turns []Turn) (string, error)

// highSignalIntents mark conversations worth remembering.
var highSignalIntents = map[string]bool{
	"debug":       true,
	"code_search": true,
}

// avgTokensCeiling is where the token component of importance saturates.
const avgTokensCeiling = 80.0

// Summarizer compresses groups of turns into mid-term chunks.
//
// Summaries are produced by the injected LLM capability when present,
// falling back silently to a deterministic extractive summary. The chunk
// embedding is computed from the summary text.
type Summarizer struct {
	provider embeddings.Provider
	llm      LLMSummarizeFunc
	logger   *zap.Logger
}

// NewSummarizer creates a summarizer. llm may be nil for local-only mode.
func NewSummarizer(provider embeddings.Provider, llm LLMSummarizeFunc, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{provider: provider, llm: llm, logger: logger}
}

// Summarize produces one chunk from the given turns.
func (s *Summarizer) Summarize(ctx context.Context, turns []Turn) (Chunk, error) {
	if len(turns) == 0 {
		return Chunk{}, ErrNoTurns
	}

	summary := s.summaryText(ctx, turns)
	topics := topicUnion(turns)

	chunk := Chunk{
		ID:            uuid.NewString(),
		Summary:       summary,
		SourceTurnIDs: turnIDs(turns),
		Topics:        topics,
		Importance:    importance(turns),
		MessageCount:  len(turns),
		CreatedAt:     time.Now().UTC(),
	}

	if s.provider != nil {
		vec, err := s.provider.EmbedQuery(ctx, summary)
		if err != nil {
			s.logger.Warn("chunk embedding failed", zap.Error(err))
		} else {
			chunk.Embedding = vec
		}
	}
	return chunk, nil
}

func (s *Summarizer) summaryText(ctx context.Context, turns []Turn) string {
	if s.llm != nil {
		summary, err := s.llm(ctx, turns)
		if err == nil && strings.TrimSpace(summary) != "" {
			return summary
		}
		if err != nil {
			s.logger.Debug("llm summarize failed, using local mode", zap.Error(err))
		}
	}
	return localSummary(turns)
}

// localSummary is the deterministic extractive mode: first and last turn
// plus the topic and intent unions.
func localSummary(turns []Turn) string {
	first := turns[0]
	last := turns[len(turns)-1]

	var b strings.Builder
	fmt.Fprintf(&b, "Conversation of %d messages", len(turns))
	if topics := topicUnion(turns); len(topics) > 0 {
		fmt.Fprintf(&b, " covering %s", strings.Join(topics, ", "))
	}
	if intents := intentUnion(turns); len(intents) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(intents, ", "))
	}
	fmt.Fprintf(&b, ". Opened with %s: %s.", first.Role, clip(first.Content, 120))
	if len(turns) > 1 {
		fmt.Fprintf(&b, " Ended with %s: %s.", last.Role, clip(last.Content, 120))
	}
	return b.String()
}

// importance is a documented linear combination of average turn length
// and the presence of high-signal intents, clamped to [0, 1].
func importance(turns []Turn) float64 {
	total := 0
	signal := 0.0
	for _, t := range turns {
		total += t.TokenEstimate
		if highSignalIntents[t.Intent] {
			signal = 1.0
		}
	}
	avg := float64(total) / float64(len(turns))
	tokenScore := avg / avgTokensCeiling
	if tokenScore > 1 {
		tokenScore = 1
	}
	return 0.5*tokenScore + 0.5*signal
}

func topicUnion(turns []Turn) []string {
	seen := make(map[string]bool)
	var topics []string
	for _, t := range turns {
		for _, k := range t.Keywords {
			lk := strings.ToLower(k)
			if !seen[lk] {
				seen[lk] = true
				topics = append(topics, k)
			}
		}
	}
	return topics
}

func intentUnion(turns []Turn) []string {
	seen := make(map[string]bool)
	var intents []string
	for _, t := range turns {
		if t.Intent == "" || seen[t.Intent] {
			continue
		}
		seen[t.Intent] = true
		intents = append(intents, t.Intent)
	}
	return intents
}

func turnIDs(turns []Turn) []string {
	ids := make([]string, len(turns))
	for i, t := range turns {
		ids[i] = t.ID
	}
	return ids
}

func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	// Back off to a rune boundary so the cut never leaves invalid UTF-8.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "…"
}
