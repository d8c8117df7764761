package preprocess

import (
	"context"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
)

// Intent vocabulary.
const (
	IntentCodeSearch    = "code_search"
	IntentDebug         = "debug"
	IntentDocumentation = "documentation"
	IntentCommitLog     = "commit_log"
	IntentGeneral       = "general"
)

// maxKeywords caps extracted keywords per query.
const maxKeywords = 10

// Query is the preprocessed form of a raw query.
type Query struct {
	Raw        string    `json:"raw"`
	Normalized string    `json:"normalized"`
	Embedding  []float32 `json:"-"`
	Intent     string    `json:"intent"`
	Keywords   []string  `json:"keywords"`
	Timestamp  time.Time `json:"timestamp"`

	// EmbeddingFallback is set when the embedding came from the
	// deterministic hash provider rather than a model.
	EmbeddingFallback bool `json:"embedding_fallback"`
}

// EmbeddingPresent reports whether the query carries an embedding.
func (q Query) EmbeddingPresent() bool {
	return len(q.Embedding) > 0
}

// intentRules maps trigger phrases to intents, checked in order. Multi-word
// phrases match as substrings of the normalized text, single words as
// whole tokens.
var intentRules = []struct {
	intent   string
	triggers []string
}{
	{IntentDebug, []string{"bug", "error", "fix", "debug", "issue", "problem", "crash", "panic", "traceback", "broken", "fails", "failing"}},
	{IntentCodeSearch, []string{"find", "search", "locate", "where is", "show me", "implementation", "defined"}},
	{IntentCommitLog, []string{"commit", "history", "changelog", "git log", "version", "released"}},
	{IntentDocumentation, []string{"explain", "what is", "how to", "how does", "document", "describe", "usage"}},
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "what": true, "how": true, "where": true, "when": true,
	"why": true, "who": true, "can": true, "you": true, "your": true,
	"are": true, "was": true, "were": true, "has": true, "have": true,
	"had": true, "does": true, "did": true, "not": true, "but": true,
	"all": true, "any": true, "our": true, "out": true, "get": true,
	"about": true, "into": true, "from": true, "there": true, "their": true,
	"they": true, "them": true, "then": true, "than": true, "its": true,
	"please": true, "could": true, "would": true, "should": true,
	"show": true, "tell": true,
}

// Preprocessor normalizes queries and attaches intent, keywords and an
// embedding.
type Preprocessor struct {
	provider embeddings.Provider
	logger   *zap.Logger
}

// New creates a preprocessor. provider may be nil for text-only queries.
func New(provider embeddings.Provider, logger *zap.Logger) *Preprocessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preprocessor{provider: provider, logger: logger}
}

// Preprocess builds a Query from raw text. An empty or whitespace-only
// input yields a Query with empty normalized text and no embedding.
func (p *Preprocessor) Preprocess(ctx context.Context, raw string) Query {
	normalized := Normalize(raw)
	q := Query{
		Raw:        raw,
		Normalized: normalized,
		Intent:     DetectIntent(normalized),
		Keywords:   ExtractKeywords(normalized),
		Timestamp:  time.Now().UTC(),
	}
	if p.provider != nil && normalized != "" {
		vec, err := p.provider.EmbedQuery(ctx, normalized)
		if err != nil {
			p.logger.Warn("query embedding failed", zap.Error(err))
		} else {
			q.Embedding = vec
			q.EmbeddingFallback = embeddings.Deterministic(p.provider)
		}
	}
	return q
}

// Normalize lowercases, strips punctuation (keeping ? ! . _ -) and
// collapses whitespace.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToLower(raw) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '?' || r == '!' || r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// DetectIntent classifies normalized text into the intent vocabulary.
func DetectIntent(normalized string) string {
	if normalized == "" {
		return IntentGeneral
	}
	tokens := make(map[string]bool)
	for _, tok := range strings.Fields(normalized) {
		tokens[strings.Trim(tok, "?!.")] = true
	}
	for _, rule := range intentRules {
		for _, trigger := range rule.triggers {
			if strings.Contains(trigger, " ") {
				if strings.Contains(normalized, trigger) {
					return rule.intent
				}
			} else if tokens[trigger] {
				return rule.intent
			}
		}
	}
	return IntentGeneral
}

// ExtractKeywords returns content words of the normalized text: length
// at least 3, not stopwords, uniquified preserving order, capped.
func ExtractKeywords(normalized string) []string {
	seen := make(map[string]bool)
	var keywords []string
	for _, tok := range strings.Fields(normalized) {
		word := strings.Trim(tok, "?!.-_")
		if len(word) < 3 || stopwords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}
