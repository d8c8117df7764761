package memory

import (
	"errors"
	"time"
)

// Sentinel errors for tier operations.
var (
	// ErrNoTurns is returned when summarization is asked for zero turns.
	ErrNoTurns = errors.New("no turns to summarize")

	// ErrInvalidArgument indicates a bad call argument.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Role tags the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is a single message in short-term memory.
type Turn struct {
	ID            string    `json:"id"`
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	Embedding     []float32 `json:"embedding,omitempty"`
	Intent        string    `json:"intent,omitempty"`
	Keywords      []string  `json:"keywords,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	TokenEstimate int       `json:"token_estimate"`
}

// Chunk is a summarized group of turns in mid-term memory.
type Chunk struct {
	ID            string    `json:"id"`
	Summary       string    `json:"summary"`
	SourceTurnIDs []string  `json:"source_turn_ids"`
	Topics        []string  `json:"topics,omitempty"`
	Embedding     []float32 `json:"embedding,omitempty"`
	Importance    float64   `json:"importance"`
	MessageCount  int       `json:"message_count"`
	CreatedAt     time.Time `json:"created_at"`

	// GraphMirrorID is the Summary node id when the mid-term graph
	// mirror is enabled.
	GraphMirrorID string `json:"graph_mirror_id,omitempty"`
}

// ScoredTurn is a turn with the similarity attached by a search.
type ScoredTurn struct {
	Turn
	Similarity float32 `json:"similarity"`
}

// ScoredChunk is a chunk with the score attached by a search.
type ScoredChunk struct {
	Chunk
	Score float32 `json:"score"`
}

// EstimateTokens approximates token count as ceil(chars/4).
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
