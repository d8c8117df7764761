package compression_test

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryd/internal/aggregate"
	"github.com/fyrsmithlabs/memoryd/internal/compression"
)

// item builds an aggregate item whose content estimates to the given
// token count under the default chars/4 estimator.
func item(source string, score float64, tokens int, createdAt time.Time) aggregate.Item {
	return aggregate.Item{
		Source:     source,
		Content:    strings.Repeat("x", tokens*4),
		FinalScore: score,
		CreatedAt:  createdAt,
	}
}

func TestCompress_Truncate(t *testing.T) {
	comp := compression.New(compression.Config{Strategy: compression.StrategyTruncate}, nil, nil)
	now := time.Now()

	items := []aggregate.Item{
		item(aggregate.SourceSTM, 0.9, 100, now),
		item(aggregate.SourceSTM, 0.8, 100, now),
		item(aggregate.SourceSTM, 0.7, 100, now),
	}
	result, err := comp.Compress(items, 250, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ItemsKept)
	assert.Equal(t, 200, result.TotalTokens)
	assert.Equal(t, 1, result.ItemsRemoved)
	assert.InDelta(t, 200.0/300.0, result.CompressionRatio, 1e-9)
}

func TestCompress_ScoreBasedPreserveRecent(t *testing.T) {
	comp := compression.New(compression.Config{
		Strategy:            compression.StrategyScoreBased,
		PreserveRecentCount: 2,
	}, nil, nil)
	now := time.Now()

	// Eight 100-token items; the two most recent short-term items carry
	// the lowest scores.
	var items []aggregate.Item
	for i := 0; i < 6; i++ {
		items = append(items, item(aggregate.SourceLTM, 0.9-float64(i)*0.05, 100, now.Add(-time.Hour)))
	}
	recent1 := item(aggregate.SourceSTM, 0.05, 100, now)
	recent2 := item(aggregate.SourceSTM, 0.04, 100, now.Add(-time.Minute))
	items = append(items, recent1, recent2)

	result, err := comp.Compress(items, 500, true)
	require.NoError(t, err)
	assert.Equal(t, 5, result.ItemsKept)
	assert.LessOrEqual(t, result.TotalTokens, 500)

	var stmKept int
	for _, kept := range result.Items {
		if kept.Source == aggregate.SourceSTM {
			stmKept++
		}
	}
	assert.Equal(t, 2, stmKept, "both recent short-term items must survive")
}

func TestCompress_ScoreBasedWithoutPreserve(t *testing.T) {
	comp := compression.New(compression.Config{Strategy: compression.StrategyScoreBased}, nil, nil)
	now := time.Now()

	items := []aggregate.Item{
		item(aggregate.SourceSTM, 0.1, 100, now),
		item(aggregate.SourceLTM, 0.9, 100, now),
		item(aggregate.SourceMTM, 0.5, 100, now),
	}
	result, err := comp.Compress(items, 200, false)
	require.NoError(t, err)
	require.Equal(t, 2, result.ItemsKept)
	assert.Equal(t, 0.9, result.Items[0].FinalScore)
	assert.Equal(t, 0.5, result.Items[1].FinalScore)
}

func TestCompress_MMRPrefersDiversity(t *testing.T) {
	comp := compression.New(compression.Config{Strategy: compression.StrategyMMR}, nil, nil)
	now := time.Now()

	near := item(aggregate.SourceMTM, 0.85, 50, now)
	near.Embedding = []float32{1, 0}
	top := item(aggregate.SourceMTM, 0.9, 50, now)
	top.Embedding = []float32{1, 0}
	diverse := item(aggregate.SourceMTM, 0.6, 50, now)
	diverse.Embedding = []float32{0, 1}

	result, err := comp.Compress([]aggregate.Item{near, top, diverse}, 100, false)
	require.NoError(t, err)
	require.Equal(t, 2, result.ItemsKept)
	assert.Equal(t, 0.9, result.Items[0].FinalScore)
	// The diverse item beats the redundant near-duplicate.
	assert.Equal(t, 0.6, result.Items[1].FinalScore)
}

func TestCompress_ZeroBudget(t *testing.T) {
	comp := compression.New(compression.Config{}, nil, nil)
	result, err := comp.Compress([]aggregate.Item{item(aggregate.SourceSTM, 1, 10, time.Now())}, 0, false)
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Zero(t, result.TotalTokens)
	assert.Zero(t, result.CompressionRatio)
}

func TestCompress_NegativeBudget(t *testing.T) {
	comp := compression.New(compression.Config{}, nil, nil)
	_, err := comp.Compress(nil, -1, false)
	assert.ErrorIs(t, err, compression.ErrInvalidArgument)
}

func TestCompress_SingleOversizedItem(t *testing.T) {
	comp := compression.New(compression.Config{Strategy: compression.StrategyTruncate}, nil, nil)
	result, err := comp.Compress([]aggregate.Item{item(aggregate.SourceLTM, 1, 100, time.Now())}, 30, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.ItemsKept)
	assert.True(t, result.Items[0].Truncated)
	assert.LessOrEqual(t, result.Items[0].Tokens, 30)
	assert.Len(t, result.Items[0].Content, 120)
}

func TestCompress_OversizedMultibyteClip(t *testing.T) {
	comp := compression.New(compression.Config{Strategy: compression.StrategyTruncate}, nil, nil)
	over := aggregate.Item{
		Source:  aggregate.SourceLTM,
		Content: "a" + strings.Repeat("世", 60),
	}
	result, err := comp.Compress([]aggregate.Item{over}, 30, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.ItemsKept)
	assert.True(t, result.Items[0].Truncated)
	assert.True(t, utf8.ValidString(result.Items[0].Content))
	assert.LessOrEqual(t, len(result.Items[0].Content), 120)
}

func TestCompress_CustomEstimator(t *testing.T) {
	// Every item costs a flat 7 tokens.
	comp := compression.New(compression.Config{Strategy: compression.StrategyTruncate}, func(string) int { return 7 }, nil)
	result, err := comp.Compress([]aggregate.Item{
		item(aggregate.SourceSTM, 1, 100, time.Now()),
		item(aggregate.SourceSTM, 1, 100, time.Now()),
	}, 14, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ItemsKept)
	assert.Equal(t, 14, result.TotalTokens)
}
