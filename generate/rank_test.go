package generate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankKeepsFirstOccurrenceOrder(t *testing.T) {
	scores := []float64{-0.05, -0.4, -0.01, -1.2}
	got := Rank([]string{"a", "b", "a", "c"}, scores)

	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Text)
	assert.InDelta(t, math.Exp(scores[0]), got[0].Probability, 1e-12)
	assert.Equal(t, "b", got[1].Text)
	assert.InDelta(t, math.Exp(scores[1]), got[1].Probability, 1e-12)
	assert.Equal(t, "c", got[2].Text)
	assert.InDelta(t, math.Exp(scores[3]), got[2].Probability, 1e-12)
}

func TestRankDoesNotResort(t *testing.T) {
	got := Rank([]string{"low", "high"}, []float64{-3, -0.1})
	require.Len(t, got, 2)
	assert.Equal(t, "low", got[0].Text)
	assert.Less(t, got[0].Probability, got[1].Probability)
}

func TestRankDistinctCount(t *testing.T) {
	seqs := []string{"x", "x", "x", "y", "y"}
	got := Rank(seqs, []float64{-1, -2, -3, -4, -5})
	assert.Len(t, got, 2)
}

func TestRankZeroScoreIsCertain(t *testing.T) {
	got := Rank([]string{"म"}, []float64{0})
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Probability)
}

func TestRankMismatchedLengths(t *testing.T) {
	assert.Len(t, Rank([]string{"a", "b", "c"}, []float64{-1}), 1)
	assert.Len(t, Rank([]string{"a"}, []float64{-1, -2}), 1)
	assert.Empty(t, Rank(nil, nil))
	assert.NotNil(t, Rank(nil, nil))
}
