package generate

import (
	"math"

	sudhar "github.com/sudhar-ne/sudhar"
)

// Rank pairs each generated sequence with exp(score) and drops repeated
// sequences. The first occurrence wins and beam order is preserved; the
// result is not re-sorted by probability.
func Rank(sequences []string, scores []float64) []sudhar.Candidate {
	n := min(len(sequences), len(scores))
	seen := make(map[string]bool, n)
	candidates := make([]sudhar.Candidate, 0, n)
	for i := 0; i < n; i++ {
		seq := sequences[i]
		if seen[seq] {
			continue
		}
		seen[seq] = true
		candidates = append(candidates, sudhar.Candidate{
			Text:        seq,
			Probability: math.Exp(scores[i]),
		})
	}
	return candidates
}
