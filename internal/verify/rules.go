package verify

import "github.com/specdrift/specdrift/internal/types"

// Rule weights sum to exactly 100.
const (
	weightDescription     = 25
	weightOutcomes        = 15
	weightCategory        = 15
	weightReasoning       = 10
	weightConfidence      = 15
	weightNoAmbiguity     = 10
	weightSourceReference = 10
)

// RuleScore computes the deterministic 0-100 quality score for an atom.
// It is the authoritative fallback for every scoring strategy.
func RuleScore(atom types.InferredAtom) int {
	score := 0
	if len(atom.Description) > 5 {
		score += weightDescription
	}
	if len(atom.ObservableOutcomes) >= 1 {
		score += weightOutcomes
	}
	if atom.Category != "" {
		score += weightCategory
	}
	if len(atom.Reasoning) > 10 {
		score += weightReasoning
	}
	if atom.Confidence >= 50 {
		score += weightConfidence
	}
	if len(atom.AmbiguityReasons) == 0 {
		score += weightNoAmbiguity
	}
	if atom.SourceReference.FilePath != "" && atom.SourceReference.Name != "" {
		score += weightSourceReference
	}
	return score
}
