package inference

import (
	"strings"
)

// implementationVocabulary flags descriptions that talk about mechanism
// instead of observable outcome. The list is deliberately conservative:
// false negatives only lower audit quality, false positives would pollute
// good atoms with ambiguity flags.
var implementationVocabulary = []string{
	"mutex", "goroutine", "thread", "callback", "pointer", "refactor",
	"variable", "instantiate", "singleton", "subclass", "middleware stack",
	"for loop", "while loop", "hash map", "hashmap", "linked list",
	"sql query", "database table", "json field", "private method",
	"helper function", "struct field", "array index",
}

// conjunctionMarkers flag descriptions that bundle several behaviors into
// one atom.
var conjunctionMarkers = []string{
	"; and", " and also ", " as well as ", " in addition to ", "; additionally",
}

// validateDescription returns ambiguity reasons for a model-produced
// description. An empty result means the description passed both textual
// constraints.
func validateDescription(description string) []string {
	var reasons []string
	lower := strings.ToLower(description)

	for _, word := range implementationVocabulary {
		if strings.Contains(lower, word) {
			reasons = append(reasons,
				"description references implementation detail: "+word)
			break
		}
	}
	for _, marker := range conjunctionMarkers {
		if strings.Contains(lower, marker) {
			reasons = append(reasons,
				"description bundles multiple behaviors into one atom")
			break
		}
	}
	return reasons
}

// normalizeConfidence accepts 0-100 or 0-1 scales and returns 0-100.
// Values at or below 1.0 are treated as fractions.
func normalizeConfidence(raw float64) int {
	if raw <= 1.0 && raw >= 0 {
		raw *= 100
	}
	if raw < 0 {
		return 0
	}
	if raw > 100 {
		return 100
	}
	return int(raw + 0.5)
}
