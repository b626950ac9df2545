// Package pattern clusters refinements into recurring patterns and manages
// the tracking -> ready -> generalized/dismissed lifecycle. Two refinements
// belong to the same pattern when they hit the same skill and section and
// their payloads overlap beyond a fixed similarity bar.
package pattern

import (
	"strings"
	"unicode"

	"github.com/jdeola/skillbase/pkg/patch"
)

// SimilarityThreshold is the payload overlap a refinement must clear to join
// an existing pattern. It is part of the matching contract, not a tunable.
const SimilarityThreshold = 0.70

// Similarity returns the token-set Jaccard overlap of two payloads in [0, 1].
// Tokens are lowercased alphanumeric runs, so formatting and punctuation
// differences do not separate otherwise identical fixes.
func Similarity(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	intersection := 0
	for token := range tokensA {
		if tokensB[token] {
			intersection++
		}
	}
	union := len(tokensA) + len(tokensB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	tokens := map[string]bool{}
	for _, token := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tokens[token] = true
	}
	return tokens
}

// Consistent reports whether a member set is uniform enough to promote: all
// ops share one target path and action, and every pair of payloads clears
// the similarity threshold (pairwise, not just against a representative).
func Consistent(ops []patch.Op) bool {
	if len(ops) == 0 {
		return false
	}
	first := ops[0]
	for _, op := range ops[1:] {
		if op.TargetPath != first.TargetPath || op.Action != first.Action {
			return false
		}
	}
	for i := range ops {
		for j := i + 1; j < len(ops); j++ {
			// delete ops carry no payload; identical emptiness is agreement
			if ops[i].Payload == "" && ops[j].Payload == "" {
				continue
			}
			if Similarity(ops[i].Payload, ops[j].Payload) <= SimilarityThreshold {
				return false
			}
		}
	}
	return true
}
