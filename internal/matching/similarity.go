// =============================================================================
// Storage Billing - Similarity Matcher
// =============================================================================
//
// Approximate string equality used to resolve free-text inventory labels
// against catalog labels.
//
// METRIC:
//   Both strings are trimmed and upper-cased, then compared character by
//   character with the Ratcliff/Obershelp "gestalt" algorithm (the same
//   algorithm as a SequenceMatcher ratio):
//
//     ratio = 2 * M / T
//
//   where M is the number of matched characters and T the total length of
//   both strings. The acceptance threshold below was tuned against this
//   metric; an edit-distance metric would change which labels match.
//
// =============================================================================

package matching

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultThreshold is the score a candidate must strictly exceed.
const DefaultThreshold = 0.85

// ScoreFunc scores two strings in [0, 1].
type ScoreFunc func(a, b string) float64

// Normalize trims surrounding whitespace and upper-cases s.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Score returns the similarity of a and b after normalization.
func Score(a, b string) float64 {
	return Ratio(Normalize(a), Normalize(b))
}

// Ratio returns the gestalt similarity of a and b as given, per code point.
func Ratio(a, b string) float64 {
	return difflib.NewMatcher(splitRunes(a), splitRunes(b)).Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// =============================================================================
// MATCHER
// =============================================================================

// Matcher pairs a scoring function with an acceptance threshold.
type Matcher struct {
	// Threshold is exclusive: a score equal to it is rejected.
	Threshold float64

	// Score compares two raw labels. Defaults to Score.
	Score ScoreFunc
}

// NewMatcher returns a matcher using Score and the given threshold.
func NewMatcher(threshold float64) Matcher {
	return Matcher{Threshold: threshold, Score: Score}
}

// DefaultMatcher returns a matcher using Score and DefaultThreshold.
func DefaultMatcher() Matcher {
	return NewMatcher(DefaultThreshold)
}

func (m Matcher) score(a, b string) float64 {
	if m.Score == nil {
		return Score(a, b)
	}
	return m.Score(a, b)
}

// Best returns the index of the first candidate with the highest score
// strictly above the threshold, or -1 when none qualifies.
//
// The running best starts at the threshold and only a strictly higher score
// replaces it, so among exactly tied candidates the earliest one wins.
func (m Matcher) Best(query string, candidates []string) int {
	best := -1
	bestScore := m.Threshold

	for i, c := range candidates {
		if s := m.score(query, c); s > bestScore {
			best = i
			bestScore = s
		}
	}

	return best
}
