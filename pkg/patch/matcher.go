package patch

import (
	"strings"

	"github.com/chisel-dev/chisel/pkg/errors"
)

// Strategy identifies which matching stage located a block.
type Strategy string

const (
	StrategyExact      Strategy = "exact"
	StrategyWhitespace Strategy = "whitespace"
	StrategyFuzzy      Strategy = "fuzzy"
)

// FuzzyThreshold is the minimum normalized similarity for a fuzzy match.
const FuzzyThreshold = 0.8

// scoreEpsilon keeps scores computed as 1 - d/len from falling on the wrong
// side of the threshold through float rounding.
const scoreEpsilon = 1e-9

// candidate is an internal scratch value produced by the matching stages.
type candidate struct {
	startLine int
	score     float64
	strategy  Strategy
}

// findLenientMatch locates the search block inside the file lines after the
// exact substring stage has already come up empty, trying
// indentation-insensitive then fuzzy matching. Ambiguity at the whitespace
// stage is an error, never auto-resolved.
func findLenientMatch(fileLines, searchLines []string, threshold float64) (candidate, error) {
	if c, ok, err := matchWhitespace(fileLines, searchLines); err != nil || ok {
		return c, err
	}
	return matchFuzzy(fileLines, searchLines, threshold)
}

// matchWhitespace compares with leading/trailing whitespace stripped from
// every line on both sides.
func matchWhitespace(fileLines, searchLines []string) (candidate, bool, error) {
	var hits []int
	for start := 0; start+len(searchLines) <= len(fileLines); start++ {
		if linesEqualTrimmed(fileLines[start:start+len(searchLines)], searchLines) {
			hits = append(hits, start)
		}
	}
	return resolveHits(hits, StrategyWhitespace)
}

func resolveHits(hits []int, strategy Strategy) (candidate, bool, error) {
	switch len(hits) {
	case 0:
		return candidate{}, false, nil
	case 1:
		return candidate{startLine: hits[0], score: 1.0, strategy: strategy}, true, nil
	default:
		return candidate{}, false, errors.New(errors.ErrCodeAmbiguousMatch, "search text matches multiple regions").
			WithContext("strategy", string(strategy)).
			WithContext("occurrences", len(hits))
	}
}

func linesEqualTrimmed(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if strings.TrimSpace(a[i]) != strings.TrimSpace(b[i]) {
			return false
		}
	}
	return true
}

// matchFuzzy slides a window of the search block's line count across the
// file in middle-out order, scoring each window with normalized Levenshtein
// similarity. The first window at the best score wins, so ties go to the
// window nearest the file's midpoint.
func matchFuzzy(fileLines, searchLines []string, threshold float64) (candidate, error) {
	windowCount := len(fileLines) - len(searchLines) + 1
	if windowCount <= 0 {
		return candidate{}, errors.New(errors.ErrCodeNoMatch, "search block is longer than the file").
			WithContext("best_score", 0.0)
	}

	needle := normalizeForFuzzy(strings.Join(searchLines, "\n"))

	best := candidate{startLine: -1, score: -1, strategy: StrategyFuzzy}
	for _, start := range middleOutOrder(windowCount) {
		window := normalizeForFuzzy(strings.Join(fileLines[start:start+len(searchLines)], "\n"))
		score := similarity(window, needle)
		if score > best.score {
			best = candidate{startLine: start, score: score, strategy: StrategyFuzzy}
		}
	}

	if best.score < threshold-scoreEpsilon {
		return candidate{}, errors.New(errors.ErrCodeNoMatch, "no region similar enough to the search text").
			WithContext("best_score", best.score).
			WithContext("threshold", threshold)
	}
	return best, nil
}

// middleOutOrder yields window start indices expanding outward from the
// midpoint: mid, mid+1, mid-1, mid+2, mid-2, ...
func middleOutOrder(n int) []int {
	order := make([]int, 0, n)
	mid := n / 2
	order = append(order, mid)
	for delta := 1; len(order) < n; delta++ {
		if mid+delta < n {
			order = append(order, mid+delta)
		}
		if mid-delta >= 0 {
			order = append(order, mid-delta)
		}
	}
	return order
}

// normalizeForFuzzy folds typographic variants the model tends to introduce
// (smart quotes, non-breaking spaces) before scoring.
var fuzzyNormalizer = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	" ", " ", // non-breaking space
	"–", "-", // en dash
	"—", "-", // em dash
)

func normalizeForFuzzy(s string) string {
	return fuzzyNormalizer.Replace(s)
}

// similarity returns 1 - distance/max(len1, len2) over runes.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(maxLen)
}

// levenshtein computes edit distance with the two-row dynamic programming
// formulation.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
