// Package namematch scores how likely two free-text person names refer to the same person.
package namematch

import (
	"regexp"
	"strings"
	"unicode"
)

// MatchType tags which rule produced a score.
type MatchType string

const (
	MatchNone      MatchType = ""
	MatchExact     MatchType = "exact"
	MatchFirstName MatchType = "first_name"
	MatchPartial   MatchType = "partial"
	MatchFuzzy     MatchType = "fuzzy"
)

// Rule confidences and thresholds.
const (
	ExactConfidence     = 1.0
	FirstNameConfidence = 0.9
	PartialConfidence   = 0.8
	FuzzyThreshold      = 0.6
	minTokenLength      = 3
)

// Score is the outcome of comparing two names.
type Score struct {
	Confidence float64   `json:"confidence"`
	Type       MatchType `json:"match_type"`
}

// Matched reports whether any rule fired.
func (s Score) Matched() bool {
	return s.Type != MatchNone
}

// Normalize lowercases name, drops everything outside [a-z0-9] and whitespace, and collapses spaces.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// StripBatchCode removes code when it is the trailing whitespace-delimited token of name.
func StripBatchCode(name, code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return name
	}
	pattern := regexp.MustCompile(`(?i)\s+` + regexp.QuoteMeta(code) + `\s*$`)
	return pattern.ReplaceAllString(name, "")
}

// Compare scores two raw names.
func Compare(a, b string) Score {
	return CompareNormalized(Normalize(a), Normalize(b))
}

// CompareNormalized scores two names that already went through Normalize.
// Rules are tried in priority order: exact, first name, partial, fuzzy.
func CompareNormalized(a, b string) Score {
	if a == "" || b == "" {
		return Score{}
	}
	if a == b {
		return Score{Confidence: ExactConfidence, Type: MatchExact}
	}

	firstA := firstToken(a)
	firstB := firstToken(b)
	if firstA == firstB && len(firstA) >= minTokenLength {
		return Score{Confidence: FirstNameConfidence, Type: MatchFirstName}
	}

	if (len(firstB) >= minTokenLength && strings.Contains(a, firstB)) ||
		(len(firstA) >= minTokenLength && strings.Contains(b, firstA)) {
		return Score{Confidence: PartialConfidence, Type: MatchPartial}
	}

	if sim := Similarity(a, b); sim > FuzzyThreshold {
		return Score{Confidence: sim, Type: MatchFuzzy}
	}
	return Score{}
}

// Similarity returns 1 - distance/maxLen, with 0 for two empty strings.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// Distance is the Levenshtein edit distance between a and b.
func Distance(a, b string) int {
	return levenshtein([]rune(a), []rune(b))
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func firstToken(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}
