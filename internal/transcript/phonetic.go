// Package transcript corrects speech recognition output against a known
// vocabulary. Live transcription happens server-side and has no awareness of
// the user's domain terms, so names and jargon routinely come back mangled
// ("elder nacks" for "Eldrinax"). The corrector realigns such spans using
// Double Metaphone phonetic encoding combined with Jaro-Winkler string
// similarity:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     the input span and for each vocabulary term. A term whose codes overlap
//     with the input's becomes a candidate.
//
//  2. Jaro-Winkler ranking: among candidates, the term with the highest
//     similarity on the original strings wins, provided it clears the
//     phonetic threshold. When no phonetic candidate exists, a pure
//     similarity pass runs against all terms with a stricter fuzzy threshold.
//
// Multi-word terms ("Tower of Whispers") are supported via pairwise token
// scoring.
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// MatcherOption is a functional option for configuring a [Matcher].
type MatcherOption func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher aligns a spoken span with the closest vocabulary term.
// All methods are safe for concurrent use; the Matcher is read-only after
// construction.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewMatcher returns a [Matcher] configured with the supplied options.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match finds the vocabulary term most phonetically similar to span. span may
// be a single word or a space-separated n-gram. When matched is false,
// corrected equals span unchanged and confidence is 0.
func (m *Matcher) Match(span string, vocabulary []string) (corrected string, confidence float64, matched bool) {
	if len(vocabulary) == 0 || strings.TrimSpace(span) == "" {
		return span, 0, false
	}

	spanLower := strings.ToLower(strings.TrimSpace(span))
	spanTokens := strings.Fields(spanLower)
	spanCodes := codesForTokens(spanTokens)

	type candidate struct {
		term     string
		score    float64
		phonetic bool
	}

	var best candidate

	for _, term := range vocabulary {
		termLower := strings.ToLower(strings.TrimSpace(term))
		if termLower == "" {
			continue
		}
		termTokens := strings.Fields(termLower)

		phoneticMatch := codesOverlap(spanCodes, codesForTokens(termTokens))
		score := bestSimilarity(spanTokens, termTokens, spanLower, termLower)

		if phoneticMatch {
			if score >= m.phoneticThreshold {
				if !best.phonetic || score > best.score {
					best = candidate{term: term, score: score, phonetic: true}
				}
			}
		} else if !best.phonetic {
			if score >= m.fuzzyThreshold && score > best.score {
				best = candidate{term: term, score: score, phonetic: false}
			}
		}
	}

	if best.term != "" {
		return best.term, best.score, true
	}
	return span, 0, false
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (words too short or without consonants) are
// excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestSimilarity computes the highest Jaro-Winkler similarity between the
// input span and a term using three strategies: full-string comparison,
// space-stripped comparison ("eldernacks" vs "eldrinax"), and best pairwise
// token comparison.
func bestSimilarity(spanTokens, termTokens []string, spanFull, termFull string) float64 {
	score := matchr.JaroWinkler(spanFull, termFull, false)

	if len(spanTokens) > 1 || len(termTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(spanTokens, ""), strings.Join(termTokens, ""), false); s > score {
			score = s
		}
	}

	for _, st := range spanTokens {
		for _, tt := range termTokens {
			if s := matchr.JaroWinkler(st, tt, false); s > score {
				score = s
			}
		}
	}

	return score
}
