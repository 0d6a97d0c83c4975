package transcript

import "strings"

// Correction records one span replacement applied by the [Corrector].
type Correction struct {
	// Original is the span as transcribed.
	Original string

	// Corrected is the vocabulary term it was replaced with.
	Corrected string

	// Confidence is the similarity score that drove the replacement.
	Confidence float64
}

// Corrector rewrites transcript text so that spans phonetically matching a
// vocabulary term are replaced by the term's canonical spelling.
//
// Corrector is safe for concurrent use.
type Corrector struct {
	matcher    *Matcher
	vocabulary []string
	maxWords   int
}

// NewCorrector creates a corrector over vocabulary using matcher. A nil
// matcher gets default thresholds. An empty vocabulary yields a corrector
// whose Correct is the identity.
func NewCorrector(matcher *Matcher, vocabulary []string) *Corrector {
	if matcher == nil {
		matcher = NewMatcher()
	}
	return &Corrector{
		matcher:    matcher,
		vocabulary: vocabulary,
		maxWords:   maxWordCount(vocabulary),
	}
}

// Correct tokenises text into whitespace-separated words and slides n-gram
// windows over it, from the widest vocabulary term down to single words.
// The longest window that matches a term wins, so multi-word terms take
// precedence over partial single-word matches. Unmatched tokens pass through
// unchanged.
func (c *Corrector) Correct(text string) (string, []Correction) {
	if len(c.vocabulary) == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	var (
		output      []string
		corrections []Correction
	)

	i := 0
	for i < len(tokens) {
		maxN := c.maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			term, conf, ok := c.matcher.Match(window, c.vocabulary)
			if !ok {
				continue
			}

			output = append(output, strings.Fields(term)...)
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  term,
				Confidence: conf,
			})
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// maxWordCount returns the maximum number of whitespace-separated words in
// any vocabulary term. Returns 1 when vocabulary is empty.
func maxWordCount(vocabulary []string) int {
	max := 1
	for _, term := range vocabulary {
		if n := len(strings.Fields(term)); n > max {
			max = n
		}
	}
	return max
}
