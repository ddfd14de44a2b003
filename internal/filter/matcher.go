package filter

import (
	"slices"
	"strings"
	"unicode"
)

// Matcher indexes a normalised ignore-phrase list and classifies token
// sequences against it. It is built once from validated configuration and is
// immutable afterwards, so all methods are safe for concurrent use.
//
// Phrases are keyed by their first token; at each scan position the matcher
// tries the longest configured phrase starting there before shorter ones, so
// "got it" wins over a hypothetical single-token "got". Lookup is amortised
// O(1) per token: a hash access plus a comparison bounded by the longest
// configured phrase.
type Matcher struct {
	caseSensitive bool

	// phrases maps a first token to every ignore phrase starting with it,
	// sorted longest first. Single words are one-token phrases.
	phrases map[string][][]string

	// fuzzy, when set, folds phonetically-close tokens onto the phrase
	// vocabulary before classification.
	fuzzy *fuzzy

	fuzzyWanted    bool
	fuzzyThreshold float64
}

// MatcherOption is a functional option for [NewMatcher].
type MatcherOption func(*Matcher)

// WithFuzzyFolding makes the matcher fold tokens that are phonetically close
// to an ignore-list word onto that word before classifying, so "mhm" still
// counts as "mm hmm". threshold is the minimum Jaro-Winkler similarity to
// accept a fold; pass 0 for the default.
func WithFuzzyFolding(threshold float64) MatcherOption {
	return func(m *Matcher) {
		m.fuzzyWanted = true
		m.fuzzyThreshold = threshold
	}
}

// Classification is the result of scanning a token sequence.
type Classification struct {
	// AllIgnored is true when every token was consumed by ignore phrases.
	// An empty token sequence is all-ignored: silence is never a command.
	AllIgnored bool

	// HasCommandWords is true when at least one token was not covered by
	// any ignore phrase. Always the negation of AllIgnored for non-empty
	// input; false for empty input.
	HasCommandWords bool
}

// NewMatcher builds a matcher from the raw ignore list. Each entry runs
// through the same normalisation pipeline as incoming transcriptions, so
// "Uh-Huh" in the configuration matches "uh huh" on the wire. Entries that
// normalise to nothing are dropped.
func NewMatcher(ignoreList []string, caseSensitive bool, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		caseSensitive: caseSensitive,
		phrases:       make(map[string][][]string, len(ignoreList)),
	}
	for _, o := range opts {
		o(m)
	}
	for _, raw := range ignoreList {
		tokens := m.Tokenize(raw)
		if len(tokens) == 0 {
			continue
		}
		head := tokens[0]
		if slices.ContainsFunc(m.phrases[head], func(p []string) bool {
			return slices.Equal(p, tokens)
		}) {
			continue
		}
		m.phrases[head] = append(m.phrases[head], tokens)
	}
	// Longest-first so greedy matching prefers whole phrases.
	for _, ps := range m.phrases {
		slices.SortStableFunc(ps, func(a, b []string) int {
			return len(b) - len(a)
		})
	}

	if m.fuzzyWanted {
		threshold := m.fuzzyThreshold
		if threshold <= 0 {
			threshold = defaultFuzzyThreshold
		}
		var vocab []string
		for _, ps := range m.phrases {
			for _, p := range ps {
				vocab = append(vocab, p...)
			}
		}
		m.fuzzy = newFuzzy(vocab, threshold)
	}
	return m
}

// Empty reports whether no phrase survived normalisation.
func (m *Matcher) Empty() bool {
	return len(m.phrases) == 0
}

// Tokenize runs text through the normalisation pipeline: case folding
// (unless case-sensitive), hyphens to spaces, whitespace split, and
// surrounding punctuation stripped per token. Tokens that are pure
// punctuation vanish. Returns nil for empty or whitespace-only input.
func (m *Matcher) Tokenize(text string) []string {
	if !m.caseSensitive {
		text = strings.ToLower(text)
	}
	text = strings.ReplaceAll(text, "-", " ")

	var tokens []string
	for _, f := range strings.Fields(text) {
		tok := strings.TrimFunc(f, unicode.IsPunct)
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// Classify scans tokens left to right. At each unconsumed position it
// greedily matches the longest ignore phrase whose tokens equal the upcoming
// tokens; on a miss the single token counts as a command word and the scan
// advances by one. With fuzzy folding enabled, tokens are first folded onto
// their phonetic vocabulary neighbours.
func (m *Matcher) Classify(tokens []string) Classification {
	if m.fuzzy != nil && len(tokens) > 0 {
		folded := make([]string, len(tokens))
		for i, tok := range tokens {
			folded[i], _ = m.fuzzy.canonical(tok)
		}
		tokens = folded
	}

	command := false
	for i := 0; i < len(tokens); {
		n := m.matchAt(tokens, i)
		if n == 0 {
			command = true
			i++
			continue
		}
		i += n
	}
	return Classification{
		AllIgnored:      !command,
		HasCommandWords: command,
	}
}

// matchAt returns the length of the longest ignore phrase matching
// tokens[i:], or 0 when none matches.
func (m *Matcher) matchAt(tokens []string, i int) int {
	for _, p := range m.phrases[tokens[i]] {
		if i+len(p) > len(tokens) {
			continue
		}
		if slices.Equal(p, tokens[i:i+len(p)]) {
			return len(p)
		}
	}
	return 0
}
