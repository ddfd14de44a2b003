package filter

import (
	"github.com/antzucaro/matchr"
)

// defaultFuzzyThreshold is the minimum Jaro-Winkler similarity a phonetic
// candidate needs before a token is folded onto an ignore-list word.
const defaultFuzzyThreshold = 0.82

// fuzzy folds mis-transcribed tokens onto the ignore vocabulary. Speech
// recognisers render backchannel inconsistently — "mm-hmm" comes back as
// "mhm", "uh-huh" as "uhuh" — and an exact matcher then counts those tokens
// as command words, interrupting the agent for a murmur. The canonicaliser
// bridges that gap with Double Metaphone codes for candidate selection and
// Jaro-Winkler similarity for acceptance, the same two-stage scheme used for
// phonetic entity alignment in game transcripts.
//
// Read-only after construction.
type fuzzy struct {
	threshold float64

	// vocab is the exact token set; hits here skip the phonetic path.
	vocab map[string]struct{}

	// byCode maps a Double Metaphone code to the vocabulary words that
	// produce it.
	byCode map[string][]string
}

func newFuzzy(vocab []string, threshold float64) *fuzzy {
	f := &fuzzy{
		threshold: threshold,
		vocab:     make(map[string]struct{}, len(vocab)),
		byCode:    make(map[string][]string),
	}
	for _, w := range vocab {
		if _, ok := f.vocab[w]; ok {
			continue
		}
		f.vocab[w] = struct{}{}
		p, s := matchr.DoubleMetaphone(w)
		if p != "" {
			f.byCode[p] = append(f.byCode[p], w)
		}
		if s != "" && s != p {
			f.byCode[s] = append(f.byCode[s], w)
		}
	}
	return f
}

// canonical maps token onto the vocabulary word it most plausibly is. Exact
// vocabulary hits return immediately; otherwise phonetic candidates are
// ranked by Jaro-Winkler and the best one wins if it clears the threshold.
// The boolean reports whether token landed in the vocabulary.
func (f *fuzzy) canonical(token string) (string, bool) {
	if _, ok := f.vocab[token]; ok {
		return token, true
	}

	p, s := matchr.DoubleMetaphone(token)
	var best string
	var bestScore float64
	for _, code := range []string{p, s} {
		if code == "" {
			continue
		}
		for _, w := range f.byCode[code] {
			if score := matchr.JaroWinkler(token, w, false); score > bestScore {
				best, bestScore = w, score
			}
		}
	}
	if bestScore >= f.threshold {
		return best, true
	}
	return token, false
}
