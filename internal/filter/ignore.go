package filter

import "slices"

// defaultIgnoreList is the built-in set of backchannel words and phrases.
// Multi-word phrases ("uh huh", "got it", "go on", "i see") are matched as
// whole phrases by the [Matcher], longest first.
var defaultIgnoreList = []string{
	// Single-syllable acknowledgements.
	"yeah", "yep", "yes", "yup", "ok", "okay",
	"hmm", "mhm", "mm", "mmm", "uh-huh", "uh huh",
	"ah", "aha", "oh", "ooh",

	// Thinking sounds.
	"um", "uh", "er", "erm",

	// Agreement.
	"right", "sure", "alright", "got it",

	// Encouragement.
	"go on", "continue", "i see",
}

// DefaultIgnoreList returns a fresh copy of the built-in backchannel phrase
// list. Each filter instance owns its own copy; mutating the returned slice
// never affects other instances.
func DefaultIgnoreList() []string {
	return slices.Clone(defaultIgnoreList)
}
