package filter

import (
	"errors"
	"fmt"
	"time"
)

// Buffer-time bounds and default, mirroring the arbitration latency budget:
// a final transcription that has not arrived within MaxBufferTime after
// speech onset is no longer worth waiting for.
const (
	MaxBufferTime     = 2 * time.Second
	DefaultBufferTime = 500 * time.Millisecond
)

// ErrConfig is the sentinel wrapped by all configuration validation failures.
// Unlike decision-path failures, which always degrade to a safe allow,
// configuration errors are surfaced hard: they indicate a setup mistake that
// must be fixed before the filter can run.
var ErrConfig = errors.New("filter: invalid configuration")

// CustomRule is an optional injected arbitration strategy evaluated before
// the default ignore-list logic. Evaluate reports whether the utterance
// should be allowed to interrupt (true = allow, false = filter).
//
// Implementations must be fast and non-blocking — Evaluate is called on the
// synchronous decision path. A returned error or panic never propagates;
// the engine logs it and falls back fail-open.
type CustomRule interface {
	Evaluate(text string, agentSpeaking bool) (bool, error)
}

// CustomRuleFunc adapts a plain function to the [CustomRule] interface.
type CustomRuleFunc func(text string, agentSpeaking bool) (bool, error)

// Evaluate calls f.
func (f CustomRuleFunc) Evaluate(text string, agentSpeaking bool) (bool, error) {
	return f(text, agentSpeaking)
}

// Config holds the immutable arbitration settings. Validate once with
// [Config.Validate] (done by [NewEngine]); the engine snapshots the values
// at construction and never re-reads them.
type Config struct {
	// Enabled switches filtering on. When false every utterance is allowed.
	Enabled bool

	// IgnoreList is the backchannel phrase list. Nil means
	// [DefaultIgnoreList]. Entries are normalised once at construction.
	IgnoreList []string

	// CaseSensitive disables case folding during normalisation.
	CaseSensitive bool

	// BufferTime is how long a pending interruption may wait for its final
	// transcription before the fallback resolver fires. Must be in
	// [0, MaxBufferTime].
	BufferTime time.Duration

	// FuzzyMatch folds phonetically-close tokens onto ignore-list words
	// before classification, absorbing speech-recogniser spelling drift
	// ("mhm" for "mm hmm"). Off by default: exact matching only.
	FuzzyMatch bool

	// CustomRule is an optional injected strategy. May be nil.
	CustomRule CustomRule
}

// withDefaults returns a copy of c with zero-value fields filled in.
func (c Config) withDefaults() Config {
	if c.IgnoreList == nil {
		c.IgnoreList = DefaultIgnoreList()
	}
	return c
}

// Validate checks the configuration and returns an error wrapping [ErrConfig]
// listing every violation found.
func (c Config) Validate() error {
	c = c.withDefaults()

	var errs []error
	if c.BufferTime < 0 || c.BufferTime > MaxBufferTime {
		errs = append(errs, fmt.Errorf("buffer time %v outside [0s, %v]", c.BufferTime, MaxBufferTime))
	}
	if c.Enabled {
		m := NewMatcher(c.IgnoreList, c.CaseSensitive)
		if m.Empty() {
			errs = append(errs, errors.New("ignore list is empty after normalisation but filtering is enabled"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}
	return nil
}
