package filter

import (
	"fmt"
	"log/slog"
)

// Engine decides whether an utterance interrupts the agent. It combines the
// agent's speaking state, the [Matcher] classification, and the optional
// [CustomRule] into a terminal [Decision].
//
// Decide is a pure function of its inputs and the immutable configuration:
// the same (text, agentSpeaking) pair always yields the same decision. It
// performs no I/O and takes no locks, so it is safe to call from latency-
// critical paths.
type Engine struct {
	enabled bool
	rule    CustomRule
	matcher *Matcher
}

// NewEngine validates cfg and builds an [Engine] from it.
func NewEngine(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var mopts []MatcherOption
	if cfg.FuzzyMatch {
		mopts = append(mopts, WithFuzzyFolding(0))
	}
	return &Engine{
		enabled: cfg.Enabled,
		rule:    cfg.CustomRule,
		matcher: NewMatcher(cfg.IgnoreList, cfg.CaseSensitive, mopts...),
	}, nil
}

// Matcher returns the engine's phrase matcher.
func (e *Engine) Matcher() *Matcher {
	return e.matcher
}

// Decide arbitrates a single utterance:
//
//  1. Filtering disabled → allow.
//  2. Agent silent → allow; silence means the utterance is ordinary input.
//  3. Custom rule, when configured, decides (true = allow). A rule failure
//     is logged and degrades to a fail-open allow with confidence 0; it
//     never propagates, and the engine itself never disables the rule for
//     future calls. Wrap a rule in [BreakerRule] to suspend a persistently
//     failing backend instead of paying its latency on every decision.
//  4. Otherwise the ignore-list classification decides: any command word
//     allows the interruption, ignore-only text filters it.
//
// An empty or whitespace-only utterance classifies as ignore-only, so it
// filters while the agent speaks and allows (via step 2) while it is silent.
func (e *Engine) Decide(text string, agentSpeaking bool) Decision {
	if !e.enabled {
		return Decision{Action: ActionAllow, Reason: ReasonDisabled, Confidence: 1}
	}

	if !agentSpeaking {
		return Decision{Action: ActionAllow, Reason: ReasonAgentSilent, Confidence: 1}
	}

	if e.rule != nil {
		allow, err := evalRule(e.rule, text, agentSpeaking)
		if err != nil {
			slog.Error("custom interruption rule failed, allowing fail-open",
				"transcription", text,
				"err", err,
			)
			return Decision{
				Action:     ActionAllow,
				Reason:     ReasonCustomRuleError,
				Confidence: 0,
			}.WithMeta("error", err.Error())
		}
		action := ActionFilter
		if allow {
			action = ActionAllow
		}
		return Decision{Action: action, Reason: ReasonCustomRule, Confidence: 1}
	}

	cls := e.matcher.Classify(e.matcher.Tokenize(text))
	if cls.HasCommandWords {
		return Decision{Action: ActionAllow, Reason: ReasonMixedOrCommand, Confidence: 1}
	}
	return Decision{Action: ActionFilter, Reason: ReasonIgnoreListOnly, Confidence: 1}
}

// evalRule invokes the custom rule, converting a panic into an error so a
// misbehaving injected strategy cannot take down the decision path.
func evalRule(rule CustomRule, text string, agentSpeaking bool) (allow bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("custom rule panic: %v", r)
		}
	}()
	return rule.Evaluate(text, agentSpeaking)
}
