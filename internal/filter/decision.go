// Package filter implements content-based interruption arbitration for a
// speaking voice agent: it decides whether a user utterance detected during
// agent speech is a passive acknowledgement ("yeah", "mhm") that should be
// ignored, or live input that should interrupt the agent.
//
// The package has two layers. [Matcher] normalises and indexes the configured
// ignore-phrase list and classifies token sequences. [Engine] combines the
// matcher with the agent's speaking state and an optional [CustomRule] into a
// terminal [Decision]. Both are immutable after construction and safe for
// concurrent use; [Engine.Decide] is a pure function of its inputs.
package filter

import "maps"

// Action is the terminal outcome of an arbitration decision.
type Action int

const (
	// ActionAllow lets the utterance interrupt the agent.
	ActionAllow Action = iota

	// ActionFilter suppresses the utterance; the agent keeps speaking.
	ActionFilter
)

// String returns the human-readable name of the action.
func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionFilter:
		return "filter"
	default:
		return "unknown"
	}
}

// Reason identifies which rule produced a [Decision].
type Reason int

const (
	// ReasonDisabled — filtering is switched off; everything is allowed.
	ReasonDisabled Reason = iota

	// ReasonAgentSilent — the agent was not speaking, so the utterance is
	// ordinary user input and never filtered.
	ReasonAgentSilent

	// ReasonCustomRule — the injected custom rule decided.
	ReasonCustomRule

	// ReasonCustomRuleError — the custom rule failed; the decision is the
	// fail-open fallback.
	ReasonCustomRuleError

	// ReasonMixedOrCommand — the utterance contains at least one token not
	// covered by the ignore list.
	ReasonMixedOrCommand

	// ReasonIgnoreListOnly — every token is covered by ignore phrases.
	ReasonIgnoreListOnly

	// ReasonFallbackTimeout — no final transcription arrived before the
	// buffer deadline; the interruption is allowed fail-open.
	ReasonFallbackTimeout

	// ReasonStoreInconsistency — defensive fallback for a pending entry
	// found in an impossible state.
	ReasonStoreInconsistency
)

// String returns the stable reason code used in logs and events.
func (r Reason) String() string {
	switch r {
	case ReasonDisabled:
		return "disabled"
	case ReasonAgentSilent:
		return "agent_silent"
	case ReasonCustomRule:
		return "custom_rule"
	case ReasonCustomRuleError:
		return "custom_rule_error"
	case ReasonMixedOrCommand:
		return "mixed_or_command"
	case ReasonIgnoreListOnly:
		return "ignore_list_only"
	case ReasonFallbackTimeout:
		return "fallback_timeout"
	case ReasonStoreInconsistency:
		return "store_inconsistency"
	default:
		return "unknown"
	}
}

// Decision is the immutable result of arbitrating one utterance.
type Decision struct {
	// Action is the terminal outcome.
	Action Action

	// Reason identifies the rule that produced the outcome.
	Reason Reason

	// Confidence is the decision confidence in [0, 1]. Fail-open fallbacks
	// carry 0; rule-based decisions carry 1.
	Confidence float64

	// Metadata holds opaque key/value context for logging. May be nil.
	Metadata map[string]string
}

// WithMeta returns a copy of d with the given key set in its metadata.
// The receiver is not modified.
func (d Decision) WithMeta(key, value string) Decision {
	m := make(map[string]string, len(d.Metadata)+1)
	maps.Copy(m, d.Metadata)
	m[key] = value
	d.Metadata = m
	return d
}
