package interrupt

import "github.com/openvoicekit/bargein/internal/filter"

// Status is the lifecycle state of a pending interruption. An entry starts
// Pending and transitions exactly once to Allowed or Filtered; no transition
// ever leaves a terminal state. The transition is a compare-and-swap on the
// entry's atomic status field, so of the two racing resolvers (final
// transcription vs. buffer timeout) exactly one wins and the loser's attempt
// is a no-op.
type Status int32

const (
	// StatusPending — waiting for a final transcription or the deadline.
	// Only reachable when the agent was speaking at onset.
	StatusPending Status = iota

	// StatusAllowed — terminal; the interruption goes through.
	StatusAllowed

	// StatusFiltered — terminal; the utterance was suppressed.
	StatusFiltered
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAllowed:
		return "allowed"
	case StatusFiltered:
		return "filtered"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusAllowed || s == StatusFiltered
}

// statusFor maps a decision action to the terminal status it implies.
func statusFor(a filter.Action) Status {
	if a == filter.ActionFilter {
		return StatusFiltered
	}
	return StatusAllowed
}

// eventTypeFor maps a terminal status to its event type.
func eventTypeFor(s Status) EventType {
	if s == StatusFiltered {
		return EventFiltered
	}
	return EventAllowed
}
