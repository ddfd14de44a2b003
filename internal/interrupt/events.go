package interrupt

import (
	"time"

	"github.com/openvoicekit/bargein/internal/filter"
)

// EventType distinguishes the two terminal resolutions of an interruption.
type EventType int

const (
	// EventAllowed — the interruption goes through; the agent should stop.
	EventAllowed EventType = iota

	// EventFiltered — the utterance was backchannel; the agent keeps going.
	EventFiltered
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	switch t {
	case EventAllowed:
		return "allowed"
	case EventFiltered:
		return "filtered"
	default:
		return "unknown"
	}
}

// Event is the terminal resolution of one interruption, emitted exactly once
// per interruption ID.
type Event struct {
	// Type is the terminal outcome.
	Type EventType

	// ID is the interruption identifier assigned at speech onset.
	ID string

	// Transcription is the text the decision was based on. For a fallback
	// timeout this is the latest partial transcription, possibly empty.
	Transcription string

	// Decision carries the full reason, confidence, and metadata.
	Decision filter.Decision

	// AgentSpeaking is the agent state snapshot taken at onset.
	AgentSpeaking bool

	// Timestamp is when the resolution happened.
	Timestamp time.Time

	// Elapsed is the time from onset to resolution. Zero for onsets that
	// resolved synchronously.
	Elapsed time.Duration
}

// Emitter receives terminal resolutions. Emit is called synchronously from
// the resolving goroutine (transcription handler or timeout timer), so
// implementations must not block.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a plain function to the [Emitter] interface.
type EmitterFunc func(Event)

// Emit calls f.
func (f EmitterFunc) Emit(ev Event) { f(ev) }

// Emitters fans an event out to every member in order.
type Emitters []Emitter

// Emit delivers ev to each member emitter.
func (es Emitters) Emit(ev Event) {
	for _, e := range es {
		e.Emit(ev)
	}
}
