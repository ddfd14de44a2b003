// Package voice defines the event types that connect the arbitration core to
// its upstream collaborators: a voice-activity detector producing speech
// onsets and a speech-to-text engine producing transcriptions.
//
// The two producers are independent and asynchronous. For a single
// interruption ID events arrive onset → {partial}* → final, but events for
// different IDs interleave arbitrarily, and the detector and the STT engine
// run on separate goroutines. Sources expose their events as channels; a
// closed channel means the source has shut down.
package voice

import "time"

// OnsetEvent is emitted by the voice-activity detector at the instant user
// speech begins.
type OnsetEvent struct {
	// ID uniquely identifies this interruption. The same ID appears on all
	// transcription events for the same utterance.
	ID string

	// Timestamp is the detection instant.
	Timestamp time.Time
}

// TranscriptEvent is emitted by the speech-to-text engine as an utterance is
// transcribed. Several non-final partials may precede the final result.
type TranscriptEvent struct {
	// ID matches the interruption's onset event.
	ID string

	// Text is the transcription so far (partial) or in full (final).
	Text string

	// IsFinal marks the definitive transcription for this utterance.
	IsFinal bool

	// Timestamp is when the engine produced this result.
	Timestamp time.Time
}

// StateEvent is a push notification of the agent's speaking state, emitted
// whenever synthesis starts or stops.
type StateEvent struct {
	// Speaking is true while the agent's audio output is active.
	Speaking bool

	// Timestamp is when the state changed.
	Timestamp time.Time
}

// OnsetSource produces speech-onset events.
type OnsetSource interface {
	// Onsets returns the onset event channel. Closed on shutdown.
	Onsets() <-chan OnsetEvent
}

// TranscriptSource produces transcription events.
type TranscriptSource interface {
	// Transcripts returns the transcription event channel. Closed on shutdown.
	Transcripts() <-chan TranscriptEvent
}

// StateSource pushes agent speaking-state changes.
type StateSource interface {
	// States returns the state event channel. Closed on shutdown.
	States() <-chan StateEvent
}
