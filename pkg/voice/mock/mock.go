// Package mock provides scripted test doubles for the voice source
// interfaces.
//
// A Stream owns all three event channels and exposes Emit helpers so tests
// and the simulator can script a conversation:
//
//	src := mock.NewStream()
//	src.EmitState(true)
//	src.EmitOnset("utt-1")
//	src.EmitFinal("utt-1", "yeah okay")
//	src.Close()
package mock

import (
	"sync"
	"time"

	"github.com/openvoicekit/bargein/pkg/voice"
)

// chanBuf is the buffer depth of each event channel. Deep enough that a
// scripted test never blocks on emit before the consumer starts.
const chanBuf = 64

// Stream is a scripted implementation of [voice.OnsetSource],
// [voice.TranscriptSource], and [voice.StateSource].
type Stream struct {
	onsets      chan voice.OnsetEvent
	transcripts chan voice.TranscriptEvent
	states      chan voice.StateEvent

	closeOnce sync.Once
}

// Compile-time interface assertions.
var (
	_ voice.OnsetSource      = (*Stream)(nil)
	_ voice.TranscriptSource = (*Stream)(nil)
	_ voice.StateSource      = (*Stream)(nil)
)

// NewStream creates a Stream with buffered channels.
func NewStream() *Stream {
	return &Stream{
		onsets:      make(chan voice.OnsetEvent, chanBuf),
		transcripts: make(chan voice.TranscriptEvent, chanBuf),
		states:      make(chan voice.StateEvent, chanBuf),
	}
}

// Onsets implements [voice.OnsetSource].
func (s *Stream) Onsets() <-chan voice.OnsetEvent { return s.onsets }

// Transcripts implements [voice.TranscriptSource].
func (s *Stream) Transcripts() <-chan voice.TranscriptEvent { return s.transcripts }

// States implements [voice.StateSource].
func (s *Stream) States() <-chan voice.StateEvent { return s.states }

// EmitOnset scripts a speech onset for the given interruption ID.
func (s *Stream) EmitOnset(id string) {
	s.onsets <- voice.OnsetEvent{ID: id, Timestamp: time.Now()}
}

// EmitPartial scripts a non-final transcription.
func (s *Stream) EmitPartial(id, text string) {
	s.transcripts <- voice.TranscriptEvent{ID: id, Text: text, Timestamp: time.Now()}
}

// EmitFinal scripts a final transcription.
func (s *Stream) EmitFinal(id, text string) {
	s.transcripts <- voice.TranscriptEvent{ID: id, Text: text, IsFinal: true, Timestamp: time.Now()}
}

// EmitState scripts an agent speaking-state change.
func (s *Stream) EmitState(speaking bool) {
	s.states <- voice.StateEvent{Speaking: speaking, Timestamp: time.Now()}
}

// Close closes all three channels. Safe to call multiple times.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.onsets)
		close(s.transcripts)
		close(s.states)
	})
}
