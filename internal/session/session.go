// Package session wires the arbitration core into a running conversation.
//
// A Session consumes the three collaborator event streams — speech onsets,
// transcriptions, and agent speaking-state changes — and drives the
// [interrupt.Tracker] with them. It tracks the agent's speaking state so the
// tracker can snapshot it at onset time, writes the structured per-decision
// log record, and fans terminal events out to any number of sinks (metrics,
// websocket feed, downstream playback control).
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openvoicekit/bargein/internal/filter"
	"github.com/openvoicekit/bargein/internal/interrupt"
	"github.com/openvoicekit/bargein/internal/observe"
	"github.com/openvoicekit/bargein/pkg/voice"
)

// Config assembles a [Session].
type Config struct {
	// Filter is the arbitration configuration. Validated during [New].
	Filter filter.Config

	// Onsets is the voice-activity onset stream. Required.
	Onsets voice.OnsetSource

	// Transcripts is the transcription stream. Required.
	Transcripts voice.TranscriptSource

	// States is an optional push stream of agent speaking-state changes.
	// When nil, callers drive the state through [Session.SetSpeaking].
	States voice.StateSource

	// Sinks receive every terminal event after the session has logged it.
	// Sinks must not block; they run on the resolving goroutine.
	Sinks []interrupt.Emitter

	// Metrics is an optional OTel instrument set for the tracker.
	Metrics *observe.Metrics
}

// Session owns one conversation's interruption arbitration.
type Session struct {
	engine  *filter.Engine
	tracker *interrupt.Tracker

	onsets      voice.OnsetSource
	transcripts voice.TranscriptSource
	states      voice.StateSource
	sinks       interrupt.Emitters

	speaking atomic.Bool
}

// New validates the filter configuration and assembles a session. The
// session itself is the tracker's emitter: it logs each terminal resolution
// and forwards it to the configured sinks.
func New(cfg Config) (*Session, error) {
	if cfg.Onsets == nil || cfg.Transcripts == nil {
		return nil, fmt.Errorf("session: onset and transcript sources are required")
	}

	engine, err := filter.NewEngine(cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s := &Session{
		engine:      engine,
		onsets:      cfg.Onsets,
		transcripts: cfg.Transcripts,
		states:      cfg.States,
		sinks:       interrupt.Emitters(cfg.Sinks),
	}

	var opts []interrupt.Option
	if cfg.Metrics != nil {
		opts = append(opts, interrupt.WithMetrics(cfg.Metrics))
	}
	s.tracker = interrupt.NewTracker(
		interrupt.Config{BufferTime: cfg.Filter.BufferTime},
		engine,
		s,
		opts...,
	)
	return s, nil
}

// SetSpeaking pushes the agent's speaking state. Safe to call concurrently
// with Run; the tracker snapshots the state at each onset.
func (s *Session) SetSpeaking(speaking bool) {
	s.speaking.Store(speaking)
}

// Speaking reports the current agent speaking state.
func (s *Session) Speaking() bool {
	return s.speaking.Load()
}

// Stats returns the tracker's resolution counters.
func (s *Session) Stats() interrupt.Stats {
	return s.tracker.Stats()
}

// PendingCount returns the number of in-flight interruptions.
func (s *Session) PendingCount() int {
	return s.tracker.PendingCount()
}

// Run consumes the event streams until ctx is cancelled or every stream has
// closed. It returns ctx.Err() on cancellation and nil on stream exhaustion.
func (s *Session) Run(ctx context.Context) error {
	defer s.tracker.Close()

	onsets := s.onsets.Onsets()
	transcripts := s.transcripts.Transcripts()
	var states <-chan voice.StateEvent
	if s.states != nil {
		states = s.states.States()
	}

	for onsets != nil || transcripts != nil || states != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-onsets:
			if !ok {
				onsets = nil
				continue
			}
			s.handleOnset(ctx, ev)

		case ev, ok := <-transcripts:
			if !ok {
				transcripts = nil
				continue
			}
			s.tracker.OnTranscription(ev.ID, ev.Text, ev.IsFinal)

		case ev, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			s.speaking.Store(ev.Speaking)
			slog.Debug("agent speaking state changed", "speaking", ev.Speaking)
		}
	}
	return nil
}

// handleOnset snapshots the speaking state and opens (or synchronously
// resolves) the interruption.
func (s *Session) handleOnset(ctx context.Context, ev voice.OnsetEvent) {
	speaking := s.speaking.Load()

	sctx, span := observe.StartSpan(ctx, "bargein.onset",
		trace.WithAttributes(
			attribute.String("interruption_id", ev.ID),
			attribute.Bool("agent_speaking", speaking),
		),
	)
	defer span.End()

	if _, decided := s.tracker.OnOnset(ev.ID, speaking); !decided {
		observe.Logger(sctx).Debug("interruption pending, awaiting transcription",
			"interruption_id", ev.ID)
	}
}

// Emit implements [interrupt.Emitter]. It writes the structured
// per-decision record and forwards the event to the sinks.
func (s *Session) Emit(ev interrupt.Event) {
	slog.Info("interruption resolved",
		"interruption_id", ev.ID,
		"transcription", ev.Transcription,
		"decision", ev.Type.String(),
		"reason", ev.Decision.Reason.String(),
		"confidence", ev.Decision.Confidence,
		"agent_speaking", ev.AgentSpeaking,
		"elapsed_ms", ev.Elapsed.Milliseconds(),
	)
	s.sinks.Emit(ev)
}

// Engine returns the session's decision engine, mainly for tests that need
// to probe decisions directly.
func (s *Session) Engine() *filter.Engine {
	return s.engine
}
