// Package interrupt implements the pending-interruption tracker: the bridge
// between a voice-activity onset, which is instantaneous, and the final
// transcription for the same utterance, which may arrive up to the configured
// buffer time later — or not at all.
//
// The agent keeps speaking while an interruption is pending; only the
// decision to stop it is delayed. Each pending entry carries a cancellable
// timer and an atomic status field. The final transcription and the timer
// race to resolve the entry; the compare-and-swap transition guarantees that
// exactly one of them wins and exactly one terminal [Event] is emitted per
// interruption ID.
package interrupt

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openvoicekit/bargein/internal/filter"
	"github.com/openvoicekit/bargein/internal/observe"
)

// defaultMaxPending caps concurrently-pending entries. Human speech cadence
// and the ≤2s buffer time keep the real count in single digits; the cap is a
// defensive bound, not a tuning knob.
const defaultMaxPending = 64

// Decider computes the terminal decision for a final transcription.
// *filter.Engine satisfies it; tests inject stubs.
type Decider interface {
	Decide(text string, agentSpeaking bool) filter.Decision
}

// Config holds tracker settings.
type Config struct {
	// BufferTime is how long an entry waits for its final transcription
	// before the timeout resolver fires. Zero is valid and means the
	// timeout fires immediately after onset.
	BufferTime time.Duration

	// MaxPending bounds the pending-entry store. When exceeded, the oldest
	// entry is resolved fallback-allow and evicted. Defaults to 64.
	MaxPending int
}

// Stats is a snapshot of the tracker's resolution counters.
type Stats struct {
	Allowed          uint64
	Filtered         uint64
	FallbackTimeouts uint64
	ErrorFallbacks   uint64
	Pending          int
}

// entry is one in-flight interruption. The status field is the single
// atomically-updated lifecycle state; everything else is written once at
// creation except latestPartial, which its own mutex guards.
type entry struct {
	id            string
	createdAt     time.Time
	deadlineAt    time.Time
	agentSpeaking bool
	status        atomic.Int32

	mu            sync.Mutex
	timer         *time.Timer
	latestPartial string
}

// transition attempts the PENDING → to move. It reports whether this caller
// won; a false return means another resolver already reached a terminal
// state and the caller must treat its own result as discarded.
func (e *entry) transition(to Status) bool {
	return e.status.CompareAndSwap(int32(StatusPending), int32(to))
}

func (e *entry) setPartial(text string) {
	e.mu.Lock()
	e.latestPartial = text
	e.mu.Unlock()
}

func (e *entry) partial() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latestPartial
}

// stopTimer cancels the timeout resolver. Safe to call concurrently with a
// timer that is already firing: the fired callback's own transition attempt
// fails and is a no-op.
func (e *entry) stopTimer() {
	e.mu.Lock()
	t := e.timer
	e.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// Tracker owns all pending interruptions. It is safe for concurrent use by
// independent onset and transcription producers.
type Tracker struct {
	decider    Decider
	emitter    Emitter
	bufferTime time.Duration
	maxPending int
	metrics    *observe.Metrics

	mu      sync.Mutex
	entries map[string]*entry

	allowed          atomic.Uint64
	filtered         atomic.Uint64
	fallbackTimeouts atomic.Uint64
	errorFallbacks   atomic.Uint64
}

// Option is a functional option for [NewTracker].
type Option func(*Tracker)

// WithMetrics wires OTel instruments into the tracker. Without it only the
// in-process [Stats] counters are maintained.
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// NewTracker creates a tracker that resolves entries through decider and
// delivers terminal events to emitter. A nil emitter is valid; events are
// then dropped after counting.
func NewTracker(cfg Config, decider Decider, emitter Emitter, opts ...Option) *Tracker {
	maxPending := cfg.MaxPending
	if maxPending <= 0 {
		maxPending = defaultMaxPending
	}
	t := &Tracker{
		decider:    decider,
		emitter:    emitter,
		bufferTime: cfg.BufferTime,
		maxPending: maxPending,
		entries:    make(map[string]*entry),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// OnOnset handles a voice-activity onset. When the agent is silent there is
// nothing to arbitrate: the interruption resolves synchronously and the
// returned decision is terminal (decided = true). When the agent is
// speaking, a pending entry with a timeout resolver is created and the
// terminal decision arrives later through the [Emitter] (decided = false).
// Re-onset for an id that is already pending is a no-op.
func (t *Tracker) OnOnset(id string, agentSpeaking bool) (dec filter.Decision, decided bool) {
	if !agentSpeaking {
		dec = filter.Decision{Action: filter.ActionAllow, Reason: filter.ReasonAgentSilent, Confidence: 1}
		t.count(EventAllowed, dec)
		t.emit(Event{
			Type:          EventAllowed,
			ID:            id,
			Decision:      dec,
			AgentSpeaking: false,
			Timestamp:     time.Now(),
		})
		return dec, true
	}

	now := time.Now()
	e := &entry{
		id:            id,
		createdAt:     now,
		deadlineAt:    now.Add(t.bufferTime),
		agentSpeaking: true,
	}

	t.mu.Lock()
	if prev, ok := t.entries[id]; ok {
		if Status(prev.status.Load()).Terminal() {
			// A terminal entry must never linger in the store. Clear it,
			// resolve the new onset fail-open, and surface the bug loudly
			// rather than guessing which state to trust.
			delete(t.entries, id)
			t.mu.Unlock()
			prev.stopTimer()
			slog.Error("terminal interruption entry found in store, clearing",
				"interruption_id", id,
				"status", Status(prev.status.Load()).String(),
			)
			dec = filter.Decision{Action: filter.ActionAllow, Reason: filter.ReasonStoreInconsistency, Confidence: 0}
			t.count(EventAllowed, dec)
			t.emit(Event{
				Type:          EventAllowed,
				ID:            id,
				Decision:      dec,
				AgentSpeaking: agentSpeaking,
				Timestamp:     time.Now(),
			})
			return dec, true
		}
		t.mu.Unlock()
		slog.Debug("duplicate onset for pending interruption ignored",
			"interruption_id", id)
		return filter.Decision{}, false
	}
	evicted := t.evictIfFullLocked()
	t.entries[id] = e
	e.mu.Lock()
	e.timer = time.AfterFunc(t.bufferTime, func() { t.resolveTimeout(e) })
	e.mu.Unlock()
	pending := len(t.entries)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.SetPendingInterruptions(pending)
	}
	if evicted != nil {
		t.resolveEvicted(evicted)
	}
	return filter.Decision{}, false
}

// OnTranscription feeds a transcription for an interruption. Partials only
// refresh the entry's buffered text — they never trigger a terminal
// decision. A final transcription computes the decision and races the
// timeout resolver for the terminal transition; if the timer already won,
// the result is discarded.
func (t *Tracker) OnTranscription(id, text string, isFinal bool) {
	t.mu.Lock()
	e := t.entries[id]
	t.mu.Unlock()

	if e == nil {
		slog.Debug("transcription for unknown or already-resolved interruption",
			"interruption_id", id,
			"is_final", isFinal,
		)
		return
	}

	if !isFinal {
		e.setPartial(text)
		return
	}

	// Decision first, transition second, side effects only for the winner.
	start := time.Now()
	dec := t.decider.Decide(text, e.agentSpeaking)
	if t.metrics != nil {
		t.metrics.ObserveDecision(time.Since(start))
	}

	to := statusFor(dec.Action)
	if !e.transition(to) {
		slog.Debug("late final transcription discarded, timeout already resolved",
			"interruption_id", id,
			"transcription", text,
		)
		return
	}
	e.stopTimer()
	t.remove(e)

	t.count(eventTypeFor(to), dec)
	t.emit(Event{
		Type:          eventTypeFor(to),
		ID:            id,
		Transcription: text,
		Decision:      dec,
		AgentSpeaking: e.agentSpeaking,
		Timestamp:     time.Now(),
		Elapsed:       time.Since(e.createdAt),
	})
}

// resolveTimeout is the per-entry timeout resolver. If the entry is still
// pending at the deadline it resolves fail-open: an agent that keeps talking
// over real user speech is the worse failure mode than one that occasionally
// stops for backchannel.
func (t *Tracker) resolveTimeout(e *entry) {
	if !e.transition(StatusAllowed) {
		return
	}
	t.remove(e)

	partial := e.partial()
	dec := filter.Decision{
		Action:     filter.ActionAllow,
		Reason:     filter.ReasonFallbackTimeout,
		Confidence: 0,
	}
	t.fallbackTimeouts.Add(1)
	t.count(EventAllowed, dec)

	slog.Info("no final transcription before deadline, allowing interruption",
		"interruption_id", e.id,
		"buffer_time", t.bufferTime,
		"latest_partial", partial,
	)
	t.emit(Event{
		Type:          EventAllowed,
		ID:            e.id,
		Transcription: partial,
		Decision:      dec,
		AgentSpeaking: e.agentSpeaking,
		Timestamp:     time.Now(),
		Elapsed:       time.Since(e.createdAt),
	})
}

// evictIfFullLocked returns the oldest entry when the store is at capacity,
// after removing it from the map. Caller must hold t.mu and resolve the
// returned entry outside the lock.
func (t *Tracker) evictIfFullLocked() *entry {
	if len(t.entries) < t.maxPending {
		return nil
	}
	var oldest *entry
	for _, e := range t.entries {
		if oldest == nil || e.createdAt.Before(oldest.createdAt) {
			oldest = e
		}
	}
	delete(t.entries, oldest.id)
	return oldest
}

// resolveEvicted fallback-allows an entry evicted by the capacity cap.
func (t *Tracker) resolveEvicted(e *entry) {
	slog.Warn("pending interruption store at capacity, evicting oldest entry",
		"interruption_id", e.id,
		"max_pending", t.maxPending,
	)
	if !e.transition(StatusAllowed) {
		return
	}
	e.stopTimer()

	dec := filter.Decision{
		Action:     filter.ActionAllow,
		Reason:     filter.ReasonFallbackTimeout,
		Confidence: 0,
	}.WithMeta("cause", "capacity_evict")
	t.fallbackTimeouts.Add(1)
	t.count(EventAllowed, dec)
	t.emit(Event{
		Type:          EventAllowed,
		ID:            e.id,
		Transcription: e.partial(),
		Decision:      dec,
		AgentSpeaking: e.agentSpeaking,
		Timestamp:     time.Now(),
		Elapsed:       time.Since(e.createdAt),
	})
}

// remove deletes the entry from the store. Entries leave the store the
// moment they resolve so it cannot grow under sustained onsets. The delete
// checks entry identity, not just the id: an eviction may have already
// replaced the slot with a newer entry for a reused id, and that entry must
// stay pending.
func (t *Tracker) remove(e *entry) {
	t.mu.Lock()
	if cur, ok := t.entries[e.id]; ok && cur == e {
		delete(t.entries, e.id)
	}
	pending := len(t.entries)
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.SetPendingInterruptions(pending)
	}
}

// count updates the resolution counters for a terminal event.
func (t *Tracker) count(typ EventType, dec filter.Decision) {
	switch typ {
	case EventFiltered:
		t.filtered.Add(1)
	default:
		t.allowed.Add(1)
	}
	if dec.Reason == filter.ReasonCustomRuleError {
		t.errorFallbacks.Add(1)
	}
	if t.metrics != nil {
		t.metrics.RecordResolution(typ.String(), dec.Reason.String())
	}
}

// emit delivers a terminal event to the configured emitter, if any.
func (t *Tracker) emit(ev Event) {
	if t.emitter != nil {
		t.emitter.Emit(ev)
	}
}

// PendingCount returns the number of in-flight entries.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Stats returns a snapshot of the resolution counters.
func (t *Tracker) Stats() Stats {
	return Stats{
		Allowed:          t.allowed.Load(),
		Filtered:         t.filtered.Load(),
		FallbackTimeouts: t.fallbackTimeouts.Load(),
		ErrorFallbacks:   t.errorFallbacks.Load(),
		Pending:          t.PendingCount(),
	}
}

// Close cancels every pending entry without resolving it. Cancellation has
// no externally visible effect beyond suppressing the eventual event.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		e.stopTimer()
	}
	clear(t.entries)
}
