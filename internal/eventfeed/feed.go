// Package eventfeed broadcasts terminal interruption events to websocket
// subscribers. It is the observer surface of the arbitration core: dashboards
// and debugging tools connect to /events and receive one JSON message per
// resolved interruption.
//
// The hub never blocks the resolving goroutine. Each subscriber has a small
// buffered queue; when a subscriber cannot keep up, events for it are
// dropped and counted rather than applying backpressure to the audio path.
package eventfeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/openvoicekit/bargein/internal/interrupt"
	"github.com/openvoicekit/bargein/internal/observe"
)

// subscriberBuf is the per-subscriber event queue depth.
const subscriberBuf = 16

// writeTimeout bounds a single websocket write.
const writeTimeout = 5 * time.Second

// wireEvent is the JSON shape sent to subscribers.
type wireEvent struct {
	Type          string  `json:"type"`
	ID            string  `json:"interruption_id"`
	Transcription string  `json:"transcription"`
	Reason        string  `json:"reason"`
	Confidence    float64 `json:"confidence"`
	AgentSpeaking bool    `json:"agent_speaking"`
	Timestamp     string  `json:"timestamp"`
	ElapsedMs     int64   `json:"elapsed_ms"`
}

// Hub fans terminal events out to connected websocket subscribers. It
// implements [interrupt.Emitter] so it can be wired directly as a session
// sink. All methods are safe for concurrent use.
type Hub struct {
	metrics *observe.Metrics

	mu     sync.Mutex
	subs   map[chan wireEvent]struct{}
	closed bool
}

// Option is a functional option for [NewHub].
type Option func(*Hub)

// WithMetrics wires the drop counter into the hub.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{subs: make(map[chan wireEvent]struct{})}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Emit implements [interrupt.Emitter]. Delivery is non-blocking: a
// subscriber whose queue is full misses this event.
func (h *Hub) Emit(ev interrupt.Event) {
	we := wireEvent{
		Type:          ev.Type.String(),
		ID:            ev.ID,
		Transcription: ev.Transcription,
		Reason:        ev.Decision.Reason.String(),
		Confidence:    ev.Decision.Confidence,
		AgentSpeaking: ev.AgentSpeaking,
		Timestamp:     ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ElapsedMs:     ev.Elapsed.Milliseconds(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- we:
		default:
			if h.metrics != nil {
				h.metrics.RecordFeedDrop()
			}
			slog.Warn("event feed subscriber too slow, dropping event",
				"interruption_id", ev.ID)
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request to a websocket and streams events until the
// client disconnects or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("event feed websocket accept failed", "err", err)
		return
	}

	ch, ok := h.subscribe()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "feed closed")
		return
	}
	defer h.unsubscribe(ch)

	slog.Debug("event feed subscriber connected", "remote", r.RemoteAddr)

	// The feed is write-only, so hand the read side to the library: it keeps
	// responding to pings and cancels the context on the client's close frame.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client gone")
			return
		case we, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "feed closed")
				return
			}
			if err := writeEvent(ctx, conn, we); err != nil {
				slog.Debug("event feed write failed, dropping subscriber", "err", err)
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// Close disconnects all subscribers. New connections are refused afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}

func (h *Hub) subscribe() (chan wireEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan wireEvent, subscriberBuf)
	h.subs[ch] = struct{}{}
	return ch, true
}

func (h *Hub) unsubscribe(ch chan wireEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, we wireEvent) error {
	data, err := json.Marshal(we)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
