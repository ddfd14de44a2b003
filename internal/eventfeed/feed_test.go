package eventfeed

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/openvoicekit/bargein/internal/filter"
	"github.com/openvoicekit/bargein/internal/interrupt"
)

func sampleEvent(id string) interrupt.Event {
	return interrupt.Event{
		Type:          interrupt.EventFiltered,
		ID:            id,
		Transcription: "yeah yeah okay",
		Decision: filter.Decision{
			Action:     filter.ActionFilter,
			Reason:     filter.ReasonIgnoreListOnly,
			Confidence: 1,
		},
		AgentSpeaking: true,
		Timestamp:     time.Now(),
		Elapsed:       42 * time.Millisecond,
	}
}

func TestHub_WebsocketRoundtrip(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Wait for the subscription to register before emitting.
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(time.Millisecond)
	}

	hub.Emit(sampleEvent("utt-1"))

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Errorf("message type = %v, want text", typ)
	}

	var we wireEvent
	if err := json.Unmarshal(data, &we); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if we.Type != "filtered" || we.ID != "utt-1" {
		t.Errorf("wire event = %s/%s, want filtered/utt-1", we.Type, we.ID)
	}
	if we.Reason != "ignore_list_only" {
		t.Errorf("reason = %q, want ignore_list_only", we.Reason)
	}
	if we.ElapsedMs != 42 {
		t.Errorf("elapsed_ms = %d, want 42", we.ElapsedMs)
	}
	if we.Timestamp == "" {
		t.Error("timestamp should be set")
	}
}

func TestHub_ClientCloseReleasesSubscriber(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(time.Millisecond)
	}

	// A clean client close must free the slot even though the feed stays
	// quiet: the handler learns about it from the close frame, not from a
	// failing write.
	if err := conn.Close(websocket.StatusNormalClosure, "done"); err != nil {
		t.Fatalf("Close: %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d after client close, want 0", hub.SubscriberCount())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_SlowSubscriberNeverBlocksEmit(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, ok := hub.subscribe()
	if !ok {
		t.Fatal("subscribe on open hub should succeed")
	}
	defer hub.unsubscribe(ch)

	// Nobody reads ch; emits beyond the buffer must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuf+10; i++ {
			hub.Emit(sampleEvent("utt-slow"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a slow subscriber")
	}
	if got := len(ch); got != subscriberBuf {
		t.Errorf("queued events = %d, want full buffer %d", got, subscriberBuf)
	}
}

func TestHub_CloseStopsSubscriptions(t *testing.T) {
	hub := NewHub()

	ch, ok := hub.subscribe()
	if !ok {
		t.Fatal("subscribe on open hub should succeed")
	}

	hub.Close()

	if _, open := <-ch; open {
		// Drain until closed; the hub may have queued events first.
		for range ch {
		}
	}
	if _, ok := hub.subscribe(); ok {
		t.Error("subscribe after Close should fail")
	}

	// Emitting after Close must be a harmless no-op.
	hub.Emit(sampleEvent("utt-late"))

	if hub.SubscriberCount() != 0 {
		t.Errorf("subscribers = %d, want 0 after Close", hub.SubscriberCount())
	}
}

func TestHub_UnsubscribeRemoves(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, _ := hub.subscribe()
	if hub.SubscriberCount() != 1 {
		t.Fatalf("subscribers = %d, want 1", hub.SubscriberCount())
	}
	hub.unsubscribe(ch)
	if hub.SubscriberCount() != 0 {
		t.Errorf("subscribers = %d, want 0", hub.SubscriberCount())
	}
	// Double unsubscribe must not panic or double-close.
	hub.unsubscribe(ch)
}
