// Package sse implements a Server-Sent Events broker for live map views.
package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/aislemap/internal/models"
)

// Event types sent to clients.
const (
	EventMarkersUpdated   = "markers.updated"
	EventSelectionUpdated = "selection.updated"
	EventViewUpdated      = "view.updated"
	EventRemovalFailed    = "removal.failed"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients, last published view, summary throttle timestamp). Public methods
// communicate with this loop through channels, so no mutexes are required.
type Broker struct {
	summaryMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	viewCh        chan models.View
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker with the given view.updated throttle interval.
func NewBroker(summaryThrottle time.Duration) *Broker {
	if summaryThrottle <= 0 {
		summaryThrottle = 2 * time.Second
	}

	b := &Broker{
		summaryMin:    summaryThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		viewCh:        make(chan models.View, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func frame(eventType string, payload []byte) []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, payload))
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastSummary time.Time
	var lastVisible, lastGrouped []byte

	send := func(raw []byte) {
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		send(frame(event.Type, payload))
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}
			// Late joiners get the current state right away.
			if lastVisible != nil {
				select {
				case ch <- frame(EventMarkersUpdated, lastVisible):
				default:
				}
			}
			if lastGrouped != nil {
				select {
				case ch <- frame(EventSelectionUpdated, lastGrouped):
				default:
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case v := <-b.viewCh:
			visible, verr := json.Marshal(v.Visible)
			grouped, gerr := json.Marshal(v.Grouped)
			if verr != nil || gerr != nil {
				continue
			}
			changed := false
			if !bytes.Equal(visible, lastVisible) {
				lastVisible = visible
				send(frame(EventMarkersUpdated, visible))
				changed = true
			}
			if !bytes.Equal(grouped, lastGrouped) {
				lastGrouped = grouped
				send(frame(EventSelectionUpdated, grouped))
				changed = true
			}
			if !changed {
				continue
			}

			now := time.Now()
			if now.Sub(lastSummary) >= b.summaryMin {
				lastSummary = now
				broadcast(Event{Type: EventViewUpdated, Data: map[string]any{
					"visible":   len(v.Visible),
					"grouped":   len(v.Grouped),
					"show_all":  v.ShowAll,
					"unmatched": len(v.Unmatched),
				}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishView sends the parts of v that changed since the last view, plus a
// throttled view.updated summary.
func (b *Broker) PublishView(v models.View) {
	if b.closed.Load() {
		return
	}
	select {
	case b.viewCh <- v:
	case <-b.stopped:
	}
}

// PublishRemovalFailed tells clients that a removal was rolled back.
func (b *Broker) PublishRemovalFailed(recordID, token, reason string) {
	b.Publish(Event{Type: EventRemovalFailed, Data: map[string]string{
		"id":     recordID,
		"token":  token,
		"reason": reason,
	}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
