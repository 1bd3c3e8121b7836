// Package sse streams workspace changes to browsers as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/starford/lattice/internal/workspace"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EventGraphUpdated tells clients to refetch the link graph.
const EventGraphUpdated = "graph.updated"

type client struct {
	ch   chan []byte
	note string // only events touching this note; "" for all
}

type subscription struct {
	ch   chan []byte
	note string
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + graph throttle state). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	graphMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	noteEventCh   chan workspace.Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. graph.updated is sent at most once
// per graphThrottle; a change inside the window is announced when it ends.
func NewBroker(graphThrottle time.Duration) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}

	b := &Broker{
		graphMin:      graphThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		noteEventCh:   make(chan workspace.Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func encode(event Event) ([]byte, bool) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, false
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)), true
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]client)
	var (
		lastGraph  time.Time
		graphTimer *time.Timer
		graphDue   <-chan time.Time
	)

	send := func(event Event, match func(client) bool) {
		raw, ok := encode(event)
		if !ok {
			return
		}
		for _, c := range clients {
			if match != nil && !match(c) {
				continue
			}
			select {
			case c.ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}
	graph := func(now time.Time) {
		lastGraph = now
		send(Event{Type: EventGraphUpdated, Data: map[string]string{}}, nil)
	}

	for {
		select {
		case <-b.stopCh:
			if graphTimer != nil {
				graphTimer.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = client{ch: sub.ch, note: sub.note}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			send(event, nil)

		case ev := <-b.noteEventCh:
			send(Event{Type: string(ev.Type), Data: ev}, func(c client) bool { return touches(ev, c.note) })
			if !ev.LinksChanged() {
				continue
			}
			now := time.Now()
			if wait := b.graphMin - now.Sub(lastGraph); wait <= 0 {
				graph(now)
			} else if graphDue == nil {
				graphTimer = time.NewTimer(wait)
				graphDue = graphTimer.C
			}

		case <-graphDue:
			graphDue = nil
			graph(time.Now())

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// touches reports whether a client following note wants ev.
func touches(ev workspace.Event, note string) bool {
	if note == "" || ev.NoteID == note || ev.Type == workspace.EventImported {
		return true
	}
	return slices.Contains(ev.Changed, note) || slices.Contains(ev.Removed, note)
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client following every note and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeNote("")
}

// SubscribeNote adds a client that only receives note events touching
// note, plus graph updates and broadcasts.
func (b *Broker) SubscribeNote(note string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, note: note}:
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

// Notify forwards a workspace event; it is meant to be passed to
// Workspace.Subscribe. Link-affecting events also schedule a throttled
// graph.updated.
func (b *Broker) Notify(ev workspace.Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.noteEventCh <- ev:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events[?note=id]).
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

	ch := b.SubscribeNote(r.URL.Query().Get("note"))
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
