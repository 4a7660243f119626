// Package sse implements a Server-Sent Events broker for catalog updates.
package sse

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
)

// Event types sent to clients.
const (
	TypeResourceCreated = "resource.created"
	TypeResourceUpdated = "resource.updated"
	TypeResourceDeleted = "resource.deleted"
	TypeCatalogUpdated  = "catalog.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type resourceChange struct {
	kind string
	name string
}

// Filter selects the resources a client hears about. An entry ending in
// "/" matches every resource under that directory; any other entry matches
// one resource name. An empty filter matches everything.
type Filter []string

// Match reports whether name passes the filter.
func (f Filter) Match(name string) bool {
	if len(f) == 0 {
		return true
	}
	for _, want := range f {
		if want == name || (strings.HasSuffix(want, "/") && strings.HasPrefix(name, want)) {
			return true
		}
	}
	return false
}

type subscription struct {
	ch     chan []byte
	filter Filter
}

// message is one broadcast. An empty resource reaches every client.
type message struct {
	event    Event
	resource string
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop owns the client set, the event id counter and the
// catalog.updated throttle. Public methods talk to it over channels.
type Broker struct {
	catalogMin time.Duration
	keepAlive  time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan message
	changeCh      chan resourceChange
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. catalogThrottle is the minimum gap
// between two catalog.updated events.
func NewBroker(catalogThrottle time.Duration) *Broker {
	if catalogThrottle <= 0 {
		catalogThrottle = 2 * time.Second
	}

	b := &Broker{
		catalogMin:    catalogThrottle,
		keepAlive:     30 * time.Second,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan message, 256),
		changeCh:      make(chan resourceChange, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]Filter)
	var (
		lastCatalog time.Time
		nextID      uint64
	)

	broadcast := func(m message) {
		payload, err := json.Marshal(m.event.Data)
		if err != nil {
			return
		}
		nextID++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", nextID, m.event.Type, payload))

		for ch, filter := range clients {
			if m.resource != "" && !filter.Match(m.resource) {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than block the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.filter

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case m := <-b.publishCh:
			broadcast(m)

		case c := <-b.changeCh:
			typ, ok := changeType(c.kind)
			if !ok {
				continue
			}
			broadcast(message{
				event:    Event{Type: typ, Data: map[string]string{"name": c.name}},
				resource: c.name,
			})

			now := time.Now()
			if now.Sub(lastCatalog) >= b.catalogMin {
				lastCatalog = now
				broadcast(message{event: Event{Type: TypeCatalogUpdated, Data: map[string]string{}}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

func changeType(kind string) (string, bool) {
	switch kind {
	case "created":
		return TypeResourceCreated, true
	case "updated":
		return TypeResourceUpdated, true
	case "deleted":
		return TypeResourceDeleted, true
	}
	return "", false
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel. Resource events
// outside filter are not delivered to it.
func (b *Broker) Subscribe(filter ...string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, filter: Filter(filter)}:
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
	case b.publishCh <- message{event: event}:
	case <-b.stopped:
	}
}

// PublishResourceEvent publishes a resource change ("created", "updated"
// or "deleted") and a throttled catalog.updated event.
func (b *Broker) PublishResourceEvent(kind, name string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- resourceChange{kind: kind, name: name}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). Repeated
// ?resource= parameters narrow the stream to those resources.
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

	ch := b.Subscribe(r.URL.Query()["resource"]...)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
