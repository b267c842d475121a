// Package sse implements a Server-Sent Events broker for content change
// notifications.
//
// Clients may subscribe to a set of collections. They then receive only the
// changes and invalidations that touch those collections, plus anything that
// could not be attributed to a collection.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"
)

// Event types broadcast by the broker.
const (
	EventContentChanged         = "content.changed"
	EventCollectionsInvalidated = "collections.invalidated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Change describes one content change. Path is empty when the whole content
// root was invalidated.
type Change struct {
	Op          string   `json:"op"`
	Path        string   `json:"path"`
	Collections []string `json:"collections,omitempty"`
}

// unscoped reports whether c may affect any collection.
func (c Change) unscoped() bool {
	return c.Path == "" || len(c.Collections) == 0
}

// Invalidation is the payload of collections.invalidated. All is set when
// the affected collections are unknown.
type Invalidation struct {
	Collections []string `json:"collections,omitempty"`
	All         bool     `json:"all,omitempty"`
}

type client struct {
	ch chan []byte
	// scope is nil for clients interested in every collection.
	scope map[string]struct{}
}

func (c *client) touches(collections []string) bool {
	if c.scope == nil {
		return true
	}
	for _, name := range collections {
		if _, ok := c.scope[name]; ok {
			return true
		}
	}
	return false
}

// view narrows inv to the client's scope. ok is false when nothing is left.
func (c *client) view(inv Invalidation) (Invalidation, bool) {
	if c.scope == nil || inv.All {
		return inv, true
	}
	var out Invalidation
	for _, name := range inv.Collections {
		if _, ok := c.scope[name]; ok {
			out.Collections = append(out.Collections, name)
		}
	}
	return out, len(out.Collections) > 0
}

// pending accumulates invalidations between throttled flushes.
type pending struct {
	all   bool
	names map[string]struct{}
}

func (p *pending) add(c Change) {
	if c.unscoped() {
		p.all = true
		return
	}
	if p.names == nil {
		p.names = make(map[string]struct{})
	}
	for _, name := range c.Collections {
		p.names[name] = struct{}{}
	}
}

func (p *pending) take() (Invalidation, bool) {
	if !p.all && len(p.names) == 0 {
		return Invalidation{}, false
	}
	inv := Invalidation{All: p.all}
	if !p.all {
		for name := range p.names {
			inv.Collections = append(inv.Collections, name)
		}
		slices.Sort(inv.Collections)
	}
	*p = pending{}
	return inv, true
}

type subscription struct {
	ch    chan []byte
	scope []string
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop goroutine owns the clients, the pending invalidations
// and the flush timer. Public methods talk to it over channels.
//
// Every change is forwarded immediately as content.changed. Invalidations
// are coalesced: at most one collections.invalidated per throttle interval,
// with changes arriving inside the interval flushed when it ends. A full
// resync (empty path) is flushed at once.
type Broker struct {
	throttle time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan Change
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits collections.invalidated at most once
// per throttle interval.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	b := &Broker{
		throttle:      throttle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan Change, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func frame(typ string, data any) []byte {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", typ, payload))
}

// send never blocks; slow clients lose the message.
func send(c *client, msg []byte) {
	if msg == nil {
		return
	}
	select {
	case c.ch <- msg:
	default:
	}
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]*client)
	var (
		queued    pending
		lastFlush time.Time
		timer     *time.Timer
		timerC    <-chan time.Time
	)

	flush := func() {
		inv, ok := queued.take()
		if !ok {
			return
		}
		lastFlush = time.Now()
		for _, c := range clients {
			if v, ok := c.view(inv); ok {
				send(c, frame(EventCollectionsInvalidated, v))
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			if timer != nil {
				timer.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			c := &client{ch: sub.ch}
			if len(sub.scope) > 0 {
				c.scope = make(map[string]struct{}, len(sub.scope))
				for _, name := range sub.scope {
					c.scope[name] = struct{}{}
				}
			}
			clients[sub.ch] = c

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			msg := frame(event.Type, event.Data)
			for _, c := range clients {
				send(c, msg)
			}

		case change := <-b.changeCh:
			msg := frame(EventContentChanged, change)
			for _, c := range clients {
				if change.unscoped() || c.touches(change.Collections) {
					send(c, msg)
				}
			}

			queued.add(change)
			wait := b.throttle - time.Since(lastFlush)
			if change.Path == "" || wait <= 0 {
				flush()
			} else if timerC == nil {
				timer = time.NewTimer(wait)
				timerC = timer.C
			}

		case <-timerC:
			timerC = nil
			flush()

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

// Subscribe adds a new client and returns its channel. With no collections
// the client receives everything.
func (b *Broker) Subscribe(collections ...string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, scope: collections}:
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

// Publish sends an event to all connected clients regardless of scope.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishChange forwards a content.changed event and queues the affected
// collections for the next collections.invalidated event.
func (b *Broker) PublishChange(c Change) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- c:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). The optional
// collections query parameter is a comma-separated scope.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var scope []string
	for _, name := range strings.Split(r.URL.Query().Get("collections"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			scope = append(scope, name)
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(scope...)
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
