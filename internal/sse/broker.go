// Package sse streams note-tree change notifications to HTTP clients as
// Server-Sent Events.
package sse

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event types sent to clients.
const (
	TypeNoteCreated  = "note.created"
	TypeNoteUpdated  = "note.updated"
	TypeNoteDeleted  = "note.deleted"
	TypeGraphUpdated = "graph.updated"
)

const (
	clientBuffer    = 64
	defaultThrottle = 2 * time.Second
	keepAlive       = 30 * time.Second
)

// Event is one message on the stream.
type Event struct {
	Type string
	Data any
}

// NoteChange is the payload of the note.* events.
type NoteChange struct {
	Path string `json:"path"`
}

// Broker fans events out to subscribed clients.
//
// A single loop goroutine owns the client set and the graph throttle;
// exported methods talk to it over channels. Slow clients lose messages
// instead of stalling the loop.
//
// Every note change is followed by graph.updated, at most once per throttle
// window. A change inside a closed window arms a trailing graph.updated at
// the window's end so the last change is always announced.
type Broker struct {
	throttle time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countCh       chan chan int

	seq     atomic.Uint64
	closed  atomic.Bool
	stopCh  chan struct{}
	stopped chan struct{}
}

// NewBroker starts a broker whose graph.updated events are spaced at least
// throttle apart. Non-positive values use a two second window.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = defaultThrottle
	}
	b := &Broker{
		throttle:      throttle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		countCh:       make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastGraph time.Time
		trailing  *time.Timer
		trailCh   <-chan time.Time
	)

	send := func(ev Event) {
		msg, err := b.encode(ev)
		if err != nil {
			return
		}
		for ch := range clients {
			select {
			case ch <- msg:
			default:
			}
		}
	}
	graphUpdated := func(now time.Time) {
		lastGraph = now
		send(Event{Type: TypeGraphUpdated, Data: struct{}{}})
	}

	for {
		select {
		case <-b.stopCh:
			if trailing != nil {
				trailing.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case resp := <-b.countCh:
			resp <- len(clients)

		case now := <-trailCh:
			trailing, trailCh = nil, nil
			graphUpdated(now)

		case ev := <-b.publishCh:
			send(ev)
			if !isNoteEvent(ev.Type) {
				continue
			}
			now := time.Now()
			if wait := b.throttle - now.Sub(lastGraph); wait > 0 {
				if trailing == nil {
					trailing = time.NewTimer(wait)
					trailCh = trailing.C
				}
				continue
			}
			graphUpdated(now)
		}
	}
}

// encode renders ev in the text/event-stream wire format with a
// monotonically increasing id.
func (b *Broker) encode(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("id: ")
	buf.WriteString(strconv.FormatUint(b.seq.Add(1), 10))
	buf.WriteString("\nevent: ")
	buf.WriteString(ev.Type)
	buf.WriteString("\ndata: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

func isNoteEvent(t string) bool {
	return t == TypeNoteCreated || t == TypeNoteUpdated || t == TypeNoteDeleted
}

// Close stops the loop and closes every client channel. It is safe to call
// more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. The returned channel is closed on
// Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
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

// ClientCount returns the number of subscribed clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countCh <- resp:
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

// Publish queues ev for every client. It is a no-op after Close.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- ev:
	case <-b.stopped:
	}
}

// NoteChanged publishes the note.* event for a watcher change kind
// ("created", "updated" or "deleted"). Unknown kinds are dropped.
func (b *Broker) NoteChanged(kind, path string) {
	var typ string
	switch kind {
	case "created":
		typ = TypeNoteCreated
	case "updated":
		typ = TypeNoteUpdated
	case "deleted":
		typ = TypeNoteDeleted
	default:
		return
	}
	b.Publish(Event{Type: typ, Data: NoteChange{Path: path}})
}

// ServeHTTP streams events to one client until it disconnects or the
// broker closes. Idle streams get a comment line every thirty seconds.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("retry: 3000\n\n"))
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
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
