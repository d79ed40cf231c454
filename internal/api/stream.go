package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"autofill-service/internal/memory"
)

const (
	notifierQueueSize = 256
	wsWriteTimeout    = 10 * time.Second
)

// wsClient wraps a websocket connection with write locking.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// PatternNotifier fans pattern memory events out to websocket clients. Events
// are queued and written by a dispatcher goroutine, so Broadcast never waits
// on a socket.
type PatternNotifier struct {
	mu        sync.Mutex
	clients   map[*wsClient]struct{}
	lastEvent *memory.Event

	events    chan memory.Event
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func NewPatternNotifier() *PatternNotifier {
	n := &PatternNotifier{
		clients: make(map[*wsClient]struct{}),
		events:  make(chan memory.Event, notifierQueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go n.dispatch()
	return n
}

// Register attaches a websocket connection and replays the last event to it.
func (n *PatternNotifier) Register(conn *websocket.Conn) *wsClient {
	client := &wsClient{conn: conn}
	n.mu.Lock()
	n.clients[client] = struct{}{}
	last := n.lastEvent
	n.mu.Unlock()

	if last != nil {
		_ = client.writeJSON(*last)
	}
	return client
}

// Unregister removes the client and closes its socket.
func (n *PatternNotifier) Unregister(client *wsClient) {
	if client == nil {
		return
	}
	n.mu.Lock()
	delete(n.clients, client)
	n.mu.Unlock()
	_ = client.conn.Close()
}

// Broadcast records evt as the last event and queues it for delivery. When the
// queue is full the event is dropped for live clients.
func (n *PatternNotifier) Broadcast(evt memory.Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	n.mu.Lock()
	snapshot := evt
	n.lastEvent = &snapshot
	n.mu.Unlock()

	select {
	case <-n.done:
	case n.events <- evt:
	default:
		logrus.WithFields(logrus.Fields{
			"type": evt.Type,
			"id":   evt.ID,
		}).Warn("pattern event queue full, dropping event")
	}
}

// Close stops the dispatcher. Queued events are discarded.
func (n *PatternNotifier) Close() {
	n.closeOnce.Do(func() {
		close(n.done)
		<-n.stopped
	})
}

func (n *PatternNotifier) dispatch() {
	defer close(n.stopped)
	for {
		select {
		case <-n.done:
			return
		case evt := <-n.events:
			n.deliver(evt)
		}
	}
}

func (n *PatternNotifier) deliver(evt memory.Event) {
	n.mu.Lock()
	targets := make([]*wsClient, 0, len(n.clients))
	for client := range n.clients {
		targets = append(targets, client)
	}
	n.mu.Unlock()

	for _, client := range targets {
		if err := client.writeJSON(evt); err != nil {
			n.Unregister(client)
		}
	}
}

// LastEvent returns a copy of the most recent event, if any.
func (n *PatternNotifier) LastEvent() *memory.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lastEvent == nil {
		return nil
	}
	evt := *n.lastEvent
	return &evt
}

// Clients reports the number of connected clients.
func (n *PatternNotifier) Clients() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.clients)
}

func (c *wsClient) writeJSON(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(payload)
}
