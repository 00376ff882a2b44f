// Package hub is the Subscription Hub: it fans the server's single global
// event stream out to every open WebSocket connection, each filtered by
// that connection's own interest set of chain ids and bid ids.
//
// Grounded on josephblackelite-nhbchain/rpc/ws.go's accept/stream-loop
// shape, generalised from a single fixed stream to per-connection
// subscribe/unsubscribe over multiple topics, and on
// gateway/middleware/ratelimit.go's limiter style for the connection cap.
package hub

import (
	"sync"
	"sync/atomic"

	"github.com/expressrelay/auction-server/internal/entities"
)

// broadcastBuffer is how many events a slow connection can fall behind by
// before the hub starts dropping events for it rather than blocking the
// publisher (spec.md §4.6: "a slow subscriber loses events, it is never
// allowed to stall the broadcaster").
const broadcastBuffer = 256

// Hub owns the registry of live connections and the single publish path
// every other component calls into.
type Hub struct {
	mu          sync.RWMutex
	connections map[*Connection]struct{}

	maxConns int32
	active   int32
}

// New constructs a Hub that rejects new connections once maxConns are
// concurrently open (0 means unlimited).
func New(maxConns int) *Hub {
	return &Hub{
		connections: make(map[*Connection]struct{}),
		maxConns:    int32(maxConns),
	}
}

// ErrTooManyConnections is returned by TryAcquire when the hub is at
// capacity.
type errTooManyConnections struct{}

func (errTooManyConnections) Error() string { return "too many websocket connections" }

// ErrTooManyConnections is the sentinel returned at capacity.
var ErrTooManyConnections error = errTooManyConnections{}

// TryAcquire reserves a connection slot, returning ErrTooManyConnections if
// the hub is already at its configured cap.
func (h *Hub) TryAcquire() error {
	if h.maxConns <= 0 {
		return nil
	}
	for {
		cur := atomic.LoadInt32(&h.active)
		if cur >= h.maxConns {
			return ErrTooManyConnections
		}
		if atomic.CompareAndSwapInt32(&h.active, cur, cur+1) {
			return nil
		}
	}
}

// ReleaseUnservedConnection frees a slot reserved by TryAcquire for a
// connection that never reached Connection.Serve (e.g. the WebSocket
// upgrade handshake itself failed), since in that case unregister never
// runs to release it.
func (h *Hub) ReleaseUnservedConnection() {
	h.release()
}

// release frees the slot reserved by TryAcquire.
func (h *Hub) release() {
	if h.maxConns > 0 {
		atomic.AddInt32(&h.active, -1)
	}
}

// register adds a connection to the fan-out set.
func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	h.connections[c] = struct{}{}
	h.mu.Unlock()
}

// unregister removes a connection and frees its capacity slot.
func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	delete(h.connections, c)
	h.mu.Unlock()
	h.release()
}

// Publish fans event out to every connection whose interest set matches.
// Implements the opportunity.Publisher and auction manager status-update
// interfaces so neither package needs to import hub's connection internals.
func (h *Hub) Publish(event entities.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.connections {
		if !c.interested(event) {
			continue
		}
		select {
		case c.outbound <- event:
		default:
			// Back-pressure via drop: a full channel means the connection's
			// write loop can't keep up; we never block the publisher for it.
		}
	}
}

// ConnectionCount reports the number of currently registered connections,
// used by diagnostics/health endpoints.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}
