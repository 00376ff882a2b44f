package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/expressrelay/auction-server/internal/entities"
)

// defaultMaxActiveRequests caps the number of client requests a single connection
// may have in flight at once (spec.md §4.6's MAX_ACTIVE_REQUESTS=10),
// implemented as a buffered semaphore so a burst of subscribe calls queues
// rather than spawning unbounded goroutines per connection.
const defaultMaxActiveRequests = 10

// Connection is a single WebSocket client's actor: one goroutine pumping
// the duplex socket, filtering the hub's broadcast stream against this
// connection's own interest sets.
type Connection struct {
	conn *websocket.Conn
	hub  *Hub

	outbound chan entities.Event

	mu       sync.RWMutex
	chainIDs map[entities.ChainID]struct{}
	bidIDs   map[entities.BidID]struct{}

	sem chan struct{}
}

// NewConnection wraps an already-accepted websocket connection. Call Serve
// to run its actor loop; Serve blocks until the connection closes.
func NewConnection(hub *Hub, conn *websocket.Conn, maxActiveRequests int) *Connection {
	if maxActiveRequests <= 0 {
		maxActiveRequests = defaultMaxActiveRequests
	}
	return &Connection{
		conn:     conn,
		hub:      hub,
		outbound: make(chan entities.Event, broadcastBuffer),
		chainIDs: make(map[entities.ChainID]struct{}),
		bidIDs:   make(map[entities.BidID]struct{}),
		sem:      make(chan struct{}, maxActiveRequests),
	}
}

// interested reports whether this connection's interest sets match event.
func (c *Connection) interested(event entities.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if bidID, ok := event.EventBidID(); ok {
		_, want := c.bidIDs[bidID]
		return want
	}
	if chainID := event.EventChainID(); chainID != "" {
		_, want := c.chainIDs[chainID]
		return want
	}
	return false
}

// Serve runs the connection's read/write/ping actor loop until ctx is
// cancelled or the socket closes. It always releases the connection's hub
// slot on return.
func (c *Connection) Serve(ctx context.Context, pingInterval time.Duration) error {
	c.hub.register(c)
	defer c.hub.unregister(c)

	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}

	inbound := make(chan ClientMessage, 1)
	readErrs := make(chan error, 1)
	go c.readLoop(ctx, inbound, readErrs)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErrs:
			return err
		case msg := <-inbound:
			c.handleMessage(ctx, msg)
		case event := <-c.outbound:
			if err := c.writeJSON(ctx, newEventMessage(event)); err != nil {
				return err
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (c *Connection) readLoop(ctx context.Context, inbound chan<- ClientMessage, errs chan<- error) {
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			errs <- err
			return
		}
		select {
		case inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage processes one client request under the connection's
// request semaphore, blocking briefly if MAX_ACTIVE_REQUESTS are already in
// flight.
func (c *Connection) handleMessage(ctx context.Context, msg ClientMessage) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-c.sem }()

	reply := c.dispatch(msg)
	reply.ID = msg.ID
	_ = c.writeJSON(ctx, reply)
}

func (c *Connection) dispatch(msg ClientMessage) ServerMessage {
	switch msg.Method {
	case MethodSubscribeChainIDs, MethodUnsubscribeChainIDs:
		var params ChainIDsParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return ServerMessage{Error: fmt.Sprintf("invalid params: %v", err)}
		}
		c.mu.Lock()
		for _, id := range params.ChainIDs {
			if msg.Method == MethodSubscribeChainIDs {
				c.chainIDs[id] = struct{}{}
			} else {
				delete(c.chainIDs, id)
			}
		}
		c.mu.Unlock()
		return ServerMessage{}

	case MethodSubscribeBidIDs, MethodUnsubscribeBidIDs:
		var params BidIDsParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return ServerMessage{Error: fmt.Sprintf("invalid params: %v", err)}
		}
		c.mu.Lock()
		for _, raw := range params.BidIDs {
			parsed, err := uuid.Parse(raw)
			if err != nil {
				continue
			}
			id := entities.BidID(parsed)
			if msg.Method == MethodSubscribeBidIDs {
				c.bidIDs[id] = struct{}{}
			} else {
				delete(c.bidIDs, id)
			}
		}
		c.mu.Unlock()
		return ServerMessage{}

	case MethodPing:
		return ServerMessage{}

	default:
		return ServerMessage{Error: fmt.Sprintf("unknown method %q", msg.Method)}
	}
}

func (c *Connection) writeJSON(ctx context.Context, v ServerMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, c.conn, v)
}
