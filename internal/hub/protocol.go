package hub

import (
	"encoding/json"

	"github.com/expressrelay/auction-server/internal/entities"
)

// ClientMessage is an inbound subscribe/unsubscribe request. id is echoed
// back on the response so a client can correlate replies with requests it
// sent, matching the request/response pattern used over the single duplex
// socket (spec.md §4.6).
type ClientMessage struct {
	ID     *int            `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

const (
	MethodSubscribeChainIDs   = "subscribe_chain_ids"
	MethodUnsubscribeChainIDs = "unsubscribe_chain_ids"
	MethodSubscribeBidIDs     = "subscribe_bid_ids"
	MethodUnsubscribeBidIDs   = "unsubscribe_bid_ids"
	MethodPing                = "ping"
)

// ChainIDsParams is the params payload for (un)subscribe_chain_ids.
type ChainIDsParams struct {
	ChainIDs []entities.ChainID `json:"chain_ids"`
}

// BidIDsParams is the params payload for (un)subscribe_bid_ids.
type BidIDsParams struct {
	BidIDs []string `json:"bid_ids"`
}

// ServerMessage is an outbound frame: either an acknowledgement of a
// client request or an event the connection is subscribed to.
type ServerMessage struct {
	ID    *int   `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
	Event *eventPayload `json:"event,omitempty"`
}

type eventPayload struct {
	Kind entities.EventKind `json:"kind"`
	Data any                `json:"data"`
}

func newEventMessage(e entities.Event) ServerMessage {
	var data any
	switch e.Kind {
	case entities.EventNewOpportunity:
		data = e.NewOpportunity
	case entities.EventRemoveOpportunities:
		data = e.RemovedOpportunities
	case entities.EventBidStatusUpdate:
		data = e.BidStatusUpdate
	case entities.EventSvmChainUpdate:
		data = e.SvmChainUpdate
	}
	return ServerMessage{Event: &eventPayload{Kind: e.Kind, Data: data}}
}
