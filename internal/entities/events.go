package entities

import "github.com/gagliardetto/solana-go"

// EventKind discriminates the server-wide broadcast event types that the
// Opportunity Store and Auction Manager publish and the Subscription Hub
// fans out, filtered per-connection by chain id or bid id (spec.md §4.6).
type EventKind string

const (
	EventNewOpportunity     EventKind = "new_opportunity"
	EventRemoveOpportunities EventKind = "remove_opportunities"
	EventBidStatusUpdate    EventKind = "bid_status_update"
	EventSvmChainUpdate     EventKind = "svm_chain_update"
)

// Event is the envelope placed on the single global broadcast channel.
// Exactly one of the payload fields is populated, selected by Kind.
type Event struct {
	Kind EventKind

	NewOpportunity      *Opportunity
	RemovedOpportunities *RemoveOpportunitiesEvent
	BidStatusUpdate     *BidStatusUpdateEvent
	SvmChainUpdate      *SvmChainUpdateEvent
}

// EventChainID reports which chain this event concerns, for the hub's
// per-chain interest filter. Bid status events are filtered by bid id
// instead (see EventBidID()).
func (e Event) EventChainID() ChainID {
	switch e.Kind {
	case EventNewOpportunity:
		return e.NewOpportunity.ChainID
	case EventRemoveOpportunities:
		return e.RemovedOpportunities.ChainID
	case EventSvmChainUpdate:
		return e.SvmChainUpdate.ChainID
	case EventBidStatusUpdate:
		return e.BidStatusUpdate.ChainID
	default:
		return ""
	}
}

// EventBidID reports the bid this event concerns, if any, for the hub's
// per-bid-id interest filter.
func (e Event) EventBidID() (BidID, bool) {
	if e.Kind != EventBidStatusUpdate {
		return BidID{}, false
	}
	return e.BidStatusUpdate.BidID, true
}

// RemoveOpportunitiesEvent announces that every opportunity matching a key
// has left the live set.
type RemoveOpportunitiesEvent struct {
	ChainID           ChainID
	PermissionAccount solana.PublicKey
	RouterAccount     solana.PublicKey
	Program           Program
}

// BidStatusUpdateEvent announces a bid's new status.
type BidStatusUpdateEvent struct {
	ChainID     ChainID
	BidID       BidID
	Status      BidStatus
	AuctionID   *AuctionID
	TxSignature *solana.Signature
}

// SvmChainUpdateEvent announces a new confirmed blockhash/slot tick for a
// chain; subscribers use it for liveness rather than auction logic.
type SvmChainUpdateEvent struct {
	ChainID   ChainID
	Slot      uint64
	Blockhash solana.Hash
}
