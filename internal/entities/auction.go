package entities

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// AuctionID uniquely identifies an auction.
type AuctionID uuid.UUID

func NewAuctionID() AuctionID { return AuctionID(uuid.New()) }

func (id AuctionID) String() string { return uuid.UUID(id).String() }

// Auction is a time-bounded grouping of bids sharing a permission key.
//
// Ownership follows the "arena" pattern from spec.md §9: the Auction owns
// bids by id, not by reference, so a snapshot of an auction is cheap and the
// natural owns-a-cycle between Bid.AuctionID and Auction.BidIDs never forms.
type Auction struct {
	ID              AuctionID
	ChainID         ChainID
	PermissionKey   PermissionKeySvm
	CreationTime    time.Time
	ConclusionTime  *time.Time
	TxSignature     *solana.Signature
	BidIDs          []BidID
}

// Concluded reports whether this auction has reached A1 (conclusion_time
// set exactly once, after every bid has a terminal decision).
func (a *Auction) Concluded() bool {
	return a.ConclusionTime != nil
}
