package entities

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// BidID uniquely identifies a bid.
type BidID uuid.UUID

func NewBidID() BidID { return BidID(uuid.New()) }

func (id BidID) String() string { return uuid.UUID(id).String() }

// BidStatus is the bid's position in the state machine described in
// spec.md §3:
//
//	Pending ──► AwaitingSignature ──► Submitted ──► Won | Failed | Expired | Cancelled
//	   │                                   │
//	   └──────► Lost                       └──► Lost (if another bid of same auction won)
type BidStatus string

const (
	BidStatusPending           BidStatus = "pending"
	BidStatusAwaitingSignature BidStatus = "awaiting_signature"
	BidStatusSubmitted         BidStatus = "submitted"
	BidStatusWon               BidStatus = "won"
	BidStatusLost              BidStatus = "lost"
	BidStatusFailed            BidStatus = "failed"
	BidStatusExpired           BidStatus = "expired"
	BidStatusCancelled         BidStatus = "cancelled"
)

// IsTerminal reports whether the status is one of the terminal states.
func (s BidStatus) IsTerminal() bool {
	switch s {
	case BidStatusWon, BidStatusLost, BidStatusFailed, BidStatusExpired, BidStatusCancelled:
		return true
	default:
		return false
	}
}

// validBidTransitions lists the allowed transitions. It differs from the
// diagram above: it also allows Pending → Submitted, AwaitingSignature →
// Lost and AwaitingSignature → Cancelled, and Cancelled is not reachable
// from Submitted. CanTransition consults this table so that invariant B1 (a bid never moves
// back toward Pending) is enforced in one place rather than scattered across
// the auction manager.
var validBidTransitions = map[BidStatus]map[BidStatus]bool{
	BidStatusPending: {
		BidStatusAwaitingSignature: true,
		BidStatusSubmitted:         true,
		BidStatusLost:              true,
	},
	BidStatusAwaitingSignature: {
		BidStatusSubmitted: true,
		BidStatusCancelled: true,
		BidStatusLost:      true,
	},
	BidStatusSubmitted: {
		BidStatusWon:     true,
		BidStatusFailed:  true,
		BidStatusExpired: true,
		BidStatusLost:    true,
	},
}

// CanTransition reports whether moving from `from` to `to` is a legal arrow
// in the bid state machine.
func CanTransition(from, to BidStatus) bool {
	next, ok := validBidTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// BidChainDataSvm is the transaction introspection result the Bid Verifier
// produces on success (spec.md §4.4 step 3).
type BidChainDataSvm struct {
	PermissionAccount solana.PublicKey
	Router            solana.PublicKey
	Transaction       *solana.Transaction
}

// GetPermissionKey derives the permission key for this bid's chain data
// given the instruction tag the verifier classified.
func (d BidChainDataSvm) GetPermissionKey(tag PermissionKeyTag) PermissionKeySvm {
	return NewPermissionKeySvm(tag, d.PermissionAccount)
}

// BidCreate is the inbound request to submit a bid, before verification.
type BidCreate struct {
	ChainID     ChainID
	ProfileID   string // optional
	Transaction *solana.Transaction
}

// Bid is a verified, tracked bid.
type Bid struct {
	ID                BidID
	ChainID           ChainID
	Amount            uint64
	ProfileID         string
	InitiationTime    time.Time
	ChainData         BidChainDataSvm
	PermissionKey     PermissionKeySvm
	InstructionTag    PermissionKeyTag
	Status            BidStatus
	AuctionID         *AuctionID
	TxSignature       *solana.Signature
	StatusUpdatedTime time.Time
}

// Transition moves the bid to a new status, enforcing the state machine.
// The auction/bid id association (B2: every bid reaching Submitted or
// beyond has an associated Auction with a tx signature) is the caller's
// responsibility to set before calling Transition into Submitted.
func (b *Bid) Transition(to BidStatus, now time.Time) error {
	if !CanTransition(b.Status, to) {
		return fmt.Errorf("illegal bid transition %s -> %s for bid %s", b.Status, to, b.ID)
	}
	b.Status = to
	b.StatusUpdatedTime = now
	return nil
}
