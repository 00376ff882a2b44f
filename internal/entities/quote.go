package entities

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// SpecifiedTokenAmount selects which side of a quote request carries a
// caller-specified amount; the other side is solved for by the winning bid.
type SpecifiedTokenAmount struct {
	// Exactly one of these is non-nil.
	UserInputToken  *uint64
	UserOutputToken *uint64
}

// QuoteRequest is the input to the Quote Service (spec.md §4.3).
type QuoteRequest struct {
	ChainID          ChainID
	InputMint        solana.PublicKey
	OutputMint       solana.PublicKey
	SpecifiedAmount  SpecifiedTokenAmount
	ReferralFeePpm   uint64
	PlatformFeePpm   uint64
	Router           solana.PublicKey
	UserWallet       *solana.PublicKey // absent => indicative price only
	Cancellable      bool
	MinimumLifetime  time.Duration
	ProfileID        string
}

// QuoteReferenceID uniquely identifies a served quote for later audit.
type QuoteReferenceID uuid.UUID

func NewQuoteReferenceID() QuoteReferenceID { return QuoteReferenceID(uuid.New()) }

// Quote is the Quote Service's response.
type Quote struct {
	ReferenceID     QuoteReferenceID
	ChainID         ChainID
	InputToken      TokenAmountSvm
	OutputToken     TokenAmountSvm
	ReferralFeePpm  uint64
	PlatformFeePpm  uint64
	ExpirationTime  time.Time
	// Transaction is populated only when the request supplied a UserWallet;
	// otherwise this quote is an indicative price only.
	Transaction *solana.Transaction
}
