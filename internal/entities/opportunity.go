package entities

import (
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// OpportunityID uniquely identifies an opportunity.
type OpportunityID uuid.UUID

func NewOpportunityID() OpportunityID { return OpportunityID(uuid.New()) }

func (id OpportunityID) String() string { return uuid.UUID(id).String() }

// OpportunityState is the lifetime state of an opportunity (spec.md §3).
type OpportunityState string

const (
	OpportunityStateLive    OpportunityState = "live"
	OpportunityStateRemoved OpportunityState = "removed"
)

// FeeToken selects which side of a swap the fee is denominated in.
type FeeToken string

const (
	FeeTokenSearcher FeeToken = "searcher_token"
	FeeTokenUser     FeeToken = "user_token"
)

// MaxFeePpm is the protocol ceiling on referral+platform fees, expressed in
// parts-per-million. See SPEC_FULL.md Supplemented Features #2.
const MaxFeePpm = 1_000_000

var ErrFeesExceedMaximum = errors.New("referral and platform fees exceed the maximum allowed parts-per-million")

// ErrFeeBpsPpmMismatch is returned when a request sets both a deprecated
// bps fee field and its ppm replacement and they disagree (SPEC_FULL.md
// Open Question O-1).
var ErrFeeBpsPpmMismatch = errors.New("referral_fee_bps/platform_fee_bps does not match the ppm equivalent")

// bpsToPpmFactor converts basis points (1/10,000) to parts-per-million
// (1/1,000,000): bps * 100 = ppm.
const bpsToPpmFactor = 100

// TokenAmountSvm describes one side of a swap: a mint, the token program
// that owns it, and an amount. Amount is zero when the side is not yet
// known (e.g. a quote's unspecified side before a searcher bids on it).
type TokenAmountSvm struct {
	Mint         solana.PublicKey
	TokenProgram solana.PublicKey
	Amount       uint64
}

// TokenAccountInitializationConfig controls whether the server should
// create one of the five ancillary token accounts a swap may touch
// (searcher ATA, user ATA, router ATA, fee-receiver ATAs, ...).
type TokenAccountInitializationConfig struct {
	SearcherAccount        TokenAccountInitializationPolicy
	UserAccount             TokenAccountInitializationPolicy
	RouterAccount           TokenAccountInitializationPolicy
	RelayerFeeAccount       TokenAccountInitializationPolicy
	ExpressRelayFeeAccount  TokenAccountInitializationPolicy
}

type TokenAccountInitializationPolicy string

const (
	TokenAccountUnneeded            TokenAccountInitializationPolicy = "unneeded"
	TokenAccountNeeded              TokenAccountInitializationPolicy = "needed"
	TokenAccountInitializeIfNeeded  TokenAccountInitializationPolicy = "initialize_if_needed"
)

// OpportunityLimoSvm is the Limo (limit order) program variant's payload.
type OpportunityLimoSvm struct {
	Order        []byte // opaque, program-specific order payload
	OrderAccount solana.PublicKey
	Slot         uint64
}

// OpportunitySwapSvm is the Swap program variant's payload.
type OpportunitySwapSvm struct {
	UserWallet                solana.PublicKey
	UserBalance               uint64
	TokenIn                   TokenAmountSvm
	TokenOut                  TokenAmountSvm
	FeeToken                  FeeToken
	ReferralFeePpm            uint64
	PlatformFeePpm            uint64
	// ReferralFeeBps/PlatformFeeBps are deprecated wire-compat inputs only
	// (SPEC_FULL.md O-1): never read back from a stored opportunity, only
	// reconciled into the ppm fields above by ReconcileFees at the API edge.
	ReferralFeeBps            *uint32 `json:"referral_fee_bps,omitempty"`
	PlatformFeeBps            *uint32 `json:"platform_fee_bps,omitempty"`
	TokenAccountInitialization TokenAccountInitializationConfig
	Memo                      *string
	Cancellable               bool
	MinimumDeadline           time.Time
	ProfileID                 string
	// MissingSigners lists accounts an opportunity declares will NOT carry a
	// valid signature in a submitted bid (spec.md §4.4 step 8b) — e.g. the
	// user wallet, which co-signs out of band.
	MissingSigners []solana.PublicKey
}

// Validate enforces the fee ceiling described in SPEC_FULL.md's
// Supplemented Features #2.
func (s OpportunitySwapSvm) Validate() error {
	if s.ReferralFeePpm+s.PlatformFeePpm > MaxFeePpm {
		return ErrFeesExceedMaximum
	}
	return nil
}

// ReconcileFees folds the deprecated bps fields into their ppm
// replacements (SPEC_FULL.md O-1): a request supplying only a bps field has
// it converted (bps*100=ppm); a request supplying both must have them
// agree. The bps fields are never stored once reconciled.
func (s *OpportunitySwapSvm) ReconcileFees() error {
	if s.ReferralFeeBps != nil {
		converted := uint64(*s.ReferralFeeBps) * bpsToPpmFactor
		if s.ReferralFeePpm != 0 && s.ReferralFeePpm != converted {
			return ErrFeeBpsPpmMismatch
		}
		s.ReferralFeePpm = converted
		s.ReferralFeeBps = nil
	}
	if s.PlatformFeeBps != nil {
		converted := uint64(*s.PlatformFeeBps) * bpsToPpmFactor
		if s.PlatformFeePpm != 0 && s.PlatformFeePpm != converted {
			return ErrFeeBpsPpmMismatch
		}
		s.PlatformFeePpm = converted
		s.PlatformFeeBps = nil
	}
	return nil
}

// Opportunity is a declared, server-known action that may be auctioned.
type Opportunity struct {
	ID                OpportunityID
	ChainID           ChainID
	Program           Program
	PermissionAccount solana.PublicKey
	RouterAccount     solana.PublicKey
	CreationTime      time.Time
	State             OpportunityState
	Limo              *OpportunityLimoSvm
	Swap              *OpportunitySwapSvm
}

// Key is the (chain_id, permission_account, router_account, program) tuple
// that invariant O1 says uniquely determines a live opportunity.
type OpportunityKey struct {
	ChainID           ChainID
	PermissionAccount solana.PublicKey
	RouterAccount     solana.PublicKey
	Program           Program
}

func (o *Opportunity) Key() OpportunityKey {
	return OpportunityKey{
		ChainID:           o.ChainID,
		PermissionAccount: o.PermissionAccount,
		RouterAccount:     o.RouterAccount,
		Program:           o.Program,
	}
}

// PermissionKey derives the 33-byte permission key for this opportunity.
// Limo opportunities are claimed via a SubmitBid instruction; Swap
// opportunities are claimed via a Swap instruction.
func (o *Opportunity) PermissionKey() PermissionKeySvm {
	tag := PermissionKeyTagSubmitBid
	if o.Program == ProgramSwap {
		tag = PermissionKeyTagSwap
	}
	return NewPermissionKeySvm(tag, o.PermissionAccount)
}

// Slot returns the freshness slot used by invariant O2 (monotonically
// non-decreasing per key); Limo carries an explicit slot, Swap has none and
// is therefore always considered "freshest" on resubmission of the same key.
func (o *Opportunity) Slot() uint64 {
	if o.Limo != nil {
		return o.Limo.Slot
	}
	return 0
}

// GetMissingSigners returns the accounts the verifier should not require a
// valid signature from.
func (o *Opportunity) GetMissingSigners() []solana.PublicKey {
	if o.Swap == nil {
		return nil
	}
	return o.Swap.MissingSigners
}
