// Package quote implements the Quote Service (spec.md §4.3): given a
// request for a price on a token pair, it synthesizes a Swap opportunity,
// publishes it to the Opportunity Store, waits a short internal auction
// window for searcher bids, and assembles either a priced Quote (with a
// ready-to-sign transaction, if the caller supplied a wallet) or
// ErrQuoteNotFound if no searcher bid.
//
// Grounded on teacher services/swapd/stable/engine.go: a facade holding
// sync.RWMutex-guarded maps, sentinel errors, an injectable clock, and an
// otel tracer span per request -- adapted here from a pricing/reservation
// engine to a publish-then-wait-for-auction engine.
package quote

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gagliardetto/solana-go"

	"github.com/expressrelay/auction-server/internal/entities"
)

// ErrQuoteNotFound is returned when no searcher bid arrived within the
// auction window.
var ErrQuoteNotFound = errors.New("no bid available for this quote")

// internalAuctionWindow is how long the service waits for searcher bids
// against the synthesized opportunity before giving up (spec.md §4.3: "≈1
// s"). internalMinimumLifetime floors a caller's requested minimum
// transaction lifetime.
const (
	internalAuctionWindow   = time.Second
	internalMinimumLifetime = 2 * time.Second
)

// OpportunityPublisher is the Opportunity Store surface the Quote Service
// needs: publish a synthetic opportunity and tear it down once the auction
// window closes, whether or not a bid arrived.
type OpportunityPublisher interface {
	Add(o *entities.Opportunity) error
	Remove(key entities.OpportunityKey)
}

// BestBidFinder is the Auction Manager surface the Quote Service needs: the
// highest live bid currently racing for a permission key.
type BestBidFinder interface {
	LiveBidsForPermissionKey(key entities.PermissionKeySvm) []*entities.Bid
}

// Service is the Quote Service.
type Service struct {
	opportunities OpportunityPublisher
	bids          BestBidFinder
	tracer        trace.Tracer
	clock         func() time.Time
	auctionWindow time.Duration
}

// New constructs a Service.
func New(opportunities OpportunityPublisher, bids BestBidFinder) *Service {
	return &Service{
		opportunities: opportunities,
		bids:          bids,
		tracer:        otel.Tracer("quote"),
		clock:         time.Now,
		auctionWindow: internalAuctionWindow,
	}
}

// GetQuote runs the algorithm from spec.md §4.3: synthesize a Swap
// opportunity for the request, publish it, wait the internal auction
// window, then ask the Auction Manager for the best bid under the
// opportunity's permission key.
func (s *Service) GetQuote(ctx context.Context, req entities.QuoteRequest) (*entities.Quote, error) {
	ctx, span := s.tracer.Start(ctx, "quote.get_quote")
	defer span.End()
	span.SetAttributes(
		attribute.String("chain_id", string(req.ChainID)),
		attribute.String("router", req.Router.String()),
	)

	opportunity := s.synthesizeOpportunity(req)
	if err := s.opportunities.Add(opportunity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer s.opportunities.Remove(opportunity.Key())

	select {
	case <-time.After(s.auctionWindow):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	permissionKey := opportunity.PermissionKey()
	winner := bestBid(s.bids.LiveBidsForPermissionKey(permissionKey))
	if winner == nil {
		span.SetStatus(codes.Error, ErrQuoteNotFound.Error())
		return nil, ErrQuoteNotFound
	}

	minLifetime := req.MinimumLifetime
	if minLifetime < internalMinimumLifetime {
		minLifetime = internalMinimumLifetime
	}

	quote := &entities.Quote{
		ReferenceID:    entities.NewQuoteReferenceID(),
		ChainID:        req.ChainID,
		InputToken:     tokenAmount(req.InputMint, req.SpecifiedAmount.UserInputToken),
		OutputToken:    tokenAmount(req.OutputMint, req.SpecifiedAmount.UserOutputToken),
		ReferralFeePpm: req.ReferralFeePpm,
		PlatformFeePpm: req.PlatformFeePpm,
		ExpirationTime: s.clock().Add(minLifetime),
	}
	if req.UserWallet != nil {
		quote.Transaction = winner.ChainData.Transaction
	}
	quote.OutputToken.Amount = winner.Amount

	return quote, nil
}

// synthesizeOpportunity builds the synthetic Swap opportunity described in
// spec.md §4.3 step 1: the unspecified side's amount starts at zero,
// resolved once a searcher bids.
func (s *Service) synthesizeOpportunity(req entities.QuoteRequest) *entities.Opportunity {
	var userWallet solana.PublicKey
	var missingSigners []solana.PublicKey
	if req.UserWallet != nil {
		userWallet = *req.UserWallet
	} else {
		// Indicative-price-only: no real wallet is attached to this quote, so
		// a fresh keypair's public key stands in as the permission account --
		// giving every concurrent indicative quote its own O1 key -- and is
		// listed as a missing signer so the verifier exempts it.
		userWallet = solana.NewWallet().PublicKey()
		missingSigners = append(missingSigners, userWallet)
	}

	tokenIn := tokenAmount(req.InputMint, req.SpecifiedAmount.UserInputToken)
	tokenOut := tokenAmount(req.OutputMint, req.SpecifiedAmount.UserOutputToken)

	return &entities.Opportunity{
		ID:                entities.NewOpportunityID(),
		ChainID:           req.ChainID,
		Program:           entities.ProgramSwap,
		PermissionAccount: userWallet,
		RouterAccount:     req.Router,
		CreationTime:      s.clock(),
		State:             entities.OpportunityStateLive,
		Swap: &entities.OpportunitySwapSvm{
			UserWallet:      userWallet,
			TokenIn:         tokenIn,
			TokenOut:        tokenOut,
			ReferralFeePpm:  req.ReferralFeePpm,
			PlatformFeePpm:  req.PlatformFeePpm,
			Cancellable:     req.Cancellable,
			MinimumDeadline: s.clock().Add(req.MinimumLifetime),
			ProfileID:       req.ProfileID,
			MissingSigners:  missingSigners,
		},
	}
}

func tokenAmount(mint solana.PublicKey, amount *uint64) entities.TokenAmountSvm {
	t := entities.TokenAmountSvm{Mint: mint}
	if amount != nil {
		t.Amount = *amount
	}
	return t
}

// bestBid returns the highest-amount bid, or nil if none arrived.
func bestBid(bids []*entities.Bid) *entities.Bid {
	var best *entities.Bid
	for _, bid := range bids {
		if best == nil || bid.Amount > best.Amount {
			best = bid
		}
	}
	return best
}
