// Package auction implements the Auction Manager (spec.md §4.5): a
// per-chain, per-permission-key bucket of pending bids that periodically
// concludes into auctions, selects a winner by highest bid amount, adds the
// relayer's signature, submits the winning transaction, and settles every
// bid's terminal status.
//
// Grounded directly on
// original_source/auction-server/src/auction/service/auction_manager.rs's
// Svm impl: the conclusion cadence, minimum-bid-lifetime gate, and
// single-winner fallback all mirror conclude_auction/get_winner_bids one
// for one, translated from the async actor-per-chain loop into a Manager
// whose Conclude/Poll methods a caller (cmd/auction-server) drives on a
// ticker.
package auction

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/expressrelay/auction-server/internal/chainadapter"
	"github.com/expressrelay/auction-server/internal/entities"
	"github.com/expressrelay/auction-server/internal/metrics"
)

// Timing constants from auction_manager.rs's Svm constants:
// AUCTION_MINIMUM_LIFETIME_SVM, BID_MAXIMUM_LIFE_TIME_SVM, and the
// status-poll loop's default interval (ConclusionInterval).
const (
	MinimumLifetime     = 400 * time.Millisecond
	MaximumBidLifetime  = 120 * time.Second
	ConclusionInterval  = 60 * time.Second
	AbandonmentLifetime = 2 * MaximumBidLifetime
)

// Submitter broadcasts a fully-signed winning transaction and retries until
// it lands, fails, or expires. Production wiring passes a closure around
// chainadapter.RunRetryLoop; tests inject a fake that resolves immediately.
type Submitter interface {
	Submit(ctx context.Context, tx *solana.Transaction) chainadapter.RetryResult
}

// Publisher is the narrow event sink the Subscription Hub satisfies.
type Publisher interface {
	Publish(entities.Event)
}

// RelayerSigner adds the relayer's own signature to a winning bid's
// transaction, at whichever account position the relayer occupies in the
// message (auction_manager.rs's add_relayer_signature).
type RelayerSigner interface {
	Sign(tx *solana.Transaction) error
}

// Config is the per-chain auction-manager configuration.
type Config struct {
	MinimumLifetime    time.Duration
	MaximumBidLifetime time.Duration
	ConclusionInterval time.Duration
}

// DefaultConfig returns the Svm constants from auction_manager.rs.
func DefaultConfig() Config {
	return Config{
		MinimumLifetime:    MinimumLifetime,
		MaximumBidLifetime: MaximumBidLifetime,
		ConclusionInterval: ConclusionInterval,
	}
}

// bucket is the set of pending bid ids racing for one permission key.
type bucket struct {
	bidIDs []entities.BidID
}

// Manager is the per-chain Auction Manager.
type Manager struct {
	chainID   entities.ChainID
	config    Config
	submitter Submitter
	signer    RelayerSigner
	publisher Publisher
	recorder  *metrics.Recorder

	mu       sync.Mutex
	pending  map[entities.PermissionKeySvm]*bucket
	bids     map[entities.BidID]*entities.Bid
	auctions map[entities.AuctionID]*entities.Auction

	now func() time.Time
}

// New constructs a Manager for one configured chain.
func New(chainID entities.ChainID, config Config, submitter Submitter, signer RelayerSigner, publisher Publisher, recorder *metrics.Recorder) *Manager {
	return &Manager{
		chainID:   chainID,
		config:    config,
		submitter: submitter,
		signer:    signer,
		publisher: publisher,
		recorder:  recorder,
		pending:   make(map[entities.PermissionKeySvm]*bucket),
		bids:      make(map[entities.BidID]*entities.Bid),
		auctions:  make(map[entities.AuctionID]*entities.Auction),
		now:       time.Now,
	}
}

// SubmitBid enqueues a verified bid into its permission key's bucket. The
// caller (the HTTP API, after the Bid Verifier accepts the bid) owns
// setting bid.Status to BidStatusPending and bid.InitiationTime before
// calling this.
func (m *Manager) SubmitBid(bid *entities.Bid) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.pending[bid.PermissionKey]
	if !ok {
		b = &bucket{}
		m.pending[bid.PermissionKey] = b
	}
	b.bidIDs = append(b.bidIDs, bid.ID)
	m.bids[bid.ID] = bid
}

// GetBid returns a tracked bid by id, live or decided.
func (m *Manager) GetBid(id entities.BidID) (*entities.Bid, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[id]
	return b, ok
}

// GetAuction returns a concluded or in-flight auction by id.
func (m *Manager) GetAuction(id entities.AuctionID) (*entities.Auction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	return a, ok
}

// ListBidsByProfile returns a profile's bids initiated at or after `from`,
// newest first, capped at limit (spec.md §6 GET /{chain_id}/bids). limit<=0
// means unbounded.
func (m *Manager) ListBidsByProfile(profileID string, from time.Time, limit int) []*entities.Bid {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*entities.Bid
	for _, b := range m.bids {
		if b.ProfileID != profileID {
			continue
		}
		if b.InitiationTime.Before(from) {
			continue
		}
		matched = append(matched, b)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].InitiationTime.After(matched[j].InitiationTime)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

// LiveBidsForPermissionKey satisfies verifier.LiveBidsLister: bids still
// sitting in the pending bucket for this permission key, i.e. not yet
// decided by a conclusion sweep. Used by the Bid Verifier to reject exact
// duplicate bids.
func (m *Manager) LiveBidsForPermissionKey(key entities.PermissionKeySvm) []*entities.Bid {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.pending[key]
	if !ok {
		return nil
	}
	out := make([]*entities.Bid, 0, len(b.bidIDs))
	for _, id := range b.bidIDs {
		if bid, ok := m.bids[id]; ok {
			out = append(out, bid)
		}
	}
	return out
}

// Cancel moves a bid from AwaitingSignature to Cancelled -- the only
// cancellable state (spec.md §3): a Pending bid is still racing other bids
// for the same permission key, and a Submitted bid is already broadcast.
func (m *Manager) Cancel(id entities.BidID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bid, ok := m.bids[id]
	if !ok {
		return fmt.Errorf("unknown bid %s", id)
	}
	if err := bid.Transition(entities.BidStatusCancelled, m.now()); err != nil {
		return err
	}
	m.publishStatusLocked(bid)
	return nil
}

// readyBucket is a snapshot of one permission key's pending bids that have
// aged past MinimumLifetime, popped atomically out of m.pending so two
// concurrent Conclude calls can't double-process the same key.
type readyBucket struct {
	key  entities.PermissionKeySvm
	bids []*entities.Bid
}

func (m *Manager) collectReady() []readyBucket {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var ready []readyBucket
	for key, b := range m.pending {
		if len(b.bidIDs) == 0 {
			delete(m.pending, key)
			continue
		}
		bids := make([]*entities.Bid, 0, len(b.bidIDs))
		oldest := now
		for _, id := range b.bidIDs {
			bid, ok := m.bids[id]
			if !ok {
				continue
			}
			bids = append(bids, bid)
			if bid.InitiationTime.Before(oldest) {
				oldest = bid.InitiationTime
			}
		}
		if now.Sub(oldest) < m.config.MinimumLifetime {
			continue
		}
		ready = append(ready, readyBucket{key: key, bids: bids})
		delete(m.pending, key)
	}
	return ready
}

// Conclude runs one auction-conclusion sweep: every permission key whose
// oldest pending bid has aged past MinimumLifetime forms an Auction,
// selects a winner by highest amount, signs and submits it, and settles
// every other bid in the bucket as Lost. Callers drive this on a
// 400ms-ish ticker (auction_manager.rs's trigger_conclusion loop).
func (m *Manager) Conclude(ctx context.Context) {
	for _, rb := range m.collectReady() {
		m.concludeBucket(ctx, rb)
	}
}

// concludeBucket forms one Auction from a ready bucket's bids, per
// auction_manager.rs's conclude_auction: sort winners out via
// selectWinners, settle losers immediately as Lost, and hand winners to
// submitWinner for signing and broadcast.
func (m *Manager) concludeBucket(ctx context.Context, rb readyBucket) {
	winners, losers := selectWinners(rb.bids)
	now := m.now()

	auction := &entities.Auction{
		ID:            entities.NewAuctionID(),
		ChainID:       m.chainID,
		PermissionKey: rb.key,
		CreationTime:  now,
	}
	for _, bid := range rb.bids {
		auction.BidIDs = append(auction.BidIDs, bid.ID)
	}

	m.mu.Lock()
	m.auctions[auction.ID] = auction
	m.mu.Unlock()

	for _, bid := range losers {
		bid.AuctionID = &auction.ID
		if err := bid.Transition(entities.BidStatusLost, now); err != nil {
			continue
		}
		m.publishStatus(bid)
	}

	for _, bid := range winners {
		bid.AuctionID = &auction.ID
		m.submitWinner(ctx, auction, bid)
	}
}

// submitWinner signs the winning bid's transaction with the relayer's
// signature and moves it toward broadcast. spec.md §4.5: a winner moves to
// AwaitingSignature (ByOther/Swap, awaiting an off-server co-signer) or
// straight to Submitted (ByServer). Only a bid left in AwaitingSignature
// ever produces that status event or becomes reachable from Cancel;
// auction_manager.rs's add_relayer_signature + submit_bids correspond to
// the sign + Submit call below, get_new_status's winner branch to the
// tag-dependent transition path.
func (m *Manager) submitWinner(ctx context.Context, auction *entities.Auction, bid *entities.Bid) {
	now := m.now()
	tx := bid.ChainData.Transaction

	if err := m.signer.Sign(tx); err != nil {
		if tErr := bid.Transition(entities.BidStatusLost, now); tErr == nil {
			m.publishStatus(bid)
		}
		return
	}

	// Only a Swap bid (tag PermissionKeyTagSwap, SubmitType ByOther) awaits
	// an off-server co-signer; a plain SubmitBid/ByServer winner is already
	// fully signed once the relayer's signature lands above.
	if bid.InstructionTag == entities.PermissionKeyTagSwap {
		if err := bid.Transition(entities.BidStatusAwaitingSignature, now); err != nil {
			return
		}
		m.publishStatus(bid)
		return
	}

	if err := bid.Transition(entities.BidStatusSubmitted, now); err != nil {
		return
	}
	m.publishStatus(bid)

	go func() {
		result := m.submitter.Submit(ctx, tx)
		m.finishSubmission(auction, bid, result)
	}()
}

// finishSubmission settles a submitted bid's terminal status once the
// retry loop reaches success, failure, or expiry, and records the landing
// time and the auction's conclusion once its first submitted bid reaches
// any of those terminal outcomes
// (auction_manager.rs's get_bid_results / A1's "conclusion_time set
// exactly once").
func (m *Manager) finishSubmission(auction *entities.Auction, bid *entities.Bid, result chainadapter.RetryResult) {
	now := m.now()
	sig := result.Signature
	bid.TxSignature = &sig

	var newStatus entities.BidStatus
	switch result.Outcome {
	case chainadapter.RetryOutcomeSuccess:
		newStatus = entities.BidStatusWon
	case chainadapter.RetryOutcomeExpired:
		newStatus = entities.BidStatusExpired
	default:
		newStatus = entities.BidStatusFailed
	}

	if err := bid.Transition(newStatus, now); err != nil {
		return
	}
	m.publishStatus(bid)
	if m.recorder != nil {
		m.recorder.RecordLandingTime(string(m.chainID), string(newStatus), bid.InitiationTime)
	}

	m.mu.Lock()
	if auction.ConclusionTime == nil {
		t := now
		auction.ConclusionTime = &t
		auction.TxSignature = &sig
	}
	m.mu.Unlock()
}

// Poll advances every Submitted bid against its on-chain signature status,
// settling bids the conclusion sweep's own retry loop hasn't already
// resolved (e.g. a bid resubmitted after a dropped slot) and abandoning
// bids whose auction has sat unresolved for AbandonmentLifetime
// (auction_manager.rs's is_auction_expired: 2x the maximum bid lifetime).
// Callers drive this on a ConclusionInterval-ish ticker (60s).
func (m *Manager) Poll(ctx context.Context, statusOf func(ctx context.Context, sig solana.Signature) (*chainadapter.SignatureStatus, error)) {
	now := m.now()
	for _, bid := range m.submittedBids() {
		if bid.TxSignature == nil {
			continue
		}
		status, err := statusOf(ctx, *bid.TxSignature)
		if err == nil && status != nil && status.Confirmed {
			newStatus := entities.BidStatusWon
			if status.Err != nil {
				newStatus = entities.BidStatusFailed
			}
			if tErr := bid.Transition(newStatus, now); tErr == nil {
				m.publishStatus(bid)
				if m.recorder != nil {
					m.recorder.RecordLandingTime(string(m.chainID), string(newStatus), bid.InitiationTime)
				}
			}
			continue
		}
		if now.Sub(bid.InitiationTime) > 2*m.config.MaximumBidLifetime {
			if tErr := bid.Transition(entities.BidStatusExpired, now); tErr == nil {
				m.publishStatus(bid)
			}
		}
	}
}

func (m *Manager) submittedBids() []*entities.Bid {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*entities.Bid, 0)
	for _, bid := range m.bids {
		if bid.Status == entities.BidStatusSubmitted {
			out = append(out, bid)
		}
	}
	return out
}

func (m *Manager) publishStatus(bid *entities.Bid) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishStatusLocked(bid)
}

func (m *Manager) publishStatusLocked(bid *entities.Bid) {
	if m.publisher == nil {
		return
	}
	m.publisher.Publish(entities.Event{
		Kind: entities.EventBidStatusUpdate,
		BidStatusUpdate: &entities.BidStatusUpdateEvent{
			ChainID:     bid.ChainID,
			BidID:       bid.ID,
			Status:      bid.Status,
			AuctionID:   bid.AuctionID,
			TxSignature: bid.TxSignature,
		},
	})
}

// selectWinners sorts bids by amount descending and returns the single
// highest bid as the winner plus every other bid as a loser. A true
// optimizer combining multiple compatible bids is an extension point
// spec.md doesn't require; auction_manager.rs itself falls back to exactly
// this rule (bids.first() after a descending sort) when no optimizer
// program is configured for the chain.
func selectWinners(bids []*entities.Bid) (winners, losers []*entities.Bid) {
	if len(bids) == 0 {
		return nil, nil
	}
	sorted := make([]*entities.Bid, len(bids))
	copy(sorted, bids)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Amount > sorted[j].Amount })
	return sorted[:1], sorted[1:]
}
