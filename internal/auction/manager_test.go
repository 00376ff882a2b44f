package auction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/expressrelay/auction-server/internal/chainadapter"
	"github.com/expressrelay/auction-server/internal/entities"
)

type fakeSigner struct{ signed int }

func (s *fakeSigner) Sign(tx *solana.Transaction) error { s.signed++; return nil }

type fakeSubmitter struct {
	result chainadapter.RetryResult
	done   chan struct{}
}

func (s *fakeSubmitter) Submit(ctx context.Context, tx *solana.Transaction) chainadapter.RetryResult {
	defer close(s.done)
	return s.result
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []entities.Event
}

func (p *recordingPublisher) Publish(e entities.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func newTestBid(permissionKey entities.PermissionKeySvm, amount uint64, initiated time.Time) *entities.Bid {
	return &entities.Bid{
		ID:             entities.NewBidID(),
		Amount:         amount,
		InitiationTime: initiated,
		PermissionKey:  permissionKey,
		Status:         entities.BidStatusPending,
		ChainData:      entities.BidChainDataSvm{Transaction: &solana.Transaction{}},
	}
}

func TestManagerConcludeSelectsHighestBidAndSettlesLosers(t *testing.T) {
	pub := &recordingPublisher{}
	done := make(chan struct{})
	submitter := &fakeSubmitter{
		result: chainadapter.RetryResult{Outcome: chainadapter.RetryOutcomeSuccess, Signature: solana.Signature{1}},
		done:   done,
	}
	signer := &fakeSigner{}

	m := New("solana-mainnet-beta", DefaultConfig(), submitter, signer, pub, nil)

	start := time.Now().Add(-time.Hour)
	m.now = func() time.Time { return start.Add(time.Second) }

	key := entities.NewPermissionKeySvm(entities.PermissionKeyTagSubmitBid, solana.NewWallet().PublicKey())
	low := newTestBid(key, 100, start)
	high := newTestBid(key, 500, start)
	m.SubmitBid(low)
	m.SubmitBid(high)

	m.Conclude(context.Background())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitter was never invoked")
	}

	require.Equal(t, entities.BidStatusLost, low.Status)
	require.Equal(t, entities.BidStatusWon, high.Status)
	require.Equal(t, 1, signer.signed)
	require.NotNil(t, high.AuctionID)
	require.Equal(t, low.AuctionID, high.AuctionID)

	auction, ok := m.GetAuction(*high.AuctionID)
	require.True(t, ok)
	require.NotNil(t, auction.ConclusionTime)
	require.NotNil(t, auction.TxSignature)
}

func TestManagerConcludeSwapWinnerAwaitsSignatureAndIsCancellable(t *testing.T) {
	pub := &recordingPublisher{}
	submitter := &fakeSubmitter{done: make(chan struct{})}
	signer := &fakeSigner{}

	m := New("solana-mainnet-beta", DefaultConfig(), submitter, signer, pub, nil)

	start := time.Now().Add(-time.Hour)
	m.now = func() time.Time { return start.Add(time.Second) }

	key := entities.NewPermissionKeySvm(entities.PermissionKeyTagSwap, solana.NewWallet().PublicKey())
	bid := newTestBid(key, 100, start)
	bid.InstructionTag = entities.PermissionKeyTagSwap
	m.SubmitBid(bid)

	m.Conclude(context.Background())

	require.Equal(t, entities.BidStatusAwaitingSignature, bid.Status)
	require.Equal(t, 1, signer.signed)

	select {
	case <-submitter.done:
		t.Fatal("a swap winner must not be handed to the background submitter")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, m.Cancel(bid.ID))
	require.Equal(t, entities.BidStatusCancelled, bid.Status)
}

func TestManagerConcludeSkipsBucketsBelowMinimumLifetime(t *testing.T) {
	m := New("solana-mainnet-beta", DefaultConfig(), &fakeSubmitter{done: make(chan struct{})}, &fakeSigner{}, nil, nil)

	now := time.Now()
	m.now = func() time.Time { return now }

	key := entities.NewPermissionKeySvm(entities.PermissionKeyTagSubmitBid, solana.NewWallet().PublicKey())
	bid := newTestBid(key, 100, now)
	m.SubmitBid(bid)

	m.Conclude(context.Background())

	require.Equal(t, entities.BidStatusPending, bid.Status)
	require.Len(t, m.LiveBidsForPermissionKey(key), 1)
}

func TestManagerLiveBidsForPermissionKeyFeedsDuplicateCheck(t *testing.T) {
	m := New("solana-mainnet-beta", DefaultConfig(), &fakeSubmitter{done: make(chan struct{})}, &fakeSigner{}, nil, nil)
	key := entities.NewPermissionKeySvm(entities.PermissionKeyTagSubmitBid, solana.NewWallet().PublicKey())
	bid := newTestBid(key, 1, time.Now())
	m.SubmitBid(bid)

	live := m.LiveBidsForPermissionKey(key)
	require.Len(t, live, 1)
	require.Equal(t, bid.ID, live[0].ID)
}

func TestManagerCancelOnlyFromAwaitingSignature(t *testing.T) {
	m := New("solana-mainnet-beta", DefaultConfig(), &fakeSubmitter{done: make(chan struct{})}, &fakeSigner{}, nil, nil)
	key := entities.NewPermissionKeySvm(entities.PermissionKeyTagSubmitBid, solana.NewWallet().PublicKey())

	pending := newTestBid(key, 1, time.Now())
	m.SubmitBid(pending)
	require.Error(t, m.Cancel(pending.ID))

	awaiting := newTestBid(key, 1, time.Now())
	awaiting.Status = entities.BidStatusAwaitingSignature
	m.SubmitBid(awaiting)
	require.NoError(t, m.Cancel(awaiting.ID))
	require.Equal(t, entities.BidStatusCancelled, awaiting.Status)
}

func TestSelectWinnersSortsDescending(t *testing.T) {
	key := entities.NewPermissionKeySvm(entities.PermissionKeyTagSubmitBid, solana.NewWallet().PublicKey())
	now := time.Now()
	a := newTestBid(key, 10, now)
	b := newTestBid(key, 30, now)
	c := newTestBid(key, 20, now)

	winners, losers := selectWinners([]*entities.Bid{a, b, c})
	require.Len(t, winners, 1)
	require.Equal(t, b.ID, winners[0].ID)
	require.Len(t, losers, 2)
}
