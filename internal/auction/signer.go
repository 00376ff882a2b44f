package auction

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/expressrelay/auction-server/internal/chainadapter"
	"github.com/expressrelay/auction-server/internal/metrics"
)

// relayerSigner is the production RelayerSigner: it signs the relayer's
// own slot in the message with an in-memory keypair. auction_manager.rs's
// add_relayer_signature does the equivalent over a Keypair held by the
// chain store.
type relayerSigner struct {
	key solana.PrivateKey
}

// NewRelayerSigner builds a RelayerSigner from the relayer's keypair.
func NewRelayerSigner(key solana.PrivateKey) RelayerSigner {
	return &relayerSigner{key: key}
}

// Sign fills in the relayer's own signature slot. Every other required
// signer's slot is already populated by the time a bid reaches the Auction
// Manager (the Bid Verifier's verifySignatures gate requires it), so
// returning nil for any other key here leaves its existing signature
// untouched rather than erroring.
func (s *relayerSigner) Sign(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.key.PublicKey()) {
			return &s.key
		}
		return nil
	})
	return err
}

// adapterSubmitter is the production Submitter: it delegates to the chain
// adapter's fixed-interval retry loop.
type adapterSubmitter struct {
	adapter  *chainadapter.Adapter
	recorder *metrics.Recorder
	config   chainadapter.RetryConfig
}

// NewAdapterSubmitter builds a Submitter around a chain adapter's
// broadcast/retry loop.
func NewAdapterSubmitter(adapter *chainadapter.Adapter, recorder *metrics.Recorder, config chainadapter.RetryConfig) Submitter {
	return &adapterSubmitter{adapter: adapter, recorder: recorder, config: config}
}

func (s *adapterSubmitter) Submit(ctx context.Context, tx *solana.Transaction) chainadapter.RetryResult {
	return chainadapter.RunRetryLoop(ctx, s.adapter, s.recorder, tx, s.config)
}
