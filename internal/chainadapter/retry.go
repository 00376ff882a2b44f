package chainadapter

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
)

// RetryConfig parameterises the broadcast retry loop from the chain's
// configuration (internal/config.ChainConfig): how often to re-broadcast,
// the hard cap on attempts, and the bid's own maximum lifetime, whichever
// triggers expiry first.
type RetryConfig struct {
	Interval        time.Duration
	MaxRetries      int
	BidMaxLifetime  time.Duration
}

// RetryResult is what the auction manager learns once a retry loop reaches
// a terminal state.
type RetryResult struct {
	Outcome   RetryOutcome
	Signature solana.Signature
	Err       error
}

// RunRetryLoop owns a single submitted bid's transaction from first
// broadcast through to a terminal outcome. It re-broadcasts tx every
// cfg.Interval (Solana broadcasts are fire-and-forget UDP-like gossip, so
// resending costs nothing and covers dropped packets) and polls
// SignatureStatus after each send, stopping as soon as the signature
// confirms, lands with an error, the retry budget is exhausted, or the
// bid's own maximum lifetime elapses.
//
// Grounded on Jason-chen-taiwan-arcSignv2/src/chainadapter/adapter.go's
// retry/backoff shape and error.go's success/failed/expired classification,
// adapted to SVM's fire-and-forget broadcast model (fixed interval, no
// exponential backoff) per spec.md §4.1.
func RunRetryLoop(ctx context.Context, adapter *Adapter, recorder interface {
	RecordBroadcastOutcome(chainID, outcome string)
	RecordLandingTime(chainID, status string, submitted time.Time)
}, tx *solana.Transaction, cfg RetryConfig) RetryResult {
	submitted := clockNow()
	deadline := submitted.Add(cfg.BidMaxLifetime)

	sig, err := adapter.Broadcast(ctx, tx)
	if err != nil {
		return finishRetry(adapter, recorder, submitted, RetryOutcomeFailed, sig, err)
	}
	adapter.PendingSet().Add(sig)
	defer adapter.PendingSet().Remove(sig)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return finishRetry(adapter, recorder, submitted, RetryOutcomeExpired, sig, ctx.Err())
		case <-ticker.C:
		}

		status, err := adapter.SignatureStatus(ctx, sig)
		if err == nil && status != nil {
			if status.Err != nil {
				return finishRetry(adapter, recorder, submitted, RetryOutcomeFailed, sig, status.Err)
			}
			if status.Confirmed {
				return finishRetry(adapter, recorder, submitted, RetryOutcomeSuccess, sig, nil)
			}
		}

		if clockNow().After(deadline) {
			return finishRetry(adapter, recorder, submitted, RetryOutcomeExpired, sig, nil)
		}
		if attempt >= cfg.MaxRetries {
			return finishRetry(adapter, recorder, submitted, RetryOutcomeExpired, sig, nil)
		}

		// Resend: the original send may have been dropped before it ever
		// reached a leader.
		if _, err := adapter.Broadcast(ctx, tx); err != nil {
			adapter.logFn("chainadapter: retry broadcast attempt %d failed: %v", attempt, err)
		}
	}
}

func finishRetry(adapter *Adapter, recorder interface {
	RecordBroadcastOutcome(chainID, outcome string)
	RecordLandingTime(chainID, status string, submitted time.Time)
}, submitted time.Time, outcome RetryOutcome, sig solana.Signature, err error) RetryResult {
	if recorder != nil {
		recorder.RecordBroadcastOutcome(adapter.ChainID(), string(outcome))
		recorder.RecordLandingTime(adapter.ChainID(), string(outcome), submitted)
	}
	return RetryResult{Outcome: outcome, Signature: sig, Err: err}
}
