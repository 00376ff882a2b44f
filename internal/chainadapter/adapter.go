// Package chainadapter connects the auction server to an SVM RPC/WS
// endpoint set. It fans broadcasts out to every configured provider,
// fans signature-status polls in and takes the first definitive answer,
// and owns a background retry loop that keeps rebroadcasting a submitted
// transaction until it lands or Solana's blockhash window closes.
//
// Contract (spec.md §4.1):
//   - Broadcast fans out to N endpoints in parallel and succeeds if any one
//     returns Ok.
//   - SignatureStatus fans in and returns the first definitive result;
//     Ok(status) wins over errors and over "not found yet".
//   - Simulate is a single-endpoint dry run.
//   - PendingSet records which signatures the retry loop currently has in
//     flight; Simulate does not consult it.
//
// Grounded on Jason-chen-taiwan-arcSignv2/src/chainadapter/adapter.go for
// the contract-comment style and error classification, and on
// original_source's verification.rs for lookup-table / simulate semantics.
package chainadapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrAllEndpointsFailed is returned by Broadcast/SignatureStatus when every
// configured endpoint answered with an error (spec.md §4.1: "a unanimous
// failure surfaces as a temporary-unavailability error").
var ErrAllEndpointsFailed = errors.New("all rpc endpoints failed")

// SignatureStatus mirrors the subset of Solana's signature-status response
// the auction manager's poller needs.
type SignatureStatus struct {
	Confirmed bool
	Err       error // non-nil if the transaction landed but reverted
	Slot      uint64
}

// SimulationResult is the outcome of a dry run.
type SimulationResult struct {
	Logs    []string
	Err     error // non-nil program error, if any
}

// Endpoint is a single configured RPC provider.
type Endpoint struct {
	Name   string
	Client *rpc.Client
}

// Adapter is the SVM implementation of the Chain Adapter contract.
type Adapter struct {
	chainID   string
	endpoints []Endpoint
	simClient *rpc.Client // endpoint used for single-endpoint simulate/get_account

	pending *PendingSet
	tables  *LookupTableCache

	logFn func(format string, args ...any)
}

// NewAdapter constructs an Adapter over the given endpoints. The first
// endpoint is also used for single-endpoint operations (simulate,
// get_account), matching spec.md's "single-endpoint dry run" wording.
func NewAdapter(chainID string, endpoints []Endpoint) (*Adapter, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("chain adapter for %s requires at least one rpc endpoint", chainID)
	}
	return &Adapter{
		chainID:   chainID,
		endpoints: endpoints,
		simClient: endpoints[0].Client,
		pending:   NewPendingSet(),
		tables:    NewLookupTableCache(endpoints[0].Client),
		logFn:     func(string, ...any) {},
	}, nil
}

// SetLogger installs a printf-style logger used for per-endpoint failure
// diagnostics that are swallowed as long as one endpoint answers.
func (a *Adapter) SetLogger(fn func(format string, args ...any)) {
	if fn != nil {
		a.logFn = fn
	}
}

func (a *Adapter) ChainID() string       { return a.chainID }
func (a *Adapter) PendingSet() *PendingSet { return a.pending }
func (a *Adapter) LookupTables() *LookupTableCache { return a.tables }

// Broadcast fans a send out to every endpoint in parallel. It succeeds as
// soon as any single endpoint returns Ok; per-endpoint errors are logged and
// swallowed. A unanimous failure returns ErrAllEndpointsFailed.
func (a *Adapter) Broadcast(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	type result struct {
		sig solana.Signature
		err error
	}
	results := make(chan result, len(a.endpoints))
	var wg sync.WaitGroup
	for _, ep := range a.endpoints {
		wg.Add(1)
		go func(ep Endpoint) {
			defer wg.Done()
			sig, err := ep.Client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
				SkipPreflight:       true,
				PreflightCommitment: rpc.CommitmentProcessed,
			})
			if err != nil {
				a.logFn("chainadapter: endpoint %s broadcast failed: %v", ep.Name, err)
			}
			results <- result{sig: sig, err: err}
		}(ep)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	for r := range results {
		if r.err == nil {
			return r.sig, nil
		}
		if firstErr == nil {
			firstErr = r.err
		}
	}
	return solana.Signature{}, fmt.Errorf("%w: %v", ErrAllEndpointsFailed, firstErr)
}

// SignatureStatus fans a poll in across every endpoint and returns the
// first definitive result: Ok(status) beats "not found yet" (nil, nil),
// which beats an error; an error is returned only when every endpoint
// errored.
func (a *Adapter) SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	type result struct {
		status *SignatureStatus
		err    error
	}
	results := make(chan result, len(a.endpoints))
	var wg sync.WaitGroup
	for _, ep := range a.endpoints {
		wg.Add(1)
		go func(ep Endpoint) {
			defer wg.Done()
			resp, err := ep.Client.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				a.logFn("chainadapter: endpoint %s status poll failed: %v", ep.Name, err)
				results <- result{err: err}
				return
			}
			if len(resp.Value) == 0 || resp.Value[0] == nil {
				results <- result{status: nil}
				return
			}
			st := resp.Value[0]
			var txErr error
			if st.Err != nil {
				txErr = fmt.Errorf("%v", st.Err)
			}
			confirmed := st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				st.ConfirmationStatus == rpc.ConfirmationStatusFinalized
			results <- result{status: &SignatureStatus{Confirmed: confirmed, Err: txErr, Slot: st.Slot}}
		}(ep)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	sawNotFound := false
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		if r.status != nil {
			return r.status, nil
		}
		sawNotFound = true
	}
	if sawNotFound {
		return nil, nil
	}
	if firstErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllEndpointsFailed, firstErr)
	}
	return nil, nil
}

// Simulate performs a single-endpoint dry run.
func (a *Adapter) Simulate(ctx context.Context, tx *solana.Transaction) (*SimulationResult, error) {
	resp, err := a.simClient.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:  false,
		Commitment: rpc.CommitmentProcessed,
	})
	if err != nil {
		return nil, fmt.Errorf("simulate transaction: %w", err)
	}
	result := &SimulationResult{Logs: resp.Value.Logs}
	if resp.Value.Err != nil {
		result.Err = fmt.Errorf("%v", resp.Value.Err)
	}
	return result, nil
}

// GetAccount fetches account data from the simulation endpoint at the given
// commitment level. LookupTableCache does not go through it; it fetches
// tables with its own client.
func (a *Adapter) GetAccount(ctx context.Context, pubkey solana.PublicKey, commitment rpc.CommitmentType) (*rpc.Account, error) {
	out, err := a.simClient.GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{Commitment: commitment})
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", pubkey, err)
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("account %s not found", pubkey)
	}
	return out.Value, nil
}

// RetryOutcome labels the terminal result of the background retry loop, used
// for latency metrics (spec.md §4.1).
type RetryOutcome string

const (
	RetryOutcomeSuccess RetryOutcome = "success"
	RetryOutcomeFailed  RetryOutcome = "failed"
	RetryOutcomeExpired RetryOutcome = "expired"
)

// clockNow is overridable in tests.
var clockNow = time.Now
