package main

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/expressrelay/auction-server/internal/chainadapter"
	"github.com/expressrelay/auction-server/internal/verifier"
)

// adapterSimulator adapts chainadapter.Adapter.Simulate's
// *chainadapter.SimulationResult return to verifier.Simulator's own
// SimulationResult type, keeping the verifier package's dependency graph
// one-way (it never imports chainadapter).
type adapterSimulator struct {
	adapter *chainadapter.Adapter
}

func (s adapterSimulator) Simulate(ctx context.Context, tx *solana.Transaction) (*verifier.SimulationResult, error) {
	result, err := s.adapter.Simulate(ctx, tx)
	if err != nil {
		return nil, err
	}
	return &verifier.SimulationResult{Logs: result.Logs, Err: result.Err}, nil
}
