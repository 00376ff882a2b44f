package chainadapter

import (
	"sync"

	"github.com/gagliardetto/solana-go"
)

// PendingSet tracks signatures that are currently in flight on the retry
// loop: RunRetryLoop adds the signature it broadcasts and removes it when
// the loop ends. Nothing else reads it; in particular Simulate and the bid
// verifier do not take pending signatures into account.
type PendingSet struct {
	mu  sync.RWMutex
	sig map[solana.Signature]struct{}
}

// NewPendingSet constructs an empty set.
func NewPendingSet() *PendingSet {
	return &PendingSet{sig: make(map[solana.Signature]struct{})}
}

// Add marks sig as pending.
func (p *PendingSet) Add(sig solana.Signature) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sig[sig] = struct{}{}
}

// Remove clears sig once it reaches a terminal state.
func (p *PendingSet) Remove(sig solana.Signature) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sig, sig)
}

// Contains reports whether sig is still pending.
func (p *PendingSet) Contains(sig solana.Signature) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.sig[sig]
	return ok
}

// Len reports the number of currently pending signatures.
func (p *PendingSet) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sig)
}
