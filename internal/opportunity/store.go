// Package opportunity is the in-memory Opportunity Store: the server's view
// of what actions are currently live for searchers to bid on, keyed by the
// (chain_id, permission_account, router_account, program) tuple invariant
// O1 says uniquely identifies a live opportunity, plus an append-only
// history searchers and operators can page back through.
//
// Grounded on josephblackelite-nhbchain/mempool/priority.go's classify-then-
// index shape (a single mutex-guarded map plus an append-only slice), and
// on original_source/auction-server's opportunity service for the O1/O2/O3
// invariants this store enforces.
package opportunity

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/expressrelay/auction-server/internal/entities"
)

// ErrStaleSlot is returned when a resubmission of the same opportunity key
// carries a slot older than the one already stored (invariant O2: a key's
// freshness slot is monotonically non-decreasing).
var ErrStaleSlot = fmt.Errorf("opportunity slot is older than the currently stored one for this key")

// Publisher is the subset of the Subscription Hub's inbound API the store
// needs, kept narrow so the store package never imports the hub.
type Publisher interface {
	Publish(event entities.Event)
}

// noopPublisher is used when the store is constructed without a hub, e.g.
// in unit tests that only exercise invariants.
type noopPublisher struct{}

func (noopPublisher) Publish(entities.Event) {}

// Store is the in-memory Opportunity Store.
type Store struct {
	mu      sync.RWMutex
	live    map[entities.OpportunityKey]*entities.Opportunity
	byID    map[entities.OpportunityID]*entities.Opportunity
	history []*entities.Opportunity // append-only, newest last

	publisher Publisher
}

// New constructs an empty store. Pass nil for publisher to run without
// event fan-out (tests, offline tooling).
func New(publisher Publisher) *Store {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Store{
		live:      make(map[entities.OpportunityKey]*entities.Opportunity),
		byID:      make(map[entities.OpportunityID]*entities.Opportunity),
		history:   make([]*entities.Opportunity, 0, 256),
		publisher: publisher,
	}
}

// Add inserts or replaces the live opportunity for its key, enforcing O1
// (at most one live opportunity per key) and O2 (monotonically
// non-decreasing freshness slot per key). It publishes EventNewOpportunity
// on success.
func (s *Store) Add(o *entities.Opportunity) error {
	if o.Swap != nil {
		if err := o.Swap.Validate(); err != nil {
			return err
		}
	}

	key := o.Key()
	s.mu.Lock()
	if existing, ok := s.live[key]; ok && o.Slot() < existing.Slot() {
		s.mu.Unlock()
		return ErrStaleSlot
	}

	o.State = entities.OpportunityStateLive
	if o.ID == (entities.OpportunityID{}) {
		o.ID = entities.NewOpportunityID()
	}
	if o.CreationTime.IsZero() {
		o.CreationTime = time.Now()
	}
	s.live[key] = o
	s.byID[o.ID] = o
	s.history = append(s.history, o)
	s.mu.Unlock()

	s.publisher.Publish(entities.Event{Kind: entities.EventNewOpportunity, NewOpportunity: o})
	return nil
}

// GetLive returns every currently live opportunity for a chain, unordered.
func (s *Store) GetLive(chainID entities.ChainID) []*entities.Opportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entities.Opportunity, 0, len(s.live))
	for _, o := range s.live {
		if o.ChainID == chainID {
			out = append(out, o)
		}
	}
	return out
}

// GetLiveByPermissionAccount returns the live opportunity (if any) whose
// permission account matches, regardless of router — used by the bid
// verifier to classify a swap permission key's submission state (ByOther
// vs. Invalid) without needing to know the router account in advance.
func (s *Store) GetLiveByPermissionAccount(chainID entities.ChainID, account solana.PublicKey) (*entities.Opportunity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, o := range s.live {
		if key.ChainID == chainID && key.PermissionAccount == account {
			return o, true
		}
	}
	return nil, false
}

// GetByID returns an opportunity (live or historical) by id.
func (s *Store) GetByID(id entities.OpportunityID) (*entities.Opportunity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[id]
	return o, ok
}

const maxTimeWindowLimit = 100

// GetByTimeWindow returns opportunities created in [from, to), oldest
// first, capped at limit (clamped to maxTimeWindowLimit per spec.md's
// pagination ceiling).
func (s *Store) GetByTimeWindow(chainID entities.ChainID, from, to time.Time, limit int) []*entities.Opportunity {
	if limit <= 0 || limit > maxTimeWindowLimit {
		limit = maxTimeWindowLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entities.Opportunity, 0, limit)
	for _, o := range s.history {
		if o.ChainID != chainID {
			continue
		}
		if o.CreationTime.Before(from) || !o.CreationTime.Before(to) {
			continue
		}
		out = append(out, o)
		if len(out) == limit {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreationTime.Before(out[j].CreationTime) })
	return out
}

// Remove marks the live opportunity at key removed, if one exists, and
// publishes EventRemoveOpportunities. It is a no-op if the key has no live
// entry (O3: removal is idempotent).
func (s *Store) Remove(key entities.OpportunityKey) {
	s.mu.Lock()
	existing, ok := s.live[key]
	if ok {
		existing.State = entities.OpportunityStateRemoved
		delete(s.live, key)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	s.publisher.Publish(entities.Event{
		Kind: entities.EventRemoveOpportunities,
		RemovedOpportunities: &entities.RemoveOpportunitiesEvent{
			ChainID:           key.ChainID,
			PermissionAccount: key.PermissionAccount,
			RouterAccount:     key.RouterAccount,
			Program:           key.Program,
		},
	})
}

// RemoveByProgram removes every live opportunity on chainID targeting
// program, used by the profile-scoped DELETE /opportunities admin
// endpoint (spec.md Open Question O-2).
func (s *Store) RemoveByProgram(chainID entities.ChainID, program entities.Program) int {
	s.mu.Lock()
	var keys []entities.OpportunityKey
	for key, o := range s.live {
		if o.ChainID == chainID && o.Program == program {
			keys = append(keys, key)
		}
	}
	s.mu.Unlock()

	for _, key := range keys {
		s.Remove(key)
	}
	return len(keys)
}
