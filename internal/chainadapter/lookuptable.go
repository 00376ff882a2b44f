package chainadapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// lookupTableMetaSize is the fixed-size header Solana's address-lookup-table
// program writes ahead of the variable-length address list: a u32 type tag,
// two u64 slots, a u8 start index, an Option<Pubkey> authority, and u16
// padding. Everything after it is a flat array of 32-byte addresses.
//
// Grounded on original_source/auction-server/src/auction/service/verification.rs's
// query_lookup_table/extract_account, which decode the same on-chain layout;
// rewritten here against raw bytes instead of pulling in a Borsh struct tag
// because the table's tail is a bare array, not a Borsh-framed vector.
const lookupTableMetaSize = 56

// LookupTable is a materialised address-lookup-table: the ordered address
// list a versioned transaction's writable/readonly index lookups resolve
// against.
type LookupTable struct {
	Addresses []solana.PublicKey
}

// Resolve returns the address at index, or an error if the table doesn't
// have an entry there.
func (t *LookupTable) Resolve(index uint8) (solana.PublicKey, error) {
	if int(index) >= len(t.Addresses) {
		return solana.PublicKey{}, fmt.Errorf("lookup table index %d out of range (len %d)", index, len(t.Addresses))
	}
	return t.Addresses[index], nil
}

// LookupTableCache fetches and parses address-lookup-table accounts,
// caching them for the process lifetime: a table's address list only grows
// by a fresh extend instruction, and bids referencing a stale table will
// fail verification naturally rather than silently resolving wrong data, so
// re-fetching on every bid buys nothing but RPC load (spec.md §4.1's
// "lookup tables are cached for the process lifetime").
type LookupTableCache struct {
	client *rpc.Client

	mu    sync.RWMutex
	cache map[solana.PublicKey]*LookupTable
}

// NewLookupTableCache constructs an empty cache bound to client for misses.
func NewLookupTableCache(client *rpc.Client) *LookupTableCache {
	return &LookupTableCache{
		client: client,
		cache:  make(map[solana.PublicKey]*LookupTable),
	}
}

// Get returns the parsed table for key, fetching and parsing it on first
// access.
func (c *LookupTableCache) Get(ctx context.Context, key solana.PublicKey) (*LookupTable, error) {
	c.mu.RLock()
	table, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return table, nil
	}

	out, err := c.client.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch lookup table %s: %w", key, err)
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("lookup table %s not found", key)
	}

	table, err = parseLookupTable(out.Value.Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("parse lookup table %s: %w", key, err)
	}

	c.mu.Lock()
	c.cache[key] = table
	c.mu.Unlock()
	return table, nil
}

// ResolveAccount finds the account referenced by a message's writable or
// readonly lookup-table index set, fetching whichever table it belongs to.
// This is find_and_query_lookup_table's job: a versioned transaction's
// MessageAddressTableLookup entries are each (table key, index list), and
// the caller hands us the table key plus a single index already known to
// belong to it.
func (c *LookupTableCache) ResolveAccount(ctx context.Context, tableKey solana.PublicKey, index uint8) (solana.PublicKey, error) {
	table, err := c.Get(ctx, tableKey)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return table.Resolve(index)
}

func parseLookupTable(data []byte) (*LookupTable, error) {
	if len(data) < lookupTableMetaSize {
		return nil, fmt.Errorf("lookup table account too short: %d bytes", len(data))
	}
	tail := data[lookupTableMetaSize:]
	if len(tail)%32 != 0 {
		return nil, fmt.Errorf("lookup table address list misaligned: %d trailing bytes", len(tail))
	}
	n := len(tail) / 32
	addrs := make([]solana.PublicKey, n)
	for i := 0; i < n; i++ {
		copy(addrs[i][:], tail[i*32:(i+1)*32])
	}
	return &LookupTable{Addresses: addrs}, nil
}

// ResolveMessageAccounts fully resolves a versioned message's account list:
// the static keys already embedded in the message, followed by every
// writable lookup address in order, followed by every readonly lookup
// address in order. This ordering is Solana's ABI for versioned messages
// and is load-bearing for CompiledInstruction.Accounts indices to mean
// anything.
func (c *LookupTableCache) ResolveMessageAccounts(ctx context.Context, msg *solana.Message) ([]solana.PublicKey, error) {
	accounts := make([]solana.PublicKey, 0, len(msg.AccountKeys)+8)
	accounts = append(accounts, msg.AccountKeys...)

	for _, lookup := range msg.AddressTableLookups {
		table, err := c.Get(ctx, lookup.AccountKey)
		if err != nil {
			return nil, err
		}
		for _, idx := range lookup.WritableIndexes {
			addr, err := table.Resolve(idx)
			if err != nil {
				return nil, fmt.Errorf("resolve writable lookup for table %s: %w", lookup.AccountKey, err)
			}
			accounts = append(accounts, addr)
		}
	}
	for _, lookup := range msg.AddressTableLookups {
		table, err := c.Get(ctx, lookup.AccountKey)
		if err != nil {
			return nil, err
		}
		for _, idx := range lookup.ReadonlyIndexes {
			addr, err := table.Resolve(idx)
			if err != nil {
				return nil, fmt.Errorf("resolve readonly lookup for table %s: %w", lookup.AccountKey, err)
			}
			accounts = append(accounts, addr)
		}
	}
	return accounts, nil
}
