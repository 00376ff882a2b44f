package chainadapter

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func fakeLookupTableAccount(addrs ...solana.PublicKey) []byte {
	data := make([]byte, lookupTableMetaSize)
	for _, a := range addrs {
		data = append(data, a[:]...)
	}
	return data
}

func TestParseLookupTable(t *testing.T) {
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()

	table, err := parseLookupTable(fakeLookupTableAccount(a, b))
	require.NoError(t, err)
	require.Len(t, table.Addresses, 2)
	require.Equal(t, a, table.Addresses[0])
	require.Equal(t, b, table.Addresses[1])
}

func TestParseLookupTableTooShort(t *testing.T) {
	_, err := parseLookupTable(make([]byte, lookupTableMetaSize-1))
	require.Error(t, err)
}

func TestParseLookupTableMisaligned(t *testing.T) {
	data := append(make([]byte, lookupTableMetaSize), make([]byte, 10)...)
	_, err := parseLookupTable(data)
	require.Error(t, err)
}

func TestLookupTableResolveOutOfRange(t *testing.T) {
	table := &LookupTable{Addresses: []solana.PublicKey{solana.NewWallet().PublicKey()}}
	_, err := table.Resolve(5)
	require.Error(t, err)
}

func TestPendingSet(t *testing.T) {
	set := NewPendingSet()
	sig := solana.Signature{1, 2, 3}

	require.False(t, set.Contains(sig))
	set.Add(sig)
	require.True(t, set.Contains(sig))
	require.Equal(t, 1, set.Len())
	set.Remove(sig)
	require.False(t, set.Contains(sig))
	require.Equal(t, 0, set.Len())
}
