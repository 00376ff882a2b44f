package entities

import (
	"encoding/hex"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// PermissionKeyTag is the first byte of a PermissionKeySvm, identifying which
// bid-payment flavour the key belongs to. Keeping the tag embedded in the key
// itself (rather than a side table) lets the auction manager dispatch policy
// from the key alone — see spec.md §3 and §9 ("do not split it into two
// maps").
type PermissionKeyTag byte

const (
	PermissionKeyTagSubmitBid PermissionKeyTag = 0
	PermissionKeyTagSwap      PermissionKeyTag = 1
)

func (t PermissionKeyTag) String() string {
	switch t {
	case PermissionKeyTagSubmitBid:
		return "submit_bid"
	case PermissionKeyTagSwap:
		return "swap"
	default:
		return "unknown"
	}
}

// PermissionKeySvm is the 33-byte composite identifier: 1 tag byte followed
// by the 32-byte account the tag applies to.
type PermissionKeySvm [33]byte

// NewPermissionKeySvm builds a permission key from a tag and account.
func NewPermissionKeySvm(tag PermissionKeyTag, account solana.PublicKey) PermissionKeySvm {
	var key PermissionKeySvm
	key[0] = byte(tag)
	copy(key[1:], account[:])
	return key
}

// Tag returns the dispatch tag embedded in the key.
func (k PermissionKeySvm) Tag() PermissionKeyTag {
	return PermissionKeyTag(k[0])
}

// Account returns the 32-byte account the key is scoped to.
func (k PermissionKeySvm) Account() solana.PublicKey {
	var pk solana.PublicKey
	copy(pk[:], k[1:])
	return pk
}

func (k PermissionKeySvm) String() string {
	return fmt.Sprintf("%s:%s", k.Tag(), k.Account().String())
}

// Bytes returns the raw 33-byte encoding.
func (k PermissionKeySvm) Bytes() []byte {
	out := make([]byte, 33)
	copy(out, k[:])
	return out
}

// PermissionKeyFromBytes parses a 33-byte permission key.
func PermissionKeyFromBytes(b []byte) (PermissionKeySvm, error) {
	var key PermissionKeySvm
	if len(b) != 33 {
		return key, fmt.Errorf("permission key must be 33 bytes, got %d", len(b))
	}
	copy(key[:], b)
	return key, nil
}

// Hex returns a hex-encoded diagnostic representation, used in logs where a
// raw account string is ambiguous about which tag it belongs to.
func (k PermissionKeySvm) Hex() string {
	return hex.EncodeToString(k[:])
}
