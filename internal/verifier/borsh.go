package verifier

import (
	"crypto/sha256"

	"github.com/gagliardetto/binary"
)

// anchorDiscriminator reproduces Anchor's instruction-discriminator
// derivation: the first 8 bytes of sha256("global:<snake_case_name>").
// Computing it here instead of hardcoding the bytes keeps the mapping
// between instruction name and on-wire tag auditable.
func anchorDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

var (
	submitBidDiscriminator = anchorDiscriminator("submit_bid")
	swapDiscriminator      = anchorDiscriminator("swap")
)

// SubmitBidArgs is the Borsh-encoded payload of a submit_bid instruction,
// immediately following its 8-byte discriminator.
type SubmitBidArgs struct {
	BidAmount uint64
	Deadline  int64
}

func decodeSubmitBidArgs(data []byte) (SubmitBidArgs, error) {
	var args SubmitBidArgs
	if err := binary.UnmarshalBorsh(&args, data); err != nil {
		return args, err
	}
	return args, nil
}

// SwapArgs is the Borsh-encoded payload of a swap instruction: like
// SubmitBidArgs it carries a deadline (the same minimum-lifetime gate
// applies to both instruction flavours), plus the swap's declared amounts
// and fees.
type SwapArgs struct {
	AmountIn       uint64
	AmountOutMin   uint64
	ReferralFeePpm uint64
	PlatformFeePpm uint64
	Deadline       int64
}

func decodeSwapArgs(data []byte) (SwapArgs, error) {
	var args SwapArgs
	if err := binary.UnmarshalBorsh(&args, data); err != nil {
		return args, err
	}
	return args, nil
}

func hasDiscriminator(data []byte, disc [8]byte) bool {
	if len(data) < 8 {
		return false
	}
	for i := 0; i < 8; i++ {
		if data[i] != disc[i] {
			return false
		}
	}
	return true
}
