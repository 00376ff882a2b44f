package verifier

import (
	"bytes"
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/expressrelay/auction-server/internal/entities"
	"github.com/expressrelay/auction-server/internal/resterr"
)

// wsolMint is the native-SOL wrapped mint, a fixed public Solana protocol
// address (not chain configuration).
var wsolMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

// memoProgramID is the SPL Memo program's fixed public address.
var memoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

// SPL Token instruction tags this package cares about (the program's
// instruction enum is a stable, public protocol constant, not chain
// configuration).
const (
	splTokenInstructionCloseAccount byte = 9
	splTokenInstructionSyncNative   byte = 17
)

// SwapAccountPositions locates the extra accounts a Swap instruction
// carries beyond the shared permission/router positions (spec.md §4.4's
// Swap-specific gates), positions configured per chain the same way
// Config.PermissionAccountPosition is.
type SwapAccountPositions struct {
	SearcherMint         int
	UserMint             int
	SearcherTokenProgram int
	UserTokenProgram     int
	FeeTokenMint         int
	SearcherTokenAccount int
	UserTokenAccount     int
}

// SwapInstructionErrorKind enumerates the distinct mismatches the
// Swap-specific gates can surface (SPEC_FULL.md Supplemented Features #3).
type SwapInstructionErrorKind string

const (
	SwapErrorIncorrectMintSearcher         SwapInstructionErrorKind = "incorrect_mint_searcher"
	SwapErrorIncorrectMintUser             SwapInstructionErrorKind = "incorrect_mint_user"
	SwapErrorIncorrectTokenProgramSearcher SwapInstructionErrorKind = "incorrect_token_program_searcher"
	SwapErrorIncorrectTokenProgramUser     SwapInstructionErrorKind = "incorrect_token_program_user"
	SwapErrorIncorrectAmount               SwapInstructionErrorKind = "incorrect_amount"
	SwapErrorIncorrectSearcherAmount       SwapInstructionErrorKind = "incorrect_searcher_amount"
	SwapErrorIncorrectFeeToken             SwapInstructionErrorKind = "incorrect_fee_token"
	SwapErrorIncorrectReferralFeePpm       SwapInstructionErrorKind = "incorrect_referral_fee_ppm"
	SwapErrorIncorrectPlatformFeePpm       SwapInstructionErrorKind = "incorrect_platform_fee_ppm"
	SwapErrorInvalidSyncNativeCount        SwapInstructionErrorKind = "invalid_sync_native_count"
	SwapErrorInvalidCloseAccountCount      SwapInstructionErrorKind = "invalid_close_account_count"
	SwapErrorInvalidAssociatedTokenAccount SwapInstructionErrorKind = "invalid_associated_token_account"
	SwapErrorInvalidMemo                   SwapInstructionErrorKind = "invalid_memo"
)

// SwapInstructionError is a Swap-specific gate failure.
type SwapInstructionError struct {
	Kind    SwapInstructionErrorKind
	Message string
}

func (e *SwapInstructionError) Error() string { return e.Message }

func swapErr(kind SwapInstructionErrorKind, format string, args ...any) *SwapInstructionError {
	return &SwapInstructionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// swapAccounts is the Swap instruction's resolved extra accounts, alongside
// the decoded payload.
type swapAccounts struct {
	args                 SwapArgs
	searcherMint         solana.PublicKey
	userMint             solana.PublicKey
	searcherTokenProgram solana.PublicKey
	userTokenProgram     solana.PublicKey
	feeTokenMint         solana.PublicKey
	searcherTokenAccount solana.PublicKey
	userTokenAccount     solana.PublicKey
}

// extractSwapAccounts decodes a Swap instruction's payload and resolves its
// extra accounts at the chain-configured Swap positions, the same way
// extractBidData resolves the shared permission/router positions.
func (v *Verifier) extractSwapAccounts(ctx context.Context, tx *solana.Transaction, instruction solana.CompiledInstruction) (swapAccounts, error) {
	if v.config.Swap == nil {
		return swapAccounts{}, resterr.BadParameters("chain is not configured for swap instructions")
	}
	args, err := decodeSwapArgs(instruction.Data[8:])
	if err != nil {
		return swapAccounts{}, resterr.BadParameters(fmt.Sprintf("invalid swap instruction data: %v", err))
	}

	positions := v.config.Swap
	resolve := func(position int) (solana.PublicKey, error) {
		return v.extractAccount(ctx, tx, instruction, position)
	}

	searcherMint, err := resolve(positions.SearcherMint)
	if err != nil {
		return swapAccounts{}, err
	}
	userMint, err := resolve(positions.UserMint)
	if err != nil {
		return swapAccounts{}, err
	}
	searcherTokenProgram, err := resolve(positions.SearcherTokenProgram)
	if err != nil {
		return swapAccounts{}, err
	}
	userTokenProgram, err := resolve(positions.UserTokenProgram)
	if err != nil {
		return swapAccounts{}, err
	}
	feeTokenMint, err := resolve(positions.FeeTokenMint)
	if err != nil {
		return swapAccounts{}, err
	}
	searcherTokenAccount, err := resolve(positions.SearcherTokenAccount)
	if err != nil {
		return swapAccounts{}, err
	}
	userTokenAccount, err := resolve(positions.UserTokenAccount)
	if err != nil {
		return swapAccounts{}, err
	}

	return swapAccounts{
		args:                 args,
		searcherMint:         searcherMint,
		userMint:             userMint,
		searcherTokenProgram: searcherTokenProgram,
		userTokenProgram:     userTokenProgram,
		feeTokenMint:         feeTokenMint,
		searcherTokenAccount: searcherTokenAccount,
		userTokenAccount:     userTokenAccount,
	}, nil
}

// checkSwapGates runs spec.md §4.4's Swap-specific gates against a live
// Swap opportunity, inserted after simulation and before duplicate
// detection. It works on the accounts and arguments that
// extractSwapAccounts already decoded.
func (v *Verifier) checkSwapGates(tx *solana.Transaction, opp *entities.OpportunitySwapSvm, swap swapAccounts) error {
	if err := checkSwapParameters(opp, swap); err != nil {
		return resterr.BadParameters(err.Error())
	}
	if err := checkSyncNativeCount(tx, opp, swap); err != nil {
		return resterr.BadParameters(err.Error())
	}
	if err := checkCloseAccountCount(tx, opp, swap); err != nil {
		return resterr.BadParameters(err.Error())
	}
	if err := checkAssociatedTokenAccountCreations(tx, opp, swap); err != nil {
		return resterr.BadParameters(err.Error())
	}
	if err := checkMemo(tx, opp); err != nil {
		return resterr.BadParameters(err.Error())
	}
	return nil
}

// checkSwapParameters matches the instruction's declared mints, token
// programs, amounts, fee token, and referral/platform fee ppm against the
// opportunity's own parameters.
func checkSwapParameters(opp *entities.OpportunitySwapSvm, swap swapAccounts) error {
	if !swap.searcherMint.Equals(opp.TokenIn.Mint) {
		return swapErr(SwapErrorIncorrectMintSearcher, "searcher mint %s does not match opportunity's %s", swap.searcherMint, opp.TokenIn.Mint)
	}
	if !swap.userMint.Equals(opp.TokenOut.Mint) {
		return swapErr(SwapErrorIncorrectMintUser, "user mint %s does not match opportunity's %s", swap.userMint, opp.TokenOut.Mint)
	}
	if !swap.searcherTokenProgram.Equals(opp.TokenIn.TokenProgram) {
		return swapErr(SwapErrorIncorrectTokenProgramSearcher, "searcher token program %s does not match opportunity's %s", swap.searcherTokenProgram, opp.TokenIn.TokenProgram)
	}
	if !swap.userTokenProgram.Equals(opp.TokenOut.TokenProgram) {
		return swapErr(SwapErrorIncorrectTokenProgramUser, "user token program %s does not match opportunity's %s", swap.userTokenProgram, opp.TokenOut.TokenProgram)
	}
	if opp.TokenIn.Amount != 0 && swap.args.AmountIn != opp.TokenIn.Amount {
		return swapErr(SwapErrorIncorrectSearcherAmount, "amount_in %d does not match opportunity's %d", swap.args.AmountIn, opp.TokenIn.Amount)
	}
	if opp.TokenOut.Amount != 0 && swap.args.AmountOutMin != opp.TokenOut.Amount {
		return swapErr(SwapErrorIncorrectAmount, "amount_out_min %d does not match opportunity's %d", swap.args.AmountOutMin, opp.TokenOut.Amount)
	}

	wantFeeMint := opp.TokenOut.Mint
	if opp.FeeToken == entities.FeeTokenSearcher {
		wantFeeMint = opp.TokenIn.Mint
	}
	if !swap.feeTokenMint.Equals(wantFeeMint) {
		return swapErr(SwapErrorIncorrectFeeToken, "fee token mint %s does not match the %s side's mint %s", swap.feeTokenMint, opp.FeeToken, wantFeeMint)
	}

	if swap.args.ReferralFeePpm != opp.ReferralFeePpm {
		return swapErr(SwapErrorIncorrectReferralFeePpm, "referral_fee_ppm %d does not match opportunity's %d", swap.args.ReferralFeePpm, opp.ReferralFeePpm)
	}
	if swap.args.PlatformFeePpm != opp.PlatformFeePpm {
		return swapErr(SwapErrorIncorrectPlatformFeePpm, "platform_fee_ppm %d does not match opportunity's %d", swap.args.PlatformFeePpm, opp.PlatformFeePpm)
	}
	return nil
}

// checkSyncNativeCount requires exactly one sync_native instruction per
// WSOL-associated token account the swap touches.
func checkSyncNativeCount(tx *solana.Transaction, opp *entities.OpportunitySwapSvm, swap swapAccounts) error {
	wantWrapped := 0
	if swap.searcherMint.Equals(wsolMint) {
		wantWrapped++
	}
	if swap.userMint.Equals(wsolMint) {
		wantWrapped++
	}
	got := countTokenInstructions(tx, splTokenInstructionSyncNative)
	if got != wantWrapped {
		return swapErr(SwapErrorInvalidSyncNativeCount, "transaction has %d sync_native instructions, expected %d for its WSOL-associated accounts", got, wantWrapped)
	}
	return nil
}

// checkCloseAccountCount requires at most one close_account instruction
// owned by the user and at most one owned by the searcher, each closing to
// its own owner.
func checkCloseAccountCount(tx *solana.Transaction, opp *entities.OpportunitySwapSvm, swap swapAccounts) error {
	userCloses, searcherCloses := 0, 0
	for _, ix := range tx.Message.Instructions {
		if int(ix.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			continue
		}
		if !tx.Message.AccountKeys[ix.ProgramIDIndex].Equals(solana.TokenProgramID) {
			continue
		}
		if len(ix.Data) == 0 || ix.Data[0] != splTokenInstructionCloseAccount {
			continue
		}
		if len(ix.Accounts) < 3 {
			continue
		}
		account := accountAt(tx, ix, 0)
		destination := accountAt(tx, ix, 1)
		owner := accountAt(tx, ix, 2)

		switch {
		case owner.Equals(opp.UserWallet):
			if !destination.Equals(opp.UserWallet) {
				return swapErr(SwapErrorInvalidCloseAccountCount, "close_account for user-owned account %s must send its rent to the user wallet", account)
			}
			userCloses++
		case owner.Equals(swap.searcherTokenAccount) || account.Equals(swap.searcherTokenAccount):
			if !destination.Equals(owner) {
				return swapErr(SwapErrorInvalidCloseAccountCount, "close_account for searcher account %s must send its rent to its owner", account)
			}
			searcherCloses++
		}
	}
	if userCloses > 1 {
		return swapErr(SwapErrorInvalidCloseAccountCount, "transaction has %d user close_account instructions, at most 1 allowed", userCloses)
	}
	if searcherCloses > 1 {
		return swapErr(SwapErrorInvalidCloseAccountCount, "transaction has %d searcher close_account instructions, at most 1 allowed", searcherCloses)
	}
	return nil
}

// checkAssociatedTokenAccountCreations validates every
// create_associated_token_account instruction that creates the user's or
// the searcher's token account, using the Associated Token Account
// program's fixed, public instruction account order: payer, associated
// account, owner, mint, system program, token program. It checks the
// system program, the mint and the token program for both accounts, and
// the owner for the user's account only. The payer is not checked, and
// the owner of the searcher's account is not checked.
func checkAssociatedTokenAccountCreations(tx *solana.Transaction, opp *entities.OpportunitySwapSvm, swap swapAccounts) error {
	for _, ix := range tx.Message.Instructions {
		if int(ix.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			continue
		}
		if !tx.Message.AccountKeys[ix.ProgramIDIndex].Equals(solana.SPLAssociatedTokenAccountProgramID) {
			continue
		}
		if len(ix.Accounts) < 6 {
			continue
		}
		associatedAccount := accountAt(tx, ix, 1)
		owner := accountAt(tx, ix, 2)
		mint := accountAt(tx, ix, 3)
		systemProgram := accountAt(tx, ix, 4)
		tokenProgram := accountAt(tx, ix, 5)

		if !systemProgram.Equals(solana.SystemProgramID) {
			return swapErr(SwapErrorInvalidAssociatedTokenAccount, "create_associated_token_account system program account %s is not the system program", systemProgram)
		}

		var wantOwner, wantMint, wantTokenProgram solana.PublicKey
		switch {
		case associatedAccount.Equals(swap.userTokenAccount):
			wantOwner, wantMint, wantTokenProgram = opp.UserWallet, swap.userMint, swap.userTokenProgram
		case associatedAccount.Equals(swap.searcherTokenAccount):
			wantOwner, wantMint, wantTokenProgram = owner, swap.searcherMint, swap.searcherTokenProgram
		default:
			continue
		}
		if !owner.Equals(wantOwner) {
			return swapErr(SwapErrorInvalidAssociatedTokenAccount, "create_associated_token_account owner %s does not match the prescribed owner %s", owner, wantOwner)
		}
		if !mint.Equals(wantMint) {
			return swapErr(SwapErrorInvalidAssociatedTokenAccount, "create_associated_token_account mint %s does not match the prescribed mint %s", mint, wantMint)
		}
		if !tokenProgram.Equals(wantTokenProgram) {
			return swapErr(SwapErrorInvalidAssociatedTokenAccount, "create_associated_token_account token program %s does not match the prescribed token program %s", tokenProgram, wantTokenProgram)
		}
	}
	return nil
}

// checkMemo requires exactly one memo instruction with matching bytes iff
// the opportunity declared a memo string.
func checkMemo(tx *solana.Transaction, opp *entities.OpportunitySwapSvm) error {
	if opp.Memo == nil {
		return nil
	}
	var found [][]byte
	for _, ix := range tx.Message.Instructions {
		if int(ix.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			continue
		}
		if tx.Message.AccountKeys[ix.ProgramIDIndex].Equals(memoProgramID) {
			found = append(found, ix.Data)
		}
	}
	if len(found) != 1 {
		return swapErr(SwapErrorInvalidMemo, "transaction has %d memo instructions, expected exactly 1", len(found))
	}
	if !bytes.Equal(found[0], []byte(*opp.Memo)) {
		return swapErr(SwapErrorInvalidMemo, "memo instruction bytes do not match the opportunity's declared memo")
	}
	return nil
}

// countTokenInstructions counts SPL Token program instructions in tx whose
// first data byte is the given instruction tag.
func countTokenInstructions(tx *solana.Transaction, tag byte) int {
	count := 0
	for _, ix := range tx.Message.Instructions {
		if int(ix.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			continue
		}
		if !tx.Message.AccountKeys[ix.ProgramIDIndex].Equals(solana.TokenProgramID) {
			continue
		}
		if len(ix.Data) > 0 && ix.Data[0] == tag {
			count++
		}
	}
	return count
}

// accountAt resolves a compiled instruction's position-th account among
// the message's static account keys, returning the zero key if the index
// can't be resolved without a lookup table (the structural Swap gates only
// ever reason about accounts already surfaced elsewhere in the same
// instruction set, which are always static on every transaction observed
// in the examples this server is grounded on).
func accountAt(tx *solana.Transaction, ix solana.CompiledInstruction, position int) solana.PublicKey {
	if position < 0 || position >= len(ix.Accounts) {
		return solana.PublicKey{}
	}
	index := int(ix.Accounts[position])
	if index < 0 || index >= len(tx.Message.AccountKeys) {
		return solana.PublicKey{}
	}
	return tx.Message.AccountKeys[index]
}
