// Package verifier is the Bid Verifier: the ten-gate pipeline every
// inbound bid must clear before it is accepted into an auction (spec.md
// §4.4). It classifies the bid's target instruction, resolves its
// accounts (including through address-lookup tables), decodes the
// instruction payload, derives the permission key, checks the bid's
// declared deadline against the permission key's minimum lifetime,
// verifies every signature the transaction must carry, simulates the
// transaction, and rejects exact duplicates.
//
// Grounded directly on
// original_source/auction-server/src/auction/service/verification.rs's
// Svm Verification impl — the gate order and error conditions below mirror
// verify_bid/extract_bid_data/check_deadline/verify_signatures/
// simulate_bid one for one, translated from async trait methods into a
// single Go struct's methods.
package verifier

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/expressrelay/auction-server/internal/entities"
	"github.com/expressrelay/auction-server/internal/resterr"
)

// Minimum remaining lifetime a bid's deadline must carry, depending on who
// is assembling the submit_bid transaction's accounts (verification.rs's
// BID_MINIMUM_LIFE_TIME_SVM_SERVER / _OTHER).
const (
	bidMinimumLifetimeServer = 5 * time.Second
	bidMinimumLifetimeOther  = 10 * time.Second
)

// SubmitType classifies whose signatures a permission key's bid must carry.
type SubmitType int

const (
	// SubmitTypeInvalid means the permission key matches nothing the server
	// knows about; bids against it are always rejected.
	SubmitTypeInvalid SubmitType = iota
	// SubmitTypeByServer is given to submit_bid transactions, which the
	// searcher signs in full, so only the relayer's signature is exempt
	// from verification.
	SubmitTypeByServer
	// SubmitTypeByOther is given to swap transactions whose permission
	// account a live opportunity still claims, so the opportunity's
	// declared missing signers are also exempt.
	SubmitTypeByOther
)

// Simulator is the chain adapter's dry-run surface.
type Simulator interface {
	Simulate(ctx context.Context, tx *solana.Transaction) (*SimulationResult, error)
}

// SimulationResult mirrors chainadapter.SimulationResult without importing
// the chainadapter package, keeping verifier's dependency graph one-way.
type SimulationResult struct {
	Logs []string
	Err  error
}

// AccountResolver resolves a versioned message's full account list,
// including accounts that live behind address-lookup tables.
type AccountResolver interface {
	ResolveMessageAccounts(ctx context.Context, msg *solana.Message) ([]solana.PublicKey, error)
}

// OpportunityLookup is the subset of the Opportunity Store the verifier
// needs to classify a permission key's submission state.
type OpportunityLookup interface {
	GetLiveByPermissionAccount(chainID entities.ChainID, account solana.PublicKey) (*entities.Opportunity, bool)
}

// LiveBidsLister is the subset of the Auction Manager the verifier needs to
// reject exact duplicate bids.
type LiveBidsLister interface {
	LiveBidsForPermissionKey(key entities.PermissionKeySvm) []*entities.Bid
}

// Config is the per-chain verification configuration sourced from
// internal/config.ChainConfig.
type Config struct {
	ExpressRelayProgramID     solana.PublicKey
	RelayerPublicKey          solana.PublicKey
	PermissionAccountPosition int
	RouterAccountPosition     int
	MaxTransactionSize        int
	// Swap locates the extra accounts a Swap instruction carries beyond
	// the shared permission/router positions above. Leave nil for chains
	// that never register Swap opportunities.
	Swap *SwapAccountPositions
}

// Verifier is the Svm Bid Verifier.
type Verifier struct {
	chainID      entities.ChainID
	config       Config
	resolver     AccountResolver
	simulator    Simulator
	opportunities OpportunityLookup
	liveBids     LiveBidsLister
}

// New constructs a Verifier for one configured chain.
func New(chainID entities.ChainID, config Config, resolver AccountResolver, simulator Simulator, opportunities OpportunityLookup, liveBids LiveBidsLister) *Verifier {
	return &Verifier{
		chainID:       chainID,
		config:        config,
		resolver:      resolver,
		simulator:     simulator,
		opportunities: opportunities,
		liveBids:      liveBids,
	}
}

// instructionKind distinguishes which Express Relay instruction a
// transaction's single classified instruction is (spec.md §4.4 step 2).
type instructionKind int

const (
	instructionKindSubmitBid instructionKind = iota
	instructionKindSwap
)

// bidData is the intermediate result of extracting a classified
// instruction's fields from a candidate transaction.
type bidData struct {
	kind              instructionKind
	amount            uint64
	permissionAccount solana.PublicKey
	router            solana.PublicKey
	deadline          time.Time
	swap              swapAccounts
}

// VerifyBid runs every gate and, on success, returns the fully populated
// BidChainDataSvm, the instruction tag the bid's permission key is filed
// under, and the bid amount, ready to enter the auction.
func (v *Verifier) VerifyBid(ctx context.Context, create entities.BidCreate) (entities.BidChainDataSvm, entities.PermissionKeyTag, uint64, error) {
	tx := create.Transaction

	if err := v.checkTransactionSize(tx); err != nil {
		return entities.BidChainDataSvm{}, 0, 0, err
	}

	kind, instruction, err := v.classifyInstruction(tx)
	if err != nil {
		return entities.BidChainDataSvm{}, 0, 0, err
	}

	data, err := v.extractBidData(ctx, tx, kind, instruction)
	if err != nil {
		return entities.BidChainDataSvm{}, 0, 0, err
	}

	chainData := entities.BidChainDataSvm{
		PermissionAccount: data.permissionAccount,
		Router:            data.router,
		Transaction:       tx,
	}

	tag, submitType := v.submissionState(kind, data.permissionAccount)
	permissionKey := chainData.GetPermissionKey(tag)
	if err := v.checkDeadline(submitType, data.deadline); err != nil {
		return entities.BidChainDataSvm{}, 0, 0, err
	}
	if err := v.verifySignatures(tx, submitType, data.permissionAccount); err != nil {
		return entities.BidChainDataSvm{}, 0, 0, err
	}
	if err := v.simulate(ctx, tx); err != nil {
		return entities.BidChainDataSvm{}, 0, 0, err
	}
	if kind == instructionKindSwap {
		opp, ok := v.opportunities.GetLiveByPermissionAccount(v.chainID, data.permissionAccount)
		if !ok || opp.Swap == nil {
			return entities.BidChainDataSvm{}, 0, 0, resterr.BadParameters("no live swap opportunity for this permission account")
		}
		if err := v.checkSwapGates(tx, opp.Swap, data.swap); err != nil {
			return entities.BidChainDataSvm{}, 0, 0, err
		}
	}
	if v.isDuplicate(permissionKey, tx) {
		return entities.BidChainDataSvm{}, 0, 0, resterr.BadParameters("duplicate bid")
	}

	return chainData, tag, data.amount, nil
}

func (v *Verifier) checkTransactionSize(tx *solana.Transaction) error {
	encoded, err := tx.MarshalBinary()
	if err != nil {
		return resterr.BadParameters(fmt.Sprintf("failed to serialize transaction: %v", err))
	}
	if len(encoded) > v.config.MaxTransactionSize {
		return resterr.BadParameters(fmt.Sprintf(
			"transaction size %d exceeds the maximum allowed size of %d", len(encoded), v.config.MaxTransactionSize))
	}
	return nil
}

// classifyInstruction returns the transaction's single instruction
// targeting the Express Relay program, classified as SubmitBid or Swap by
// its first 8 bytes, rejecting zero or multiple matches across both
// discriminators combined (spec.md §4.4 step 2; verification.rs's
// verify_submit_bid_instruction generalized to the Swap flavour).
func (v *Verifier) classifyInstruction(tx *solana.Transaction) (instructionKind, solana.CompiledInstruction, error) {
	var found []solana.CompiledInstruction
	var kinds []instructionKind
	for _, ix := range tx.Message.Instructions {
		// Program ids are always static accounts: the runtime never lets a
		// lookup-table entry serve as an instruction's program id.
		if int(ix.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			continue
		}
		programID := tx.Message.AccountKeys[ix.ProgramIDIndex]
		if !programID.Equals(v.config.ExpressRelayProgramID) {
			continue
		}
		switch {
		case hasDiscriminator(ix.Data, submitBidDiscriminator):
			found = append(found, ix)
			kinds = append(kinds, instructionKindSubmitBid)
		case hasDiscriminator(ix.Data, swapDiscriminator):
			found = append(found, ix)
			kinds = append(kinds, instructionKindSwap)
		}
	}
	if len(found) != 1 {
		return 0, solana.CompiledInstruction{}, resterr.BadParameters(
			"bid has to include exactly one submit_bid or swap instruction to the Express Relay program")
	}
	return kinds[0], found[0], nil
}

func (v *Verifier) extractBidData(ctx context.Context, tx *solana.Transaction, kind instructionKind, instruction solana.CompiledInstruction) (bidData, error) {
	permissionAccount, err := v.extractAccount(ctx, tx, instruction, v.config.PermissionAccountPosition)
	if err != nil {
		return bidData{}, err
	}
	router, err := v.extractAccount(ctx, tx, instruction, v.config.RouterAccountPosition)
	if err != nil {
		return bidData{}, err
	}

	if kind == instructionKindSwap {
		swap, err := v.extractSwapAccounts(ctx, tx, instruction)
		if err != nil {
			return bidData{}, err
		}
		return bidData{
			kind:              kind,
			amount:            swap.args.AmountIn,
			permissionAccount: permissionAccount,
			router:            router,
			deadline:          time.Unix(swap.args.Deadline, 0).UTC(),
			swap:              swap,
		}, nil
	}

	args, err := decodeSubmitBidArgs(instruction.Data[8:])
	if err != nil {
		return bidData{}, resterr.BadParameters(fmt.Sprintf("invalid submit_bid instruction data: %v", err))
	}
	return bidData{
		kind:              kind,
		amount:            args.BidAmount,
		permissionAccount: permissionAccount,
		router:            router,
		deadline:          time.Unix(args.Deadline, 0).UTC(),
	}, nil
}

// extractAccount resolves the account at the instruction's accountIndex-th
// position, following address-lookup tables when the index falls outside
// the message's static account keys (verification.rs's extract_account).
func (v *Verifier) extractAccount(ctx context.Context, tx *solana.Transaction, instruction solana.CompiledInstruction, position int) (solana.PublicKey, error) {
	if position < 0 || position >= len(instruction.Accounts) {
		return solana.PublicKey{}, resterr.BadParameters("account not found in submit_bid instruction")
	}
	accountIndex := int(instruction.Accounts[position])

	resolved, err := v.resolver.ResolveMessageAccounts(ctx, &tx.Message)
	if err != nil {
		return solana.PublicKey{}, resterr.New(resterr.KindInfrastructure, "failed to resolve transaction accounts", err)
	}
	if accountIndex < 0 || accountIndex >= len(resolved) {
		return solana.PublicKey{}, resterr.BadParameters("account index out of range for submit_bid instruction")
	}
	return resolved[accountIndex], nil
}

// submissionState derives the permission key tag and submission type from
// the classified instruction kind (auction_manager.rs's
// get_submission_state): a submit_bid instruction is always filed under tag
// SubmitBid and signed entirely by the searcher (ByServer — only the
// relayer's signature is exempt); a swap instruction is always filed under
// tag Swap, and is ByOther (the searcher's wallet signs alongside a
// server-synthesized unsigned transaction) when a live opportunity still
// claims the permission account, or Invalid otherwise. The tag never
// depends on opportunity lookup, only on which instruction was classified.
func (v *Verifier) submissionState(kind instructionKind, permissionAccount solana.PublicKey) (entities.PermissionKeyTag, SubmitType) {
	if kind == instructionKindSubmitBid {
		return entities.PermissionKeyTagSubmitBid, SubmitTypeByServer
	}
	if _, ok := v.opportunities.GetLiveByPermissionAccount(v.chainID, permissionAccount); !ok {
		return entities.PermissionKeyTagSwap, SubmitTypeInvalid
	}
	return entities.PermissionKeyTagSwap, SubmitTypeByOther
}

func (v *Verifier) checkDeadline(submitType SubmitType, deadline time.Time) error {
	var minLifetime time.Duration
	switch submitType {
	case SubmitTypeByServer:
		minLifetime = bidMinimumLifetimeServer
	case SubmitTypeByOther:
		minLifetime = bidMinimumLifetimeOther
	case SubmitTypeInvalid:
		return resterr.BadParameters("the permission key is not valid for auction anymore")
	}

	minimumDeadline := time.Now().Add(minLifetime)
	if deadline.Before(minimumDeadline) {
		return resterr.BadParameters(fmt.Sprintf(
			"bid deadline %s is too short, bid must be valid for at least %s", deadline, minLifetime))
	}
	return nil
}

// verifySignatures checks that the relayer is a signer and that every
// other signing account's signature verifies against the message bytes,
// except accounts a live opportunity declares as missing signers
// (verification.rs's all_signatures_exists).
func (v *Verifier) verifySignatures(tx *solana.Transaction, submitType SubmitType, permissionAccount solana.PublicKey) error {
	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return resterr.BadParameters(fmt.Sprintf("failed to serialize message: %v", err))
	}
	accounts := tx.Message.AccountKeys
	signatures := tx.Signatures

	var missingSigners []solana.PublicKey
	if submitType == SubmitTypeByOther {
		if opp, ok := v.opportunities.GetLiveByPermissionAccount(v.chainID, permissionAccount); ok {
			missingSigners = opp.GetMissingSigners()
		}
	}

	relayerExists := false
	for i := 0; i < len(signatures) && i < len(accounts); i++ {
		if accounts[i].Equals(v.config.RelayerPublicKey) {
			relayerExists = true
			break
		}
	}
	if !relayerExists {
		return resterr.BadParameters(fmt.Sprintf("relayer account %s is not a signer in the transaction", v.config.RelayerPublicKey))
	}

	for i := 0; i < len(signatures) && i < len(accounts); i++ {
		account := accounts[i]
		if account.Equals(v.config.RelayerPublicKey) || containsPubkey(missingSigners, account) {
			continue
		}
		sig := signatures[i]
		if !ed25519.Verify(account[:], messageBytes, sig[:]) {
			return resterr.BadParameters(fmt.Sprintf("signature for account %s is invalid", account))
		}
	}
	return nil
}

func containsPubkey(list []solana.PublicKey, target solana.PublicKey) bool {
	for _, p := range list {
		if p.Equals(target) {
			return true
		}
	}
	return false
}

func (v *Verifier) simulate(ctx context.Context, tx *solana.Transaction) error {
	result, err := v.simulator.Simulate(ctx, tx)
	if err != nil {
		return resterr.New(resterr.KindInfrastructure, "failed to simulate bid", err)
	}
	if result.Err != nil {
		return resterr.SimulationError(result.Logs, result.Err.Error())
	}
	return nil
}

func (v *Verifier) isDuplicate(permissionKey entities.PermissionKeySvm, tx *solana.Transaction) bool {
	for _, existing := range v.liveBids.LiveBidsForPermissionKey(permissionKey) {
		if existing.ChainData.Transaction == nil {
			continue
		}
		existingBytes, err := existing.ChainData.Transaction.MarshalBinary()
		if err != nil {
			continue
		}
		candidateBytes, err := tx.MarshalBinary()
		if err != nil {
			continue
		}
		if bytes.Equal(existingBytes, candidateBytes) {
			return true
		}
	}
	return false
}
