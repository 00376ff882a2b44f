package verifier

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/expressrelay/auction-server/internal/entities"
	"github.com/expressrelay/auction-server/internal/resterr"
)

// fakeSubmitBidInstruction implements solana.Instruction for a submit_bid
// call against a fake Express Relay program, with the permission and
// router accounts at fixed positions matching testConfig below.
type fakeSubmitBidInstruction struct {
	programID  solana.PublicKey
	relayer    solana.PublicKey
	permission solana.PublicKey
	router     solana.PublicKey
	bidAmount  uint64
	deadline   int64
}

func (f fakeSubmitBidInstruction) ProgramID() solana.PublicKey { return f.programID }

func (f fakeSubmitBidInstruction) Accounts() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		{PublicKey: f.relayer, IsSigner: true, IsWritable: true},
		{PublicKey: f.permission, IsSigner: false, IsWritable: false},
		{PublicKey: f.router, IsSigner: false, IsWritable: true},
	}
}

func (f fakeSubmitBidInstruction) Data() ([]byte, error) {
	args := SubmitBidArgs{BidAmount: f.bidAmount, Deadline: f.deadline}
	encoded, err := binary.MarshalBorsh(args)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, submitBidDiscriminator[:]...), encoded...), nil
}

// testConfig positions: account 0 = relayer (fee payer/signer), account 1 =
// permission, account 2 = router, matching fakeSubmitBidInstruction.
func testConfig(programID, relayer solana.PublicKey) Config {
	return Config{
		ExpressRelayProgramID:     programID,
		RelayerPublicKey:          relayer,
		PermissionAccountPosition: 1,
		RouterAccountPosition:     2,
		MaxTransactionSize:        1232,
	}
}

// testSwapConfig extends testConfig with the extra Swap-instruction account
// positions fakeSwapInstruction lays its accounts out at, starting right
// after the shared relayer/permission/router accounts.
func testSwapConfig(programID, relayer solana.PublicKey) Config {
	cfg := testConfig(programID, relayer)
	cfg.Swap = &SwapAccountPositions{
		SearcherMint:         3,
		UserMint:             4,
		SearcherTokenProgram: 5,
		UserTokenProgram:     6,
		FeeTokenMint:         7,
		SearcherTokenAccount: 8,
		UserTokenAccount:     9,
	}
	return cfg
}

// fakeSwapInstruction implements solana.Instruction for a swap call against
// a fake Express Relay program, with accounts laid out at the positions
// testSwapConfig declares.
type fakeSwapInstruction struct {
	programID            solana.PublicKey
	relayer              solana.PublicKey
	permission           solana.PublicKey
	router               solana.PublicKey
	searcherMint         solana.PublicKey
	userMint             solana.PublicKey
	searcherTokenProgram solana.PublicKey
	userTokenProgram     solana.PublicKey
	feeTokenMint         solana.PublicKey
	searcherTokenAccount solana.PublicKey
	userTokenAccount     solana.PublicKey
	args                 SwapArgs
}

func (f fakeSwapInstruction) ProgramID() solana.PublicKey { return f.programID }

func (f fakeSwapInstruction) Accounts() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		{PublicKey: f.relayer, IsSigner: true, IsWritable: true},
		{PublicKey: f.permission, IsSigner: false, IsWritable: false},
		{PublicKey: f.router, IsSigner: false, IsWritable: true},
		{PublicKey: f.searcherMint, IsSigner: false, IsWritable: false},
		{PublicKey: f.userMint, IsSigner: false, IsWritable: false},
		{PublicKey: f.searcherTokenProgram, IsSigner: false, IsWritable: false},
		{PublicKey: f.userTokenProgram, IsSigner: false, IsWritable: false},
		{PublicKey: f.feeTokenMint, IsSigner: false, IsWritable: false},
		{PublicKey: f.searcherTokenAccount, IsSigner: false, IsWritable: true},
		{PublicKey: f.userTokenAccount, IsSigner: false, IsWritable: true},
	}
}

func (f fakeSwapInstruction) Data() ([]byte, error) {
	encoded, err := binary.MarshalBorsh(f.args)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, swapDiscriminator[:]...), encoded...), nil
}

func buildSwapTx(t *testing.T, ix fakeSwapInstruction, relayer solana.PrivateKey) *solana.Transaction {
	t.Helper()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		solana.Hash{1, 2, 3},
		solana.TransactionPayer(relayer.PublicKey()),
	)
	require.NoError(t, err)

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(relayer.PublicKey()) {
			return &relayer
		}
		return nil
	})
	require.NoError(t, err)
	return tx
}

type fakeResolver struct{}

func (fakeResolver) ResolveMessageAccounts(ctx context.Context, msg *solana.Message) ([]solana.PublicKey, error) {
	return msg.AccountKeys, nil
}

type fakeSimulator struct {
	err *resterr.Error
	sim *SimulationResult
}

func (f fakeSimulator) Simulate(ctx context.Context, tx *solana.Transaction) (*SimulationResult, error) {
	if f.sim != nil {
		return f.sim, nil
	}
	return &SimulationResult{}, nil
}

type fakeOpportunities struct {
	byAccount map[solana.PublicKey]*entities.Opportunity
}

func (f fakeOpportunities) GetLiveByPermissionAccount(chainID entities.ChainID, account solana.PublicKey) (*entities.Opportunity, bool) {
	o, ok := f.byAccount[account]
	return o, ok
}

type fakeLiveBids struct {
	bids []*entities.Bid
}

func (f fakeLiveBids) LiveBidsForPermissionKey(key entities.PermissionKeySvm) []*entities.Bid {
	return f.bids
}

func buildTx(t *testing.T, ix fakeSubmitBidInstruction, relayer solana.PrivateKey) *solana.Transaction {
	t.Helper()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		solana.Hash{1, 2, 3},
		solana.TransactionPayer(relayer.PublicKey()),
	)
	require.NoError(t, err)

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(relayer.PublicKey()) {
			return &relayer
		}
		return nil
	})
	require.NoError(t, err)
	return tx
}

// TestVerifyBidSuccessSubmitBid checks that a submit_bid instruction is
// always classified ByServer/tag SubmitBid, regardless of whether a live
// opportunity exists for the permission account (auction_manager.rs's
// get_submission_state: the tag follows the instruction kind, never
// opportunity presence).
func TestVerifyBidSuccessSubmitBid(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	relayer := solana.NewWallet().PrivateKey
	permission := solana.NewWallet().PublicKey()
	router := solana.NewWallet().PublicKey()

	ix := fakeSubmitBidInstruction{
		programID:  programID,
		relayer:    relayer.PublicKey(),
		permission: permission,
		router:     router,
		bidAmount:  1_000_000,
		deadline:   time.Now().Add(time.Hour).Unix(),
	}
	tx := buildTx(t, ix, relayer)

	v := New("solana-mainnet-beta", testConfig(programID, relayer.PublicKey()), fakeResolver{}, fakeSimulator{}, fakeOpportunities{
		byAccount: map[solana.PublicKey]*entities.Opportunity{},
	}, fakeLiveBids{})

	chainData, tag, amount, err := v.VerifyBid(context.Background(), entities.BidCreate{ChainID: "solana-mainnet-beta", Transaction: tx})
	require.NoError(t, err)
	require.Equal(t, entities.PermissionKeyTagSubmitBid, tag)
	require.Equal(t, uint64(1_000_000), amount)
	require.True(t, chainData.PermissionAccount.Equals(permission))
	require.True(t, chainData.Router.Equals(router))
}

// TestVerifyBidRejectsSwapWithoutLiveOpportunity checks that a swap
// instruction against a permission account with no live opportunity is
// rejected (SubmitTypeInvalid), unlike a submit_bid instruction which never
// depends on opportunity presence.
func TestVerifyBidRejectsSwapWithoutLiveOpportunity(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	relayer := solana.NewWallet().PrivateKey
	permission := solana.NewWallet().PublicKey()
	router := solana.NewWallet().PublicKey()

	ix := fakeSwapInstruction{
		programID: programID, relayer: relayer.PublicKey(), permission: permission, router: router,
		searcherMint: solana.NewWallet().PublicKey(), userMint: solana.NewWallet().PublicKey(),
		searcherTokenProgram: solana.TokenProgramID, userTokenProgram: solana.TokenProgramID,
		feeTokenMint:         solana.NewWallet().PublicKey(),
		searcherTokenAccount: solana.NewWallet().PublicKey(), userTokenAccount: solana.NewWallet().PublicKey(),
		args: SwapArgs{AmountIn: 1, AmountOutMin: 1, Deadline: time.Now().Add(time.Hour).Unix()},
	}
	tx := buildSwapTx(t, ix, relayer)

	v := New("solana-mainnet-beta", testSwapConfig(programID, relayer.PublicKey()), fakeResolver{}, fakeSimulator{}, fakeOpportunities{
		byAccount: map[solana.PublicKey]*entities.Opportunity{},
	}, fakeLiveBids{})

	_, _, _, err := v.VerifyBid(context.Background(), entities.BidCreate{ChainID: "solana-mainnet-beta", Transaction: tx})
	require.Error(t, err)
}

// TestVerifyBidSuccessSwap checks a swap instruction matching a live Swap
// opportunity's declared parameters clears every Swap-specific gate.
func TestVerifyBidSuccessSwap(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	relayer := solana.NewWallet().PrivateKey
	permission := solana.NewWallet().PublicKey()
	router := solana.NewWallet().PublicKey()
	searcherMint := solana.NewWallet().PublicKey()
	userMint := solana.NewWallet().PublicKey()
	searcherTokenAccount := solana.NewWallet().PublicKey()
	userTokenAccount := solana.NewWallet().PublicKey()

	ix := fakeSwapInstruction{
		programID: programID, relayer: relayer.PublicKey(), permission: permission, router: router,
		searcherMint: searcherMint, userMint: userMint,
		searcherTokenProgram: solana.TokenProgramID, userTokenProgram: solana.TokenProgramID,
		feeTokenMint:         userMint,
		searcherTokenAccount: searcherTokenAccount, userTokenAccount: userTokenAccount,
		args: SwapArgs{AmountIn: 1_000, AmountOutMin: 900, ReferralFeePpm: 100, PlatformFeePpm: 200, Deadline: time.Now().Add(time.Hour).Unix()},
	}
	tx := buildSwapTx(t, ix, relayer)

	opp := &entities.Opportunity{
		Program: entities.ProgramSwap,
		Swap: &entities.OpportunitySwapSvm{
			TokenIn:        entities.TokenAmountSvm{Mint: searcherMint, TokenProgram: solana.TokenProgramID},
			TokenOut:       entities.TokenAmountSvm{Mint: userMint, TokenProgram: solana.TokenProgramID},
			FeeToken:       entities.FeeTokenUser,
			ReferralFeePpm: 100,
			PlatformFeePpm: 200,
		},
	}

	v := New("solana-mainnet-beta", testSwapConfig(programID, relayer.PublicKey()), fakeResolver{}, fakeSimulator{}, fakeOpportunities{
		byAccount: map[solana.PublicKey]*entities.Opportunity{permission: opp},
	}, fakeLiveBids{})

	chainData, tag, amount, err := v.VerifyBid(context.Background(), entities.BidCreate{ChainID: "solana-mainnet-beta", Transaction: tx})
	require.NoError(t, err)
	require.Equal(t, entities.PermissionKeyTagSwap, tag)
	require.Equal(t, uint64(1_000), amount)
	require.True(t, chainData.PermissionAccount.Equals(permission))
}

// TestVerifyBidRejectsSwapFeeMismatch checks that a swap instruction
// declaring a referral fee that doesn't match the opportunity's is rejected
// by checkSwapParameters.
func TestVerifyBidRejectsSwapFeeMismatch(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	relayer := solana.NewWallet().PrivateKey
	permission := solana.NewWallet().PublicKey()
	router := solana.NewWallet().PublicKey()
	searcherMint := solana.NewWallet().PublicKey()
	userMint := solana.NewWallet().PublicKey()

	ix := fakeSwapInstruction{
		programID: programID, relayer: relayer.PublicKey(), permission: permission, router: router,
		searcherMint: searcherMint, userMint: userMint,
		searcherTokenProgram: solana.TokenProgramID, userTokenProgram: solana.TokenProgramID,
		feeTokenMint:         userMint,
		searcherTokenAccount: solana.NewWallet().PublicKey(), userTokenAccount: solana.NewWallet().PublicKey(),
		args: SwapArgs{AmountIn: 1_000, AmountOutMin: 900, ReferralFeePpm: 999, PlatformFeePpm: 200, Deadline: time.Now().Add(time.Hour).Unix()},
	}
	tx := buildSwapTx(t, ix, relayer)

	opp := &entities.Opportunity{
		Program: entities.ProgramSwap,
		Swap: &entities.OpportunitySwapSvm{
			TokenIn:        entities.TokenAmountSvm{Mint: searcherMint, TokenProgram: solana.TokenProgramID},
			TokenOut:       entities.TokenAmountSvm{Mint: userMint, TokenProgram: solana.TokenProgramID},
			FeeToken:       entities.FeeTokenUser,
			ReferralFeePpm: 100,
			PlatformFeePpm: 200,
		},
	}

	v := New("solana-mainnet-beta", testSwapConfig(programID, relayer.PublicKey()), fakeResolver{}, fakeSimulator{}, fakeOpportunities{
		byAccount: map[solana.PublicKey]*entities.Opportunity{permission: opp},
	}, fakeLiveBids{})

	_, _, _, err := v.VerifyBid(context.Background(), entities.BidCreate{ChainID: "solana-mainnet-beta", Transaction: tx})
	require.Error(t, err)
	swapErr, ok := err.(*resterr.Error)
	require.True(t, ok)
	require.Equal(t, resterr.KindInput, swapErr.Kind)
}

func TestVerifyBidRejectsShortDeadline(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	relayer := solana.NewWallet().PrivateKey
	permission := solana.NewWallet().PublicKey()
	router := solana.NewWallet().PublicKey()

	ix := fakeSubmitBidInstruction{
		programID: programID, relayer: relayer.PublicKey(), permission: permission, router: router,
		bidAmount: 1, deadline: time.Now().Add(time.Second).Unix(),
	}
	tx := buildTx(t, ix, relayer)

	v := New("solana-mainnet-beta", testConfig(programID, relayer.PublicKey()), fakeResolver{}, fakeSimulator{}, fakeOpportunities{
		byAccount: map[solana.PublicKey]*entities.Opportunity{permission: {Program: entities.ProgramLimo}},
	}, fakeLiveBids{})

	_, _, _, err := v.VerifyBid(context.Background(), entities.BidCreate{ChainID: "solana-mainnet-beta", Transaction: tx})
	require.Error(t, err)
}

func TestVerifyBidRejectsSimulationFailure(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	relayer := solana.NewWallet().PrivateKey
	permission := solana.NewWallet().PublicKey()
	router := solana.NewWallet().PublicKey()

	ix := fakeSubmitBidInstruction{
		programID: programID, relayer: relayer.PublicKey(), permission: permission, router: router,
		bidAmount: 1, deadline: time.Now().Add(time.Hour).Unix(),
	}
	tx := buildTx(t, ix, relayer)

	v := New("solana-mainnet-beta", testConfig(programID, relayer.PublicKey()), fakeResolver{},
		fakeSimulator{sim: &SimulationResult{Err: errSimFailed}},
		fakeOpportunities{byAccount: map[solana.PublicKey]*entities.Opportunity{permission: {Program: entities.ProgramLimo}}},
		fakeLiveBids{})

	_, _, _, err := v.VerifyBid(context.Background(), entities.BidCreate{ChainID: "solana-mainnet-beta", Transaction: tx})
	require.Error(t, err)
	restErr, ok := err.(*resterr.Error)
	require.True(t, ok)
	require.Equal(t, resterr.KindSimulation, restErr.Kind)
}

var errSimFailed = &testErr{"custom program error"}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

func TestContainsPubkey(t *testing.T) {
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()
	require.True(t, containsPubkey([]solana.PublicKey{a, b}, a))
	require.False(t, containsPubkey([]solana.PublicKey{a}, b))
}

func TestHasDiscriminator(t *testing.T) {
	data := append(append([]byte{}, submitBidDiscriminator[:]...), []byte{1, 2, 3}...)
	require.True(t, hasDiscriminator(data, submitBidDiscriminator))
	require.False(t, hasDiscriminator(data, swapDiscriminator))
	require.False(t, hasDiscriminator([]byte{1, 2}, submitBidDiscriminator))
}
