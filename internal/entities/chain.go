// Package entities holds the core data model shared by every component of
// the auction server: opportunities, bids, auctions and the permission key
// that ties them together.
package entities

// ChainID identifies a configured SVM chain, e.g. "solana-mainnet-beta".
type ChainID string

// ChainType distinguishes the family of chain a component is dealing with.
// The server is scoped to Svm today; Evm is reserved as an extension point
// (see SPEC_FULL.md, Supplemented Features #1) and is not implemented.
type ChainType string

const (
	ChainTypeSvm ChainType = "svm"
	ChainTypeEvm ChainType = "evm"
)

// Program identifies which on-chain program variant an opportunity targets.
type Program string

const (
	ProgramLimo Program = "limo"
	ProgramSwap Program = "swap"
)
