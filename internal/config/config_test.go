package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
environment: test
auth:
  admin_secret: s3cr3t
chains:
  solana-mainnet-beta:
    rpc_endpoints:
      - https://rpc-a.example.com
      - https://rpc-b.example.com
    express_relay_program_id: GwEtBWtAzaZ2jQwTSsJLG4ZXLuj9TLG2nyNf9xvHmvvf
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "test", cfg.Environment)
	require.Equal(t, "s3cr3t", cfg.Auth.AdminSecret)

	chain, ok := cfg.Chains["solana-mainnet-beta"]
	require.True(t, ok)
	require.Equal(t, 1232, chain.MaxTransactionSize)
	require.Equal(t, 400*time.Millisecond, chain.AuctionMinimumLifetime.Duration)
	require.Equal(t, 120*time.Second, chain.BidMaximumLifetime.Duration)
	require.Equal(t, 30, chain.MaxBroadcastRetries)
	require.Equal(t, 10, cfg.API.MaxActiveRequests)
}

func TestDurationUnmarshalInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
chains:
  bad:
    auction_minimum_lifetime: "not-a-duration"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}
