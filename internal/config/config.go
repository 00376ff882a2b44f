// Package config loads the auction server's YAML configuration. Adapted
// from josephblackelite-nhbchain/services/swapd/config: a top-level Config
// struct with nested per-concern structs and a Duration wrapper so
// operators write "400ms" instead of raw nanosecond integers.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support human-readable YAML values.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a string")
	}
	if value.Value == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config is the top-level auction server configuration.
type Config struct {
	Environment string                `yaml:"environment"`
	API         APIConfig             `yaml:"api"`
	Auth        AuthConfig            `yaml:"auth"`
	Chains      map[string]ChainConfig `yaml:"chains"`
	Database    DatabaseConfig        `yaml:"database"`
}

// APIConfig tunes the HTTP/WS surface (§6).
type APIConfig struct {
	ListenAddress      string   `yaml:"listen"`
	MaxActiveRequests  int      `yaml:"max_active_requests"`
	MaxWebsocketConns  int      `yaml:"max_websocket_connections"`
	PingInterval       Duration `yaml:"ping_interval"`
}

// AuthConfig configures bearer-token -> profile resolution and the
// profile -> program binding used by DELETE /opportunities (spec.md Open
// Question O-2: a configured map, not a hardcoded switch).
type AuthConfig struct {
	AdminSecret      string            `yaml:"admin_secret"`
	ProgramsByProfile map[string]string `yaml:"programs_by_profile"`
	JWTSecret        string            `yaml:"jwt_secret"`
	JWTIssuer        string            `yaml:"jwt_issuer"`
}

// ChainConfig is per-chain RPC/program configuration.
type ChainConfig struct {
	RPCEndpoints             []string `yaml:"rpc_endpoints"`
	WSEndpoint                string   `yaml:"ws_endpoint"`
	ExpressRelayProgramID     string   `yaml:"express_relay_program_id"`
	RelayerPrivateKey         string   `yaml:"relayer_private_key"`
	PermissionAccountPosition int      `yaml:"permission_account_position"`
	RouterAccountPosition     int      `yaml:"router_account_position"`
	MaxTransactionSize        int      `yaml:"max_transaction_size"`
	AuctionMinimumLifetime    Duration `yaml:"auction_minimum_lifetime"`
	BidMaximumLifetime        Duration `yaml:"bid_maximum_lifetime"`
	RetryInterval             Duration `yaml:"retry_interval"`
	MaxBroadcastRetries       int      `yaml:"max_broadcast_retries"`
	PollInterval              Duration `yaml:"poll_interval"`
	Swap                      *SwapAccountPositionsConfig `yaml:"swap"`
}

// SwapAccountPositionsConfig locates the extra accounts a swap instruction
// carries, mirroring the permission/router account position fields above.
// Left nil for chains that never register Swap opportunities, in which case
// the verifier rejects any swap instruction outright.
type SwapAccountPositionsConfig struct {
	SearcherMint         int `yaml:"searcher_mint_position"`
	UserMint             int `yaml:"user_mint_position"`
	SearcherTokenProgram int `yaml:"searcher_token_program_position"`
	UserTokenProgram     int `yaml:"user_token_program_position"`
	FeeTokenMint         int `yaml:"fee_token_mint_position"`
	SearcherTokenAccount int `yaml:"searcher_token_account_position"`
	UserTokenAccount     int `yaml:"user_token_account_position"`
}

// DatabaseConfig configures the persisted audit store (§6).
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// Defaults applies spec.md's named constants wherever a chain entry leaves
// a field unset, so a minimal config file (just rpc_endpoints and program
// id) is enough to run the server.
func (c *ChainConfig) Defaults() {
	if c.MaxTransactionSize == 0 {
		c.MaxTransactionSize = 1232 // Solana's max serialized-tx size, signatures included
	}
	if c.AuctionMinimumLifetime.Duration == 0 {
		c.AuctionMinimumLifetime = Duration{400 * time.Millisecond}
	}
	if c.BidMaximumLifetime.Duration == 0 {
		c.BidMaximumLifetime = Duration{120 * time.Second}
	}
	if c.RetryInterval.Duration == 0 {
		c.RetryInterval = Duration{2 * time.Second}
	}
	if c.MaxBroadcastRetries == 0 {
		c.MaxBroadcastRetries = 30
	}
	if c.PollInterval.Duration == 0 {
		c.PollInterval = Duration{60 * time.Second}
	}
}

func (c *APIConfig) Defaults() {
	if c.MaxActiveRequests == 0 {
		c.MaxActiveRequests = 10
	}
	if c.MaxWebsocketConns == 0 {
		c.MaxWebsocketConns = 1000
	}
	if c.PingInterval.Duration == 0 {
		c.PingInterval = Duration{30 * time.Second}
	}
}

// Load reads and parses a YAML config file, applying defaults to every
// configured chain.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.API.Defaults()
	for id, chain := range cfg.Chains {
		chain.Defaults()
		cfg.Chains[id] = chain
	}
	return cfg, nil
}
