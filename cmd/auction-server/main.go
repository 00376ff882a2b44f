// Command auction-server runs Express Relay's off-chain priority-auction
// server (spec.md's OVERVIEW): one Chain Adapter, Verifier, and Auction
// Manager per configured chain, sharing a single Opportunity Store,
// Subscription Hub, audit store, and HTTP/WS API.
//
// Grounded on josephblackelite-nhbchain/services/swapd/main.go's shape:
// flag-configured YAML path, logging.Setup, signal.NotifyContext-driven
// background goroutines, and a blocking server Run call.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/expressrelay/auction-server/internal/api"
	"github.com/expressrelay/auction-server/internal/api/middleware"
	"github.com/expressrelay/auction-server/internal/auction"
	"github.com/expressrelay/auction-server/internal/chainadapter"
	"github.com/expressrelay/auction-server/internal/config"
	"github.com/expressrelay/auction-server/internal/entities"
	"github.com/expressrelay/auction-server/internal/hub"
	"github.com/expressrelay/auction-server/internal/logging"
	"github.com/expressrelay/auction-server/internal/metrics"
	"github.com/expressrelay/auction-server/internal/opportunity"
	"github.com/expressrelay/auction-server/internal/store"
	"github.com/expressrelay/auction-server/internal/verifier"
)

// chainRuntime bundles one configured chain's live components, enough to
// drive its background conclusion/poll loops after startup.
type chainRuntime struct {
	id      entities.ChainID
	adapter *chainadapter.Adapter
	manager *auction.Manager
	config  config.ChainConfig
}

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "path to auction-server configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("AUCTION_SERVER_ENV"))
	logger := logging.Setup("auction-server", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("auction-server: load config: %v", err)
	}

	registry := prometheus.NewRegistry()
	metricsRecorder := metrics.NewRecorder(registry)

	db, err := store.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("auction-server: open audit database: %v", err)
	}

	websocketHub := hub.New(cfg.API.MaxWebsocketConns)
	recorder := store.New(db, websocketHub)
	if err := recorder.Migrate(); err != nil {
		log.Fatalf("auction-server: migrate audit database: %v", err)
	}
	opportunities := opportunity.New(recorder)

	chains := make(map[entities.ChainID]api.ChainComponents, len(cfg.Chains))
	var runtimes []chainRuntime

	for rawChainID, chainCfg := range cfg.Chains {
		chainID := entities.ChainID(rawChainID)

		if len(chainCfg.RPCEndpoints) == 0 {
			log.Fatalf("auction-server: chain %s requires at least one rpc endpoint", chainID)
		}
		endpoints := make([]chainadapter.Endpoint, 0, len(chainCfg.RPCEndpoints))
		for i, url := range chainCfg.RPCEndpoints {
			name := url
			if i == 0 {
				name = "primary"
			}
			endpoints = append(endpoints, chainadapter.Endpoint{Name: name, Client: rpc.New(url)})
		}
		adapter, err := chainadapter.NewAdapter(string(chainID), endpoints)
		if err != nil {
			log.Fatalf("auction-server: chain %s adapter: %v", chainID, err)
		}
		adapter.SetLogger(func(format string, args ...any) {
			logger.Warn("chain adapter endpoint failure", "chain_id", chainID, "detail", fmt.Sprintf(format, args...))
		})

		programID, err := solana.PublicKeyFromBase58(chainCfg.ExpressRelayProgramID)
		if err != nil {
			log.Fatalf("auction-server: chain %s express_relay_program_id: %v", chainID, err)
		}
		relayerKey, err := solana.PrivateKeyFromBase58(chainCfg.RelayerPrivateKey)
		if err != nil {
			log.Fatalf("auction-server: chain %s relayer_private_key: %v", chainID, err)
		}

		manager := auction.New(
			chainID,
			auction.Config{
				MinimumLifetime:    chainCfg.AuctionMinimumLifetime.Duration,
				MaximumBidLifetime: chainCfg.BidMaximumLifetime.Duration,
				ConclusionInterval: chainCfg.PollInterval.Duration,
			},
			auction.NewAdapterSubmitter(adapter, metricsRecorder, chainadapter.RetryConfig{
				Interval:       chainCfg.RetryInterval.Duration,
				MaxRetries:     chainCfg.MaxBroadcastRetries,
				BidMaxLifetime: chainCfg.BidMaximumLifetime.Duration,
			}),
			auction.NewRelayerSigner(relayerKey),
			recorder,
			metricsRecorder,
		)

		var swapPositions *verifier.SwapAccountPositions
		if sp := chainCfg.Swap; sp != nil {
			swapPositions = &verifier.SwapAccountPositions{
				SearcherMint:         sp.SearcherMint,
				UserMint:             sp.UserMint,
				SearcherTokenProgram: sp.SearcherTokenProgram,
				UserTokenProgram:     sp.UserTokenProgram,
				FeeTokenMint:         sp.FeeTokenMint,
				SearcherTokenAccount: sp.SearcherTokenAccount,
				UserTokenAccount:     sp.UserTokenAccount,
			}
		}

		bidVerifier := verifier.New(
			chainID,
			verifier.Config{
				ExpressRelayProgramID:     programID,
				RelayerPublicKey:          relayerKey.PublicKey(),
				PermissionAccountPosition: chainCfg.PermissionAccountPosition,
				RouterAccountPosition:     chainCfg.RouterAccountPosition,
				MaxTransactionSize:        chainCfg.MaxTransactionSize,
				Swap:                      swapPositions,
			},
			adapter.LookupTables(),
			adapterSimulator{adapter: adapter},
			opportunities,
			manager,
		)

		chains[chainID] = api.ChainComponents{Verifier: bidVerifier, Manager: manager}
		runtimes = append(runtimes, chainRuntime{id: chainID, adapter: adapter, manager: manager, config: chainCfg})
	}

	authenticator := middleware.NewAuthenticator(middleware.Config{
		JWTSecret:         cfg.Auth.JWTSecret,
		JWTIssuer:         cfg.Auth.JWTIssuer,
		AdminSecret:       cfg.Auth.AdminSecret,
		ProgramsByProfile: cfg.Auth.ProgramsByProfile,
	})

	server := api.NewServer(api.Config{
		Opportunities: opportunities,
		Chains:        chains,
		Hub:           websocketHub,
		Auth:          authenticator,
		Store:         recorder,
		PingInterval:  cfg.API.PingInterval.Duration,
	})

	httpServer := &http.Server{
		Addr:    cfg.API.ListenAddress,
		Handler: server.Router(),
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, rt := range runtimes {
		go runConclusionLoop(rootCtx, rt)
		go runPollLoop(rootCtx, rt)
	}

	go func() {
		<-rootCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown error", "detail", err.Error())
		}
	}()

	logger.Info("auction-server starting", "listen", cfg.API.ListenAddress, "chains", len(runtimes))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("auction-server: http server error: %v", err)
	}
}

// runConclusionLoop periodically settles every chain's pending auctions
// (spec.md §4.5's conclusion cadence), ticking at the chain's configured
// auction minimum lifetime the same way auction_manager.rs's actor loop ticks.
func runConclusionLoop(ctx context.Context, rt chainRuntime) {
	interval := rt.config.AuctionMinimumLifetime.Duration
	if interval <= 0 {
		interval = auction.MinimumLifetime
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.manager.Conclude(ctx)
		}
	}
}

// runPollLoop periodically checks every in-flight winning transaction's
// on-chain confirmation status against the chain adapter.
func runPollLoop(ctx context.Context, rt chainRuntime) {
	interval := rt.config.PollInterval.Duration
	if interval <= 0 {
		interval = auction.ConclusionInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.manager.Poll(ctx, rt.adapter.SignatureStatus)
		}
	}
}
