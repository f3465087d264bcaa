package main

import (
	"context"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bomanaps/fil-x402-facilitator/pkg/auditlog"
	"github.com/bomanaps/fil-x402-facilitator/pkg/bondledger"
	"github.com/bomanaps/fil-x402-facilitator/pkg/chainrpc"
	"github.com/bomanaps/fil-x402-facilitator/pkg/config"
	"github.com/bomanaps/fil-x402-facilitator/pkg/fcr"
	"github.com/bomanaps/fil-x402-facilitator/pkg/firestore"
	"github.com/bomanaps/fil-x402-facilitator/pkg/metrics"
	"github.com/bomanaps/fil-x402-facilitator/pkg/persistence"
	"github.com/bomanaps/fil-x402-facilitator/pkg/riskledger"
	"github.com/bomanaps/fil-x402-facilitator/pkg/server"
	"github.com/bomanaps/fil-x402-facilitator/pkg/settlement"
	"github.com/bomanaps/fil-x402-facilitator/pkg/sigdigest"
	"github.com/bomanaps/fil-x402-facilitator/pkg/voucher"
)

func main() {
	logger := log.New(log.Writer(), "[Facilitator] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("loading configuration: %v", err)
	}
	if err := cfg.ValidateForDevelopment(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	chain, err := newChainRPC(cfg, logger)
	if err != nil {
		logger.Fatalf("initializing chain RPC: %v", err)
	}

	digester := sigdigest.NewDigester(cfg.TokenName, cfg.ChainID)
	scaledLimits := riskledger.NewLimits(
		tokenAmount(cfg.RiskMaxPerTransaction, cfg.TokenDecimals),
		tokenAmount(cfg.RiskMaxPendingPerWallet, cfg.TokenDecimals),
		tokenAmount(cfg.RiskDailyLimitPerWallet, cfg.TokenDecimals),
		cfg.TokenDecimals,
	)
	risk := riskledger.NewLedger(scaledLimits, cfg.SettlementMaxAttempts)

	var bond bondledger.Ledger
	if cfg.BondEnabled() {
		bond, err = bondledger.NewEVMLedger(bondledger.Config{
			Endpoint:        cfg.ChainEndpoint,
			ChainID:         cfg.ChainID,
			ContractAddress: common.HexToAddress(cfg.BondContractAddress),
			SigningKeyHex:   cfg.FacilitatorSigningKey,
			Logger:          log.New(log.Writer(), "[BondLedger] ", log.LstdFlags),
		})
		if err != nil {
			logger.Fatalf("initializing bond ledger: %v", err)
		}
	}

	var monitor *fcr.Monitor
	if cfg.FCREnabled {
		// The fast-finality consensus subprotocol's own JSON-RPC transport
		// is out of scope (spec §1): no chain in the reference pack exposes
		// it, so the monitor runs against the in-memory double until a
		// concrete subprotocol client is wired in by the deployer.
		monitor = fcr.NewMonitor(fcr.NewFakeConsensusRPC(), fcr.Config{
			PollInterval: cfg.FCRPollInterval,
			Logger:       log.New(log.Writer(), "[FCR] ", log.LstdFlags),
		})
		if err := monitor.Start(context.Background()); err != nil {
			logger.Fatalf("starting FCR monitor: %v", err)
		}
	}

	verifier := settlement.NewVerifier(digester, chain, risk)
	engine := settlement.NewEngine(verifier, risk, chain, bond, monitor, settlement.Config{
		MaxAttempts:  cfg.SettlementMaxAttempts,
		RetryDelay:   cfg.SettlementRetryDelay,
		InnerTimeout: cfg.SettlementTimeout,
		StaleTimeout: 10 * time.Minute,
		Logger:       log.New(log.Writer(), "[Settlement] ", log.LstdFlags),
	})
	if err := engine.Start(context.Background()); err != nil {
		logger.Fatalf("starting settlement engine: %v", err)
	}

	var vouchers *voucher.Store
	if cfg.EscrowEnabled() {
		escrow, err := voucher.NewEVMEscrow(voucher.Config{
			Endpoint:        cfg.ChainEndpoint,
			ChainID:         cfg.ChainID,
			ContractAddress: common.HexToAddress(cfg.EscrowContractAddress),
			SigningKeyHex:   cfg.FacilitatorSigningKey,
		})
		if err != nil {
			logger.Fatalf("initializing escrow adapter: %v", err)
		}
		vouchers = voucher.NewStore(escrow)
	}

	if cfg.PersistenceEnabled() {
		if _, err := openPersistence(cfg, logger); err != nil {
			logger.Fatalf("initializing persistence: %v", err)
		}
		// Wiring a durable rehydrate/mirror pass for risk/settlement/voucher
		// state is left to an operator-driven migration; the KV layer above
		// is ready for it (pkg/persistence.Store).
	}

	handlers := server.NewHandlers(verifier, engine, risk, monitor, vouchers, server.ChainInfo{
		ChainID:     cfg.ChainID,
		NetworkName: cfg.TokenName,
	}, log.New(log.Writer(), "[Server] ", log.LstdFlags))

	httpServer := &http.Server{
		Addr:    cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Handler: handlers.Mux(),
	}

	go func() {
		logger.Printf("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server: %v", err)
		}
	}()

	registry := metrics.New()
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: registry.Handler(),
	}
	go func() {
		logger.Printf("serving metrics on %s", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server: %v", err)
		}
	}()

	auditClient := newAuditFirestoreClient(cfg, logger)
	audit := auditlog.New(auditlog.Config{
		Client: auditClient,
		Logger: log.New(log.Writer(), "[AuditLog] ", log.LstdFlags),
	})

	telemetryCtx, cancelTelemetry := context.WithCancel(context.Background())
	go runTelemetryLoop(telemetryCtx, registry, audit, risk, monitor, bond, cfg.TokenDecimals, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("shutting down")
	cancelTelemetry()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server shutdown: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("metrics server shutdown: %v", err)
	}
	if auditClient != nil {
		if err := auditClient.Close(); err != nil {
			logger.Printf("firestore client shutdown: %v", err)
		}
	}

	if err := engine.Stop(); err != nil {
		logger.Printf("settlement engine shutdown: %v", err)
	}
	if monitor != nil {
		if err := monitor.Stop(); err != nil {
			logger.Printf("FCR monitor shutdown: %v", err)
		}
	}

	logger.Println("stopped")
}

func newChainRPC(cfg *config.Config, logger *log.Logger) (chainrpc.RPC, error) {
	if cfg.ChainEndpoint == "" {
		logger.Println("no CHAIN_ENDPOINT configured, running against an in-memory chain double")
		return chainrpc.NewFakeRPC(cfg.ChainID), nil
	}
	return chainrpc.NewEVMClient(chainrpc.Config{
		Endpoint:      cfg.ChainEndpoint,
		ChainID:       cfg.ChainID,
		NetworkName:   cfg.TokenName,
		SigningKeyHex: cfg.FacilitatorSigningKey,
		Logger:        log.New(log.Writer(), "[ChainRPC] ", log.LstdFlags),
	})
}

// newAuditFirestoreClient builds the Firestore client backing the audit
// log. Firestore initialization failures are logged and degrade to a
// disabled (no-op) client rather than aborting startup: the audit trail is
// an operator convenience, not load-bearing for settlement correctness.
func newAuditFirestoreClient(cfg *config.Config, logger *log.Logger) *firestore.Client {
	client, err := firestore.NewClient(context.Background(), &firestore.ClientConfig{
		ProjectID:       cfg.FirebaseProjectID,
		CredentialsFile: cfg.FirebaseCredentialsFile,
		Enabled:         cfg.FirestoreEnabled,
		Logger:          log.New(log.Writer(), "[Firestore] ", log.LstdFlags),
	})
	if err != nil {
		logger.Printf("audit log Firestore client unavailable, audit trail disabled: %v", err)
		return nil
	}
	return client
}

func openPersistence(cfg *config.Config, logger *log.Logger) (*persistence.Store, error) {
	db, err := persistence.OpenGoLevelDB("facilitator", cfg.PersistenceDB)
	if err != nil {
		return nil, err
	}
	logger.Printf("persistence backed by goleveldb at %s (prefix %q)", cfg.PersistenceDB, cfg.PersistencePrefix)
	return persistence.NewStore(db, cfg.PersistencePrefix), nil
}

func tokenAmount(usd int64, decimals int) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(big.NewInt(usd), scale)
}
