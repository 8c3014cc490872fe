package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"arbengine/configs"
	"arbengine/internal/blockhash"
	"arbengine/internal/db"
	"arbengine/internal/detector"
	"arbengine/internal/engine"
	"arbengine/internal/feed"
	"arbengine/internal/logging"
	"arbengine/internal/metrics"
	"arbengine/internal/position"
	"arbengine/internal/priceclient"
	"arbengine/internal/registry"
	"arbengine/internal/rpcclient"
	"arbengine/internal/safety"
	"arbengine/internal/submitter"
	"arbengine/internal/tipfloor"
	"arbengine/internal/util"
	"arbengine/internal/venue"
	"arbengine/pkg/contractclient"
	"arbengine/pkg/txlistener"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// priceFeedInterval paces the feed client's background poll; the scan
// loop itself runs on engine.ScanInterval and reads whatever snapshot
// is currently cached.
const priceFeedInterval = 1 * time.Second

// consecutiveFailureWindow bounds how far back CircuitBreaker looks
// when computing its rolling error rate.
const consecutiveFailureWindow = 5 * time.Minute

func main() {
	cfg, err := configs.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	defer logger.Sync()

	// Dsn is left empty so sentry-go picks up SENTRY_DSN from the
	// environment; reporting is disabled when the variable is unset.
	if err := sentry.Init(sentry.ClientOptions{}); err != nil {
		logger.Warn("main: sentry init", zap.Error(err))
	}
	defer sentry.Flush(2 * time.Second)

	keyBytes, err := util.DecodeBase58(cfg.WalletSecret)
	if err != nil {
		logger.Fatal("main: decode wallet secret", zap.Error(err))
	}
	privKey, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		logger.Fatal("main: derive signer key", zap.Error(err))
	}
	walletAddr := crypto.PubkeyToAddress(privKey.PublicKey)

	rpc, err := rpcclient.Dial(context.Background(), cfg.RPCURL)
	if err != nil {
		logger.Fatal("main: dial rpc", zap.Error(err))
	}
	chain := chainAdapter{Client: rpc}
	if cfg.PoolRegistryAddr != (common.Address{}) {
		registryABI, err := abi.JSON(strings.NewReader(poolRegistryABI))
		if err != nil {
			logger.Fatal("main: parse pool registry abi", zap.Error(err))
		}
		chain.poolRegistry = contractclient.NewContractClient(rpc.Raw(), cfg.PoolRegistryAddr, registryABI)
	}

	price := priceclient.New(cfg.PriceFeedURL)

	var seed *configs.VenueRegistrySeed
	if seed, err = configs.LoadVenueRegistrySeed("configs/venues.yml"); err != nil {
		logger.Warn("main: venue registry seed", zap.Error(err))
	}
	programIDs := map[string]common.Address{}
	if seed != nil {
		for _, v := range seed.Venues {
			programIDs[v.Family] = common.HexToAddress(v.ProgramAddress)
		}
	}

	reg := registry.New(price, registry.NoopPersistentCache{}, chain)

	dispatcher := venue.NewDispatcher(
		&venue.CPAMMBuilder{Registry: reg, Chain: chain, ProgramID: programIDs["cpamm"]},
		&venue.CLMMBuilder{Registry: reg, Chain: chain, ProgramID: programIDs["clmm"]},
		&venue.DLMMBuilder{Registry: reg, Chain: chain, ProgramID: programIDs["dlmm"]},
		&venue.BondingCurveBuilder{Registry: reg, Chain: chain, ProgramID: programIDs["bcamm"]},
		venue.DarkPoolBuilder{},
	)

	tracker := position.NewTracker(cfg.MaxPositionBase.Int64(), cfg.FeeReserveBase.Int64())
	tracker.UpdateFromWallet(cfg.CapitalBase.Int64())

	tipMonitor := tipfloor.New(price, tipfloor.RefreshInterval)
	bhCache := blockhash.New(chain)

	primary := newHTTPBundleTransport(cfg.PriorityServiceURL, false)
	fallback := newHTTPBundleTransport(cfg.PriorityServiceURL, true)
	sub := submitter.New(primary, fallback)
	sub.SetConfirmer(signatureConfirmer{
		listener: txlistener.NewTxListener(rpc.Raw(), txlistener.WithPollInterval(time.Second)),
	})

	breaker := safety.NewCircuitBreaker(consecutiveFailureWindow, cfg.MaxConsecutiveFailures)
	daily := safety.NewDailyCounters(time.Now())
	policy := safety.NewPolicy(".emergency_stop", cfg.MaxConsecutiveFailures, cfg.MaxDailyTrades, cfg.DailyLossCapBase, breaker, daily)
	shutdown := safety.NewShutdown()

	metricsReg := metrics.New()
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsReg.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Warn("main: metrics server stopped", zap.Error(err))
			}
		}()
	}

	var recorder engine.Recorder = engine.NoopRecorder{}
	if cfg.MySQLDSN != "" {
		mysqlRecorder, err := db.NewMySQLRecorder(cfg.MySQLDSN)
		if err != nil {
			logger.Fatal("main: connect recorder", zap.Error(err))
		}
		defer mysqlRecorder.Close()
		recorder = mysqlRecorder
	}

	priceFeed := feed.New(price, priceFeedInterval)

	allowList := map[common.Address]bool{}
	for _, addr := range cfg.TargetTokens {
		allowList[addr] = true
	}

	e := engine.New(1, engine.Config{
		MaxPositionMinor:      cfg.MaxPositionBase.Int64(),
		SlippageBps:           int64(cfg.MinSpreadPct * 100),
		UsePriorityInclusion:  cfg.EnableLive,
		SimulateBeforeSubmit:  false,
		ComputeUnitPriceMicro: 0,
		SkipPoolValidityCheck: cfg.SkipPoolValidityCheck,
		DetectorConfig: detector.Config{
			AllowList:        allowList,
			MaxPositionMinor: cfg.MaxPositionBase,
		},
	})
	e.Feed = priceFeed
	e.Registry = reg
	e.Dispatcher = dispatcher
	e.Position = tracker
	e.TipFloor = tipMonitor
	e.Blockhash = bhCache
	e.Submitter = sub
	e.Policy = policy
	e.Shutdown = shutdown
	e.Metrics = metricsReg
	e.Recorder = recorder
	e.Signer = engine.ECDSASigner{Key: privKey}
	e.Wallet = walletAddr
	e.RPCHealth = rpc
	e.TipSource = staticTipSource{accounts: cfg.TipAccounts}
	e.Logger = logger

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("main: shutdown signal received")
		shutdown.Fire()
	}()

	reportChan := make(chan string)
	go func() {
		for update := range reportChan {
			logger.Info("engine: executed", zap.String("summary", update))
		}
	}()

	if err := e.Run(context.Background(), reportChan, e.Cfg); err != nil {
		sentry.CaptureException(err)
		logger.Error("main: engine stopped", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
