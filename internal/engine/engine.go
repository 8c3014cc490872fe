// Package engine implements the execution engine: the per-scan
// orchestration loop that runs an opportunity through the safety gate,
// staleness gate, capital gate, pool resolution, cost recheck,
// instruction build, tip embedding, signing, optional simulation, and
// bundle enqueue, releasing capital when the bundle resolves. The
// tip-floor monitor, blockhash cache, background pool revalidator, and
// bundle submitter are supervised via golang.org/x/sync/errgroup.
package engine

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"math/rand"
	"sync/atomic"
	"time"

	"arbengine"
	"arbengine/internal/blockhash"
	"arbengine/internal/cost"
	"arbengine/internal/detector"
	"arbengine/internal/feed"
	"arbengine/internal/metrics"
	"arbengine/internal/position"
	"arbengine/internal/registry"
	"arbengine/internal/safety"
	"arbengine/internal/submitter"
	"arbengine/internal/tipfloor"
	"arbengine/internal/venue"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Simulator performs the optional pre-submission dry-run.
// Production configuration leaves this unset: pool state can drift in
// the 5-10ms between simulation and submission, causing excessive false
// rejects; initial build-time validation and the staleness gate are
// retained instead.
type Simulator interface {
	SimulateRaw(ctx context.Context, raw []byte) (bool, error)
}

// StalenessThreshold is the maximum age of an Opportunity before the
// engine discards it without attempting instruction build.
const StalenessThreshold = 100 * time.Millisecond

// ScanInterval paces the detect-build-enqueue hot path, synchronous with
// the submitter's own rate-limit window.
const ScanInterval = 1500 * time.Millisecond

// SnapshotInterval paces the periodic AssetSnapshot persisted through the
// Recorder for postmortem analysis, independent of ScanInterval so
// recording cadence doesn't couple to scan throughput tuning.
const SnapshotInterval = 30 * time.Second

// ComputeUnitBufferPct is the compute-budget headroom added on top of
// the per-leg estimate.
const ComputeUnitBufferPct = 20

// baseComputeUnitsPerLeg is a conservative per-leg compute estimate used
// to size the compute-budget instruction before simulation is available.
const baseComputeUnitsPerLeg = 120_000

// Recorder persists periodic AssetSnapshots; satisfied by *db.MySQLRecorder
// or a no-op stand-in when MYSQL_DSN is unset.
type Recorder interface {
	RecordSnapshot(s arbengine.AssetSnapshot) error
}

// RPCHealth surfaces the RPC client's consecutive-failure circuit
// breaker to the scan loop; satisfied by *rpcclient.Client. A tripped
// breaker halts trading with no automatic reset, so the operator must
// restart after remediation.
type RPCHealth interface {
	CheckCircuitBreaker() error
}

// NoopRecorder discards every snapshot, used when no DSN is configured.
type NoopRecorder struct{}

func (NoopRecorder) RecordSnapshot(arbengine.AssetSnapshot) error { return nil }

// Signer produces a signed, serialized transaction from an ordered
// instruction list plus a blockhash.
type Signer interface {
	Sign(instructions []venue.Instruction, blockhash common.Hash, computeUnitLimit uint64, computeUnitPriceMicroLamports uint64) ([]byte, error)
}

// ECDSASigner signs with a single *ecdsa.PrivateKey, the sole wallet
// signer this engine supports.
type ECDSASigner struct {
	Key *ecdsa.PrivateKey
}

// Sign concatenates each instruction's ProgramID and Data with the
// blockhash, signs the Keccak-256 hash of that payload with Key via
// crypto.Sign, and returns the payload followed by the 65-byte
// signature. The compute-unit arguments are not encoded, and no
// ABI-encoded multicall payload is built.
func (s ECDSASigner) Sign(instructions []venue.Instruction, bh common.Hash, unitLimit, unitPriceMicro uint64) ([]byte, error) {
	if s.Key == nil {
		return nil, fmt.Errorf("engine: signer has no key")
	}
	if len(instructions) == 0 {
		return nil, fmt.Errorf("engine: no instructions to sign")
	}
	payload := make([]byte, 0, 64*len(instructions))
	for _, ix := range instructions {
		payload = append(payload, ix.ProgramID.Bytes()...)
		payload = append(payload, ix.Data...)
	}
	payload = append(payload, bh.Bytes()...)
	sig, err := crypto.Sign(crypto.Keccak256(payload), s.Key)
	if err != nil {
		return nil, fmt.Errorf("engine: sign: %w", err)
	}
	return append(payload, sig...), nil
}

// TipAccountSource returns the pool of eligible tip-recipient addresses;
// the engine selects one uniformly at random per bundle.
type TipAccountSource interface {
	TipAccounts() []common.Address
}

// backgroundValidatorTopN is the number of most-active pools the
// background revalidator refreshes every 120s.
const backgroundValidatorTopN = 50

// Config bundles every tunable the scan loop consults, generalized from
// configs.Config into the subset the engine itself needs.
type Config struct {
	MaxPositionMinor      int64
	SlippageBps           int64
	UsePriorityInclusion  bool
	SimulateBeforeSubmit  bool
	ComputeUnitPriceMicro uint64
	SkipPoolValidityCheck bool
	DetectorConfig        detector.Config
}

// Engine wires every component built in internal/* into the per-scan
// orchestration loop.
type Engine struct {
	Feed       *feed.Client
	Registry   *registry.Registry
	Dispatcher *venue.Dispatcher
	Position   *position.Tracker
	TipFloor   *tipfloor.Monitor
	Blockhash  *blockhash.Cache
	Submitter  *submitter.Submitter
	Policy     *safety.Policy
	Shutdown   *safety.Shutdown
	Metrics    *metrics.Registry
	Recorder   Recorder
	Signer     Signer
	TipSource  TipAccountSource
	Simulator  Simulator
	Logger     *zap.Logger

	// Wallet is the trader's own address: the signer account every built
	// instruction lists and the owner the builders derive associated
	// token accounts for.
	Wallet common.Address

	// RPCHealth gates every scan iteration on the RPC client's circuit
	// breaker; nil disables the check (tests, paper mode without RPC).
	RPCHealth RPCHealth

	Cfg Config

	rng   *rand.Rand
	phase atomic.Int32 // arbengine.EnginePhase, read/written only from the scan goroutine

	// pnlMinor accumulates realized PnL across bundle resolutions,
	// written from the submitter goroutine via OnResolve hooks.
	pnlMinor atomic.Int64

	// High-water marks for publishStats' counter deltas; touched only
	// from the scan goroutine.
	lastTierHits   [4]uint64
	lastQueueDrops uint64
}

// New constructs an Engine. rngSeed is accepted explicitly (rather than
// seeding from time.Now) so paper-trading runs are reproducible.
func New(rngSeed int64, cfg Config) *Engine {
	return &Engine{Cfg: cfg, rng: rand.New(rand.NewSource(rngSeed))}
}

// Run drives background collaborators under an errgroup and the
// detect-build-enqueue scan loop until ctx is cancelled or the shutdown
// signal fires. Any supervised goroutine's fatal error cancels the
// group's context, which in turn stops the scan loop and every other
// background goroutine on its next select.
func (e *Engine) Run(ctx context.Context, reportChan chan<- string, cfg Config) error {
	e.Cfg = cfg
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		e.Feed.Run(gctx, e.Shutdown.C())
		return nil
	})
	g.Go(func() error {
		e.TipFloor.Run(gctx, e.Shutdown.C())
		return nil
	})
	g.Go(func() error {
		e.Blockhash.Run(gctx, e.Shutdown.C())
		return nil
	})
	g.Go(func() error {
		e.Submitter.Run(gctx, e.Shutdown.C())
		return nil
	})
	if !e.Cfg.SkipPoolValidityCheck {
		g.Go(func() error {
			e.Registry.StartBackgroundValidator(gctx, e.Shutdown.C(), backgroundValidatorTopN)
			return nil
		})
	}
	g.Go(func() error {
		return e.scanLoop(gctx, reportChan)
	})

	err := g.Wait()
	if reportChan != nil {
		close(reportChan)
	}
	return err
}

func (e *Engine) scanLoop(ctx context.Context, reportChan chan<- string) error {
	ticker := time.NewTicker(ScanInterval)
	defer ticker.Stop()
	snapTicker := time.NewTicker(SnapshotInterval)
	defer snapTicker.Stop()

	e.setPhase(arbengine.PhaseScanning)

	for {
		select {
		case <-ctx.Done():
			e.setPhase(arbengine.PhaseHalted)
			return nil
		case <-e.Shutdown.C():
			e.setPhase(arbengine.PhaseHalted)
			return nil
		case <-snapTicker.C:
			e.recordSnapshot(time.Now())
			e.publishStats()
			continue
		case <-ticker.C:
		}

		if err := e.Policy.ShouldStop(time.Now()); err != nil {
			return e.halt(err)
		}
		if e.RPCHealth != nil {
			if err := e.RPCHealth.CheckCircuitBreaker(); err != nil {
				if e.Metrics != nil {
					e.Metrics.RPCCircuitTripped.Set(1)
				}
				return e.halt(err)
			}
		}

		e.runOneIteration(ctx, reportChan)
	}
}

// halt stops the scan loop on a policy breach or circuit-breaker trip.
// This is a clean, operator-visible halt: exit code 0 on an emergency
// sentinel or circuit-breaker trip, with a non-zero exit reserved for
// startup configuration failures. Report it loudly, but don't propagate
// it as a fatal errgroup error.
func (e *Engine) halt(err error) error {
	e.Logger.Error("engine: halting scan loop", zap.Error(err))
	sentry.CaptureException(err)
	e.setPhase(arbengine.PhaseHalted)
	e.recordSnapshot(time.Now())
	e.Shutdown.Fire()
	return nil
}

// setPhase records the engine's coarse lifecycle state for the next
// snapshot; cheap enough to call on every transition.
func (e *Engine) setPhase(p arbengine.EnginePhase) {
	e.phase.Store(int32(p))
}

// recordSnapshot persists one AssetSnapshot through the Recorder.
// A NoopRecorder is wired in when no DSN is configured, so this call is
// always safe even without durable persistence enabled.
func (e *Engine) recordSnapshot(now time.Time) {
	capital := e.Position.State()
	trades, _ := e.Policy.Daily.Snapshot(now)
	pnl := big.NewInt(e.pnlMinor.Load())

	snap := arbengine.AssetSnapshot{
		Timestamp:       now,
		Phase:           arbengine.EnginePhase(e.phase.Load()),
		TotalTradeable:  capital.TotalTradeable,
		InFlight:        capital.InFlight,
		DailyTradeCount: trades,
		CumulativePnL:   pnl,
	}
	if err := e.Recorder.RecordSnapshot(snap); err != nil {
		e.Logger.Warn("engine: snapshot persist failed", zap.Error(err))
	}
}

// realizePnL applies a resolved bundle's economic outcome to the daily
// loss counters and the exported cumulative-PnL gauge: a landed bundle
// realizes its expected net profit, a failed one realizes the sunk
// costs as a loss. An unknown (submitted-unverified) outcome stays
// unrealized, so an unconfirmed bundle can't trip the daily loss cap.
func (e *Engine) realizePnL(outcome arbengine.BundleOutcome, expectedProfit, totalCost *big.Int) {
	var delta *big.Int
	switch outcome {
	case arbengine.BundleLanded:
		delta = expectedProfit
	case arbengine.BundleFailed:
		delta = new(big.Int).Neg(totalCost)
	default:
		return
	}
	if e.Policy != nil && e.Policy.Daily != nil {
		e.Policy.Daily.RecordPnL(time.Now(), delta)
	}
	total := e.pnlMinor.Add(delta.Int64())
	if e.Metrics != nil {
		e.Metrics.CumulativePnL.Set(float64(total))
	}
}

// publishStats pushes the registry's tier-hit counters and the
// submitter's queue stats into their Prometheus collectors. Both
// collaborators keep cumulative counts, so only the delta since the
// previous publish is added to each counter.
func (e *Engine) publishStats() {
	if e.Metrics == nil {
		return
	}
	if e.Registry != nil {
		tiers := e.Registry.TierStats()
		for i := range tiers {
			if hits := tiers[i].Hits; hits > e.lastTierHits[i] {
				tier := arbengine.ResolutionTier(i).String()
				e.Metrics.RegistryTierHits.WithLabelValues(tier).Add(float64(hits - e.lastTierHits[i]))
				e.lastTierHits[i] = hits
			}
		}
	}
	if e.Submitter != nil {
		st := e.Submitter.Stats()
		e.Metrics.SubmitterQueueDepth.Set(float64(st.QueueDepth))
		if st.QueueFullDrops > e.lastQueueDrops {
			e.Metrics.SubmitterQueueDrops.Add(float64(st.QueueFullDrops - e.lastQueueDrops))
			e.lastQueueDrops = st.QueueFullDrops
		}
	}
}

// runOneIteration executes at most one opportunity per scan iteration:
// breaking out after the first successful enqueue keeps the submitter
// queue near-empty and every executed opportunity fresh.
func (e *Engine) runOneIteration(ctx context.Context, reportChan chan<- string) {
	snapshot := e.Feed.Snapshot()
	tip := e.TipFloor.Snapshot()
	capital := e.Position.State()

	opps := detector.Detect(snapshot, capital.TotalTradeable, tip, e.Cfg.DetectorConfig, time.Now())
	opps = append(opps, detector.DetectTriangular(snapshot, capital.TotalTradeable, tip, e.Cfg.DetectorConfig, time.Now())...)
	if len(opps) == 0 {
		return
	}
	e.Metrics.OpportunitiesDetected.Add(float64(len(opps)))

	for _, opp := range opps {
		if e.tryExecute(ctx, opp, reportChan) {
			return // at most one opportunity per iteration
		}
	}
}

func (e *Engine) tryExecute(ctx context.Context, opp arbengine.Opportunity, reportChan chan<- string) bool {
	if opp.IsStale(time.Now(), StalenessThreshold) {
		e.Metrics.RecordDrop("opportunity_stale")
		return false
	}

	if err := e.Position.Reserve(opp.PositionMinor.Int64()); err != nil {
		e.Metrics.RecordDrop("insufficient_capital")
		e.Logger.Debug("engine: skip, capital gate", zap.Error(err))
		return false
	}
	e.setPhase(arbengine.PhaseExecuting)
	defer e.setPhase(arbengine.PhaseScanning)
	// The reservation is released here on every pre-enqueue failure; once
	// the bundle is accepted by the submitter, ownership of the release
	// transfers to the bundle's OnResolve hook so capital stays in-flight
	// until the bundle resolves (landed, failed, or drained).
	size := opp.PositionMinor.Int64()
	handedOff := false
	defer func() {
		if !handedOff {
			e.Position.Release(size)
		}
	}()

	if !e.Cfg.SkipPoolValidityCheck {
		if err := e.validatePools(ctx, opp); err != nil {
			e.Metrics.RecordDrop("ghost_pool")
			e.Logger.Warn("engine: skip, pool validity", zap.Error(err))
			return false
		}
	}

	freshTip := e.TipFloor.Snapshot()
	cb := cost.Compute(opp.PositionMinor, opp.GrossProfit, e.Cfg.UsePriorityInclusion, freshTip)
	if !cb.IsProfitable(opp.GrossProfit) {
		e.Metrics.RecordDrop("unprofitable_after_recheck")
		return false
	}

	instructions, err := e.buildInstructions(ctx, opp)
	if err != nil {
		e.Metrics.RecordDrop("build_failure")
		e.Logger.Warn("engine: instruction build failed", zap.Error(err))
		return false
	}

	if e.Cfg.UsePriorityInclusion {
		instructions = append(instructions, e.tipInstruction(cb.Tip))
	}

	bh, err := e.Blockhash.GetFresh(ctx)
	if err != nil {
		e.Metrics.RecordDrop("blockhash_unavailable")
		return false
	}

	unitLimit := uint64(len(opp.Legs)*baseComputeUnitsPerLeg) * (100 + ComputeUnitBufferPct) / 100
	raw, err := e.Signer.Sign(instructions, bh, unitLimit, e.Cfg.ComputeUnitPriceMicro)
	if err != nil {
		e.Metrics.RecordDrop("sign_failure")
		return false
	}

	if e.Cfg.SimulateBeforeSubmit {
		// Production configuration disables this check; it
		// remains available for staging environments.
		ok, err := e.simulate(ctx, raw)
		if err != nil || !ok {
			e.Metrics.RecordDrop("simulation_failed")
			return false
		}
	}

	expected := cb.NetProfit(opp.GrossProfit)
	bundle := arbengine.Bundle{
		Transactions:   [][]byte{raw},
		Description:    fmt.Sprintf("opp token=%s legs=%d", opp.TokenMint.Hex(), len(opp.Legs)),
		ExpectedProfit: expected,
		QueuedAt:       time.Now(),
		Signature:      crypto.Keccak256Hash(raw),
		OnResolve: func(outcome arbengine.BundleOutcome) {
			e.Position.Release(size)
			e.realizePnL(outcome, expected, cb.TotalCost)
		},
	}
	if err := e.Submitter.Enqueue(bundle); err != nil {
		e.Metrics.RecordDrop("queue_full")
		e.Policy.RecordFailure()
		return false
	}
	handedOff = true

	e.Metrics.OpportunitiesExecuted.Inc()
	e.Policy.RecordSuccess()
	e.Policy.Daily.RecordTrade(time.Now())
	if reportChan != nil {
		select {
		case reportChan <- bundle.Description:
		default:
		}
	}
	return true
}

// validatePools resolves every leg's pool address and ensures each is
// cached-valid, batch-validating only the legs whose cache entry is
// cold. A pool already cached invalid is dropped without any
// RPC call for the remainder of the TTL. Cold legs are grouped by venue
// tag before calling ValidateBatch since a cross-venue opportunity's two
// legs are, by construction, on different venue families
// with different ghost-pool size floors.
func (e *Engine) validatePools(ctx context.Context, opp arbengine.Opportunity) error {
	cold := make(map[arbengine.VenueTag][]string)
	for _, leg := range opp.Legs {
		if _, err := e.Registry.Resolve(ctx, leg.PoolShortID, leg.VenueTag); err != nil {
			return fmt.Errorf("%w: %s", arbengine.ErrResolutionMiss, leg.PoolShortID)
		}
		if decision, present := e.Registry.IsPoolValidCached(leg.PoolShortID); present {
			if !decision {
				return fmt.Errorf("%w: %s", arbengine.ErrGhostPool, leg.PoolShortID)
			}
			continue
		}
		cold[leg.VenueTag] = append(cold[leg.VenueTag], leg.PoolShortID)
	}
	for venueTag, ids := range cold {
		if err := e.Registry.ValidateBatch(ctx, ids, venueTag); err != nil {
			return err
		}
	}
	for _, leg := range opp.Legs {
		if decision, present := e.Registry.IsPoolValidCached(leg.PoolShortID); !present || !decision {
			return fmt.Errorf("%w: %s", arbengine.ErrGhostPool, leg.PoolShortID)
		}
	}
	return nil
}

func (e *Engine) buildInstructions(ctx context.Context, opp arbengine.Opportunity) ([]venue.Instruction, error) {
	var out []venue.Instruction
	for _, leg := range opp.Legs {
		// Each leg spends and receives its own amount, not the opening
		// position: a sell/closing leg's input is whatever quantity the
		// prior leg actually produced, threaded through
		// from the detector via leg.AmountIn/leg.ExpectedOut.
		params := venue.SwapParams{
			AmountIn:          leg.AmountIn,
			ExpectedAmountOut: leg.ExpectedOut,
			MinAmountOut:      venue.MinAmountOutFromSlippage(leg.ExpectedOut, e.Cfg.SlippageBps),
			DirectionAToB:     leg.BuySide,
		}
		ixs, err := e.Dispatcher.Build(ctx, leg.VenueTag, leg.PoolShortID, params, e.Wallet)
		if err != nil {
			return nil, fmt.Errorf("%w: leg %s: %v", arbengine.ErrVenueUnsupported, leg.PoolShortID, err)
		}
		out = append(out, ixs...)
	}
	return out, nil
}

// tipInstruction embeds the tip transfer inside the same transaction as
// the swap instructions, never as a separate transaction: a separate-tip
// path is insecure since partial inclusion could land the tip while the
// swap fails.
func (e *Engine) tipInstruction(tip *big.Int) venue.Instruction {
	accounts := e.TipSource.TipAccounts()
	var recipient common.Address
	if len(accounts) > 0 {
		recipient = accounts[e.rng.Intn(len(accounts))]
	}
	return venue.Instruction{
		ProgramID: recipient,
		Data:      tip.Bytes(),
	}
}

func (e *Engine) simulate(ctx context.Context, raw []byte) (bool, error) {
	if e.Simulator == nil {
		return true, nil
	}
	return e.Simulator.SimulateRaw(ctx, raw)
}
