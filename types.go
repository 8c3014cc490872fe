// Package arbengine implements a cross-venue AMM price-arbitrage engine:
// price ingestion, opportunity detection, cost/tip modelling, bundle
// execution and the safety envelope that gates all of it.
package arbengine

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// VenueTag identifies an AMM venue family. Builders in internal/venue are
// keyed by the family prefix, not the full tag, so that e.g. "cpamm-v1"
// and "cpamm-v2" share a builder.
type VenueTag string

// Family returns the venue-family prefix used to group venue tags that
// share an instruction builder and to detect same-family collisions in
// cross-venue detection.
func (v VenueTag) Family() string {
	s := string(v)
	for i := 0; i < len(s); i++ {
		if s[i] == '-' {
			return s[:i]
		}
	}
	return s
}

// PriceSnapshot is one observed pool entry in the price table. Producer is
// the price feed client (internal/feed); consumer is the opportunity
// detector (internal/detector).
type PriceSnapshot struct {
	PoolShortID string
	PoolAddress common.Address
	VenueTag    VenueTag
	TokenMint   common.Address
	PriceInBase *big.Rat
	Liquidity   *big.Int
	Volume24h   *big.Int
	ObservedAt  time.Time
}

// Key returns the unique index of a PriceSnapshot within the table.
func (p PriceSnapshot) Key() PriceKey {
	return PriceKey{TokenMint: p.TokenMint, VenueTag: p.VenueTag, PoolShortID: p.PoolShortID}
}

// PriceKey is the (token_mint, venue_tag, pool_short_id) uniqueness key.
type PriceKey struct {
	TokenMint   common.Address
	VenueTag    VenueTag
	PoolShortID string
}

// PoolInfo is the canonical pool-registry record, created on first
// successful resolution and held for the process lifetime.
type PoolInfo struct {
	PoolShortID   string
	FullAddress   common.Address
	VenueTag      VenueTag
	BaseMint      common.Address
	QuoteMint     common.Address
	BaseVault     common.Address
	QuoteVault    common.Address
	ResolvedAt    time.Time
	ResolvedTier  ResolutionTier
}

// ResolutionTier records which of the four registry tiers produced a
// PoolInfo, for per-tier hit counters.
type ResolutionTier int

const (
	TierInMemory ResolutionTier = iota
	TierExternalAPI
	TierPersistentCache
	TierOnChain
)

func (t ResolutionTier) String() string {
	switch t {
	case TierInMemory:
		return "in_memory"
	case TierExternalAPI:
		return "external_api"
	case TierPersistentCache:
		return "persistent_cache"
	case TierOnChain:
		return "on_chain"
	default:
		return "unknown"
	}
}

// ValidityCacheEntry records the ghost-pool validity decision for a pool,
// valid for TTL from CheckedAt.
type ValidityCacheEntry struct {
	IsValid   bool
	CheckedAt time.Time
}

// Opportunity is a cross-venue or triangular detection result.
type Opportunity struct {
	TokenMint       common.Address
	Legs            []OpportunityLeg // 2 legs (cross-venue) or 4 legs (base-routed triangular cycle)
	SpreadFraction  *big.Rat
	PositionMinor   *big.Int
	GrossProfit     *big.Int
	EstNetProfit    *big.Int
	Cost            CostBreakdown
	DetectedAt      time.Time
}

// OpportunityLeg is one buy or sell leg of an opportunity's path.
type OpportunityLeg struct {
	VenueTag    VenueTag
	PoolShortID string
	PoolAddress common.Address
	Price       *big.Rat
	Liquidity   *big.Int
	BuySide     bool // true = buy leg (spend base, receive token_mint), false = sell leg

	// AmountIn is this leg's own input amount, in the unit of whatever
	// asset the leg spends: the original base position for the opening
	// leg, but the non-base token quantity received from the prior leg
	// for every subsequent leg. The detector computes this
	// from the same per-leg price/fee math it uses to size the
	// opportunity, so a leg is never built with a spurious amount
	// carried over from an unrelated unit.
	AmountIn *big.Int

	// ExpectedOut is this leg's own expected output amount, in the unit
	// of whatever asset the leg receives, the companion quantity to
	// AmountIn, computed from the same per-leg price/fee math. A leg's
	// ExpectedOut feeds the next leg's AmountIn for every non-terminal
	// leg.
	ExpectedOut *big.Int
}

// IsStale reports whether the opportunity is older than threshold when
// evaluated at "now" (monotonic clock per caller convention).
func (o Opportunity) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(o.DetectedAt) > threshold
}

// CostBreakdown is the pure output of the cost/tip model (internal/cost).
type CostBreakdown struct {
	DexFee      *big.Int
	Tip         *big.Int
	BaseTxFee   *big.Int
	ComputeFee  *big.Int
	PriorityFee *big.Int
	TotalCost   *big.Int
}

// NetProfit computes gross - TotalCost in arbitrary-precision signed
// arithmetic; the result is negative whenever costs exceed gross.
func (c CostBreakdown) NetProfit(gross *big.Int) *big.Int {
	return new(big.Int).Sub(gross, c.TotalCost)
}

// IsProfitable reports net_profit(gross) > 0.
func (c CostBreakdown) IsProfitable(gross *big.Int) bool {
	return c.NetProfit(gross).Sign() > 0
}

// TipFloorSnapshot is the background-refreshed competitive tip floor read
// by the cost model under a shared RWMutex (internal/tipfloor).
type TipFloorSnapshot struct {
	P95       *big.Int
	P99       *big.Int
	UpdatedAt time.Time
}

// Bundle is a submission unit: an ordered sequence of signed transactions.
// The first transaction MUST carry both the swap instruction(s) and the
// tip transfer in the same transaction.
type Bundle struct {
	Transactions      [][]byte // opaque signed transaction bytes
	Description       string
	ExpectedProfit    *big.Int
	QueuedAt          time.Time

	// Signature identifies the bundle's first transaction for
	// post-submission confirmation polling; signature-based confirmation
	// is authoritative, the relay's own status report advisory.
	Signature common.Hash

	// OnResolve, when set, is invoked exactly once by the submitter with
	// the bundle's terminal outcome: landed, failed (including drained
	// stale), or submitted-unverified. The engine hands its capital
	// reservation off through this hook so in-flight accounting holds
	// until the bundle actually resolves, not merely until enqueue.
	OnResolve func(BundleOutcome)
}

// BundleOutcome is the terminal state of a submitted bundle.
type BundleOutcome int

const (
	BundleLanded BundleOutcome = iota
	BundleFailed
	BundleUnknown
)

func (o BundleOutcome) String() string {
	switch o {
	case BundleLanded:
		return "landed"
	case BundleFailed:
		return "failed"
	case BundleUnknown:
		return "unknown"
	default:
		return "unset"
	}
}

// CapitalState mirrors the position tracker's atomics for reporting; it is
// a point-in-time copy, not the live counters themselves.
type CapitalState struct {
	TotalTradeable *big.Int
	InFlight       *big.Int
}

// EnginePhase is the coarse lifecycle state of the execution engine,
// reported on every scan iteration.
type EnginePhase int

const (
	PhaseInitializing EnginePhase = iota
	PhaseScanning
	PhaseExecuting
	PhaseHalted
)

func (p EnginePhase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseScanning:
		return "scanning"
	case PhaseExecuting:
		return "executing"
	case PhaseHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// AssetSnapshot is the durable periodic record persisted through the
// reporting store (internal/db) for postmortem analysis.
type AssetSnapshot struct {
	Timestamp        time.Time
	Phase            EnginePhase
	TotalTradeable   *big.Int
	InFlight         *big.Int
	DailyTradeCount  int
	CumulativePnL    *big.Int
}
