// Package detector implements the two-leg cross-venue and triangular
// opportunity detectors, sized against the cost model (internal/cost).
package detector

import (
	"math/big"
	"sort"
	"time"

	"arbengine"
	"arbengine/internal/cost"

	"github.com/ethereum/go-ethereum/common"
)

// Config bundles the tunables the detector needs per scan.
type Config struct {
	AllowList         map[common.Address]bool // nil/empty means no filter
	MinVolume24h      *big.Int                // default 10 if nil
	MaxSpreadFraction *big.Rat                // sanity ceiling; default 50% if nil
	MaxPositionMinor  *big.Int
	PriorityFeeBuffer *big.Rat // the "0.2% of gross" acceptance-gate buffer
}

var defaultMinVolume = big.NewInt(10)

func (c Config) minVolume() *big.Int {
	if c.MinVolume24h != nil {
		return c.MinVolume24h
	}
	return defaultMinVolume
}

// A spread above the ceiling is almost always bad feed data, not a real
// dislocation, so an unset ceiling still clamps at 50%.
var defaultMaxSpread = big.NewRat(1, 2)

func (c Config) maxSpread() *big.Rat {
	if c.MaxSpreadFraction != nil {
		return c.MaxSpreadFraction
	}
	return defaultMaxSpread
}

func (c Config) priorityBuffer() *big.Rat {
	if c.PriorityFeeBuffer != nil {
		return c.PriorityFeeBuffer
	}
	return big.NewRat(2, 1000) // 0.2%
}

// Detect runs the two-leg cross-venue scan over a point-in-time
// snapshot of the price table, the current tradeable capital and tip floor.
func Detect(snapshot []arbengine.PriceSnapshot, tradeableCapital *big.Int, tipFloor *arbengine.TipFloorSnapshot, cfg Config, now time.Time) []arbengine.Opportunity {
	grouped := groupByToken(snapshot, cfg)

	var out []arbengine.Opportunity
	for token, entries := range grouped {
		if volumeSum(entries).Cmp(cfg.minVolume()) < 0 {
			continue
		}
		opp, ok := bestCrossVenue(token, entries, tradeableCapital, tipFloor, cfg, now)
		if ok {
			out = append(out, opp)
		}
	}

	sortOpportunities(out)
	return out
}

func groupByToken(snapshot []arbengine.PriceSnapshot, cfg Config) map[common.Address][]arbengine.PriceSnapshot {
	grouped := make(map[common.Address][]arbengine.PriceSnapshot)
	for _, s := range snapshot {
		if len(cfg.AllowList) > 0 && !cfg.AllowList[s.TokenMint] {
			continue
		}
		grouped[s.TokenMint] = append(grouped[s.TokenMint], s)
	}
	return grouped
}

func volumeSum(entries []arbengine.PriceSnapshot) *big.Int {
	sum := big.NewInt(0)
	for _, e := range entries {
		if e.Volume24h != nil {
			sum.Add(sum, e.Volume24h)
		}
	}
	return sum
}

// bestCrossVenue finds the min-price (buy) and max-price (sell) venues for
// a token and, if they pass the acceptance gate, returns an Opportunity.
func bestCrossVenue(token common.Address, entries []arbengine.PriceSnapshot, tradeableCapital *big.Int, tipFloor *arbengine.TipFloorSnapshot, cfg Config, now time.Time) (arbengine.Opportunity, bool) {
	if len(entries) < 2 {
		return arbengine.Opportunity{}, false
	}

	buy, sell, ok := minMaxDistinctFamily(entries)
	if !ok {
		return arbengine.Opportunity{}, false
	}

	spread := spreadFraction(buy.PriceInBase, sell.PriceInBase)
	if spread == nil || spread.Sign() <= 0 {
		return arbengine.Opportunity{}, false
	}
	if spread.Cmp(cfg.maxSpread()) > 0 {
		return arbengine.Opportunity{}, false // likely bad data
	}

	position := tradeableCapital
	if cfg.MaxPositionMinor != nil && cfg.MaxPositionMinor.Cmp(position) < 0 {
		position = cfg.MaxPositionMinor
	}
	if position == nil || position.Sign() <= 0 {
		return arbengine.Opportunity{}, false
	}

	gross := grossProfit(position, spread)
	if gross.Sign() <= 0 {
		return arbengine.Opportunity{}, false
	}

	cb := cost.Compute(position, gross, true, tipFloor)

	if !passesAcceptanceGate(spread, position, gross, cb, cfg) {
		return arbengine.Opportunity{}, false
	}

	net := cb.NetProfit(gross)
	// The buy leg spends the base position; the sell leg spends whatever
	// non-base token quantity the buy leg actually produced, not the
	// original base-denominated position. The sell leg's
	// own expected output is the round-trip base amount, algebraically
	// position+gross since tokensBought == position/buy_price exactly.
	tokensBought := tokensFromBase(position, buy.PriceInBase)
	roundTripBase := new(big.Int).Add(position, gross)
	opp := arbengine.Opportunity{
		TokenMint: token,
		Legs: []arbengine.OpportunityLeg{
			{VenueTag: buy.VenueTag, PoolShortID: buy.PoolShortID, PoolAddress: buy.PoolAddress, Price: buy.PriceInBase, Liquidity: buy.Liquidity, BuySide: true, AmountIn: position, ExpectedOut: tokensBought},
			{VenueTag: sell.VenueTag, PoolShortID: sell.PoolShortID, PoolAddress: sell.PoolAddress, Price: sell.PriceInBase, Liquidity: sell.Liquidity, BuySide: false, AmountIn: tokensBought, ExpectedOut: roundTripBase},
		},
		SpreadFraction: spread,
		PositionMinor:  position,
		GrossProfit:    gross,
		EstNetProfit:   net,
		Cost:           cb,
		DetectedAt:     now,
	}
	return opp, true
}

// minMaxDistinctFamily returns the minimum- and maximum-price snapshots,
// skipping the pair if they land on the same venue or on colliding
// venue-family prefixes.
func minMaxDistinctFamily(entries []arbengine.PriceSnapshot) (arbengine.PriceSnapshot, arbengine.PriceSnapshot, bool) {
	sorted := make([]arbengine.PriceSnapshot, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PriceInBase.Cmp(sorted[j].PriceInBase) < 0
	})

	lo := sorted[0]
	for hi := len(sorted) - 1; hi >= 0; hi-- {
		cand := sorted[hi]
		if cand.PoolShortID == lo.PoolShortID {
			continue
		}
		if cand.VenueTag.Family() == lo.VenueTag.Family() {
			continue
		}
		return lo, cand, true
	}
	return arbengine.PriceSnapshot{}, arbengine.PriceSnapshot{}, false
}

func spreadFraction(buyPrice, sellPrice *big.Rat) *big.Rat {
	if buyPrice == nil || sellPrice == nil || buyPrice.Sign() <= 0 {
		return nil
	}
	diff := new(big.Rat).Sub(sellPrice, buyPrice)
	return new(big.Rat).Quo(diff, buyPrice)
}

// tokensFromBase converts a base-denominated amount into the non-base
// token quantity it buys at priceBasePerToken (base per token), flooring
// to the nearest whole minor unit. Shared by the two-leg and triangular
// paths so a closing leg is built against what the opening leg actually
// produced, not the original base position.
func tokensFromBase(baseAmount *big.Int, priceBasePerToken *big.Rat) *big.Int {
	if baseAmount == nil || priceBasePerToken == nil || priceBasePerToken.Sign() <= 0 {
		return big.NewInt(0)
	}
	out := new(big.Rat).Quo(new(big.Rat).SetInt(baseAmount), priceBasePerToken)
	return new(big.Int).Quo(out.Num(), out.Denom())
}

// ratMulIntFloor multiplies an integer amount by a rational fraction and
// floors to the nearest whole minor unit. Used by the triangular path to
// derive each leg's actual input amount from the cumulative fee-adjusted
// fraction of the base position it represents.
func ratMulIntFloor(frac *big.Rat, amount *big.Int) *big.Int {
	if frac == nil || amount == nil {
		return big.NewInt(0)
	}
	out := new(big.Rat).Mul(frac, new(big.Rat).SetInt(amount))
	return new(big.Int).Quo(out.Num(), out.Denom())
}

func grossProfit(position *big.Int, spread *big.Rat) *big.Int {
	g := new(big.Rat).Mul(new(big.Rat).SetInt(position), spread)
	out := new(big.Int).Quo(g.Num(), g.Denom())
	return out
}

// passesAcceptanceGate computes
// min_spread_required = (total_cost + 0.2% * gross) / position
// and accepts iff spread_fraction >= min_spread_required.
func passesAcceptanceGate(spread *big.Rat, position, gross *big.Int, cb arbengine.CostBreakdown, cfg Config) bool {
	buffer := new(big.Rat).Mul(new(big.Rat).SetInt(gross), cfg.priorityBuffer())
	numerator := new(big.Rat).Add(new(big.Rat).SetInt(cb.TotalCost), buffer)
	minRequired := new(big.Rat).Quo(numerator, new(big.Rat).SetInt(position))
	return spread.Cmp(minRequired) >= 0
}

// sortOpportunities applies the tie-breaking rule: highest estimated
// net profit first; ties broken by smallest sum of per-leg slippage
// proxy (we use the reciprocal of total leg liquidity as that proxy,
// since larger liquidity implies smaller realized slippage); remaining
// ties broken by lexicographic token_mint.
func sortOpportunities(opps []arbengine.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if cmp := a.EstNetProfit.Cmp(b.EstNetProfit); cmp != 0 {
			return cmp > 0
		}
		la, lb := legLiquiditySum(a), legLiquiditySum(b)
		if cmp := la.Cmp(lb); cmp != 0 {
			return cmp > 0 // larger summed liquidity == smaller slippage, sorts first
		}
		return a.TokenMint.Hex() < b.TokenMint.Hex()
	})
}

func legLiquiditySum(o arbengine.Opportunity) *big.Int {
	sum := big.NewInt(0)
	for _, leg := range o.Legs {
		if leg.Liquidity != nil {
			sum.Add(sum, leg.Liquidity)
		}
	}
	return sum
}
