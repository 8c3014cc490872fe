package detector

import (
	"math/big"
	"sort"
	"time"

	"arbengine"
	"arbengine/internal/cost"

	"github.com/ethereum/go-ethereum/common"
)

// perLegFee is the constant-product fee applied to each leg of a
// triangular path, mirroring the cost model's 0.75% dex-fee assumption
// rather than re-deriving it per venue.
var perLegFee = big.NewRat(75, 10_000)
var one = big.NewRat(1, 1)

// DetectTriangular enumerates base -> tokenA -> tokenB -> base cycles.
// Every quoted pool holds base on one side, so the A->B hop has no pool
// of its own: the cycle is routed through base and executes as four
// swaps (buy A, sell A, buy B, sell B) on four distinct pools packed
// into one atomic bundle. Each hop alone may be too thin to clear the
// fixed tip and gas, while the combined cycle amortizes them across
// both spreads; that is the case this path exists to catch. The same
// acceptance gate from the two-leg path (cost model + 0.2% buffer) is
// applied to the cycle's implied gross profit.
func DetectTriangular(snapshot []arbengine.PriceSnapshot, tradeableCapital *big.Int, tipFloor *arbengine.TipFloorSnapshot, cfg Config, now time.Time) []arbengine.Opportunity {
	byToken := groupByToken(snapshot, cfg)

	tokens := make([]common.Address, 0, len(byToken))
	for tok := range byToken {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Hex() < tokens[j].Hex() })

	var out []arbengine.Opportunity
	for i, a := range tokens {
		// The cycle multiplier is symmetric in (a, b), so only the
		// ordered pair is enumerated.
		for _, b := range tokens[i+1:] {
			opp, ok := bestTriangularCycle(a, b, byToken[a], byToken[b], tradeableCapital, tipFloor, cfg, now)
			if ok {
				out = append(out, opp)
			}
		}
	}
	return out
}

// bestTriangularCycle picks each token's cheapest (buy) and priciest
// (sell) venues on distinct families, multiplies the two hops' fee-
// adjusted round-trip ratios into the cycle multiplier, and emits an
// Opportunity if the combined spread clears the acceptance gate. Every
// leg is built against a pool that actually holds that leg's input and
// output assets.
func bestTriangularCycle(tokenA, tokenB common.Address, entriesA, entriesB []arbengine.PriceSnapshot, tradeableCapital *big.Int, tipFloor *arbengine.TipFloorSnapshot, cfg Config, now time.Time) (arbengine.Opportunity, bool) {
	buyA, sellA, ok := minMaxDistinctFamily(entriesA)
	if !ok {
		return arbengine.Opportunity{}, false
	}
	buyB, sellB, ok := minMaxDistinctFamily(entriesB)
	if !ok {
		return arbengine.Opportunity{}, false
	}
	for _, s := range []arbengine.PriceSnapshot{buyA, sellA, buyB, sellB} {
		if s.PriceInBase == nil || s.PriceInBase.Sign() <= 0 {
			return arbengine.Opportunity{}, false
		}
	}

	feeKeep := new(big.Rat).Sub(one, perLegFee)

	// Cumulative fraction of the opening base position after each leg,
	// in that leg's output asset: A units, then base, then B units, then
	// base again. The final fraction is the cycle multiplier.
	afterLeg1 := new(big.Rat).Quo(one, buyA.PriceInBase)
	afterLeg1.Mul(afterLeg1, feeKeep)

	afterLeg2 := new(big.Rat).Mul(afterLeg1, sellA.PriceInBase)
	afterLeg2.Mul(afterLeg2, feeKeep)

	afterLeg3 := new(big.Rat).Quo(afterLeg2, buyB.PriceInBase)
	afterLeg3.Mul(afterLeg3, feeKeep)

	afterLeg4 := new(big.Rat).Mul(afterLeg3, sellB.PriceInBase)
	afterLeg4.Mul(afterLeg4, feeKeep)

	spread := new(big.Rat).Sub(afterLeg4, one)
	if spread.Sign() <= 0 {
		return arbengine.Opportunity{}, false
	}
	if spread.Cmp(cfg.maxSpread()) > 0 {
		return arbengine.Opportunity{}, false
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

	// Each leg's AmountIn is the quantity it actually spends and
	// ExpectedOut the quantity it actually produces, derived from the
	// same afterLegN fractions used to size gross profit above, so every
	// leg chains into the next in its own asset's unit.
	amtA := ratMulIntFloor(afterLeg1, position)
	amtBase2 := ratMulIntFloor(afterLeg2, position)
	amtB := ratMulIntFloor(afterLeg3, position)
	amtBase4 := ratMulIntFloor(afterLeg4, position)

	opp := arbengine.Opportunity{
		TokenMint: tokenA,
		Legs: []arbengine.OpportunityLeg{
			{VenueTag: buyA.VenueTag, PoolShortID: buyA.PoolShortID, PoolAddress: buyA.PoolAddress, Price: buyA.PriceInBase, Liquidity: buyA.Liquidity, BuySide: true, AmountIn: position, ExpectedOut: amtA},
			{VenueTag: sellA.VenueTag, PoolShortID: sellA.PoolShortID, PoolAddress: sellA.PoolAddress, Price: sellA.PriceInBase, Liquidity: sellA.Liquidity, BuySide: false, AmountIn: amtA, ExpectedOut: amtBase2},
			{VenueTag: buyB.VenueTag, PoolShortID: buyB.PoolShortID, PoolAddress: buyB.PoolAddress, Price: buyB.PriceInBase, Liquidity: buyB.Liquidity, BuySide: true, AmountIn: amtBase2, ExpectedOut: amtB},
			{VenueTag: sellB.VenueTag, PoolShortID: sellB.PoolShortID, PoolAddress: sellB.PoolAddress, Price: sellB.PriceInBase, Liquidity: sellB.Liquidity, BuySide: false, AmountIn: amtB, ExpectedOut: amtBase4},
		},
		SpreadFraction: spread,
		PositionMinor:  position,
		GrossProfit:    gross,
		EstNetProfit:   cb.NetProfit(gross),
		Cost:           cb,
		DetectedAt:     now,
	}
	return opp, true
}
