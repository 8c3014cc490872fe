// Package cost implements the pure cost/tip model: a function
// from (position, gross profit, priority-inclusion flag, tip floor) to
// a CostBreakdown, plus its acceptance-gate inverse.
package cost

import (
	"math/big"

	"arbengine"
)

// Tunable schedule constants, expressed as basis-point-style rationals
// over big.Int so every computation stays exact-integer.
var (
	dexFeeNum   = big.NewInt(75) // 0.0075 == 75/10000
	dexFeeDen   = big.NewInt(10_000)
	tenPctNum   = big.NewInt(10)
	fifteenPctN = big.NewInt(15)
	seventeenN  = big.NewInt(17)
	thirtyN     = big.NewInt(30)
	pct100      = big.NewInt(100)

	defaultTipFloor   = big.NewInt(10_000_000)
	minTipFloorAbs    = big.NewInt(100_000)
	maxTip            = big.NewInt(5_000_000)
	minGasFloor       = big.NewInt(20_000)
	smallFeeThreshold = big.NewRat(5, 100) // 5%
)

// Compute translates a gross profit estimate into a full cost
// breakdown and tip amount.
func Compute(positionMinor, grossProfitMinor *big.Int, usePriorityInclusion bool, tipFloor *arbengine.TipFloorSnapshot) arbengine.CostBreakdown {
	dexFee := new(big.Int).Mul(positionMinor, dexFeeNum)
	dexFee.Div(dexFee, dexFeeDen)

	tip := big.NewInt(0)
	if usePriorityInclusion {
		tip = computeTip(grossProfitMinor, tipFloor)
	}

	// Target gas (base + compute) at ~1.5x the tip, floored at 20_000,
	// split 70/30 between base and compute fee.
	gasTarget := new(big.Int).Mul(tip, big.NewInt(3))
	gasTarget.Div(gasTarget, big.NewInt(2))
	if gasTarget.Cmp(minGasFloor) < 0 {
		gasTarget = new(big.Int).Set(minGasFloor)
	}
	baseTxFee := new(big.Int).Mul(gasTarget, big.NewInt(70))
	baseTxFee.Div(baseTxFee, pct100)
	computeFee := new(big.Int).Sub(gasTarget, baseTxFee)

	priorityFee := big.NewInt(0)
	if !usePriorityInclusion {
		// Gross-profit-scaled priority fee when not using the
		// priority-inclusion path.
		priorityFee = new(big.Int).Mul(grossProfitMinor, tenPctNum)
		priorityFee.Div(priorityFee, pct100)
	}

	total := new(big.Int).Add(dexFee, tip)
	total.Add(total, baseTxFee)
	total.Add(total, computeFee)
	total.Add(total, priorityFee)

	return arbengine.CostBreakdown{
		DexFee:      dexFee,
		Tip:         tip,
		BaseTxFee:   baseTxFee,
		ComputeFee:  computeFee,
		PriorityFee: priorityFee,
		TotalCost:   total,
	}
}

// computeTip implements the competitive tip schedule.
func computeTip(grossProfitMinor *big.Int, tipFloor *arbengine.TipFloorSnapshot) *big.Int {
	floor := new(big.Int).Set(defaultTipFloor)
	if tipFloor != nil && tipFloor.P99 != nil && tipFloor.P99.Sign() > 0 {
		floor = tipFloor.P99
	}

	tenPctGross := new(big.Int).Mul(grossProfitMinor, tenPctNum)
	tenPctGross.Div(tenPctGross, pct100)

	baseline := maxBig(floor, tenPctGross)
	baseline = maxBig(baseline, minTipFloorAbs)

	// If estimated total-fee-to-gross fraction is very small (<5%), scale
	// baseline up to 15% of gross. We estimate the fee fraction from the
	// baseline itself since total_cost is not yet known at this point in
	// the computation (tip is computed before total_cost is summed).
	if grossProfitMinor.Sign() > 0 {
		feeFrac := new(big.Rat).SetFrac(baseline, grossProfitMinor)
		if feeFrac.Cmp(smallFeeThreshold) < 0 {
			scaled := new(big.Int).Mul(grossProfitMinor, fifteenPctN)
			scaled.Div(scaled, pct100)
			baseline = maxBig(baseline, scaled)
		}
	}

	// Cap at min(17% of gross, 30% of net-estimate, 5_000_000), but never
	// below the tip floor.
	cap17 := new(big.Int).Mul(grossProfitMinor, seventeenN)
	cap17.Div(cap17, pct100)

	netEstimate := new(big.Int).Sub(grossProfitMinor, baseline)
	if netEstimate.Sign() < 0 {
		netEstimate = big.NewInt(0)
	}
	cap30 := new(big.Int).Mul(netEstimate, thirtyN)
	cap30.Div(cap30, pct100)

	cap := minBig(cap17, cap30)
	cap = minBig(cap, maxTip)

	tip := baseline
	if tip.Cmp(cap) > 0 {
		tip = cap
	}
	// The cap must never push the tip below the invariant floor of
	// max(tip_floor_p99, 100_000), not just the raw tip_floor_p99.
	floorAbs := maxBig(floor, minTipFloorAbs)
	if tip.Cmp(floorAbs) < 0 {
		tip = new(big.Int).Set(floorAbs)
	}
	return tip
}

// MinGrossForNet computes the minimum gross profit needed to realize at
// least net n after costs:
//
//	min_gross_for_net(n) = ceil((n + fixed_costs) / (1 - tip_fraction)) + safety_buffer
//
// fixedCosts and tipFraction are sampled from a reference CostBreakdown
// computed at a representative position size; safetyBuffer is an
// additional absolute cushion.
func MinGrossForNet(n, fixedCosts *big.Int, tipFraction *big.Rat, safetyBuffer *big.Int) *big.Int {
	numerator := new(big.Int).Add(n, fixedCosts)
	oneMinusFrac := new(big.Rat).Sub(big.NewRat(1, 1), tipFraction)
	if oneMinusFrac.Sign() <= 0 {
		oneMinusFrac = big.NewRat(1, 100) // guard against a pathological >=100% tip fraction
	}
	result := new(big.Rat).Quo(new(big.Rat).SetInt(numerator), oneMinusFrac)
	out := ceilRat(result)
	return out.Add(out, safetyBuffer)
}

func ceilRat(r *big.Rat) *big.Int {
	q := new(big.Int)
	m := new(big.Int)
	q.DivMod(r.Num(), r.Denom(), m)
	if m.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

func maxBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
