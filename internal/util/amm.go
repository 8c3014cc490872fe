// Package util holds concentrated-liquidity AMM math used by the CLMM
// venue instruction builder to check a leg against tick/sqrt-price state.
//
// The liquidity<->amount conversions back the CLMM builder's curve
// cross-check of a leg's expected output; they are done
// in github.com/holiman/uint256 fixed-width 256-bit arithmetic rather
// than math/big, the same word width go-ethereum's own EVM interpreter
// uses for on-chain arithmetic, and one MulDivOverflow call avoids the
// intermediate-overflow problem a naive a*b/c in 256 bits would hit.
package util

import (
	"errors"
	"math"
	"math/big"

	"github.com/holiman/uint256"
)

// q96 is 2^96, the fixed-point base of Uniswap-v3-style sqrtPriceX96.
var q96 = new(big.Int).Lsh(big.NewInt(1), 96)
var q96u = new(uint256.Int).Lsh(uint256.NewInt(1), 96)

// TickToSqrtPriceX96 converts a tick index to its Q64.96 sqrt-price
// representation: sqrtPriceX96 = sqrt(1.0001^tick) * 2^96.
func TickToSqrtPriceX96(tick int) *big.Int {
	ratio := math.Pow(1.0001, float64(tick))
	sqrtRatio := new(big.Float).SetFloat64(math.Sqrt(ratio))
	sqrtRatio.Mul(sqrtRatio, new(big.Float).SetInt(q96))
	out := new(big.Int)
	sqrtRatio.Int(out)
	return out
}

// SqrtPriceToPrice converts a Q64.96 sqrt-price back into a price ratio
// (token1 per token0) as a big.Float, undoing the 2^96 fixed-point scale
// twice (sqrtPrice is squared to recover price).
func SqrtPriceToPrice(sqrtPriceX96 *big.Int) *big.Float {
	sp := new(big.Float).SetInt(sqrtPriceX96)
	scale := new(big.Float).SetInt(q96)
	ratio := new(big.Float).Quo(sp, scale)
	return new(big.Float).Mul(ratio, ratio)
}

// ComputeAmounts computes the actual token0/token1 amounts consumed and
// the resulting liquidity when depositing up to (amount0Max, amount1Max)
// into a concentrated-liquidity position spanning [tickLower, tickUpper]
// at the pool's current tick and sqrt price.
//
// This mirrors the standard Uniswap-v3 liquidity-from-amounts formulas:
// below the range only token0 is used, above the range only token1, and
// inside the range liquidity is the minimum of the two single-sided
// liquidity quotes.
func ComputeAmounts(sqrtPriceX96 *big.Int, tick, tickLower, tickUpper int, amount0Max, amount1Max *big.Int) (*big.Int, *big.Int, *big.Int) {
	sqrtLower := TickToSqrtPriceX96(tickLower)
	sqrtUpper := TickToSqrtPriceX96(tickUpper)

	var liquidity *big.Int
	switch {
	case tick < tickLower:
		liquidity = liquidityForAmount0(sqrtLower, sqrtUpper, amount0Max)
	case tick >= tickUpper:
		liquidity = liquidityForAmount1(sqrtLower, sqrtUpper, amount1Max)
	default:
		l0 := liquidityForAmount0(sqrtPriceX96, sqrtUpper, amount0Max)
		l1 := liquidityForAmount1(sqrtLower, sqrtPriceX96, amount1Max)
		if l0.Cmp(l1) < 0 {
			liquidity = l0
		} else {
			liquidity = l1
		}
	}

	amount0, amount1, err := CalculateTokenAmountsFromLiquidity(liquidity, sqrtPriceX96, int32(tickLower), int32(tickUpper))
	if err != nil {
		return big.NewInt(0), big.NewInt(0), big.NewInt(0)
	}
	return amount0, amount1, liquidity
}

// CalculateTokenAmountsFromLiquidity computes the token0/token1 amounts
// represented by a given liquidity over [tickLower, tickUpper] evaluated
// at sqrtPriceX96.
func CalculateTokenAmountsFromLiquidity(liquidity, sqrtPriceX96 *big.Int, tickLower, tickUpper int32) (*big.Int, *big.Int, error) {
	if liquidity == nil || liquidity.Sign() < 0 {
		return nil, nil, errors.New("liquidity must be non-negative")
	}
	sqrtLower := TickToSqrtPriceX96(int(tickLower))
	sqrtUpper := TickToSqrtPriceX96(int(tickUpper))
	tick := tickFromSqrtPrice(sqrtPriceX96)

	var amount0, amount1 *big.Int
	switch {
	case tick < int(tickLower):
		amount0 = amount0ForLiquidity(sqrtLower, sqrtUpper, liquidity)
		amount1 = big.NewInt(0)
	case tick >= int(tickUpper):
		amount0 = big.NewInt(0)
		amount1 = amount1ForLiquidity(sqrtLower, sqrtUpper, liquidity)
	default:
		amount0 = amount0ForLiquidity(sqrtPriceX96, sqrtUpper, liquidity)
		amount1 = amount1ForLiquidity(sqrtLower, sqrtPriceX96, liquidity)
	}
	return amount0, amount1, nil
}

func tickFromSqrtPrice(sqrtPriceX96 *big.Int) int {
	ratio := SqrtPriceToPrice(sqrtPriceX96)
	f, _ := ratio.Float64()
	if f <= 0 {
		return 0
	}
	return int(math.Log(f) / math.Log(1.0001))
}

// toU256 converts a non-negative *big.Int known to fit in 256 bits
// (true of every sqrtPriceX96/liquidity/amount value this package
// handles) into a *uint256.Int; values that don't fit saturate at
// max-uint256 rather than panicking, since a saturated sizing result
// simply fails the caller's downstream budget check.
func toU256(v *big.Int) *uint256.Int {
	u, overflow := uint256.FromBig(v)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return u
}

func liquidityForAmount0(sqrtA, sqrtB, amount0 *big.Int) *big.Int {
	lo, hi := orderSqrtU256(toU256(sqrtA), toU256(sqrtB))
	if hi.Eq(lo) {
		return big.NewInt(0)
	}
	diff := new(uint256.Int).Sub(hi, lo)
	// liquidity = amount0 * lo * hi / q96 / diff, computed as two
	// MulDivOverflow steps so no intermediate product needs more than
	// 512 bits of headroom.
	step, overflow := new(uint256.Int).MulDivOverflow(toU256(amount0), lo, q96u)
	if overflow {
		return new(big.Int).Set(maxBigU256)
	}
	out, overflow := new(uint256.Int).MulDivOverflow(step, hi, diff)
	if overflow {
		return new(big.Int).Set(maxBigU256)
	}
	return out.ToBig()
}

func liquidityForAmount1(sqrtA, sqrtB, amount1 *big.Int) *big.Int {
	lo, hi := orderSqrtU256(toU256(sqrtA), toU256(sqrtB))
	diff := new(uint256.Int).Sub(hi, lo)
	if diff.IsZero() {
		return big.NewInt(0)
	}
	out, overflow := new(uint256.Int).MulDivOverflow(toU256(amount1), q96u, diff)
	if overflow {
		return new(big.Int).Set(maxBigU256)
	}
	return out.ToBig()
}

func amount0ForLiquidity(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	lo, hi := orderSqrtU256(toU256(sqrtA), toU256(sqrtB))
	if hi.Eq(lo) {
		return big.NewInt(0)
	}
	diff := new(uint256.Int).Sub(hi, lo)
	step, overflow := new(uint256.Int).MulDivOverflow(toU256(liquidity), q96u, hi)
	if overflow {
		return new(big.Int).Set(maxBigU256)
	}
	out, overflow := new(uint256.Int).MulDivOverflow(step, diff, lo)
	if overflow {
		return new(big.Int).Set(maxBigU256)
	}
	return out.ToBig()
}

func amount1ForLiquidity(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	lo, hi := orderSqrtU256(toU256(sqrtA), toU256(sqrtB))
	diff := new(uint256.Int).Sub(hi, lo)
	out, overflow := new(uint256.Int).MulDivOverflow(toU256(liquidity), diff, q96u)
	if overflow {
		return new(big.Int).Set(maxBigU256)
	}
	return out.ToBig()
}

var maxBigU256 = new(uint256.Int).SetAllOne().ToBig()

func orderSqrtU256(a, b *uint256.Int) (*uint256.Int, *uint256.Int) {
	if a.Cmp(b) <= 0 {
		return a, b
	}
	return b, a
}
