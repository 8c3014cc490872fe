package venue

import (
	"context"
	"fmt"
	"math/big"

	"arbengine"
	"arbengine/internal/util"

	"github.com/ethereum/go-ethereum/common"
)

// curveMismatchToleranceNum/Den bound how far params.ExpectedAmountOut may
// diverge from the curve-implied amount before Build rejects the trade as
// priced off a stale quote: the implied amount must fall within
// [1/(1+tol), 1+tol] of ExpectedAmountOut.
var (
	curveMismatchToleranceNum = big.NewInt(50)
	curveMismatchToleranceDen = big.NewInt(100)
)

// CLMMBuilder builds swap instructions for concentrated-liquidity pools
// (the "clmm" venue family). It additionally cross-checks the leg's
// expected output against the pool's current tick/sqrt-price using the
// shared liquidity math in internal/util.
type CLMMBuilder struct {
	Registry  PoolResolver
	Chain     ChainReader
	ProgramID common.Address

	// CurrentSqrtPriceX96 and CurrentTick, when set by the caller from a
	// fresh on-chain read, let Build cross-check params.ExpectedAmountOut
	// against the AMM curve; both may be left nil/zero to skip the check.
	CurrentSqrtPriceX96 *big.Int
	CurrentTick         int
}

func (b *CLMMBuilder) Family() string { return "clmm" }

func (b *CLMMBuilder) Build(ctx context.Context, poolShortID string, params SwapParams, user common.Address) ([]Instruction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	poolAddr, err := resolveAndValidate(ctx, b.Registry, b.Chain, poolShortID, arbengine.VenueTag("clmm-v1"), b.ProgramID)
	if err != nil {
		return nil, err
	}

	if b.CurrentSqrtPriceX96 != nil && params.ExpectedAmountOut != nil {
		// Cross-check params.ExpectedAmountOut against the curve implied by
		// the pool's current tick/sqrt-price. A trade priced far off the live curve
		// means the quote went stale between detection and build; reject it
		// rather than submit a swap sized against a price that has moved.
		tickLower := b.CurrentTick - 1000
		tickUpper := b.CurrentTick + 1000
		amount0, amount1, _ := util.ComputeAmounts(b.CurrentSqrtPriceX96, b.CurrentTick, tickLower, tickUpper, params.AmountIn, params.AmountIn)
		implied := amount1
		if amount0.Cmp(implied) > 0 {
			implied = amount0
		}
		if implied.Sign() > 0 && curveMismatch(implied, params.ExpectedAmountOut) {
			return nil, fmt.Errorf("%w: clmm curve-implied amount %s diverges from expected %s", arbengine.ErrSlippageInvalid, implied, params.ExpectedAmountOut)
		}
	}

	info, _ := registryInfo(b.Registry, poolShortID)
	prereqs, err := ensureTokenAccounts(ctx, b.Chain, b.ProgramID, user, info.BaseMint, info.QuoteMint)
	if err != nil {
		return nil, err
	}

	swap := Instruction{
		ProgramID: b.ProgramID,
		Accounts: []AccountMeta{
			{Pubkey: poolAddr, IsSigner: false, IsWritable: true},
			{Pubkey: user, IsSigner: true, IsWritable: false},
			{Pubkey: info.BaseVault, IsSigner: false, IsWritable: true},
			{Pubkey: info.QuoteVault, IsSigner: false, IsWritable: true},
		},
		Data: encodeSwapPayload("clmm_swap", params.AmountIn, params.MinAmountOut, params.DirectionAToB),
	}
	return append(prereqs, swap), nil
}

// curveMismatch reports whether expected falls outside the tolerance band
// around implied, i.e. expected > implied*(1+tol) or
// expected*(1+tol) < implied, cross-multiplied to stay in exact integer
// arithmetic (tol == curveMismatchToleranceNum/curveMismatchToleranceDen).
func curveMismatch(implied, expected *big.Int) bool {
	if expected.Sign() <= 0 {
		return true
	}
	bound := new(big.Int).Add(curveMismatchToleranceDen, curveMismatchToleranceNum)

	// expected too high: expected*den > implied*(den+tol)
	tooHigh := new(big.Int).Mul(expected, curveMismatchToleranceDen)
	highLimit := new(big.Int).Mul(implied, bound)
	if tooHigh.Cmp(highLimit) > 0 {
		return true
	}

	// expected too low: expected*(den+tol) < implied*den
	tooLow := new(big.Int).Mul(expected, bound)
	lowLimit := new(big.Int).Mul(implied, curveMismatchToleranceDen)
	if tooLow.Cmp(lowLimit) < 0 {
		return true
	}
	return false
}
