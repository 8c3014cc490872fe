package venue

import (
	"context"

	"arbengine"

	"github.com/ethereum/go-ethereum/common"
)

// BondingCurveBuilder builds swap instructions for bonding-curve AMM
// pools (the "bcamm" venue family). Bonding-curve pools price off a
// single reserve account rather than a base/quote vault pair, so the
// account list it emits is shaped differently from cpamm/clmm/dlmm.
type BondingCurveBuilder struct {
	Registry  PoolResolver
	Chain     ChainReader
	ProgramID common.Address
}

func (b *BondingCurveBuilder) Family() string { return "bcamm" }

func (b *BondingCurveBuilder) Build(ctx context.Context, poolShortID string, params SwapParams, user common.Address) ([]Instruction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	poolAddr, err := resolveAndValidate(ctx, b.Registry, b.Chain, poolShortID, arbengine.VenueTag("bcamm-v1"), b.ProgramID)
	if err != nil {
		return nil, err
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
		},
		Data: encodeSwapPayload("bcamm_swap", params.AmountIn, params.MinAmountOut, params.DirectionAToB),
	}
	return append(prereqs, swap), nil
}
