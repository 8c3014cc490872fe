package venue

import (
	"context"

	"arbengine"

	"github.com/ethereum/go-ethereum/common"
)

// DLMMBuilder builds swap instructions for dynamic-liquidity (bin-based)
// pools (the "dlmm" venue family).
type DLMMBuilder struct {
	Registry  PoolResolver
	Chain     ChainReader
	ProgramID common.Address
}

func (b *DLMMBuilder) Family() string { return "dlmm" }

func (b *DLMMBuilder) Build(ctx context.Context, poolShortID string, params SwapParams, user common.Address) ([]Instruction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	poolAddr, err := resolveAndValidate(ctx, b.Registry, b.Chain, poolShortID, arbengine.VenueTag("dlmm-v1"), b.ProgramID)
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
			{Pubkey: info.QuoteVault, IsSigner: false, IsWritable: true},
		},
		Data: encodeSwapPayload("dlmm_swap", params.AmountIn, params.MinAmountOut, params.DirectionAToB),
	}
	return append(prereqs, swap), nil
}
