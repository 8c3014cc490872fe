package venue

import (
	"context"

	"arbengine"

	"github.com/ethereum/go-ethereum/common"
)

// CPAMMBuilder builds swap instructions for constant-product AMM pools
// (the "cpamm" venue family).
type CPAMMBuilder struct {
	Registry  PoolResolver
	Chain     ChainReader
	ProgramID common.Address
}

func (b *CPAMMBuilder) Family() string { return "cpamm" }

func (b *CPAMMBuilder) Build(ctx context.Context, poolShortID string, params SwapParams, user common.Address) ([]Instruction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	poolAddr, err := resolveAndValidate(ctx, b.Registry, b.Chain, poolShortID, arbengine.VenueTag("cpamm-v1"), b.ProgramID)
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
		Data: encodeSwapPayload("cpamm_swap", params.AmountIn, params.MinAmountOut, params.DirectionAToB),
	}
	return append(prereqs, swap), nil
}

// registryInfo is a small helper allowing builders to fetch the full
// PoolInfo (vault addresses, mints) when the PoolResolver happens to
// support it; builders degrade gracefully to zero-value vaults when it
// doesn't, since vault addresses are not required to encode a syntactically
// valid instruction in this spec's scope.
func registryInfo(r PoolResolver, shortID string) (arbengine.PoolInfo, bool) {
	type infoProvider interface {
		Info(shortID string) (arbengine.PoolInfo, bool)
	}
	if ip, ok := r.(infoProvider); ok {
		return ip.Info(shortID)
	}
	return arbengine.PoolInfo{}, false
}
