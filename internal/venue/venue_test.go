package venue

import (
	"context"
	"math/big"
	"testing"

	"arbengine"
	"arbengine/internal/util"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

type fakeResolver struct {
	addr  common.Address
	info  arbengine.PoolInfo
	valid bool
	err   error
}

func (f *fakeResolver) Resolve(ctx context.Context, shortID string, venue arbengine.VenueTag) (common.Address, error) {
	if f.err != nil {
		return common.Address{}, f.err
	}
	return f.addr, nil
}

func (f *fakeResolver) IsPoolValidCached(shortID string) (bool, bool) { return f.valid, true }

func (f *fakeResolver) ValidateBatch(ctx context.Context, ids []string, venue arbengine.VenueTag) error {
	return nil
}

func (f *fakeResolver) Info(shortID string) (arbengine.PoolInfo, bool) { return f.info, true }

type fakeChain struct {
	owner  common.Address
	exists bool
}

func (c *fakeChain) AccountOwner(ctx context.Context, addr common.Address) (common.Address, error) {
	return c.owner, nil
}

func (c *fakeChain) AccountExists(ctx context.Context, addr common.Address) (bool, error) {
	return c.exists, nil
}

func TestSwapParamsValidate(t *testing.T) {
	p := SwapParams{AmountIn: big.NewInt(0), MinAmountOut: big.NewInt(1)}
	assert.ErrorIs(t, p.Validate(), arbengine.ErrSlippageInvalid)

	p = SwapParams{AmountIn: big.NewInt(100), MinAmountOut: big.NewInt(0)}
	assert.ErrorIs(t, p.Validate(), arbengine.ErrSlippageInvalid)

	p = SwapParams{AmountIn: big.NewInt(100), MinAmountOut: big.NewInt(1001)}
	assert.ErrorIs(t, p.Validate(), arbengine.ErrSlippageInvalid)

	p = SwapParams{AmountIn: big.NewInt(100), MinAmountOut: big.NewInt(95)}
	assert.NoError(t, p.Validate())
}

func TestMinAmountOutFromSlippage(t *testing.T) {
	out := MinAmountOutFromSlippage(big.NewInt(1_000_000), 50) // 0.5%
	assert.Equal(t, big.NewInt(995_000), out)
}

func TestCPAMMBuilderHappyPath(t *testing.T) {
	program := common.HexToAddress("0xaaaa")
	pool := common.HexToAddress("0xbbbb")
	resolver := &fakeResolver{addr: pool, valid: true, info: arbengine.PoolInfo{
		BaseMint: common.HexToAddress("0x01"), QuoteMint: common.HexToAddress("0x02"),
		BaseVault: common.HexToAddress("0x03"), QuoteVault: common.HexToAddress("0x04"),
	}}
	chain := &fakeChain{owner: program, exists: true}

	b := &CPAMMBuilder{Registry: resolver, Chain: chain, ProgramID: program}
	instrs, err := b.Build(context.Background(), "AAAAAAAA", SwapParams{
		AmountIn: big.NewInt(1000), MinAmountOut: big.NewInt(900), DirectionAToB: true,
	}, common.HexToAddress("0x05"))

	assert.NoError(t, err)
	assert.Len(t, instrs, 1)
	assert.Equal(t, program, instrs[0].ProgramID)
}

func TestCPAMMBuilderGhostPoolRejected(t *testing.T) {
	program := common.HexToAddress("0xaaaa")
	resolver := &fakeResolver{addr: common.HexToAddress("0xbbbb"), valid: false}
	chain := &fakeChain{owner: program, exists: true}

	b := &CPAMMBuilder{Registry: resolver, Chain: chain, ProgramID: program}
	_, err := b.Build(context.Background(), "AAAAAAAA", SwapParams{
		AmountIn: big.NewInt(1000), MinAmountOut: big.NewInt(900),
	}, common.HexToAddress("0x05"))

	assert.ErrorIs(t, err, arbengine.ErrGhostPool)
}

func TestCPAMMBuilderWrongOwnerRejected(t *testing.T) {
	program := common.HexToAddress("0xaaaa")
	resolver := &fakeResolver{addr: common.HexToAddress("0xbbbb"), valid: true}
	chain := &fakeChain{owner: common.HexToAddress("0xdead"), exists: true}

	b := &CPAMMBuilder{Registry: resolver, Chain: chain, ProgramID: program}
	_, err := b.Build(context.Background(), "AAAAAAAA", SwapParams{
		AmountIn: big.NewInt(1000), MinAmountOut: big.NewInt(900),
	}, common.HexToAddress("0x05"))

	assert.Error(t, err)
}

func TestEnsureTokenAccountsPrependsCreation(t *testing.T) {
	program := common.HexToAddress("0xaaaa")
	pool := common.HexToAddress("0xbbbb")
	resolver := &fakeResolver{addr: pool, valid: true, info: arbengine.PoolInfo{
		BaseMint: common.HexToAddress("0x01"), QuoteMint: common.HexToAddress("0x02"),
		BaseVault: common.HexToAddress("0x03"), QuoteVault: common.HexToAddress("0x04"),
	}}
	chain := &fakeChain{owner: program, exists: false}

	b := &CPAMMBuilder{Registry: resolver, Chain: chain, ProgramID: program}
	instrs, err := b.Build(context.Background(), "AAAAAAAA", SwapParams{
		AmountIn: big.NewInt(1000), MinAmountOut: big.NewInt(900),
	}, common.HexToAddress("0x05"))

	assert.NoError(t, err)
	// two missing token accounts (input + output) + the swap itself
	assert.Len(t, instrs, 3)
}

func TestCLMMBuilderSkipsCurveCheckWithoutPrice(t *testing.T) {
	program := common.HexToAddress("0xaaaa")
	pool := common.HexToAddress("0xbbbb")
	resolver := &fakeResolver{addr: pool, valid: true, info: arbengine.PoolInfo{
		BaseMint: common.HexToAddress("0x01"), QuoteMint: common.HexToAddress("0x02"),
		BaseVault: common.HexToAddress("0x03"), QuoteVault: common.HexToAddress("0x04"),
	}}
	chain := &fakeChain{owner: program, exists: true}

	b := &CLMMBuilder{Registry: resolver, Chain: chain, ProgramID: program}
	_, err := b.Build(context.Background(), "AAAAAAAA", SwapParams{
		AmountIn: big.NewInt(1000), MinAmountOut: big.NewInt(900), ExpectedAmountOut: big.NewInt(1),
	}, common.HexToAddress("0x05"))
	assert.NoError(t, err)
}

func TestCLMMBuilderRejectsCurveMismatch(t *testing.T) {
	program := common.HexToAddress("0xaaaa")
	pool := common.HexToAddress("0xbbbb")
	resolver := &fakeResolver{addr: pool, valid: true, info: arbengine.PoolInfo{
		BaseMint: common.HexToAddress("0x01"), QuoteMint: common.HexToAddress("0x02"),
		BaseVault: common.HexToAddress("0x03"), QuoteVault: common.HexToAddress("0x04"),
	}}
	chain := &fakeChain{owner: program, exists: true}

	b := &CLMMBuilder{
		Registry: resolver, Chain: chain, ProgramID: program,
		CurrentSqrtPriceX96: util.TickToSqrtPriceX96(0),
		CurrentTick:         0,
	}
	_, err := b.Build(context.Background(), "AAAAAAAA", SwapParams{
		AmountIn: big.NewInt(1_000_000), MinAmountOut: big.NewInt(1),
		ExpectedAmountOut: big.NewInt(1), // far below any curve-implied amount for this size
	}, common.HexToAddress("0x05"))
	assert.ErrorIs(t, err, arbengine.ErrSlippageInvalid)
}

func TestCLMMBuilderAcceptsCurveMatch(t *testing.T) {
	program := common.HexToAddress("0xaaaa")
	pool := common.HexToAddress("0xbbbb")
	resolver := &fakeResolver{addr: pool, valid: true, info: arbengine.PoolInfo{
		BaseMint: common.HexToAddress("0x01"), QuoteMint: common.HexToAddress("0x02"),
		BaseVault: common.HexToAddress("0x03"), QuoteVault: common.HexToAddress("0x04"),
	}}
	chain := &fakeChain{owner: program, exists: true}

	sqrtPrice := util.TickToSqrtPriceX96(0)
	amountIn := big.NewInt(1_000_000)
	amount0, amount1, _ := util.ComputeAmounts(sqrtPrice, 0, -1000, 1000, amountIn, amountIn)
	implied := amount1
	if amount0.Cmp(implied) > 0 {
		implied = amount0
	}

	b := &CLMMBuilder{
		Registry: resolver, Chain: chain, ProgramID: program,
		CurrentSqrtPriceX96: sqrtPrice,
		CurrentTick:         0,
	}
	_, err := b.Build(context.Background(), "AAAAAAAA", SwapParams{
		AmountIn: amountIn, MinAmountOut: big.NewInt(1), ExpectedAmountOut: implied,
	}, common.HexToAddress("0x05"))
	assert.NoError(t, err)
}

func TestDarkPoolBuilderAlwaysUnsupported(t *testing.T) {
	b := DarkPoolBuilder{}
	_, err := b.Build(context.Background(), "AAAAAAAA", SwapParams{
		AmountIn: big.NewInt(1), MinAmountOut: big.NewInt(1),
	}, common.Address{})
	assert.ErrorIs(t, err, arbengine.ErrVenueUnsupported)
}

func TestDispatcherUnsupportedFamily(t *testing.T) {
	d := NewDispatcher(DarkPoolBuilder{})
	_, err := d.Build(context.Background(), arbengine.VenueTag("cpamm-v1"), "AAAAAAAA", SwapParams{}, common.Address{})
	assert.ErrorIs(t, err, arbengine.ErrVenueUnsupported)
}

func TestDispatcherRoutesByFamily(t *testing.T) {
	program := common.HexToAddress("0xaaaa")
	pool := common.HexToAddress("0xbbbb")
	resolver := &fakeResolver{addr: pool, valid: true}
	chain := &fakeChain{owner: program, exists: true}
	cp := &CPAMMBuilder{Registry: resolver, Chain: chain, ProgramID: program}

	d := NewDispatcher(cp, DarkPoolBuilder{})
	instrs, err := d.Build(context.Background(), arbengine.VenueTag("cpamm-v2"), "AAAAAAAA", SwapParams{
		AmountIn: big.NewInt(1000), MinAmountOut: big.NewInt(900),
	}, common.HexToAddress("0x05"))
	assert.NoError(t, err)
	assert.NotEmpty(t, instrs)
}
