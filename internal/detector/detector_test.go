package detector

import (
	"math/big"
	"testing"
	"time"

	"arbengine"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func snap(token common.Address, venue arbengine.VenueTag, pool string, price *big.Rat, liq, vol int64) arbengine.PriceSnapshot {
	return arbengine.PriceSnapshot{
		PoolShortID: pool,
		VenueTag:    venue,
		TokenMint:   token,
		PriceInBase: price,
		Liquidity:   big.NewInt(liq),
		Volume24h:   big.NewInt(vol),
		ObservedAt:  time.Now(),
	}
}

func TestDetectFindsProfitableCrossVenueSpread(t *testing.T) {
	token := common.HexToAddress("0x01")
	snapshot := []arbengine.PriceSnapshot{
		snap(token, "cpamm-v1", "A", big.NewRat(100, 1), 1_000_000, 1_000),
		snap(token, "clmm-v1", "B", big.NewRat(110, 1), 1_000_000, 1_000),
	}
	cfg := Config{MaxSpreadFraction: big.NewRat(1, 1)}
	// Position large enough that the tip floor and fixed gas costs don't
	// swamp a 10% spread: 10 base units at 1e9 minor each.
	opps := Detect(snapshot, big.NewInt(10_000_000_000), nil, cfg, time.Now())

	assert.Len(t, opps, 1)
	assert.True(t, opps[0].SpreadFraction.Sign() > 0)
	assert.Len(t, opps[0].Legs, 2)

	buyLeg, sellLeg := opps[0].Legs[0], opps[0].Legs[1]
	assert.Equal(t, opps[0].PositionMinor, buyLeg.AmountIn)
	assert.Equal(t, buyLeg.ExpectedOut, sellLeg.AmountIn)
	assert.True(t, sellLeg.ExpectedOut.Cmp(buyLeg.AmountIn) > 0, "round trip should return more base than spent")
}

func TestDetectSkipsSameFamilyCollision(t *testing.T) {
	token := common.HexToAddress("0x01")
	snapshot := []arbengine.PriceSnapshot{
		snap(token, "cpamm-v1", "A", big.NewRat(100, 1), 1_000_000, 1_000),
		snap(token, "cpamm-v2", "B", big.NewRat(110, 1), 1_000_000, 1_000),
	}
	cfg := Config{}
	opps := Detect(snapshot, big.NewInt(1_000_000), nil, cfg, time.Now())
	assert.Empty(t, opps)
}

func TestDetectSkipsLowVolume(t *testing.T) {
	token := common.HexToAddress("0x01")
	snapshot := []arbengine.PriceSnapshot{
		snap(token, "cpamm-v1", "A", big.NewRat(100, 1), 1_000_000, 1),
		snap(token, "clmm-v1", "B", big.NewRat(110, 1), 1_000_000, 1),
	}
	cfg := Config{MinVolume24h: big.NewInt(10_000)}
	opps := Detect(snapshot, big.NewInt(1_000_000), nil, cfg, time.Now())
	assert.Empty(t, opps)
}

func TestDetectRejectsSpreadAboveSanityCeiling(t *testing.T) {
	token := common.HexToAddress("0x01")
	snapshot := []arbengine.PriceSnapshot{
		snap(token, "cpamm-v1", "A", big.NewRat(1, 1), 1_000_000, 1_000),
		snap(token, "clmm-v1", "B", big.NewRat(1000, 1), 1_000_000, 1_000),
	}
	cfg := Config{MaxSpreadFraction: big.NewRat(1, 10)}
	opps := Detect(snapshot, big.NewInt(1_000_000), nil, cfg, time.Now())
	assert.Empty(t, opps)
}

func TestDetectRejectsThinSpreadAfterCosts(t *testing.T) {
	token := common.HexToAddress("0x01")
	snapshot := []arbengine.PriceSnapshot{
		snap(token, "cpamm-v1", "A", big.NewRat(1000, 1), 1_000_000, 1_000),
		snap(token, "clmm-v1", "B", big.NewRat(1001, 1), 1_000_000, 1_000),
	}
	cfg := Config{}
	opps := Detect(snapshot, big.NewInt(10), nil, cfg, time.Now()) // tiny position, fixed costs dominate
	assert.Empty(t, opps)
}

func TestDetectAppliesAllowList(t *testing.T) {
	token := common.HexToAddress("0x01")
	other := common.HexToAddress("0x02")
	snapshot := []arbengine.PriceSnapshot{
		snap(token, "cpamm-v1", "A", big.NewRat(100, 1), 1_000_000, 1_000),
		snap(token, "clmm-v1", "B", big.NewRat(110, 1), 1_000_000, 1_000),
		snap(other, "cpamm-v1", "C", big.NewRat(100, 1), 1_000_000, 1_000),
		snap(other, "clmm-v1", "D", big.NewRat(200, 1), 1_000_000, 1_000),
	}
	cfg := Config{AllowList: map[common.Address]bool{token: true}, MaxSpreadFraction: big.NewRat(1, 1)}
	opps := Detect(snapshot, big.NewInt(10_000_000_000), nil, cfg, time.Now())

	assert.Len(t, opps, 1)
	assert.Equal(t, token, opps[0].TokenMint)
}

func TestSortOpportunitiesOrdersByNetProfitThenLiquidityThenToken(t *testing.T) {
	a := arbengine.Opportunity{
		TokenMint:    common.HexToAddress("0x02"),
		EstNetProfit: big.NewInt(100),
		Legs:         []arbengine.OpportunityLeg{{Liquidity: big.NewInt(10)}},
	}
	b := arbengine.Opportunity{
		TokenMint:    common.HexToAddress("0x01"),
		EstNetProfit: big.NewInt(100),
		Legs:         []arbengine.OpportunityLeg{{Liquidity: big.NewInt(10)}},
	}
	c := arbengine.Opportunity{
		TokenMint:    common.HexToAddress("0x03"),
		EstNetProfit: big.NewInt(200),
		Legs:         []arbengine.OpportunityLeg{{Liquidity: big.NewInt(1)}},
	}
	opps := []arbengine.Opportunity{a, b, c}
	sortOpportunities(opps)

	assert.Equal(t, c.TokenMint, opps[0].TokenMint) // highest net profit first
	assert.Equal(t, b.TokenMint, opps[1].TokenMint) // tie on profit, lexicographic token break
	assert.Equal(t, a.TokenMint, opps[2].TokenMint)
}

func TestDetectTriangularFindsRoundTripProfit(t *testing.T) {
	tokenA := common.HexToAddress("0x0a")
	tokenB := common.HexToAddress("0x0b")
	snapshot := []arbengine.PriceSnapshot{
		snap(tokenA, "cpamm-v1", "pA1", big.NewRat(100, 1), 1_000_000, 1_000),
		snap(tokenA, "clmm-v1", "pA2", big.NewRat(110, 1), 1_000_000, 1_000),
		snap(tokenB, "cpamm-v1", "pB1", big.NewRat(200, 1), 1_000_000, 1_000),
		snap(tokenB, "dlmm-v1", "pB2", big.NewRat(220, 1), 1_000_000, 1_000),
	}
	cfg := Config{MaxSpreadFraction: big.NewRat(1, 1)}
	opps := DetectTriangular(snapshot, big.NewInt(10_000_000_000), nil, cfg, time.Now())

	assert.Len(t, opps, 1)
	o := opps[0]
	assert.Len(t, o.Legs, 4)
	assert.True(t, o.SpreadFraction.Sign() > 0)
	assert.True(t, o.EstNetProfit.Sign() > 0)

	// Four distinct pools, one per leg.
	pools := map[string]bool{}
	for _, leg := range o.Legs {
		pools[leg.PoolShortID] = true
	}
	assert.Len(t, pools, 4)

	// buy A, sell A, buy B, sell B, chained in each leg's own unit.
	assert.True(t, o.Legs[0].BuySide)
	assert.False(t, o.Legs[1].BuySide)
	assert.True(t, o.Legs[2].BuySide)
	assert.False(t, o.Legs[3].BuySide)
	assert.Equal(t, o.PositionMinor, o.Legs[0].AmountIn)
	assert.Equal(t, o.Legs[0].ExpectedOut, o.Legs[1].AmountIn)
	assert.Equal(t, o.Legs[1].ExpectedOut, o.Legs[2].AmountIn)
	assert.Equal(t, o.Legs[2].ExpectedOut, o.Legs[3].AmountIn)
	assert.True(t, o.Legs[3].ExpectedOut.Cmp(o.PositionMinor) > 0, "cycle should return more base than it spent")
}

func TestDetectTriangularRequiresCrossVenuePairOnBothTokens(t *testing.T) {
	tokenA := common.HexToAddress("0x0a")
	tokenB := common.HexToAddress("0x0b")
	// tokenB quotes on a single venue, so its hop has no spread to pay
	// the cycle's fees and no cycle should be emitted.
	snapshot := []arbengine.PriceSnapshot{
		snap(tokenA, "cpamm-v1", "pA1", big.NewRat(100, 1), 1_000_000, 1_000),
		snap(tokenA, "clmm-v1", "pA2", big.NewRat(110, 1), 1_000_000, 1_000),
		snap(tokenB, "cpamm-v1", "pB1", big.NewRat(200, 1), 1_000_000, 1_000),
	}
	cfg := Config{MaxSpreadFraction: big.NewRat(1, 1)}
	opps := DetectTriangular(snapshot, big.NewInt(10_000_000_000), nil, cfg, time.Now())
	assert.Empty(t, opps)
}

func TestDetectDefaultCeilingClampsAtFiftyPercent(t *testing.T) {
	token := common.HexToAddress("0x01")
	snapshot := []arbengine.PriceSnapshot{
		snap(token, "cpamm-v1", "A", big.NewRat(100, 1), 1_000_000, 1_000),
		snap(token, "clmm-v1", "B", big.NewRat(200, 1), 1_000_000, 1_000),
	}
	// 100% spread with no explicit ceiling configured: the default 50%
	// sanity ceiling treats it as bad feed data.
	opps := Detect(snapshot, big.NewInt(10_000_000_000), nil, Config{}, time.Now())
	assert.Empty(t, opps)
}
