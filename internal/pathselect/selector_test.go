package pathselect

import (
	"testing"

	"github.com/deltran/clearing-core/internal/config"
	"github.com/deltran/clearing-core/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSelector(t *testing.T) *Selector {
	t.Helper()
	cfg := config.Default().PathSelect
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestSelect_SmallAmountDeepLiquidity_PrefersInstantBuy(t *testing.T) {
	s := testSelector(t)
	market := domain.MarketConditions{
		VolatilityPct:  0.3,
		LiquidityDepth: domain.LiquidityDeep,
		ClearingOpen:   false,
	}

	path := s.Select(decimal.NewFromInt(5000), 10.0, market, decimal.Zero)
	assert.Equal(t, domain.PathInstantBuy, path.Kind)
	require.NotNil(t, path.InstantBuy)
}

func TestSelect_ExtremeVolatility_PrefersHedging(t *testing.T) {
	s := testSelector(t)
	market := domain.MarketConditions{
		VolatilityPct:  5.0, // well above 2x the 1.5 threshold
		LiquidityDepth: domain.LiquidityStressed,
		ClearingOpen:   false,
	}

	path := s.Select(decimal.NewFromInt(200000), 60.0, market, decimal.Zero)
	assert.Equal(t, domain.PathHedging, path.Kind)
	require.NotNil(t, path.Hedging)
	assert.Equal(t, domain.HedgeFull, path.Hedging.Mode)
	assert.Equal(t, 1.0, path.Hedging.Ratio)
}

func TestSelect_OpenWindowWithOffsettingFlow_PrefersClearing(t *testing.T) {
	s := testSelector(t)
	market := domain.MarketConditions{
		VolatilityPct:  0.2,
		LiquidityDepth: domain.LiquidityNormal,
		ClearingOpen:   true,
		OffsettingFlow: true,
	}

	path := s.Select(decimal.NewFromInt(500000), 20.0, market, decimal.NewFromInt(400000))
	assert.Equal(t, domain.PathClearing, path.Kind)
	require.NotNil(t, path.Clearing)
}

func TestSelect_NeverFails_AlwaysReturnsAPath(t *testing.T) {
	s := testSelector(t)
	market := domain.MarketConditions{}
	path := s.Select(decimal.Zero, 0, market, decimal.Zero)
	assert.NotEmpty(t, path.Kind)
}

func TestSelect_ConfidenceClamped(t *testing.T) {
	s := testSelector(t)
	market := domain.MarketConditions{
		VolatilityPct:  10.0,
		LiquidityDepth: domain.LiquidityStressed,
	}
	path := s.Select(decimal.NewFromInt(1000000), 90.0, market, decimal.Zero)
	assert.GreaterOrEqual(t, path.Confidence, 0.1)
	assert.LessOrEqual(t, path.Confidence, 0.99)
}

func TestNew_RejectsInvalidThreshold(t *testing.T) {
	cfg := config.Default().PathSelect
	cfg.InstantBuyThreshold = "not-a-number"
	_, err := New(cfg)
	assert.Error(t, err)
}
