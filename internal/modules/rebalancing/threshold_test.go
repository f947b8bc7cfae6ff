package rebalancing

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faroinvest/faro/internal/domain"
	"github.com/faroinvest/faro/internal/modules/constraints"
)

func mustAsset(t *testing.T, ticker string, assetType domain.AssetType, price float64) *domain.Asset {
	t.Helper()
	asset, err := domain.NewAsset(ticker, ticker, assetType, price, "USD")
	require.NoError(t, err)
	return asset
}

// driftedPortfolio is the two-asset fixture with AAPL ~18% underweight
// and META ~6.5% overweight.
func driftedPortfolio(t *testing.T) *domain.Portfolio {
	t.Helper()
	pf, err := domain.NewPortfolio("pf-test", 500)
	require.NoError(t, err)
	require.NoError(t, pf.AddPosition(mustAsset(t, "AAPL", domain.AssetTypeStock, 180.50), 10, 0.6, 1750))
	require.NoError(t, pf.AddPosition(mustAsset(t, "META", domain.AssetTypeStock, 400), 5, 0.4, 1950))
	return pf
}

func findTrade(trades []Trade, ticker string) (Trade, bool) {
	for _, tr := range trades {
		if tr.Ticker == ticker {
			return tr, true
		}
	}
	return Trade{}, false
}

func TestThresholdRebalance_GeneratesDriftTrades(t *testing.T) {
	pf := driftedPortfolio(t)
	strategy, err := NewThresholdStrategy(constraints.Default(), zerolog.Nop())
	require.NoError(t, err)

	result, err := strategy.Rebalance(pf)
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)

	buy, ok := findTrade(result.Trades, "AAPL")
	require.True(t, ok)
	assert.Equal(t, SideBuy, buy.Side)

	sell, ok := findTrade(result.Trades, "META")
	require.True(t, ok)
	assert.Equal(t, SideSell, sell.Side)
	// SELL side untouched by the liquidity pass: 27800 overweight at 400/share.
	assert.InDelta(t, 278.0, sell.Value, 1e-6)
	assert.InDelta(t, 0.695, sell.Shares, 1e-9)

	assert.InDelta(t, 0.1807, result.Metrics.MaxDriftBefore, 1e-4)
	assert.Equal(t, 2, result.Metrics.NumTrades)
}

func TestThresholdRebalance_LiquidityFloorHolds(t *testing.T) {
	pf := driftedPortfolio(t)
	strategy, err := NewThresholdStrategy(constraints.Default(), zerolog.Nop())
	require.NoError(t, err)

	result, err := strategy.Rebalance(pf)
	require.NoError(t, err)

	// The raw AAPL buy (778) would push cash below the 2% floor; the
	// liquidity pass must scale it back.
	buy, ok := findTrade(result.Trades, "AAPL")
	require.True(t, ok)
	assert.Less(t, buy.Value, 778.0)
	assert.Contains(t, buy.Reason, "adjusted for liquidity")

	projectedCash := pf.Cash + result.NetCashChange()
	minCash := 0.02 * pf.TotalValue()
	assert.GreaterOrEqual(t, projectedCash, minCash-1e-6)
}

func TestThresholdRebalance_NoOpBelowThreshold(t *testing.T) {
	pf, err := domain.NewPortfolio("pf-balanced", 0)
	require.NoError(t, err)
	// Exactly on target: zero drift.
	require.NoError(t, pf.AddPosition(mustAsset(t, "AAPL", domain.AssetTypeStock, 100), 6, 0.6, 600))
	require.NoError(t, pf.AddPosition(mustAsset(t, "META", domain.AssetTypeStock, 100), 4, 0.4, 400))

	strategy, err := NewThresholdStrategy(constraints.Default(), zerolog.Nop())
	require.NoError(t, err)

	result, err := strategy.Rebalance(pf)
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	assert.Equal(t, 0.0, result.TotalBuyValue)
	assert.Equal(t, 0.0, result.TotalSellValue)
}

func TestThresholdRebalance_EmptyPortfolio(t *testing.T) {
	pf, err := domain.NewPortfolio("pf-empty", 1000)
	require.NoError(t, err)

	strategy, err := NewThresholdStrategy(constraints.Default(), zerolog.Nop())
	require.NoError(t, err)

	result, err := strategy.Rebalance(pf)
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	assert.Equal(t, 0.0, result.Metrics.MaxDriftBefore)
}

func TestThresholdRebalance_MinTradeValueFilter(t *testing.T) {
	pf := driftedPortfolio(t)

	c := constraints.Default()
	c.MinTradeValue = 300 // drops the 278 META sell, keeps the AAPL buy
	strategy, err := NewThresholdStrategy(c, zerolog.Nop())
	require.NoError(t, err)

	result, err := strategy.Rebalance(pf)
	require.NoError(t, err)

	_, hasSell := findTrade(result.Trades, "META")
	assert.False(t, hasSell, "sell below the minimum trade value must be dropped")
}

func TestThresholdRebalance_TurnoverCap(t *testing.T) {
	pf := driftedPortfolio(t)

	maxTurnover := 0.10
	c := constraints.Default()
	c.MaxTurnover = &maxTurnover
	c.MinLiquidity = 0 // isolate the turnover pass
	strategy, err := NewThresholdStrategy(c, zerolog.Nop())
	require.NoError(t, err)

	result, err := strategy.Rebalance(pf)
	require.NoError(t, err)
	require.NotEmpty(t, result.Trades)

	totalTraded := 0.0
	for _, tr := range result.Trades {
		totalTraded += tr.Value
		assert.Contains(t, tr.Reason, "scaled by turnover constraint")
	}
	assert.LessOrEqual(t, totalTraded, maxTurnover*pf.TotalValue()+1e-6)

	// Relative trade sizes are preserved by the uniform scale-down.
	buy, _ := findTrade(result.Trades, "AAPL")
	sell, _ := findTrade(result.Trades, "META")
	assert.InDelta(t, 778.0/278.0, buy.Value/sell.Value, 1e-9)
}

func TestThresholdRebalance_WholeSharesOnly(t *testing.T) {
	pf := driftedPortfolio(t)

	c := constraints.Default()
	c.AllowFractionalShares = false
	c.MinLiquidity = 0
	strategy, err := NewThresholdStrategy(c, zerolog.Nop())
	require.NoError(t, err)

	result, err := strategy.Rebalance(pf)
	require.NoError(t, err)

	for _, tr := range result.Trades {
		assert.Equal(t, tr.Shares, float64(int64(tr.Shares)), "shares must be whole")
	}

	// The 0.695-share META sell truncates to zero and disappears.
	_, hasSell := findTrade(result.Trades, "META")
	assert.False(t, hasSell)
}

func TestResult_Derivations(t *testing.T) {
	r := &Result{
		TotalBuyValue:  600,
		TotalSellValue: 200,
		EstimatedCost:  0.8,
	}
	assert.InDelta(t, -400.8, r.NetCashChange(), 1e-12)
	assert.InDelta(t, 400.0, r.Turnover(), 1e-12)
}

func TestNewTrade_Validation(t *testing.T) {
	_, err := NewTrade("AAPL", "HOLD", 1, 100, "")
	assert.Error(t, err)

	_, err = NewTrade("AAPL", SideBuy, -1, 100, "")
	assert.Error(t, err)

	trade, err := NewTrade("AAPL", SideBuy, 2, 100, "test")
	require.NoError(t, err)
	assert.Equal(t, 200.0, trade.Value)
}
