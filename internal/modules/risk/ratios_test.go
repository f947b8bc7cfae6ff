package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharpeRatio_ZeroVolatility(t *testing.T) {
	flat := []float64{0.001, 0.001, 0.001, 0.001}
	assert.Equal(t, 0.0, SharpeRatio(flat, 0.02), "constant returns have zero volatility")
	assert.Equal(t, 0.0, SharpeRatio(nil, 0.02))
}

func TestSharpeRatio_PositiveForGoodReturns(t *testing.T) {
	returns := []float64{0.01, 0.02, -0.005, 0.015, 0.01, -0.002, 0.008}
	assert.Greater(t, SharpeRatio(returns, 0.02), 0.0)
}

func TestSortinoRatio(t *testing.T) {
	assert.Equal(t, 0.0, SortinoRatio(nil, 0.02))

	// All excess returns positive: no downside to measure.
	allUp := []float64{0.01, 0.02, 0.03}
	assert.Equal(t, 0.0, SortinoRatio(allUp, 0.0))

	mixed := []float64{0.02, -0.01, 0.03, -0.02, 0.01}
	assert.NotEqual(t, 0.0, SortinoRatio(mixed, 0.02))
}

func TestMaxDrawdown(t *testing.T) {
	assert.Equal(t, 0.0, MaxDrawdown(nil))

	// Monotonically rising series never draws down.
	assert.Equal(t, 0.0, MaxDrawdown([]float64{1.0, 1.1, 1.2, 1.3}))

	// Peak 1.2, trough 0.9: drawdown = 0.3/1.2 = 25%.
	dd := MaxDrawdown([]float64{1.0, 1.2, 0.9, 1.1})
	assert.InDelta(t, 0.25, dd, 1e-12)
}

func TestVolatility(t *testing.T) {
	assert.Equal(t, 0.0, Volatility(nil, true))
	assert.Equal(t, 0.0, Volatility([]float64{0.01, 0.01, 0.01}, false))

	returns := []float64{0.01, -0.01, 0.02, -0.02}
	raw := Volatility(returns, false)
	annualized := Volatility(returns, true)
	assert.Greater(t, raw, 0.0)
	assert.Greater(t, annualized, raw, "annualization scales volatility up")
}

func TestAllMetrics(t *testing.T) {
	empty, err := AllMetrics(nil, 0.95, 0.02)
	require.NoError(t, err)
	assert.Equal(t, Metrics{}, empty, "empty sample yields all-zero metrics")

	returns := []float64{0.01, -0.02, 0.03, -0.05, 0.02, 0.01, -0.01, 0.02, 0.0, 0.015}
	m, err := AllMetrics(returns, 0.95, 0.02)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, m.CVaR, m.VaR)
	assert.Greater(t, m.Volatility, 0.0)
	assert.Greater(t, m.DownsideDeviation, 0.0)
	assert.Greater(t, m.MaxDrawdown, 0.0)
}

func TestAllMetrics_BadConfidence(t *testing.T) {
	_, err := AllMetrics([]float64{0.01}, 1.5, 0.02)
	assert.Error(t, err)
}
