package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCVaRCalculator_ConfidenceBounds(t *testing.T) {
	for _, bad := range []float64{0, 1, -0.5, 1.5} {
		_, err := NewCVaRCalculator(bad)
		assert.Error(t, err, "confidence %v should be rejected", bad)
	}

	calc, err := NewCVaRCalculator(0.95)
	require.NoError(t, err)
	assert.Equal(t, 0.95, calc.ConfidenceLevel())
}

func TestCVaR_KnownSample(t *testing.T) {
	calc, err := NewCVaRCalculator(0.95)
	require.NoError(t, err)

	// With 5 observations the 5% tail rounds up to a single return,
	// the worst one.
	returns := []float64{0.01, -0.02, 0.03, -0.05, 0.02}

	cvar, err := calc.CVaR(returns)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, cvar, 1e-12)

	varValue, err := calc.VaR(returns)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, varValue, 1e-12)
}

func TestCVaR_TailMean(t *testing.T) {
	// 10 observations at 80% confidence: tail = ceil(0.2*10) = 2 worst.
	calc, err := NewCVaRCalculator(0.80)
	require.NoError(t, err)

	returns := []float64{-0.10, -0.06, 0.01, 0.02, 0.03, 0.04, 0.05, 0.06, 0.07, 0.08}

	cvar, err := calc.CVaR(returns)
	require.NoError(t, err)
	assert.InDelta(t, 0.08, cvar, 1e-12, "mean of the two worst returns")

	varValue, err := calc.VaR(returns)
	require.NoError(t, err)
	assert.InDelta(t, 0.06, varValue, 1e-12, "tail boundary return")
}

func TestCVaR_AtLeastVaR(t *testing.T) {
	calc, err := NewCVaRCalculator(0.95)
	require.NoError(t, err)

	samples := [][]float64{
		{0.01, -0.02, 0.03, -0.05, 0.02},
		{-0.01, -0.01, -0.01},
		{0.05, 0.04, 0.03, 0.02, 0.01, -0.07, -0.12, 0.06, 0.0, -0.03},
	}
	for _, returns := range samples {
		cvar, err := calc.CVaR(returns)
		require.NoError(t, err)
		varValue, err := calc.VaR(returns)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, cvar, varValue, "CVaR is the tail mean, at least the tail boundary")
		assert.GreaterOrEqual(t, varValue, 0.0)
	}
}

func TestCVaR_EmptySampleFails(t *testing.T) {
	calc, err := NewCVaRCalculator(0.95)
	require.NoError(t, err)

	_, err = calc.CVaR(nil)
	assert.Error(t, err)

	_, err = calc.VaR([]float64{})
	assert.Error(t, err)
}

func TestCVaR_InputNotMutated(t *testing.T) {
	calc, err := NewCVaRCalculator(0.95)
	require.NoError(t, err)

	returns := []float64{0.03, -0.05, 0.01}
	_, err = calc.CVaR(returns)
	require.NoError(t, err)

	assert.Equal(t, []float64{0.03, -0.05, 0.01}, returns)
}
