package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAsset_NormalizesAndDefaults(t *testing.T) {
	asset, err := NewAsset(" aapl ", "", "", 180.50, "")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", asset.Ticker)
	assert.Equal(t, "AAPL", asset.Name)
	assert.Equal(t, AssetTypeStock, asset.Type)
	assert.Equal(t, "USD", asset.Currency)
	assert.Equal(t, 180.50, asset.CurrentPrice)
}

func TestNewAsset_RejectsInvalid(t *testing.T) {
	_, err := NewAsset("", "Apple", AssetTypeStock, 100, "USD")
	assert.Error(t, err, "empty ticker should be rejected")

	_, err = NewAsset("AAPL", "Apple", AssetTypeStock, 0, "USD")
	assert.Error(t, err, "zero price should be rejected")

	_, err = NewAsset("AAPL", "Apple", AssetTypeStock, -5, "USD")
	assert.Error(t, err, "negative price should be rejected")
}

func TestAsset_UpdatePrice(t *testing.T) {
	asset, err := NewAsset("AAPL", "Apple", AssetTypeStock, 100, "USD")
	require.NoError(t, err)

	before := asset.LastUpdated
	time.Sleep(time.Millisecond)

	require.NoError(t, asset.UpdatePrice(120))
	assert.Equal(t, 120.0, asset.CurrentPrice)
	assert.True(t, asset.LastUpdated.After(before))

	assert.Error(t, asset.UpdatePrice(-1))
	assert.Equal(t, 120.0, asset.CurrentPrice, "price should be unchanged after a rejected update")
}

func TestNewPosition_Validation(t *testing.T) {
	asset, err := NewAsset("AAPL", "Apple", AssetTypeStock, 180.50, "USD")
	require.NoError(t, err)

	_, err = NewPosition(nil, 1, 0.5, 100)
	assert.Error(t, err)

	_, err = NewPosition(asset, -1, 0.5, 100)
	assert.Error(t, err)

	_, err = NewPosition(asset, 1, 1.5, 100)
	assert.Error(t, err)

	_, err = NewPosition(asset, 1, 0.5, -10)
	assert.Error(t, err)

	pos, err := NewPosition(asset, 10, 0.6, 1700)
	require.NoError(t, err)
	assert.InDelta(t, 1805.0, pos.MarketValue(), 1e-9)
}

func newTestPortfolio(t *testing.T) *Portfolio {
	t.Helper()

	pf, err := NewPortfolio("pf-1", 500)
	require.NoError(t, err)

	aapl, err := NewAsset("AAPL", "Apple", AssetTypeStock, 180.50, "USD")
	require.NoError(t, err)
	meta, err := NewAsset("META", "Meta", AssetTypeStock, 400, "USD")
	require.NoError(t, err)

	require.NoError(t, pf.AddPosition(aapl, 10, 0.6, 1750))
	require.NoError(t, pf.AddPosition(meta, 5, 0.4, 1950))
	return pf
}

func TestPortfolio_Totals(t *testing.T) {
	pf := newTestPortfolio(t)

	assert.InDelta(t, 4305.00, pf.TotalValue(), 1e-9)
	assert.InDelta(t, 4200.00, pf.TotalDeposited(), 1e-9)
	assert.InDelta(t, 105.00, pf.TotalEarned(), 1e-9)
}

func TestPortfolio_Allocations(t *testing.T) {
	pf := newTestPortfolio(t)

	current := pf.CurrentAllocations()
	assert.InDelta(t, 1805.0/4305.0, current["AAPL"], 1e-9)
	assert.InDelta(t, 2000.0/4305.0, current["META"], 1e-9)

	// Cash keeps allocation weights below 1.
	sum := current["AAPL"] + current["META"]
	assert.Less(t, sum, 1.0)

	assert.Equal(t, 0.0, pf.CurrentAllocation("TSLA"), "unknown ticker has zero weight")

	targets := pf.TargetAllocations()
	assert.Equal(t, 0.6, targets["AAPL"])
	assert.Equal(t, 0.4, targets["META"])
}

func TestPortfolio_AllocationDrift(t *testing.T) {
	pf := newTestPortfolio(t)

	drift := pf.AllocationDrift()
	assert.InDelta(t, 0.1807, drift["AAPL"], 1e-4, "AAPL is underweight")
	assert.InDelta(t, -0.0646, drift["META"], 1e-4, "META is overweight")
}

func TestPortfolio_EmptyAllocationIsZero(t *testing.T) {
	pf, err := NewPortfolio("pf-empty", 0)
	require.NoError(t, err)

	assert.Equal(t, 0.0, pf.TotalValue())
	assert.Equal(t, 0.0, pf.CurrentAllocation("AAPL"), "zero-value portfolio must not divide by zero")
}

func TestPortfolio_ValidateAllocations(t *testing.T) {
	pf := newTestPortfolio(t)
	assert.True(t, pf.ValidateAllocations())

	spy, err := NewAsset("SPY", "S&P 500", AssetTypeETF, 500, "USD")
	require.NoError(t, err)
	require.NoError(t, pf.AddPosition(spy, 1, 0.3, 500))
	assert.False(t, pf.ValidateAllocations(), "targets summing above 1 are invalid")
}

func TestGoal_Progress(t *testing.T) {
	pf := newTestPortfolio(t)
	target := 10000.0
	goal := &Goal{
		ID:           "goal-1",
		Name:         "House",
		Type:         GoalHouse,
		RiskProfile:  RiskModerate,
		Portfolio:    pf,
		TargetAmount: &target,
	}

	assert.InDelta(t, 4305.00, goal.Balance(), 1e-9)
	assert.InDelta(t, 105.00, goal.Earned(), 1e-9)

	pct := goal.ProgressPercentage()
	require.NotNil(t, pct)
	assert.InDelta(t, 43.05, *pct, 1e-9)

	goal.TargetAmount = nil
	assert.Nil(t, goal.ProgressPercentage(), "no target amount means no progress figure")
}

func TestParseRiskProfile(t *testing.T) {
	for _, valid := range []string{"very_conservative", "conservative", "moderate", "risky"} {
		profile, err := ParseRiskProfile(valid)
		require.NoError(t, err)
		assert.Equal(t, RiskProfile(valid), profile)
	}

	_, err := ParseRiskProfile("yolo")
	assert.Error(t, err)
}
