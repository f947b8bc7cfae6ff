package rebalancing

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/faroinvest/faro/internal/domain"
)

// MarketEstimator supplies expected-return and covariance inputs for the
// CVaR strategy. It is a pluggable boundary: real estimation belongs to an
// external system, not the engine.
type MarketEstimator interface {
	// Estimate returns the held tickers in a stable order together with
	// annualized expected returns and the covariance matrix, both aligned
	// to that order.
	Estimate(portfolio *domain.Portfolio) ([]string, []float64, *mat.SymDense, error)
}

// assetClassParams holds annualized return/volatility assumptions per
// asset category.
type assetClassParams struct {
	expectedReturn float64
	volatility     float64
}

// SyntheticEstimator produces placeholder market parameters keyed by
// asset category, with a uniform cross-asset correlation. Good enough to
// exercise the optimizer; not a forecast.
type SyntheticEstimator struct {
	params      map[domain.AssetType]assetClassParams
	correlation float64
}

// NewSyntheticEstimator creates the default synthetic estimator.
func NewSyntheticEstimator() *SyntheticEstimator {
	return &SyntheticEstimator{
		params: map[domain.AssetType]assetClassParams{
			domain.AssetTypeStock: {expectedReturn: 0.08, volatility: 0.20},
			domain.AssetTypeBond:  {expectedReturn: 0.03, volatility: 0.07},
			domain.AssetTypeETF:   {expectedReturn: 0.07, volatility: 0.15},
			domain.AssetTypeFund:  {expectedReturn: 0.06, volatility: 0.12},
		},
		correlation: 0.3,
	}
}

// Estimate implements MarketEstimator. Tickers are returned sorted so the
// weight vector ordering is deterministic.
func (e *SyntheticEstimator) Estimate(portfolio *domain.Portfolio) ([]string, []float64, *mat.SymDense, error) {
	if len(portfolio.Positions) == 0 {
		return nil, nil, nil, fmt.Errorf("portfolio has no positions to estimate")
	}

	tickers := make([]string, 0, len(portfolio.Positions))
	for ticker := range portfolio.Positions {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	n := len(tickers)
	expectedReturns := make([]float64, n)
	vols := make([]float64, n)
	for i, ticker := range tickers {
		assetType := portfolio.Positions[ticker].Asset.Type
		p, ok := e.params[assetType]
		if !ok {
			p = e.params[domain.AssetTypeStock]
		}
		expectedReturns[i] = p.expectedReturn
		vols[i] = p.volatility
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if i == j {
				cov.SetSym(i, j, vols[i]*vols[i])
			} else {
				cov.SetSym(i, j, e.correlation*vols[i]*vols[j])
			}
		}
	}

	return tickers, expectedReturns, cov, nil
}
