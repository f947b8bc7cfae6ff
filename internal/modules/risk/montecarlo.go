package risk

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultPeriods is one year of trading days.
const DefaultPeriods = 252

// studentTDoF is the fixed degrees of freedom for the fat-tailed
// distribution. Lower values mean fatter tails.
const studentTDoF = 5.0

// MonteCarloSimulator generates synthetic return scenarios. A seeded
// simulator is fully deterministic; without a seed each run draws from a
// fresh random stream.
type MonteCarloSimulator struct {
	nScenarios int
	seed       *uint64
	src        rand.Source
}

// NewMonteCarloSimulator creates a simulator for nScenarios paths.
// A non-nil seed makes every simulation reproducible.
func NewMonteCarloSimulator(nScenarios int, seed *uint64) (*MonteCarloSimulator, error) {
	if nScenarios <= 0 {
		return nil, fmt.Errorf("scenario count must be positive, got %d", nScenarios)
	}
	sim := &MonteCarloSimulator{
		nScenarios: nScenarios,
		seed:       seed,
	}
	sim.Reset()
	return sim, nil
}

// Reset rewinds the random stream to its initial state. Seeded simulators
// replay the exact same draws; unseeded ones start a new stream.
func (s *MonteCarloSimulator) Reset() {
	if s.seed != nil {
		s.src = rand.NewPCG(*s.seed, *s.seed)
	} else {
		s.src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
}

// Scenarios returns the number of simulated paths.
func (s *MonteCarloSimulator) Scenarios() int {
	return s.nScenarios
}

// SimulateReturns simulates per-period returns for a single asset.
// meanReturn and volatility are annualized and scaled down to the period
// length. Supported distributions: "normal" and "student_t" (fat tails,
// variance-matched to the normal case). The result has one row per
// scenario and nPeriods columns.
func (s *MonteCarloSimulator) SimulateReturns(meanReturn, volatility float64, nPeriods int, distribution string) ([][]float64, error) {
	if nPeriods <= 0 {
		nPeriods = DefaultPeriods
	}

	dailyReturn := meanReturn / float64(nPeriods)
	dailyVol := volatility / math.Sqrt(float64(nPeriods))

	var draw func() float64
	switch distribution {
	case "normal":
		dist := distuv.Normal{Mu: dailyReturn, Sigma: dailyVol, Src: s.src}
		draw = dist.Rand

	case "student_t":
		// Scale so the t draws match the normal variance:
		// Var(t_df) = df/(df-2), so sigma = vol * sqrt((df-2)/df).
		scale := dailyVol * math.Sqrt((studentTDoF-2)/studentTDoF)
		dist := distuv.StudentsT{Mu: dailyReturn, Sigma: scale, Nu: studentTDoF, Src: s.src}
		draw = dist.Rand

	default:
		return nil, fmt.Errorf("unsupported distribution %q", distribution)
	}

	returns := make([][]float64, s.nScenarios)
	for i := range returns {
		path := make([]float64, nPeriods)
		for j := range path {
			path[j] = draw()
		}
		returns[i] = path
	}

	return returns, nil
}

// SimulatePortfolioReturns simulates cumulative multi-asset portfolio
// returns. Per-period asset returns are drawn from a multivariate normal
// (annualized means and covariance scaled by nPeriods) so cross-asset
// correlations carry into every path. Each scenario's per-period portfolio
// returns are compounded into a single cumulative return.
func (s *MonteCarloSimulator) SimulatePortfolioReturns(
	weights []float64,
	expectedReturns []float64,
	covMatrix *mat.SymDense,
	nPeriods int,
) ([]float64, error) {
	nAssets := len(weights)
	if nAssets == 0 {
		return nil, fmt.Errorf("no portfolio weights provided")
	}
	if len(expectedReturns) != nAssets {
		return nil, fmt.Errorf("expected returns size %d doesn't match weights count %d", len(expectedReturns), nAssets)
	}
	if covMatrix == nil {
		return nil, fmt.Errorf("covariance matrix is nil")
	}
	if r := covMatrix.SymmetricDim(); r != nAssets {
		return nil, fmt.Errorf("covariance matrix must be %dx%d, got %dx%d", nAssets, nAssets, r, r)
	}

	weightSum := 0.0
	for _, w := range weights {
		weightSum += w
	}
	if math.Abs(weightSum-1.0) > 1e-6 {
		return nil, fmt.Errorf("weights must sum to 1.0, sum=%v", weightSum)
	}

	if nPeriods <= 0 {
		nPeriods = DefaultPeriods
	}

	// Scale annualized inputs to per-period parameters.
	dailyMu := make([]float64, nAssets)
	for i, r := range expectedReturns {
		dailyMu[i] = r / float64(nPeriods)
	}
	dailyCov := mat.NewSymDense(nAssets, nil)
	for i := 0; i < nAssets; i++ {
		for j := i; j < nAssets; j++ {
			dailyCov.SetSym(i, j, covMatrix.At(i, j)/float64(nPeriods))
		}
	}

	dist, ok := distmv.NewNormal(dailyMu, dailyCov, s.src)
	if !ok {
		return nil, fmt.Errorf("covariance matrix is not positive definite")
	}

	portfolioReturns := make([]float64, s.nScenarios)
	assetReturns := make([]float64, nAssets)
	for i := 0; i < s.nScenarios; i++ {
		cumulative := 1.0
		for p := 0; p < nPeriods; p++ {
			dist.Rand(assetReturns)

			periodReturn := 0.0
			for a := 0; a < nAssets; a++ {
				periodReturn += weights[a] * assetReturns[a]
			}
			cumulative *= 1 + periodReturn
		}
		portfolioReturns[i] = cumulative - 1
	}

	return portfolioReturns, nil
}

// PortfolioCVaR simulates correlated portfolio returns and computes their
// CVaR in one step. Returns both the CVaR and the simulated sample so
// callers can derive further statistics without re-simulating.
func PortfolioCVaR(
	weights []float64,
	expectedReturns []float64,
	covMatrix *mat.SymDense,
	confidenceLevel float64,
	nScenarios int,
	nPeriods int,
	seed *uint64,
) (float64, []float64, error) {
	sim, err := NewMonteCarloSimulator(nScenarios, seed)
	if err != nil {
		return 0, nil, err
	}

	simulated, err := sim.SimulatePortfolioReturns(weights, expectedReturns, covMatrix, nPeriods)
	if err != nil {
		return 0, nil, fmt.Errorf("portfolio simulation failed: %w", err)
	}

	calc, err := NewCVaRCalculator(confidenceLevel)
	if err != nil {
		return 0, nil, err
	}

	cvar, err := calc.CVaR(simulated)
	if err != nil {
		return 0, nil, err
	}

	return cvar, simulated, nil
}
