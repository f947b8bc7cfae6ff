package rebalancing

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/faroinvest/faro/internal/domain"
	"github.com/faroinvest/faro/internal/modules/constraints"
	"github.com/faroinvest/faro/internal/modules/risk"
)

const (
	// defaultRiskAversion weights the tracking-error penalty that keeps
	// the optimizer near the stated target allocations.
	defaultRiskAversion = 0.1

	// sumPenaltyWeight enforces the weights-sum-to-1 constraint in the
	// penalty-method objective.
	sumPenaltyWeight = 1000.0

	// maxObjectiveScenarios caps the scenario count used inside the
	// objective. The optimizer evaluates the objective hundreds of
	// times; the final reported CVaR still uses the full request count.
	maxObjectiveScenarios = 500
)

// CVaRConfig tunes the CVaR strategy's simulation and solver.
type CVaRConfig struct {
	Scenarios       int     // Monte Carlo paths, default 1000
	ConfidenceLevel float64 // CVaR confidence, default 0.95
	Seed            *uint64 // optional, makes the whole rebalance deterministic
	RiskAversion    float64 // tracking-error coefficient, default 0.1
}

// CVaRStrategy minimizes portfolio tail risk: it searches the weight
// simplex for the allocation with the lowest simulated CVaR, penalized by
// distance from the target allocations, then trades toward the solved
// weights through the shared constraint pipeline.
type CVaRStrategy struct {
	base
	estimator       MarketEstimator
	nScenarios      int
	confidenceLevel float64
	seed            *uint64
	riskAversion    float64
	log             zerolog.Logger
}

// NewCVaRStrategy creates a CVaR strategy with validated constraints.
func NewCVaRStrategy(c constraints.TradingConstraints, estimator MarketEstimator, cfg CVaRConfig, log zerolog.Logger) (*CVaRStrategy, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if estimator == nil {
		return nil, fmt.Errorf("market estimator is required")
	}
	if cfg.Scenarios <= 0 {
		cfg.Scenarios = 1000
	}
	if cfg.ConfidenceLevel == 0 {
		cfg.ConfidenceLevel = 0.95
	}
	if cfg.ConfidenceLevel <= 0 || cfg.ConfidenceLevel >= 1 {
		return nil, fmt.Errorf("confidence level must be between 0 and 1, got %v", cfg.ConfidenceLevel)
	}
	if cfg.RiskAversion == 0 {
		cfg.RiskAversion = defaultRiskAversion
	}
	if cfg.RiskAversion < 0 {
		return nil, fmt.Errorf("risk aversion must be >= 0, got %v", cfg.RiskAversion)
	}

	return &CVaRStrategy{
		base:            base{constraints: c},
		estimator:       estimator,
		nScenarios:      cfg.Scenarios,
		confidenceLevel: cfg.ConfidenceLevel,
		seed:            cfg.Seed,
		riskAversion:    cfg.RiskAversion,
		log:             log.With().Str("component", "cvar_strategy").Logger(),
	}, nil
}

// Name returns the strategy identifier.
func (s *CVaRStrategy) Name() string { return "cvar" }

// Rebalance solves for CVaR-optimal weights and trades toward them.
// On solver non-convergence the stated target allocations are used
// instead, flagged via UsedFallback; non-convergence is a recoverable
// condition here, not an error.
func (s *CVaRStrategy) Rebalance(portfolio *domain.Portfolio) (*Result, error) {
	if len(portfolio.Positions) == 0 {
		return s.buildResult(portfolio, nil, 0, 0, 0), nil
	}

	tickers, expectedReturns, covMatrix, err := s.estimator.Estimate(portfolio)
	if err != nil {
		return nil, fmt.Errorf("market estimation failed: %w", err)
	}

	targets := make([]float64, len(tickers))
	initial := make([]float64, len(tickers))
	for i, ticker := range tickers {
		targets[i] = portfolio.Positions[ticker].TargetAllocation
		initial[i] = portfolio.CurrentAllocation(ticker)
	}

	optimal, usedFallback := s.solveWeights(tickers, targets, initial, expectedReturns, covMatrix)

	reference := make(map[string]float64, len(tickers))
	for i, ticker := range tickers {
		reference[ticker] = optimal[i]
	}

	trades, err := s.tradesFromWeights(portfolio, reference)
	if err != nil {
		return nil, err
	}
	trades = s.applyConstraints(trades, portfolio)
	trades, totalBuy, totalSell, cost := s.applyLiquidityFloor(trades, portfolio)

	result := s.buildResult(portfolio, trades, totalBuy, totalSell, cost)
	result.Metrics.OptimalWeights = reference
	result.Metrics.UsedFallback = usedFallback

	// Report the CVaR of the chosen weights at the full scenario count.
	if cvar, ok := s.finalCVaR(optimal, expectedReturns, covMatrix); ok {
		result.Metrics.OptimizedCVaR = cvar
	}

	s.log.Debug().
		Int("n_trades", len(trades)).
		Bool("used_fallback", usedFallback).
		Float64("optimized_cvar", result.Metrics.OptimizedCVaR).
		Msg("CVaR rebalance computed")

	return result, nil
}

// solveWeights runs the penalty-method Nelder-Mead minimization of
// CVaR(w) + riskAversion * Σ|w - target| over the weight simplex. The
// initial guess is the current allocation. Returns the target allocations
// with fallback=true when the solver fails or doesn't converge.
func (s *CVaRStrategy) solveWeights(tickers []string, targets, initial, expectedReturns []float64, covMatrix *mat.SymDense) ([]float64, bool) {
	n := len(tickers)

	// Common random numbers: every objective evaluation replays the same
	// scenario draws, so differences between candidate weights reflect
	// the weights, not sampling noise.
	objectiveSeed := rand.Uint64()
	if s.seed != nil {
		objectiveSeed = *s.seed
	}
	objectiveScenarios := s.nScenarios
	if objectiveScenarios > maxObjectiveScenarios {
		objectiveScenarios = maxObjectiveScenarios
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			proj := projectToUnitBox(x)

			sum := 0.0
			for _, w := range proj {
				sum += w
			}
			if sum < 1e-9 {
				return math.Inf(1)
			}

			normalized := make([]float64, n)
			for i, w := range proj {
				normalized[i] = w / sum
			}

			cvar, _, err := risk.PortfolioCVaR(
				normalized, expectedReturns, covMatrix,
				s.confidenceLevel, objectiveScenarios, risk.DefaultPeriods, &objectiveSeed,
			)
			if err != nil {
				return math.Inf(1)
			}

			obj := cvar
			for i := range proj {
				obj += s.riskAversion * math.Abs(proj[i]-targets[i])
			}
			obj += sumPenaltyWeight * (sum - 1.0) * (sum - 1.0)
			return obj
		},
	}

	// The Monte Carlo objective is noisy, so gradient-free Nelder-Mead
	// is the right solver here.
	x0 := make([]float64, n)
	copy(x0, initial)

	result, err := optimize.Minimize(problem, x0, &optimize.Settings{}, &optimize.NelderMead{})
	if err != nil {
		s.log.Warn().Err(err).Msg("CVaR optimization failed, falling back to target allocations")
		return append([]float64(nil), targets...), true
	}

	switch result.Status {
	case optimize.Success, optimize.FunctionConvergence, optimize.GradientThreshold:
		// Converged.
	default:
		s.log.Warn().
			Str("status", result.Status.String()).
			Msg("CVaR optimization did not converge, falling back to target allocations")
		return append([]float64(nil), targets...), true
	}

	// Clamp to bounds and normalize the solved weights.
	final := projectToUnitBox(result.X)
	sum := 0.0
	for _, w := range final {
		sum += w
	}
	if sum < 1e-9 {
		s.log.Warn().Msg("CVaR optimization produced degenerate weights, falling back to target allocations")
		return append([]float64(nil), targets...), true
	}
	for i := range final {
		final[i] /= sum
	}

	return final, false
}

// finalCVaR computes the CVaR of the chosen weights at the full scenario
// count. Weights are normalized first; degenerate weight vectors are
// skipped rather than failing the rebalance.
func (s *CVaRStrategy) finalCVaR(weights, expectedReturns []float64, covMatrix *mat.SymDense) (float64, bool) {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum < 1e-9 {
		return 0, false
	}
	normalized := make([]float64, len(weights))
	for i, w := range weights {
		normalized[i] = w / sum
	}

	cvar, _, err := risk.PortfolioCVaR(
		normalized, expectedReturns, covMatrix,
		s.confidenceLevel, s.nScenarios, risk.DefaultPeriods, s.seed,
	)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to compute final CVaR")
		return 0, false
	}
	return cvar, true
}

// projectToUnitBox clamps every weight into [0, 1].
func projectToUnitBox(x []float64) []float64 {
	proj := make([]float64, len(x))
	for i, v := range x {
		proj[i] = math.Max(0, math.Min(1, v))
	}
	return proj
}
