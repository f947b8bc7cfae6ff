package rebalancing

import (
	"github.com/rs/zerolog"

	"github.com/faroinvest/faro/internal/domain"
	"github.com/faroinvest/faro/internal/modules/constraints"
)

// ThresholdStrategy is the baseline rebalancer: a single deterministic
// pass that trades every position whose drift exceeds the configured
// threshold. Fast and transparent; doesn't optimize for tail risk or
// transaction costs.
type ThresholdStrategy struct {
	base
	log zerolog.Logger
}

// NewThresholdStrategy creates a threshold strategy with validated
// constraints.
func NewThresholdStrategy(c constraints.TradingConstraints, log zerolog.Logger) (*ThresholdStrategy, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &ThresholdStrategy{
		base: base{constraints: c},
		log:  log.With().Str("component", "threshold_strategy").Logger(),
	}, nil
}

// Name returns the strategy identifier.
func (s *ThresholdStrategy) Name() string { return "threshold" }

// Rebalance generates trades toward the portfolio's target allocations:
// compute drift per ticker, trade every drift at or above the threshold,
// then run the constraint pipeline and the liquidity floor.
func (s *ThresholdStrategy) Rebalance(portfolio *domain.Portfolio) (*Result, error) {
	trades, err := s.tradesFromWeights(portfolio, portfolio.TargetAllocations())
	if err != nil {
		return nil, err
	}

	trades = s.applyConstraints(trades, portfolio)
	trades, totalBuy, totalSell, cost := s.applyLiquidityFloor(trades, portfolio)

	result := s.buildResult(portfolio, trades, totalBuy, totalSell, cost)

	s.log.Debug().
		Int("n_trades", len(trades)).
		Float64("total_buy", totalBuy).
		Float64("total_sell", totalSell).
		Float64("estimated_cost", cost).
		Msg("Threshold rebalance computed")

	return result, nil
}
