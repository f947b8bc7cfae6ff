// Package constraints defines trading limits applied during rebalancing.
//
// These mirror constraints common in real-world portfolio management:
// minimum trade sizes (avoid micro-trades eaten by costs), rebalance
// thresholds (skip insignificant drift), turnover caps, liquidity floors
// and position-size limits for diversification.
package constraints

import (
	"fmt"

	"github.com/faroinvest/faro/internal/domain"
)

// TradingConstraints is a validated set of trading limits. Zero values are
// meaningful, so construct via a preset or Default and adjust with Merge.
type TradingConstraints struct {
	// MinTradeValue is the smallest trade worth executing, in currency units.
	MinTradeValue float64

	// RebalanceThreshold is the absolute drift fraction that triggers a trade.
	RebalanceThreshold float64

	// MaxTurnover caps the fraction of portfolio value rotated in one
	// rebalance. Nil means unconstrained.
	MaxTurnover *float64

	// MinLiquidity is the fraction of total value to keep as cash.
	MinLiquidity float64

	// MaxPositionSize caps the fraction any single position may represent.
	// Nil means unconstrained. Validated but not enforced by the trade
	// pipeline; target allocations are expected to respect it upstream.
	MaxPositionSize *float64

	// AllowFractionalShares controls whether share quantities may be fractional.
	AllowFractionalShares bool

	// TransactionCostBps is the transaction cost in basis points (0-1000).
	TransactionCostBps float64
}

// Default returns the baseline constraint set.
func Default() TradingConstraints {
	return TradingConstraints{
		MinTradeValue:         10.00,
		RebalanceThreshold:    0.05,
		MaxTurnover:           nil,
		MinLiquidity:          0.02,
		MaxPositionSize:       nil,
		AllowFractionalShares: true,
		TransactionCostBps:    10,
	}
}

// Conservative returns limits for conservative profiles: half the portfolio
// held liquid, a high threshold and low turnover.
func Conservative() TradingConstraints {
	c := Default()
	c.MinLiquidity = 0.50
	c.RebalanceThreshold = 0.10
	c.MaxTurnover = ptr(0.20)
	return c
}

// Moderate returns limits for moderate profiles.
func Moderate() TradingConstraints {
	c := Default()
	c.MinLiquidity = 0.10
	c.RebalanceThreshold = 0.05
	c.MaxTurnover = ptr(0.50)
	return c
}

// Risky returns limits for risky profiles: minimal cash buffer, frequent
// rebalancing, no turnover cap.
func Risky() TradingConstraints {
	c := Default()
	c.MinLiquidity = 0.02
	c.RebalanceThreshold = 0.02
	c.MaxTurnover = nil
	return c
}

// ForRiskProfile selects the constraint preset for a risk profile.
// Very-conservative goals use the conservative preset.
func ForRiskProfile(profile domain.RiskProfile) TradingConstraints {
	switch profile {
	case domain.RiskVeryConservative, domain.RiskConservative:
		return Conservative()
	case domain.RiskRisky:
		return Risky()
	default:
		return Moderate()
	}
}

// Validate checks all fields are in range. Invalid values are rejected,
// never clamped.
func (c TradingConstraints) Validate() error {
	if c.MinTradeValue <= 0 {
		return fmt.Errorf("min trade value must be > 0, got %v", c.MinTradeValue)
	}
	if c.RebalanceThreshold < 0 || c.RebalanceThreshold > 1 {
		return fmt.Errorf("rebalance threshold must be in [0, 1], got %v", c.RebalanceThreshold)
	}
	if c.MaxTurnover != nil && (*c.MaxTurnover < 0 || *c.MaxTurnover > 1) {
		return fmt.Errorf("max turnover must be in [0, 1], got %v", *c.MaxTurnover)
	}
	if c.MinLiquidity < 0 || c.MinLiquidity > 1 {
		return fmt.Errorf("min liquidity must be in [0, 1], got %v", c.MinLiquidity)
	}
	if c.MaxPositionSize != nil && (*c.MaxPositionSize < 0 || *c.MaxPositionSize > 1) {
		return fmt.Errorf("max position size must be in [0, 1], got %v", *c.MaxPositionSize)
	}
	if c.TransactionCostBps < 0 || c.TransactionCostBps > 1000 {
		return fmt.Errorf("transaction cost must be in [0, 1000] bps, got %v", c.TransactionCostBps)
	}
	return nil
}

// Overrides holds optional per-field replacements. Nil fields keep the
// base value. The HTTP layer decodes request overrides into this shape.
type Overrides struct {
	MinTradeValue         *float64 `json:"min_trade_value,omitempty"`
	RebalanceThreshold    *float64 `json:"rebalance_threshold,omitempty"`
	MaxTurnover           *float64 `json:"max_turnover,omitempty"`
	MinLiquidity          *float64 `json:"min_liquidity,omitempty"`
	MaxPositionSize       *float64 `json:"max_position_size,omitempty"`
	AllowFractionalShares *bool    `json:"allow_fractional_shares,omitempty"`
	TransactionCostBps    *float64 `json:"transaction_cost_bps,omitempty"`
}

// Merge applies overrides to a copy of c and validates the result.
func (c TradingConstraints) Merge(o Overrides) (TradingConstraints, error) {
	if o.MinTradeValue != nil {
		c.MinTradeValue = *o.MinTradeValue
	}
	if o.RebalanceThreshold != nil {
		c.RebalanceThreshold = *o.RebalanceThreshold
	}
	if o.MaxTurnover != nil {
		c.MaxTurnover = o.MaxTurnover
	}
	if o.MinLiquidity != nil {
		c.MinLiquidity = *o.MinLiquidity
	}
	if o.MaxPositionSize != nil {
		c.MaxPositionSize = o.MaxPositionSize
	}
	if o.AllowFractionalShares != nil {
		c.AllowFractionalShares = *o.AllowFractionalShares
	}
	if o.TransactionCostBps != nil {
		c.TransactionCostBps = *o.TransactionCostBps
	}
	if err := c.Validate(); err != nil {
		return TradingConstraints{}, err
	}
	return c, nil
}

func ptr(v float64) *float64 { return &v }
