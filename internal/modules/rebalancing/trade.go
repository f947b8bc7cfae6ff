// Package rebalancing generates constrained trade lists that move a
// portfolio toward its target allocations. Strategies are pluggable: a
// deterministic threshold strategy and a CVaR-minimizing optimization
// strategy share the same constraint pipeline.
//
// Strategies never mutate the portfolio they rebalance. Executing the
// resulting trades is an explicit, separate step owned by the caller.
package rebalancing

import "fmt"

// TradeSide is the direction of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// Trade is a single rebalancing instruction. Value objects: constructed
// fresh for every rebalance, never mutated afterwards.
type Trade struct {
	Ticker string    `json:"ticker"`
	Side   TradeSide `json:"side"`
	Shares float64   `json:"shares"`
	Price  float64   `json:"price"`
	Value  float64   `json:"value"`
	Reason string    `json:"reason"`
}

// NewTrade constructs a validated trade.
func NewTrade(ticker string, side TradeSide, shares, price float64, reason string) (Trade, error) {
	if side != SideBuy && side != SideSell {
		return Trade{}, fmt.Errorf("trade side must be BUY or SELL, got %q", side)
	}
	if shares < 0 {
		return Trade{}, fmt.Errorf("trade shares must be >= 0, got %v", shares)
	}
	return Trade{
		Ticker: ticker,
		Side:   side,
		Shares: shares,
		Price:  price,
		Value:  shares * price,
		Reason: reason,
	}, nil
}

// ResultMetrics is the summary metrics bag attached to a rebalance result.
// OptimalWeights and UsedFallback are only set by the CVaR strategy.
type ResultMetrics struct {
	NumTrades      int                `json:"n_trades"`
	TurnoverPct    float64            `json:"turnover_pct"`
	MaxDriftBefore float64            `json:"max_drift_before"`
	OptimalWeights map[string]float64 `json:"optimal_weights,omitempty"`
	OptimizedCVaR  float64            `json:"optimized_cvar,omitempty"`
	UsedFallback   bool               `json:"used_fallback,omitempty"`
}

// Result is the outcome of one rebalance invocation: the accepted trades
// plus derived totals. Ephemeral; the engine never persists it.
type Result struct {
	Trades           []Trade            `json:"trades"`
	TotalBuyValue    float64            `json:"total_buy_value"`
	TotalSellValue   float64            `json:"total_sell_value"`
	EstimatedCost    float64            `json:"estimated_cost"`
	FinalAllocations map[string]float64 `json:"final_allocations"`
	Metrics          ResultMetrics      `json:"metrics"`
}

// NetCashChange is the cash delta from executing all trades.
// Negative means the rebalance consumes cash, positive means it frees cash.
func (r *Result) NetCashChange() float64 {
	return r.TotalSellValue - r.TotalBuyValue - r.EstimatedCost
}

// Turnover is the portfolio rotation of this rebalance:
// the average of total buy and total sell value.
func (r *Result) Turnover() float64 {
	return (r.TotalBuyValue + r.TotalSellValue) / 2
}
