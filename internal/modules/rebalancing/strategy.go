package rebalancing

import (
	"fmt"
	"math"
	"sort"

	"github.com/faroinvest/faro/internal/domain"
	"github.com/faroinvest/faro/internal/modules/constraints"
)

// Strategy computes the trades needed to rebalance a portfolio. The
// portfolio is read-only input; executing trades is the caller's job.
type Strategy interface {
	Name() string
	Rebalance(portfolio *domain.Portfolio) (*Result, error)
}

// base carries the trading constraints and the helpers shared by all
// strategies: drift-to-trade conversion, the constraint pipeline, cost
// estimation and final-allocation projection.
type base struct {
	constraints constraints.TradingConstraints
}

// tradesFromWeights converts per-ticker weight gaps into raw trades.
// reference maps ticker to the weight the portfolio should move toward
// (target allocations for the threshold strategy, optimal weights for the
// CVaR strategy). Tickers not currently held are skipped; the engine only
// trades assets already present in the portfolio.
func (b *base) tradesFromWeights(portfolio *domain.Portfolio, reference map[string]float64) ([]Trade, error) {
	totalValue := portfolio.TotalValue()
	if totalValue == 0 {
		return nil, nil
	}

	// Deterministic trade order regardless of map iteration.
	tickers := make([]string, 0, len(reference))
	for ticker := range reference {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	var trades []Trade
	for _, ticker := range tickers {
		position, held := portfolio.Positions[ticker]
		if !held {
			continue
		}

		drift := reference[ticker] - portfolio.CurrentAllocation(ticker)
		if math.Abs(drift) < b.constraints.RebalanceThreshold {
			continue
		}

		valueToTrade := drift * totalValue
		shares := math.Abs(valueToTrade) / position.Asset.CurrentPrice
		if !b.constraints.AllowFractionalShares {
			shares = math.Trunc(shares)
		}
		if shares == 0 {
			continue
		}

		side := SideBuy
		reason := fmt.Sprintf("Underweight by %.2f%%", drift*100)
		if drift < 0 {
			side = SideSell
			reason = fmt.Sprintf("Overweight by %.2f%%", math.Abs(drift)*100)
		}

		trade, err := NewTrade(ticker, side, shares, position.Asset.CurrentPrice, reason)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	return trades, nil
}

// applyConstraints runs the first two constraint passes: the minimum
// trade value filter and the proportional turnover scale-down.
func (b *base) applyConstraints(trades []Trade, portfolio *domain.Portfolio) []Trade {
	filtered := make([]Trade, 0, len(trades))
	for _, t := range trades {
		if t.Value >= b.constraints.MinTradeValue {
			filtered = append(filtered, t)
		}
	}

	if b.constraints.MaxTurnover != nil {
		totalTurnover := 0.0
		for _, t := range filtered {
			totalTurnover += t.Value
		}
		maxAllowed := *b.constraints.MaxTurnover * portfolio.TotalValue()

		if totalTurnover > maxAllowed && totalTurnover > 0 {
			// Scale every trade uniformly so relative sizes are preserved.
			scale := maxAllowed / totalTurnover
			scaled := make([]Trade, 0, len(filtered))
			for _, t := range filtered {
				scaled = append(scaled, Trade{
					Ticker: t.Ticker,
					Side:   t.Side,
					Shares: t.Shares * scale,
					Price:  t.Price,
					Value:  t.Value * scale,
					Reason: t.Reason + " (scaled by turnover constraint)",
				})
			}
			filtered = scaled
		}
	}

	return filtered
}

// transactionCost estimates the cost of executing trades:
// total traded value times the basis-point rate.
func (b *base) transactionCost(trades []Trade) float64 {
	total := 0.0
	for _, t := range trades {
		total += t.Value
	}
	return total * b.constraints.TransactionCostBps / 10000
}

// tradeTotals sums buy and sell values.
func tradeTotals(trades []Trade) (totalBuy, totalSell float64) {
	for _, t := range trades {
		if t.Side == SideBuy {
			totalBuy += t.Value
		} else {
			totalSell += t.Value
		}
	}
	return totalBuy, totalSell
}

// applyLiquidityFloor is the third constraint pass. If the projected
// post-trade cash falls below the liquidity floor, BUY trades are reduced
// proportionally and re-filtered against the minimum trade value. A
// single pass only, not a fixed-point search: a pathological constraint
// combination can leave cash slightly under the floor, which is an
// accepted approximation.
func (b *base) applyLiquidityFloor(trades []Trade, portfolio *domain.Portfolio) ([]Trade, float64, float64, float64) {
	totalBuy, totalSell := tradeTotals(trades)
	cost := b.transactionCost(trades)

	totalValue := portfolio.TotalValue()
	finalCash := portfolio.Cash + totalSell - totalBuy - cost
	minCashRequired := b.constraints.MinLiquidity * totalValue

	if finalCash >= minCashRequired || totalBuy <= 0 {
		return trades, totalBuy, totalSell, cost
	}

	deficit := minCashRequired - finalCash
	reduction := math.Max(0, (totalBuy-deficit)/totalBuy)

	adjusted := make([]Trade, 0, len(trades))
	for _, t := range trades {
		if t.Side != SideBuy {
			adjusted = append(adjusted, t)
			continue
		}

		shares := t.Shares * reduction
		if !b.constraints.AllowFractionalShares {
			shares = math.Trunc(shares)
		}
		value := shares * t.Price
		if value < b.constraints.MinTradeValue {
			continue
		}
		adjusted = append(adjusted, Trade{
			Ticker: t.Ticker,
			Side:   t.Side,
			Shares: shares,
			Price:  t.Price,
			Value:  value,
			Reason: t.Reason + " (adjusted for liquidity)",
		})
	}

	totalBuy, totalSell = tradeTotals(adjusted)
	return adjusted, totalBuy, totalSell, b.transactionCost(adjusted)
}

// estimateFinalAllocations projects the accepted trades onto a copy of
// the current holdings and recomputes each ticker's share of the new
// total value. Cash is part of the denominator but not of the map.
func (b *base) estimateFinalAllocations(portfolio *domain.Portfolio, trades []Trade) map[string]float64 {
	finalShares := make(map[string]float64, len(portfolio.Positions))
	for ticker, pos := range portfolio.Positions {
		finalShares[ticker] = pos.Shares
	}

	for _, t := range trades {
		if t.Side == SideBuy {
			finalShares[t.Ticker] += t.Shares
		} else {
			finalShares[t.Ticker] -= t.Shares
			if finalShares[t.Ticker] <= 0 {
				delete(finalShares, t.Ticker)
			}
		}
	}

	totalBuy, totalSell := tradeTotals(trades)
	finalCash := portfolio.Cash + totalSell - totalBuy - b.transactionCost(trades)

	finalTotal := finalCash
	for ticker, shares := range finalShares {
		finalTotal += shares * portfolio.Positions[ticker].Asset.CurrentPrice
	}

	allocations := make(map[string]float64, len(finalShares))
	for ticker, shares := range finalShares {
		if finalTotal > 0 {
			allocations[ticker] = shares * portfolio.Positions[ticker].Asset.CurrentPrice / finalTotal
		} else {
			allocations[ticker] = 0
		}
	}

	return allocations
}

// maxAbsDrift returns the largest absolute drift across positions.
func maxAbsDrift(drifts map[string]float64) float64 {
	maxDrift := 0.0
	for _, d := range drifts {
		if math.Abs(d) > maxDrift {
			maxDrift = math.Abs(d)
		}
	}
	return maxDrift
}

// buildResult assembles the common parts of a rebalance result.
func (b *base) buildResult(portfolio *domain.Portfolio, trades []Trade, totalBuy, totalSell, cost float64) *Result {
	totalValue := portfolio.TotalValue()
	turnoverPct := 0.0
	if totalValue > 0 {
		totalTraded := 0.0
		for _, t := range trades {
			totalTraded += t.Value
		}
		turnoverPct = totalTraded / totalValue * 100
	}

	return &Result{
		Trades:           trades,
		TotalBuyValue:    totalBuy,
		TotalSellValue:   totalSell,
		EstimatedCost:    cost,
		FinalAllocations: b.estimateFinalAllocations(portfolio, trades),
		Metrics: ResultMetrics{
			NumTrades:      len(trades),
			TurnoverPct:    turnoverPct,
			MaxDriftBefore: maxAbsDrift(portfolio.AllocationDrift()),
		},
	}
}
