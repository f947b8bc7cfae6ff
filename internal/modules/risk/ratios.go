package risk

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DefaultRiskFreeRate is the annualized risk-free rate used when callers
// don't supply one.
const DefaultRiskFreeRate = 0.02

// Metrics is the aggregate risk picture of a return sample. CVaR is the
// primary measure; the ratios are secondary diagnostics.
type Metrics struct {
	CVaR              float64 `json:"cvar"`
	VaR               float64 `json:"var"`
	Volatility        float64 `json:"volatility"`
	DownsideDeviation float64 `json:"downside_deviation"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	SharpeRatio       float64 `json:"sharpe_ratio"`
	SortinoRatio      float64 `json:"sortino_ratio"`
}

// SharpeRatio computes the annualized Sharpe ratio of daily returns:
// mean excess return over its standard deviation. Returns 0 for empty
// input or numerically zero volatility rather than dividing by near-zero.
func SharpeRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	dailyRf := riskFreeRate / DefaultPeriods
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - dailyRf
	}

	std := stat.PopStdDev(excess, nil)
	if std < 1e-10 {
		return 0
	}

	return stat.Mean(excess, nil) / std * math.Sqrt(DefaultPeriods)
}

// SortinoRatio computes the annualized Sortino ratio: like Sharpe, but
// only downside volatility counts. Returns 0 when no negative excess
// returns were observed.
func SortinoRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	dailyRf := riskFreeRate / DefaultPeriods
	excess := make([]float64, len(returns))
	var downside []float64
	for i, r := range returns {
		excess[i] = r - dailyRf
		if excess[i] < 0 {
			downside = append(downside, excess[i])
		}
	}

	if len(downside) == 0 {
		return 0
	}
	downsideDev := stat.PopStdDev(downside, nil)
	if downsideDev == 0 {
		return 0
	}

	return stat.Mean(excess, nil) / downsideDev * math.Sqrt(DefaultPeriods)
}

// MaxDrawdown computes the maximum peak-to-trough relative decline over a
// cumulative-return series (e.g. [1.0, 1.1, 1.05]). Returned as an
// absolute value; 0.2 means a 20% decline. A series with no decline
// yields 0.
func MaxDrawdown(cumulativeReturns []float64) float64 {
	if len(cumulativeReturns) == 0 {
		return 0
	}

	runningMax := cumulativeReturns[0]
	maxDrawdown := 0.0
	for _, v := range cumulativeReturns {
		if v > runningMax {
			runningMax = v
		}
		if runningMax != 0 {
			drawdown := (v - runningMax) / runningMax
			if drawdown < maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return math.Abs(maxDrawdown)
}

// Volatility computes the standard deviation of returns, annualized by
// sqrt(252) when requested. Empty input yields 0.
func Volatility(returns []float64, annualize bool) float64 {
	if len(returns) == 0 {
		return 0
	}

	vol := stat.PopStdDev(returns, nil)
	if annualize {
		vol *= math.Sqrt(DefaultPeriods)
	}
	return vol
}

// AllMetrics computes the full metrics bag from daily returns. An empty
// sample yields all-zero metrics; an out-of-range confidence level is an
// error.
func AllMetrics(returns []float64, confidenceLevel, riskFreeRate float64) (Metrics, error) {
	if len(returns) == 0 {
		return Metrics{}, nil
	}

	calc, err := NewCVaRCalculator(confidenceLevel)
	if err != nil {
		return Metrics{}, err
	}

	cvar, err := calc.CVaR(returns)
	if err != nil {
		return Metrics{}, err
	}
	varValue, err := calc.VaR(returns)
	if err != nil {
		return Metrics{}, err
	}

	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	downsideDeviation := 0.0
	if len(downside) > 0 {
		downsideDeviation = stat.PopStdDev(downside, nil) * math.Sqrt(DefaultPeriods)
	}

	// Compound returns into a cumulative series for drawdown.
	cumulative := make([]float64, len(returns))
	acc := 1.0
	for i, r := range returns {
		acc *= 1 + r
		cumulative[i] = acc
	}

	return Metrics{
		CVaR:              cvar,
		VaR:               varValue,
		Volatility:        Volatility(returns, true),
		DownsideDeviation: downsideDeviation,
		MaxDrawdown:       MaxDrawdown(cumulative),
		SharpeRatio:       SharpeRatio(returns, riskFreeRate),
		SortinoRatio:      SortinoRatio(returns, riskFreeRate),
	}, nil
}
