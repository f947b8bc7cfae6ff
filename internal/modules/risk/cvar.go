// Package risk provides tail-risk estimators, Monte Carlo return
// simulators and standard risk ratios.
//
// CVaR (expected shortfall) is the primary risk measure here. Unlike VaR
// it is a coherent measure and captures the magnitude of extreme losses,
// not just their probability.
//
// Reference: Rockafellar & Uryasev (2000), "Optimization of Conditional
// Value-at-Risk".
package risk

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// CVaRCalculator estimates CVaR and VaR from a return sample at a fixed
// confidence level.
type CVaRCalculator struct {
	confidenceLevel float64
	alpha           float64 // tail probability, 1 - confidence
}

// NewCVaRCalculator creates a calculator. The confidence level must be in
// (0, 1); CVaR at 0.95 is the mean of the worst 5% of returns.
func NewCVaRCalculator(confidenceLevel float64) (*CVaRCalculator, error) {
	if confidenceLevel <= 0 || confidenceLevel >= 1 {
		return nil, fmt.Errorf("confidence level must be between 0 and 1, got %v", confidenceLevel)
	}
	return &CVaRCalculator{
		confidenceLevel: confidenceLevel,
		alpha:           1 - confidenceLevel,
	}, nil
}

// ConfidenceLevel returns the configured confidence level.
func (c *CVaRCalculator) ConfidenceLevel() float64 {
	return c.confidenceLevel
}

// CVaR computes Conditional Value-at-Risk of a return sample:
// the mean of the tail returns below the VaR threshold, reported as an
// absolute value (positive means expected loss). An empty sample is a
// precondition violation, never a silent zero; this measure feeds capital
// allocation decisions.
func (c *CVaRCalculator) CVaR(returns []float64) (float64, error) {
	tail, err := c.tailReturns(returns)
	if err != nil {
		return 0, err
	}
	return math.Abs(stat.Mean(tail, nil)), nil
}

// VaR computes Value-at-Risk: the loss threshold at the tail boundary,
// reported as an absolute value.
func (c *CVaRCalculator) VaR(returns []float64) (float64, error) {
	tail, err := c.tailReturns(returns)
	if err != nil {
		return 0, err
	}
	return math.Abs(tail[len(tail)-1]), nil
}

// tailReturns sorts the sample ascending and returns the worst
// max(1, ceil(alpha*n)) observations.
func (c *CVaRCalculator) tailReturns(returns []float64) ([]float64, error) {
	if len(returns) == 0 {
		return nil, fmt.Errorf("returns sample must not be empty")
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	nTail := int(math.Ceil(c.alpha * float64(len(sorted))))
	if nTail < 1 {
		nTail = 1
	}

	return sorted[:nTail], nil
}
