// Package domain holds the pure domain model for goals, portfolios,
// positions and assets. No infrastructure dependencies live here; all
// derived figures (market value, allocations, drift) are computed on
// demand rather than cached, so they can never go stale after a mutation.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// AssetType categorizes a tradable asset.
type AssetType string

const (
	AssetTypeStock AssetType = "stock"
	AssetTypeBond  AssetType = "bond"
	AssetTypeFund  AssetType = "fund"
	AssetTypeETF   AssetType = "etf"
)

// RiskProfile drives which trading constraint preset applies to a goal.
type RiskProfile string

const (
	RiskVeryConservative RiskProfile = "very_conservative"
	RiskConservative     RiskProfile = "conservative"
	RiskModerate         RiskProfile = "moderate"
	RiskRisky            RiskProfile = "risky"
)

// ParseRiskProfile validates a risk profile string.
func ParseRiskProfile(s string) (RiskProfile, error) {
	switch RiskProfile(s) {
	case RiskVeryConservative, RiskConservative, RiskModerate, RiskRisky:
		return RiskProfile(s), nil
	default:
		return "", fmt.Errorf("unknown risk profile: %q", s)
	}
}

// GoalType describes what the user is saving for.
type GoalType string

const (
	GoalRetirement GoalType = "retirement"
	GoalSavings    GoalType = "savings"
	GoalVacation   GoalType = "vacation"
	GoalHouse      GoalType = "house"
	GoalEducation  GoalType = "education"
	GoalEmergency  GoalType = "emergency"
	GoalOther      GoalType = "other"
)

// Asset is a single tradable instrument. The price is the only mutable
// field; identity fields are fixed at construction.
type Asset struct {
	Ticker       string
	Name         string
	Type         AssetType
	CurrentPrice float64
	Currency     string
	LastUpdated  time.Time
}

// NewAsset creates a validated asset. The ticker is normalized to
// upper-case; the price must be strictly positive.
func NewAsset(ticker, name string, assetType AssetType, price float64, currency string) (*Asset, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("asset ticker must not be empty")
	}
	if price <= 0 {
		return nil, fmt.Errorf("asset price must be positive, got %v", price)
	}
	if name == "" {
		name = ticker
	}
	if currency == "" {
		currency = "USD"
	}
	if assetType == "" {
		assetType = AssetTypeStock
	}
	return &Asset{
		Ticker:       ticker,
		Name:         name,
		Type:         assetType,
		CurrentPrice: price,
		Currency:     currency,
		LastUpdated:  time.Now(),
	}, nil
}

// UpdatePrice replaces the current market price.
func (a *Asset) UpdatePrice(price float64) error {
	if price <= 0 {
		return fmt.Errorf("asset price must be positive, got %v", price)
	}
	a.CurrentPrice = price
	a.LastUpdated = time.Now()
	return nil
}

// Position is a holding inside a portfolio: the asset, how much of it is
// held, the target weight it should converge to, and the amount the user
// originally put in (for earned/deposited tracking).
type Position struct {
	Asset            *Asset
	Shares           float64
	TargetAllocation float64
	Deposited        float64
}

// NewPosition creates a validated position.
func NewPosition(asset *Asset, shares, targetAllocation, deposited float64) (*Position, error) {
	if asset == nil {
		return nil, fmt.Errorf("position requires an asset")
	}
	if shares < 0 {
		return nil, fmt.Errorf("shares must be >= 0, got %v", shares)
	}
	if targetAllocation < 0 || targetAllocation > 1 {
		return nil, fmt.Errorf("target allocation must be in [0, 1], got %v", targetAllocation)
	}
	if deposited < 0 {
		return nil, fmt.Errorf("deposited must be >= 0, got %v", deposited)
	}
	return &Position{
		Asset:            asset,
		Shares:           shares,
		TargetAllocation: targetAllocation,
		Deposited:        deposited,
	}, nil
}

// MarketValue is shares times the asset's current price.
func (p *Position) MarketValue() float64 {
	return p.Shares * p.Asset.CurrentPrice
}

// Portfolio is the internal composition of a goal: positions keyed by
// ticker plus a cash balance.
type Portfolio struct {
	ID        string
	Positions map[string]*Position
	Cash      float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPortfolio creates an empty portfolio with the given starting cash.
func NewPortfolio(id string, cash float64) (*Portfolio, error) {
	if id == "" {
		return nil, fmt.Errorf("portfolio id must not be empty")
	}
	if cash < 0 {
		return nil, fmt.Errorf("cash must be >= 0, got %v", cash)
	}
	now := time.Now()
	return &Portfolio{
		ID:        id,
		Positions: make(map[string]*Position),
		Cash:      cash,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// TotalValue is the portfolio balance: position market values plus cash.
func (pf *Portfolio) TotalValue() float64 {
	total := pf.Cash
	for _, pos := range pf.Positions {
		total += pos.MarketValue()
	}
	return total
}

// TotalDeposited is the net amount put into the portfolio.
func (pf *Portfolio) TotalDeposited() float64 {
	total := pf.Cash
	for _, pos := range pf.Positions {
		total += pos.Deposited
	}
	return total
}

// TotalEarned is total gain or loss: balance minus net deposits.
func (pf *Portfolio) TotalEarned() float64 {
	return pf.TotalValue() - pf.TotalDeposited()
}

// CurrentAllocation returns the fraction of total value held in ticker.
// Returns 0 for an unknown ticker or an empty portfolio.
func (pf *Portfolio) CurrentAllocation(ticker string) float64 {
	total := pf.TotalValue()
	if total == 0 {
		return 0
	}
	pos, ok := pf.Positions[ticker]
	if !ok {
		return 0
	}
	return pos.MarketValue() / total
}

// CurrentAllocations returns the current weight of every held ticker.
func (pf *Portfolio) CurrentAllocations() map[string]float64 {
	allocations := make(map[string]float64, len(pf.Positions))
	for ticker := range pf.Positions {
		allocations[ticker] = pf.CurrentAllocation(ticker)
	}
	return allocations
}

// TargetAllocations returns the target weight of every held ticker.
func (pf *Portfolio) TargetAllocations() map[string]float64 {
	targets := make(map[string]float64, len(pf.Positions))
	for ticker, pos := range pf.Positions {
		targets[ticker] = pos.TargetAllocation
	}
	return targets
}

// AllocationDrift returns target minus current weight per ticker.
// Positive drift means the position is underweight (buy side), negative
// means overweight (sell side).
func (pf *Portfolio) AllocationDrift() map[string]float64 {
	drifts := make(map[string]float64, len(pf.Positions))
	for ticker, pos := range pf.Positions {
		drifts[ticker] = pos.TargetAllocation - pf.CurrentAllocation(ticker)
	}
	return drifts
}

// AddPosition adds or replaces the position for the asset's ticker.
func (pf *Portfolio) AddPosition(asset *Asset, shares, targetAllocation, deposited float64) error {
	pos, err := NewPosition(asset, shares, targetAllocation, deposited)
	if err != nil {
		return err
	}
	pf.Positions[asset.Ticker] = pos
	pf.UpdatedAt = time.Now()
	return nil
}

// ValidateAllocations reports whether position targets sum to at most 1.
// The sum is not enforced at mutation time; callers check explicitly
// before acting on the targets.
func (pf *Portfolio) ValidateAllocations() bool {
	total := 0.0
	for _, pos := range pf.Positions {
		total += pos.TargetAllocation
	}
	return total <= 1.0+1e-9
}

// Goal is the user-facing savings objective. It exclusively owns its
// portfolio; the portfolio has no life outside the goal.
type Goal struct {
	ID           string
	Name         string
	Type         GoalType
	RiskProfile  RiskProfile
	Portfolio    *Portfolio
	TargetAmount *float64
	TargetDate   *time.Time
	CreatedAt    time.Time
}

// Balance is the goal's current value.
func (g *Goal) Balance() float64 {
	return g.Portfolio.TotalValue()
}

// NetDeposited is the total the user has put in.
func (g *Goal) NetDeposited() float64 {
	return g.Portfolio.TotalDeposited()
}

// Earned is the goal's total gain or loss.
func (g *Goal) Earned() float64 {
	return g.Portfolio.TotalEarned()
}

// ProgressPercentage is balance over target, as a percentage. Nil when no
// target amount is set.
func (g *Goal) ProgressPercentage() *float64 {
	if g.TargetAmount == nil || *g.TargetAmount == 0 {
		return nil
	}
	pct := g.Balance() / *g.TargetAmount * 100
	return &pct
}
