package goals

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/faroinvest/faro/internal/domain"
	"github.com/faroinvest/faro/internal/modules/rebalancing"
)

// Service is the business-logic layer for goals: CRUD, cash movements,
// position management and trade application.
type Service struct {
	repo *Repository
	log  zerolog.Logger

	// Asset cache by ticker. Re-adding a position with a known ticker
	// refreshes the cached price instead of minting a new asset.
	mu     sync.Mutex
	assets map[string]*domain.Asset
}

// NewService creates a goal service.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		log:    log.With().Str("service", "goals").Logger(),
		assets: make(map[string]*domain.Asset),
	}
}

// CreateGoalParams holds the input for a new goal.
type CreateGoalParams struct {
	Name         string
	Type         domain.GoalType
	RiskProfile  domain.RiskProfile
	InitialCash  float64
	TargetAmount *float64
	TargetDate   *time.Time
}

// UpdateGoalParams holds optional goal updates; nil fields are untouched.
type UpdateGoalParams struct {
	Name         *string
	TargetAmount *float64
	TargetDate   *time.Time
}

// PositionParams holds the input for adding or updating a position.
type PositionParams struct {
	Ticker           string
	AssetName        string
	AssetType        domain.AssetType
	CurrentPrice     float64
	Currency         string
	Shares           float64
	TargetAllocation float64
	Deposited        float64
}

// CreateGoal creates a goal with an empty portfolio holding the initial
// cash.
func (s *Service) CreateGoal(params CreateGoalParams) (*domain.Goal, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("goal name must not be empty")
	}
	if _, err := domain.ParseRiskProfile(string(params.RiskProfile)); err != nil {
		return nil, err
	}
	if params.TargetAmount != nil && *params.TargetAmount <= 0 {
		return nil, fmt.Errorf("target amount must be positive, got %v", *params.TargetAmount)
	}

	portfolio, err := domain.NewPortfolio("port_"+uuid.NewString()[:8], params.InitialCash)
	if err != nil {
		return nil, err
	}

	goal := &domain.Goal{
		ID:           "goal_" + uuid.NewString()[:8],
		Name:         params.Name,
		Type:         params.Type,
		RiskProfile:  params.RiskProfile,
		Portfolio:    portfolio,
		TargetAmount: params.TargetAmount,
		TargetDate:   params.TargetDate,
		CreatedAt:    time.Now(),
	}

	if err := s.repo.Create(goal); err != nil {
		return nil, fmt.Errorf("failed to persist goal: %w", err)
	}

	s.log.Info().
		Str("goal_id", goal.ID).
		Str("risk_profile", string(goal.RiskProfile)).
		Float64("initial_cash", params.InitialCash).
		Msg("Goal created")

	return goal, nil
}

// GetGoal loads a goal by id.
func (s *Service) GetGoal(id string) (*domain.Goal, error) {
	return s.repo.Get(id)
}

// ListGoals loads all goals.
func (s *Service) ListGoals() ([]*domain.Goal, error) {
	return s.repo.List()
}

// UpdateGoal applies the non-nil fields and persists.
func (s *Service) UpdateGoal(id string, params UpdateGoalParams) (*domain.Goal, error) {
	goal, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		if *params.Name == "" {
			return nil, fmt.Errorf("goal name must not be empty")
		}
		goal.Name = *params.Name
	}
	if params.TargetAmount != nil {
		if *params.TargetAmount <= 0 {
			return nil, fmt.Errorf("target amount must be positive, got %v", *params.TargetAmount)
		}
		goal.TargetAmount = params.TargetAmount
	}
	if params.TargetDate != nil {
		goal.TargetDate = params.TargetDate
	}

	if err := s.repo.Save(goal); err != nil {
		return nil, err
	}
	return goal, nil
}

// DeleteGoal removes a goal and its positions.
func (s *Service) DeleteGoal(id string) error {
	if err := s.repo.Delete(id); err != nil {
		return err
	}
	s.log.Info().Str("goal_id", id).Msg("Goal deleted")
	return nil
}

// AddPosition adds or replaces a position in a goal's portfolio. Assets
// are cached by ticker; re-adding a known ticker refreshes its price.
func (s *Service) AddPosition(goalID string, params PositionParams) (*domain.Goal, error) {
	goal, err := s.repo.Get(goalID)
	if err != nil {
		return nil, err
	}

	asset, err := s.resolveAsset(params)
	if err != nil {
		return nil, err
	}

	if err := goal.Portfolio.AddPosition(asset, params.Shares, params.TargetAllocation, params.Deposited); err != nil {
		return nil, err
	}
	if !goal.Portfolio.ValidateAllocations() {
		return nil, fmt.Errorf("target allocations exceed 100%%")
	}

	if err := s.repo.Save(goal); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("goal_id", goalID).
		Str("ticker", asset.Ticker).
		Float64("shares", params.Shares).
		Msg("Position added")

	return goal, nil
}

func (s *Service) resolveAsset(params PositionParams) (*domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticker := params.Ticker
	if cached, ok := s.assets[ticker]; ok {
		if err := cached.UpdatePrice(params.CurrentPrice); err != nil {
			return nil, err
		}
		return cached, nil
	}

	asset, err := domain.NewAsset(ticker, params.AssetName, params.AssetType, params.CurrentPrice, params.Currency)
	if err != nil {
		return nil, err
	}
	s.assets[asset.Ticker] = asset
	return asset, nil
}

// Deposit adds cash to a goal.
func (s *Service) Deposit(goalID string, amount float64) (*domain.Goal, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive, got %v", amount)
	}

	goal, err := s.repo.Get(goalID)
	if err != nil {
		return nil, err
	}

	goal.Portfolio.Cash += amount
	if err := s.repo.Save(goal); err != nil {
		return nil, err
	}

	s.log.Info().Str("goal_id", goalID).Float64("amount", amount).Msg("Cash deposited")
	return goal, nil
}

// Withdraw removes cash from a goal. Withdrawing more than the available
// cash fails with ErrInsufficientCash.
func (s *Service) Withdraw(goalID string, amount float64) (*domain.Goal, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("withdrawal amount must be positive, got %v", amount)
	}

	goal, err := s.repo.Get(goalID)
	if err != nil {
		return nil, err
	}

	if goal.Portfolio.Cash < amount {
		return nil, fmt.Errorf("%w: available %.2f, requested %.2f",
			ErrInsufficientCash, goal.Portfolio.Cash, amount)
	}

	goal.Portfolio.Cash -= amount
	if err := s.repo.Save(goal); err != nil {
		return nil, err
	}

	s.log.Info().Str("goal_id", goalID).Float64("amount", amount).Msg("Cash withdrawn")
	return goal, nil
}

// ApplyTrades executes an accepted rebalance result against the goal's
// portfolio: BUYs consume cash and add shares, SELLs reduce shares and
// free cash, the estimated cost is deducted. The engine itself never
// mutates portfolios; this is the explicit execution step.
func (s *Service) ApplyTrades(goalID string, result *rebalancing.Result) (*domain.Goal, error) {
	goal, err := s.repo.Get(goalID)
	if err != nil {
		return nil, err
	}

	projectedCash := goal.Portfolio.Cash + result.NetCashChange()
	if projectedCash < 0 {
		return nil, fmt.Errorf("%w: trades require %.2f more cash than available",
			ErrInsufficientCash, -projectedCash)
	}

	for _, trade := range result.Trades {
		pos, held := goal.Portfolio.Positions[trade.Ticker]
		if !held {
			return nil, fmt.Errorf("cannot execute trade for %s: position not held", trade.Ticker)
		}

		switch trade.Side {
		case rebalancing.SideBuy:
			pos.Shares += trade.Shares
		case rebalancing.SideSell:
			pos.Shares -= trade.Shares
			if pos.Shares <= 1e-9 {
				delete(goal.Portfolio.Positions, trade.Ticker)
			}
		}
	}

	goal.Portfolio.Cash = projectedCash
	goal.Portfolio.UpdatedAt = time.Now()

	if err := s.repo.Save(goal); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("goal_id", goalID).
		Int("n_trades", len(result.Trades)).
		Float64("net_cash_change", result.NetCashChange()).
		Msg("Trades applied")

	return goal, nil
}

// ValidateAllocations reports whether the goal's target allocations sum
// to at most 1.
func (s *Service) ValidateAllocations(goalID string) (bool, error) {
	goal, err := s.repo.Get(goalID)
	if err != nil {
		return false, err
	}
	return goal.Portfolio.ValidateAllocations(), nil
}
