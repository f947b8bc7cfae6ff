// Package handlers exposes the rebalance HTTP endpoint.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/faroinvest/faro/internal/domain"
	"github.com/faroinvest/faro/internal/modules/constraints"
	"github.com/faroinvest/faro/internal/modules/goals"
	"github.com/faroinvest/faro/internal/modules/rebalancing"
)

// Handlers provides HTTP handlers for rebalancing endpoints.
type Handlers struct {
	goalService      *goals.Service
	estimator        rebalancing.MarketEstimator
	defaultScenarios int
	log              zerolog.Logger
}

// NewHandlers creates a new rebalancing handlers instance.
func NewHandlers(goalService *goals.Service, estimator rebalancing.MarketEstimator, defaultScenarios int, log zerolog.Logger) *Handlers {
	if defaultScenarios <= 0 {
		defaultScenarios = 1000
	}
	return &Handlers{
		goalService:      goalService,
		estimator:        estimator,
		defaultScenarios: defaultScenarios,
		log:              log.With().Str("module", "rebalancing_handlers").Logger(),
	}
}

// RegisterRoutes registers all rebalancing routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/goals/{id}/rebalance", h.Rebalance)
}

// RebalanceRequest is the request body for a rebalance run.
type RebalanceRequest struct {
	Strategy        string                 `json:"strategy"`
	DryRun          *bool                  `json:"dry_run,omitempty"`
	Constraints     *constraints.Overrides `json:"constraints,omitempty"`
	Scenarios       int                    `json:"scenarios,omitempty"`
	ConfidenceLevel float64                `json:"confidence_level,omitempty"`
	Seed            *uint64                `json:"seed,omitempty"`
}

// RebalanceResponse is the outcome of a rebalance run.
type RebalanceResponse struct {
	GoalID             string                    `json:"goal_id"`
	Strategy           string                    `json:"strategy"`
	DryRun             bool                      `json:"dry_run"`
	Trades             []rebalancing.Trade       `json:"trades"`
	TotalBuyValue      float64                   `json:"total_buy_value"`
	TotalSellValue     float64                   `json:"total_sell_value"`
	EstimatedCost      float64                   `json:"estimated_cost"`
	NetCashChange      float64                   `json:"net_cash_change"`
	CurrentAllocations map[string]float64        `json:"current_allocations"`
	TargetAllocations  map[string]float64        `json:"target_allocations"`
	FinalAllocations   map[string]float64        `json:"final_allocations"`
	MaxDriftBefore     float64                   `json:"max_drift_before"`
	MaxDriftAfter      float64                   `json:"max_drift_after"`
	Metrics            rebalancing.ResultMetrics `json:"metrics"`
	Message            string                    `json:"message"`
}

// Rebalance runs the requested strategy against a goal's portfolio.
// Dry-run by default; with dry_run=false the resulting trades are
// executed against the goal before responding.
func (h *Handlers) Rebalance(w http.ResponseWriter, r *http.Request) {
	goalID := chi.URLParam(r, "id")

	var req RebalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	goal, err := h.goalService.GetGoal(goalID)
	if err != nil {
		if errors.Is(err, goals.ErrGoalNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("goal_id", goalID).Msg("Failed to load goal")
		http.Error(w, "Failed to load goal", http.StatusInternalServerError)
		return
	}

	tradingConstraints := constraints.ForRiskProfile(goal.RiskProfile)
	if req.Constraints != nil {
		tradingConstraints, err = tradingConstraints.Merge(*req.Constraints)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	strategy, err := h.buildStrategy(req, tradingConstraints)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := strategy.Rebalance(goal.Portfolio)
	if err != nil {
		h.log.Error().Err(err).Str("goal_id", goalID).Str("strategy", strategy.Name()).Msg("Rebalance failed")
		http.Error(w, "Rebalance failed", http.StatusInternalServerError)
		return
	}

	dryRun := req.DryRun == nil || *req.DryRun
	if !dryRun {
		if _, err := h.goalService.ApplyTrades(goalID, result); err != nil {
			if errors.Is(err, goals.ErrInsufficientCash) {
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
				return
			}
			h.log.Error().Err(err).Str("goal_id", goalID).Msg("Failed to apply trades")
			http.Error(w, "Failed to apply trades", http.StatusInternalServerError)
			return
		}
	}

	response := buildResponse(goal, strategy.Name(), dryRun, result)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handlers) buildStrategy(req RebalanceRequest, c constraints.TradingConstraints) (rebalancing.Strategy, error) {
	switch req.Strategy {
	case "", "threshold":
		return rebalancing.NewThresholdStrategy(c, h.log)
	case "cvar":
		scenarios := req.Scenarios
		if scenarios <= 0 {
			scenarios = h.defaultScenarios
		}
		return rebalancing.NewCVaRStrategy(c, h.estimator, rebalancing.CVaRConfig{
			Scenarios:       scenarios,
			ConfidenceLevel: req.ConfidenceLevel,
			Seed:            req.Seed,
		}, h.log)
	default:
		return nil, fmt.Errorf("unknown strategy %q, expected threshold or cvar", req.Strategy)
	}
}

func buildResponse(goal *domain.Goal, strategyName string, dryRun bool, result *rebalancing.Result) RebalanceResponse {
	targets := goal.Portfolio.TargetAllocations()

	maxDriftAfter := 0.0
	for ticker, target := range targets {
		drift := math.Abs(target - result.FinalAllocations[ticker])
		if drift > maxDriftAfter {
			maxDriftAfter = drift
		}
	}

	message := "No trades needed, portfolio is within its rebalance threshold"
	if len(result.Trades) > 0 {
		verb := "proposed"
		if !dryRun {
			verb = "executed"
		}
		message = fmt.Sprintf("%d trades %s", len(result.Trades), verb)
	}

	return RebalanceResponse{
		GoalID:             goal.ID,
		Strategy:           strategyName,
		DryRun:             dryRun,
		Trades:             result.Trades,
		TotalBuyValue:      result.TotalBuyValue,
		TotalSellValue:     result.TotalSellValue,
		EstimatedCost:      result.EstimatedCost,
		NetCashChange:      result.NetCashChange(),
		CurrentAllocations: goal.Portfolio.CurrentAllocations(),
		TargetAllocations:  targets,
		FinalAllocations:   result.FinalAllocations,
		MaxDriftBefore:     result.Metrics.MaxDriftBefore,
		MaxDriftAfter:      maxDriftAfter,
		Metrics:            result.Metrics,
		Message:            message,
	}
}
