// Package handlers exposes goal CRUD, position and cash endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/faroinvest/faro/internal/domain"
	"github.com/faroinvest/faro/internal/modules/goals"
)

// Handlers provides HTTP handlers for goal endpoints.
type Handlers struct {
	service *goals.Service
	log     zerolog.Logger
}

// NewHandlers creates a new goals handlers instance.
func NewHandlers(service *goals.Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("module", "goals_handlers").Logger(),
	}
}

// RegisterRoutes registers all goal routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/goals", func(r chi.Router) {
		r.Post("/", h.CreateGoal)
		r.Get("/", h.ListGoals)
		r.Get("/{id}", h.GetGoal)
		r.Patch("/{id}", h.UpdateGoal)
		r.Delete("/{id}", h.DeleteGoal)
		r.Post("/{id}/positions", h.AddPosition)
		r.Post("/{id}/deposit", h.Deposit)
		r.Post("/{id}/withdraw", h.Withdraw)
	})
}

// PositionResponse is one holding in a goal response.
type PositionResponse struct {
	Ticker            string  `json:"ticker"`
	AssetName         string  `json:"asset_name"`
	AssetType         string  `json:"asset_type"`
	CurrentPrice      float64 `json:"current_price"`
	Shares            float64 `json:"shares"`
	MarketValue       float64 `json:"market_value"`
	TargetAllocation  float64 `json:"target_allocation"`
	CurrentAllocation float64 `json:"current_allocation"`
	Deposited         float64 `json:"deposited"`
}

// GoalResponse is the canonical representation of a goal.
type GoalResponse struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	GoalType     string             `json:"goal_type"`
	RiskProfile  string             `json:"risk_profile"`
	Balance      float64            `json:"balance"`
	NetDeposited float64            `json:"net_deposited"`
	Earned       float64            `json:"earned"`
	Cash         float64            `json:"cash"`
	TargetAmount *float64           `json:"target_amount,omitempty"`
	TargetDate   *time.Time         `json:"target_date,omitempty"`
	ProgressPct  *float64           `json:"progress_pct,omitempty"`
	Positions    []PositionResponse `json:"positions"`
	Drift        map[string]float64 `json:"allocation_drift"`
	CreatedAt    time.Time          `json:"created_at"`
}

func goalResponse(goal *domain.Goal) GoalResponse {
	positions := make([]PositionResponse, 0, len(goal.Portfolio.Positions))
	for ticker, pos := range goal.Portfolio.Positions {
		positions = append(positions, PositionResponse{
			Ticker:            ticker,
			AssetName:         pos.Asset.Name,
			AssetType:         string(pos.Asset.Type),
			CurrentPrice:      pos.Asset.CurrentPrice,
			Shares:            pos.Shares,
			MarketValue:       pos.MarketValue(),
			TargetAllocation:  pos.TargetAllocation,
			CurrentAllocation: goal.Portfolio.CurrentAllocation(ticker),
			Deposited:         pos.Deposited,
		})
	}

	return GoalResponse{
		ID:           goal.ID,
		Name:         goal.Name,
		GoalType:     string(goal.Type),
		RiskProfile:  string(goal.RiskProfile),
		Balance:      goal.Balance(),
		NetDeposited: goal.NetDeposited(),
		Earned:       goal.Earned(),
		Cash:         goal.Portfolio.Cash,
		TargetAmount: goal.TargetAmount,
		TargetDate:   goal.TargetDate,
		ProgressPct:  goal.ProgressPercentage(),
		Positions:    positions,
		Drift:        goal.Portfolio.AllocationDrift(),
		CreatedAt:    goal.CreatedAt,
	}
}

// CreateGoalRequest is the request body for creating a goal.
type CreateGoalRequest struct {
	Name         string     `json:"name"`
	GoalType     string     `json:"goal_type"`
	RiskProfile  string     `json:"risk_profile"`
	InitialCash  float64    `json:"initial_cash"`
	TargetAmount *float64   `json:"target_amount,omitempty"`
	TargetDate   *time.Time `json:"target_date,omitempty"`
}

// CreateGoal creates a new goal.
func (h *Handlers) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req CreateGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	goal, err := h.service.CreateGoal(goals.CreateGoalParams{
		Name:         req.Name,
		Type:         domain.GoalType(req.GoalType),
		RiskProfile:  domain.RiskProfile(req.RiskProfile),
		InitialCash:  req.InitialCash,
		TargetAmount: req.TargetAmount,
		TargetDate:   req.TargetDate,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, goalResponse(goal))
}

// ListGoals returns all goals.
func (h *Handlers) ListGoals(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListGoals()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list goals")
		http.Error(w, "Failed to list goals", http.StatusInternalServerError)
		return
	}

	responses := make([]GoalResponse, 0, len(list))
	for _, goal := range list {
		responses = append(responses, goalResponse(goal))
	}
	h.respondJSON(w, http.StatusOK, responses)
}

// GetGoal returns a single goal by id.
func (h *Handlers) GetGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := h.service.GetGoal(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, goalResponse(goal))
}

// UpdateGoalRequest is the request body for updating a goal.
type UpdateGoalRequest struct {
	Name         *string    `json:"name,omitempty"`
	TargetAmount *float64   `json:"target_amount,omitempty"`
	TargetDate   *time.Time `json:"target_date,omitempty"`
}

// UpdateGoal applies partial updates to a goal.
func (h *Handlers) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	var req UpdateGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	goal, err := h.service.UpdateGoal(chi.URLParam(r, "id"), goals.UpdateGoalParams{
		Name:         req.Name,
		TargetAmount: req.TargetAmount,
		TargetDate:   req.TargetDate,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, goalResponse(goal))
}

// DeleteGoal removes a goal and its positions.
func (h *Handlers) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteGoal(chi.URLParam(r, "id")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddPositionRequest is the request body for adding a position.
type AddPositionRequest struct {
	Ticker           string  `json:"ticker"`
	AssetName        string  `json:"asset_name"`
	AssetType        string  `json:"asset_type"`
	CurrentPrice     float64 `json:"current_price"`
	Currency         string  `json:"currency"`
	Shares           float64 `json:"shares"`
	TargetAllocation float64 `json:"target_allocation"`
	Deposited        float64 `json:"deposited"`
}

// AddPosition adds or replaces a position in a goal's portfolio.
func (h *Handlers) AddPosition(w http.ResponseWriter, r *http.Request) {
	var req AddPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	goal, err := h.service.AddPosition(chi.URLParam(r, "id"), goals.PositionParams{
		Ticker:           req.Ticker,
		AssetName:        req.AssetName,
		AssetType:        domain.AssetType(req.AssetType),
		CurrentPrice:     req.CurrentPrice,
		Currency:         req.Currency,
		Shares:           req.Shares,
		TargetAllocation: req.TargetAllocation,
		Deposited:        req.Deposited,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, goalResponse(goal))
}

// CashRequest is the request body for deposits and withdrawals.
type CashRequest struct {
	Amount float64 `json:"amount"`
}

// Deposit adds cash to a goal.
func (h *Handlers) Deposit(w http.ResponseWriter, r *http.Request) {
	h.cashMovement(w, r, h.service.Deposit)
}

// Withdraw removes cash from a goal.
func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.cashMovement(w, r, h.service.Withdraw)
}

func (h *Handlers) cashMovement(w http.ResponseWriter, r *http.Request, move func(string, float64) (*domain.Goal, error)) {
	var req CashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	goal, err := move(chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, goalResponse(goal))
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError maps service errors to status codes: missing resources are
// 404, violated business rules are 422, everything else is treated as a
// rejected input.
func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, goals.ErrGoalNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, goals.ErrInsufficientCash):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.log.Debug().Err(err).Msg("Request rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
