package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faroinvest/faro/internal/database"
	"github.com/faroinvest/faro/internal/domain"
	"github.com/faroinvest/faro/internal/modules/constraints"
	"github.com/faroinvest/faro/internal/modules/goals"
	"github.com/faroinvest/faro/internal/modules/rebalancing"
)

type testEnv struct {
	router  chi.Router
	service *goals.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "goals.db"),
		Name: "goals",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	service := goals.NewService(goals.NewRepository(db, zerolog.Nop()), zerolog.Nop())

	r := chi.NewRouter()
	NewHandlers(service, rebalancing.NewSyntheticEstimator(), 1000, zerolog.Nop()).RegisterRoutes(r)

	return &testEnv{router: r, service: service}
}

// driftedGoal creates a goal whose AAPL position is well below its target
// weight, so a threshold rebalance proposes trades.
func (e *testEnv) driftedGoal(t *testing.T) *domain.Goal {
	t.Helper()

	goal, err := e.service.CreateGoal(goals.CreateGoalParams{
		Name:        "Drifted",
		Type:        domain.GoalSavings,
		RiskProfile: domain.RiskRisky,
		InitialCash: 500,
	})
	require.NoError(t, err)

	_, err = e.service.AddPosition(goal.ID, goals.PositionParams{
		Ticker: "AAPL", AssetType: domain.AssetTypeStock, CurrentPrice: 180.50,
		Shares: 10, TargetAllocation: 0.6, Deposited: 1750,
	})
	require.NoError(t, err)
	_, err = e.service.AddPosition(goal.ID, goals.PositionParams{
		Ticker: "META", AssetType: domain.AssetTypeStock, CurrentPrice: 400,
		Shares: 5, TargetAllocation: 0.4, Deposited: 1950,
	})
	require.NoError(t, err)

	return goal
}

func (e *testEnv) rebalance(t *testing.T, goalID string, req RebalanceRequest) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(req))

	httpReq := httptest.NewRequest(http.MethodPost, "/goals/"+goalID+"/rebalance", &buf)
	httpReq.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httpReq)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) RebalanceResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp RebalanceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestRebalance_ThresholdDryRun(t *testing.T) {
	env := newTestEnv(t)
	goal := env.driftedGoal(t)

	resp := decodeResponse(t, env.rebalance(t, goal.ID, RebalanceRequest{Strategy: "threshold"}))

	assert.True(t, resp.DryRun, "dry run is the default")
	assert.Equal(t, "threshold", resp.Strategy)
	assert.NotEmpty(t, resp.Trades)
	assert.InDelta(t, 0.1807, resp.MaxDriftBefore, 1e-3)
	assert.Less(t, resp.MaxDriftAfter, resp.MaxDriftBefore, "trading reduces drift")

	// Dry run leaves the stored portfolio untouched.
	loaded, err := env.service.GetGoal(goal.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, loaded.Portfolio.Positions["AAPL"].Shares)
	assert.Equal(t, 500.0, loaded.Portfolio.Cash)
}

func TestRebalance_Execute(t *testing.T) {
	env := newTestEnv(t)
	goal := env.driftedGoal(t)

	dryRun := false
	resp := decodeResponse(t, env.rebalance(t, goal.ID, RebalanceRequest{
		Strategy: "threshold",
		DryRun:   &dryRun,
	}))
	require.NotEmpty(t, resp.Trades)

	loaded, err := env.service.GetGoal(goal.ID)
	require.NoError(t, err)
	assert.Greater(t, loaded.Portfolio.Positions["AAPL"].Shares, 10.0, "buys were executed")
	assert.InDelta(t, 500.0+resp.NetCashChange, loaded.Portfolio.Cash, 1e-6)
}

func TestRebalance_ConstraintOverrides(t *testing.T) {
	env := newTestEnv(t)
	goal := env.driftedGoal(t)

	minTrade := 300.0
	resp := decodeResponse(t, env.rebalance(t, goal.ID, RebalanceRequest{
		Strategy:    "threshold",
		Constraints: &constraints.Overrides{MinTradeValue: &minTrade},
	}))

	for _, trade := range resp.Trades {
		assert.GreaterOrEqual(t, trade.Value, 300.0)
	}
}

func TestRebalance_CVaRSeeded(t *testing.T) {
	env := newTestEnv(t)
	goal := env.driftedGoal(t)

	seed := uint64(42)
	req := RebalanceRequest{Strategy: "cvar", Scenarios: 200, Seed: &seed}

	first := decodeResponse(t, env.rebalance(t, goal.ID, req))
	second := decodeResponse(t, env.rebalance(t, goal.ID, req))

	assert.Equal(t, "cvar", first.Strategy)
	assert.Equal(t, first.Trades, second.Trades, "seeded runs are reproducible")
	assert.Equal(t, first.Metrics.OptimalWeights, second.Metrics.OptimalWeights)
}

func TestRebalance_UnknownStrategy(t *testing.T) {
	env := newTestEnv(t)
	goal := env.driftedGoal(t)

	rec := env.rebalance(t, goal.ID, RebalanceRequest{Strategy: "momentum"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRebalance_GoalNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.rebalance(t, "missing", RebalanceRequest{Strategy: "threshold"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRebalance_InvalidOverrides(t *testing.T) {
	env := newTestEnv(t)
	goal := env.driftedGoal(t)

	bad := -5.0
	rec := env.rebalance(t, goal.ID, RebalanceRequest{
		Strategy:    "threshold",
		Constraints: &constraints.Overrides{MinTradeValue: &bad},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
