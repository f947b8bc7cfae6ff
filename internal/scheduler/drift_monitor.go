package scheduler

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/faroinvest/faro/internal/modules/constraints"
	"github.com/faroinvest/faro/internal/modules/goals"
)

// DriftMonitorJob periodically checks every goal's allocation drift
// against its risk profile's rebalance threshold and logs the goals
// that have drifted out of band. Observability only; it never trades.
type DriftMonitorJob struct {
	service *goals.Service
	log     zerolog.Logger
}

// NewDriftMonitorJob creates a drift monitor job.
func NewDriftMonitorJob(service *goals.Service, log zerolog.Logger) *DriftMonitorJob {
	return &DriftMonitorJob{
		service: service,
		log:     log.With().Str("job", "drift_monitor").Logger(),
	}
}

// Name returns the job identifier.
func (j *DriftMonitorJob) Name() string {
	return "drift_monitor"
}

// Run checks all goals and logs the ones exceeding their threshold.
func (j *DriftMonitorJob) Run() error {
	list, err := j.service.ListGoals()
	if err != nil {
		return fmt.Errorf("failed to list goals: %w", err)
	}

	exceeded := 0
	for _, goal := range list {
		maxDrift := maxAbsDrift(goal.Portfolio.AllocationDrift())
		threshold := constraints.ForRiskProfile(goal.RiskProfile).RebalanceThreshold

		if maxDrift >= threshold {
			exceeded++
			j.log.Warn().
				Str("goal_id", goal.ID).
				Str("goal_name", goal.Name).
				Str("risk_profile", string(goal.RiskProfile)).
				Float64("max_drift", maxDrift).
				Float64("threshold", threshold).
				Msg("Goal drift exceeds rebalance threshold")
		}
	}

	j.log.Info().
		Int("goals_checked", len(list)).
		Int("goals_exceeding", exceeded).
		Msg("Drift check complete")

	return nil
}

func maxAbsDrift(drifts map[string]float64) float64 {
	max := 0.0
	for _, d := range drifts {
		if abs := math.Abs(d); abs > max {
			max = abs
		}
	}
	return max
}
