// Package goals manages savings goals and their portfolios: CRUD,
// cash movements, position management and trade application. The
// rebalancing engine never persists anything; this package is where
// portfolio mutations live.
package goals

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/faroinvest/faro/internal/database"
	"github.com/faroinvest/faro/internal/domain"
)

// Repository persists goals and their positions in the goals database.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a goal repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "goals_repository").Logger(),
	}
}

// Create inserts a goal and its positions.
func (r *Repository) Create(goal *domain.Goal) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		if err := insertGoal(tx, goal); err != nil {
			return err
		}
		return insertPositions(tx, goal)
	})
}

// Save replaces the stored state of a goal: the goal row is updated and
// the position set is rewritten. Simpler than per-field diffs and the
// position count per goal is small.
func (r *Repository) Save(goal *domain.Goal) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			UPDATE goals
			SET portfolio_id = ?, name = ?, goal_type = ?, risk_profile = ?, cash = ?,
			    target_amount = ?, target_date = ?, updated_at = ?
			WHERE id = ?`,
			goal.Portfolio.ID, goal.Name, string(goal.Type), string(goal.RiskProfile),
			goal.Portfolio.Cash, goal.TargetAmount, nullableTime(goal.TargetDate),
			time.Now().UTC().Format(time.RFC3339), goal.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update goal %s: %w", goal.ID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if affected == 0 {
			return ErrGoalNotFound
		}

		if _, err := tx.Exec(`DELETE FROM positions WHERE goal_id = ?`, goal.ID); err != nil {
			return fmt.Errorf("failed to clear positions for goal %s: %w", goal.ID, err)
		}
		return insertPositions(tx, goal)
	})
}

// Get loads a goal with its positions. Returns ErrGoalNotFound when no
// goal has the id.
func (r *Repository) Get(id string) (*domain.Goal, error) {
	row := r.db.QueryRow(`
		SELECT id, portfolio_id, name, goal_type, risk_profile, cash,
		       target_amount, target_date, created_at, updated_at
		FROM goals WHERE id = ?`, id)

	goal, err := scanGoal(row)
	if err != nil {
		return nil, err
	}

	if err := r.loadPositions(goal); err != nil {
		return nil, err
	}
	return goal, nil
}

// List loads all goals ordered by creation time.
func (r *Repository) List() ([]*domain.Goal, error) {
	rows, err := r.db.Query(`
		SELECT id, portfolio_id, name, goal_type, risk_profile, cash,
		       target_amount, target_date, created_at, updated_at
		FROM goals ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	var result []*domain.Goal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, goal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating goals: %w", err)
	}

	for _, goal := range result {
		if err := r.loadPositions(goal); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Delete removes a goal; positions cascade via the foreign key.
func (r *Repository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete goal %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrGoalNotFound
	}
	return nil
}

func insertGoal(tx *sql.Tx, goal *domain.Goal) error {
	_, err := tx.Exec(`
		INSERT INTO goals (id, portfolio_id, name, goal_type, risk_profile, cash,
		                   target_amount, target_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		goal.ID, goal.Portfolio.ID, goal.Name, string(goal.Type), string(goal.RiskProfile),
		goal.Portfolio.Cash, goal.TargetAmount, nullableTime(goal.TargetDate),
		goal.CreatedAt.UTC().Format(time.RFC3339), goal.Portfolio.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert goal %s: %w", goal.ID, err)
	}
	return nil
}

func insertPositions(tx *sql.Tx, goal *domain.Goal) error {
	for ticker, pos := range goal.Portfolio.Positions {
		_, err := tx.Exec(`
			INSERT INTO positions (goal_id, ticker, asset_name, asset_type, currency,
			                       current_price, price_updated_at, shares, target_allocation, deposited)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			goal.ID, ticker, pos.Asset.Name, string(pos.Asset.Type), pos.Asset.Currency,
			pos.Asset.CurrentPrice, pos.Asset.LastUpdated.UTC().Format(time.RFC3339),
			pos.Shares, pos.TargetAllocation, pos.Deposited,
		)
		if err != nil {
			return fmt.Errorf("failed to insert position %s for goal %s: %w", ticker, goal.ID, err)
		}
	}
	return nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGoal(row scanner) (*domain.Goal, error) {
	var (
		id, portfolioID, name, goalType, riskProfile string
		cash                                         float64
		targetAmount                                 sql.NullFloat64
		targetDate, createdAt, updatedAt             sql.NullString
	)
	err := row.Scan(&id, &portfolioID, &name, &goalType, &riskProfile, &cash,
		&targetAmount, &targetDate, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrGoalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan goal: %w", err)
	}

	portfolio, err := domain.NewPortfolio(portfolioID, cash)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild portfolio for goal %s: %w", id, err)
	}

	goal := &domain.Goal{
		ID:          id,
		Name:        name,
		Type:        domain.GoalType(goalType),
		RiskProfile: domain.RiskProfile(riskProfile),
		Portfolio:   portfolio,
	}
	if targetAmount.Valid {
		goal.TargetAmount = &targetAmount.Float64
	}
	if targetDate.Valid {
		if ts, err := time.Parse(time.RFC3339, targetDate.String); err == nil {
			goal.TargetDate = &ts
		}
	}
	if createdAt.Valid {
		if ts, err := time.Parse(time.RFC3339, createdAt.String); err == nil {
			goal.CreatedAt = ts
			goal.Portfolio.CreatedAt = ts
		}
	}
	if updatedAt.Valid {
		if ts, err := time.Parse(time.RFC3339, updatedAt.String); err == nil {
			goal.Portfolio.UpdatedAt = ts
		}
	}
	return goal, nil
}

func (r *Repository) loadPositions(goal *domain.Goal) error {
	rows, err := r.db.Query(`
		SELECT ticker, asset_name, asset_type, currency, current_price,
		       price_updated_at, shares, target_allocation, deposited
		FROM positions WHERE goal_id = ?`, goal.ID)
	if err != nil {
		return fmt.Errorf("failed to query positions for goal %s: %w", goal.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ticker, assetName, assetType, currency  string
			price, shares, targetAlloc, deposited   float64
			priceUpdatedAt                          string
		)
		if err := rows.Scan(&ticker, &assetName, &assetType, &currency, &price,
			&priceUpdatedAt, &shares, &targetAlloc, &deposited); err != nil {
			return fmt.Errorf("failed to scan position for goal %s: %w", goal.ID, err)
		}

		asset, err := domain.NewAsset(ticker, assetName, domain.AssetType(assetType), price, currency)
		if err != nil {
			return fmt.Errorf("failed to rebuild asset %s: %w", ticker, err)
		}
		if ts, err := time.Parse(time.RFC3339, priceUpdatedAt); err == nil {
			asset.LastUpdated = ts
		}

		if err := goal.Portfolio.AddPosition(asset, shares, targetAlloc, deposited); err != nil {
			return fmt.Errorf("failed to rebuild position %s: %w", ticker, err)
		}
	}
	return rows.Err()
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
