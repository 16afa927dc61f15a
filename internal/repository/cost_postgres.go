package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/costlens/backend/internal/model"
)

// PostgresCostRepository implements CostRepository for PostgreSQL.
type PostgresCostRepository struct {
	db *sql.DB
}

// NewPostgresCostRepository creates a new PostgresCostRepository.
func NewPostgresCostRepository(db *sql.DB) *PostgresCostRepository {
	return &PostgresCostRepository{db: db}
}

func (r *PostgresCostRepository) UpsertSnapshot(ctx context.Context, s *model.CostSnapshot) error {
	services, err := json.Marshal(s.Services)
	if err != nil {
		return fmt.Errorf("repository: marshal services: %w", err)
	}

	s.UpdatedAt = time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cost_snapshots (id, account_id, month, year, current_month_cost, last_month_cost,
			forecast_cost, forecast_confidence, credits, savings, tax, currency, services, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (account_id, month, year) DO UPDATE SET
			current_month_cost = EXCLUDED.current_month_cost,
			last_month_cost = EXCLUDED.last_month_cost,
			forecast_cost = EXCLUDED.forecast_cost,
			forecast_confidence = EXCLUDED.forecast_confidence,
			credits = EXCLUDED.credits,
			savings = EXCLUDED.savings,
			tax = EXCLUDED.tax,
			currency = EXCLUDED.currency,
			services = EXCLUDED.services,
			updated_at = EXCLUDED.updated_at
	`, s.ID, s.AccountID, s.Month, s.Year, s.CurrentMonthCost, s.LastMonthCost,
		s.ForecastCost, s.ForecastConfidence, s.Credits, s.Savings, s.Tax, s.Currency, services,
		s.CreatedAt, s.UpdatedAt)
	return err
}

const snapshotColumns = `id, account_id, month, year, current_month_cost, last_month_cost,
	forecast_cost, forecast_confidence, credits, savings, tax, currency, services, created_at, updated_at`

func scanSnapshot(s scanner) (*model.CostSnapshot, error) {
	var snap model.CostSnapshot
	var services []byte
	err := s.Scan(&snap.ID, &snap.AccountID, &snap.Month, &snap.Year,
		&snap.CurrentMonthCost, &snap.LastMonthCost, &snap.ForecastCost, &snap.ForecastConfidence,
		&snap.Credits, &snap.Savings, &snap.Tax, &snap.Currency, &services,
		&snap.CreatedAt, &snap.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(services, &snap.Services); err != nil {
		return nil, fmt.Errorf("repository: unmarshal services: %w", err)
	}
	return &snap, nil
}

func (r *PostgresCostRepository) GetSnapshot(ctx context.Context, accountID uuid.UUID, month, year int) (*model.CostSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+` FROM cost_snapshots
		WHERE account_id = $1 AND month = $2 AND year = $3
	`, accountID, month, year)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return snap, err
}

func (r *PostgresCostRepository) GetSnapshotsByUser(ctx context.Context, userID uuid.UUID, month, year int) ([]*model.CostSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.account_id, s.month, s.year, s.current_month_cost, s.last_month_cost,
			s.forecast_cost, s.forecast_confidence, s.credits, s.savings, s.tax, s.currency, s.services,
			s.created_at, s.updated_at
		FROM cost_snapshots s
		JOIN provider_accounts a ON a.id = s.account_id
		WHERE a.user_id = $1 AND s.month = $2 AND s.year = $3
		ORDER BY s.current_month_cost DESC
	`, userID, month, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*model.CostSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

func (r *PostgresCostRepository) UpsertDailyPoints(ctx context.Context, points []model.DailyCostPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_cost_points (account_id, date, service, cost, synthetic, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (account_id, date, service) DO UPDATE SET
			cost = EXCLUDED.cost,
			synthetic = EXCLUDED.synthetic,
			updated_at = NOW()
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, p.AccountID, p.Date, p.Service, p.Cost, p.Synthetic); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PostgresCostRepository) GetDailyPoints(ctx context.Context, accountID uuid.UUID, dateRange model.DateRange) ([]model.DailyCostPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, date, service, cost, synthetic, created_at, updated_at
		FROM daily_cost_points
		WHERE account_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date, service
	`, accountID, dateRange.Start, dateRange.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []model.DailyCostPoint
	for rows.Next() {
		var p model.DailyCostPoint
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Date, &p.Service, &p.Cost, &p.Synthetic,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *PostgresCostRepository) GetDailyTotals(ctx context.Context, filter model.CostFilter) ([]DailyTotal, error) {
	query := `
		SELECT p.date, SUM(p.cost)
		FROM daily_cost_points p
		JOIN provider_accounts a ON a.id = p.account_id
		WHERE a.user_id = $1 AND p.date >= $2 AND p.date <= $3`
	args := []any{filter.UserID, filter.DateRange.Start, filter.DateRange.End}

	if filter.AccountID != nil {
		args = append(args, *filter.AccountID)
		query += fmt.Sprintf(" AND p.account_id = $%d", len(args))
	}
	if filter.Service != "" {
		args = append(args, filter.Service)
		query += fmt.Sprintf(" AND p.service = $%d", len(args))
	}
	query += " GROUP BY p.date ORDER BY p.date"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDailyTotals(rows)
}

func scanDailyTotals(rows *sql.Rows) ([]DailyTotal, error) {
	var totals []DailyTotal
	for rows.Next() {
		var t DailyTotal
		if err := rows.Scan(&t.Date, &t.Cost); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func (r *PostgresCostRepository) GetMonthlyTotal(ctx context.Context, accountID uuid.UUID, month, year int) (float64, error) {
	var total float64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost), 0) FROM daily_cost_points
		WHERE account_id = $1
		AND EXTRACT(MONTH FROM date) = $2
		AND EXTRACT(YEAR FROM date) = $3
	`, accountID, month, year).Scan(&total)
	return total, err
}
