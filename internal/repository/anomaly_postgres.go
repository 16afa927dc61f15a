package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/costlens/backend/internal/model"
)

// PostgresAnomalyRepository implements AnomalyRepository for PostgreSQL.
type PostgresAnomalyRepository struct {
	db *sql.DB
}

// NewPostgresAnomalyRepository creates a new PostgresAnomalyRepository.
func NewPostgresAnomalyRepository(db *sql.DB) *PostgresAnomalyRepository {
	return &PostgresAnomalyRepository{db: db}
}

func (r *PostgresAnomalyRepository) UpsertBaseline(ctx context.Context, b *model.AnomalyBaseline) error {
	b.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO anomaly_baselines (id, account_id, service, date, baseline_cost, current_cost,
			variance_percent, is_increase, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (account_id, service, date) DO UPDATE SET
			baseline_cost = EXCLUDED.baseline_cost,
			current_cost = EXCLUDED.current_cost,
			variance_percent = EXCLUDED.variance_percent,
			is_increase = EXCLUDED.is_increase,
			updated_at = EXCLUDED.updated_at
	`, b.ID, b.AccountID, b.Service, b.Date, b.BaselineCost, b.CurrentCost,
		b.VariancePercent, b.IsIncrease, b.CreatedAt, b.UpdatedAt)
	return err
}

const baselineColumns = `b.id, b.account_id, b.service, b.date, b.baseline_cost, b.current_cost,
	b.variance_percent, b.is_increase, b.created_at, b.updated_at`

func scanBaseline(s scanner) (*model.AnomalyBaseline, error) {
	var b model.AnomalyBaseline
	err := s.Scan(&b.ID, &b.AccountID, &b.Service, &b.Date, &b.BaselineCost, &b.CurrentCost,
		&b.VariancePercent, &b.IsIncrease, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *PostgresAnomalyRepository) List(ctx context.Context, filter model.AnomalyFilter, thresholdPct float64) ([]*model.AnomalyBaseline, error) {
	query := `
		SELECT ` + baselineColumns + `
		FROM anomaly_baselines b
		JOIN provider_accounts a ON a.id = b.account_id
		WHERE a.user_id = $1 AND ABS(b.variance_percent) >= $2`
	args := []any{filter.UserID, thresholdPct}

	if filter.AccountID != nil {
		args = append(args, *filter.AccountID)
		query += fmt.Sprintf(" AND b.account_id = $%d", len(args))
	}
	if filter.Service != "" {
		args = append(args, filter.Service)
		query += fmt.Sprintf(" AND b.service = $%d", len(args))
	}
	if !filter.DateRange.Start.IsZero() {
		args = append(args, filter.DateRange.Start)
		query += fmt.Sprintf(" AND b.date >= $%d", len(args))
	}
	if !filter.DateRange.End.IsZero() {
		args = append(args, filter.DateRange.End)
		query += fmt.Sprintf(" AND b.date <= $%d", len(args))
	}
	query += " ORDER BY b.date DESC, ABS(b.variance_percent) DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var baselines []*model.AnomalyBaseline
	for rows.Next() {
		b, err := scanBaseline(rows)
		if err != nil {
			return nil, err
		}
		baselines = append(baselines, b)
	}
	return baselines, rows.Err()
}

func (r *PostgresAnomalyRepository) TopVariance(ctx context.Context, accountID uuid.UUID, since time.Time, thresholdPct float64) (*model.AnomalyBaseline, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+baselineColumns+`
		FROM anomaly_baselines b
		WHERE b.account_id = $1 AND b.date >= $2 AND ABS(b.variance_percent) >= $3
		ORDER BY ABS(b.variance_percent) DESC
		LIMIT 1
	`, accountID, since, thresholdPct)
	b, err := scanBaseline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}
