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

// PostgresScenarioRepository implements ScenarioRepository for PostgreSQL.
type PostgresScenarioRepository struct {
	db *sql.DB
}

// NewPostgresScenarioRepository creates a new PostgresScenarioRepository.
func NewPostgresScenarioRepository(db *sql.DB) *PostgresScenarioRepository {
	return &PostgresScenarioRepository{db: db}
}

func (r *PostgresScenarioRepository) Create(ctx context.Context, s *model.ForecastScenario) error {
	adjustments, err := json.Marshal(s.Adjustments)
	if err != nil {
		return fmt.Errorf("repository: marshal adjustments: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO forecast_scenarios (id, user_id, name, description, adjustments, forecast_months, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.UserID, s.Name, s.Description, adjustments, s.ForecastMonths, s.CreatedAt, s.UpdatedAt)
	return err
}

func scanScenario(s scanner) (*model.ForecastScenario, error) {
	var sc model.ForecastScenario
	var adjustments []byte
	err := s.Scan(&sc.ID, &sc.UserID, &sc.Name, &sc.Description, &adjustments,
		&sc.ForecastMonths, &sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(adjustments, &sc.Adjustments); err != nil {
		return nil, fmt.Errorf("repository: unmarshal adjustments: %w", err)
	}
	return &sc, nil
}

func (r *PostgresScenarioRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ForecastScenario, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, adjustments, forecast_months, created_at, updated_at
		FROM forecast_scenarios WHERE id = $1
	`, id)
	sc, err := scanScenario(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sc, err
}

func (r *PostgresScenarioRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.ForecastScenario, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, description, adjustments, forecast_months, created_at, updated_at
		FROM forecast_scenarios WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scenarios []*model.ForecastScenario
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, rows.Err()
}

func (r *PostgresScenarioRepository) Update(ctx context.Context, s *model.ForecastScenario) error {
	adjustments, err := json.Marshal(s.Adjustments)
	if err != nil {
		return fmt.Errorf("repository: marshal adjustments: %w", err)
	}
	s.UpdatedAt = time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		UPDATE forecast_scenarios SET name = $2, description = $3, adjustments = $4,
			forecast_months = $5, updated_at = $6
		WHERE id = $1
	`, s.ID, s.Name, s.Description, adjustments, s.ForecastMonths, s.UpdatedAt)
	return err
}

func (r *PostgresScenarioRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM forecast_scenarios WHERE id = $1`, id)
	return err
}
