package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the tables this service owns if they don't exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS provider_accounts (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			provider_type VARCHAR(32) NOT NULL,
			alias VARCHAR(255) NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			connection_kind VARCHAR(16) NOT NULL DEFAULT 'manual',
			credentials BYTEA NOT NULL,
			last_sync_at TIMESTAMPTZ,
			health VARCHAR(16) NOT NULL DEFAULT 'pending',
			health_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS cost_snapshots (
			id UUID PRIMARY KEY,
			account_id UUID NOT NULL REFERENCES provider_accounts(id) ON DELETE CASCADE,
			month INT NOT NULL,
			year INT NOT NULL,
			current_month_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_month_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			forecast_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			forecast_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			credits DOUBLE PRECISION NOT NULL DEFAULT 0,
			savings DOUBLE PRECISION NOT NULL DEFAULT 0,
			tax DOUBLE PRECISION NOT NULL DEFAULT 0,
			currency VARCHAR(3) NOT NULL DEFAULT 'USD',
			services JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (account_id, month, year)
		)`,
		`CREATE TABLE IF NOT EXISTS daily_cost_points (
			id BIGSERIAL PRIMARY KEY,
			account_id UUID NOT NULL REFERENCES provider_accounts(id) ON DELETE CASCADE,
			date DATE NOT NULL,
			service VARCHAR(255) NOT NULL DEFAULT '',
			cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			synthetic BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (account_id, date, service)
		)`,
		`CREATE TABLE IF NOT EXISTS anomaly_baselines (
			id UUID PRIMARY KEY,
			account_id UUID NOT NULL REFERENCES provider_accounts(id) ON DELETE CASCADE,
			service VARCHAR(255) NOT NULL,
			date DATE NOT NULL,
			baseline_cost DOUBLE PRECISION NOT NULL,
			current_cost DOUBLE PRECISION NOT NULL,
			variance_percent DOUBLE PRECISION NOT NULL,
			is_increase BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (account_id, service, date)
		)`,
		`CREATE TABLE IF NOT EXISTS forecast_scenarios (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			adjustments JSONB NOT NULL DEFAULT '[]',
			forecast_months INT NOT NULL DEFAULT 6,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS recommendations (
			id UUID PRIMARY KEY,
			account_id UUID NOT NULL REFERENCES provider_accounts(id) ON DELETE CASCADE,
			category VARCHAR(32) NOT NULL,
			priority VARCHAR(16) NOT NULL,
			title VARCHAR(255) NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			estimated_savings DOUBLE PRECISION NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_cost_points_account_date ON daily_cost_points (account_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_anomaly_baselines_account_date ON anomaly_baselines (account_id, date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_provider_accounts_user ON provider_accounts (user_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("repository: schema bootstrap failed: %w", err)
		}
	}
	return nil
}
