package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/costlens/backend/internal/model"
)

// PostgresAccountRepository implements AccountRepository for PostgreSQL.
type PostgresAccountRepository struct {
	db *sql.DB
}

// NewPostgresAccountRepository creates a new PostgresAccountRepository.
func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

const accountColumns = `id, user_id, provider_type, alias, active, connection_kind, credentials, last_sync_at, health, health_message, created_at, updated_at`

func (r *PostgresAccountRepository) Create(ctx context.Context, a *model.ProviderAccount) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO provider_accounts (id, user_id, provider_type, alias, active, connection_kind, credentials, health, health_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.UserID, a.ProviderType, a.Alias, a.Active, a.Kind, a.Credentials, a.Health, a.HealthMessage, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *PostgresAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ProviderAccount, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM provider_accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return account, err
}

func (r *PostgresAccountRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*model.ProviderAccount, error) {
	return r.queryAccounts(ctx, `SELECT `+accountColumns+` FROM provider_accounts WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (r *PostgresAccountRepository) GetActiveByUserID(ctx context.Context, userID uuid.UUID) ([]*model.ProviderAccount, error) {
	return r.queryAccounts(ctx, `SELECT `+accountColumns+` FROM provider_accounts WHERE user_id = $1 AND active = TRUE ORDER BY created_at`, userID)
}

func (r *PostgresAccountRepository) GetAllActive(ctx context.Context) ([]*model.ProviderAccount, error) {
	return r.queryAccounts(ctx, `SELECT `+accountColumns+` FROM provider_accounts WHERE active = TRUE ORDER BY user_id, created_at`)
}

func (r *PostgresAccountRepository) queryAccounts(ctx context.Context, query string, args ...any) ([]*model.ProviderAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*model.ProviderAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*model.ProviderAccount, error) {
	var a model.ProviderAccount
	err := s.Scan(&a.ID, &a.UserID, &a.ProviderType, &a.Alias, &a.Active, &a.Kind, &a.Credentials,
		&a.LastSyncAt, &a.Health, &a.HealthMessage, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PostgresAccountRepository) Update(ctx context.Context, a *model.ProviderAccount) error {
	a.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE provider_accounts SET alias = $2, active = $3, credentials = $4, updated_at = $5
		WHERE id = $1
	`, a.ID, a.Alias, a.Active, a.Credentials, a.UpdatedAt)
	return err
}

func (r *PostgresAccountRepository) UpdateHealth(ctx context.Context, id uuid.UUID, health model.HealthStatus, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE provider_accounts SET health = $2, health_message = $3, updated_at = $4 WHERE id = $1
	`, id, health, message, time.Now().UTC())
	return err
}

func (r *PostgresAccountRepository) UpdateLastSync(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE provider_accounts SET last_sync_at = $2, updated_at = $3 WHERE id = $1
	`, id, now, now)
	return err
}

// Delete removes the account. Cost history is removed via ON DELETE CASCADE;
// when cascadeCosts is false the history is detached first so it survives
// disconnection.
func (r *PostgresAccountRepository) Delete(ctx context.Context, id uuid.UUID, cascadeCosts bool) error {
	if !cascadeCosts {
		if _, err := r.db.ExecContext(ctx,
			`ALTER TABLE daily_cost_points DROP CONSTRAINT IF EXISTS daily_cost_points_account_id_fkey`); err != nil {
			return err
		}
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM provider_accounts WHERE id = $1`, id)
	return err
}
