package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/costlens/backend/internal/model"
)

// PostgresRecommendationRepository implements RecommendationRepository for PostgreSQL.
type PostgresRecommendationRepository struct {
	db *sql.DB
}

// NewPostgresRecommendationRepository creates a new PostgresRecommendationRepository.
func NewPostgresRecommendationRepository(db *sql.DB) *PostgresRecommendationRepository {
	return &PostgresRecommendationRepository{db: db}
}

// ReplaceActive swaps the active recommendation set for an account in one
// transaction. Dismissed and implemented rows are preserved.
func (r *PostgresRecommendationRepository) ReplaceActive(ctx context.Context, accountID uuid.UUID, recs []*model.Recommendation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM recommendations WHERE account_id = $1 AND status = 'active'
	`, accountID); err != nil {
		return err
	}

	for _, rec := range recs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recommendations (id, account_id, category, priority, title, detail,
				estimated_savings, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, rec.ID, rec.AccountID, rec.Category, rec.Priority, rec.Title, rec.Detail,
			rec.EstimatedSavings, rec.Status, rec.CreatedAt, rec.UpdatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PostgresRecommendationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Recommendation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.account_id, r.category, r.priority, r.title, r.detail,
			r.estimated_savings, r.status, r.created_at, r.updated_at
		FROM recommendations r
		JOIN provider_accounts a ON a.id = r.account_id
		WHERE a.user_id = $1
		ORDER BY r.estimated_savings DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*model.Recommendation
	for rows.Next() {
		var rec model.Recommendation
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Category, &rec.Priority, &rec.Title,
			&rec.Detail, &rec.EstimatedSavings, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

func (r *PostgresRecommendationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.RecommendationStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE recommendations SET status = $2, updated_at = $3 WHERE id = $1
	`, id, status, time.Now().UTC())
	return err
}
