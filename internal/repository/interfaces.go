// Package repository defines data access interfaces and their PostgreSQL
// implementations.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/costlens/backend/internal/model"
)

// AccountRepository manages connected provider accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *model.ProviderAccount) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ProviderAccount, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*model.ProviderAccount, error)
	GetActiveByUserID(ctx context.Context, userID uuid.UUID) ([]*model.ProviderAccount, error)
	GetAllActive(ctx context.Context) ([]*model.ProviderAccount, error)
	Update(ctx context.Context, account *model.ProviderAccount) error
	UpdateHealth(ctx context.Context, id uuid.UUID, health model.HealthStatus, message string) error
	UpdateLastSync(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID, cascadeCosts bool) error
}

// DailyTotal is one day of aggregated cost.
type DailyTotal struct {
	Date time.Time
	Cost float64
}

// CostRepository manages normalized cost snapshots and daily points. The
// sync orchestrator is the sole writer.
type CostRepository interface {
	UpsertSnapshot(ctx context.Context, snapshot *model.CostSnapshot) error
	GetSnapshot(ctx context.Context, accountID uuid.UUID, month, year int) (*model.CostSnapshot, error)
	GetSnapshotsByUser(ctx context.Context, userID uuid.UUID, month, year int) ([]*model.CostSnapshot, error)
	UpsertDailyPoints(ctx context.Context, points []model.DailyCostPoint) error
	GetDailyPoints(ctx context.Context, accountID uuid.UUID, dateRange model.DateRange) ([]model.DailyCostPoint, error)
	GetDailyTotals(ctx context.Context, filter model.CostFilter) ([]DailyTotal, error)
	GetMonthlyTotal(ctx context.Context, accountID uuid.UUID, month, year int) (float64, error)
}

// AnomalyRepository manages rolling anomaly baselines.
type AnomalyRepository interface {
	UpsertBaseline(ctx context.Context, baseline *model.AnomalyBaseline) error
	List(ctx context.Context, filter model.AnomalyFilter, thresholdPct float64) ([]*model.AnomalyBaseline, error)
	TopVariance(ctx context.Context, accountID uuid.UUID, since time.Time, thresholdPct float64) (*model.AnomalyBaseline, error)
}

// ScenarioRepository manages forecast scenarios.
type ScenarioRepository interface {
	Create(ctx context.Context, scenario *model.ForecastScenario) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ForecastScenario, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.ForecastScenario, error)
	Update(ctx context.Context, scenario *model.ForecastScenario) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RecommendationRepository manages optimization recommendations.
type RecommendationRepository interface {
	ReplaceActive(ctx context.Context, accountID uuid.UUID, recs []*model.Recommendation) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Recommendation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.RecommendationStatus) error
}

// UserRepository reads user records for ownership checks and alert gating.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}
