package jobs

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/costlens/backend/internal/anomaly"
	"github.com/costlens/backend/internal/config"
	"github.com/costlens/backend/internal/model"
	"github.com/costlens/backend/internal/recommend"
	"github.com/costlens/backend/internal/repository"
	"github.com/costlens/backend/internal/syncer"
)

// Job names, usable with Scheduler.RunNow.
const (
	JobCostSync        = "cost_sync"
	JobAnomalySweep    = "anomaly_sweep"
	JobRecommendations = "recommendations"
)

// RegisterAll wires the periodic pipeline jobs into the scheduler.
func RegisterAll(
	s *Scheduler,
	cfg config.JobsConfig,
	sync *syncer.Syncer,
	anomalies *anomaly.Engine,
	recommendations *recommend.Engine,
	accounts repository.AccountRepository,
	logger *slog.Logger,
) error {
	if err := s.Register(JobCostSync, cfg.CostSyncSchedule, func(ctx context.Context) error {
		return syncAllUsers(ctx, sync, accounts, logger)
	}); err != nil {
		return err
	}

	if err := s.Register(JobAnomalySweep, cfg.AnomalySweepSchedule, func(ctx context.Context) error {
		return sweepAccounts(ctx, accounts, logger, "anomaly recompute", anomalies.Recompute)
	}); err != nil {
		return err
	}

	return s.Register(JobRecommendations, cfg.RecommendationsSchedule, func(ctx context.Context) error {
		return sweepAccounts(ctx, accounts, logger, "recommendation refresh", recommendations.Refresh)
	})
}

// syncAllUsers runs a settle-all batch per owning user. Batch failures are
// reported inside each batch result, so the job itself only fails when the
// account listing does.
func syncAllUsers(ctx context.Context, sync *syncer.Syncer, accounts repository.AccountRepository, logger *slog.Logger) error {
	active, err := accounts.GetAllActive(ctx)
	if err != nil {
		return err
	}

	users := make(map[uuid.UUID]struct{})
	for _, account := range active {
		users[account.UserID] = struct{}{}
	}

	for userID := range users {
		result, err := sync.SyncAll(ctx, userID, syncer.SyncOptions{})
		if err != nil {
			logger.Error("scheduled sync batch failed", "user_id", userID, "error", err)
			continue
		}
		if result.Failed > 0 {
			logger.Warn("scheduled sync batch had failures",
				"user_id", userID, "status", result.Status, "failed", result.Failed)
		}
	}
	return nil
}

func sweepAccounts(
	ctx context.Context,
	accounts repository.AccountRepository,
	logger *slog.Logger,
	what string,
	run func(ctx context.Context, account *model.ProviderAccount) error,
) error {
	active, err := accounts.GetAllActive(ctx)
	if err != nil {
		return err
	}
	for _, account := range active {
		if err := run(ctx, account); err != nil {
			logger.Error("scheduled "+what+" failed", "account_id", account.ID, "error", err)
		}
	}
	return nil
}
