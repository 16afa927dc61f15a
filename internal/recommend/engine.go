// Package recommend produces cost optimization recommendations from provider
// APIs and from stored spend history.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/costlens/backend/internal/credential"
	"github.com/costlens/backend/internal/model"
	"github.com/costlens/backend/internal/repository"
)

// Resolver resolves a stored account into live credentials.
type Resolver interface {
	Resolve(ctx context.Context, account *model.ProviderAccount) (*credential.LiveCredentials, error)
}

// Engine refreshes and serves recommendations.
type Engine struct {
	recs     repository.RecommendationRepository
	costs    repository.CostRepository
	resolver Resolver
	aws      *awsSource
	logger   *slog.Logger

	now func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(recs repository.RecommendationRepository, costs repository.CostRepository, resolver Resolver, logger *slog.Logger) *Engine {
	return &Engine{
		recs:     recs,
		costs:    costs,
		resolver: resolver,
		aws:      newAWSSource(logger),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AfterSync refreshes the account's recommendations. Used as a post-sync
// hook; errors are logged here.
func (e *Engine) AfterSync(ctx context.Context, account *model.ProviderAccount) {
	if err := e.Refresh(ctx, account); err != nil {
		e.logger.Error("recommendation refresh failed", "account_id", account.ID, "error", err)
	}
}

// Refresh rebuilds the account's active recommendation set. Provider sources
// are best effort; the local idle-spend heuristic always runs.
func (e *Engine) Refresh(ctx context.Context, account *model.ProviderAccount) error {
	var recs []*model.Recommendation

	if account.ProviderType == model.ProviderAWS {
		creds, err := e.resolver.Resolve(ctx, account)
		if err != nil {
			e.logger.Warn("skipping provider recommendations, credentials unavailable",
				"account_id", account.ID, "error", err)
		} else {
			providerRecs, err := e.aws.fetch(ctx, account, creds)
			if err != nil {
				e.logger.Warn("provider recommendation fetch failed",
					"account_id", account.ID, "error", err)
			} else {
				recs = append(recs, providerRecs...)
			}
		}
	}

	idle, err := e.idleSpend(ctx, account)
	if err != nil {
		e.logger.Warn("idle spend analysis failed", "account_id", account.ID, "error", err)
	} else {
		recs = append(recs, idle...)
	}

	if err := e.recs.ReplaceActive(ctx, account.ID, recs); err != nil {
		return fmt.Errorf("recommend: replace active set: %w", err)
	}
	e.logger.Info("recommendations refreshed", "account_id", account.ID, "count", len(recs))
	return nil
}

const (
	idleWindowDays = 30
	// Services whose daily spend barely moves look like always-on resources
	// worth a review.
	idleFlatnessCV = 0.05
	idleMinDaily   = 0.50
)

// idleSpend flags services with flat, nonzero daily spend over the trailing
// window. Flat spend usually means an always-on resource that nobody resized.
func (e *Engine) idleSpend(ctx context.Context, account *model.ProviderAccount) ([]*model.Recommendation, error) {
	today := e.now().Truncate(24 * time.Hour)
	points, err := e.costs.GetDailyPoints(ctx, account.ID, model.DateRange{
		Start: today.AddDate(0, 0, -idleWindowDays),
		End:   today,
	})
	if err != nil {
		return nil, err
	}

	byService := make(map[string][]float64)
	for _, p := range points {
		if p.Synthetic {
			// Evenly distributed points are flat by construction.
			continue
		}
		byService[p.Service] = append(byService[p.Service], p.Cost)
	}

	var recs []*model.Recommendation
	for service, costs := range byService {
		if len(costs) < idleWindowDays/2 {
			continue
		}
		m, cv := meanCV(costs)
		if m < idleMinDaily || cv > idleFlatnessCV {
			continue
		}
		monthly := m * 30
		recs = append(recs, &model.Recommendation{
			BaseEntity:       model.NewBaseEntity(),
			AccountID:        account.ID,
			Category:         model.CategoryIdleSpend,
			Priority:         model.PriorityForSavings(monthly),
			Title:            fmt.Sprintf("Review steady spend on %s", service),
			Detail:           fmt.Sprintf("%s has cost a flat %.2f/day for the last %d days, which usually indicates an always-on resource. Verify it is still needed or size it down.", service, m, idleWindowDays),
			EstimatedSavings: monthly,
			Status:           model.RecommendationActive,
		})
	}
	return recs, nil
}

func meanCV(xs []float64) (mean, cv float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if mean <= 0 || len(xs) < 2 {
		return mean, 1
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss/float64(len(xs)-1)) / mean
}

// List returns all recommendations visible to userID, largest savings first.
func (e *Engine) List(ctx context.Context, userID uuid.UUID) ([]*model.Recommendation, error) {
	return e.recs.ListByUser(ctx, userID)
}

// UpdateStatus marks a recommendation dismissed or implemented for userID.
func (e *Engine) UpdateStatus(ctx context.Context, userID, id uuid.UUID, status model.RecommendationStatus) error {
	owned, err := e.recs.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, rec := range owned {
		if rec.ID == id {
			return e.recs.UpdateStatus(ctx, id, status)
		}
	}
	return fmt.Errorf("recommend: recommendation %s not found", id)
}
