// Package anomaly maintains rolling per-service cost baselines and flags
// deviations from them.
package anomaly

import (
	"context"
	"log/slog"
	"time"

	"github.com/costlens/backend/internal/config"
	"github.com/costlens/backend/internal/model"
	"github.com/costlens/backend/internal/repository"
)

// Notifier delivers anomaly escalations. Implementations are best effort.
type Notifier interface {
	AnomalyDetected(ctx context.Context, account *model.ProviderAccount, baseline *model.AnomalyBaseline)
	AnomalyEmail(ctx context.Context, user *model.User, account *model.ProviderAccount, baseline *model.AnomalyBaseline) error
}

// Engine recomputes anomaly baselines from stored daily cost points.
type Engine struct {
	costs     repository.CostRepository
	anomalies repository.AnomalyRepository
	users     repository.UserRepository
	notifier  Notifier
	cfg       config.AnomalyConfig
	logger    *slog.Logger

	now func() time.Time
}

// NewEngine creates an Engine. notifier may be nil.
func NewEngine(
	costs repository.CostRepository,
	anomalies repository.AnomalyRepository,
	users repository.UserRepository,
	notifier Notifier,
	cfg config.AnomalyConfig,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		costs:     costs,
		anomalies: anomalies,
		users:     users,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AfterSync recomputes the account's baselines and escalates the single
// largest fresh deviation. Used as a post-sync hook; errors are logged here.
func (e *Engine) AfterSync(ctx context.Context, account *model.ProviderAccount) {
	if err := e.Recompute(ctx, account); err != nil {
		e.logger.Error("anomaly recompute failed", "account_id", account.ID, "error", err)
		return
	}
	e.escalate(ctx, account)
}

// Recompute walks the trailing recompute window and upserts one baseline row
// per (service, date) that has enough history. A baseline row's absence means
// insufficient history, never a zero baseline.
//
// The loop is best effort: the first upsert error is logged in full, later
// ones are counted, and processing always continues.
func (e *Engine) Recompute(ctx context.Context, account *model.ProviderAccount) error {
	today := e.now().Truncate(24 * time.Hour)
	windowStart := today.AddDate(0, 0, -e.cfg.RecomputeWindowDays)
	historyStart := windowStart.AddDate(0, 0, -e.cfg.BaselineWindowDays)

	points, err := e.costs.GetDailyPoints(ctx, account.ID, model.DateRange{Start: historyStart, End: today})
	if err != nil {
		return err
	}

	// service -> date -> cost, summed across duplicate entries.
	byService := make(map[string]map[time.Time]float64)
	for _, p := range points {
		day := p.Date.Truncate(24 * time.Hour)
		if byService[p.Service] == nil {
			byService[p.Service] = make(map[time.Time]float64)
		}
		byService[p.Service][day] += p.Cost
	}

	var computed, skipped, failed int
	var firstErr error
	for service, days := range byService {
		for day := windowStart; !day.After(today); day = day.AddDate(0, 0, 1) {
			current, ok := days[day]
			if !ok {
				continue
			}

			baseline, n := trailingMean(days, day, e.cfg.BaselineWindowDays)
			if n < e.cfg.MinHistoryPoints {
				skipped++
				continue
			}

			row := &model.AnomalyBaseline{
				BaseEntity:      model.NewBaseEntity(),
				AccountID:       account.ID,
				Service:         service,
				Date:            day,
				BaselineCost:    baseline,
				CurrentCost:     current,
				VariancePercent: model.Variance(baseline, current),
				IsIncrease:      current > baseline,
			}
			if err := e.anomalies.UpsertBaseline(ctx, row); err != nil {
				failed++
				if firstErr == nil {
					firstErr = err
					e.logger.Error("baseline upsert failed",
						"account_id", account.ID,
						"service", service,
						"date", day.Format("2006-01-02"),
						"error", err,
					)
				}
				continue
			}
			computed++
		}
	}

	e.logger.Info("anomaly baselines recomputed",
		"account_id", account.ID,
		"computed", computed,
		"skipped", skipped,
		"failed", failed,
	)
	return nil
}

// trailingMean averages the costs of the days strictly before day within the
// window, returning the mean and the number of points it was built from.
func trailingMean(days map[time.Time]float64, day time.Time, windowDays int) (float64, int) {
	start := day.AddDate(0, 0, -windowDays)
	var sum float64
	var n int
	for d, cost := range days {
		if d.Before(day) && !d.Before(start) {
			sum += cost
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// escalate notifies the owner about the single largest fresh deviation above
// the alert threshold, with an email when the owner's plan allows it.
func (e *Engine) escalate(ctx context.Context, account *model.ProviderAccount) {
	if e.notifier == nil {
		return
	}
	since := e.now().AddDate(0, 0, -e.cfg.RecomputeWindowDays)
	top, err := e.anomalies.TopVariance(ctx, account.ID, since, e.cfg.AlertThresholdPct)
	if err != nil {
		e.logger.Error("top anomaly lookup failed", "account_id", account.ID, "error", err)
		return
	}
	if top == nil {
		return
	}

	e.notifier.AnomalyDetected(ctx, account, top)

	user, err := e.users.GetByID(ctx, account.UserID)
	if err != nil || user == nil {
		if err != nil {
			e.logger.Error("owner lookup failed", "account_id", account.ID, "error", err)
		}
		return
	}
	if !user.EmailAlertsAllowed() {
		return
	}
	if err := e.notifier.AnomalyEmail(ctx, user, account, top); err != nil {
		e.logger.Error("anomaly email failed", "account_id", account.ID, "error", err)
	}
}

// Anomalies returns stored deviations at or above thresholdPct for the
// filter's user.
func (e *Engine) Anomalies(ctx context.Context, filter model.AnomalyFilter, thresholdPct float64) ([]*model.AnomalyBaseline, error) {
	if thresholdPct <= 0 {
		thresholdPct = e.cfg.AlertThresholdPct
	}
	return e.anomalies.List(ctx, filter, thresholdPct)
}
