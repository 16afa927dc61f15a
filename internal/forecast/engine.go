// Package forecast projects future monthly spend from stored daily history
// and evaluates what-if scenarios on top of the projection.
package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/costlens/backend/internal/config"
	"github.com/costlens/backend/internal/model"
	"github.com/costlens/backend/internal/repository"
)

// Engine builds baseline forecasts and evaluates scenarios.
type Engine struct {
	costs     repository.CostRepository
	scenarios repository.ScenarioRepository
	cfg       config.ForecastConfig
	logger    *slog.Logger

	now func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(costs repository.CostRepository, scenarios repository.ScenarioRepository, cfg config.ForecastConfig, logger *slog.Logger) *Engine {
	return &Engine{
		costs:     costs,
		scenarios: scenarios,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

const growthWindowDays = 28

// Baseline projects up to months of future spend for the filtered slice of
// the user's cost history. The projection blends the latest observed daily
// level with the recent window's growth rate; confidence reflects history
// depth and dispersion and decays with horizon distance.
func (e *Engine) Baseline(ctx context.Context, userID uuid.UUID, months int, filter model.ForecastFilter) ([]model.MonthlyForecast, error) {
	months = clampMonths(months, e.cfg.MaxMonths)

	today := e.now().Truncate(24 * time.Hour)
	totals, err := e.costs.GetDailyTotals(ctx, model.CostFilter{
		UserID:    userID,
		AccountID: filter.AccountID,
		Service:   filter.Service,
		DateRange: model.DateRange{Start: today.AddDate(0, 0, -e.cfg.HistoryDays), End: today},
	})
	if err != nil {
		return nil, fmt.Errorf("forecast: load history: %w", err)
	}

	dailyLevel, growth, confidence := fitHistory(totals)

	forecasts := make([]model.MonthlyForecast, months)
	for i := 0; i < months; i++ {
		monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, i+1, 0)
		daysInMonth := monthStart.AddDate(0, 1, -1).Day()

		cost := dailyLevel * math.Pow(1+growth, float64(i+1)) * float64(daysInMonth)
		forecasts[i] = model.MonthlyForecast{
			Month:      monthStart.Format("2006-01"),
			Cost:       round2(cost),
			Confidence: round2(clampConfidence(confidence * math.Pow(0.96, float64(i)))),
		}
	}
	return forecasts, nil
}

// fitHistory derives the latest daily spend level, a monthly growth rate and
// a confidence estimate from daily totals ordered by date.
func fitHistory(totals []repository.DailyTotal) (level, growth, confidence float64) {
	if len(totals) == 0 {
		return 0, 0, 0.3
	}

	recent := window(totals, 0, growthWindowDays)
	previous := window(totals, growthWindowDays, growthWindowDays)

	level = mean(recent)
	if prevMean := mean(previous); prevMean > 0 && len(previous) >= growthWindowDays/2 {
		growth = (level - prevMean) / prevMean
		// Bound runaway growth extrapolation.
		growth = math.Max(-0.5, math.Min(0.5, growth))
	}

	depth := math.Min(float64(len(totals))/180, 1)
	confidence = 0.3 + 0.5*depth - 0.2*dispersion(recent)
	return level, growth, clampConfidence(confidence)
}

// window returns the costs of the n days ending offset days from the tail.
func window(totals []repository.DailyTotal, offset, n int) []float64 {
	end := len(totals) - offset
	if end <= 0 {
		return nil
	}
	start := end - n
	if start < 0 {
		start = 0
	}
	out := make([]float64, 0, end-start)
	for _, t := range totals[start:end] {
		out = append(out, t.Cost)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// dispersion is the coefficient of variation clamped to [0, 1].
func dispersion(xs []float64) float64 {
	m := mean(xs)
	if m <= 0 || len(xs) < 2 {
		return 1
	}
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	cv := math.Sqrt(ss/float64(len(xs)-1)) / m
	return math.Min(cv, 1)
}

func clampConfidence(c float64) float64 {
	return math.Max(0.3, math.Min(0.95, c))
}

func clampMonths(months, max int) int {
	if max <= 0 || max > model.MaxForecastMonths {
		max = model.MaxForecastMonths
	}
	if months <= 0 {
		return 6
	}
	if months > max {
		return max
	}
	return months
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Compute evaluates a stored scenario owned by userID against a fresh
// baseline. Nothing beyond the scenario definition is persisted.
func (e *Engine) Compute(ctx context.Context, userID, scenarioID uuid.UUID, filter model.ForecastFilter) (*model.ScenarioResult, error) {
	scenario, err := e.scenarios.GetByID(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("forecast: load scenario: %w", err)
	}
	if scenario == nil || scenario.UserID != userID {
		return nil, fmt.Errorf("forecast: scenario %s not found", scenarioID)
	}
	return e.evaluate(ctx, userID, scenario, filter)
}

// Preview evaluates an ad hoc scenario without persisting it.
func (e *Engine) Preview(ctx context.Context, userID uuid.UUID, scenario *model.ForecastScenario, filter model.ForecastFilter) (*model.ScenarioResult, error) {
	if err := validateScenario(scenario, e.cfg.MaxMonths); err != nil {
		return nil, err
	}
	scenario.UserID = userID
	return e.evaluate(ctx, userID, scenario, filter)
}

func (e *Engine) evaluate(ctx context.Context, userID uuid.UUID, scenario *model.ForecastScenario, filter model.ForecastFilter) (*model.ScenarioResult, error) {
	months := clampMonths(scenario.ForecastMonths, e.cfg.MaxMonths)

	base, err := e.Baseline(ctx, userID, months, filter)
	if err != nil {
		return nil, err
	}

	serviceBaselines, err := e.serviceBaselines(ctx, userID, months, scenario, filter)
	if err != nil {
		return nil, err
	}

	adjusted, narrative := Apply(base, scenario, serviceBaselines)
	return &model.ScenarioResult{
		Scenario:         scenario,
		BaseForecast:     base,
		ScenarioForecast: adjusted,
		Narrative:        narrative,
		ComputedAt:       e.now(),
	}, nil
}

// serviceBaselines builds a per-month projection for every service named by a
// removal adjustment, so Apply can subtract exactly that service's share.
func (e *Engine) serviceBaselines(ctx context.Context, userID uuid.UUID, months int, scenario *model.ForecastScenario, filter model.ForecastFilter) (map[string][]float64, error) {
	out := make(map[string][]float64)
	for _, adj := range scenario.Adjustments {
		if adj.Kind != model.AdjustRemove || adj.Service == "" {
			continue
		}
		if _, done := out[adj.Service]; done {
			continue
		}
		svcFilter := filter
		svcFilter.Service = adj.Service
		forecasts, err := e.Baseline(ctx, userID, months, svcFilter)
		if err != nil {
			return nil, err
		}
		costs := make([]float64, len(forecasts))
		for i, f := range forecasts {
			costs[i] = f.Cost
		}
		out[adj.Service] = costs
	}
	return out, nil
}

// CreateScenario validates and stores a new scenario for userID.
func (e *Engine) CreateScenario(ctx context.Context, userID uuid.UUID, scenario *model.ForecastScenario) error {
	if err := validateScenario(scenario, e.cfg.MaxMonths); err != nil {
		return err
	}
	scenario.BaseEntity = model.NewBaseEntity()
	scenario.UserID = userID
	scenario.ForecastMonths = clampMonths(scenario.ForecastMonths, e.cfg.MaxMonths)
	return e.scenarios.Create(ctx, scenario)
}

// UpdateScenario validates and stores changes to a scenario owned by userID.
func (e *Engine) UpdateScenario(ctx context.Context, userID uuid.UUID, scenario *model.ForecastScenario) error {
	existing, err := e.scenarios.GetByID(ctx, scenario.ID)
	if err != nil {
		return err
	}
	if existing == nil || existing.UserID != userID {
		return fmt.Errorf("forecast: scenario %s not found", scenario.ID)
	}
	if err := validateScenario(scenario, e.cfg.MaxMonths); err != nil {
		return err
	}
	scenario.UserID = userID
	scenario.CreatedAt = existing.CreatedAt
	scenario.ForecastMonths = clampMonths(scenario.ForecastMonths, e.cfg.MaxMonths)
	return e.scenarios.Update(ctx, scenario)
}

// DeleteScenario removes a scenario owned by userID.
func (e *Engine) DeleteScenario(ctx context.Context, userID, scenarioID uuid.UUID) error {
	existing, err := e.scenarios.GetByID(ctx, scenarioID)
	if err != nil {
		return err
	}
	if existing == nil || existing.UserID != userID {
		return fmt.Errorf("forecast: scenario %s not found", scenarioID)
	}
	return e.scenarios.Delete(ctx, scenarioID)
}

// ListScenarios returns userID's scenarios, newest first.
func (e *Engine) ListScenarios(ctx context.Context, userID uuid.UUID) ([]*model.ForecastScenario, error) {
	return e.scenarios.ListByUser(ctx, userID)
}

// GetScenario returns one scenario owned by userID, or nil when absent.
func (e *Engine) GetScenario(ctx context.Context, userID, scenarioID uuid.UUID) (*model.ForecastScenario, error) {
	scenario, err := e.scenarios.GetByID(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	if scenario == nil || scenario.UserID != userID {
		return nil, nil
	}
	return scenario, nil
}

func validateScenario(s *model.ForecastScenario, maxMonths int) error {
	if s == nil {
		return fmt.Errorf("forecast: scenario is required")
	}
	if s.Name == "" {
		return fmt.Errorf("forecast: scenario name is required")
	}
	if maxMonths <= 0 || maxMonths > model.MaxForecastMonths {
		maxMonths = model.MaxForecastMonths
	}
	if s.ForecastMonths > maxMonths {
		return fmt.Errorf("forecast: horizon exceeds %d months", maxMonths)
	}
	for i, adj := range s.Adjustments {
		switch adj.Kind {
		case model.AdjustPercent:
			if adj.Value <= -100 {
				return fmt.Errorf("forecast: adjustment %d: percent delta must be above -100", i+1)
			}
		case model.AdjustFixed:
		case model.AdjustRemove:
			if adj.Service == "" {
				return fmt.Errorf("forecast: adjustment %d: removal requires a service", i+1)
			}
		default:
			return fmt.Errorf("forecast: adjustment %d: unknown kind %q", i+1, adj.Kind)
		}
		if adj.StartMonth < 0 || adj.EndMonth < 0 {
			return fmt.Errorf("forecast: adjustment %d: month scope must be positive", i+1)
		}
		if adj.StartMonth > 0 && adj.EndMonth > 0 && adj.EndMonth < adj.StartMonth {
			return fmt.Errorf("forecast: adjustment %d: end month precedes start month", i+1)
		}
	}
	return nil
}
