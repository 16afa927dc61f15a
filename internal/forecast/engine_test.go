package forecast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costlens/backend/internal/config"
	"github.com/costlens/backend/internal/model"
	"github.com/costlens/backend/internal/repository"
)

var forecastToday = time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

type fakeHistorySource struct {
	totals    []repository.DailyTotal
	perFilter map[string][]repository.DailyTotal
	err       error
}

func (f *fakeHistorySource) UpsertSnapshot(ctx context.Context, s *model.CostSnapshot) error {
	return nil
}

func (f *fakeHistorySource) GetSnapshot(ctx context.Context, accountID uuid.UUID, month, year int) (*model.CostSnapshot, error) {
	return nil, nil
}

func (f *fakeHistorySource) GetSnapshotsByUser(ctx context.Context, userID uuid.UUID, month, year int) ([]*model.CostSnapshot, error) {
	return nil, nil
}

func (f *fakeHistorySource) UpsertDailyPoints(ctx context.Context, points []model.DailyCostPoint) error {
	return nil
}

func (f *fakeHistorySource) GetDailyPoints(ctx context.Context, accountID uuid.UUID, dateRange model.DateRange) ([]model.DailyCostPoint, error) {
	return nil, nil
}

func (f *fakeHistorySource) GetDailyTotals(ctx context.Context, filter model.CostFilter) ([]repository.DailyTotal, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.perFilter != nil {
		if totals, ok := f.perFilter[filter.Service]; ok {
			return totals, nil
		}
	}
	return f.totals, nil
}

func (f *fakeHistorySource) GetMonthlyTotal(ctx context.Context, accountID uuid.UUID, month, year int) (float64, error) {
	return 0, nil
}

type fakeScenarioRepo struct {
	scenarios map[uuid.UUID]*model.ForecastScenario
}

func newFakeScenarioRepo(scenarios ...*model.ForecastScenario) *fakeScenarioRepo {
	r := &fakeScenarioRepo{scenarios: make(map[uuid.UUID]*model.ForecastScenario)}
	for _, s := range scenarios {
		r.scenarios[s.ID] = s
	}
	return r
}

func (r *fakeScenarioRepo) Create(ctx context.Context, s *model.ForecastScenario) error {
	r.scenarios[s.ID] = s
	return nil
}

func (r *fakeScenarioRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.ForecastScenario, error) {
	return r.scenarios[id], nil
}

func (r *fakeScenarioRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.ForecastScenario, error) {
	var out []*model.ForecastScenario
	for _, s := range r.scenarios {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeScenarioRepo) Update(ctx context.Context, s *model.ForecastScenario) error {
	r.scenarios[s.ID] = s
	return nil
}

func (r *fakeScenarioRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.scenarios, id)
	return nil
}

// flatHistory builds days of constant daily spend ending at forecastToday.
func flatHistory(days int, cost float64) []repository.DailyTotal {
	totals := make([]repository.DailyTotal, 0, days)
	for i := days - 1; i >= 0; i-- {
		totals = append(totals, repository.DailyTotal{
			Date: forecastToday.AddDate(0, 0, -i),
			Cost: cost,
		})
	}
	return totals
}

func newForecastEngine(costs *fakeHistorySource, scenarios *fakeScenarioRepo) *Engine {
	if scenarios == nil {
		scenarios = newFakeScenarioRepo()
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEngine(costs, scenarios, config.ForecastConfig{HistoryDays: 365, MaxMonths: 12}, logger)
	e.now = func() time.Time { return forecastToday }
	return e
}

func TestBaselineFlatHistory(t *testing.T) {
	e := newForecastEngine(&fakeHistorySource{totals: flatHistory(200, 10)}, nil)

	out, err := e.Baseline(context.Background(), uuid.New(), 3, model.ForecastFilter{})
	require.NoError(t, err)
	require.Len(t, out, 3)

	// Flat history means zero growth; each month is level * days in month.
	assert.Equal(t, "2026-09", out[0].Month)
	assert.Equal(t, "2026-10", out[1].Month)
	assert.Equal(t, "2026-11", out[2].Month)
	assert.InDelta(t, 300, out[0].Cost, 1e-9)
	assert.InDelta(t, 310, out[1].Cost, 1e-9)
	assert.InDelta(t, 300, out[2].Cost, 1e-9)
}

func TestBaselineConfidenceDecaysWithHorizon(t *testing.T) {
	e := newForecastEngine(&fakeHistorySource{totals: flatHistory(200, 10)}, nil)

	out, err := e.Baseline(context.Background(), uuid.New(), 6, model.ForecastFilter{})
	require.NoError(t, err)

	for i := 1; i < len(out); i++ {
		assert.LessOrEqual(t, out[i].Confidence, out[i-1].Confidence)
	}
	for _, f := range out {
		assert.GreaterOrEqual(t, f.Confidence, 0.3)
		assert.LessOrEqual(t, f.Confidence, 0.95)
	}
}

func TestBaselineGrowthIsBounded(t *testing.T) {
	// Previous window at 10/day, recent window at 100/day, raw growth 900%.
	totals := append(flatHistory(56, 10)[:28], flatHistory(28, 100)...)
	e := newForecastEngine(&fakeHistorySource{totals: totals}, nil)

	out, err := e.Baseline(context.Background(), uuid.New(), 2, model.ForecastFilter{})
	require.NoError(t, err)

	// Growth clamps to +50%: 100 * 1.5 * 30 days for September.
	assert.InDelta(t, 100*1.5*30, out[0].Cost, 1e-6)
	assert.InDelta(t, 100*1.5*1.5*31, out[1].Cost, 1e-6)
}

func TestBaselineEmptyHistory(t *testing.T) {
	e := newForecastEngine(&fakeHistorySource{}, nil)

	out, err := e.Baseline(context.Background(), uuid.New(), 3, model.ForecastFilter{})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, f := range out {
		assert.Zero(t, f.Cost)
		assert.InDelta(t, 0.3, f.Confidence, 1e-9)
	}
}

func TestBaselineClampsHorizon(t *testing.T) {
	e := newForecastEngine(&fakeHistorySource{totals: flatHistory(30, 10)}, nil)

	out, err := e.Baseline(context.Background(), uuid.New(), 0, model.ForecastFilter{})
	require.NoError(t, err)
	assert.Len(t, out, 6, "zero horizon falls back to the default")

	out, err = e.Baseline(context.Background(), uuid.New(), 99, model.ForecastFilter{})
	require.NoError(t, err)
	assert.Len(t, out, 12, "horizon is capped at the configured maximum")
}

func TestBaselinePropagatesLoadError(t *testing.T) {
	e := newForecastEngine(&fakeHistorySource{err: errors.New("db down")}, nil)

	_, err := e.Baseline(context.Background(), uuid.New(), 3, model.ForecastFilter{})
	assert.Error(t, err)
}

func TestComputeAppliesStoredScenario(t *testing.T) {
	userID := uuid.New()
	scenario := &model.ForecastScenario{
		BaseEntity:     model.NewBaseEntity(),
		UserID:         userID,
		Name:           "10% cut",
		ForecastMonths: 3,
		Adjustments: []model.ScenarioAdjustment{
			{Kind: model.AdjustPercent, Value: -10},
		},
	}
	e := newForecastEngine(&fakeHistorySource{totals: flatHistory(200, 10)}, newFakeScenarioRepo(scenario))

	result, err := e.Compute(context.Background(), userID, scenario.ID, model.ForecastFilter{})
	require.NoError(t, err)
	require.Len(t, result.BaseForecast, 3)
	require.Len(t, result.ScenarioForecast, 3)
	for i := range result.BaseForecast {
		assert.InDelta(t, result.BaseForecast[i].Cost*0.9, result.ScenarioForecast[i].Cost, 1e-6)
	}
	assert.Equal(t, forecastToday, result.ComputedAt)
}

func TestComputeOwnershipEnforced(t *testing.T) {
	scenario := &model.ForecastScenario{
		BaseEntity: model.NewBaseEntity(),
		UserID:     uuid.New(),
		Name:       "someone else's",
	}
	e := newForecastEngine(&fakeHistorySource{}, newFakeScenarioRepo(scenario))

	_, err := e.Compute(context.Background(), uuid.New(), scenario.ID, model.ForecastFilter{})
	assert.ErrorContains(t, err, "not found")
}

func TestComputeRemovalUsesServiceHistory(t *testing.T) {
	userID := uuid.New()
	scenario := &model.ForecastScenario{
		BaseEntity:     model.NewBaseEntity(),
		UserID:         userID,
		Name:           "drop EC2",
		ForecastMonths: 2,
		Adjustments: []model.ScenarioAdjustment{
			{Kind: model.AdjustRemove, Service: "Amazon EC2"},
		},
	}
	costs := &fakeHistorySource{
		totals: flatHistory(200, 10),
		perFilter: map[string][]repository.DailyTotal{
			"Amazon EC2": flatHistory(200, 4),
		},
	}
	e := newForecastEngine(costs, newFakeScenarioRepo(scenario))

	result, err := e.Compute(context.Background(), userID, scenario.ID, model.ForecastFilter{})
	require.NoError(t, err)
	for i := range result.BaseForecast {
		assert.InDelta(t, result.BaseForecast[i].Cost*0.6, result.ScenarioForecast[i].Cost, 1e-6,
			"removing a service subtracts its own projection, not a flat share")
	}
}

func TestPreviewRejectsInvalidScenario(t *testing.T) {
	e := newForecastEngine(&fakeHistorySource{}, nil)

	cases := []*model.ForecastScenario{
		{Name: ""},
		{Name: "bad percent", Adjustments: []model.ScenarioAdjustment{{Kind: model.AdjustPercent, Value: -100}}},
		{Name: "bad removal", Adjustments: []model.ScenarioAdjustment{{Kind: model.AdjustRemove}}},
		{Name: "bad kind", Adjustments: []model.ScenarioAdjustment{{Kind: "triple"}}},
		{Name: "bad scope", Adjustments: []model.ScenarioAdjustment{{Kind: model.AdjustFixed, StartMonth: 3, EndMonth: 2}}},
		{Name: "too far", ForecastMonths: 13},
	}
	for _, s := range cases {
		_, err := e.Preview(context.Background(), uuid.New(), s, model.ForecastFilter{})
		assert.Error(t, err, "scenario %q must be rejected", s.Name)
	}
}

func TestCreateScenarioAssignsOwner(t *testing.T) {
	repo := newFakeScenarioRepo()
	e := newForecastEngine(&fakeHistorySource{}, repo)
	userID := uuid.New()

	scenario := &model.ForecastScenario{Name: "plan A"}
	require.NoError(t, e.CreateScenario(context.Background(), userID, scenario))

	stored := repo.scenarios[scenario.ID]
	require.NotNil(t, stored)
	assert.Equal(t, userID, stored.UserID)
	assert.Equal(t, 6, stored.ForecastMonths, "unset horizon defaults")
}

func TestDeleteScenarioOwnershipEnforced(t *testing.T) {
	scenario := &model.ForecastScenario{
		BaseEntity: model.NewBaseEntity(),
		UserID:     uuid.New(),
		Name:       "keep out",
	}
	repo := newFakeScenarioRepo(scenario)
	e := newForecastEngine(&fakeHistorySource{}, repo)

	err := e.DeleteScenario(context.Background(), uuid.New(), scenario.ID)
	assert.ErrorContains(t, err, "not found")
	assert.NotNil(t, repo.scenarios[scenario.ID], "foreign scenarios must survive")
}
