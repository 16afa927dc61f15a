package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costlens/backend/internal/model"
)

func baseForecast(costs ...float64) []model.MonthlyForecast {
	out := make([]model.MonthlyForecast, len(costs))
	for i, c := range costs {
		out[i] = model.MonthlyForecast{Month: "2026-10", Cost: c, Confidence: 0.8}
	}
	return out
}

func TestApplyPercentAcrossAllMonths(t *testing.T) {
	base := baseForecast(100, 100, 100)
	scenario := &model.ForecastScenario{
		Adjustments: []model.ScenarioAdjustment{
			{Kind: model.AdjustPercent, Value: 10},
		},
	}

	out, narrative := Apply(base, scenario, nil)
	require.Len(t, out, 3)
	for _, f := range out {
		assert.InDelta(t, 110, f.Cost, 1e-9)
	}
	assert.Contains(t, narrative, "+10.0%")
}

func TestApplyFixedDeltaScoped(t *testing.T) {
	base := baseForecast(100, 100, 100, 100)
	scenario := &model.ForecastScenario{
		Adjustments: []model.ScenarioAdjustment{
			{Kind: model.AdjustFixed, Value: -30, StartMonth: 2, EndMonth: 3},
		},
	}

	out, _ := Apply(base, scenario, nil)
	assert.InDelta(t, 100, out[0].Cost, 1e-9)
	assert.InDelta(t, 70, out[1].Cost, 1e-9)
	assert.InDelta(t, 70, out[2].Cost, 1e-9)
	assert.InDelta(t, 100, out[3].Cost, 1e-9)
}

func TestApplyRemoveService(t *testing.T) {
	base := baseForecast(100, 100)
	scenario := &model.ForecastScenario{
		Adjustments: []model.ScenarioAdjustment{
			{Kind: model.AdjustRemove, Service: "Amazon EC2"},
		},
	}
	serviceBaselines := map[string][]float64{"Amazon EC2": {40, 45}}

	out, narrative := Apply(base, scenario, serviceBaselines)
	assert.InDelta(t, 60, out[0].Cost, 1e-9)
	assert.InDelta(t, 55, out[1].Cost, 1e-9)
	assert.Contains(t, narrative, "Amazon EC2")
}

func TestApplyRemoveUnknownServiceIsNoOp(t *testing.T) {
	base := baseForecast(100)
	scenario := &model.ForecastScenario{
		Adjustments: []model.ScenarioAdjustment{
			{Kind: model.AdjustRemove, Service: "Unknown"},
		},
	}

	out, narrative := Apply(base, scenario, nil)
	assert.InDelta(t, 100, out[0].Cost, 1e-9)
	assert.Contains(t, narrative, "No adjustments",
		"skipped adjustments must not claim an applied count")
}

func TestApplyOutOfRangeSpanFallsBackToBaseline(t *testing.T) {
	base := baseForecast(100, 100)
	scenario := &model.ForecastScenario{
		Adjustments: []model.ScenarioAdjustment{
			{Kind: model.AdjustPercent, Value: 25, StartMonth: 5, EndMonth: 6},
		},
	}

	out, narrative := Apply(base, scenario, nil)
	assert.Equal(t, base, out)
	assert.Contains(t, narrative, "No adjustments")
}

func TestApplyEmptyAdjustmentsReturnsBaseline(t *testing.T) {
	base := baseForecast(120, 130)

	out, narrative := Apply(base, &model.ForecastScenario{}, nil)
	assert.Equal(t, base, out)
	assert.Contains(t, narrative, "No adjustments")
}

func TestApplyNeverMutatesBase(t *testing.T) {
	base := baseForecast(100)
	scenario := &model.ForecastScenario{
		Adjustments: []model.ScenarioAdjustment{{Kind: model.AdjustPercent, Value: 50}},
	}

	Apply(base, scenario, nil)
	assert.InDelta(t, 100, base[0].Cost, 1e-9)
}

func TestApplyDeterministic(t *testing.T) {
	base := baseForecast(100, 200, 300)
	scenario := &model.ForecastScenario{
		Adjustments: []model.ScenarioAdjustment{
			{Kind: model.AdjustPercent, Value: -20},
			{Kind: model.AdjustFixed, Value: 15, StartMonth: 1, EndMonth: 1},
		},
	}

	a, na := Apply(base, scenario, nil)
	b, nb := Apply(base, scenario, nil)
	assert.Equal(t, a, b)
	assert.Equal(t, na, nb)
}

func TestApplyClampsNegativeCosts(t *testing.T) {
	base := baseForecast(10)
	scenario := &model.ForecastScenario{
		Adjustments: []model.ScenarioAdjustment{{Kind: model.AdjustFixed, Value: -50}},
	}

	out, _ := Apply(base, scenario, nil)
	assert.Zero(t, out[0].Cost)
}

func TestApplyOrderedAdjustmentsCompose(t *testing.T) {
	base := baseForecast(100)
	scenario := &model.ForecastScenario{
		Adjustments: []model.ScenarioAdjustment{
			{Kind: model.AdjustPercent, Value: 10},
			{Kind: model.AdjustFixed, Value: -10},
		},
	}

	// 100 * 1.1 = 110, then -10 = 100.
	out, _ := Apply(base, scenario, nil)
	assert.InDelta(t, 100, out[0].Cost, 1e-9)
}
