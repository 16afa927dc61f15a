package model

import (
	"time"

	"github.com/google/uuid"
)

// AdjustmentKind is the type of a scenario adjustment.
type AdjustmentKind string

const (
	AdjustPercent AdjustmentKind = "percent"
	AdjustFixed   AdjustmentKind = "fixed"
	AdjustRemove  AdjustmentKind = "remove"
)

// MaxForecastMonths bounds the forecast horizon.
const MaxForecastMonths = 12

// MonthlyForecast is one projected month of cost.
type MonthlyForecast struct {
	Month      string  `json:"month"` // YYYY-MM
	Cost       float64 `json:"cost"`
	Confidence float64 `json:"confidence"`
}

// ScenarioAdjustment is one declarative change applied on top of a baseline
// forecast. StartMonth/EndMonth are 1-based offsets into the forecast horizon;
// zero values mean "all months". Service scoping applies to removals.
type ScenarioAdjustment struct {
	Kind       AdjustmentKind `json:"kind"`
	Value      float64        `json:"value,omitempty"`
	StartMonth int            `json:"start_month,omitempty"`
	EndMonth   int            `json:"end_month,omitempty"`
	Service    string         `json:"service,omitempty"`
}

// ForecastScenario is a named, ordered list of adjustments owned by one user.
type ForecastScenario struct {
	BaseEntity
	UserID         uuid.UUID            `json:"user_id" db:"user_id"`
	Name           string               `json:"name" db:"name"`
	Description    string               `json:"description" db:"description"`
	Adjustments    []ScenarioAdjustment `json:"adjustments" db:"adjustments"`
	ForecastMonths int                  `json:"forecast_months" db:"forecast_months"`
}

// ScenarioResult is the outcome of evaluating a scenario against a baseline.
type ScenarioResult struct {
	Scenario         *ForecastScenario `json:"scenario,omitempty"`
	BaseForecast     []MonthlyForecast `json:"base_forecast"`
	ScenarioForecast []MonthlyForecast `json:"scenario_forecast"`
	Narrative        string            `json:"narrative"`
	ComputedAt       time.Time         `json:"computed_at"`
}

// ForecastFilter narrows the history the baseline forecast is built from.
type ForecastFilter struct {
	AccountID *uuid.UUID
	Service   string
}
