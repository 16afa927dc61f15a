package model

import (
	"time"

	"github.com/google/uuid"
)

// AnomalyBaseline is the rolling reference point for one (account, service, date).
// A row only exists when enough history was available to compute the baseline.
type AnomalyBaseline struct {
	BaseEntity
	AccountID       uuid.UUID `json:"account_id" db:"account_id"`
	Service         string    `json:"service" db:"service"`
	Date            time.Time `json:"date" db:"date"`
	BaselineCost    float64   `json:"baseline_cost" db:"baseline_cost"`
	CurrentCost     float64   `json:"current_cost" db:"current_cost"`
	VariancePercent float64   `json:"variance_percent" db:"variance_percent"`
	IsIncrease      bool      `json:"is_increase" db:"is_increase"`
}

// AnomalyFilter narrows anomaly queries.
type AnomalyFilter struct {
	UserID    uuid.UUID
	AccountID *uuid.UUID
	Service   string
	DateRange DateRange
}

// Variance computes the percentage deviation of current from baseline.
func Variance(baseline, current float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (current - baseline) / baseline * 100
}
