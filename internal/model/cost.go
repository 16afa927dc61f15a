package model

import (
	"time"

	"github.com/google/uuid"
)

// CostSnapshot is the normalized monthly cost state for one account. At most
// one snapshot exists per (account, month, year); each sync overwrites it.
type CostSnapshot struct {
	BaseEntity
	AccountID          uuid.UUID     `json:"account_id" db:"account_id"`
	Month              int           `json:"month" db:"month"`
	Year               int           `json:"year" db:"year"`
	CurrentMonthCost   float64       `json:"current_month_cost" db:"current_month_cost"`
	LastMonthCost      float64       `json:"last_month_cost" db:"last_month_cost"`
	ForecastCost       float64       `json:"forecast_cost" db:"forecast_cost"`
	ForecastConfidence float64       `json:"forecast_confidence" db:"forecast_confidence"`
	Credits            float64       `json:"credits" db:"credits"`
	Savings            float64       `json:"savings" db:"savings"`
	Tax                float64       `json:"tax" db:"tax"`
	Currency           Currency      `json:"currency" db:"currency"`
	Services           []ServiceCost `json:"services" db:"services"`
}

// ServiceCost is one per-service entry in a snapshot.
type ServiceCost struct {
	Service       string  `json:"service"`
	Cost          float64 `json:"cost"`
	PercentChange float64 `json:"percent_change"`
}

// DailyCostPoint is one day of cost for an account, optionally per service.
// Unique per (account, date, service); repeated syncs upsert.
type DailyCostPoint struct {
	ID        int64     `json:"id" db:"id"`
	AccountID uuid.UUID `json:"account_id" db:"account_id"`
	Date      time.Time `json:"date" db:"date"`
	Service   string    `json:"service" db:"service"`
	Cost      float64   `json:"cost" db:"cost"`
	Synthetic bool      `json:"synthetic" db:"synthetic"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CostFilter narrows daily-cost queries.
type CostFilter struct {
	UserID    uuid.UUID
	AccountID *uuid.UUID
	Service   string
	DateRange DateRange
}
