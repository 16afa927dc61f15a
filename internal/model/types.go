// Package model contains the core domain entities for CostLens.
package model

import (
	"time"

	"github.com/google/uuid"
)

// ProviderType identifies a supported billing provider.
type ProviderType string

const (
	ProviderAWS          ProviderType = "aws"
	ProviderAzure        ProviderType = "azure"
	ProviderDigitalOcean ProviderType = "digitalocean"
)

// ConnectionKind distinguishes how credentials for an account were established.
type ConnectionKind string

const (
	ConnectionManual    ConnectionKind = "manual"
	ConnectionAutomated ConnectionKind = "automated"
)

// HealthStatus is the sync health of a connected account.
type HealthStatus string

const (
	HealthPending HealthStatus = "pending"
	HealthHealthy HealthStatus = "healthy"
	HealthError   HealthStatus = "error"
)

// Currency represents monetary currency codes.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// Priority represents recommendation priority levels.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// PlanTier is the subscription tier of a user, used only to gate email alerts.
type PlanTier string

const (
	TierFree PlanTier = "free"
	TierPro  PlanTier = "pro"
	TierTeam PlanTier = "team"
)

// DateRange represents a time period.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// BaseEntity contains common fields for all entities.
type BaseEntity struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewBaseEntity creates a new BaseEntity with generated ID and timestamps.
func NewBaseEntity() BaseEntity {
	now := time.Now().UTC()
	return BaseEntity{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
