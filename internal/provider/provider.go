// Package provider defines the billing provider adapter contract and registry.
package provider

import (
	"context"
	"time"

	"github.com/costlens/backend/internal/credential"
	"github.com/costlens/backend/internal/model"
)

// Adapter normalizes one external billing API. Implementations are stateless
// translations; they never persist anything and never cache credentials.
type Adapter interface {
	// Type returns the provider-type tag the adapter is registered under.
	Type() model.ProviderType

	// FetchCostData calls the external billing API for the given range and
	// returns a normalized draft. Upstream failures are returned as
	// syncerror.ProviderAPI errors.
	FetchCostData(ctx context.Context, creds *credential.LiveCredentials, start, end time.Time) (*CostDraft, error)

	// SynthesizeDailyData fills in daily points for providers whose native
	// API reports only period totals. Adapters with native daily granularity
	// return the draft's points unchanged.
	SynthesizeDailyData(draft *CostDraft, start, end time.Time) []model.DailyCostPoint
}

// CostDraft is the normalized output of one billing API fetch, before
// validation and enhancement by the orchestrator.
type CostDraft struct {
	Provider         model.ProviderType     `json:"provider"`
	CurrentMonthCost float64                `json:"current_month_cost"`
	LastMonthCost    float64                `json:"last_month_cost"`
	Credits          float64                `json:"credits"`
	Savings          float64                `json:"savings"`
	Tax              float64                `json:"tax"`
	Currency         model.Currency         `json:"currency"`
	DailyCosts       []model.DailyCostPoint `json:"daily_costs"`
	Services         []model.ServiceCost    `json:"services"`
	UsageMetrics     map[string]float64     `json:"usage_metrics,omitempty"`
}

// HasDailyGranularity reports whether the draft carries provider-reported
// daily points.
func (d *CostDraft) HasDailyGranularity() bool {
	return len(d.DailyCosts) > 0
}

// Registry maps provider-type tags to adapters. Adding a provider means
// implementing Adapter and registering the tag; the orchestrator never
// branches on provider type.
type Registry struct {
	adapters map[model.ProviderType]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[model.ProviderType]Adapter)}
}

// Register adds an adapter under its own type tag.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Type()] = a
}

// Get retrieves the adapter for a provider type.
func (r *Registry) Get(t model.ProviderType) (Adapter, bool) {
	a, ok := r.adapters[t]
	return a, ok
}

// Types returns all registered provider-type tags.
func (r *Registry) Types() []model.ProviderType {
	types := make([]model.ProviderType, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	return types
}
