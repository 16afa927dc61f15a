package model

import "github.com/google/uuid"

// RecommendationStatus is the lifecycle of a recommendation.
type RecommendationStatus string

const (
	RecommendationActive      RecommendationStatus = "active"
	RecommendationDismissed   RecommendationStatus = "dismissed"
	RecommendationImplemented RecommendationStatus = "implemented"
)

// RecommendationCategory groups optimization suggestions.
type RecommendationCategory string

const (
	CategoryRightsizing  RecommendationCategory = "rightsizing"
	CategorySavingsPlans RecommendationCategory = "savings_plans"
	CategoryIdleSpend    RecommendationCategory = "idle_spend"
)

// Recommendation is a best-effort, non-authoritative optimization suggestion.
type Recommendation struct {
	BaseEntity
	AccountID        uuid.UUID              `json:"account_id" db:"account_id"`
	Category         RecommendationCategory `json:"category" db:"category"`
	Priority         Priority               `json:"priority" db:"priority"`
	Title            string                 `json:"title" db:"title"`
	Detail           string                 `json:"detail" db:"detail"`
	EstimatedSavings float64                `json:"estimated_savings" db:"estimated_savings"`
	Status           RecommendationStatus   `json:"status" db:"status"`
}

// PriorityForSavings classifies a recommendation by monthly savings.
func PriorityForSavings(savings float64) Priority {
	switch {
	case savings >= 500:
		return PriorityHigh
	case savings >= 100:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
