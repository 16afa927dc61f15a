package model

import (
	"time"

	"github.com/google/uuid"
)

// ProviderAccount represents one connected external billing relationship.
type ProviderAccount struct {
	BaseEntity
	UserID        uuid.UUID      `json:"user_id" db:"user_id"`
	ProviderType  ProviderType   `json:"provider_type" db:"provider_type"`
	Alias         string         `json:"alias" db:"alias"`
	Active        bool           `json:"active" db:"active"`
	Kind          ConnectionKind `json:"connection_kind" db:"connection_kind"`
	Credentials   []byte         `json:"-" db:"credentials"` // encrypted, never serialized
	LastSyncAt    *time.Time     `json:"last_sync_at,omitempty" db:"last_sync_at"`
	Health        HealthStatus   `json:"health" db:"health"`
	HealthMessage string         `json:"health_message" db:"health_message"`
}

// AWSCredentials holds AWS access credentials for manual connections, or the
// role identifiers for automated role-based connections.
type AWSCredentials struct {
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	Region          string `json:"region"`
	RoleARN         string `json:"role_arn,omitempty"`
	ExternalID      string `json:"external_id,omitempty"`
}

// AzureCredentials holds Azure service principal credentials.
type AzureCredentials struct {
	TenantID       string `json:"tenant_id"`
	ClientID       string `json:"client_id"`
	ClientSecret   string `json:"client_secret"`
	SubscriptionID string `json:"subscription_id"`
}

// DigitalOceanCredentials holds a DigitalOcean personal access token.
type DigitalOceanCredentials struct {
	APIToken string `json:"api_token"`
}

// CreateAccountRequest is the API request to connect a provider account.
type CreateAccountRequest struct {
	ProviderType string         `json:"provider_type"`
	Alias        string         `json:"alias"`
	Kind         ConnectionKind `json:"connection_kind"`
	Credentials  any            `json:"credentials"`
}

// UpdateAccountRequest is the API request to update a provider account.
type UpdateAccountRequest struct {
	Alias       *string `json:"alias,omitempty"`
	Active      *bool   `json:"active,omitempty"`
	Credentials any     `json:"credentials,omitempty"`
}
