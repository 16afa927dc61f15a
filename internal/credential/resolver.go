// Package credential resolves stored account records into live credentials,
// performing role-based token exchange for automated connections.
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/costlens/backend/internal/crypto"
	"github.com/costlens/backend/internal/model"
	"github.com/costlens/backend/internal/syncerror"
)

// LiveCredentials is a short-lived capability object passed directly to the
// adapter call. It is never cached or persisted; Expiry is zero for static
// (manual) credentials.
type LiveCredentials struct {
	Provider        model.ProviderType
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string

	// Azure service principal fields.
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string

	// DigitalOcean personal access token.
	APIToken string

	Expiry time.Time
}

// Expired reports whether temporary credentials have passed their expiry.
func (c *LiveCredentials) Expired() bool {
	return !c.Expiry.IsZero() && time.Now().After(c.Expiry)
}

// STSAPI is the subset of the STS client used for role exchange.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// Resolver turns a stored ProviderAccount into live credentials.
type Resolver struct {
	stsClient       STSAPI
	encryptionKey   []byte
	sessionDuration time.Duration
	logger          *slog.Logger
}

// NewResolver creates a Resolver. The STS client carries the resolving
// principal's own credentials and is only used for automated connections.
func NewResolver(stsClient STSAPI, encryptionKey string, sessionDuration time.Duration, logger *slog.Logger) *Resolver {
	if sessionDuration <= 0 {
		sessionDuration = time.Hour
	}
	return &Resolver{
		stsClient:       stsClient,
		encryptionKey:   crypto.DeriveKey(encryptionKey),
		sessionDuration: sessionDuration,
		logger:          logger,
	}
}

// Resolve decrypts the account's stored credential material and, for
// automated connections, exchanges the stored role for a bounded-lifetime
// session. All failures are scoped to this account.
func (r *Resolver) Resolve(ctx context.Context, account *model.ProviderAccount) (*LiveCredentials, error) {
	plaintext, err := crypto.Decrypt(account.Credentials, r.encryptionKey)
	if err != nil {
		return nil, syncerror.Configuration("credential.resolve",
			"stored credentials could not be decrypted; re-enter them for this account").WithAccount(account.ID)
	}

	switch account.ProviderType {
	case model.ProviderAWS:
		return r.resolveAWS(ctx, account, plaintext)
	case model.ProviderAzure:
		return r.resolveAzure(account, plaintext)
	case model.ProviderDigitalOcean:
		return r.resolveDigitalOcean(account, plaintext)
	default:
		return nil, syncerror.Configuration("credential.resolve",
			fmt.Sprintf("unsupported provider type %q", account.ProviderType)).WithAccount(account.ID)
	}
}

func (r *Resolver) resolveAWS(ctx context.Context, account *model.ProviderAccount, plaintext []byte) (*LiveCredentials, error) {
	var stored model.AWSCredentials
	if err := json.Unmarshal(plaintext, &stored); err != nil {
		return nil, syncerror.Configuration("credential.resolve", "stored AWS credentials are malformed").WithAccount(account.ID)
	}

	if account.Kind == model.ConnectionManual {
		if stored.AccessKeyID == "" || stored.SecretAccessKey == "" {
			return nil, syncerror.Configuration("credential.resolve",
				"manual AWS connections require an access key id and secret access key").WithAccount(account.ID)
		}
		return &LiveCredentials{
			Provider:        model.ProviderAWS,
			AccessKeyID:     stored.AccessKeyID,
			SecretAccessKey: stored.SecretAccessKey,
			Region:          stored.Region,
		}, nil
	}

	// Automated connection: fail fast on missing role material before any
	// network call.
	if stored.RoleARN == "" {
		return nil, syncerror.Configuration("credential.resolve",
			"automated AWS connections require a role ARN").WithAccount(account.ID)
	}
	if stored.ExternalID == "" {
		return nil, syncerror.Configuration("credential.resolve",
			"automated AWS connections require an external id").WithAccount(account.ID)
	}

	return r.assumeRole(ctx, account, stored)
}

// assumeRole performs the secure token exchange. The external id is passed as
// a shared secret to defend against confused-deputy substitution.
func (r *Resolver) assumeRole(ctx context.Context, account *model.ProviderAccount, stored model.AWSCredentials) (*LiveCredentials, error) {
	if r.stsClient == nil {
		return nil, syncerror.Configuration("credential.assume_role",
			"resolver credentials are not configured; automated connections are unavailable").WithAccount(account.ID)
	}
	out, err := r.stsClient.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(stored.RoleARN),
		RoleSessionName: aws.String("costlens-sync-" + account.ID.String()),
		ExternalId:      aws.String(stored.ExternalID),
		DurationSeconds: aws.Int32(int32(r.sessionDuration.Seconds())),
	})
	if err != nil {
		if isAccessDenied(err) {
			return nil, syncerror.Authorization("credential.assume_role", err).WithAccount(account.ID)
		}
		return nil, syncerror.Credential("credential.assume_role", err).WithAccount(account.ID)
	}

	creds := out.Credentials
	if creds == nil || creds.AccessKeyId == nil || creds.SecretAccessKey == nil || creds.SessionToken == nil {
		return nil, syncerror.Credential("credential.assume_role",
			fmt.Errorf("provider returned an empty credential set")).WithAccount(account.ID)
	}

	live := &LiveCredentials{
		Provider:        model.ProviderAWS,
		AccessKeyID:     *creds.AccessKeyId,
		SecretAccessKey: *creds.SecretAccessKey,
		SessionToken:    *creds.SessionToken,
		Region:          stored.Region,
	}
	if creds.Expiration != nil {
		live.Expiry = *creds.Expiration
	}

	r.logger.Info("assumed role for account sync",
		"account_id", account.ID,
		"expiry", live.Expiry,
	)
	return live, nil
}

func (r *Resolver) resolveAzure(account *model.ProviderAccount, plaintext []byte) (*LiveCredentials, error) {
	var stored model.AzureCredentials
	if err := json.Unmarshal(plaintext, &stored); err != nil {
		return nil, syncerror.Configuration("credential.resolve", "stored Azure credentials are malformed").WithAccount(account.ID)
	}
	if stored.TenantID == "" || stored.ClientID == "" || stored.ClientSecret == "" || stored.SubscriptionID == "" {
		return nil, syncerror.Configuration("credential.resolve",
			"Azure connections require tenant id, client id, client secret and subscription id").WithAccount(account.ID)
	}
	return &LiveCredentials{
		Provider:       model.ProviderAzure,
		TenantID:       stored.TenantID,
		ClientID:       stored.ClientID,
		ClientSecret:   stored.ClientSecret,
		SubscriptionID: stored.SubscriptionID,
	}, nil
}

func (r *Resolver) resolveDigitalOcean(account *model.ProviderAccount, plaintext []byte) (*LiveCredentials, error) {
	var stored model.DigitalOceanCredentials
	if err := json.Unmarshal(plaintext, &stored); err != nil {
		return nil, syncerror.Configuration("credential.resolve", "stored DigitalOcean credentials are malformed").WithAccount(account.ID)
	}
	if stored.APIToken == "" {
		return nil, syncerror.Configuration("credential.resolve",
			"DigitalOcean connections require an API token").WithAccount(account.ID)
	}
	return &LiveCredentials{
		Provider: model.ProviderDigitalOcean,
		APIToken: stored.APIToken,
	}, nil
}

func isAccessDenied(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "AccessDenied") || strings.Contains(msg, "not authorized")
}
