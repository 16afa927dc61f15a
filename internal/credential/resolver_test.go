package credential

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costlens/backend/internal/crypto"
	"github.com/costlens/backend/internal/model"
	"github.com/costlens/backend/internal/syncerror"
)

const testMasterKey = "resolver-test-master-key"

type fakeSTS struct {
	calls  int
	output *sts.AssumeRoleOutput
	err    error
}

func (f *fakeSTS) AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func newTestResolver(stsClient STSAPI) *Resolver {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewResolver(stsClient, testMasterKey, time.Hour, logger)
}

func encryptCreds(t *testing.T, creds any) []byte {
	t.Helper()
	plaintext, err := json.Marshal(creds)
	require.NoError(t, err)
	blob, err := crypto.Encrypt(plaintext, crypto.DeriveKey(testMasterKey))
	require.NoError(t, err)
	return blob
}

func awsAccount(t *testing.T, kind model.ConnectionKind, creds model.AWSCredentials) *model.ProviderAccount {
	t.Helper()
	return &model.ProviderAccount{
		BaseEntity:   model.NewBaseEntity(),
		ProviderType: model.ProviderAWS,
		Kind:         kind,
		Credentials:  encryptCreds(t, creds),
	}
}

func TestResolveManualAWS(t *testing.T) {
	stsClient := &fakeSTS{}
	r := newTestResolver(stsClient)

	account := awsAccount(t, model.ConnectionManual, model.AWSCredentials{
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secret",
		Region:          "eu-west-1",
	})

	live, err := r.Resolve(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, "AKIAEXAMPLE", live.AccessKeyID)
	assert.Equal(t, "eu-west-1", live.Region)
	assert.Empty(t, live.SessionToken)
	assert.False(t, live.Expired())
	assert.Zero(t, stsClient.calls, "manual connections must not touch STS")
}

func TestResolveManualAWSMissingKeyPair(t *testing.T) {
	r := newTestResolver(&fakeSTS{})

	account := awsAccount(t, model.ConnectionManual, model.AWSCredentials{Region: "us-east-1"})

	_, err := r.Resolve(context.Background(), account)
	assert.Equal(t, syncerror.KindConfiguration, syncerror.KindOf(err))
}

func TestResolveAutomatedMissingExternalIDFailsFast(t *testing.T) {
	stsClient := &fakeSTS{}
	r := newTestResolver(stsClient)

	account := awsAccount(t, model.ConnectionAutomated, model.AWSCredentials{
		RoleARN: "arn:aws:iam::123456789012:role/costlens-readonly",
	})

	_, err := r.Resolve(context.Background(), account)
	assert.Equal(t, syncerror.KindConfiguration, syncerror.KindOf(err))
	assert.Zero(t, stsClient.calls, "misconfigured role material must fail before any network call")
}

func TestResolveAutomatedMissingRoleARNFailsFast(t *testing.T) {
	stsClient := &fakeSTS{}
	r := newTestResolver(stsClient)

	account := awsAccount(t, model.ConnectionAutomated, model.AWSCredentials{ExternalID: "ext-123"})

	_, err := r.Resolve(context.Background(), account)
	assert.Equal(t, syncerror.KindConfiguration, syncerror.KindOf(err))
	assert.Zero(t, stsClient.calls)
}

func TestResolveAutomatedAssumesRole(t *testing.T) {
	expiry := time.Now().Add(time.Hour).UTC()
	stsClient := &fakeSTS{
		output: &sts.AssumeRoleOutput{
			Credentials: &ststypes.Credentials{
				AccessKeyId:     aws.String("ASIATEMP"),
				SecretAccessKey: aws.String("temp-secret"),
				SessionToken:    aws.String("temp-token"),
				Expiration:      &expiry,
			},
		},
	}
	r := newTestResolver(stsClient)

	account := awsAccount(t, model.ConnectionAutomated, model.AWSCredentials{
		RoleARN:    "arn:aws:iam::123456789012:role/costlens-readonly",
		ExternalID: "ext-123",
		Region:     "us-east-1",
	})

	live, err := r.Resolve(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, 1, stsClient.calls)
	assert.Equal(t, "ASIATEMP", live.AccessKeyID)
	assert.Equal(t, "temp-token", live.SessionToken)
	assert.Equal(t, expiry, live.Expiry)
}

func TestResolveAutomatedAccessDenied(t *testing.T) {
	stsClient := &fakeSTS{err: errors.New("AccessDenied: not authorized to perform sts:AssumeRole")}
	r := newTestResolver(stsClient)

	account := awsAccount(t, model.ConnectionAutomated, model.AWSCredentials{
		RoleARN:    "arn:aws:iam::123456789012:role/costlens-readonly",
		ExternalID: "ext-123",
	})

	_, err := r.Resolve(context.Background(), account)
	assert.Equal(t, syncerror.KindAuthorization, syncerror.KindOf(err))
	assert.Contains(t, syncerror.HintOf(err), "external id")
}

func TestResolveAutomatedTransientFailureIsRetryable(t *testing.T) {
	stsClient := &fakeSTS{err: errors.New("connection reset by peer")}
	r := newTestResolver(stsClient)

	account := awsAccount(t, model.ConnectionAutomated, model.AWSCredentials{
		RoleARN:    "arn:aws:iam::123456789012:role/costlens-readonly",
		ExternalID: "ext-123",
	})

	_, err := r.Resolve(context.Background(), account)
	assert.Equal(t, syncerror.KindCredential, syncerror.KindOf(err))
	assert.True(t, syncerror.IsRetryable(err))
}

func TestResolveUndecryptableBlob(t *testing.T) {
	r := newTestResolver(&fakeSTS{})

	account := &model.ProviderAccount{
		BaseEntity:   model.NewBaseEntity(),
		ProviderType: model.ProviderAWS,
		Kind:         model.ConnectionManual,
		Credentials:  []byte("not-a-valid-blob"),
	}

	_, err := r.Resolve(context.Background(), account)
	assert.Equal(t, syncerror.KindConfiguration, syncerror.KindOf(err))
}

func TestResolveAzure(t *testing.T) {
	r := newTestResolver(&fakeSTS{})

	account := &model.ProviderAccount{
		BaseEntity:   model.NewBaseEntity(),
		ProviderType: model.ProviderAzure,
		Kind:         model.ConnectionManual,
		Credentials: encryptCreds(t, model.AzureCredentials{
			TenantID:       "tenant",
			ClientID:       "client",
			ClientSecret:   "secret",
			SubscriptionID: "sub",
		}),
	}

	live, err := r.Resolve(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, "sub", live.SubscriptionID)
}

func TestResolveDigitalOceanMissingToken(t *testing.T) {
	r := newTestResolver(&fakeSTS{})

	account := &model.ProviderAccount{
		BaseEntity:   model.NewBaseEntity(),
		ProviderType: model.ProviderDigitalOcean,
		Kind:         model.ConnectionManual,
		Credentials:  encryptCreds(t, model.DigitalOceanCredentials{}),
	}

	_, err := r.Resolve(context.Background(), account)
	assert.Equal(t, syncerror.KindConfiguration, syncerror.KindOf(err))
}
