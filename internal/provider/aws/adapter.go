// Package aws provides the AWS billing adapter backed by Cost Explorer.
package aws

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer/types"

	"github.com/costlens/backend/internal/credential"
	"github.com/costlens/backend/internal/model"
	"github.com/costlens/backend/internal/provider"
	"github.com/costlens/backend/internal/syncerror"
)

const dateLayout = "2006-01-02"

// Adapter implements the AWS billing adapter.
type Adapter struct {
	logger *slog.Logger

	// newClient is swappable in tests.
	newClient func(ctx context.Context, creds *credential.LiveCredentials) (CostExplorerAPI, error)
}

// CostExplorerAPI is the subset of the Cost Explorer client the adapter uses.
type CostExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

// NewAdapter creates the AWS adapter.
func NewAdapter(logger *slog.Logger) *Adapter {
	return &Adapter{
		logger:    logger,
		newClient: newCostExplorerClient,
	}
}

func newCostExplorerClient(ctx context.Context, creds *credential.LiveCredentials) (CostExplorerAPI, error) {
	region := creds.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("aws: failed to load config: %w", err)
	}
	return costexplorer.NewFromConfig(awsCfg), nil
}

// Type returns the provider-type tag.
func (a *Adapter) Type() model.ProviderType { return model.ProviderAWS }

// FetchCostData retrieves daily, service-grouped cost data from Cost Explorer
// and normalizes it into a draft.
func (a *Adapter) FetchCostData(ctx context.Context, creds *credential.LiveCredentials, start, end time.Time) (*provider.CostDraft, error) {
	a.logger.Info("fetching AWS costs",
		"start", start.Format(dateLayout),
		"end", end.Format(dateLayout),
	)

	client, err := a.newClient(ctx, creds)
	if err != nil {
		return nil, syncerror.ProviderAPI("aws.fetch_cost_data", err)
	}

	// Cost Explorer treats End as exclusive.
	output, err := client.GetCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
		TimePeriod: &types.DateInterval{
			Start: aws.String(start.Format(dateLayout)),
			End:   aws.String(end.AddDate(0, 0, 1).Format(dateLayout)),
		},
		Granularity: types.GranularityDaily,
		Metrics:     []string{"UnblendedCost", "UsageQuantity"},
		GroupBy: []types.GroupDefinition{
			{Type: types.GroupDefinitionTypeDimension, Key: aws.String("SERVICE")},
		},
	})
	if err != nil {
		return nil, syncerror.ProviderAPI("aws.fetch_cost_data", err)
	}

	draft := &provider.CostDraft{
		Provider:     model.ProviderAWS,
		Currency:     model.CurrencyUSD,
		UsageMetrics: make(map[string]float64),
	}

	serviceTotals := make(map[string]float64)
	currentMonth := end.Month()
	currentYear := end.Year()

	for _, result := range output.ResultsByTime {
		if result.TimePeriod == nil || result.TimePeriod.Start == nil {
			continue
		}
		date, err := time.Parse(dateLayout, *result.TimePeriod.Start)
		if err != nil {
			continue
		}

		for _, group := range result.Groups {
			amount := metricAmount(group.Metrics, "UnblendedCost")
			usage := metricAmount(group.Metrics, "UsageQuantity")

			service := "Other"
			if len(group.Keys) > 0 {
				service = group.Keys[0]
			}

			draft.DailyCosts = append(draft.DailyCosts, model.DailyCostPoint{
				Date:    date,
				Service: service,
				Cost:    amount,
			})

			if date.Month() == currentMonth && date.Year() == currentYear {
				draft.CurrentMonthCost += amount
				serviceTotals[service] += amount
			} else {
				draft.LastMonthCost += amount
			}
			draft.UsageMetrics[service] += usage
		}
	}

	for service, total := range serviceTotals {
		draft.Services = append(draft.Services, model.ServiceCost{
			Service: service,
			Cost:    total,
		})
	}
	// Map iteration order would reshuffle the persisted list on every sync.
	sort.Slice(draft.Services, func(i, j int) bool {
		return draft.Services[i].Service < draft.Services[j].Service
	})

	return draft, nil
}

// SynthesizeDailyData is a no-op for AWS: Cost Explorer reports native daily
// granularity.
func (a *Adapter) SynthesizeDailyData(draft *provider.CostDraft, start, end time.Time) []model.DailyCostPoint {
	return draft.DailyCosts
}

func metricAmount(metrics map[string]types.MetricValue, name string) float64 {
	amount := 0.0
	if m, ok := metrics[name]; ok && m.Amount != nil {
		fmt.Sscanf(*m.Amount, "%f", &amount)
	}
	return amount
}
