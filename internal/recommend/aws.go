package recommend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer/types"

	"github.com/costlens/backend/internal/credential"
	"github.com/costlens/backend/internal/model"
)

// RecommendationAPI is the subset of the Cost Explorer client used for
// recommendations.
type RecommendationAPI interface {
	GetRightsizingRecommendation(ctx context.Context, params *costexplorer.GetRightsizingRecommendationInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetRightsizingRecommendationOutput, error)
	GetSavingsPlansPurchaseRecommendation(ctx context.Context, params *costexplorer.GetSavingsPlansPurchaseRecommendationInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetSavingsPlansPurchaseRecommendationOutput, error)
}

type awsSource struct {
	logger *slog.Logger

	// newClient is swappable in tests.
	newClient func(ctx context.Context, creds *credential.LiveCredentials) (RecommendationAPI, error)
}

func newAWSSource(logger *slog.Logger) *awsSource {
	return &awsSource{
		logger:    logger,
		newClient: newRecommendationClient,
	}
}

func newRecommendationClient(ctx context.Context, creds *credential.LiveCredentials) (RecommendationAPI, error) {
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
		return nil, fmt.Errorf("recommend: failed to load aws config: %w", err)
	}
	return costexplorer.NewFromConfig(awsCfg), nil
}

// fetch gathers rightsizing and Savings Plans recommendations. Each source is
// best effort; a failing source is logged and skipped.
func (s *awsSource) fetch(ctx context.Context, account *model.ProviderAccount, creds *credential.LiveCredentials) ([]*model.Recommendation, error) {
	client, err := s.newClient(ctx, creds)
	if err != nil {
		return nil, err
	}

	var recs []*model.Recommendation

	rightsizing, err := s.rightsizing(ctx, client, account)
	if err != nil {
		s.logger.Warn("rightsizing recommendations unavailable", "account_id", account.ID, "error", err)
	} else {
		recs = append(recs, rightsizing...)
	}

	savingsPlans, err := s.savingsPlans(ctx, client, account)
	if err != nil {
		s.logger.Warn("savings plans recommendations unavailable", "account_id", account.ID, "error", err)
	} else {
		recs = append(recs, savingsPlans...)
	}

	return recs, nil
}

func (s *awsSource) rightsizing(ctx context.Context, client RecommendationAPI, account *model.ProviderAccount) ([]*model.Recommendation, error) {
	output, err := client.GetRightsizingRecommendation(ctx, &costexplorer.GetRightsizingRecommendationInput{
		Service: aws.String("AmazonEC2"),
		Configuration: &types.RightsizingRecommendationConfiguration{
			RecommendationTarget: types.RecommendationTargetSameInstanceFamily,
			BenefitsConsidered:   true,
		},
	})
	if err != nil {
		return nil, err
	}

	var recs []*model.Recommendation
	for _, rec := range output.RightsizingRecommendations {
		if rec.RightsizingType != types.RightsizingTypeModify || rec.ModifyRecommendationDetail == nil {
			continue
		}

		savings := 0.0
		target := "a smaller instance"
		for _, t := range rec.ModifyRecommendationDetail.TargetInstances {
			if t.EstimatedMonthlySavings != nil {
				var v float64
				fmt.Sscanf(*t.EstimatedMonthlySavings, "%f", &v)
				savings += v
			}
			if t.ResourceDetails != nil && t.ResourceDetails.EC2ResourceDetails != nil && t.ResourceDetails.EC2ResourceDetails.InstanceType != nil {
				target = *t.ResourceDetails.EC2ResourceDetails.InstanceType
			}
		}

		resourceID := "instance"
		current := "current type"
		if rec.CurrentInstance != nil {
			if rec.CurrentInstance.ResourceId != nil {
				resourceID = *rec.CurrentInstance.ResourceId
			}
			if rec.CurrentInstance.ResourceDetails != nil && rec.CurrentInstance.ResourceDetails.EC2ResourceDetails != nil && rec.CurrentInstance.ResourceDetails.EC2ResourceDetails.InstanceType != nil {
				current = *rec.CurrentInstance.ResourceDetails.EC2ResourceDetails.InstanceType
			}
		}

		recs = append(recs, &model.Recommendation{
			BaseEntity:       model.NewBaseEntity(),
			AccountID:        account.ID,
			Category:         model.CategoryRightsizing,
			Priority:         model.PriorityForSavings(savings),
			Title:            fmt.Sprintf("Rightsize %s", resourceID),
			Detail:           fmt.Sprintf("Resize %s from %s to %s.", resourceID, current, target),
			EstimatedSavings: savings,
			Status:           model.RecommendationActive,
		})
	}
	return recs, nil
}

func (s *awsSource) savingsPlans(ctx context.Context, client RecommendationAPI, account *model.ProviderAccount) ([]*model.Recommendation, error) {
	output, err := client.GetSavingsPlansPurchaseRecommendation(ctx, &costexplorer.GetSavingsPlansPurchaseRecommendationInput{
		SavingsPlansType:     types.SupportedSavingsPlansTypeComputeSp,
		LookbackPeriodInDays: types.LookbackPeriodInDaysSixtyDays,
		TermInYears:          types.TermInYearsOneYear,
		PaymentOption:        types.PaymentOptionNoUpfront,
	})
	if err != nil {
		return nil, err
	}
	if output.SavingsPlansPurchaseRecommendation == nil {
		return nil, nil
	}

	var recs []*model.Recommendation
	for _, detail := range output.SavingsPlansPurchaseRecommendation.SavingsPlansPurchaseRecommendationDetails {
		savings := 0.0
		if detail.EstimatedMonthlySavingsAmount != nil {
			fmt.Sscanf(*detail.EstimatedMonthlySavingsAmount, "%f", &savings)
		}
		commitment := "0"
		if detail.HourlyCommitmentToPurchase != nil {
			commitment = *detail.HourlyCommitmentToPurchase
		}

		recs = append(recs, &model.Recommendation{
			BaseEntity:       model.NewBaseEntity(),
			AccountID:        account.ID,
			Category:         model.CategorySavingsPlans,
			Priority:         model.PriorityForSavings(savings),
			Title:            "Purchase a Compute Savings Plan",
			Detail:           fmt.Sprintf("A 1-year, no-upfront Compute Savings Plan with an hourly commitment of %s would reduce on-demand spend.", commitment),
			EstimatedSavings: savings,
			Status:           model.RecommendationActive,
		})
	}
	return recs, nil
}
