package notification

import (
	"context"
	"fmt"

	"github.com/costlens/backend/internal/model"
	"github.com/costlens/backend/internal/syncerror"
)

// SyncCompleted notifies the owner that an account finished syncing.
func (s *Service) SyncCompleted(ctx context.Context, account *model.ProviderAccount, snapshot *model.CostSnapshot) {
	err := s.Send(ctx, Message{
		EventType: EventSyncCompleted,
		Title:     fmt.Sprintf("Cost Sync Completed: %s", accountLabel(account)),
		Body: fmt.Sprintf("Synced %s (%s). Month to date: $%.2f, forecast: $%.2f.",
			accountLabel(account), account.ProviderType, snapshot.CurrentMonthCost, snapshot.ForecastCost),
		Severity: "low",
		Data: map[string]any{
			"Provider":      string(account.ProviderType),
			"Month To Date": fmt.Sprintf("$%.2f", snapshot.CurrentMonthCost),
			"Forecast":      fmt.Sprintf("$%.2f", snapshot.ForecastCost),
		},
	})
	if err != nil {
		s.logger.Warn("sync completion notification failed", "account_id", account.ID, "error", err)
	}
}

// SyncFailed notifies the owner that an account's sync failed, with the
// remediation hint when one is attached.
func (s *Service) SyncFailed(ctx context.Context, account *model.ProviderAccount, syncErr error) {
	body := fmt.Sprintf("Sync failed for %s (%s): %v.", accountLabel(account), account.ProviderType, syncErr)
	if hint := syncerror.HintOf(syncErr); hint != "" {
		body += " Suggested fix: " + hint + "."
	}
	err := s.Send(ctx, Message{
		EventType: EventSyncFailed,
		Title:     fmt.Sprintf("Cost Sync Failed: %s", accountLabel(account)),
		Body:      body,
		Severity:  "high",
		Data: map[string]any{
			"Provider": string(account.ProviderType),
			"Kind":     string(syncerror.KindOf(syncErr)),
		},
	})
	if err != nil {
		s.logger.Warn("sync failure notification failed", "account_id", account.ID, "error", err)
	}
}

// AnomalyDetected notifies the owner about a cost deviation.
func (s *Service) AnomalyDetected(ctx context.Context, account *model.ProviderAccount, b *model.AnomalyBaseline) {
	direction := "drop"
	if b.IsIncrease {
		direction = "spike"
	}
	err := s.Send(ctx, Message{
		EventType: EventAnomalyDetected,
		Title:     fmt.Sprintf("Cost Anomaly Detected: %s", b.Service),
		Body: fmt.Sprintf("Unusual %s on %s (%s). Cost was $%.2f vs a $%.2f baseline (%.1f%% deviation).",
			direction, b.Service, account.ProviderType, b.CurrentCost, b.BaselineCost, b.VariancePercent),
		Severity: anomalySeverity(b),
		Data: map[string]any{
			"Service":   b.Service,
			"Provider":  string(account.ProviderType),
			"Cost":      fmt.Sprintf("$%.2f", b.CurrentCost),
			"Baseline":  fmt.Sprintf("$%.2f", b.BaselineCost),
			"Deviation": fmt.Sprintf("%.1f%%", b.VariancePercent),
		},
	})
	if err != nil {
		s.logger.Warn("anomaly notification failed", "account_id", account.ID, "error", err)
	}
}

// AnomalyEmail emails the anomaly to the account owner.
func (s *Service) AnomalyEmail(ctx context.Context, user *model.User, account *model.ProviderAccount, b *model.AnomalyBaseline) error {
	return s.SendEmail(ctx, user.Email, Message{
		EventType: EventAnomalyDetected,
		Title:     fmt.Sprintf("Cost Anomaly on %s", b.Service),
		Body: fmt.Sprintf("Hi %s,\r\n\r\n%s on your %s account %q deviated %.1f%% from its baseline on %s: $%.2f vs $%.2f expected.",
			user.Name, b.Service, account.ProviderType, accountLabel(account),
			b.VariancePercent, b.Date.Format("2006-01-02"), b.CurrentCost, b.BaselineCost),
		Severity: anomalySeverity(b),
	})
}

func anomalySeverity(b *model.AnomalyBaseline) string {
	switch {
	case b.VariancePercent >= 200:
		return "critical"
	case b.VariancePercent >= 100:
		return "high"
	default:
		return "medium"
	}
}

func accountLabel(account *model.ProviderAccount) string {
	if account.Alias != "" {
		return account.Alias
	}
	return account.ID.String()
}
