// Package digitalocean provides the DigitalOcean billing adapter. The
// billing API is invoice-style: it reports period totals without daily
// granularity, so daily points are synthesized downstream.
package digitalocean

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/costlens/backend/internal/credential"
	"github.com/costlens/backend/internal/model"
	"github.com/costlens/backend/internal/provider"
	"github.com/costlens/backend/internal/syncerror"
)

// Adapter implements the DigitalOcean billing adapter.
type Adapter struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewAdapter creates the DigitalOcean adapter.
func NewAdapter(logger *slog.Logger) *Adapter {
	return &Adapter{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		baseURL:    "https://api.digitalocean.com",
	}
}

// Type returns the provider-type tag.
func (a *Adapter) Type() model.ProviderType { return model.ProviderDigitalOcean }

// FetchCostData reads the customer balance and recent invoices. The API only
// exposes period totals; DailyCosts is left empty and filled in by
// SynthesizeDailyData.
func (a *Adapter) FetchCostData(ctx context.Context, creds *credential.LiveCredentials, start, end time.Time) (*provider.CostDraft, error) {
	a.logger.Info("fetching DigitalOcean costs",
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"),
	)

	balance, err := a.getBalance(ctx, creds.APIToken)
	if err != nil {
		return nil, err
	}

	invoices, err := a.listInvoices(ctx, creds.APIToken)
	if err != nil {
		return nil, err
	}

	draft := &provider.CostDraft{
		Provider:         model.ProviderDigitalOcean,
		Currency:         model.CurrencyUSD,
		CurrentMonthCost: parseAmount(balance.MonthToDateUsage),
	}

	// The most recent closed invoice is last month's total.
	for _, inv := range invoices.Invoices {
		period, err := time.Parse("2006-01", inv.InvoicePeriod)
		if err != nil {
			continue
		}
		prior := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		if period.Year() == prior.Year() && period.Month() == prior.Month() {
			draft.LastMonthCost = parseAmount(inv.Amount)
			break
		}
	}

	if draft.CurrentMonthCost > 0 {
		draft.Services = append(draft.Services, model.ServiceCost{
			Service: "Droplets & Services",
			Cost:    draft.CurrentMonthCost,
		})
	}

	return draft, nil
}

// SynthesizeDailyData distributes the period total evenly across the range so
// daily-granularity features keep working for invoice-style billing. This is
// an approximation: it assumes uniform daily spend. Points are marked
// Synthetic so consumers can tell reconstructed data from reported data.
func (a *Adapter) SynthesizeDailyData(draft *provider.CostDraft, start, end time.Time) []model.DailyCostPoint {
	if draft.HasDailyGranularity() {
		return draft.DailyCosts
	}

	start = start.Truncate(24 * time.Hour)
	end = end.Truncate(24 * time.Hour)
	days := int(end.Sub(start).Hours()/24) + 1
	if days <= 0 || draft.CurrentMonthCost <= 0 {
		return nil
	}

	perDay := draft.CurrentMonthCost / float64(days)
	points := make([]model.DailyCostPoint, 0, days)
	for d := 0; d < days; d++ {
		points = append(points, model.DailyCostPoint{
			Date:      start.AddDate(0, 0, d),
			Service:   "Droplets & Services",
			Cost:      perDay,
			Synthetic: true,
		})
	}
	return points
}

type balanceResponse struct {
	MonthToDateUsage   string `json:"month_to_date_usage"`
	MonthToDateBalance string `json:"month_to_date_balance"`
	AccountBalance     string `json:"account_balance"`
}

type invoicesResponse struct {
	Invoices []struct {
		InvoiceUUID   string `json:"invoice_uuid"`
		Amount        string `json:"amount"`
		InvoicePeriod string `json:"invoice_period"` // YYYY-MM
	} `json:"invoices"`
}

func (a *Adapter) getBalance(ctx context.Context, token string) (*balanceResponse, error) {
	var out balanceResponse
	if err := a.getJSON(ctx, token, "/v2/customers/my/balance", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Adapter) listInvoices(ctx context.Context, token string) (*invoicesResponse, error) {
	var out invoicesResponse
	if err := a.getJSON(ctx, token, "/v2/customers/my/invoices", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Adapter) getJSON(ctx context.Context, token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return syncerror.ProviderAPI("digitalocean.fetch_cost_data", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return syncerror.ProviderAPI("digitalocean.fetch_cost_data", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return syncerror.ProviderAPI("digitalocean.fetch_cost_data",
			fmt.Errorf("API error %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return syncerror.ProviderAPI("digitalocean.fetch_cost_data", err)
	}
	return nil
}

func parseAmount(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
