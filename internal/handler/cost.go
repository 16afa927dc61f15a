package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/costlens/backend/internal/model"
	"github.com/costlens/backend/internal/repository"
)

// CostHandler serves normalized cost data.
type CostHandler struct {
	costs repository.CostRepository
}

// NewCostHandler creates a CostHandler.
func NewCostHandler(costs repository.CostRepository) *CostHandler {
	return &CostHandler{costs: costs}
}

// Summary handles GET /costs/summary: one snapshot per account for the
// requested month (default: current).
func (h *CostHandler) Summary(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	month := queryInt(r, "month", int(now.Month()))
	year := queryInt(r, "year", now.Year())

	snapshots, err := h.costs.GetSnapshotsByUser(r.Context(), UserID(r), month, year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load cost summary")
		return
	}

	var total, lastMonth, forecast float64
	for _, s := range snapshots {
		total += s.CurrentMonthCost
		lastMonth += s.LastMonthCost
		forecast += s.ForecastCost
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"month":           month,
		"year":            year,
		"total_cost":      total,
		"last_month_cost": lastMonth,
		"forecast_cost":   forecast,
		"change_percent":  model.Variance(lastMonth, total),
		"accounts":        snapshots,
	})
}

// Trend handles GET /costs/trend: aggregated daily totals over a range.
// Optional query params: days (default 30), account_id, service.
func (h *CostHandler) Trend(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	if days < 1 || days > 366 {
		writeError(w, http.StatusBadRequest, "days must be between 1 and 366")
		return
	}

	filter := model.CostFilter{
		UserID:  UserID(r),
		Service: r.URL.Query().Get("service"),
	}
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		accountID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid account_id")
			return
		}
		filter.AccountID = &accountID
	}

	end := time.Now().UTC().Truncate(24 * time.Hour)
	filter.DateRange = model.DateRange{Start: end.AddDate(0, 0, -days), End: end}

	totals, err := h.costs.GetDailyTotals(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load cost trend")
		return
	}

	points := make([]map[string]any, 0, len(totals))
	var total float64
	for _, t := range totals {
		total += t.Cost
		points = append(points, map[string]any{
			"date": t.Date.Format("2006-01-02"),
			"cost": t.Cost,
		})
	}

	avg := 0.0
	if len(points) > 0 {
		avg = total / float64(len(points))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data_points":   points,
		"total_cost":    total,
		"daily_average": avg,
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}
