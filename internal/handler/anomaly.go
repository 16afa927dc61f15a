package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/costlens/backend/internal/anomaly"
	"github.com/costlens/backend/internal/model"
)

// AnomalyHandler serves detected cost deviations.
type AnomalyHandler struct {
	engine *anomaly.Engine
}

// NewAnomalyHandler creates an AnomalyHandler.
func NewAnomalyHandler(engine *anomaly.Engine) *AnomalyHandler {
	return &AnomalyHandler{engine: engine}
}

// List handles GET /anomalies. Optional query params: account_id, service,
// days (default 30), threshold (percent, defaults to the alert threshold).
func (h *AnomalyHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := model.AnomalyFilter{
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

	days := queryInt(r, "days", 30)
	filter.DateRange.Start = time.Now().UTC().AddDate(0, 0, -days)

	threshold := 0.0
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		threshold = v
	}

	anomalies, err := h.engine.Anomalies(r.Context(), filter, threshold)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load anomalies")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": anomalies, "total": len(anomalies)})
}
