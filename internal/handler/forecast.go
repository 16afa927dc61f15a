package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/costlens/backend/internal/forecast"
	"github.com/costlens/backend/internal/model"
)

// ForecastHandler serves baseline forecasts and what-if scenarios.
type ForecastHandler struct {
	engine *forecast.Engine
}

// NewForecastHandler creates a ForecastHandler.
func NewForecastHandler(engine *forecast.Engine) *ForecastHandler {
	return &ForecastHandler{engine: engine}
}

func forecastFilter(r *http.Request) (model.ForecastFilter, bool) {
	filter := model.ForecastFilter{Service: r.URL.Query().Get("service")}
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		accountID, err := uuid.Parse(raw)
		if err != nil {
			return filter, false
		}
		filter.AccountID = &accountID
	}
	return filter, true
}

// Baseline handles GET /forecast. Query params: months, account_id, service.
func (h *ForecastHandler) Baseline(w http.ResponseWriter, r *http.Request) {
	filter, ok := forecastFilter(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account_id")
		return
	}

	months := queryInt(r, "months", 6)
	forecasts, err := h.engine.Baseline(r.Context(), UserID(r), months, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute forecast")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": forecasts})
}

// ListScenarios handles GET /scenarios.
func (h *ForecastHandler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := h.engine.ListScenarios(r.Context(), UserID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list scenarios")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": scenarios, "total": len(scenarios)})
}

// CreateScenario handles POST /scenarios.
func (h *ForecastHandler) CreateScenario(w http.ResponseWriter, r *http.Request) {
	var scenario model.ForecastScenario
	if err := decodeBody(r, &scenario); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.engine.CreateScenario(r.Context(), UserID(r), &scenario); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, scenario)
}

// GetScenario handles GET /scenarios/{id}.
func (h *ForecastHandler) GetScenario(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid scenario id")
		return
	}
	scenario, err := h.engine.GetScenario(r.Context(), UserID(r), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load scenario")
		return
	}
	if scenario == nil {
		writeError(w, http.StatusNotFound, "scenario not found")
		return
	}
	writeJSON(w, http.StatusOK, scenario)
}

// UpdateScenario handles PUT /scenarios/{id}.
func (h *ForecastHandler) UpdateScenario(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid scenario id")
		return
	}
	var scenario model.ForecastScenario
	if err := decodeBody(r, &scenario); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	scenario.ID = id
	if err := h.engine.UpdateScenario(r.Context(), UserID(r), &scenario); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scenario)
}

// DeleteScenario handles DELETE /scenarios/{id}.
func (h *ForecastHandler) DeleteScenario(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid scenario id")
		return
	}
	if err := h.engine.DeleteScenario(r.Context(), UserID(r), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ComputeScenario handles POST /scenarios/{id}/compute.
func (h *ForecastHandler) ComputeScenario(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid scenario id")
		return
	}
	filter, ok := forecastFilter(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account_id")
		return
	}
	result, err := h.engine.Compute(r.Context(), UserID(r), id, filter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PreviewScenario handles POST /scenarios/preview: evaluates an ad hoc
// scenario from the request body without persisting it.
func (h *ForecastHandler) PreviewScenario(w http.ResponseWriter, r *http.Request) {
	filter, ok := forecastFilter(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account_id")
		return
	}
	var scenario model.ForecastScenario
	if err := decodeBody(r, &scenario); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.engine.Preview(r.Context(), UserID(r), &scenario, filter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
