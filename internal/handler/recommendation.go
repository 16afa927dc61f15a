package handler

import (
	"net/http"

	"github.com/costlens/backend/internal/model"
	"github.com/costlens/backend/internal/recommend"
)

// RecommendationHandler serves optimization recommendations.
type RecommendationHandler struct {
	engine *recommend.Engine
}

// NewRecommendationHandler creates a RecommendationHandler.
func NewRecommendationHandler(engine *recommend.Engine) *RecommendationHandler {
	return &RecommendationHandler{engine: engine}
}

// List handles GET /recommendations.
func (h *RecommendationHandler) List(w http.ResponseWriter, r *http.Request) {
	recs, err := h.engine.List(r.Context(), UserID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list recommendations")
		return
	}

	var totalSavings float64
	for _, rec := range recs {
		if rec.Status == model.RecommendationActive {
			totalSavings += rec.EstimatedSavings
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":          recs,
		"total":         len(recs),
		"total_savings": totalSavings,
	})
}

// UpdateStatus handles PATCH /recommendations/{id}.
func (h *RecommendationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid recommendation id")
		return
	}

	var req struct {
		Status model.RecommendationStatus `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Status {
	case model.RecommendationActive, model.RecommendationDismissed, model.RecommendationImplemented:
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	if err := h.engine.UpdateStatus(r.Context(), UserID(r), id, req.Status); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}
