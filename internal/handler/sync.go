package handler

import (
	"errors"
	"net/http"

	"github.com/costlens/backend/internal/syncer"
	"github.com/costlens/backend/internal/syncerror"
)

// SyncHandler triggers cost synchronization runs.
type SyncHandler struct {
	syncer *syncer.Syncer
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(s *syncer.Syncer) *SyncHandler {
	return &SyncHandler{syncer: s}
}

// SyncAll handles POST /sync. Query param force=true bypasses the cache.
func (h *SyncHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.syncer.SyncAll(r.Context(), UserID(r), syncer.SyncOptions{
		Force: r.URL.Query().Get("force") == "true",
	})
	if err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, batchStatusCode(result), result)
}

// SyncAccount handles POST /accounts/{id}/sync.
func (h *SyncHandler) SyncAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := urlUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	force := r.URL.Query().Get("force") == "true"
	result, err := h.syncer.SyncAccount(r.Context(), UserID(r), accountID, force)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, batchStatusCode(result), result)
}

// batchStatusCode maps a settled batch to an HTTP status. Partial results are
// still 200; the body carries per-account outcomes.
func batchStatusCode(result *syncer.BatchResult) int {
	if result.Status == syncer.StatusFailure && result.Failed > 0 {
		return http.StatusBadGateway
	}
	return http.StatusOK
}

func writeSyncError(w http.ResponseWriter, err error) {
	var se *syncerror.Error
	if errors.As(err, &se) {
		status := http.StatusInternalServerError
		switch se.Kind {
		case syncerror.KindValidation, syncerror.KindConfiguration:
			status = http.StatusBadRequest
		case syncerror.KindAuthorization:
			status = http.StatusForbidden
		case syncerror.KindProviderAPI, syncerror.KindCredential:
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]string{
			"error": se.Error(),
			"kind":  string(se.Kind),
			"hint":  se.Hint,
		})
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
