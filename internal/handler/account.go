package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/costlens/backend/internal/crypto"
	"github.com/costlens/backend/internal/model"
	"github.com/costlens/backend/internal/repository"
)

// AccountHandler manages connected provider accounts. Credential material is
// encrypted before it touches the database and never serialized back out.
type AccountHandler struct {
	accounts      repository.AccountRepository
	encryptionKey []byte
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts repository.AccountRepository, masterKey string) *AccountHandler {
	return &AccountHandler{
		accounts:      accounts,
		encryptionKey: crypto.DeriveKey(masterKey),
	}
}

// List handles GET /accounts.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.GetByUserID(r.Context(), UserID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": accounts, "total": len(accounts)})
}

// Get handles GET /accounts/{id}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, ok := h.owned(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// Create handles POST /accounts.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	providerType := model.ProviderType(req.ProviderType)
	switch providerType {
	case model.ProviderAWS, model.ProviderAzure, model.ProviderDigitalOcean:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported provider type %q", req.ProviderType))
		return
	}

	kind := req.Kind
	if kind == "" {
		kind = model.ConnectionManual
	}
	if kind == model.ConnectionAutomated && providerType != model.ProviderAWS {
		writeError(w, http.StatusBadRequest, "automated connections are only supported for aws")
		return
	}

	encrypted, err := h.sealCredentials(req.Credentials)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	account := &model.ProviderAccount{
		BaseEntity:   model.NewBaseEntity(),
		UserID:       UserID(r),
		ProviderType: providerType,
		Alias:        req.Alias,
		Active:       true,
		Kind:         kind,
		Credentials:  encrypted,
		Health:       model.HealthPending,
	}
	if err := h.accounts.Create(r.Context(), account); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// Update handles PATCH /accounts/{id}.
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	account, ok := h.owned(w, r)
	if !ok {
		return
	}

	var req model.UpdateAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Alias != nil {
		account.Alias = *req.Alias
	}
	if req.Active != nil {
		account.Active = *req.Active
	}
	if req.Credentials != nil {
		encrypted, err := h.sealCredentials(req.Credentials)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		account.Credentials = encrypted
		// New credentials reset the health verdict until the next sync.
		account.Health = model.HealthPending
	}

	if err := h.accounts.Update(r.Context(), account); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update account")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// Delete handles DELETE /accounts/{id}. Query param keep_costs=true detaches
// the cost history instead of cascading it.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	account, ok := h.owned(w, r)
	if !ok {
		return
	}

	cascade := r.URL.Query().Get("keep_costs") != "true"
	if err := h.accounts.Delete(r.Context(), account.ID, cascade); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) sealCredentials(raw any) ([]byte, error) {
	if raw == nil {
		return nil, fmt.Errorf("credentials are required")
	}
	plaintext, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("credentials are malformed")
	}
	encrypted, err := crypto.Encrypt(plaintext, h.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to protect credentials")
	}
	return encrypted, nil
}

// owned loads the path account and verifies the requester owns it.
func (h *AccountHandler) owned(w http.ResponseWriter, r *http.Request) (*model.ProviderAccount, bool) {
	id, ok := urlUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return nil, false
	}
	account, err := h.accounts.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load account")
		return nil, false
	}
	if account == nil || account.UserID != UserID(r) {
		writeError(w, http.StatusNotFound, "account not found")
		return nil, false
	}
	return account, true
}
