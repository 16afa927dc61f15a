package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costlens/backend/internal/config"
)

func TestRequireUserMissingHeader(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without an identity")
	})

	rec := httptest.NewRecorder()
	RequireUser(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireUserInvalidHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "not-a-uuid")

	rec := httptest.NewRecorder()
	RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with a malformed identity")
	})).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireUserPassesIdentity(t *testing.T) {
	userID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", userID.String())

	var seen uuid.UUID
	rec := httptest.NewRecorder()
	RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r)
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, seen)
}

func TestSyncRateLimiterPerUser(t *testing.T) {
	limiter := NewSyncRateLimiter(config.SyncConfig{
		RateLimitEvery: time.Hour,
		RateLimitBurst: 2,
	})
	handler := RequireUser(limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	call := func(userID uuid.UUID) int {
		req := httptest.NewRequest(http.MethodPost, "/sync", nil)
		req.Header.Set("X-User-ID", userID.String())
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	alice := uuid.New()
	require.Equal(t, http.StatusOK, call(alice))
	require.Equal(t, http.StatusOK, call(alice))
	assert.Equal(t, http.StatusTooManyRequests, call(alice), "burst exhausted")

	// A second user has an independent budget.
	assert.Equal(t, http.StatusOK, call(uuid.New()))
}
