package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/costlens/backend/internal/config"
)

type contextKey string

const userIDKey contextKey = "user_id"

// RequireUser extracts the authenticated user's id from the X-User-ID header
// set by the upstream gateway. Session handling itself lives outside this
// service.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "missing or invalid X-User-ID header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

// UserID returns the authenticated user id placed by RequireUser.
func UserID(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(userIDKey).(uuid.UUID)
	return id
}

// SyncRateLimiter enforces a per-user ceiling on manual sync triggers so the
// billing APIs are not hammered.
type SyncRateLimiter struct {
	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
	every    rate.Limit
	burst    int
}

// NewSyncRateLimiter creates a limiter allowing one request per cfg.RateLimitEvery
// with a burst of cfg.RateLimitBurst, tracked per user.
func NewSyncRateLimiter(cfg config.SyncConfig) *SyncRateLimiter {
	return &SyncRateLimiter{
		limiters: make(map[uuid.UUID]*rate.Limiter),
		every:    rate.Every(cfg.RateLimitEvery),
		burst:    cfg.RateLimitBurst,
	}
}

func (l *SyncRateLimiter) allow(userID uuid.UUID) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(l.every, l.burst)
		l.limiters[userID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// Middleware rejects over-limit requests with 429.
func (l *SyncRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(UserID(r)) {
			writeError(w, http.StatusTooManyRequests, "sync rate limit exceeded, try again shortly")
			return
		}
		next.ServeHTTP(w, r)
	})
}
