// Package cache provides the TTL cache used to avoid re-fetching billing
// data within the cache window.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = fmt.Errorf("cache: miss")

// Cache is a TTL key/value store. Values are opaque byte payloads; callers
// handle serialization.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// SyncKey builds the cache key for one account's cost data over a date range.
func SyncKey(accountID uuid.UUID, start, end time.Time) string {
	return fmt.Sprintf("costsync:%s:%s:%s", accountID, start.Format("2006-01-02"), end.Format("2006-01-02"))
}
