// Package window provides sliding-window admission log stores. Two
// interchangeable implementations exist: a Redis-backed shared store for
// multi-instance deployments and a mutex-guarded local store used for
// single-instance runs and as the degraded fallback.
package window

import (
	"context"
	"time"

	"covercheck/internal/admission/models"
)

// Store is a per-key sliding-window counter. Allow must atomically discard
// entries older than now-window, count the survivors, and append the current
// timestamp when under the limit. On denial, ResetAt is the oldest surviving
// entry's time plus the window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
	Reset(ctx context.Context, key string) error
}
