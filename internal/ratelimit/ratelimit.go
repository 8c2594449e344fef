// Package ratelimit implements fixed-window request counters shared by the
// HTTP middleware. Two stores exist: an in-process map and Redis.
package ratelimit

import (
	"context"
	"time"
)

// DefaultWindow applies when a caller passes a non-positive window.
const DefaultWindow = time.Minute

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// Count is the number of hits seen in the current window, this one included.
	Count   int
	Limit   int
	ResetAt time.Time
}

// Remaining reports how many hits are left before the window is exhausted.
func (d Decision) Remaining() int {
	return max(d.Limit-d.Count, 0)
}

// RetryAfter rounds the time until ResetAt up to whole seconds, never below one.
func (d Decision) RetryAfter(now time.Time) int {
	if d.ResetAt.IsZero() {
		return 1
	}
	wait := d.ResetAt.Sub(now)
	secs := int((wait + time.Second - 1) / time.Second)
	return max(secs, 1)
}

// Limiter counts hits per key inside fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) Decision
	Close() error
}

func unlimited(limit int) Decision {
	return Decision{Allowed: true, Limit: limit}
}
