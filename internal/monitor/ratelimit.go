package monitor

import (
	"sync"
	"time"
)

// RateLimitConfig holds default per-window limits applied when the registry
// supplies none.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute" json:"per_minute"`
	PerHour   int `yaml:"per_hour" json:"per_hour"`
	PerDay    int `yaml:"per_day" json:"per_day"`
}

// DefaultRateLimitConfig returns the shipped rate limit defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PerMinute: 60,
		PerHour:   1000,
		PerDay:    10000,
	}
}

// Limits expands the config into a window → limit map, skipping zero entries.
func (c RateLimitConfig) Limits() map[RateWindow]int {
	limits := make(map[RateWindow]int, 3)
	if c.PerMinute > 0 {
		limits[WindowMinute] = c.PerMinute
	}
	if c.PerHour > 0 {
		limits[WindowHour] = c.PerHour
	}
	if c.PerDay > 0 {
		limits[WindowDay] = c.PerDay
	}
	return limits
}

type rateBucket struct {
	status RateLimitStatus
	queue  []time.Time // FIFO of queued request timestamps
}

// RateLimitTracker tracks call budgets per connector and window. Calls past
// the limit are queued rather than rejected; the queue drains in FIFO order
// when the window resets.
type RateLimitTracker struct {
	buckets map[string]map[RateWindow]*rateBucket
	now     func() time.Time
	mu      sync.RWMutex
}

// NewRateLimitTracker creates a rate limit tracker.
func NewRateLimitTracker() *RateLimitTracker {
	return &RateLimitTracker{
		buckets: make(map[string]map[RateWindow]*rateBucket),
		now:     time.Now,
	}
}

// Register sets up buckets for a connector from its registry-supplied limits.
func (rt *RateLimitTracker) Register(identity ConnectorIdentity, limits map[RateWindow]int) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	windows, exists := rt.buckets[identity.ConnectorID]
	if !exists {
		windows = make(map[RateWindow]*rateBucket)
		rt.buckets[identity.ConnectorID] = windows
	}

	now := rt.now()
	for window, limit := range limits {
		if limit <= 0 {
			continue
		}
		if _, exists := windows[window]; exists {
			continue
		}
		windows[window] = &rateBucket{
			status: RateLimitStatus{
				ConnectorID: identity.ConnectorID,
				SourceID:    identity.SourceID,
				Window:      window,
				Limit:       limit,
				ResetAt:     now.Truncate(window.Duration()).Add(window.Duration()),
			},
		}
	}
}

// RecordCall accounts one call against every window configured for the
// connector and reports whether the call should be queued instead of sent.
func (rt *RateLimitTracker) RecordCall(connectorID string, at time.Time) (throttled bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	windows, exists := rt.buckets[connectorID]
	if !exists {
		return false
	}
	if at.IsZero() {
		at = rt.now()
	}

	for _, bucket := range windows {
		rt.maybeReset(bucket, at)

		bucket.status.Current++
		// Current may legitimately exceed Limit: the remote API's clock can
		// disagree with ours, and a violation despite throttling is a signal
		// worth keeping visible.
		bucket.status.PercentUsed = float64(bucket.status.Current) / float64(bucket.status.Limit) * 100

		if bucket.status.Current >= bucket.status.Limit {
			bucket.status.Throttled = true
		}
		if bucket.status.Throttled && bucket.status.Current > bucket.status.Limit {
			bucket.queue = append(bucket.queue, at)
			bucket.status.QueuedRequests = len(bucket.queue)
			throttled = true
		}
	}

	return throttled
}

// maybeReset rolls the bucket over if the window boundary has passed, draining
// the queue in FIFO order up to the refreshed limit. Callers must hold the lock.
func (rt *RateLimitTracker) maybeReset(bucket *rateBucket, at time.Time) {
	if at.Before(bucket.status.ResetAt) {
		return
	}

	span := bucket.status.Window.Duration()
	bucket.status.ResetAt = at.Truncate(span).Add(span)
	bucket.status.Current = 0
	bucket.status.Throttled = false

	released := len(bucket.queue)
	if released > bucket.status.Limit {
		released = bucket.status.Limit
	}
	bucket.queue = bucket.queue[released:]
	bucket.status.Current = released
	bucket.status.QueuedRequests = len(bucket.queue)
	if released >= bucket.status.Limit {
		bucket.status.Throttled = true
	}
	bucket.status.PercentUsed = float64(bucket.status.Current) / float64(bucket.status.Limit) * 100
}

// Status returns the rate limit snapshot for one connector window.
func (rt *RateLimitTracker) Status(connectorID string, window RateWindow) (RateLimitStatus, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	windows, exists := rt.buckets[connectorID]
	if !exists {
		return RateLimitStatus{}, false
	}
	bucket, exists := windows[window]
	if !exists {
		return RateLimitStatus{}, false
	}
	rt.maybeReset(bucket, rt.now())
	return bucket.status, true
}

// Statuses returns all window snapshots for a connector, refreshing elapsed
// windows first.
func (rt *RateLimitTracker) Statuses(connectorID string) []RateLimitStatus {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	windows, exists := rt.buckets[connectorID]
	if !exists {
		return nil
	}

	now := rt.now()
	out := make([]RateLimitStatus, 0, len(windows))
	for _, window := range []RateWindow{WindowMinute, WindowHour, WindowDay} {
		bucket, exists := windows[window]
		if !exists {
			continue
		}
		rt.maybeReset(bucket, now)
		out = append(out, bucket.status)
	}
	return out
}

// DisplayPercent clamps a percent-used value for dashboard rendering. The
// internal value is never capped.
func DisplayPercent(percentUsed float64) float64 {
	if percentUsed > 100 {
		return 100
	}
	if percentUsed < 0 {
		return 0
	}
	return percentUsed
}
