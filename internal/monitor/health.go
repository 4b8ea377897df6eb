package monitor

import (
	"fmt"
	"sync"
	"time"
)

// callSample is one call outcome kept for rolling-window computation.
type callSample struct {
	at             time.Time
	success        bool
	responseTimeMs float64
}

type healthEntry struct {
	identity ConnectorIdentity
	status   APIHealthStatus
	samples  []callSample // trimmed to the 7d window
	mu       sync.Mutex   // serializes the single writer path per connector
}

// HealthStore keeps one APIHealthStatus per connector. Created on the first
// recorded call, updated on every subsequent call, never deleted. Mutation is
// serialized per connector so interleaved outcomes cannot corrupt counters.
type HealthStore struct {
	entries map[string]*healthEntry
	now     func() time.Time
	mu      sync.RWMutex
}

// NewHealthStore creates a health store.
func NewHealthStore() *HealthStore {
	return &HealthStore{
		entries: make(map[string]*healthEntry),
		now:     time.Now,
	}
}

// Register associates identity metadata with a connector ahead of its first
// call.
func (hs *HealthStore) Register(identity ConnectorIdentity) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if _, exists := hs.entries[identity.ConnectorID]; exists {
		return
	}
	hs.entries[identity.ConnectorID] = &healthEntry{
		identity: identity,
		status: APIHealthStatus{
			Identity: identity,
			Status:   HealthStateHealthy,
		},
	}
}

// Record applies one call outcome to the connector's health status. This is
// the sole mutator of APIHealthStatus.
func (hs *HealthStore) Record(outcome CallOutcome) {
	entry := hs.entryFor(outcome.ConnectorID)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	at := outcome.Timestamp
	if at.IsZero() {
		at = hs.now()
	}

	status := &entry.status
	status.RequestCount++
	if outcome.Success {
		t := at
		status.LastSuccessfulFetch = &t
		status.ConsecutiveFailures = 0
	} else {
		t := at
		status.LastFailedFetch = &t
		status.ConsecutiveFailures++
		status.ErrorCount++
	}

	entry.samples = append(entry.samples, callSample{
		at:             at,
		success:        outcome.Success,
		responseTimeMs: outcome.ResponseTimeMs,
	})
	hs.refreshWindows(entry, hs.now())
}

// refreshWindows trims expired samples and recomputes the rolling uptime
// ratios and mean response time. Samples are kept for 30 days so scorecard
// lookbacks stay answerable; the health windows themselves are 24h and 7d.
// Callers must hold the entry lock.
func (hs *HealthStore) refreshWindows(entry *healthEntry, now time.Time) {
	cutoff30d := now.Add(-30 * 24 * time.Hour)
	cutoff7d := now.Add(-7 * 24 * time.Hour)
	cutoff24h := now.Add(-24 * time.Hour)

	trimmed := entry.samples[:0]
	for _, sample := range entry.samples {
		if sample.at.After(cutoff30d) {
			trimmed = append(trimmed, sample)
		}
	}
	entry.samples = trimmed

	var total7d, ok7d, total24h, ok24h int
	var responseSum float64
	for _, sample := range entry.samples {
		if !sample.at.After(cutoff7d) {
			continue
		}
		total7d++
		if sample.success {
			ok7d++
		}
		responseSum += sample.responseTimeMs
		if sample.at.After(cutoff24h) {
			total24h++
			if sample.success {
				ok24h++
			}
		}
	}

	status := &entry.status
	if total24h > 0 {
		status.Uptime24h = float64(ok24h) / float64(total24h)
	}
	if total7d > 0 {
		status.Uptime7d = float64(ok7d) / float64(total7d)
		status.AvgResponseTimeMs = responseSum / float64(total7d)
	}
	status.Status = HealthStateFromUptime(status.Uptime24h)
}

// Status returns a copy of the connector's health snapshot with rolling
// windows recomputed against the current clock.
func (hs *HealthStore) Status(connectorID string) (APIHealthStatus, error) {
	hs.mu.RLock()
	entry, exists := hs.entries[connectorID]
	hs.mu.RUnlock()
	if !exists {
		return APIHealthStatus{}, fmt.Errorf("connector not found: %s", connectorID)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	hs.refreshWindows(entry, hs.now())
	return entry.status, nil
}

// ConnectorIDs lists all known connectors.
func (hs *HealthStore) ConnectorIDs() []string {
	hs.mu.RLock()
	defer hs.mu.RUnlock()

	ids := make([]string, 0, len(hs.entries))
	for id := range hs.entries {
		ids = append(ids, id)
	}
	return ids
}

// Identity returns the registered identity for a connector.
func (hs *HealthStore) Identity(connectorID string) (ConnectorIdentity, bool) {
	hs.mu.RLock()
	defer hs.mu.RUnlock()

	entry, exists := hs.entries[connectorID]
	if !exists {
		return ConnectorIdentity{}, false
	}
	return entry.identity, true
}

// WindowInput summarizes a connector's samples inside a lookback window for
// the quality scorer.
func (hs *HealthStore) WindowInput(connectorID string, lookback time.Duration) (total, successful int64, avgResponseMs float64) {
	hs.mu.RLock()
	entry, exists := hs.entries[connectorID]
	hs.mu.RUnlock()
	if !exists {
		return 0, 0, 0
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	cutoff := hs.now().Add(-lookback)
	var responseSum float64
	for _, sample := range entry.samples {
		if !sample.at.After(cutoff) {
			continue
		}
		total++
		if sample.success {
			successful++
		}
		responseSum += sample.responseTimeMs
	}
	if total > 0 {
		avgResponseMs = responseSum / float64(total)
	}
	return total, successful, avgResponseMs
}

// entryFor returns the entry for a connector, creating a placeholder identity
// when the registry has not supplied one yet.
func (hs *HealthStore) entryFor(connectorID string) *healthEntry {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	entry, exists := hs.entries[connectorID]
	if !exists {
		entry = &healthEntry{
			identity: ConnectorIdentity{ConnectorID: connectorID, Name: connectorID},
			status: APIHealthStatus{
				Identity: ConnectorIdentity{ConnectorID: connectorID, Name: connectorID},
				Status:   HealthStateHealthy,
			},
		}
		hs.entries[connectorID] = entry
	}
	return entry
}
