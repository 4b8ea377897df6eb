package monitor

import (
	"time"
)

// Aggregator rolls per-connector state into a system-wide summary. It reads
// in-memory snapshots only and never blocks on I/O; stale-by-one-cycle reads
// are acceptable for a dashboard.
type Aggregator struct {
	health  *HealthStore
	alerts  *AlertRuleEngine
	now     func() time.Time
}

// NewAggregator creates a health aggregator over the given stores.
func NewAggregator(health *HealthStore, alerts *AlertRuleEngine) *Aggregator {
	return &Aggregator{
		health: health,
		alerts: alerts,
		now:    time.Now,
	}
}

// BuildSummary computes one SystemHealthSummary from current per-connector
// state. A connector whose state cannot be read is reported offline with a
// note; no single bad connector aborts the cycle.
func (a *Aggregator) BuildSummary(freshness []DataFreshnessStatus) SystemHealthSummary {
	summary := SystemHealthSummary{
		GeneratedAt: a.now(),
	}

	var responseSum float64
	var responseCount int
	var requestTotal, errorTotal int64
	criticalOffline := false

	for _, connectorID := range a.health.ConnectorIDs() {
		summary.TotalConnectors++

		status, err := a.health.Status(connectorID)
		if err != nil {
			summary.OfflineCount++
			summary.Notes = append(summary.Notes, "connector "+connectorID+" state unreadable: "+err.Error())
			continue
		}

		switch status.Status {
		case HealthStateHealthy:
			summary.HealthyCount++
		case HealthStateDegraded:
			summary.DegradedCount++
		case HealthStateOffline:
			summary.OfflineCount++
			if a.alerts.HasUnresolved(status.Identity.SourceID, AlertLevelCritical) {
				criticalOffline = true
			}
		}

		if status.AvgResponseTimeMs > 0 {
			responseSum += status.AvgResponseTimeMs
			responseCount++
		}
		requestTotal += status.RequestCount
		errorTotal += status.ErrorCount
	}

	for _, fresh := range freshness {
		switch fresh.Staleness {
		case StalenessRecent:
			summary.Freshness.Current++
		case StalenessStale:
			summary.Freshness.Stale++
		case StalenessVeryStale:
			summary.Freshness.VeryStale++
		}
	}

	summary.Alerts = a.alerts.Counts()

	if responseCount > 0 {
		summary.AvgResponseTimeMs = responseSum / float64(responseCount)
	}
	if requestTotal > 0 {
		summary.ErrorRate = float64(errorTotal) / float64(requestTotal)
		summary.SuccessRate = 1 - summary.ErrorRate
	}

	summary.OverallStatus = overallStatus(summary, criticalOffline)
	return summary
}

// overallStatus derives the system-wide state: critical when an offline
// connector carries an unresolved critical alert, degraded on any degraded
// connector or unresolved warnings, healthy otherwise.
func overallStatus(summary SystemHealthSummary, criticalOffline bool) SystemStatus {
	if criticalOffline {
		return SystemStatusCritical
	}
	if summary.DegradedCount > 0 || summary.Alerts.Warning > 0 {
		return SystemStatusDegraded
	}
	return SystemStatusHealthy
}
