package monitor

import (
	"time"
)

// HealthState represents the operational state of a connector
type HealthState string

const (
	HealthStateHealthy     HealthState = "healthy"
	HealthStateDegraded    HealthState = "degraded"
	HealthStateOffline     HealthState = "offline"
	HealthStateMaintenance HealthState = "maintenance"
)

// SystemStatus represents the rolled-up state of the whole system
type SystemStatus string

const (
	SystemStatusHealthy  SystemStatus = "healthy"
	SystemStatusDegraded SystemStatus = "degraded"
	SystemStatusCritical SystemStatus = "critical"
)

// BreakerState represents circuit breaker state
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// RateWindow represents a rate limit accounting window
type RateWindow string

const (
	WindowMinute RateWindow = "minute"
	WindowHour   RateWindow = "hour"
	WindowDay    RateWindow = "day"
)

// Duration returns the wall-clock span of the window.
func (w RateWindow) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// ExpectedFrequency represents the cadence a source is expected to publish at
type ExpectedFrequency string

const (
	FrequencyHourly  ExpectedFrequency = "hourly"
	FrequencyDaily   ExpectedFrequency = "daily"
	FrequencyWeekly  ExpectedFrequency = "weekly"
	FrequencyMonthly ExpectedFrequency = "monthly"
)

// Staleness classifies how far a data point's age exceeds its expected cadence
type Staleness string

const (
	StalenessRecent    Staleness = "recent"
	StalenessStale     Staleness = "stale"
	StalenessVeryStale Staleness = "very-stale"
)

// AlertLevel represents alert severity
type AlertLevel string

const (
	AlertLevelCritical AlertLevel = "critical"
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelInfo     AlertLevel = "info"
)

// Priority returns the notification priority for the level. Lower is more urgent.
func (l AlertLevel) Priority() int {
	switch l {
	case AlertLevelCritical:
		return 1
	case AlertLevelWarning:
		return 2
	default:
		return 3
	}
}

// AlertCondition represents the comparison an alert rule applies
type AlertCondition string

const (
	ConditionAbove  AlertCondition = "above"
	ConditionBelow  AlertCondition = "below"
	ConditionEquals AlertCondition = "equals"
)

// MetricType identifies a monitored metric
type MetricType string

const (
	MetricErrorRate    MetricType = "error_rate"
	MetricAvailability MetricType = "availability"
	MetricStaleness    MetricType = "data_staleness"
	MetricResponseTime MetricType = "response_time"
	MetricQualityScore MetricType = "quality_score"
	MetricCompleteness MetricType = "completeness"
)

// TrendDirection represents score movement between periods
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendStable    TrendDirection = "stable"
	TrendDegrading TrendDirection = "degrading"
)

// ScorecardPeriod represents a scorecard aggregation window
type ScorecardPeriod string

const (
	Period24h ScorecardPeriod = "24h"
	Period7d  ScorecardPeriod = "7d"
	Period30d ScorecardPeriod = "30d"
)

// ConnectorIdentity identifies a connector. Owned by the external registry and
// referenced by value everywhere else; immutable once registered.
type ConnectorIdentity struct {
	ConnectorID string `json:"connector_id"`
	SourceID    string `json:"source_id"`
	Name        string `json:"name"`
}

// ConnectorConfig is the registration-time configuration supplied by the
// connector registry.
type ConnectorConfig struct {
	Identity          ConnectorIdentity    `json:"identity"`
	ExpectedFrequency ExpectedFrequency    `json:"expected_frequency"`
	RateLimits        map[RateWindow]int   `json:"rate_limits"`
	FailureThreshold  int                  `json:"failure_threshold"`
}

// CallOutcome is the raw result of a single API call, supplied by the API
// client collaborator.
type CallOutcome struct {
	ConnectorID    string    `json:"connector_id"`
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"method"`
	Timestamp      time.Time `json:"timestamp"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	StatusCode     int       `json:"status_code"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	RetryAttempt   int       `json:"retry_attempt"`
}

// APICallLog is an immutable record of a single call attempt.
type APICallLog struct {
	ID             string    `json:"id"`
	ConnectorID    string    `json:"connector_id"`
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"method"`
	Timestamp      time.Time `json:"timestamp"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	StatusCode     int       `json:"status_code"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	RetryAttempt   int       `json:"retry_attempt"`
}

// CircuitBreakerState is the per-connector breaker snapshot.
type CircuitBreakerState struct {
	ConnectorID       string       `json:"connector_id"`
	Status            BreakerState `json:"status"`
	FailureCount      int          `json:"failure_count"`
	Threshold         int          `json:"threshold"`
	OpenedAt          *time.Time   `json:"opened_at,omitempty"`
	NextRetryAt       *time.Time   `json:"next_retry_at,omitempty"`
	HalfOpenSuccesses int          `json:"half_open_successes"`
	HalfOpenFailures  int          `json:"half_open_failures"`
}

// RateLimitStatus is the per-connector, per-window rate budget snapshot.
type RateLimitStatus struct {
	ConnectorID    string     `json:"connector_id"`
	SourceID       string     `json:"source_id"`
	Window         RateWindow `json:"window"`
	Current        int        `json:"current"`
	Limit          int        `json:"limit"`
	ResetAt        time.Time  `json:"reset_at"`
	Throttled      bool       `json:"throttled"`
	QueuedRequests int        `json:"queued_requests"`
	PercentUsed    float64    `json:"percent_used"`
}

// APIHealthStatus is the per-connector health snapshot. Created on the first
// recorded call; mutated only by the call-recording path.
type APIHealthStatus struct {
	Identity            ConnectorIdentity `json:"identity"`
	Status              HealthState       `json:"status"`
	LastSuccessfulFetch *time.Time        `json:"last_successful_fetch,omitempty"`
	LastFailedFetch     *time.Time        `json:"last_failed_fetch,omitempty"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	Uptime24h           float64           `json:"uptime_24h"`
	Uptime7d            float64           `json:"uptime_7d"`
	AvgResponseTimeMs   float64           `json:"avg_response_time_ms"`
	RequestCount        int64             `json:"request_count"`
	ErrorCount          int64             `json:"error_count"`
	RateLimits          []RateLimitStatus `json:"rate_limits"`
	CircuitBreaker      CircuitBreakerState `json:"circuit_breaker"`
	Note                string            `json:"note,omitempty"`
}

// DataFreshnessStatus is derived from the staleness classifier, never stored.
type DataFreshnessStatus struct {
	SourceID           string            `json:"source_id"`
	ItemID             string            `json:"item_id,omitempty"`
	LastDataPoint      time.Time         `json:"last_data_point"`
	ExpectedFrequency  ExpectedFrequency `json:"expected_frequency"`
	Staleness          Staleness         `json:"staleness"`
	HoursStale         float64           `json:"hours_stale"`
	NextExpectedUpdate time.Time         `json:"next_expected_update"`
}

// MetricDetails is the typed detail payload attached to a quality metric
// sample. Exactly one field is set, matching the metric type; Extra carries
// free-form diagnostic context only.
type MetricDetails struct {
	ErrorRate    *ErrorRateDetails    `json:"error_rate,omitempty"`
	ResponseTime *ResponseTimeDetails `json:"response_time,omitempty"`
	Staleness    *StalenessDetails    `json:"staleness,omitempty"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// ErrorRateDetails describes an error-rate sample.
type ErrorRateDetails struct {
	FailedRequests int64 `json:"failed_requests"`
	TotalRequests  int64 `json:"total_requests"`
}

// ResponseTimeDetails describes a response-time sample.
type ResponseTimeDetails struct {
	P95Ms float64 `json:"p95_ms"`
	MaxMs float64 `json:"max_ms"`
}

// StalenessDetails describes a staleness sample.
type StalenessDetails struct {
	LastDataPoint time.Time `json:"last_data_point"`
	ExpectedBy    time.Time `json:"expected_by"`
}

// MetricStatus classifies a sample against its threshold.
type MetricStatus string

const (
	MetricStatusPass MetricStatus = "pass"
	MetricStatusWarn MetricStatus = "warn"
	MetricStatusFail MetricStatus = "fail"
)

// DataQualityMetric is a single measured sample.
type DataQualityMetric struct {
	SourceID   string        `json:"source_id"`
	ItemID     string        `json:"item_id,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	MetricType MetricType    `json:"metric_type"`
	Value      float64       `json:"value"`
	Threshold  float64       `json:"threshold"`
	Status     MetricStatus  `json:"status"`
	Message    string        `json:"message,omitempty"`
	Details    MetricDetails `json:"details,omitempty"`
}

// QualityScorecard is the per-source, per-period composite score. Recomputed
// on demand and replaced wholesale, never partially updated.
type QualityScorecard struct {
	SourceID        string          `json:"source_id"`
	Period          ScorecardPeriod `json:"period"`
	GeneratedAt     time.Time       `json:"generated_at"`
	Availability    float64         `json:"availability"`
	Performance     float64         `json:"performance"`
	Freshness       float64         `json:"freshness"`
	Quality         float64         `json:"quality"`
	Overall         int             `json:"overall"`
	Trend           TrendDirection  `json:"trend"`
	ErrorFlags      int             `json:"error_flags"`
	WarningFlags    int             `json:"warning_flags"`
	Recommendations []string        `json:"recommendations"`
}

// MonitoringAlert is an alert emitted by the rule engine. Mutated only to set
// acknowledgment or resolution, never silently overwritten.
type MonitoringAlert struct {
	ID              string     `json:"id"`
	RuleID          string     `json:"rule_id"`
	Level           AlertLevel `json:"level"`
	Type            MetricType `json:"type"`
	SourceID        string     `json:"source_id"`
	ConnectorID     string     `json:"connector_id,omitempty"`
	Title           string     `json:"title"`
	Message         string     `json:"message"`
	Value           float64    `json:"value"`
	Threshold       float64    `json:"threshold"`
	Priority        int        `json:"priority"`
	Timestamp       time.Time  `json:"timestamp"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy  string     `json:"acknowledged_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	RelatedMetrics  []DataQualityMetric `json:"related_metrics,omitempty"`
	ActionItems     []string   `json:"action_items,omitempty"`
	AffectedItems   []string   `json:"affected_items,omitempty"`
	EstimatedImpact string     `json:"estimated_impact,omitempty"`
}

// AlertRule is operator-owned alerting configuration. The engine only reads it
// and updates LastTriggered.
type AlertRule struct {
	ID                   string         `json:"id"`
	Enabled              bool           `json:"enabled"`
	MetricType           MetricType     `json:"metric_type"`
	Condition            AlertCondition `json:"condition"`
	Threshold            float64        `json:"threshold"`
	DurationSeconds      int            `json:"duration_seconds"`
	Level                AlertLevel     `json:"level"`
	SourceIDs            []string       `json:"source_ids,omitempty"`
	NotificationChannels []string       `json:"notification_channels,omitempty"`
	CooldownMinutes      int            `json:"cooldown_minutes"`
	LastTriggered        *time.Time     `json:"last_triggered,omitempty"`
}

// AlertFilter narrows ListAlerts results.
type AlertFilter struct {
	Level      AlertLevel `json:"level,omitempty"`
	SourceID   string     `json:"source_id,omitempty"`
	Unresolved bool       `json:"unresolved,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

// FreshnessBuckets counts sources per staleness class.
type FreshnessBuckets struct {
	Current   int `json:"current"`
	Stale     int `json:"stale"`
	VeryStale int `json:"very_stale"`
}

// AlertCounts counts unresolved alerts per level.
type AlertCounts struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
}

// SystemHealthSummary is the wholly derived system-wide snapshot, recomputed
// each aggregation cycle.
type SystemHealthSummary struct {
	GeneratedAt       time.Time        `json:"generated_at"`
	OverallStatus     SystemStatus     `json:"overall_status"`
	TotalConnectors   int              `json:"total_connectors"`
	HealthyCount      int              `json:"healthy_count"`
	DegradedCount     int              `json:"degraded_count"`
	OfflineCount      int              `json:"offline_count"`
	Alerts            AlertCounts      `json:"alerts"`
	Freshness         FreshnessBuckets `json:"freshness"`
	AvgResponseTimeMs float64          `json:"avg_response_time_ms"`
	SuccessRate       float64          `json:"success_rate"`
	ErrorRate         float64          `json:"error_rate"`
	Notes             []string         `json:"notes,omitempty"`
}

// HealthStateFromUptime buckets an uptime ratio into a health state. Lower
// bounds are inclusive: 0.95 is healthy, 0.80 is degraded.
func HealthStateFromUptime(uptime float64) HealthState {
	switch {
	case uptime >= 0.95:
		return HealthStateHealthy
	case uptime >= 0.80:
		return HealthStateDegraded
	default:
		return HealthStateOffline
	}
}
