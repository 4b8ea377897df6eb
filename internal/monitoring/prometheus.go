package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"connwatch/internal/monitor"
)

// Metrics holds all Prometheus metrics. It implements monitor.EngineMetrics
// and registers everything on its own registry so tests can create as many
// instances as they need.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec
	wsConnectionsActive  prometheus.Gauge

	callsTotal          *prometheus.CounterVec
	callResponseTime    *prometheus.HistogramVec
	callsThrottledTotal *prometheus.CounterVec
	breakerTransitions  *prometheus.CounterVec
	alertsFiredTotal    *prometheus.CounterVec

	connectorsByState *prometheus.GaugeVec
	sourcesByStale    *prometheus.GaugeVec
	systemErrorRate   prometheus.Gauge
	unresolvedAlerts  *prometheus.GaugeVec

	notificationsTotal *prometheus.CounterVec
}

// NewMetrics creates the metric set.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
			[]string{"method", "endpoint"},
		),
		wsConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "websocket_connections_active",
				Help: "Number of active WebSocket connections",
			},
		),
		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "connector_calls_total",
				Help: "Total number of recorded connector calls",
			},
			[]string{"connector_id", "success"},
		),
		callResponseTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "connector_call_response_time_ms",
				Help:    "Connector call response time in milliseconds",
				Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
			[]string{"connector_id"},
		),
		callsThrottledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "connector_calls_throttled_total",
				Help: "Total number of calls that hit a rate limit window",
			},
			[]string{"connector_id"},
		),
		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_breaker_transitions_total",
				Help: "Total number of circuit breaker state transitions",
			},
			[]string{"connector_id", "to_state"},
		),
		alertsFiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitoring_alerts_fired_total",
				Help: "Total number of alerts fired by the rule engine",
			},
			[]string{"level"},
		),
		connectorsByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "connectors_by_state",
				Help: "Number of connectors in each health state",
			},
			[]string{"state"},
		),
		sourcesByStale: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sources_by_staleness",
				Help: "Number of sources in each freshness bucket",
			},
			[]string{"bucket"},
		),
		systemErrorRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "system_error_rate",
				Help: "System-wide error rate over the rolling day window",
			},
		),
		unresolvedAlerts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "monitoring_alerts_unresolved",
				Help: "Number of unresolved alerts by level",
			},
			[]string{"level"},
		),
		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_notifications_total",
				Help: "Total number of alert notification deliveries by channel",
			},
			[]string{"channel", "success"},
		),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestsInFlight,
		m.wsConnectionsActive,
		m.callsTotal,
		m.callResponseTime,
		m.callsThrottledTotal,
		m.breakerTransitions,
		m.alertsFiredTotal,
		m.connectorsByState,
		m.sourcesByStale,
		m.systemErrorRate,
		m.unresolvedAlerts,
		m.notificationsTotal,
	)

	return m
}

// Handler returns the exposition endpoint for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CallRecorded counts one recorded connector call.
func (m *Metrics) CallRecorded(connectorID string, success bool, responseTimeMs float64) {
	m.callsTotal.WithLabelValues(connectorID, strconv.FormatBool(success)).Inc()
	if responseTimeMs > 0 {
		m.callResponseTime.WithLabelValues(connectorID).Observe(responseTimeMs)
	}
}

// CallThrottled counts one call that hit a rate limit window.
func (m *Metrics) CallThrottled(connectorID string) {
	m.callsThrottledTotal.WithLabelValues(connectorID).Inc()
}

// BreakerTransition counts one circuit breaker state change.
func (m *Metrics) BreakerTransition(connectorID string, to monitor.BreakerState) {
	m.breakerTransitions.WithLabelValues(connectorID, string(to)).Inc()
}

// AlertFired counts one fired alert.
func (m *Metrics) AlertFired(level monitor.AlertLevel) {
	m.alertsFiredTotal.WithLabelValues(string(level)).Inc()
}

// SummaryBuilt publishes the aggregate gauges from a completed cycle.
func (m *Metrics) SummaryBuilt(summary monitor.SystemHealthSummary) {
	m.connectorsByState.WithLabelValues(string(monitor.HealthStateHealthy)).Set(float64(summary.HealthyCount))
	m.connectorsByState.WithLabelValues(string(monitor.HealthStateDegraded)).Set(float64(summary.DegradedCount))
	m.connectorsByState.WithLabelValues(string(monitor.HealthStateOffline)).Set(float64(summary.OfflineCount))

	m.sourcesByStale.WithLabelValues(string(monitor.StalenessRecent)).Set(float64(summary.Freshness.Current))
	m.sourcesByStale.WithLabelValues(string(monitor.StalenessStale)).Set(float64(summary.Freshness.Stale))
	m.sourcesByStale.WithLabelValues(string(monitor.StalenessVeryStale)).Set(float64(summary.Freshness.VeryStale))

	m.systemErrorRate.Set(summary.ErrorRate)

	m.unresolvedAlerts.WithLabelValues(string(monitor.AlertLevelCritical)).Set(float64(summary.Alerts.Critical))
	m.unresolvedAlerts.WithLabelValues(string(monitor.AlertLevelWarning)).Set(float64(summary.Alerts.Warning))
	m.unresolvedAlerts.WithLabelValues(string(monitor.AlertLevelInfo)).Set(float64(summary.Alerts.Info))
}

// NotificationSent counts one outbound alert delivery attempt outcome.
func (m *Metrics) NotificationSent(channel string, success bool) {
	m.notificationsTotal.WithLabelValues(channel, strconv.FormatBool(success)).Inc()
}

// WSConnectionOpened tracks a new websocket subscriber.
func (m *Metrics) WSConnectionOpened() { m.wsConnectionsActive.Inc() }

// WSConnectionClosed tracks a dropped websocket subscriber.
func (m *Metrics) WSConnectionClosed() { m.wsConnectionsActive.Dec() }

// MetricsMiddleware records request counts, durations and in-flight gauges for
// every route.
func (m *Metrics) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		m.httpRequestsInFlight.WithLabelValues(c.Request.Method, path).Inc()
		defer m.httpRequestsInFlight.WithLabelValues(c.Request.Method, path).Dec()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}
