package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"connwatch/internal/logger"
)

// Config tunes the monitoring engine. Shipped defaults come from
// DefaultConfig; callers pass configuration explicitly, there is no implicit
// global.
type Config struct {
	// AggregationInterval is the cadence of the summary/evaluation cycle.
	AggregationInterval time.Duration `yaml:"aggregation_interval" json:"aggregation_interval"`
	// EvaluationLookback is the window rule observations are computed over.
	EvaluationLookback time.Duration `yaml:"evaluation_lookback" json:"evaluation_lookback"`
	Breaker            BreakerConfig   `yaml:"breaker" json:"breaker"`
	RateLimits         RateLimitConfig `yaml:"rate_limits" json:"rate_limits"`
	ScoreWeights       ScoreWeights    `yaml:"score_weights" json:"score_weights"`
	// InstallDefaultRules seeds the engine with the shipped rule set.
	InstallDefaultRules bool `yaml:"install_default_rules" json:"install_default_rules"`
}

// DefaultConfig returns the shipped engine defaults.
func DefaultConfig() Config {
	return Config{
		AggregationInterval: 30 * time.Second,
		EvaluationLookback:  5 * time.Minute,
		Breaker:             DefaultBreakerConfig(),
		RateLimits:          DefaultRateLimitConfig(),
		ScoreWeights:        DefaultScoreWeights(),
		InstallDefaultRules: true,
	}
}

// EngineMetrics receives engine events for exposition; implemented by the
// Prometheus metric set. All methods must be non-blocking.
type EngineMetrics interface {
	CallRecorded(connectorID string, success bool, responseTimeMs float64)
	CallThrottled(connectorID string)
	BreakerTransition(connectorID string, to BreakerState)
	AlertFired(level AlertLevel)
	SummaryBuilt(summary SystemHealthSummary)
}

// sourceState tracks per-source freshness and quality samples.
type sourceState struct {
	frequency ExpectedFrequency
	items     map[string]time.Time // itemID → last data point
	samples   []DataQualityMetric  // bounded, newest last
}

// Engine is the connector health, data-quality and alerting engine. All state
// lives behind injected stores; access is serialized per connector.
type Engine struct {
	config     Config
	health     *HealthStore
	breaker    *BreakerController
	rate       *RateLimitTracker
	scorer     *QualityScorer
	alerts     *AlertRuleEngine
	aggregator *Aggregator

	connectors map[string]ConnectorConfig
	sources    map[string]*sourceState

	metrics     EngineMetrics
	onCallLog   func(APICallLog)
	onSummary   func(SystemHealthSummary)
	lastSummary *SystemHealthSummary

	log    logger.Logger
	now    func() time.Time
	stopCh chan struct{}
	doneCh chan struct{}
	mu     sync.RWMutex
}

// NewEngine creates an engine from config.
func NewEngine(config Config, log logger.Logger) *Engine {
	if config.AggregationInterval <= 0 {
		config.AggregationInterval = DefaultConfig().AggregationInterval
	}
	if config.EvaluationLookback <= 0 {
		config.EvaluationLookback = DefaultConfig().EvaluationLookback
	}
	if log == nil {
		log = logger.NewNop()
	}

	var rules []AlertRule
	if config.InstallDefaultRules {
		rules = DefaultAlertRules()
	}

	e := &Engine{
		config:     config,
		health:     NewHealthStore(),
		breaker:    NewBreakerController(config.Breaker),
		rate:       NewRateLimitTracker(),
		scorer:     NewQualityScorer(config.ScoreWeights),
		alerts:     NewAlertRuleEngine(rules),
		connectors: make(map[string]ConnectorConfig),
		sources:    make(map[string]*sourceState),
		log:        log,
		now:        time.Now,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	e.aggregator = NewAggregator(e.health, e.alerts)

	e.breaker.SetTransitionCallback(func(connectorID string, from, to BreakerState) {
		e.log.Warn("circuit breaker transition",
			"connector_id", connectorID, "from", string(from), "to", string(to))
		if e.metrics != nil {
			e.metrics.BreakerTransition(connectorID, to)
		}
	})
	e.alerts.SetAlertCallback(func(alert MonitoringAlert) {
		e.log.Warn("alert fired",
			"alert_id", alert.ID, "level", string(alert.Level),
			"type", string(alert.Type), "source_id", alert.SourceID)
		if e.metrics != nil {
			e.metrics.AlertFired(alert.Level)
		}
	})
	e.alerts.SetSuppressCallback(func(rule AlertRule, sourceID string) {
		e.log.Debug("alert suppressed by cooldown",
			"rule_id", rule.ID, "source_id", sourceID)
	})

	return e
}

// SetMetrics attaches a metric sink.
func (e *Engine) SetMetrics(m EngineMetrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// SetCallLogSink attaches a sink for immutable call log records, typically the
// storage collaborator. The engine works without one.
func (e *Engine) SetCallLogSink(fn func(APICallLog)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCallLog = fn
}

// SetSummarySink attaches a sink invoked with each aggregation cycle's summary.
func (e *Engine) SetSummarySink(fn func(SystemHealthSummary)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onSummary = fn
}

// SetAlertSink attaches an extra sink for emitted alerts, in addition to the
// engine's own logging.
func (e *Engine) SetAlertSink(fn func(MonitoringAlert)) {
	e.alerts.SetAlertCallback(func(alert MonitoringAlert) {
		e.log.Warn("alert fired",
			"alert_id", alert.ID, "level", string(alert.Level),
			"type", string(alert.Type), "source_id", alert.SourceID)
		if e.metrics != nil {
			e.metrics.AlertFired(alert.Level)
		}
		fn(alert)
	})
}

// RegisterConnector installs registry-supplied configuration for a connector.
func (e *Engine) RegisterConnector(config ConnectorConfig) error {
	if config.Identity.ConnectorID == "" {
		return fmt.Errorf("connector id is required")
	}
	if config.Identity.SourceID == "" {
		return fmt.Errorf("source id is required for connector %s", config.Identity.ConnectorID)
	}

	e.mu.Lock()
	if _, exists := e.connectors[config.Identity.ConnectorID]; exists {
		e.mu.Unlock()
		return fmt.Errorf("connector already registered: %s", config.Identity.ConnectorID)
	}
	e.connectors[config.Identity.ConnectorID] = config
	if _, exists := e.sources[config.Identity.SourceID]; !exists {
		e.sources[config.Identity.SourceID] = &sourceState{
			frequency: config.ExpectedFrequency,
			items:     make(map[string]time.Time),
		}
	}
	e.mu.Unlock()

	e.health.Register(config.Identity)
	e.breaker.Register(config.Identity.ConnectorID, config.FailureThreshold)

	limits := config.RateLimits
	if len(limits) == 0 {
		limits = e.config.RateLimits.Limits()
	}
	e.rate.Register(config.Identity, limits)

	e.log.Info("connector registered",
		"connector_id", config.Identity.ConnectorID,
		"source_id", config.Identity.SourceID,
		"expected_frequency", string(config.ExpectedFrequency))
	return nil
}

// CanAttempt reports whether the circuit breaker allows a call right now.
func (e *Engine) CanAttempt(connectorID string) bool {
	return e.breaker.CanAttempt(connectorID)
}

// RecordCall ingests one call outcome. This is the single writer path for all
// per-connector state.
func (e *Engine) RecordCall(outcome CallOutcome) APICallLog {
	at := outcome.Timestamp
	if at.IsZero() {
		at = e.now()
		outcome.Timestamp = at
	}

	e.breaker.RecordOutcome(outcome.ConnectorID, outcome.Success, at)
	throttled := e.rate.RecordCall(outcome.ConnectorID, at)
	e.health.Record(outcome)

	if outcome.Success {
		// A successful fetch is a fresh data point for the connector's source.
		if identity, ok := e.health.Identity(outcome.ConnectorID); ok && identity.SourceID != "" {
			e.RecordDataPoint(identity.SourceID, outcome.ConnectorID, at)
		}
	}

	entry := APICallLog{
		ID:             uuid.NewString(),
		ConnectorID:    outcome.ConnectorID,
		Endpoint:       outcome.Endpoint,
		Method:         outcome.Method,
		Timestamp:      at,
		ResponseTimeMs: outcome.ResponseTimeMs,
		StatusCode:     outcome.StatusCode,
		Success:        outcome.Success,
		Error:          outcome.Error,
		RetryAttempt:   outcome.RetryAttempt,
	}

	e.mu.RLock()
	metrics, onCallLog := e.metrics, e.onCallLog
	e.mu.RUnlock()

	if metrics != nil {
		metrics.CallRecorded(outcome.ConnectorID, outcome.Success, outcome.ResponseTimeMs)
		if throttled {
			metrics.CallThrottled(outcome.ConnectorID)
		}
	}
	if onCallLog != nil {
		onCallLog(entry)
	}
	return entry
}

// RecordDataPoint notes that a source item published data at the given time.
func (e *Engine) RecordDataPoint(sourceID, itemID string, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, exists := e.sources[sourceID]
	if !exists {
		state = &sourceState{
			frequency: FrequencyDaily,
			items:     make(map[string]time.Time),
		}
		e.sources[sourceID] = state
	}
	if prev, exists := state.items[itemID]; !exists || at.After(prev) {
		state.items[itemID] = at
	}
}

// RecordSample ingests one measured quality metric sample.
func (e *Engine) RecordSample(sample DataQualityMetric) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = e.now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	state, exists := e.sources[sample.SourceID]
	if !exists {
		state = &sourceState{
			frequency: FrequencyDaily,
			items:     make(map[string]time.Time),
		}
		e.sources[sample.SourceID] = state
	}

	state.samples = append(state.samples, sample)
	if len(state.samples) > 1000 {
		state.samples = state.samples[len(state.samples)-1000:]
	}
}

// Start runs the evaluation/aggregation loop until Stop is called or the
// context is canceled. No new cycle is scheduled after a stop signal.
func (e *Engine) Start(ctx context.Context) {
	go e.run(ctx)
}

// Stop signals the loop to exit and waits for the in-flight cycle to finish.
func (e *Engine) Stop() {
	close(e.stopCh)
	<-e.doneCh
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.config.AggregationInterval)
	defer ticker.Stop()

	e.log.Info("monitoring loop started",
		"interval", e.config.AggregationInterval.String())

	for {
		select {
		case <-ctx.Done():
			e.log.Info("monitoring loop stopped", "reason", "context canceled")
			return
		case <-e.stopCh:
			e.log.Info("monitoring loop stopped", "reason", "stop requested")
			return
		case <-ticker.C:
			e.RunCycle()
		}
	}
}

// RunCycle executes one evaluation + aggregation pass and returns the summary.
func (e *Engine) RunCycle() SystemHealthSummary {
	observations := e.buildObservations()
	fired := e.alerts.Evaluate(observations)
	if len(fired) > 0 {
		e.log.Info("evaluation cycle fired alerts", "count", len(fired))
	}

	freshness := e.FreshnessStatuses()
	summary := e.aggregator.BuildSummary(freshness)

	e.mu.Lock()
	e.lastSummary = &summary
	metrics, onSummary := e.metrics, e.onSummary
	e.mu.Unlock()

	if metrics != nil {
		metrics.SummaryBuilt(summary)
	}
	if onSummary != nil {
		onSummary(summary)
	}
	return summary
}

// buildObservations snapshots the per-source metric values the rule engine
// evaluates. Pure in-memory reads, no I/O.
func (e *Engine) buildObservations() []MetricObservation {
	e.mu.RLock()
	connectors := make([]ConnectorConfig, 0, len(e.connectors))
	for _, c := range e.connectors {
		connectors = append(connectors, c)
	}
	e.mu.RUnlock()

	var observations []MetricObservation

	for _, connector := range connectors {
		id := connector.Identity.ConnectorID
		sourceID := connector.Identity.SourceID

		total, successful, avgResponse := e.health.WindowInput(id, e.config.EvaluationLookback)
		if total > 0 {
			errorRate := float64(total-successful) / float64(total)
			availability := float64(successful) / float64(total) * 100
			observations = append(observations,
				MetricObservation{SourceID: sourceID, ConnectorID: id, MetricType: MetricErrorRate, Value: errorRate},
				MetricObservation{SourceID: sourceID, ConnectorID: id, MetricType: MetricAvailability, Value: availability},
				MetricObservation{SourceID: sourceID, ConnectorID: id, MetricType: MetricResponseTime, Value: avgResponse},
			)
		} else if status, err := e.health.Status(id); err == nil && status.ConsecutiveFailures > 0 {
			// No calls inside the lookback but the last known calls failed;
			// the source is dark, not idle.
			observations = append(observations,
				MetricObservation{SourceID: sourceID, ConnectorID: id, MetricType: MetricAvailability, Value: 0},
			)
		}
	}

	for _, fresh := range e.FreshnessStatuses() {
		observations = append(observations, MetricObservation{
			SourceID:   fresh.SourceID,
			MetricType: MetricStaleness,
			Value:      fresh.HoursStale,
		})
	}

	for _, card := range e.scorer.Scorecards() {
		if card.Period != Period24h {
			continue
		}
		observations = append(observations, MetricObservation{
			SourceID:   card.SourceID,
			MetricType: MetricQualityScore,
			Value:      float64(card.Overall),
		})
	}

	return observations
}

// FreshnessStatuses derives the freshness snapshot for every tracked source.
func (e *Engine) FreshnessStatuses() []DataFreshnessStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.now()
	var out []DataFreshnessStatus
	for sourceID, state := range e.sources {
		last, itemID := latestItem(state.items)
		if last.IsZero() {
			continue
		}
		out = append(out, FreshnessStatus(sourceID, itemID, last, state.frequency, now))
	}
	return out
}

// latestItem returns the most recent data point and its item across a source.
func latestItem(items map[string]time.Time) (time.Time, string) {
	var last time.Time
	var lastID string
	for id, at := range items {
		if at.After(last) {
			last = at
			lastID = id
		}
	}
	return last, lastID
}

// GetHealthSummary returns the latest summary, computing one on demand if no
// cycle has run yet.
func (e *Engine) GetHealthSummary() SystemHealthSummary {
	e.mu.RLock()
	last := e.lastSummary
	e.mu.RUnlock()

	if last != nil {
		return *last
	}
	return e.RunCycle()
}

// GetConnectorStatus returns one connector's health snapshot with its embedded
// breaker and rate limit status.
func (e *Engine) GetConnectorStatus(connectorID string) (APIHealthStatus, error) {
	status, err := e.health.Status(connectorID)
	if err != nil {
		return APIHealthStatus{}, err
	}
	status.CircuitBreaker = e.breaker.State(connectorID)
	status.RateLimits = e.rate.Statuses(connectorID)
	return status, nil
}

// ListConnectors returns health snapshots for every known connector.
func (e *Engine) ListConnectors() []APIHealthStatus {
	ids := e.health.ConnectorIDs()
	out := make([]APIHealthStatus, 0, len(ids))
	for _, id := range ids {
		status, err := e.GetConnectorStatus(id)
		if err != nil {
			continue
		}
		out = append(out, status)
	}
	return out
}

// GetScorecard recomputes and returns the scorecard for a source and period.
func (e *Engine) GetScorecard(sourceID string, period ScorecardPeriod) (QualityScorecard, error) {
	lookback, err := periodLookback(period)
	if err != nil {
		return QualityScorecard{}, err
	}

	e.mu.RLock()
	state, exists := e.sources[sourceID]
	if !exists {
		e.mu.RUnlock()
		return QualityScorecard{}, fmt.Errorf("source not found: %s", sourceID)
	}
	frequency := state.frequency
	items := make(map[string]time.Time, len(state.items))
	for id, at := range state.items {
		items[id] = at
	}
	samples := make([]DataQualityMetric, len(state.samples))
	copy(samples, state.samples)

	var connectorIDs []string
	for id, c := range e.connectors {
		if c.Identity.SourceID == sourceID {
			connectorIDs = append(connectorIDs, id)
		}
	}
	e.mu.RUnlock()

	var input ScoreInput
	for _, id := range connectorIDs {
		total, successful, avgResponse := e.health.WindowInput(id, lookback)
		if total > 0 && avgResponse > 0 {
			// Weighted mean across the source's connectors.
			input.AvgResponseTimeMs = (input.AvgResponseTimeMs*float64(input.TotalRequests) + avgResponse*float64(total)) / float64(input.TotalRequests+total)
		}
		input.TotalRequests += total
		input.SuccessfulRequests += successful
	}

	now := e.now()
	for _, at := range items {
		input.DataPointsTotal++
		staleness, _ := ClassifyStaleness(at, frequency, now)
		if staleness == StalenessRecent {
			input.DataPointsCurrent++
		}
	}

	cutoff := now.Add(-lookback)
	for _, sample := range samples {
		if sample.Timestamp.Before(cutoff) {
			continue
		}
		switch sample.Status {
		case MetricStatusFail:
			input.ErrorFlags++
		case MetricStatusWarn:
			input.WarningFlags++
		}
	}

	return e.scorer.Recompute(sourceID, period, input), nil
}

// ListAlerts returns alerts matching the filter.
func (e *Engine) ListAlerts(filter AlertFilter) []MonitoringAlert {
	return e.alerts.List(filter)
}

// AcknowledgeAlert marks an alert acknowledged.
func (e *Engine) AcknowledgeAlert(alertID, who string) error {
	return e.alerts.Acknowledge(alertID, who)
}

// ResolveAlert marks an alert resolved.
func (e *Engine) ResolveAlert(alertID string) error {
	return e.alerts.Resolve(alertID)
}

// UpdateAlertRules atomically replaces the rule set; invalid batches are
// rejected wholesale and the prior set stays active.
func (e *Engine) UpdateAlertRules(rules []AlertRule) error {
	if err := e.alerts.UpdateRules(rules); err != nil {
		e.log.Error("alert rule update rejected", "error", err.Error())
		return err
	}
	e.log.Info("alert rules replaced", "count", len(rules))
	return nil
}

// AlertRules returns the active rule set.
func (e *Engine) AlertRules() []AlertRule {
	return e.alerts.Rules()
}

// Scorecards returns every cached scorecard, for persistence snapshots.
func (e *Engine) Scorecards() []QualityScorecard {
	return e.scorer.Scorecards()
}

func periodLookback(period ScorecardPeriod) (time.Duration, error) {
	switch period {
	case Period24h:
		return 24 * time.Hour, nil
	case Period7d:
		return 7 * 24 * time.Hour, nil
	case Period30d:
		return 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown scorecard period: %s", period)
	}
}
