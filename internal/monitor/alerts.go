package monitor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// validMetricTypes is the closed set of metric types alert rules may target.
// Alert rules are a small fixed schema, not an expression language.
var validMetricTypes = map[MetricType]bool{
	MetricErrorRate:    true,
	MetricAvailability: true,
	MetricStaleness:    true,
	MetricResponseTime: true,
	MetricQualityScore: true,
	MetricCompleteness: true,
}

// DefaultAlertRules returns the shipped rule set.
func DefaultAlertRules() []AlertRule {
	return []AlertRule{
		{
			ID:              "high-error-rate",
			Enabled:         true,
			MetricType:      MetricErrorRate,
			Condition:       ConditionAbove,
			Threshold:       0.25,
			DurationSeconds: 300,
			Level:           AlertLevelCritical,
			CooldownMinutes: 30,
		},
		{
			ID:              "api-offline",
			Enabled:         true,
			MetricType:      MetricAvailability,
			Condition:       ConditionEquals,
			Threshold:       0,
			DurationSeconds: 180,
			Level:           AlertLevelCritical,
			CooldownMinutes: 30,
		},
		{
			ID:              "stale-data",
			Enabled:         true,
			MetricType:      MetricStaleness,
			Condition:       ConditionAbove,
			Threshold:       48,
			DurationSeconds: 0,
			Level:           AlertLevelWarning,
			CooldownMinutes: 120,
		},
		{
			ID:              "slow-response",
			Enabled:         true,
			MetricType:      MetricResponseTime,
			Condition:       ConditionAbove,
			Threshold:       5000,
			DurationSeconds: 300,
			Level:           AlertLevelWarning,
			CooldownMinutes: 60,
		},
	}
}

// MetricObservation is one metric value presented to the rule engine during an
// evaluation cycle.
type MetricObservation struct {
	SourceID    string
	ConnectorID string
	MetricType  MetricType
	Value       float64
	Samples     []DataQualityMetric
}

// ruleStreak tracks how long a rule's condition has held for one source.
type ruleStreak struct {
	since time.Time
}

// AlertRuleEngine evaluates configured rules against metric observations and
// emits deduplicated alerts. The rule set is read-only during evaluation and
// replaced atomically between cycles.
type AlertRuleEngine struct {
	rules    []AlertRule
	streaks  map[string]*ruleStreak // ruleID|sourceID
	alerts   map[string]*MonitoringAlert
	order    []string // alert IDs in emission order
	onAlert  func(MonitoringAlert)
	onSuppress func(rule AlertRule, sourceID string)
	now      func() time.Time
	mu       sync.RWMutex
}

// NewAlertRuleEngine creates a rule engine seeded with the given rules.
func NewAlertRuleEngine(rules []AlertRule) *AlertRuleEngine {
	return &AlertRuleEngine{
		rules:   rules,
		streaks: make(map[string]*ruleStreak),
		alerts:  make(map[string]*MonitoringAlert),
		now:     time.Now,
	}
}

// SetAlertCallback registers a callback invoked for every emitted alert.
func (e *AlertRuleEngine) SetAlertCallback(fn func(MonitoringAlert)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAlert = fn
}

// SetSuppressCallback registers a callback invoked when a fire is suppressed
// by cooldown. Suppressed re-fires are logged, never re-emitted.
func (e *AlertRuleEngine) SetSuppressCallback(fn func(rule AlertRule, sourceID string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onSuppress = fn
}

// ValidateRule rejects rules the engine cannot evaluate.
func ValidateRule(rule AlertRule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if !validMetricTypes[rule.MetricType] {
		return fmt.Errorf("rule %s: unknown metric type %q", rule.ID, rule.MetricType)
	}
	switch rule.Condition {
	case ConditionAbove, ConditionBelow, ConditionEquals:
	default:
		return fmt.Errorf("rule %s: unknown condition %q", rule.ID, rule.Condition)
	}
	switch rule.Level {
	case AlertLevelCritical, AlertLevelWarning, AlertLevelInfo:
	default:
		return fmt.Errorf("rule %s: unknown level %q", rule.ID, rule.Level)
	}
	if rule.CooldownMinutes <= 0 {
		return fmt.Errorf("rule %s: cooldown must be positive, got %d", rule.ID, rule.CooldownMinutes)
	}
	if rule.DurationSeconds < 0 {
		return fmt.Errorf("rule %s: duration must not be negative, got %d", rule.ID, rule.DurationSeconds)
	}
	return nil
}

// UpdateRules validates and atomically replaces the rule set. On any invalid
// rule the whole batch is rejected and the prior set stays active.
func (e *AlertRuleEngine) UpdateRules(rules []AlertRule) error {
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if err := ValidateRule(rule); err != nil {
			return fmt.Errorf("invalid alert rule: %w", err)
		}
		if seen[rule.ID] {
			return fmt.Errorf("invalid alert rule: duplicate rule id %s", rule.ID)
		}
		seen[rule.ID] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Carry LastTriggered forward so a config push does not reset cooldowns.
	last := make(map[string]*time.Time, len(e.rules))
	for _, rule := range e.rules {
		last[rule.ID] = rule.LastTriggered
	}
	for i := range rules {
		if rules[i].LastTriggered == nil {
			rules[i].LastTriggered = last[rules[i].ID]
		}
	}

	e.rules = rules
	return nil
}

// Rules returns a copy of the active rule set.
func (e *AlertRuleEngine) Rules() []AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]AlertRule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate runs every enabled rule against the given observations. A rule
// fires only when its condition has held for at least its debounce duration,
// and at most once per cooldown window; streaks keep accumulating through
// suppression.
func (e *AlertRuleEngine) Evaluate(observations []MetricObservation) []MonitoringAlert {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var fired []MonitoringAlert

	for i := range e.rules {
		rule := &e.rules[i]
		if !rule.Enabled {
			continue
		}

		for _, obs := range observations {
			if obs.MetricType != rule.MetricType {
				continue
			}
			if !ruleAppliesToSource(rule, obs.SourceID) {
				continue
			}

			key := rule.ID + "|" + obs.SourceID
			if !conditionHolds(rule.Condition, obs.Value, rule.Threshold) {
				delete(e.streaks, key)
				continue
			}

			streak, exists := e.streaks[key]
			if !exists {
				streak = &ruleStreak{since: now}
				e.streaks[key] = streak
			}

			held := now.Sub(streak.since)
			if held < time.Duration(rule.DurationSeconds)*time.Second {
				continue
			}

			if rule.LastTriggered != nil {
				cooldown := time.Duration(rule.CooldownMinutes) * time.Minute
				if now.Sub(*rule.LastTriggered) < cooldown {
					// Within cooldown: suppress the re-fire but keep the
					// streak alive so recovery is judged correctly.
					if e.onSuppress != nil {
						e.onSuppress(*rule, obs.SourceID)
					}
					continue
				}
			}

			alert := e.emit(rule, obs, now)
			fired = append(fired, alert)
			triggered := now
			rule.LastTriggered = &triggered
		}
	}

	return fired
}

// emit creates and stores a new alert. Callers must hold the lock.
func (e *AlertRuleEngine) emit(rule *AlertRule, obs MetricObservation, now time.Time) MonitoringAlert {
	alert := MonitoringAlert{
		ID:             uuid.NewString(),
		RuleID:         rule.ID,
		Level:          rule.Level,
		Type:           rule.MetricType,
		SourceID:       obs.SourceID,
		ConnectorID:    obs.ConnectorID,
		Title:          alertTitle(rule),
		Message:        fmt.Sprintf("%s is %.4g (%s %.4g) for source %s", rule.MetricType, obs.Value, rule.Condition, rule.Threshold, obs.SourceID),
		Value:          obs.Value,
		Threshold:      rule.Threshold,
		Priority:       rule.Level.Priority(),
		Timestamp:      now,
		RelatedMetrics: obs.Samples,
	}

	e.alerts[alert.ID] = &alert
	e.order = append(e.order, alert.ID)
	if e.onAlert != nil {
		e.onAlert(alert)
	}
	return alert
}

// Acknowledge marks an alert acknowledged by an operator.
func (e *AlertRuleEngine) Acknowledge(alertID, who string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert, exists := e.alerts[alertID]
	if !exists {
		return fmt.Errorf("alert not found: %s", alertID)
	}
	if alert.AcknowledgedAt != nil {
		return fmt.Errorf("alert already acknowledged: %s", alertID)
	}

	now := e.now()
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = who
	return nil
}

// Resolve marks an alert resolved.
func (e *AlertRuleEngine) Resolve(alertID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert, exists := e.alerts[alertID]
	if !exists {
		return fmt.Errorf("alert not found: %s", alertID)
	}
	if alert.ResolvedAt != nil {
		return fmt.Errorf("alert already resolved: %s", alertID)
	}

	now := e.now()
	alert.ResolvedAt = &now
	return nil
}

// List returns alerts matching the filter, newest first. Critical alerts stay
// visible through cooldown windows because the stored alert is only removed by
// resolution, never by suppression.
func (e *AlertRuleEngine) List(filter AlertFilter) []MonitoringAlert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]MonitoringAlert, 0, len(e.order))
	for i := len(e.order) - 1; i >= 0; i-- {
		alert := e.alerts[e.order[i]]
		if filter.Level != "" && alert.Level != filter.Level {
			continue
		}
		if filter.SourceID != "" && alert.SourceID != filter.SourceID {
			continue
		}
		if filter.Unresolved && alert.ResolvedAt != nil {
			continue
		}
		out = append(out, *alert)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Counts tallies unresolved alerts per level.
func (e *AlertRuleEngine) Counts() AlertCounts {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var counts AlertCounts
	for _, alert := range e.alerts {
		if alert.ResolvedAt != nil {
			continue
		}
		switch alert.Level {
		case AlertLevelCritical:
			counts.Critical++
		case AlertLevelWarning:
			counts.Warning++
		case AlertLevelInfo:
			counts.Info++
		}
	}
	return counts
}

// HasUnresolved reports whether a source has an unresolved alert at the level.
func (e *AlertRuleEngine) HasUnresolved(sourceID string, level AlertLevel) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, alert := range e.alerts {
		if alert.ResolvedAt == nil && alert.Level == level && alert.SourceID == sourceID {
			return true
		}
	}
	return false
}

func ruleAppliesToSource(rule *AlertRule, sourceID string) bool {
	if len(rule.SourceIDs) == 0 {
		return true
	}
	for _, id := range rule.SourceIDs {
		if id == sourceID {
			return true
		}
	}
	return false
}

func conditionHolds(cond AlertCondition, value, threshold float64) bool {
	switch cond {
	case ConditionAbove:
		return value > threshold
	case ConditionBelow:
		return value < threshold
	case ConditionEquals:
		return value == threshold
	default:
		return false
	}
}

func alertTitle(rule *AlertRule) string {
	switch rule.ID {
	case "high-error-rate":
		return "High error rate"
	case "api-offline":
		return "API offline"
	case "stale-data":
		return "Stale data"
	case "slow-response":
		return "Slow response"
	default:
		return fmt.Sprintf("%s %s threshold", rule.MetricType, rule.Condition)
	}
}
