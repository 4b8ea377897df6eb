package monitor

import (
	"testing"
	"time"
)

func errorRateRule() AlertRule {
	return AlertRule{
		ID:              "high-error-rate",
		Enabled:         true,
		MetricType:      MetricErrorRate,
		Condition:       ConditionAbove,
		Threshold:       0.25,
		DurationSeconds: 300,
		Level:           AlertLevelCritical,
		CooldownMinutes: 30,
	}
}

func errObservation(value float64) []MetricObservation {
	return []MetricObservation{{
		SourceID:    "src-1",
		ConnectorID: "conn-1",
		MetricType:  MetricErrorRate,
		Value:       value,
	}}
}

func TestAlertDebounceByDuration(t *testing.T) {
	engine := NewAlertRuleEngine([]AlertRule{errorRateRule()})

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return current }

	// Condition starts holding at t=0.
	if fired := engine.Evaluate(errObservation(0.4)); len(fired) != 0 {
		t.Fatal("rule must not fire before its duration is satisfied")
	}

	// 120 seconds of a 300 second debounce: still nothing.
	current = current.Add(120 * time.Second)
	if fired := engine.Evaluate(errObservation(0.4)); len(fired) != 0 {
		t.Fatal("120s of a 300s debounce must not fire")
	}

	// Sustained past 300s: exactly one alert.
	current = current.Add(200 * time.Second)
	fired := engine.Evaluate(errObservation(0.4))
	if len(fired) != 1 {
		t.Fatalf("expected one alert after duration satisfied, got %d", len(fired))
	}
	if fired[0].Level != AlertLevelCritical || fired[0].Priority != 1 {
		t.Errorf("critical alert must carry priority 1, got %+v", fired[0])
	}

	// Re-evaluated every cycle within the cooldown: suppressed each time.
	suppressions := 0
	engine.SetSuppressCallback(func(AlertRule, string) { suppressions++ })
	for i := 0; i < 10; i++ {
		current = current.Add(time.Minute)
		if fired := engine.Evaluate(errObservation(0.4)); len(fired) != 0 {
			t.Fatal("re-fire inside cooldown must be suppressed")
		}
	}
	if suppressions != 10 {
		t.Errorf("expected 10 suppressed re-fires, got %d", suppressions)
	}

	// Past the cooldown the still-held streak fires again immediately.
	current = current.Add(25 * time.Minute)
	if fired := engine.Evaluate(errObservation(0.4)); len(fired) != 1 {
		t.Error("expected re-fire once the cooldown elapsed")
	}
}

func TestAlertStreakResetsWhenConditionClears(t *testing.T) {
	engine := NewAlertRuleEngine([]AlertRule{errorRateRule()})

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return current }

	engine.Evaluate(errObservation(0.4))
	current = current.Add(200 * time.Second)

	// A transient recovery wipes the streak.
	engine.Evaluate(errObservation(0.1))

	current = current.Add(200 * time.Second)
	if fired := engine.Evaluate(errObservation(0.4)); len(fired) != 0 {
		t.Error("streak must restart after the condition cleared")
	}
}

func TestAlertZeroDurationFiresImmediately(t *testing.T) {
	rule := AlertRule{
		ID:              "stale-data",
		Enabled:         true,
		MetricType:      MetricStaleness,
		Condition:       ConditionAbove,
		Threshold:       48,
		DurationSeconds: 0,
		Level:           AlertLevelWarning,
		CooldownMinutes: 120,
	}
	engine := NewAlertRuleEngine([]AlertRule{rule})

	fired := engine.Evaluate([]MetricObservation{{SourceID: "src-1", MetricType: MetricStaleness, Value: 72}})
	if len(fired) != 1 {
		t.Fatalf("no-debounce rule must fire on first evaluation, got %d", len(fired))
	}
	if fired[0].Level != AlertLevelWarning || fired[0].Priority != 2 {
		t.Errorf("warning alert must carry priority 2, got %+v", fired[0])
	}
}

func TestAlertDisabledRuleNeverFires(t *testing.T) {
	rule := errorRateRule()
	rule.Enabled = false
	rule.DurationSeconds = 0
	engine := NewAlertRuleEngine([]AlertRule{rule})

	if fired := engine.Evaluate(errObservation(0.9)); len(fired) != 0 {
		t.Error("disabled rule fired")
	}
}

func TestAlertRuleSourceScoping(t *testing.T) {
	rule := errorRateRule()
	rule.DurationSeconds = 0
	rule.SourceIDs = []string{"src-2"}
	engine := NewAlertRuleEngine([]AlertRule{rule})

	if fired := engine.Evaluate(errObservation(0.9)); len(fired) != 0 {
		t.Error("rule scoped to src-2 fired for src-1")
	}
}

func TestUpdateRulesRejectsInvalidBatchWholesale(t *testing.T) {
	engine := NewAlertRuleEngine(DefaultAlertRules())

	bad := []AlertRule{
		{ID: "ok", Enabled: true, MetricType: MetricErrorRate, Condition: ConditionAbove, Threshold: 0.5, Level: AlertLevelWarning, CooldownMinutes: 10},
		{ID: "broken", Enabled: true, MetricType: MetricType("made-up"), Condition: ConditionAbove, Threshold: 1, Level: AlertLevelInfo, CooldownMinutes: 10},
	}
	if err := engine.UpdateRules(bad); err == nil {
		t.Fatal("expected rejection for unknown metric type")
	}
	if len(engine.Rules()) != len(DefaultAlertRules()) {
		t.Error("prior rule set must stay active after a rejected update")
	}

	noCooldown := []AlertRule{
		{ID: "ok", Enabled: true, MetricType: MetricErrorRate, Condition: ConditionAbove, Threshold: 0.5, Level: AlertLevelWarning, CooldownMinutes: 0},
	}
	if err := engine.UpdateRules(noCooldown); err == nil {
		t.Fatal("expected rejection for non-positive cooldown")
	}

	good := []AlertRule{
		{ID: "only-rule", Enabled: true, MetricType: MetricResponseTime, Condition: ConditionAbove, Threshold: 2000, Level: AlertLevelWarning, CooldownMinutes: 15},
	}
	if err := engine.UpdateRules(good); err != nil {
		t.Fatalf("valid update rejected: %v", err)
	}
	rules := engine.Rules()
	if len(rules) != 1 || rules[0].ID != "only-rule" {
		t.Errorf("rule set not replaced atomically: %+v", rules)
	}
}

func TestUpdateRulesCarriesCooldownForward(t *testing.T) {
	rule := errorRateRule()
	rule.DurationSeconds = 0
	engine := NewAlertRuleEngine([]AlertRule{rule})

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return current }

	if fired := engine.Evaluate(errObservation(0.9)); len(fired) != 1 {
		t.Fatal("expected initial fire")
	}

	// Re-pushing the same config must not reset the cooldown.
	if err := engine.UpdateRules([]AlertRule{rule}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	current = current.Add(time.Minute)
	if fired := engine.Evaluate(errObservation(0.9)); len(fired) != 0 {
		t.Error("config push reset the cooldown")
	}
}

func TestAcknowledgeAndResolveAlert(t *testing.T) {
	rule := errorRateRule()
	rule.DurationSeconds = 0
	engine := NewAlertRuleEngine([]AlertRule{rule})

	fired := engine.Evaluate(errObservation(0.9))
	if len(fired) != 1 {
		t.Fatal("expected one alert")
	}
	id := fired[0].ID

	if err := engine.Acknowledge(id, "oncall@example.com"); err != nil {
		t.Fatalf("acknowledge failed: %v", err)
	}
	if err := engine.Acknowledge(id, "someone-else"); err == nil {
		t.Error("double acknowledge must fail")
	}

	alerts := engine.List(AlertFilter{Unresolved: true})
	if len(alerts) != 1 || alerts[0].AcknowledgedBy != "oncall@example.com" {
		t.Errorf("acknowledged alert not listed correctly: %+v", alerts)
	}

	if err := engine.Resolve(id); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if err := engine.Resolve(id); err == nil {
		t.Error("double resolve must fail")
	}
	if alerts := engine.List(AlertFilter{Unresolved: true}); len(alerts) != 0 {
		t.Errorf("resolved alert still listed as unresolved: %+v", alerts)
	}

	if err := engine.Resolve("no-such-alert"); err == nil {
		t.Error("resolving an unknown alert must fail")
	}
}

func TestAlertListFilterAndOrdering(t *testing.T) {
	warn := AlertRule{ID: "w", Enabled: true, MetricType: MetricResponseTime, Condition: ConditionAbove, Threshold: 100, Level: AlertLevelWarning, CooldownMinutes: 10}
	crit := AlertRule{ID: "c", Enabled: true, MetricType: MetricErrorRate, Condition: ConditionAbove, Threshold: 0.1, Level: AlertLevelCritical, CooldownMinutes: 10}
	engine := NewAlertRuleEngine([]AlertRule{warn, crit})

	engine.Evaluate([]MetricObservation{
		{SourceID: "src-1", MetricType: MetricResponseTime, Value: 500},
		{SourceID: "src-2", MetricType: MetricErrorRate, Value: 0.5},
	})

	all := engine.List(AlertFilter{})
	if len(all) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(all))
	}
	if all[0].Level != AlertLevelCritical {
		t.Error("critical alerts must sort first")
	}

	criticals := engine.List(AlertFilter{Level: AlertLevelCritical})
	if len(criticals) != 1 || criticals[0].SourceID != "src-2" {
		t.Errorf("level filter wrong: %+v", criticals)
	}

	bySource := engine.List(AlertFilter{SourceID: "src-1"})
	if len(bySource) != 1 || bySource[0].Level != AlertLevelWarning {
		t.Errorf("source filter wrong: %+v", bySource)
	}

	counts := engine.Counts()
	if counts.Critical != 1 || counts.Warning != 1 || counts.Info != 0 {
		t.Errorf("counts wrong: %+v", counts)
	}

	if !engine.HasUnresolved("src-2", AlertLevelCritical) {
		t.Error("expected unresolved critical for src-2")
	}
	if engine.HasUnresolved("src-1", AlertLevelCritical) {
		t.Error("src-1 has no critical alert")
	}
}
