package monitor

import (
	"math"
	"testing"
	"time"
)

func TestClassifyStaleness(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		ageHours   float64
		freq       ExpectedFrequency
		want       Staleness
	}{
		{"hourly fresh", 1, FrequencyHourly, StalenessRecent},
		{"hourly at recent bound", 2, FrequencyHourly, StalenessRecent},
		{"hourly stale", 6, FrequencyHourly, StalenessStale},
		{"hourly very stale", 49, FrequencyHourly, StalenessVeryStale},
		{"daily fresh", 20, FrequencyDaily, StalenessRecent},
		{"daily stale", 50, FrequencyDaily, StalenessStale},
		{"daily beyond largest bound", 200, FrequencyDaily, StalenessVeryStale},
		{"weekly fresh", 100, FrequencyWeekly, StalenessRecent},
		{"weekly stale", 300, FrequencyWeekly, StalenessStale},
		{"weekly very stale", 1100, FrequencyWeekly, StalenessVeryStale},
		{"monthly fresh", 1000, FrequencyMonthly, StalenessRecent},
		{"monthly stale", 2000, FrequencyMonthly, StalenessStale},
		{"monthly very stale", 5000, FrequencyMonthly, StalenessVeryStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			last := now.Add(-time.Duration(tt.ageHours * float64(time.Hour)))
			got, hours := ClassifyStaleness(last, tt.freq, now)
			if got != tt.want {
				t.Errorf("ClassifyStaleness(%v, %s) = %s, want %s", tt.ageHours, tt.freq, got, tt.want)
			}
			if math.Abs(hours-tt.ageHours) > 0.01 {
				t.Errorf("hoursStale = %.2f, want %.2f", hours, tt.ageHours)
			}
		})
	}
}

func TestClassifyStalenessDaily200h(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	last := now.Add(-200 * time.Hour)

	staleness, hours := ClassifyStaleness(last, FrequencyDaily, now)
	if staleness != StalenessVeryStale {
		t.Errorf("200h old daily data = %s, want %s", staleness, StalenessVeryStale)
	}
	if math.Abs(hours-200) > 0.01 {
		t.Errorf("hoursStale = %.2f, want 200", hours)
	}
}

func TestClassifyStalenessFutureDataPoint(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Remote clock skew can put the data point slightly in the future.
	staleness, hours := ClassifyStaleness(now.Add(time.Minute), FrequencyHourly, now)
	if staleness != StalenessRecent {
		t.Errorf("future data point = %s, want %s", staleness, StalenessRecent)
	}
	if hours != 0 {
		t.Errorf("hoursStale = %.2f, want 0", hours)
	}
}

func TestFreshnessStatus(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-40 * time.Hour)

	status := FreshnessStatus("src-1", "item-9", last, FrequencyDaily, now)
	if status.Staleness != StalenessStale {
		t.Errorf("staleness = %s, want %s", status.Staleness, StalenessStale)
	}
	if !status.NextExpectedUpdate.Equal(last.Add(24 * time.Hour)) {
		t.Errorf("next expected update = %v, want %v", status.NextExpectedUpdate, last.Add(24*time.Hour))
	}
	if status.SourceID != "src-1" || status.ItemID != "item-9" {
		t.Errorf("identity not carried through: %+v", status)
	}
}

func TestClassifyStalenessUnknownFrequencyFallsBackToDaily(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	staleness, _ := ClassifyStaleness(now.Add(-50*time.Hour), ExpectedFrequency("fortnightly"), now)
	if staleness != StalenessStale {
		t.Errorf("unknown frequency should use daily bounds, got %s", staleness)
	}
}
