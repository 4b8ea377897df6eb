package monitor

import (
	"time"
)

// stalenessBounds holds the recent/stale upper bounds in hours for a cadence.
// Ages past the stale bound classify as very-stale.
type stalenessBounds struct {
	recent float64
	stale  float64
	very   float64
}

var frequencyBounds = map[ExpectedFrequency]stalenessBounds{
	FrequencyHourly:  {recent: 2, stale: 12, very: 48},
	FrequencyDaily:   {recent: 36, stale: 72, very: 168},
	FrequencyWeekly:  {recent: 240, stale: 504, very: 1008},
	FrequencyMonthly: {recent: 1080, stale: 2160, very: 4320},
}

// expectedInterval returns the nominal update interval for a cadence, used to
// project the next expected data point.
func expectedInterval(freq ExpectedFrequency) time.Duration {
	switch freq {
	case FrequencyHourly:
		return time.Hour
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// ClassifyStaleness buckets the age of a data point against its expected
// cadence. Pure function: no state, no side effects. Unknown frequencies fall
// back to the daily bounds.
func ClassifyStaleness(lastDataPoint time.Time, freq ExpectedFrequency, now time.Time) (Staleness, float64) {
	hoursStale := now.Sub(lastDataPoint).Hours()
	if hoursStale < 0 {
		hoursStale = 0
	}

	bounds, ok := frequencyBounds[freq]
	if !ok {
		bounds = frequencyBounds[FrequencyDaily]
	}

	switch {
	case hoursStale <= bounds.recent:
		return StalenessRecent, hoursStale
	case hoursStale <= bounds.stale:
		return StalenessStale, hoursStale
	default:
		return StalenessVeryStale, hoursStale
	}
}

// FreshnessStatus derives the full freshness snapshot for a source item.
func FreshnessStatus(sourceID, itemID string, lastDataPoint time.Time, freq ExpectedFrequency, now time.Time) DataFreshnessStatus {
	staleness, hoursStale := ClassifyStaleness(lastDataPoint, freq, now)
	return DataFreshnessStatus{
		SourceID:           sourceID,
		ItemID:             itemID,
		LastDataPoint:      lastDataPoint,
		ExpectedFrequency:  freq,
		Staleness:          staleness,
		HoursStale:         hoursStale,
		NextExpectedUpdate: lastDataPoint.Add(expectedInterval(freq)),
	}
}
