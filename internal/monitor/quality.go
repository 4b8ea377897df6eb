package monitor

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// ScoreWeights holds the composite score weighting. The shipped values are
// product-tuned defaults, not fixed truths; operators may override them in
// configuration.
type ScoreWeights struct {
	Availability   float64 `yaml:"availability" json:"availability"`
	Performance    float64 `yaml:"performance" json:"performance"`
	Freshness      float64 `yaml:"freshness" json:"freshness"`
	Quality        float64 `yaml:"quality" json:"quality"`
	ErrorPenalty   float64 `yaml:"error_penalty" json:"error_penalty"`
	WarningPenalty float64 `yaml:"warning_penalty" json:"warning_penalty"`
	// TrendDeadBand is the overall-score delta below which the trend is
	// considered stable.
	TrendDeadBand float64 `yaml:"trend_dead_band" json:"trend_dead_band"`
}

// DefaultScoreWeights returns the shipped scoring defaults. Availability
// dominates because an unreachable source invalidates every other measure;
// performance weighs lowest because slow-but-correct data is still usable.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Availability:   0.35,
		Performance:    0.20,
		Freshness:      0.25,
		Quality:        0.20,
		ErrorPenalty:   5,
		WarningPenalty: 2,
		TrendDeadBand:  3,
	}
}

// ScoreInput carries the measured values the scorer composes.
type ScoreInput struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	AvgResponseTimeMs  float64 `json:"avg_response_time_ms"`
	DataPointsCurrent  int     `json:"data_points_current"`
	DataPointsTotal    int     `json:"data_points_total"`
	ErrorFlags         int     `json:"error_flags"`
	WarningFlags       int     `json:"warning_flags"`
}

// ScoreBreakdown is the composite score with its sub-scores.
type ScoreBreakdown struct {
	Availability float64 `json:"availability"`
	Performance  float64 `json:"performance"`
	Freshness    float64 `json:"freshness"`
	Quality      float64 `json:"quality"`
	Overall      int     `json:"overall"`
}

// Score composes the weighted 0-100 quality score from raw measurements.
func Score(input ScoreInput, weights ScoreWeights) ScoreBreakdown {
	var availability float64
	if input.TotalRequests > 0 {
		availability = float64(input.SuccessfulRequests) / float64(input.TotalRequests) * 100
	}

	// Linear decay: a 10s average response time floors performance at 0.
	performance := math.Max(0, 100-input.AvgResponseTimeMs/100)

	var freshness float64
	if input.DataPointsTotal > 0 {
		freshness = float64(input.DataPointsCurrent) / float64(input.DataPointsTotal) * 100
	}

	penalty := float64(input.ErrorFlags)*weights.ErrorPenalty + float64(input.WarningFlags)*weights.WarningPenalty
	quality := math.Max(0, 100-penalty)

	overall := weights.Availability*availability +
		weights.Performance*performance +
		weights.Freshness*freshness +
		weights.Quality*quality

	return ScoreBreakdown{
		Availability: availability,
		Performance:  performance,
		Freshness:    freshness,
		Quality:      quality,
		Overall:      int(math.Round(overall)),
	}
}

// TrendFromDelta compares the current overall score against the previous
// period's. No statistical test is applied: a raw delta beyond the dead-band
// decides direction.
func TrendFromDelta(current, previous int, deadBand float64) TrendDirection {
	delta := float64(current - previous)
	switch {
	case delta > deadBand:
		return TrendImproving
	case delta < -deadBand:
		return TrendDegrading
	default:
		return TrendStable
	}
}

// QualityScorer computes per-source scorecards and tracks the previous overall
// score per (source, period) for trend direction.
type QualityScorer struct {
	weights   ScoreWeights
	previous  map[string]int // sourceID|period → previous overall
	cards     map[string]QualityScorecard
	now       func() time.Time
	mu        sync.RWMutex
}

// NewQualityScorer creates a quality scorer.
func NewQualityScorer(weights ScoreWeights) *QualityScorer {
	if weights.Availability+weights.Performance+weights.Freshness+weights.Quality == 0 {
		weights = DefaultScoreWeights()
	}
	return &QualityScorer{
		weights:  weights,
		previous: make(map[string]int),
		cards:    make(map[string]QualityScorecard),
		now:      time.Now,
	}
}

// Weights returns the active scoring weights.
func (qs *QualityScorer) Weights() ScoreWeights {
	return qs.weights
}

// Recompute builds and stores a fresh scorecard for a source and period. The
// stored card is always replaced wholesale.
func (qs *QualityScorer) Recompute(sourceID string, period ScorecardPeriod, input ScoreInput) QualityScorecard {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	breakdown := Score(input, qs.weights)
	key := sourceID + "|" + string(period)

	trend := TrendStable
	if prev, exists := qs.previous[key]; exists {
		trend = TrendFromDelta(breakdown.Overall, prev, qs.weights.TrendDeadBand)
	}
	qs.previous[key] = breakdown.Overall

	card := QualityScorecard{
		SourceID:        sourceID,
		Period:          period,
		GeneratedAt:     qs.now(),
		Availability:    breakdown.Availability,
		Performance:     breakdown.Performance,
		Freshness:       breakdown.Freshness,
		Quality:         breakdown.Quality,
		Overall:         breakdown.Overall,
		Trend:           trend,
		ErrorFlags:      input.ErrorFlags,
		WarningFlags:    input.WarningFlags,
		Recommendations: recommendations(breakdown, input),
	}
	qs.cards[key] = card
	return card
}

// Scorecard returns the last computed card for a source and period.
func (qs *QualityScorer) Scorecard(sourceID string, period ScorecardPeriod) (QualityScorecard, bool) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	card, exists := qs.cards[sourceID+"|"+string(period)]
	return card, exists
}

// Scorecards returns every stored card.
func (qs *QualityScorer) Scorecards() []QualityScorecard {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	out := make([]QualityScorecard, 0, len(qs.cards))
	for _, card := range qs.cards {
		out = append(out, card)
	}
	return out
}

// recommendations derives operator-facing action hints from weak sub-scores.
func recommendations(breakdown ScoreBreakdown, input ScoreInput) []string {
	var recs []string

	if breakdown.Availability < 95 {
		recs = append(recs, fmt.Sprintf("availability at %.1f%%: review recent call failures and circuit breaker history", breakdown.Availability))
	}
	if breakdown.Performance < 50 {
		recs = append(recs, fmt.Sprintf("average response time %.0fms: consider reducing request payloads or raising cache TTLs", input.AvgResponseTimeMs))
	}
	if breakdown.Freshness < 90 && input.DataPointsTotal > 0 {
		recs = append(recs, fmt.Sprintf("%d of %d tracked items are stale: verify the source is still publishing on its expected cadence", input.DataPointsTotal-input.DataPointsCurrent, input.DataPointsTotal))
	}
	if input.ErrorFlags > 0 {
		recs = append(recs, fmt.Sprintf("%d error flags in the period: inspect the quality metric log for failing checks", input.ErrorFlags))
	}

	return recs
}
