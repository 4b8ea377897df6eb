package monitor

import (
	"sync"
	"time"
)

// BreakerConfig holds circuit breaker tuning.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the circuit.
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold"`
	// HalfOpenQuota is the number of probe successes needed to close from half-open.
	HalfOpenQuota int `yaml:"half_open_quota" json:"half_open_quota"`
	// BaseBackoff is the initial open interval before the first probe.
	BaseBackoff time.Duration `yaml:"base_backoff" json:"base_backoff"`
	// MaxBackoff caps the exponential backoff between probe rounds.
	MaxBackoff time.Duration `yaml:"max_backoff" json:"max_backoff"`
}

// DefaultBreakerConfig returns the shipped breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		HalfOpenQuota:    2,
		BaseBackoff:      30 * time.Second,
		MaxBackoff:       15 * time.Minute,
	}
}

type breakerEntry struct {
	state       CircuitBreakerState
	openStreak  int  // consecutive open rounds, drives backoff growth
	probePermit bool // single permit while half-open
}

// BreakerController tracks one circuit breaker per connector and gates call
// attempts based on recorded outcomes.
type BreakerController struct {
	config   BreakerConfig
	breakers map[string]*breakerEntry
	onChange func(connectorID string, from, to BreakerState)
	now      func() time.Time
	mu       sync.RWMutex
}

// NewBreakerController creates a breaker controller.
func NewBreakerController(config BreakerConfig) *BreakerController {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if config.HalfOpenQuota <= 0 {
		config.HalfOpenQuota = DefaultBreakerConfig().HalfOpenQuota
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = DefaultBreakerConfig().BaseBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = DefaultBreakerConfig().MaxBackoff
	}

	return &BreakerController{
		config:   config,
		breakers: make(map[string]*breakerEntry),
		now:      time.Now,
	}
}

// SetTransitionCallback registers a callback invoked on every state change.
func (bc *BreakerController) SetTransitionCallback(fn func(connectorID string, from, to BreakerState)) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.onChange = fn
}

// Register initializes a breaker for a connector with an optional per-connector
// threshold. Registering an existing connector is a no-op.
func (bc *BreakerController) Register(connectorID string, threshold int) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if _, exists := bc.breakers[connectorID]; exists {
		return
	}
	if threshold <= 0 {
		threshold = bc.config.FailureThreshold
	}
	bc.breakers[connectorID] = &breakerEntry{
		state: CircuitBreakerState{
			ConnectorID: connectorID,
			Status:      BreakerClosed,
			Threshold:   threshold,
		},
	}
}

// RecordOutcome feeds a call result into the breaker and applies transitions.
func (bc *BreakerController) RecordOutcome(connectorID string, success bool, at time.Time) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	entry := bc.entry(connectorID)
	if at.IsZero() {
		at = bc.now()
	}

	if success {
		bc.onSuccess(entry, at)
	} else {
		bc.onFailure(entry, at)
	}
}

// CanAttempt reports whether a call may be attempted. While half-open it
// consumes the single probe permit, so only one caller gets through per round.
func (bc *BreakerController) CanAttempt(connectorID string) bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	entry := bc.entry(connectorID)
	now := bc.now()

	switch entry.state.Status {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if entry.state.NextRetryAt != nil && !now.Before(*entry.state.NextRetryAt) {
			bc.transition(entry, BreakerHalfOpen, now)
			entry.probePermit = false // this caller takes the first probe
			return true
		}
		return false
	case BreakerHalfOpen:
		if entry.probePermit {
			entry.probePermit = false
			return true
		}
		return false
	default:
		return false
	}
}

// State returns a copy of the breaker state for a connector.
func (bc *BreakerController) State(connectorID string) CircuitBreakerState {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.entry(connectorID).state
}

// States returns a copy of all breaker states keyed by connector.
func (bc *BreakerController) States() map[string]CircuitBreakerState {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	out := make(map[string]CircuitBreakerState, len(bc.breakers))
	for id, entry := range bc.breakers {
		out[id] = entry.state
	}
	return out
}

// entry returns the breaker for a connector, creating a closed one on first use.
// Callers must hold the lock.
func (bc *BreakerController) entry(connectorID string) *breakerEntry {
	entry, exists := bc.breakers[connectorID]
	if !exists {
		entry = &breakerEntry{
			state: CircuitBreakerState{
				ConnectorID: connectorID,
				Status:      BreakerClosed,
				Threshold:   bc.config.FailureThreshold,
			},
		}
		bc.breakers[connectorID] = entry
	}
	return entry
}

func (bc *BreakerController) onFailure(entry *breakerEntry, at time.Time) {
	switch entry.state.Status {
	case BreakerClosed:
		entry.state.FailureCount++
		if entry.state.FailureCount >= entry.state.Threshold {
			bc.open(entry, at)
		}
	case BreakerHalfOpen:
		// Any failure while probing reopens with a longer backoff.
		entry.state.HalfOpenFailures++
		bc.open(entry, at)
	case BreakerOpen:
		entry.state.FailureCount++
	}
}

func (bc *BreakerController) onSuccess(entry *breakerEntry, at time.Time) {
	switch entry.state.Status {
	case BreakerClosed:
		entry.state.FailureCount = 0
	case BreakerHalfOpen:
		entry.state.HalfOpenSuccesses++
		if entry.state.HalfOpenSuccesses >= bc.config.HalfOpenQuota {
			bc.close(entry, at)
		} else {
			entry.probePermit = true
		}
	case BreakerOpen:
		// Late success from an in-flight call; the breaker stays open until
		// the probe cycle proves recovery.
	}
}

func (bc *BreakerController) open(entry *breakerEntry, at time.Time) {
	entry.openStreak++

	backoff := bc.config.BaseBackoff
	for i := 1; i < entry.openStreak; i++ {
		backoff *= 2
		if backoff >= bc.config.MaxBackoff {
			backoff = bc.config.MaxBackoff
			break
		}
	}

	opened := at
	retry := at.Add(backoff)
	entry.state.OpenedAt = &opened
	entry.state.NextRetryAt = &retry
	entry.state.HalfOpenSuccesses = 0
	entry.state.HalfOpenFailures = 0
	entry.probePermit = false
	bc.transition(entry, BreakerOpen, at)
}

func (bc *BreakerController) close(entry *breakerEntry, at time.Time) {
	entry.state.FailureCount = 0
	entry.state.OpenedAt = nil
	entry.state.NextRetryAt = nil
	entry.state.HalfOpenSuccesses = 0
	entry.state.HalfOpenFailures = 0
	entry.openStreak = 0
	entry.probePermit = false
	bc.transition(entry, BreakerClosed, at)
}

func (bc *BreakerController) transition(entry *breakerEntry, to BreakerState, at time.Time) {
	from := entry.state.Status
	if from == to {
		return
	}
	entry.state.Status = to
	if bc.onChange != nil {
		bc.onChange(entry.state.ConnectorID, from, to)
	}
}
