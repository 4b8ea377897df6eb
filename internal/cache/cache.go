package cache

import (
	"context"
	"time"

	"connwatch/internal/monitor"
)

// Cacher stores JSON-encoded snapshots under string keys. Implementations are
// safe for concurrent use.
type Cacher interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	HealthCheck(ctx context.Context) error
}

// Snapshot keys used by the API layer.
const (
	KeySummary = "connwatch:summary"

	scorecardPrefix = "connwatch:scorecard:"
)

// ScorecardKey builds the cache key for a source's scorecard in one period.
func ScorecardKey(sourceID string, period monitor.ScorecardPeriod) string {
	return scorecardPrefix + sourceID + ":" + string(period)
}

// Config selects and tunes the cache backend.
type Config struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewCacher creates a cache from configuration. With Redis disabled the
// in-memory cache serves alone; with Redis enabled the fallback wrapper
// degrades to memory when Redis is unreachable.
func NewCacher(cfg *Config) (Cacher, error) {
	memory := NewMemoryCache(0)
	if cfg == nil || !cfg.Enabled {
		return memory, nil
	}

	redis, err := NewRedisCache(cfg)
	if err != nil {
		return nil, err
	}
	return NewFallbackCache(redis, memory), nil
}
