package cache

import (
	"context"
	"sync"
	"time"
)

// FallbackCache serves from a primary cache and degrades to the in-memory
// cache after consecutive primary failures. Writes always go to both so the
// memory copy stays warm for the degraded path.
type FallbackCache struct {
	primary Cacher
	memory  *MemoryCache

	failureThreshold  int
	recoveryThreshold int

	failures   int
	recoveries int
	degraded   bool
	mu         sync.Mutex
}

// NewFallbackCache wraps a primary cache with memory fallback.
func NewFallbackCache(primary Cacher, memory *MemoryCache) *FallbackCache {
	return &FallbackCache{
		primary:           primary,
		memory:            memory,
		failureThreshold:  3,
		recoveryThreshold: 2,
	}
}

// Degraded reports whether reads are currently served from memory.
func (fc *FallbackCache) Degraded() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.degraded
}

// Get reads from the primary, falling back to memory on failure.
func (fc *FallbackCache) Get(ctx context.Context, key string, dest interface{}) error {
	if !fc.Degraded() {
		if err := fc.primary.Get(ctx, key, dest); err == nil {
			fc.recordSuccess()
			return nil
		} else if exists, eerr := fc.primary.Exists(ctx, key); eerr == nil && !exists {
			// A clean miss is not a backend failure.
			fc.recordSuccess()
			return err
		}
		fc.recordFailure()
	}
	return fc.memory.Get(ctx, key, dest)
}

// Set writes to both caches; the primary error wins when not degraded.
func (fc *FallbackCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	memErr := fc.memory.Set(ctx, key, value, expiration)

	if err := fc.primary.Set(ctx, key, value, expiration); err != nil {
		fc.recordFailure()
		if fc.Degraded() {
			return memErr
		}
		return err
	}
	fc.recordSuccess()
	return memErr
}

// Delete removes the key from both caches.
func (fc *FallbackCache) Delete(ctx context.Context, key string) error {
	_ = fc.memory.Delete(ctx, key)
	if err := fc.primary.Delete(ctx, key); err != nil {
		fc.recordFailure()
		return err
	}
	fc.recordSuccess()
	return nil
}

// Exists checks the active backend.
func (fc *FallbackCache) Exists(ctx context.Context, key string) (bool, error) {
	if !fc.Degraded() {
		exists, err := fc.primary.Exists(ctx, key)
		if err == nil {
			fc.recordSuccess()
			return exists, nil
		}
		fc.recordFailure()
	}
	return fc.memory.Exists(ctx, key)
}

// HealthCheck probes the primary; degraded mode clears after enough
// consecutive healthy probes.
func (fc *FallbackCache) HealthCheck(ctx context.Context) error {
	err := fc.primary.HealthCheck(ctx)
	if err != nil {
		fc.recordFailure()
		return err
	}
	fc.recordSuccess()
	return nil
}

func (fc *FallbackCache) recordFailure() {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.recoveries = 0
	fc.failures++
	if !fc.degraded && fc.failures >= fc.failureThreshold {
		fc.degraded = true
	}
}

func (fc *FallbackCache) recordSuccess() {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.failures = 0
	if fc.degraded {
		fc.recoveries++
		if fc.recoveries >= fc.recoveryThreshold {
			fc.degraded = false
			fc.recoveries = 0
		}
	}
}
