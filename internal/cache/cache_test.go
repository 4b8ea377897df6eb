package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"connwatch/internal/monitor"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	mc := NewMemoryCache(10)
	ctx := context.Background()

	summary := monitor.SystemHealthSummary{TotalConnectors: 3, HealthyCount: 2}
	if err := mc.Set(ctx, KeySummary, summary, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got monitor.SystemHealthSummary
	if err := mc.Get(ctx, KeySummary, &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalConnectors != 3 || got.HealthyCount != 2 {
		t.Errorf("round trip lost data: %+v", got)
	}

	exists, err := mc.Exists(ctx, KeySummary)
	if err != nil || !exists {
		t.Errorf("exists = %v, %v", exists, err)
	}
}

func TestMemoryCacheExpiration(t *testing.T) {
	mc := NewMemoryCache(10)
	ctx := context.Background()

	if err := mc.Set(ctx, "k", "v", time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	var dest string
	if err := mc.Get(ctx, "k", &dest); err == nil {
		t.Error("expected expired key error")
	}
	if exists, _ := mc.Exists(ctx, "k"); exists {
		t.Error("expired key reported as existing")
	}
}

func TestMemoryCacheEvictsLRU(t *testing.T) {
	mc := NewMemoryCache(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := mc.Set(ctx, fmt.Sprintf("k%d", i), i, time.Minute); err != nil {
			t.Fatalf("set: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	// Touch k0 so k1 becomes the eviction candidate.
	var v int
	if err := mc.Get(ctx, "k0", &v); err != nil {
		t.Fatalf("get: %v", err)
	}
	time.Sleep(time.Millisecond)

	if err := mc.Set(ctx, "k3", 3, time.Minute); err != nil {
		t.Fatalf("set over capacity: %v", err)
	}
	if mc.Len() != 3 {
		t.Errorf("len = %d, want 3 after eviction", mc.Len())
	}
	if err := mc.Get(ctx, "k1", &v); err == nil {
		t.Error("expected k1 to be evicted")
	}
	if err := mc.Get(ctx, "k0", &v); err != nil {
		t.Error("recently accessed k0 must survive eviction")
	}
}

func TestScorecardKey(t *testing.T) {
	key := ScorecardKey("src-1", monitor.Period7d)
	if key != "connwatch:scorecard:src-1:7d" {
		t.Errorf("key = %q", key)
	}
}

// flakyCache fails every operation until healed.
type flakyCache struct {
	healthy bool
}

func (f *flakyCache) err() error {
	if f.healthy {
		return nil
	}
	return fmt.Errorf("backend down")
}

func (f *flakyCache) Get(ctx context.Context, key string, dest interface{}) error { return f.err() }
func (f *flakyCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return f.err()
}
func (f *flakyCache) Delete(ctx context.Context, key string) error { return f.err() }
func (f *flakyCache) Exists(ctx context.Context, key string) (bool, error) {
	return false, f.err()
}
func (f *flakyCache) HealthCheck(ctx context.Context) error { return f.err() }

func TestFallbackCacheDegradesAndRecovers(t *testing.T) {
	flaky := &flakyCache{healthy: false}
	memory := NewMemoryCache(10)
	fc := NewFallbackCache(flaky, memory)
	ctx := context.Background()

	// Writes land in memory even while the primary is down.
	if err := fc.Set(ctx, "k", "v", time.Minute); err == nil {
		t.Error("expected primary write error while not degraded")
	}

	for i := 0; i < 3; i++ {
		_ = fc.HealthCheck(ctx)
	}
	if !fc.Degraded() {
		t.Fatal("expected degraded mode after consecutive failures")
	}

	// Degraded reads come from memory.
	var got string
	if err := fc.Get(ctx, "k", &got); err != nil || got != "v" {
		t.Errorf("degraded read = %q, %v", got, err)
	}

	// Consecutive healthy probes restore the primary.
	flaky.healthy = true
	for i := 0; i < 2; i++ {
		if err := fc.HealthCheck(ctx); err != nil {
			t.Fatalf("health check: %v", err)
		}
	}
	if fc.Degraded() {
		t.Error("expected recovery after healthy probes")
	}
}
