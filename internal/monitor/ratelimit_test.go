package monitor

import (
	"testing"
	"time"
)

func testIdentity() ConnectorIdentity {
	return ConnectorIdentity{ConnectorID: "conn-1", SourceID: "src-1", Name: "Test Connector"}
}

func TestRateLimitThrottleAndQueue(t *testing.T) {
	rt := NewRateLimitTracker()
	rt.Register(testIdentity(), map[RateWindow]int{WindowMinute: 3})

	current := time.Date(2025, 6, 1, 12, 0, 10, 0, time.UTC)
	rt.now = func() time.Time { return current }

	for i := 0; i < 2; i++ {
		if throttled := rt.RecordCall("conn-1", current); throttled {
			t.Fatalf("call %d should not be throttled", i+1)
		}
	}

	status, ok := rt.Status("conn-1", WindowMinute)
	if !ok {
		t.Fatal("expected minute bucket")
	}
	if status.Throttled {
		t.Error("not throttled below the limit")
	}

	// Third call hits the limit exactly: throttled from now on, not queued yet.
	if throttled := rt.RecordCall("conn-1", current); throttled {
		t.Error("the call that reaches the limit is still sent, not queued")
	}
	status, _ = rt.Status("conn-1", WindowMinute)
	if !status.Throttled {
		t.Error("expected throttled at the limit")
	}
	if status.QueuedRequests != 0 {
		t.Errorf("expected empty queue at the limit, got %d", status.QueuedRequests)
	}

	// Past the limit: calls queue instead of being rejected.
	for i := 0; i < 2; i++ {
		if throttled := rt.RecordCall("conn-1", current); !throttled {
			t.Errorf("overflow call %d should be queued", i+1)
		}
	}
	status, _ = rt.Status("conn-1", WindowMinute)
	if status.QueuedRequests != 2 {
		t.Errorf("expected 2 queued requests, got %d", status.QueuedRequests)
	}
	if status.Current != 5 {
		t.Errorf("expected current to keep counting past the limit, got %d", status.Current)
	}
	if status.PercentUsed <= 100 {
		t.Errorf("percent used past the limit must exceed 100, got %.1f", status.PercentUsed)
	}
	if DisplayPercent(status.PercentUsed) != 100 {
		t.Errorf("display percent must clamp to 100, got %.1f", DisplayPercent(status.PercentUsed))
	}
}

func TestRateLimitResetsExactlyAtWindowBoundary(t *testing.T) {
	rt := NewRateLimitTracker()
	rt.Register(testIdentity(), map[RateWindow]int{WindowMinute: 10})

	current := time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC)
	rt.now = func() time.Time { return current }

	rt.RecordCall("conn-1", current)
	rt.RecordCall("conn-1", current)

	status, _ := rt.Status("conn-1", WindowMinute)
	if status.Current != 2 {
		t.Fatalf("expected current 2, got %d", status.Current)
	}
	resetAt := status.ResetAt

	// One instant before the boundary: no reset.
	current = resetAt.Add(-time.Nanosecond)
	status, _ = rt.Status("conn-1", WindowMinute)
	if status.Current != 2 {
		t.Errorf("window must never reset mid-window, got current %d", status.Current)
	}

	// Exactly at the boundary: reset to zero.
	current = resetAt
	status, _ = rt.Status("conn-1", WindowMinute)
	if status.Current != 0 {
		t.Errorf("expected reset exactly at resetAt, got current %d", status.Current)
	}
	if status.Throttled {
		t.Error("throttle flag must clear on reset")
	}
	if !status.ResetAt.After(resetAt) {
		t.Error("resetAt must advance to the next window")
	}
}

func TestRateLimitQueueDrainsFIFOOnReset(t *testing.T) {
	rt := NewRateLimitTracker()
	rt.Register(testIdentity(), map[RateWindow]int{WindowMinute: 2})

	current := time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC)
	rt.now = func() time.Time { return current }

	// Fill the window and queue three more.
	for i := 0; i < 5; i++ {
		rt.RecordCall("conn-1", current)
	}
	status, _ := rt.Status("conn-1", WindowMinute)
	if status.QueuedRequests != 3 {
		t.Fatalf("expected 3 queued, got %d", status.QueuedRequests)
	}

	// Reset releases queued calls up to the refreshed limit, oldest first.
	current = status.ResetAt
	status, _ = rt.Status("conn-1", WindowMinute)
	if status.Current != 2 {
		t.Errorf("expected 2 released into the new window, got %d", status.Current)
	}
	if status.QueuedRequests != 1 {
		t.Errorf("expected 1 left queued, got %d", status.QueuedRequests)
	}
	if !status.Throttled {
		t.Error("window refilled by the queue is immediately throttled again")
	}
}

func TestRateLimitUnknownConnectorIsUntracked(t *testing.T) {
	rt := NewRateLimitTracker()

	if throttled := rt.RecordCall("nobody", time.Now()); throttled {
		t.Error("unregistered connectors carry no budget and are never throttled")
	}
	if statuses := rt.Statuses("nobody"); statuses != nil {
		t.Errorf("expected no statuses, got %v", statuses)
	}
}
