package scheduler

import (
	"context"
	"fmt"
	"testing"

	"connwatch/internal/logger"
)

func TestAddJobRejectsDuplicatesAndBadSchedules(t *testing.T) {
	s := New(logger.NewNop())

	handler := func(ctx context.Context) error { return nil }

	if err := s.AddJob("cleanup", "@hourly", handler); err != nil {
		t.Fatalf("add job: %v", err)
	}
	if err := s.AddJob("cleanup", "@hourly", handler); err == nil {
		t.Error("expected duplicate job rejection")
	}
	if err := s.AddJob("broken", "not a schedule", handler); err == nil {
		t.Error("expected invalid schedule rejection")
	}

	jobs := s.Jobs()
	if len(jobs) != 1 || jobs[0].Status != JobStatusPending {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestRunJobTracksStatus(t *testing.T) {
	s := New(logger.NewNop())

	okJob := &Job{Name: "ok"}
	s.runJob(okJob, func(ctx context.Context) error { return nil })
	if okJob.Status != JobStatusCompleted {
		t.Errorf("status = %s, want completed", okJob.Status)
	}

	failJob := &Job{Name: "fail"}
	s.runJob(failJob, func(ctx context.Context) error { return fmt.Errorf("boom") })
	if failJob.Status != JobStatusFailed || failJob.Error != "boom" {
		t.Errorf("job = %+v", failJob)
	}
}
