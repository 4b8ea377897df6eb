package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"connwatch/internal/logger"
)

// JobStatus represents the last observed state of a scheduled job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is one scheduled maintenance job.
type Job struct {
	Name        string
	Schedule    string
	LastRunTime time.Time
	Status      JobStatus
	Error       string
}

// HandlerFunc is the work a job performs.
type HandlerFunc func(ctx context.Context) error

// Scheduler runs periodic maintenance jobs (scorecard refresh, retention
// cleanup) on cron schedules.
type Scheduler struct {
	cron *cron.Cron
	jobs map[string]*Job
	log  logger.Logger
	mu   sync.RWMutex
}

// New creates a scheduler.
func New(log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		cron: cron.New(),
		jobs: make(map[string]*Job),
		log:  log,
	}
}

// AddJob registers a named job on a cron schedule.
func (s *Scheduler) AddJob(name, schedule string, handler HandlerFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job already registered: %s", name)
	}

	job := &Job{
		Name:     name,
		Schedule: schedule,
		Status:   JobStatusPending,
	}

	_, err := s.cron.AddFunc(schedule, func() {
		s.runJob(job, handler)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job %s: %w", name, err)
	}

	s.jobs[name] = job
	return nil
}

// Start begins executing schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

// Jobs returns a snapshot of all registered jobs.
func (s *Scheduler) Jobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	return out
}

func (s *Scheduler) runJob(job *Job, handler HandlerFunc) {
	s.mu.Lock()
	job.Status = JobStatusRunning
	job.LastRunTime = time.Now()
	s.mu.Unlock()

	err := handler(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
		s.log.Error("scheduled job failed", "job", job.Name, "error", err.Error())
		return
	}
	job.Status = JobStatusCompleted
	job.Error = ""
	s.log.Debug("scheduled job completed", "job", job.Name)
}
