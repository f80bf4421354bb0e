// Package scheduler drives the recurring maintenance jobs: preload
// retries while the service is cold and the nightly backtest sweep.
// Jobs come from configuration; each job type maps to a registered
// runner and fires on a standard cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Runner executes one job type.
type Runner func(ctx context.Context) error

// Job is one scheduled job as configured.
type Job struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"` // standard cron format: "*/5 * * * *"
	Type     string `json:"type"`
	Enabled  bool   `json:"enabled"`
}

// JobResult is the outcome of a single job execution.
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running      bool          `json:"running"`
	EnabledJobs  int           `json:"enabled_jobs"`
	DisabledJobs int           `json:"disabled_jobs"`
	NextRun      time.Time     `json:"next_run"`
	Uptime       time.Duration `json:"uptime"`
}

// JobStatus is the per-job view exposed by status reporting.
type JobStatus struct {
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Schedule string    `json:"schedule"`
	Enabled  bool      `json:"enabled"`
	Running  bool      `json:"running"`
	Runs     int       `json:"runs"`
	LastRun  time.Time `json:"last_run"`
	LastErr  string    `json:"last_error,omitempty"`
	NextRun  time.Time `json:"next_run"`
}

type jobEntry struct {
	job     Job
	cronID  cron.EntryID
	running bool
	runs    int
	lastRun time.Time
	lastErr string
}

// Scheduler runs registered jobs on their cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	runners map[string]Runner

	mu      sync.Mutex
	jobs    map[string]*jobEntry
	order   []string
	running bool
	started time.Time
}

// New builds a scheduler over the given runners, keyed by job type.
// Registering a job whose type has no runner fails.
func New(runners map[string]Runner) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		runners: runners,
		jobs:    make(map[string]*jobEntry),
	}
}

// Register adds a configured job. Disabled jobs are tracked for status
// reporting but never scheduled.
func (s *Scheduler) Register(job Job) error {
	if _, ok := s.runners[job.Type]; !ok {
		return fmt.Errorf("unknown job type %q", job.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %q already registered", job.Name)
	}

	entry := &jobEntry{job: job}
	if job.Enabled {
		name := job.Name
		id, err := s.cron.AddFunc(job.Schedule, func() { s.fire(name) })
		if err != nil {
			return fmt.Errorf("schedule %q for job %q: %w", job.Schedule, job.Name, err)
		}
		entry.cronID = id
	}
	s.jobs[job.Name] = entry
	s.order = append(s.order, job.Name)

	log.Info().
		Str("job", job.Name).
		Str("type", job.Type).
		Str("schedule", job.Schedule).
		Bool("enabled", job.Enabled).
		Msg("Job registered")
	return nil
}

// Start begins firing schedules. Safe to call with zero jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.started = time.Now()
	s.cron.Start()
	log.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

// Stop halts the cron engine and waits for in-flight jobs to finish or
// the context to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		log.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunJob executes one job immediately, outside its schedule. Overlapping
// executions of the same job are rejected rather than queued.
func (s *Scheduler) RunJob(ctx context.Context, name string) (*JobResult, error) {
	s.mu.Lock()
	entry, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("job not found: %s", name)
	}
	if entry.running {
		s.mu.Unlock()
		return nil, fmt.Errorf("job %s is already running", name)
	}
	entry.running = true
	job := entry.job
	s.mu.Unlock()

	result := &JobResult{JobName: name, StartTime: time.Now(), Success: true}
	log.Info().Str("job", name).Str("type", job.Type).Msg("Executing job")

	err := s.runners[job.Type](ctx)

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
	}

	s.mu.Lock()
	entry.running = false
	entry.runs++
	entry.lastRun = result.EndTime
	entry.lastErr = result.Error
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("job", name).Dur("elapsed", result.Duration).Msg("Job failed")
	} else {
		log.Info().Str("job", name).Dur("elapsed", result.Duration).Msg("Job complete")
	}
	return result, nil
}

func (s *Scheduler) fire(name string) {
	if _, err := s.RunJob(context.Background(), name); err != nil {
		log.Warn().Err(err).Str("job", name).Msg("Scheduled run skipped")
	}
}

// Status reports scheduler-level state. NextRun is the earliest upcoming
// fire across enabled jobs, zero until the scheduler starts.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Running: s.running}
	if s.running {
		st.Uptime = time.Since(s.started)
	}
	for _, name := range s.order {
		if s.jobs[name].job.Enabled {
			st.EnabledJobs++
		} else {
			st.DisabledJobs++
		}
	}
	for _, e := range s.cron.Entries() {
		if e.Next.IsZero() {
			continue
		}
		if st.NextRun.IsZero() || e.Next.Before(st.NextRun) {
			st.NextRun = e.Next
		}
	}
	return st
}

// Jobs lists every registered job in registration order.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[cron.EntryID]time.Time)
	for _, e := range s.cron.Entries() {
		next[e.ID] = e.Next
	}

	out := make([]JobStatus, 0, len(s.order))
	for _, name := range s.order {
		entry := s.jobs[name]
		out = append(out, JobStatus{
			Name:     entry.job.Name,
			Type:     entry.job.Type,
			Schedule: entry.job.Schedule,
			Enabled:  entry.job.Enabled,
			Running:  entry.running,
			Runs:     entry.runs,
			LastRun:  entry.lastRun,
			LastErr:  entry.lastErr,
			NextRun:  next[entry.cronID],
		})
	}
	return out
}
