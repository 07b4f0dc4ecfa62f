// Package scheduler runs the periodic jobs of the decision core (scan,
// expiry sweep, principle learning) on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/moves/backend/internal/metrics"
	"github.com/wonny/moves/backend/pkg/logger"
	"github.com/wonny/moves/backend/pkg/redis"
)

// Options tune retries and cross-process exclusion.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	Location   *time.Location

	// Locker, when set, lets only one process run a given job at a time.
	// A run that cannot take the lock within LockWait is skipped.
	Locker   *redis.Locker
	LockWait time.Duration
}

// DefaultOptions returns the standard retry policy.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 2,
		RetryDelay: 30 * time.Second,
		Location:   time.Local,
		LockWait:   time.Second,
	}
}

// Scheduler manages scheduled jobs
// ⭐ SSOT: job scheduling happens in this scheduler only
type Scheduler struct {
	cron    *cron.Cron
	opts    Options
	logger  *logger.Logger
	metrics *metrics.Registry
	jobs    map[string]Job
	entries map[string]cron.EntryID
	history map[string]*JobHistory
	mu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new scheduler
func New(opts Options, m *metrics.Registry, log *logger.Logger) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	log = log.WithComponent("scheduler")
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(opts.Location),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})),
		),
		opts:    opts,
		logger:  log,
		metrics: m,
		jobs:    make(map[string]Job),
		entries: make(map[string]cron.EntryID),
		history: make(map[string]*JobHistory),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddJob registers a job. A job with an empty schedule is left out and
// reported as disabled.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	if job.Schedule() == "" {
		s.logger.WithField("job", name).Info("Job disabled (empty schedule)")
		return nil
	}

	id, err := s.cron.AddFunc(job.Schedule(), func() {
		s.runJob(s.ctx, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = job
	s.entries[name] = id
	s.history[name] = &JobHistory{}

	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")

	return nil
}

// RemoveJob unschedules a job. Its history is dropped.
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.entries[name]
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	s.cron.Remove(id)
	delete(s.jobs, name)
	delete(s.entries, name)
	delete(s.history, name)
	s.logger.WithField("job", name).Info("Job removed from scheduler")

	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunNow executes a registered job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobResult, error) {
	s.mu.RLock()
	job, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return JobResult{}, fmt.Errorf("job %s not found", name)
	}
	return s.runJob(ctx, job), nil
}

// runJob executes a job with retry logic
func (s *Scheduler) runJob(ctx context.Context, job Job) JobResult {
	name := job.Name()
	log := s.logger.WithField("job", name)
	result := JobResult{JobName: name, StartTime: time.Now()}

	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		s.record(result)
	}()

	if s.opts.Locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockWait)
		release, err := s.opts.Locker.Acquire(lockCtx, "job:"+name)
		cancel()
		if err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) {
				log.Info("Job running elsewhere, skipped")
				result.Status = StatusSkipped
				return result
			}
			log.WithError(err).Error("Failed to take job lock")
			result.Status = StatusFailed
			result.Error = err.Error()
			return result
		}
		defer release()
	}

	log.Info("Job started")

	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		lastErr = job.Run(ctx)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}

		log.WithFields(map[string]interface{}{
			"attempt": attempt + 1,
		}).WithError(lastErr).Warn("Job execution failed, retrying")

		if attempt < s.opts.MaxRetries {
			select {
			case <-ctx.Done():
			case <-time.After(s.opts.RetryDelay):
			}
		}
	}

	if lastErr != nil {
		result.Status = StatusFailed
		result.Error = lastErr.Error()
		log.WithFields(map[string]interface{}{
			"attempts": result.Attempts,
			"duration": time.Since(result.StartTime),
		}).WithError(lastErr).Error("Job failed after all retries")
		return result
	}

	result.Status = StatusSuccess
	log.WithField("duration", time.Since(result.StartTime)).Info("Job completed successfully")
	return result
}

func (s *Scheduler) record(result JobResult) {
	s.metrics.ObserveJob(result.JobName, result.Status)

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.history[result.JobName]; ok {
		h.AddResult(result)
	}
}

// JobHistory returns a copy of one job's history.
func (s *Scheduler) JobHistory(name string) ([]JobResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.history[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return h.Latest(historyLimit), nil
}

// Jobs returns registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JobStats represents statistics for a job
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastStatus   string     `json:"last_status,omitempty"`
}

// Stats returns statistics for all jobs
func (s *Scheduler) Stats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats, len(s.jobs))
	for name, job := range s.jobs {
		h := s.history[name]
		failed := len(h.Failed())

		st := JobStats{
			JobName:      name,
			Schedule:     job.Schedule(),
			TotalRuns:    len(h.Results),
			FailureCount: failed,
			SuccessRate:  h.SuccessRate(),
		}
		for _, r := range h.Results {
			if r.Success() {
				st.SuccessCount++
			}
		}
		if latest := h.Latest(1); len(latest) == 1 {
			st.LastRun = &latest[0].StartTime
			st.LastStatus = latest[0].Status
		}
		if next := s.cron.Entry(s.entries[name]).Next; !next.IsZero() {
			st.NextRun = &next
		}
		stats[name] = st
	}
	return stats
}

// cronLogger routes cron's own messages into zerolog.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
