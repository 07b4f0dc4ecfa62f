package scheduler

import (
	"context"
	"time"
)

// Job is one periodic unit of work
// ⭐ SSOT: scheduled job interface is defined here only
type Job interface {
	// Name is unique per scheduler and used as the metrics label
	Name() string

	// Run executes one pass. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error

	// Schedule is a six-field cron spec (seconds first) or a descriptor
	// such as "@hourly". Empty disables the job.
	Schedule() string
}

// Job statuses recorded in history and metrics.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// JobResult represents the result of a job execution
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"`
	Attempts  int           `json:"attempts"`
	Error     string        `json:"error,omitempty"`
}

// Success reports a run that completed without error.
func (r JobResult) Success() bool {
	return r.Status == StatusSuccess
}

const historyLimit = 100

// JobHistory keeps the most recent results of one job.
type JobHistory struct {
	Results []JobResult
}

// AddResult appends a result, dropping the oldest past historyLimit.
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)
	if len(h.Results) > historyLimit {
		h.Results = h.Results[len(h.Results)-historyLimit:]
	}
}

// Latest returns up to n most recent results, oldest first.
func (h *JobHistory) Latest(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}
	if n <= 0 {
		return []JobResult{}
	}
	out := make([]JobResult, n)
	copy(out, h.Results[len(h.Results)-n:])
	return out
}

// Failed returns every failed result.
func (h *JobHistory) Failed() []JobResult {
	failed := make([]JobResult, 0)
	for _, r := range h.Results {
		if r.Status == StatusFailed {
			failed = append(failed, r)
		}
	}
	return failed
}

// SuccessRate is successes over runs that executed; skipped runs are left
// out. 0 without history.
func (h *JobHistory) SuccessRate() float64 {
	var ran, ok int
	for _, r := range h.Results {
		switch r.Status {
		case StatusSuccess:
			ran++
			ok++
		case StatusFailed:
			ran++
		}
	}
	if ran == 0 {
		return 0
	}
	return float64(ok) / float64(ran)
}
