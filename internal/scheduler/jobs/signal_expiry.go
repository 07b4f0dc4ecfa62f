package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/moves/backend/pkg/logger"
)

// Expirer sweeps stale pending signals.
type Expirer interface {
	ExpireStale(ctx context.Context, now time.Time) ([]int64, error)
}

// SignalExpiryJob expires pending signals that were not refreshed in time.
// Expiry compares wall clock against updated_at on each sweep; no timers
// are kept per signal.
type SignalExpiryJob struct {
	expirer  Expirer
	schedule string
	now      func() time.Time
	logger   *logger.Logger
}

// NewSignalExpiryJob creates a new expiry sweep job
func NewSignalExpiryJob(expirer Expirer, schedule string, log *logger.Logger) *SignalExpiryJob {
	return &SignalExpiryJob{expirer: expirer, schedule: schedule, now: time.Now, logger: log}
}

func (j *SignalExpiryJob) Name() string { return "signal_expiry" }

func (j *SignalExpiryJob) Schedule() string { return j.schedule }

func (j *SignalExpiryJob) Run(ctx context.Context) error {
	expired, err := j.expirer.ExpireStale(ctx, j.now())
	if err != nil {
		return fmt.Errorf("expire signals: %w", err)
	}
	if len(expired) > 0 {
		j.logger.WithField("expired", len(expired)).Info("Expiry sweep completed")
	}
	return nil
}
