package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/pkg/logger"
)

// Scanner evaluates every live thesis.
type Scanner interface {
	Scan(ctx context.Context) ([]contracts.SignalOutcome, error)
}

// SignalScanJob re-evaluates all theses on a schedule
// ⭐ SSOT: periodic signal generation runs from this job only
type SignalScanJob struct {
	scanner  Scanner
	schedule string
	logger   *logger.Logger
}

// NewSignalScanJob creates a new signal scan job
func NewSignalScanJob(scanner Scanner, schedule string, log *logger.Logger) *SignalScanJob {
	return &SignalScanJob{scanner: scanner, schedule: schedule, logger: log}
}

func (j *SignalScanJob) Name() string { return "signal_scan" }

// Schedule defaults to every 30 minutes during market hours, weekdays.
func (j *SignalScanJob) Schedule() string { return j.schedule }

// Run executes one scan. Per-thesis failures fail the run so the scheduler
// retries; theses that succeeded keep their signals.
func (j *SignalScanJob) Run(ctx context.Context) error {
	outcomes, err := j.scanner.Scan(ctx)

	created, suppressed := 0, 0
	for _, o := range outcomes {
		switch o.Result {
		case contracts.OutcomeCreated, contracts.OutcomeUpdated:
			created++
		case contracts.OutcomeSuppressed:
			suppressed++
		}
	}
	j.logger.WithFields(map[string]interface{}{
		"signals":    created,
		"suppressed": suppressed,
	}).Info("Scheduled signal scan finished")

	if err != nil {
		return fmt.Errorf("signal scan: %w", err)
	}
	return nil
}
