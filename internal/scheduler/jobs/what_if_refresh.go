package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/moves/backend/pkg/logger"
)

// Repricer marks passed signals to the current price.
type Repricer interface {
	Refresh(ctx context.Context) (int, error)
}

// WhatIfRefreshJob re-prices passed signals after the close
type WhatIfRefreshJob struct {
	tracker  Repricer
	schedule string
	logger   *logger.Logger
}

// NewWhatIfRefreshJob creates a new what-if refresh job
func NewWhatIfRefreshJob(tracker Repricer, schedule string, log *logger.Logger) *WhatIfRefreshJob {
	return &WhatIfRefreshJob{tracker: tracker, schedule: schedule, logger: log}
}

func (j *WhatIfRefreshJob) Name() string { return "what_if_refresh" }

func (j *WhatIfRefreshJob) Schedule() string { return j.schedule }

func (j *WhatIfRefreshJob) Run(ctx context.Context) error {
	n, err := j.tracker.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh what-if records: %w", err)
	}
	j.logger.WithField("repriced", n).Info("What-if refresh completed")
	return nil
}
