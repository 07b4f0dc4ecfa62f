package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/moves/backend/internal/principles"
	"github.com/wonny/moves/backend/pkg/logger"
)

// Reweighter adjusts principle weights from their track record.
type Reweighter interface {
	AdjustWeights(ctx context.Context) ([]principles.WeightChange, error)
}

// PrincipleLearningJob runs the daily weight adjustment after the close
type PrincipleLearningJob struct {
	ledger   Reweighter
	schedule string
	logger   *logger.Logger
}

// NewPrincipleLearningJob creates a new principle learning job
func NewPrincipleLearningJob(ledger Reweighter, schedule string, log *logger.Logger) *PrincipleLearningJob {
	return &PrincipleLearningJob{ledger: ledger, schedule: schedule, logger: log}
}

func (j *PrincipleLearningJob) Name() string { return "principle_learning" }

func (j *PrincipleLearningJob) Schedule() string { return j.schedule }

func (j *PrincipleLearningJob) Run(ctx context.Context) error {
	changes, err := j.ledger.AdjustWeights(ctx)
	if err != nil {
		return fmt.Errorf("adjust principle weights: %w", err)
	}
	j.logger.WithField("reweighted", len(changes)).Info("Principle learning completed")
	return nil
}
