package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/principles"
	"github.com/wonny/moves/backend/pkg/logger"
)

type fakeScanner struct {
	outcomes []contracts.SignalOutcome
	err      error
}

func (f *fakeScanner) Scan(ctx context.Context) ([]contracts.SignalOutcome, error) {
	return f.outcomes, f.err
}

type fakeExpirer struct{ at time.Time }

func (f *fakeExpirer) ExpireStale(ctx context.Context, now time.Time) ([]int64, error) {
	f.at = now
	return []int64{7}, nil
}

type fakeReweighter struct{ err error }

func (f fakeReweighter) AdjustWeights(ctx context.Context) ([]principles.WeightChange, error) {
	return nil, f.err
}

func TestSignalScanJob(t *testing.T) {
	ok := &fakeScanner{outcomes: []contracts.SignalOutcome{{Result: contracts.OutcomeCreated}}}
	job := NewSignalScanJob(ok, "0 */30 9-16 * * 1-5", logger.NewNop())

	assert.Equal(t, "signal_scan", job.Name())
	assert.Equal(t, "0 */30 9-16 * * 1-5", job.Schedule())
	require.NoError(t, job.Run(context.Background()))

	failing := NewSignalScanJob(&fakeScanner{err: errors.New("thesis 3: boom")}, "", logger.NewNop())
	err := failing.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thesis 3")
}

func TestSignalExpiryJob_UsesWallClock(t *testing.T) {
	exp := &fakeExpirer{}
	job := NewSignalExpiryJob(exp, "0 */15 * * * *", logger.NewNop())
	fixed := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, fixed, exp.at)
}

func TestPrincipleLearningJob(t *testing.T) {
	job := NewPrincipleLearningJob(fakeReweighter{}, "0 0 18 * * 1-5", logger.NewNop())
	assert.Equal(t, "principle_learning", job.Name())
	require.NoError(t, job.Run(context.Background()))

	job = NewPrincipleLearningJob(fakeReweighter{err: errors.New("db down")}, "", logger.NewNop())
	assert.Error(t, job.Run(context.Background()))
}

type fakeRepricer struct {
	n   int
	err error
}

func (f fakeRepricer) Refresh(ctx context.Context) (int, error) { return f.n, f.err }

func TestWhatIfRefreshJob(t *testing.T) {
	job := NewWhatIfRefreshJob(fakeRepricer{n: 3}, "0 30 16 * * 1-5", logger.NewNop())
	assert.Equal(t, "what_if_refresh", job.Name())
	assert.Equal(t, "0 30 16 * * 1-5", job.Schedule())
	require.NoError(t, job.Run(context.Background()))

	job = NewWhatIfRefreshJob(fakeRepricer{err: errors.New("oracle down")}, "", logger.NewNop())
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle down")
}
