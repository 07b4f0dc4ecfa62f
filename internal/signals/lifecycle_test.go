package signals

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/principles"
)

func pendingSignal(t *testing.T, h *harness) *contracts.Signal {
	t.Helper()
	th := h.addThesis(t, nil)
	out, err := h.gen.Evaluate(context.Background(), th.ID)
	require.NoError(t, err)
	require.Equal(t, contracts.OutcomeCreated, out[0].Result)

	sig, err := h.lifecycle.Get(context.Background(), out[0].SignalID)
	require.NoError(t, err)
	return sig
}

func TestDecide_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		steps   []contracts.Decision
		want    contracts.SignalStatus
		wantErr bool
	}{
		{"approve", []contracts.Decision{contracts.DecisionApprove}, contracts.SignalApproved, false},
		{"reject", []contracts.Decision{contracts.DecisionReject}, contracts.SignalRejected, false},
		{"ignore", []contracts.Decision{contracts.DecisionIgnore}, contracts.SignalIgnored, false},
		{"approve then execute", []contracts.Decision{contracts.DecisionApprove, contracts.DecisionExecute}, contracts.SignalExecuted, false},
		{"execute while pending", []contracts.Decision{contracts.DecisionExecute}, contracts.SignalPending, true},
		{"reject after approve", []contracts.Decision{contracts.DecisionApprove, contracts.DecisionReject}, contracts.SignalApproved, true},
		{"approve twice", []contracts.Decision{contracts.DecisionApprove, contracts.DecisionApprove}, contracts.SignalApproved, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			sig := pendingSignal(t, h)

			var err error
			for _, d := range tt.steps {
				if _, err = h.lifecycle.Decide(ctx, sig.ID, d, ""); err != nil {
					break
				}
			}

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, contracts.ErrInvalidTransition)
				var terr *contracts.TransitionError
				require.ErrorAs(t, err, &terr)
				assert.Equal(t, string(tt.want), terr.From)
			} else {
				require.NoError(t, err)
			}

			got, err := h.lifecycle.Get(ctx, sig.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestDecide_UnknownDecision(t *testing.T) {
	h := newHarness(t)
	sig := pendingSignal(t, h)

	_, err := h.lifecycle.Decide(context.Background(), sig.ID, contracts.Decision("maybe"), "")
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)
}

func TestDecide_AuditsWithNote(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sig := pendingSignal(t, h)

	decided, err := h.lifecycle.Approve(ctx, sig.ID, "sized down manually")
	require.NoError(t, err)
	assert.NotNil(t, decided.DecidedAt)

	entries, err := h.store.Audit().ByEntity(ctx, contracts.EntitySignal, sig.ID)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, contracts.AuditSignalDecided, last.Action)
	assert.Equal(t, contracts.ActorUser, last.Actor)
	assert.Contains(t, string(last.Details), "sized down manually")

	pending, err := h.lifecycle.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestExpireStale(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sig := pendingSignal(t, h)

	expired, err := h.lifecycle.ExpireStale(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)

	expired, err = h.lifecycle.ExpireStale(ctx, time.Now().Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []int64{sig.ID}, expired)

	got, err := h.lifecycle.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.SignalExpired, got.Status)
	assert.NotNil(t, got.ExpiredAt)

	// a later decision loses
	_, err = h.lifecycle.Approve(ctx, sig.ID, "")
	assert.ErrorIs(t, err, contracts.ErrInvalidTransition)
}

func TestExpireStale_RefreshKeepsSignalAlive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sig := pendingSignal(t, h)

	later := time.Now().Add(20 * time.Hour)
	h.gen.WithClock(func() time.Time { return later })
	out, err := h.gen.Evaluate(ctx, sig.ThesisID)
	require.NoError(t, err)
	require.Equal(t, contracts.OutcomeUpdated, out[0].Result)

	expired, err := h.lifecycle.ExpireStale(ctx, time.Now().Add(25*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestRecordOutcome(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	p, err := h.ledger.Create(ctx, principles.Input{
		Text:      "follow the capex",
		Condition: contracts.PrincipleCondition{Category: principles.CategoryConviction},
	})
	require.NoError(t, err)

	sig := pendingSignal(t, h)
	assert.Equal(t, []int64{p.ID}, sig.PrincipleIDs)

	_, err = h.lifecycle.RecordOutcome(ctx, sig.ID, 0.05)
	assert.ErrorIs(t, err, contracts.ErrInvalidInput, "pending signals have no outcome")

	_, err = h.lifecycle.Approve(ctx, sig.ID, "")
	require.NoError(t, err)
	_, err = h.lifecycle.MarkExecuted(ctx, sig.ID, "filled")
	require.NoError(t, err)

	report, err := h.lifecycle.RecordOutcome(ctx, sig.ID, 0.05)
	require.NoError(t, err)
	assert.True(t, report.Win)
	assert.Equal(t, 1, report.Source.Wins)
	assert.Equal(t, contracts.SourceThesisUpdate, report.Source.Source)
	require.Len(t, report.Principles, 1)
	assert.True(t, report.Principles[0].Validated)

	got, err := h.ledger.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ValidatedCount)

	_, err = h.lifecycle.RecordOutcome(ctx, sig.ID, 0.05)
	assert.ErrorIs(t, err, contracts.ErrInvalidInput, "outcome recorded twice")
}

func TestDecide_PassesAreTrackedAsWhatIf(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.price("NVDA", 120)
	sig := pendingSignal(t, h)

	_, err := h.lifecycle.Reject(ctx, sig.ID, "too extended")
	require.NoError(t, err)

	list, err := h.whatIf.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, sig.ID, list[0].SignalID)
	assert.Equal(t, contracts.SignalRejected, list[0].Decision)
	assert.Equal(t, 120.0, list[0].PriceAtPass)
	assert.False(t, list[0].Priced())
	assert.Equal(t, 1, countActions(h.store.Audit().Actions(), contracts.AuditWhatIfRecorded))
}

func TestDecide_ApprovalIsNotAPass(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.price("NVDA", 120)
	sig := pendingSignal(t, h)

	_, err := h.lifecycle.Approve(ctx, sig.ID, "")
	require.NoError(t, err)

	list, err := h.whatIf.List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDecide_WhatIfFailureKeepsDecision(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sig := pendingSignal(t, h) // oracle has no price for NVDA

	got, err := h.lifecycle.Ignore(ctx, sig.ID, "")
	require.NoError(t, err)
	assert.Equal(t, contracts.SignalIgnored, got.Status)

	list, err := h.whatIf.List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestExpireStale_TracksExpiredAsWhatIf(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.price("NVDA", 95)
	sig := pendingSignal(t, h)

	expired, err := h.lifecycle.ExpireStale(ctx, time.Now().Add(25*time.Hour))
	require.NoError(t, err)
	require.Equal(t, []int64{sig.ID}, expired)

	decision := contracts.SignalExpired
	list, err := h.whatIf.List(ctx, &decision)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 95.0, list[0].PriceAtPass)
}

func TestRecordOutcome_FeedsStrategyStats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sig := pendingSignal(t, h)

	_, err := h.lifecycle.Approve(ctx, sig.ID, "")
	require.NoError(t, err)
	_, err = h.lifecycle.MarkExecuted(ctx, sig.ID, "")
	require.NoError(t, err)

	report, err := h.lifecycle.RecordOutcome(ctx, sig.ID, -0.02)
	require.NoError(t, err)
	require.NotNil(t, report.Strategy)
	assert.Equal(t, contracts.StrategyLong, report.Strategy.Strategy)
	assert.Equal(t, 1, report.Strategy.Losses)

	stats, err := h.store.SourceStats().ListStrategies(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.InDelta(t, -0.02, stats[0].AvgReturn, 1e-9)
}
