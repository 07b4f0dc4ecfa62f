package signals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wonny/moves/backend/internal/audit"
	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/metrics"
	"github.com/wonny/moves/backend/internal/principles"
	"github.com/wonny/moves/backend/pkg/logger"
)

// =============================================================================
// Lifecycle - decisions, expiry and outcomes
// =============================================================================

// Lifecycle moves signals out of pending. Every move is a compare-and-set on
// the stored status, so a decision racing the expiry sweep loses cleanly.
type Lifecycle struct {
	signals    contracts.SignalRepository
	tx         contracts.TxRunner
	principles *principles.Ledger
	whatIf     *WhatIfTracker // optional
	audit      *audit.Recorder
	metrics    *metrics.Registry
	logger     *logger.Logger
	expiry     time.Duration
	now        func() time.Time
}

// NewLifecycle creates a lifecycle manager. expiry is the age after which a
// pending signal is swept.
func NewLifecycle(
	signals contracts.SignalRepository,
	tx contracts.TxRunner,
	ledger *principles.Ledger,
	rec *audit.Recorder,
	m *metrics.Registry,
	log *logger.Logger,
	expiry time.Duration,
) *Lifecycle {
	return &Lifecycle{
		signals:    signals,
		tx:         tx,
		principles: ledger,
		audit:      rec,
		metrics:    m,
		logger:     log.WithComponent("signal_lifecycle"),
		expiry:     expiry,
		now:        time.Now,
	}
}

// WithClock overrides the time source.
func (l *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	l.now = now
	return l
}

// WithWhatIf tracks rejected, ignored and expired signals after commit.
func (l *Lifecycle) WithWhatIf(t *WhatIfTracker) *Lifecycle {
	l.whatIf = t
	return l
}

// trackPass never fails the decision it follows.
func (l *Lifecycle) trackPass(ctx context.Context, sig *contracts.Signal, decision contracts.SignalStatus) {
	if l.whatIf == nil || !contracts.IsPassDecision(decision) {
		return
	}
	if _, err := l.whatIf.Track(ctx, sig, decision); err != nil {
		l.logger.WithError(err).WithFields(map[string]interface{}{
			"signal_id": sig.ID,
			"decision":  decision,
		}).Warn("What-if tracking failed")
	}
}

// Pending lists signals awaiting a decision.
func (l *Lifecycle) Pending(ctx context.Context) ([]*contracts.Signal, error) {
	return l.signals.ListByStatus(ctx, contracts.SignalPending)
}

// ByStatus lists signals in one status.
func (l *Lifecycle) ByStatus(ctx context.Context, status contracts.SignalStatus) ([]*contracts.Signal, error) {
	return l.signals.ListByStatus(ctx, status)
}

// Get returns one signal with its linked principles.
func (l *Lifecycle) Get(ctx context.Context, id int64) (*contracts.Signal, error) {
	sig, err := l.signals.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ids, err := l.signals.PrincipleIDs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load signal principles: %w", err)
	}
	sig.PrincipleIDs = ids
	return sig, nil
}

func (l *Lifecycle) Approve(ctx context.Context, id int64, note string) (*contracts.Signal, error) {
	return l.Decide(ctx, id, contracts.DecisionApprove, note)
}

func (l *Lifecycle) Reject(ctx context.Context, id int64, note string) (*contracts.Signal, error) {
	return l.Decide(ctx, id, contracts.DecisionReject, note)
}

func (l *Lifecycle) Ignore(ctx context.Context, id int64, note string) (*contracts.Signal, error) {
	return l.Decide(ctx, id, contracts.DecisionIgnore, note)
}

func (l *Lifecycle) Cancel(ctx context.Context, id int64, note string) (*contracts.Signal, error) {
	return l.Decide(ctx, id, contracts.DecisionCancel, note)
}

// MarkExecuted records that an approved signal was filled.
func (l *Lifecycle) MarkExecuted(ctx context.Context, id int64, note string) (*contracts.Signal, error) {
	return l.Decide(ctx, id, contracts.DecisionExecute, note)
}

// Decide applies a human decision. An illegal move returns *TransitionError
// and leaves the signal unchanged.
func (l *Lifecycle) Decide(ctx context.Context, id int64, d contracts.Decision, note string) (*contracts.Signal, error) {
	target, err := d.TargetStatus()
	if err != nil {
		return nil, err
	}

	var sig *contracts.Signal
	err = l.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		sig, err = l.signals.Get(ctx, id)
		if err != nil {
			return err
		}

		from := sig.Status
		if !contracts.CanTransitionSignal(from, target) {
			return &contracts.TransitionError{Entity: "signal", ID: id, From: string(from), To: string(target)}
		}

		now := l.now()
		if err := l.signals.TransitionStatus(ctx, id, from, target, now); err != nil {
			if errors.Is(err, contracts.ErrStoreConflict) {
				// lost a race; report against whatever won
				cur, getErr := l.signals.Get(ctx, id)
				if getErr != nil {
					return getErr
				}
				return &contracts.TransitionError{Entity: "signal", ID: id, From: string(cur.Status), To: string(target)}
			}
			return fmt.Errorf("failed to update signal status: %w", err)
		}

		sig.Status = target
		sig.UpdatedAt = now
		sig.DecidedAt = &now

		details := map[string]interface{}{
			"decision":  d,
			"from":      from,
			"to":        target,
			"symbol":    sig.Symbol,
			"action":    sig.Action,
			"thesis_id": sig.ThesisID,
		}
		if note != "" {
			details["note"] = note
		}
		_, err = l.audit.Record(ctx, contracts.AuditEvent{
			Actor:      contracts.ActorUser,
			Action:     contracts.AuditSignalDecided,
			EntityType: contracts.EntitySignal,
			EntityID:   id,
			Details:    details,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	l.metrics.ObserveDecision(string(target))
	l.logger.WithFields(map[string]interface{}{
		"signal_id": id,
		"symbol":    sig.Symbol,
		"status":    target,
	}).Info("Signal decided")
	l.trackPass(ctx, sig, target)
	return sig, nil
}

// ExpireStale expires every pending signal not refreshed within the expiry
// window as of now. Signals decided while the sweep runs are skipped.
func (l *Lifecycle) ExpireStale(ctx context.Context, now time.Time) ([]int64, error) {
	cutoff := now.Add(-l.expiry)
	stale, err := l.signals.ListPendingUpdatedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale signals: %w", err)
	}

	var expired []int64
	for _, sig := range stale {
		err := l.tx.InTx(ctx, func(ctx context.Context) error {
			if err := l.signals.TransitionStatus(ctx, sig.ID, contracts.SignalPending, contracts.SignalExpired, now); err != nil {
				return err
			}
			_, err := l.audit.Record(ctx, contracts.AuditEvent{
				Actor:      contracts.ActorScheduler,
				Action:     contracts.AuditSignalExpired,
				EntityType: contracts.EntitySignal,
				EntityID:   sig.ID,
				Details: map[string]interface{}{
					"symbol":     sig.Symbol,
					"action":     sig.Action,
					"updated_at": sig.UpdatedAt,
					"expiry":     l.expiry.String(),
				},
			})
			return err
		})
		if errors.Is(err, contracts.ErrStoreConflict) {
			continue
		}
		if err != nil {
			return expired, fmt.Errorf("failed to expire signal %d: %w", sig.ID, err)
		}
		expired = append(expired, sig.ID)
		l.metrics.ObserveDecision(string(contracts.SignalExpired))
		l.trackPass(ctx, sig, contracts.SignalExpired)
	}

	if len(expired) > 0 {
		l.logger.WithField("expired", len(expired)).Info("Expired stale signals")
	}
	return expired, nil
}

// OutcomeReport is what RecordOutcome learned from one realized return.
type OutcomeReport struct {
	SignalID   int64                      `json:"signal_id"`
	ReturnPct  float64                    `json:"return_pct"`
	Win        bool                       `json:"win"`
	Source     *contracts.SourceStats     `json:"source"`
	Strategy   *contracts.StrategyStats   `json:"strategy"`
	Principles []principles.OutcomeResult `json:"principles"`
}

// RecordOutcome feeds the realized return of an executed signal into source
// accuracy and the principles that shaped it. Each signal is recorded once.
func (l *Lifecycle) RecordOutcome(ctx context.Context, signalID int64, returnPct float64) (*OutcomeReport, error) {
	if math.IsNaN(returnPct) || math.IsInf(returnPct, 0) {
		return nil, fmt.Errorf("%w: return is not a finite number", contracts.ErrInvalidInput)
	}

	report := &OutcomeReport{SignalID: signalID, ReturnPct: returnPct, Win: returnPct > 0}

	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		sig, err := l.signals.Get(ctx, signalID)
		if err != nil {
			return err
		}
		if sig.Status != contracts.SignalExecuted {
			return fmt.Errorf("%w: signal %d is %s, only executed signals have outcomes",
				contracts.ErrInvalidInput, signalID, sig.Status)
		}

		history, err := l.audit.ByEntity(ctx, contracts.EntitySignal, signalID)
		if err != nil {
			return err
		}
		for _, e := range history {
			if e.Action == contracts.AuditSignalOutcome {
				return fmt.Errorf("%w: outcome for signal %d already recorded", contracts.ErrInvalidInput, signalID)
			}
		}

		ids, err := l.signals.PrincipleIDs(ctx, signalID)
		if err != nil {
			return fmt.Errorf("failed to load signal principles: %w", err)
		}

		if report.Source, err = l.principles.RecordSourceOutcome(ctx, sig.Source, returnPct); err != nil {
			return err
		}
		if report.Strategy, err = l.principles.RecordStrategyOutcome(ctx, sig.Action.Strategy(), returnPct); err != nil {
			return err
		}
		if report.Principles, err = l.principles.RecordOutcome(ctx, signalID, ids, report.Win); err != nil {
			return err
		}

		_, err = l.audit.Record(ctx, contracts.AuditEvent{
			Actor:      contracts.ActorUser,
			Action:     contracts.AuditSignalOutcome,
			EntityType: contracts.EntitySignal,
			EntityID:   signalID,
			Details: map[string]interface{}{
				"return_pct": returnPct,
				"win":        report.Win,
				"source":     sig.Source,
				"principles": ids,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
