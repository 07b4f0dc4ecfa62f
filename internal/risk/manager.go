package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/moves/backend/internal/audit"
	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/metrics"
	"github.com/wonny/moves/backend/pkg/logger"
)

// =============================================================================
// Manager - pre-trade risk gate
// =============================================================================

// Manager stands between a generated signal and capital
// ⭐ SSOT: limits and the kill switch are read from the store on every check,
// never cached.
type Manager struct {
	repo    contracts.RiskRepository
	signals contracts.SignalRepository
	tx      contracts.TxRunner
	audit   *audit.Recorder
	metrics *metrics.Registry
	logger  *logger.Logger
	now     func() time.Time
}

// NewManager creates a risk manager.
func NewManager(
	repo contracts.RiskRepository,
	signals contracts.SignalRepository,
	tx contracts.TxRunner,
	rec *audit.Recorder,
	m *metrics.Registry,
	log *logger.Logger,
) *Manager {
	return &Manager{
		repo:    repo,
		signals: signals,
		tx:      tx,
		audit:   rec,
		metrics: m,
		logger:  log.WithComponent("risk"),
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Check evaluates a candidate against fresh limits and the kill switch.
// A failing check is a value in the decision; only store or configuration
// problems are errors.
func (m *Manager) Check(ctx context.Context, cand contracts.Candidate, snap *contracts.PortfolioSnapshot) (contracts.RiskDecision, error) {
	limits, err := m.LimitSet(ctx)
	if err != nil {
		m.logger.WithFields(map[string]interface{}{
			"thesis_id": cand.ThesisID,
			"symbol":    cand.Symbol,
		}).WithError(err).Error("Risk limit table invalid; refusing to evaluate")
		return contracts.RiskDecision{}, err
	}

	ks, err := m.repo.KillSwitch(ctx)
	if err != nil {
		return contracts.RiskDecision{}, fmt.Errorf("failed to read kill switch: %w", err)
	}
	m.metrics.SetKillSwitch(ks.Active)

	if snap == nil {
		snap = &contracts.PortfolioSnapshot{}
	}

	decision := Evaluate(Input{
		Candidate:  cand,
		Snapshot:   *snap,
		Limits:     limits,
		KillSwitch: *ks,
	})

	if _, err := m.audit.Record(ctx, contracts.AuditEvent{
		Actor:      contracts.ActorRisk,
		Action:     contracts.AuditKillSwitchChecked,
		EntityType: contracts.EntityThesis,
		EntityID:   cand.ThesisID,
		Details: map[string]interface{}{
			"symbol": cand.Symbol,
			"action": cand.Action,
			"active": ks.Active,
			"reason": ks.Reason,
		},
	}); err != nil {
		return contracts.RiskDecision{}, err
	}

	for _, c := range decision.Checks {
		m.metrics.ObserveRiskCheck(c.Check, c.Passed, c.Skipped)
	}

	action := contracts.AuditRiskCheckPassed
	details := map[string]interface{}{
		"symbol":   cand.Symbol,
		"action":   cand.Action,
		"size_pct": cand.SizePct,
		"checks":   decision.Checks,
		"skipped":  decision.SkippedChecks(),
	}
	if !decision.Approved {
		action = contracts.AuditRiskCheckFailed
		details["failed_check"] = decision.Failure.Check
		details["limit_type"] = decision.Failure.LimitType
		details["message"] = decision.Failure.Message
	}

	if _, err := m.audit.Record(ctx, contracts.AuditEvent{
		Actor:      contracts.ActorRisk,
		Action:     action,
		EntityType: contracts.EntityThesis,
		EntityID:   cand.ThesisID,
		Details:    details,
	}); err != nil {
		return contracts.RiskDecision{}, err
	}

	if !decision.Approved {
		m.logger.WithFields(map[string]interface{}{
			"thesis_id": cand.ThesisID,
			"symbol":    cand.Symbol,
			"action":    cand.Action,
			"check":     decision.Failure.Check,
			"actual":    decision.Failure.Actual,
			"limit":     decision.Failure.Limit,
		}).Warn("Risk check failed")
	}

	return decision, nil
}

// =============================================================================
// Limits
// =============================================================================

// Limits returns the raw limit table.
func (m *Manager) Limits(ctx context.Context) ([]contracts.RiskLimit, error) {
	limits, err := m.repo.Limits(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load risk limits: %w", err)
	}
	return limits, nil
}

// LimitSet loads and validates the full limit table. A missing or malformed
// limit is a *contracts.ConfigError.
func (m *Manager) LimitSet(ctx context.Context) (contracts.LimitSet, error) {
	limits, err := m.Limits(ctx)
	if err != nil {
		return nil, err
	}
	set := contracts.NewLimitSet(limits)
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// SetLimit validates and stores one limit, auditing old and new values.
func (m *Manager) SetLimit(ctx context.Context, limit contracts.RiskLimit, actor contracts.Actor) error {
	if _, err := contracts.ParseLimitType(string(limit.Type)); err != nil {
		return err
	}
	if err := limit.Validate(); err != nil {
		return err
	}

	return m.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := m.Limits(ctx)
		if err != nil {
			return err
		}
		old, existed := contracts.NewLimitSet(current)[limit.Type]

		limit.UpdatedAt = m.now()
		if err := m.repo.UpsertLimit(ctx, limit); err != nil {
			return fmt.Errorf("failed to store risk limit: %w", err)
		}

		details := map[string]interface{}{"limit": limit}
		if existed {
			details["previous"] = old
		}
		_, err = m.audit.Record(ctx, contracts.AuditEvent{
			Actor:      actor,
			Action:     contracts.AuditRiskLimitChanged,
			EntityType: contracts.EntityRisk,
			Details:    details,
		})
		return err
	})
}

// SeedLimits inserts each default whose type is missing from the table.
// Existing rows are never overwritten.
func (m *Manager) SeedLimits(ctx context.Context, defaults []contracts.RiskLimit) (int, error) {
	current, err := m.Limits(ctx)
	if err != nil {
		return 0, err
	}
	existing := contracts.NewLimitSet(current)

	seeded := 0
	for _, l := range defaults {
		if _, ok := existing[l.Type]; ok {
			continue
		}
		if err := l.Validate(); err != nil {
			return seeded, err
		}
		l.UpdatedAt = m.now()
		if err := m.repo.UpsertLimit(ctx, l); err != nil {
			return seeded, fmt.Errorf("failed to seed risk limit %s: %w", l.Type, err)
		}
		seeded++
	}
	return seeded, nil
}

// =============================================================================
// Kill switch
// =============================================================================

// KillSwitch returns the current kill switch row.
func (m *Manager) KillSwitch(ctx context.Context) (*contracts.KillSwitch, error) {
	ks, err := m.repo.KillSwitch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read kill switch: %w", err)
	}
	return ks, nil
}

// ActivateKillSwitch halts all opening trades and cancels every pending
// BUY/SHORT signal. Returns the ids of cancelled signals.
func (m *Manager) ActivateKillSwitch(ctx context.Context, reason string, actor contracts.Actor) (*contracts.KillSwitch, []int64, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, nil, fmt.Errorf("%w: kill switch reason is required", contracts.ErrInvalidInput)
	}

	var ks *contracts.KillSwitch
	var cancelled []int64
	err := m.tx.InTx(ctx, func(ctx context.Context) error {
		now := m.now()
		ks = &contracts.KillSwitch{
			Active:      true,
			Reason:      reason,
			ActivatedBy: string(actor),
			ActivatedAt: &now,
			UpdatedAt:   now,
		}
		if err := m.repo.SaveKillSwitch(ctx, ks); err != nil {
			return fmt.Errorf("failed to activate kill switch: %w", err)
		}

		if _, err := m.audit.Record(ctx, contracts.AuditEvent{
			Actor:      actor,
			Action:     contracts.AuditKillSwitchActivated,
			EntityType: contracts.EntityKillSwitch,
			Details:    map[string]interface{}{"reason": reason},
		}); err != nil {
			return err
		}

		ids, err := m.CancelPendingOpen(ctx, 0, "kill switch activated: "+reason)
		cancelled = ids
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	m.metrics.SetKillSwitch(true)
	m.logger.WithFields(map[string]interface{}{
		"reason":    reason,
		"actor":     actor,
		"cancelled": len(cancelled),
	}).Warn("Kill switch activated")

	return ks, cancelled, nil
}

// DeactivateKillSwitch resumes opening trades. Cancelled signals stay
// cancelled.
func (m *Manager) DeactivateKillSwitch(ctx context.Context, actor contracts.Actor) (*contracts.KillSwitch, error) {
	var ks *contracts.KillSwitch
	err := m.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := m.KillSwitch(ctx)
		if err != nil {
			return err
		}
		now := m.now()
		current.Active = false
		current.DeactivatedAt = &now
		current.UpdatedAt = now
		if err := m.repo.SaveKillSwitch(ctx, current); err != nil {
			return fmt.Errorf("failed to deactivate kill switch: %w", err)
		}
		ks = current

		_, err = m.audit.Record(ctx, contracts.AuditEvent{
			Actor:      actor,
			Action:     contracts.AuditKillSwitchDeactivated,
			EntityType: contracts.EntityKillSwitch,
			Details:    map[string]interface{}{"previous_reason": current.Reason},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	m.metrics.SetKillSwitch(false)
	m.logger.WithField("actor", actor).Info("Kill switch deactivated")
	return ks, nil
}

// CancelPendingOpen cancels pending BUY/SHORT signals, for one thesis or for
// all theses when thesisID is 0. Signals decided concurrently are skipped.
func (m *Manager) CancelPendingOpen(ctx context.Context, thesisID int64, reason string) ([]int64, error) {
	var pending []*contracts.Signal
	var err error
	if thesisID > 0 {
		pending, err = m.signals.ListPendingByThesis(ctx, thesisID)
	} else {
		pending, err = m.signals.ListByStatus(ctx, contracts.SignalPending)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list pending signals: %w", err)
	}

	var cancelled []int64
	now := m.now()
	for _, sig := range pending {
		if !sig.Action.OpensPosition() {
			continue
		}
		err := m.signals.TransitionStatus(ctx, sig.ID, contracts.SignalPending, contracts.SignalCancelled, now)
		if errors.Is(err, contracts.ErrStoreConflict) {
			continue
		}
		if err != nil {
			return cancelled, fmt.Errorf("failed to cancel signal %d: %w", sig.ID, err)
		}
		cancelled = append(cancelled, sig.ID)
		m.metrics.ObserveDecision(string(contracts.SignalCancelled))

		if _, err := m.audit.Record(ctx, contracts.AuditEvent{
			Actor:      contracts.ActorRisk,
			Action:     contracts.AuditSignalCancelled,
			EntityType: contracts.EntitySignal,
			EntityID:   sig.ID,
			Details: map[string]interface{}{
				"thesis_id": sig.ThesisID,
				"symbol":    sig.Symbol,
				"action":    sig.Action,
				"reason":    reason,
			},
		}); err != nil {
			return cancelled, err
		}
	}
	return cancelled, nil
}
