package signals

import (
	"context"
	"fmt"
	"math"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/strategyconfig"
)

// =============================================================================
// Auto-approval and manual size overrides
// =============================================================================

// ShouldAutoApprove decides whether a freshly written pending signal may
// skip the human queue. The first matching rule wins:
//  1. the order value (NAV × size) is under approval.max_value
//  2. confidence reaches approval.min_confidence on a confirmed thesis
func ShouldAutoApprove(sig *contracts.Signal, thesisStatus contracts.ThesisStatus, nav float64, cfg strategyconfig.Approval) (bool, string) {
	if !cfg.Enabled || sig.Status != contracts.SignalPending {
		return false, ""
	}

	if value := nav * sig.SizePct; nav > 0 && value < cfg.MaxValue {
		return true, fmt.Sprintf("order value %.2f below %.2f", value, cfg.MaxValue)
	}
	if sig.Confidence >= cfg.MinConfidence && thesisStatus == contracts.ThesisConfirmed {
		return true, fmt.Sprintf("confidence %.2f on confirmed thesis", sig.Confidence)
	}
	return false, ""
}

// autoApprove moves sig from pending to approved inside the caller's
// transaction.
func (g *Generator) autoApprove(ctx context.Context, sig *contracts.Signal, reason string) error {
	now := g.now()
	if err := g.deps.Signals.TransitionStatus(ctx, sig.ID, contracts.SignalPending, contracts.SignalApproved, now); err != nil {
		return fmt.Errorf("failed to auto-approve signal: %w", err)
	}
	sig.Status = contracts.SignalApproved
	sig.UpdatedAt = now
	sig.DecidedAt = &now

	_, err := g.deps.Audit.Record(ctx, contracts.AuditEvent{
		Actor:      contracts.ActorEngine,
		Action:     contracts.AuditSignalAutoApproved,
		EntityType: contracts.EntitySignal,
		EntityID:   sig.ID,
		Details: map[string]interface{}{
			"symbol":     sig.Symbol,
			"action":     sig.Action,
			"confidence": sig.Confidence,
			"size_pct":   sig.SizePct,
			"reason":     reason,
		},
	})
	return err
}

// ModifySize overrides the size of a pending signal. The new size goes
// through the same risk checks as a generated one; a failed check leaves
// the signal untouched and is reported in the returned decision. The
// override holds until the next evaluation of the symbol rewrites it.
func (g *Generator) ModifySize(ctx context.Context, signalID int64, sizePct float64, note string) (*contracts.Signal, *contracts.RiskDecision, error) {
	if math.IsNaN(sizePct) || sizePct <= 0 || sizePct > 1 {
		return nil, nil, fmt.Errorf("%w: size_pct must be in (0, 1]", contracts.ErrInvalidInput)
	}

	sig, err := g.deps.Signals.Get(ctx, signalID)
	if err != nil {
		return nil, nil, err
	}
	if sig.Status != contracts.SignalPending {
		return nil, nil, &contracts.TransitionError{Entity: "signal", ID: signalID, From: string(sig.Status), To: string(contracts.SignalPending)}
	}

	snap, err := g.deps.Portfolio.Snapshot(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load portfolio snapshot: %w", err)
	}
	mc, err := g.deps.Oracle.MarketContext(ctx, sig.Symbol)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load market context: %w", err)
	}

	unlock, err := g.deps.Locker.Lock(ctx, sig.Symbol)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	var decision contracts.RiskDecision
	err = g.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		cur, err := g.deps.Signals.Get(ctx, signalID)
		if err != nil {
			return err
		}
		if cur.Status != contracts.SignalPending {
			return &contracts.TransitionError{Entity: "signal", ID: signalID, From: string(cur.Status), To: string(contracts.SignalPending)}
		}

		sector := mc.Sector
		if sector == "" {
			if pos, ok := snap.PositionFor(cur.Symbol); ok {
				sector = pos.Sector
			}
		}
		decision, err = g.deps.Risk.Check(ctx, contracts.Candidate{
			ThesisID:   cur.ThesisID,
			Symbol:     cur.Symbol,
			Action:     cur.Action,
			SizePct:    sizePct,
			Sector:     sector,
			InBlackout: mc.InBlackout,
		}, snap)
		if err != nil {
			return err
		}
		if !decision.Approved {
			sig = cur
			return nil
		}

		oldSize := cur.SizePct
		cur.SizePct = sizePct
		cur.UpdatedAt = g.now()
		if err := g.deps.Signals.UpdatePending(ctx, cur); err != nil {
			return err
		}

		details := map[string]interface{}{
			"symbol":   cur.Symbol,
			"action":   cur.Action,
			"old_size": oldSize,
			"new_size": sizePct,
		}
		if note != "" {
			details["note"] = note
		}
		if _, err := g.deps.Audit.Record(ctx, contracts.AuditEvent{
			Actor:      contracts.ActorUser,
			Action:     contracts.AuditSignalModified,
			EntityType: contracts.EntitySignal,
			EntityID:   signalID,
			Details:    details,
		}); err != nil {
			return err
		}
		sig = cur
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	g.logger.WithFields(map[string]interface{}{
		"signal_id": signalID,
		"symbol":    sig.Symbol,
		"size_pct":  sizePct,
		"approved":  decision.Approved,
	}).Info("Signal size modified")
	return sig, &decision, nil
}
