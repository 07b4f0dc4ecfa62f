package signals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wonny/moves/backend/internal/audit"
	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/pkg/logger"
)

// =============================================================================
// What-if - the trades we passed on
// =============================================================================

// WhatIfTracker records signals the user passed on and keeps marking them
// to market, so rejecting and ignoring can be graded later.
type WhatIfTracker struct {
	repo   contracts.WhatIfRepository
	oracle contracts.MarketOracle
	audit  *audit.Recorder
	logger *logger.Logger
	now    func() time.Time
}

// NewWhatIfTracker creates a tracker.
func NewWhatIfTracker(repo contracts.WhatIfRepository, oracle contracts.MarketOracle, rec *audit.Recorder, log *logger.Logger) *WhatIfTracker {
	return &WhatIfTracker{
		repo:   repo,
		oracle: oracle,
		audit:  rec,
		logger: log.WithComponent("what_if"),
		now:    time.Now,
	}
}

// WithClock overrides the time source.
func (w *WhatIfTracker) WithClock(now func() time.Time) *WhatIfTracker {
	w.now = now
	return w
}

// HypotheticalPnL is the per-share result of having taken the trade at
// entry. BUY and COVER gain when the price rises; SELL and SHORT when it
// falls.
func HypotheticalPnL(action contracts.SignalAction, entry, current float64) (pnl, pnlPct float64) {
	switch action {
	case contracts.ActionBuy, contracts.ActionCover:
		pnl = current - entry
	default:
		pnl = entry - current
	}
	if entry > 0 {
		pnlPct = pnl / entry
	}
	return pnl, pnlPct
}

// RecordPass starts tracking sig at the price it was passed at.
func (w *WhatIfTracker) RecordPass(ctx context.Context, sig *contracts.Signal, decision contracts.SignalStatus, price float64) (*contracts.WhatIf, error) {
	if !contracts.IsPassDecision(decision) {
		return nil, fmt.Errorf("%w: %q is not a pass decision", contracts.ErrInvalidInput, decision)
	}
	if !(price > 0) || math.IsInf(price, 0) {
		return nil, fmt.Errorf("%w: price at pass must be positive", contracts.ErrInvalidInput)
	}

	rec := &contracts.WhatIf{
		SignalID:    sig.ID,
		Symbol:      sig.Symbol,
		Action:      sig.Action,
		Decision:    decision,
		PriceAtPass: price,
		CreatedAt:   w.now(),
	}
	if err := w.repo.Record(ctx, rec); err != nil {
		return nil, err
	}

	_, err := w.audit.Record(ctx, contracts.AuditEvent{
		Actor:      contracts.ActorEngine,
		Action:     contracts.AuditWhatIfRecorded,
		EntityType: contracts.EntitySignal,
		EntityID:   sig.ID,
		Details: map[string]interface{}{
			"symbol":        sig.Symbol,
			"action":        sig.Action,
			"decision":      decision,
			"price_at_pass": price,
		},
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Track records a pass at the oracle's current price.
func (w *WhatIfTracker) Track(ctx context.Context, sig *contracts.Signal, decision contracts.SignalStatus) (*contracts.WhatIf, error) {
	mc, err := w.oracle.MarketContext(ctx, sig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to price %s: %w", sig.Symbol, err)
	}
	return w.RecordPass(ctx, sig, decision, mc.Price)
}

// List returns tracked passes, newest first.
func (w *WhatIfTracker) List(ctx context.Context, decision *contracts.SignalStatus) ([]*contracts.WhatIf, error) {
	return w.repo.List(ctx, decision)
}

// Refresh marks every record to the current price and returns how many
// were updated. A symbol the oracle cannot price is skipped.
func (w *WhatIfTracker) Refresh(ctx context.Context) (int, error) {
	records, err := w.repo.List(ctx, nil)
	if err != nil {
		return 0, err
	}

	prices := make(map[string]float64)
	updated := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		price, ok := prices[rec.Symbol]
		if !ok {
			mc, err := w.oracle.MarketContext(ctx, rec.Symbol)
			if err != nil {
				w.logger.WithError(err).WithField("symbol", rec.Symbol).Warn("What-if price unavailable")
				prices[rec.Symbol] = 0
				continue
			}
			price = mc.Price
			prices[rec.Symbol] = price
		}
		if price <= 0 {
			continue
		}

		pnl, pct := HypotheticalPnL(rec.Action, rec.PriceAtPass, price)
		if err := w.repo.UpdatePrice(ctx, rec.ID, price, pnl, pct, w.now()); err != nil {
			if errors.Is(err, contracts.ErrNotFound) {
				continue
			}
			return updated, err
		}
		updated++
	}

	w.logger.WithFields(map[string]interface{}{
		"tracked": len(records),
		"updated": updated,
	}).Info("What-if records refreshed")
	return updated, nil
}

// Summary grades passes that have been priced. A pass was right when the
// trade would have lost money.
func (w *WhatIfTracker) Summary(ctx context.Context) (*contracts.WhatIfSummary, error) {
	records, err := w.repo.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	return summarize(records), nil
}

func summarize(records []*contracts.WhatIf) *contracts.WhatIfSummary {
	out := &contracts.WhatIfSummary{TotalTracked: len(records)}

	var priced, correct int
	var rejected, rejectedCorrect int
	var ignored, ignoredCorrect int
	var ignoreSum float64
	for _, rec := range records {
		if !rec.Priced() {
			continue
		}
		right := *rec.HypotheticalPnL <= 0
		priced++
		if right {
			correct++
		}
		switch rec.Decision {
		case contracts.SignalRejected:
			rejected++
			if right {
				rejectedCorrect++
			}
		case contracts.SignalIgnored, contracts.SignalExpired:
			ignored++
			if right {
				ignoredCorrect++
			}
			ignoreSum += *rec.HypotheticalPnLPct
		}
	}

	if priced > 0 {
		out.PassAccuracy = float64(correct) / float64(priced)
	}
	if rejected > 0 {
		out.RejectAccuracy = float64(rejectedCorrect) / float64(rejected)
	}
	if ignored > 0 {
		out.IgnoreCost = ignoreSum / float64(ignored)
	}
	if rejected > 0 && ignored > 0 {
		// deliberate rejects should beat letting signals lapse
		out.EngagementQuality = out.RejectAccuracy - float64(ignoredCorrect)/float64(ignored)
	}
	return out
}
