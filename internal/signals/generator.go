// Package signals turns theses into pending trade signals and manages their
// lifecycle until a human decides.
package signals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/moves/backend/internal/audit"
	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/metrics"
	"github.com/wonny/moves/backend/internal/principles"
	"github.com/wonny/moves/backend/internal/risk"
	"github.com/wonny/moves/backend/internal/scoring"
	"github.com/wonny/moves/backend/internal/strategyconfig"
	"github.com/wonny/moves/backend/pkg/logger"
)

// Deps wires the generator to its collaborators. Notifier, Metrics and
// Locker may be nil.
type Deps struct {
	Theses     contracts.ThesisRepository
	Signals    contracts.SignalRepository
	Tx         contracts.TxRunner
	Risk       *risk.Manager
	Principles *principles.Ledger
	Audit      *audit.Recorder
	Oracle     contracts.MarketOracle
	Portfolio  contracts.PortfolioProvider
	Notifier   contracts.Notifier
	Locker     *SymbolLocker
	Metrics    *metrics.Registry
	Logger     *logger.Logger
}

// Generator evaluates theses into signals
// ⭐ SSOT: the only writer of pending signals
type Generator struct {
	deps       Deps
	cfg        *strategyconfig.Config
	scorer     *scoring.Scorer
	configHash string
	logger     *logger.Logger
	now        func() time.Time
}

// NewGenerator creates a generator bound to one core configuration.
func NewGenerator(deps Deps, cfg *strategyconfig.Config) *Generator {
	if deps.Locker == nil {
		deps.Locker = NewSymbolLocker(nil)
	}
	log := deps.Logger.WithComponent("signals")

	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		log.WithError(err).Warn("Failed to hash core config")
	}

	return &Generator{
		deps:       deps,
		cfg:        cfg,
		scorer:     scoring.New(cfg.Scoring),
		configHash: hash,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock overrides the time source.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// evaluation carries one symbol's result out of its transaction.
type evaluation struct {
	outcome contracts.SignalOutcome
	signal  *contracts.Signal // set when created or updated
}

// Evaluate runs the pipeline for every symbol of one thesis, tagged as a
// thesis_update trigger.
func (g *Generator) Evaluate(ctx context.Context, thesisID int64) ([]contracts.SignalOutcome, error) {
	return g.EvaluateFrom(ctx, thesisID, contracts.SourceThesisUpdate)
}

// EvaluateFrom is Evaluate with an explicit trigger source. Gate and risk
// failures are reported as suppressed outcomes; only store, collaborator
// and configuration failures are errors.
func (g *Generator) EvaluateFrom(ctx context.Context, thesisID int64, source contracts.SignalSource) ([]contracts.SignalOutcome, error) {
	start := time.Now()
	defer func() { g.deps.Metrics.ObserveEvaluation(string(source), time.Since(start)) }()

	t, err := g.deps.Theses.Get(ctx, thesisID)
	if err != nil {
		return nil, err
	}

	snap, err := g.deps.Portfolio.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio snapshot: %w", err)
	}

	outcomes := make([]contracts.SignalOutcome, 0, len(t.Symbols))
	for _, symbol := range t.Symbols {
		ev, err := g.evaluateSymbol(ctx, t, symbol, snap, source)
		if err != nil {
			g.logger.WithFields(map[string]interface{}{
				"thesis_id": t.ID,
				"symbol":    symbol,
			}).WithError(err).Error("Signal evaluation failed")
			return outcomes, fmt.Errorf("failed to evaluate %s for thesis %d: %w", symbol, t.ID, err)
		}

		outcomes = append(outcomes, ev.outcome)
		g.deps.Metrics.ObserveOutcome(string(ev.outcome.Result), string(ev.outcome.Action), ev.outcome.Gate)

		if ev.outcome.AutoApproved {
			g.deps.Metrics.ObserveDecision(string(contracts.SignalApproved))
			continue
		}
		if ev.signal != nil {
			g.notify(ctx, ev.signal)
		}
	}

	return outcomes, nil
}

// evaluateSymbol runs under the symbol lock and inside one transaction so
// the dedup read and the write see the same pending row.
func (g *Generator) evaluateSymbol(
	ctx context.Context,
	t *contracts.Thesis,
	symbol string,
	snap *contracts.PortfolioSnapshot,
	source contracts.SignalSource,
) (evaluation, error) {
	mc, err := g.deps.Oracle.MarketContext(ctx, symbol)
	if err != nil {
		return evaluation{}, fmt.Errorf("failed to load market context: %w", err)
	}

	unlock, err := g.deps.Locker.Lock(ctx, symbol)
	if err != nil {
		return evaluation{}, err
	}
	defer unlock()

	var ev evaluation
	err = g.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		ev, err = g.decide(ctx, t, symbol, snap, mc, source)
		return err
	})
	return ev, err
}

func (g *Generator) decide(
	ctx context.Context,
	t *contracts.Thesis,
	symbol string,
	snap *contracts.PortfolioSnapshot,
	mc *contracts.MarketContext,
	source contracts.SignalSource,
) (evaluation, error) {
	now := g.now()
	base := contracts.SignalOutcome{ThesisID: t.ID, Symbol: symbol}

	// a thesis that left the entry statuses takes its pending opens with it
	if !t.Status.SupportsEntry() {
		if _, err := g.deps.Risk.CancelPendingOpen(ctx, t.ID, "thesis "+string(t.Status)); err != nil {
			return evaluation{}, err
		}
	}

	sel := SelectCandidate(t, symbol, snap)
	if sel.Path == PathNone {
		return g.suppress(ctx, base, sel.Gate, "", sel.Detail, source)
	}
	base.Action = sel.Action
	open := sel.Path == PathOpen

	size := sel.SizePct
	if open {
		if gr := EvaluateEntryGates(t, mc, g.cfg.Gates, now); !gr.Passed {
			return g.suppress(ctx, base, gr.Gate, "", gr.Detail, source)
		}

		limits, err := g.deps.Risk.LimitSet(ctx)
		if err != nil {
			return evaluation{}, err
		}
		size = PositionSize(t.Conviction, g.cfg.Sizing, limits)
	}
	base.SizePct = size

	sector := mc.Sector
	if sector == "" {
		if pos, ok := snap.PositionFor(symbol); ok {
			sector = pos.Sector
		}
	}

	decision, err := g.deps.Risk.Check(ctx, contracts.Candidate{
		ThesisID:   t.ID,
		Symbol:     symbol,
		Action:     sel.Action,
		SizePct:    size,
		Sector:     sector,
		InBlackout: mc.InBlackout,
	}, snap)
	if err != nil {
		return evaluation{}, err
	}
	if !decision.Approved {
		f := decision.Failure
		if f.Check == contracts.CheckKillSwitch && open {
			if _, err := g.deps.Risk.CancelPendingOpen(ctx, t.ID, f.Message); err != nil {
				return evaluation{}, err
			}
		}
		return g.suppress(ctx, base, contracts.GateRisk, f.LimitType, f.Check+": "+f.Message, source)
	}

	domain := t.Domain
	if domain == "" {
		domain = mc.Domain
	}
	matched, err := g.deps.Principles.Match(ctx, principles.ContextFor(t.Strategy, domain, sel.Action, source))
	if err != nil {
		return evaluation{}, err
	}
	winRate, err := g.deps.Principles.SourceWinRate(ctx, source)
	if err != nil {
		return evaluation{}, err
	}

	score := g.scorer.Score(scoring.Input{
		BaseConfidence: t.Conviction,
		ThesisStatus:   t.Status,
		Principles:     matched,
		Domain:         domain,
		Source:         source,
		SourceWinRate:  winRate,
	})
	confidence := math.Round(score.Final*10000) / 10000
	base.Confidence = confidence

	if open && (confidence <= 0 || confidence < g.cfg.Gates.MinConfidence) {
		return g.suppress(ctx, base, contracts.GateConfidenceFloor, "",
			fmt.Sprintf("confidence %.2f below floor %.2f", confidence, g.cfg.Gates.MinConfidence), source)
	}

	horizon := t.Horizon
	if horizon == "" {
		horizon = g.cfg.Signals.DefaultHorizon
	}

	sig := &contracts.Signal{
		Action:       sel.Action,
		Symbol:       strings.ToUpper(symbol),
		ThesisID:     t.ID,
		Confidence:   confidence,
		Source:       source,
		Horizon:      horizon,
		Reasoning:    Reasoning(t, strings.ToUpper(symbol), sel.Action, confidence),
		SizePct:      size,
		Status:       contracts.SignalPending,
		PrincipleIDs: score.AppliedPrincipleIDs,
	}

	result, err := g.upsertPending(ctx, sig, now)
	if err != nil {
		return evaluation{}, err
	}

	// the link set always mirrors the latest score, also when it shrank
	if err := g.deps.Signals.LinkPrinciples(ctx, sig.ID, sig.PrincipleIDs); err != nil {
		return evaluation{}, fmt.Errorf("failed to link principles: %w", err)
	}
	if len(sig.PrincipleIDs) > 0 {
		if err := g.deps.Principles.MarkApplied(ctx, sig.PrincipleIDs); err != nil {
			return evaluation{}, err
		}
	}

	action := contracts.AuditSignalCreated
	if result == contracts.OutcomeUpdated {
		action = contracts.AuditSignalUpdated
	}
	if _, err := g.deps.Audit.Record(ctx, contracts.AuditEvent{
		Actor:      contracts.ActorEngine,
		Action:     action,
		EntityType: contracts.EntitySignal,
		EntityID:   sig.ID,
		Details: map[string]interface{}{
			"thesis_id":      t.ID,
			"symbol":         sig.Symbol,
			"action":         sig.Action,
			"source":         source,
			"size_pct":       size,
			"score":          score,
			"skipped_checks": decision.SkippedChecks(),
			"config_hash":    g.configHash,
		},
	}); err != nil {
		return evaluation{}, err
	}

	if ok, reason := ShouldAutoApprove(sig, t.Status, snap.NAV, g.cfg.Approval); ok {
		if err := g.autoApprove(ctx, sig, reason); err != nil {
			return evaluation{}, err
		}
		base.AutoApproved = true
	}

	base.Result = result
	base.SignalID = sig.ID
	return evaluation{outcome: base, signal: sig}, nil
}

// suppress records a gate or risk failure. No signal is written.
func (g *Generator) suppress(
	ctx context.Context,
	out contracts.SignalOutcome,
	gate string,
	limitType contracts.LimitType,
	detail string,
	source contracts.SignalSource,
) (evaluation, error) {
	out.Result = contracts.OutcomeSuppressed
	out.Gate = gate
	out.LimitType = limitType
	out.Detail = detail

	details := map[string]interface{}{
		"symbol": out.Symbol,
		"gate":   gate,
		"detail": detail,
		"source": source,
	}
	if out.Action != "" {
		details["action"] = out.Action
	}
	if limitType != "" {
		details["limit_type"] = limitType
	}

	if _, err := g.deps.Audit.Record(ctx, contracts.AuditEvent{
		Actor:      contracts.ActorEngine,
		Action:     contracts.AuditSignalSuppressed,
		EntityType: contracts.EntityThesis,
		EntityID:   out.ThesisID,
		Details:    details,
	}); err != nil {
		return evaluation{}, err
	}

	g.logger.WithFields(map[string]interface{}{
		"thesis_id": out.ThesisID,
		"symbol":    out.Symbol,
		"gate":      gate,
	}).Debug("Signal suppressed")

	return evaluation{outcome: out}, nil
}

// upsertPending updates the symbol's pending row in place or inserts one.
// A conflict means another writer won the race: re-read and re-apply once.
func (g *Generator) upsertPending(ctx context.Context, sig *contracts.Signal, now time.Time) (contracts.OutcomeResult, error) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var existing *contracts.Signal
		existing, err = g.deps.Signals.FindPendingBySymbol(ctx, sig.Symbol)
		if err != nil {
			return "", fmt.Errorf("failed to read pending signal: %w", err)
		}

		sig.UpdatedAt = now
		if existing != nil {
			sig.ID = existing.ID
			sig.CreatedAt = existing.CreatedAt
			if err = g.deps.Signals.UpdatePending(ctx, sig); err == nil {
				return contracts.OutcomeUpdated, nil
			}
		} else {
			sig.ID = 0
			sig.CreatedAt = now
			if err = g.deps.Signals.Insert(ctx, sig); err == nil {
				return contracts.OutcomeCreated, nil
			}
		}

		if !errors.Is(err, contracts.ErrStoreConflict) {
			return "", err
		}
		g.deps.Metrics.ObserveConflict()
		g.logger.WithFields(map[string]interface{}{
			"symbol":  sig.Symbol,
			"attempt": attempt + 1,
		}).Warn("Pending signal conflict, re-reading")
	}
	return "", err
}

func (g *Generator) notify(ctx context.Context, sig *contracts.Signal) {
	if g.deps.Notifier == nil {
		return
	}
	if err := g.deps.Notifier.NotifyPending(ctx, sig); err != nil {
		g.logger.WithFields(map[string]interface{}{
			"signal_id": sig.ID,
			"symbol":    sig.Symbol,
		}).WithError(err).Warn("Failed to notify pending signal")
	}
}

// =============================================================================
// Scan
// =============================================================================

// ScanSummary is recorded in the scan_completed audit entry.
type ScanSummary struct {
	RunID      string `json:"run_id"`
	ConfigHash string `json:"config_hash"`
	Theses     int    `json:"theses"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Suppressed int    `json:"suppressed"`
	Failed     int    `json:"failed"`
}

// Scan evaluates every non-archived thesis in parallel (bounded by
// signals.scan_concurrency). A failing thesis does not stop the others; its
// error is joined into the returned error.
func (g *Generator) Scan(ctx context.Context) ([]contracts.SignalOutcome, error) {
	summary := ScanSummary{RunID: uuid.NewString(), ConfigHash: g.configHash}
	log := g.logger.WithField("run_id", summary.RunID)

	theses, err := g.deps.Theses.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list theses: %w", err)
	}

	var (
		mu       sync.Mutex
		outcomes []contracts.SignalOutcome
		errs     []error
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Signals.ScanConcurrency)

	for _, t := range theses {
		if t.Status == contracts.ThesisArchived {
			continue
		}
		summary.Theses++
		thesisID := t.ID
		eg.Go(func() error {
			out, err := g.EvaluateFrom(egCtx, thesisID, contracts.SourceScheduledScan)

			mu.Lock()
			defer mu.Unlock()
			outcomes = append(outcomes, out...)
			if err != nil {
				errs = append(errs, fmt.Errorf("thesis %d: %w", thesisID, err))
			}
			return nil
		})
	}
	_ = eg.Wait()

	for _, o := range outcomes {
		switch o.Result {
		case contracts.OutcomeCreated:
			summary.Created++
		case contracts.OutcomeUpdated:
			summary.Updated++
		case contracts.OutcomeSuppressed:
			summary.Suppressed++
		}
	}
	summary.Failed = len(errs)

	if _, err := g.deps.Audit.Record(ctx, contracts.AuditEvent{
		Actor:      contracts.ActorScheduler,
		Action:     contracts.AuditScanCompleted,
		EntityType: contracts.EntityScan,
		Details: map[string]interface{}{
			"run_id":      summary.RunID,
			"config_hash": summary.ConfigHash,
			"theses":      summary.Theses,
			"created":     summary.Created,
			"updated":     summary.Updated,
			"suppressed":  summary.Suppressed,
			"failed":      summary.Failed,
		},
	}); err != nil {
		errs = append(errs, err)
	}

	log.WithFields(map[string]interface{}{
		"theses":     summary.Theses,
		"created":    summary.Created,
		"updated":    summary.Updated,
		"suppressed": summary.Suppressed,
		"failed":     summary.Failed,
	}).Info("Signal scan completed")

	return outcomes, errors.Join(errs...)
}
