// Package principles keeps the ledger of learned trading rules and the
// per-source accuracy history. Both feed the confidence scorer and both
// learn from realized signal outcomes.
package principles

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/wonny/moves/backend/internal/audit"
	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/pkg/logger"
)

// Weight bounds and learning constants.
const (
	DefaultWeight = 0.05
	MinWeight     = 0.01
	MaxWeight     = 0.20

	// a principle needs this many outcomes before its weight moves
	minSamplesForReweight = 3
	reweightSensitivity   = 0.2

	// a track record becomes a pattern past these bounds
	minSamplesForPattern = 5
	strongWinRate        = 0.7
	weakWinRate          = 0.3
)

// Categories that always apply to a signal; "domain" applies only when the
// signal carries a domain.
const (
	CategoryConviction = "conviction"
	CategoryRisk       = "risk"
	CategoryDomain     = "domain"
)

// Input creates a principle.
type Input struct {
	Text      string                       `json:"text"`
	Condition contracts.PrincipleCondition `json:"condition"`
	Weight    float64                      `json:"weight"` // 0 = DefaultWeight
}

// MatchContext describes the signal being scored.
type MatchContext struct {
	Categories []string
	Domain     string
	Action     contracts.SignalAction
	Source     contracts.SignalSource
}

// ContextFor builds the match context the generator uses for one candidate.
func ContextFor(strategy contracts.Strategy, domain string, action contracts.SignalAction, source contracts.SignalSource) MatchContext {
	cats := []string{CategoryConviction, CategoryRisk, string(strategy)}
	if domain != "" {
		cats = append(cats, CategoryDomain)
	}
	return MatchContext{Categories: cats, Domain: domain, Action: action, Source: source}
}

// Matches reports whether every non-empty condition field agrees with mc.
func Matches(cond contracts.PrincipleCondition, mc MatchContext) bool {
	if cond.Category != "" {
		found := false
		for _, c := range mc.Categories {
			if strings.EqualFold(c, cond.Category) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if cond.Domain != "" && !strings.EqualFold(cond.Domain, mc.Domain) {
		return false
	}
	if cond.Action != "" && cond.Action != mc.Action {
		return false
	}
	if cond.Source != "" && cond.Source != mc.Source {
		return false
	}
	return true
}

// ShouldDeactivate is true once invalidations outnumber validations two to
// one, with more than two invalidations.
func ShouldDeactivate(p *contracts.Principle) bool {
	return p.InvalidatedCount > 2*p.ValidatedCount && p.InvalidatedCount > 2
}

// Reweight returns the learned weight, or the current weight when there are
// too few samples.
func Reweight(p *contracts.Principle) float64 {
	n := p.Samples()
	if n < minSamplesForReweight {
		return p.Weight
	}
	winRate := float64(p.ValidatedCount) / float64(n)
	factor := 1.0 + (winRate-0.5)*reweightSensitivity
	w := math.Max(MinWeight, math.Min(MaxWeight, p.Weight*factor))
	return math.Round(w*10000) / 10000
}

// =============================================================================
// Ledger
// =============================================================================

// Ledger manages principles and source accuracy
type Ledger struct {
	repo   contracts.PrincipleRepository
	stats  contracts.SourceStatsRepository
	tx     contracts.TxRunner
	audit  *audit.Recorder
	logger *logger.Logger
	now    func() time.Time
}

// NewLedger creates a principle ledger.
func NewLedger(
	repo contracts.PrincipleRepository,
	stats contracts.SourceStatsRepository,
	tx contracts.TxRunner,
	rec *audit.Recorder,
	log *logger.Logger,
) *Ledger {
	return &Ledger{
		repo:   repo,
		stats:  stats,
		tx:     tx,
		audit:  rec,
		logger: log.WithComponent("principles"),
		now:    time.Now,
	}
}

// WithClock overrides the time source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Create adds an active principle.
func (l *Ledger) Create(ctx context.Context, in Input) (*contracts.Principle, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: principle text is required", contracts.ErrInvalidInput)
	}
	weight := in.Weight
	if weight == 0 {
		weight = DefaultWeight
	}
	if math.IsNaN(weight) || weight < MinWeight || weight > MaxWeight {
		return nil, fmt.Errorf("%w: weight %.4f outside [%.2f, %.2f]", contracts.ErrInvalidInput, weight, MinWeight, MaxWeight)
	}
	if in.Condition.Action != "" {
		switch in.Condition.Action {
		case contracts.ActionBuy, contracts.ActionSell, contracts.ActionShort, contracts.ActionCover:
		default:
			return nil, fmt.Errorf("%w: unknown action %q", contracts.ErrInvalidInput, in.Condition.Action)
		}
	}
	if in.Condition.Source != "" {
		if _, err := contracts.ParseSignalSource(string(in.Condition.Source)); err != nil {
			return nil, err
		}
	}

	p := &contracts.Principle{
		Text:      text,
		Condition: in.Condition,
		Weight:    weight,
		Active:    true,
		CreatedAt: l.now(),
	}

	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		if err := l.repo.Create(ctx, p); err != nil {
			return fmt.Errorf("failed to create principle: %w", err)
		}
		_, err := l.audit.Record(ctx, contracts.AuditEvent{
			Actor:      contracts.ActorUser,
			Action:     contracts.AuditPrincipleCreated,
			EntityType: contracts.EntityPrinciple,
			EntityID:   p.ID,
			Details: map[string]interface{}{
				"text":      p.Text,
				"condition": p.Condition,
				"weight":    p.Weight,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns one principle.
func (l *Ledger) Get(ctx context.Context, id int64) (*contracts.Principle, error) {
	return l.repo.Get(ctx, id)
}

// List returns principles ordered by id.
func (l *Ledger) List(ctx context.Context, activeOnly bool) ([]*contracts.Principle, error) {
	ps, err := l.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list principles: %w", err)
	}
	return ps, nil
}

// Match returns the active principles that apply to mc.
func (l *Ledger) Match(ctx context.Context, mc MatchContext) ([]*contracts.Principle, error) {
	active, err := l.List(ctx, true)
	if err != nil {
		return nil, err
	}
	var out []*contracts.Principle
	for _, p := range active {
		if Matches(p.Condition, mc) {
			out = append(out, p)
		}
	}
	return out, nil
}

// MarkApplied stamps LastApplied on the principles used for a signal.
func (l *Ledger) MarkApplied(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := l.repo.MarkApplied(ctx, ids, l.now()); err != nil {
		return fmt.Errorf("failed to mark principles applied: %w", err)
	}
	return nil
}

// Deactivate turns a principle off by hand.
func (l *Ledger) Deactivate(ctx context.Context, id int64, actor contracts.Actor, reason string) (*contracts.Principle, error) {
	var p *contracts.Principle
	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = l.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if !p.Active {
			return nil
		}
		return l.deactivate(ctx, p, actor, reason)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (l *Ledger) deactivate(ctx context.Context, p *contracts.Principle, actor contracts.Actor, reason string) error {
	p.Active = false
	if err := l.repo.Update(ctx, p); err != nil {
		return fmt.Errorf("failed to deactivate principle %d: %w", p.ID, err)
	}
	_, err := l.audit.Record(ctx, contracts.AuditEvent{
		Actor:      actor,
		Action:     contracts.AuditPrincipleDeactivated,
		EntityType: contracts.EntityPrinciple,
		EntityID:   p.ID,
		Details: map[string]interface{}{
			"reason":            reason,
			"validated_count":   p.ValidatedCount,
			"invalidated_count": p.InvalidatedCount,
		},
	})
	return err
}

// =============================================================================
// Learning
// =============================================================================

// OutcomeResult is what one principle learned from one signal outcome.
type OutcomeResult struct {
	PrincipleID int64 `json:"principle_id"`
	Validated   bool  `json:"validated"`
	Deactivated bool  `json:"deactivated"`
}

// RecordOutcome validates (win) or invalidates (loss) each principle that
// contributed to a signal. A principle with a poor record is deactivated.
func (l *Ledger) RecordOutcome(ctx context.Context, signalID int64, principleIDs []int64, win bool) ([]OutcomeResult, error) {
	var results []OutcomeResult

	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		for _, id := range principleIDs {
			p, err := l.repo.Get(ctx, id)
			if err != nil {
				return err
			}

			action := contracts.AuditPrincipleInvalidated
			if win {
				p.ValidatedCount++
				action = contracts.AuditPrincipleValidated
			} else {
				p.InvalidatedCount++
			}
			now := l.now()
			p.LastApplied = &now

			if err := l.repo.Update(ctx, p); err != nil {
				return fmt.Errorf("failed to update principle %d: %w", id, err)
			}
			if _, err := l.audit.Record(ctx, contracts.AuditEvent{
				Actor:      contracts.ActorEngine,
				Action:     action,
				EntityType: contracts.EntityPrinciple,
				EntityID:   id,
				Details:    map[string]interface{}{"signal_id": signalID},
			}); err != nil {
				return err
			}

			res := OutcomeResult{PrincipleID: id, Validated: win}
			if !win && p.Active && ShouldDeactivate(p) {
				if err := l.deactivate(ctx, p, contracts.ActorEngine, "poor track record"); err != nil {
					return err
				}
				res.Deactivated = true
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// WeightChange reports one reweighted principle.
type WeightChange struct {
	PrincipleID int64   `json:"principle_id"`
	OldWeight   float64 `json:"old_weight"`
	NewWeight   float64 `json:"new_weight"`
}

// AdjustWeights moves each active principle's weight toward its win rate.
func (l *Ledger) AdjustWeights(ctx context.Context) ([]WeightChange, error) {
	var changes []WeightChange

	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		active, err := l.List(ctx, true)
		if err != nil {
			return err
		}
		for _, p := range active {
			w := Reweight(p)
			if w == p.Weight {
				continue
			}
			change := WeightChange{PrincipleID: p.ID, OldWeight: p.Weight, NewWeight: w}
			p.Weight = w
			if err := l.repo.Update(ctx, p); err != nil {
				return fmt.Errorf("failed to reweight principle %d: %w", p.ID, err)
			}
			if _, err := l.audit.Record(ctx, contracts.AuditEvent{
				Actor:      contracts.ActorScheduler,
				Action:     contracts.AuditPrincipleReweighted,
				EntityType: contracts.EntityPrinciple,
				EntityID:   p.ID,
				Details: map[string]interface{}{
					"old_weight": change.OldWeight,
					"new_weight": change.NewWeight,
					"samples":    p.Samples(),
				},
			}); err != nil {
				return err
			}
			changes = append(changes, change)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		l.logger.WithField("changed", len(changes)).Info("Principle weights adjusted")
	}
	return changes, nil
}

// =============================================================================
// Source accuracy
// =============================================================================

// SourceWinRate returns the realized win rate of a source, nil without
// history.
func (l *Ledger) SourceWinRate(ctx context.Context, source contracts.SignalSource) (*float64, error) {
	st, err := l.stats.Get(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to read source stats: %w", err)
	}
	return st.WinRate(), nil
}

// SourceStats lists every tracked source.
func (l *Ledger) SourceStats(ctx context.Context) ([]*contracts.SourceStats, error) {
	return l.stats.List(ctx)
}

// RecordSourceOutcome folds one realized return into a source's history.
func (l *Ledger) RecordSourceOutcome(ctx context.Context, source contracts.SignalSource, returnPct float64) (*contracts.SourceStats, error) {
	if math.IsNaN(returnPct) || math.IsInf(returnPct, 0) {
		return nil, fmt.Errorf("%w: return is not a finite number", contracts.ErrInvalidInput)
	}
	st, err := l.stats.RecordOutcome(ctx, source, returnPct, l.now())
	if err != nil {
		return nil, fmt.Errorf("failed to record source outcome: %w", err)
	}
	return st, nil
}

// RecordStrategyOutcome folds one realized return into a strategy's history.
func (l *Ledger) RecordStrategyOutcome(ctx context.Context, strategy contracts.Strategy, returnPct float64) (*contracts.StrategyStats, error) {
	if math.IsNaN(returnPct) || math.IsInf(returnPct, 0) {
		return nil, fmt.Errorf("%w: return is not a finite number", contracts.ErrInvalidInput)
	}
	st, err := l.stats.RecordStrategyOutcome(ctx, strategy, returnPct, l.now())
	if err != nil {
		return nil, fmt.Errorf("failed to record strategy outcome: %w", err)
	}
	return st, nil
}

// =============================================================================
// Pattern discovery
// =============================================================================

// DiscoverPatterns reports sources and strategies whose realized win rate
// is far enough from a coin flip, over enough samples, to be worth a
// principle. It only reports; creating the principle is a human call.
func (l *Ledger) DiscoverPatterns(ctx context.Context) ([]contracts.Pattern, error) {
	sources, err := l.stats.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read source stats: %w", err)
	}
	strategies, err := l.stats.ListStrategies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy stats: %w", err)
	}

	var out []contracts.Pattern
	for _, st := range sources {
		if p, ok := patternFor(contracts.PatternSourcePerformance, "source", string(st.Source), st.Total, st.WinRate()); ok {
			out = append(out, p)
		}
	}
	for _, st := range strategies {
		if p, ok := patternFor(contracts.PatternStrategyPerformance, "strategy", string(st.Strategy), st.Total, st.WinRate()); ok {
			out = append(out, p)
		}
	}

	// strongest signal first
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].WinRate-0.5) > math.Abs(out[j].WinRate-0.5)
	})
	return out, nil
}

func patternFor(kind, noun, subject string, total int, rate *float64) (contracts.Pattern, bool) {
	if rate == nil || total < minSamplesForPattern {
		return contracts.Pattern{}, false
	}
	var desc string
	switch {
	case *rate > strongWinRate:
		desc = fmt.Sprintf("%s %s wins %.0f%% of %d outcomes", noun, subject, *rate*100, total)
	case *rate < weakWinRate:
		desc = fmt.Sprintf("%s %s loses %.0f%% of %d outcomes", noun, subject, (1-*rate)*100, total)
	default:
		return contracts.Pattern{}, false
	}
	return contracts.Pattern{
		Type:        kind,
		Subject:     subject,
		Description: desc,
		WinRate:     *rate,
		SampleSize:  total,
	}, true
}
