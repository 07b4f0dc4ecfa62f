package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/moves/backend/internal/contracts"
)

// ============================================================================
// Risk
// ============================================================================

// RiskRepo implements contracts.RiskRepository.
type RiskRepo struct{ s *Store }

func (r *RiskRepo) Limits(ctx context.Context) ([]contracts.RiskLimit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]contracts.RiskLimit, 0, len(r.s.limits))
	for _, l := range r.s.limits {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (r *RiskRepo) UpsertLimit(ctx context.Context, l contracts.RiskLimit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = r.s.now()
	}
	r.s.limits[l.Type] = l
	return nil
}

// DeleteLimit removes a limit row; used to exercise the missing-limit path.
func (r *RiskRepo) DeleteLimit(lt contracts.LimitType) {
	r.s.mu.Lock()
	delete(r.s.limits, lt)
	r.s.mu.Unlock()
}

func (r *RiskRepo) KillSwitch(ctx context.Context) (*contracts.KillSwitch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ks := r.s.killSwitch
	return &ks, nil
}

func (r *RiskRepo) SaveKillSwitch(ctx context.Context, ks *contracts.KillSwitch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.killSwitch = *ks
	return nil
}

// ============================================================================
// Audit
// ============================================================================

// AuditRepo implements contracts.AuditRepository. Append-only.
type AuditRepo struct{ s *Store }

func (r *AuditRepo) Append(ctx context.Context, e *contracts.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextAudit++
	e.ID = r.s.nextAudit
	e.CreatedAt = r.s.now()
	c := *e
	r.s.audit = append(r.s.audit, &c)
	return nil
}

func (r *AuditRepo) Get(ctx context.Context, id int64) (*contracts.AuditEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, e := range r.s.audit {
		if e.ID == id {
			c := *e
			return &c, nil
		}
	}
	return nil, fmt.Errorf("audit entry %d: %w", id, contracts.ErrNotFound)
}

func (r *AuditRepo) ByEntity(ctx context.Context, entityType string, entityID int64) ([]*contracts.AuditEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*contracts.AuditEntry
	for _, e := range r.s.audit {
		if e.EntityType == entityType && e.EntityID != nil && *e.EntityID == entityID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *AuditRepo) Recent(ctx context.Context, limit int) ([]*contracts.AuditEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*contracts.AuditEntry
	for i := len(r.s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		c := *r.s.audit[i]
		out = append(out, &c)
	}
	return out, nil
}

// Actions is a test helper listing every recorded action in order.
func (r *AuditRepo) Actions() []string {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]string, 0, len(r.s.audit))
	for _, e := range r.s.audit {
		out = append(out, e.Action)
	}
	return out
}

// ============================================================================
// Principles
// ============================================================================

// PrincipleRepo implements contracts.PrincipleRepository.
type PrincipleRepo struct{ s *Store }

func (r *PrincipleRepo) Create(ctx context.Context, p *contracts.Principle) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextPrinciple++
	p.ID = r.s.nextPrinciple
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.s.now()
	}
	c := *p
	r.s.principles[p.ID] = &c
	return nil
}

func (r *PrincipleRepo) Get(ctx context.Context, id int64) (*contracts.Principle, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.principles[id]
	if !ok {
		return nil, fmt.Errorf("principle %d: %w", id, contracts.ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (r *PrincipleRepo) List(ctx context.Context, activeOnly bool) ([]*contracts.Principle, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*contracts.Principle
	for _, p := range r.s.principles {
		if activeOnly && !p.Active {
			continue
		}
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *PrincipleRepo) Update(ctx context.Context, p *contracts.Principle) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.principles[p.ID]; !ok {
		return fmt.Errorf("principle %d: %w", p.ID, contracts.ErrNotFound)
	}
	c := *p
	r.s.principles[p.ID] = &c
	return nil
}

func (r *PrincipleRepo) MarkApplied(ctx context.Context, ids []int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, id := range ids {
		if p, ok := r.s.principles[id]; ok {
			t := at
			p.LastApplied = &t
		}
	}
	return nil
}

// ============================================================================
// Source stats
// ============================================================================

// SourceStatsRepo implements contracts.SourceStatsRepository.
type SourceStatsRepo struct{ s *Store }

func (r *SourceStatsRepo) Get(ctx context.Context, source contracts.SignalSource) (*contracts.SourceStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	st, ok := r.s.sourceStats[source]
	if !ok {
		return nil, nil
	}
	c := *st
	return &c, nil
}

func (r *SourceStatsRepo) List(ctx context.Context) ([]*contracts.SourceStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*contracts.SourceStats, 0, len(r.s.sourceStats))
	for _, st := range r.s.sourceStats {
		c := *st
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func (r *SourceStatsRepo) RecordOutcome(ctx context.Context, source contracts.SignalSource, returnPct float64, at time.Time) (*contracts.SourceStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	st, ok := r.s.sourceStats[source]
	if !ok {
		st = &contracts.SourceStats{Source: source}
		r.s.sourceStats[source] = st
	}
	if returnPct > 0 {
		st.Wins++
	} else {
		st.Losses++
	}
	st.Total++
	st.AvgReturn += (returnPct - st.AvgReturn) / float64(st.Total)
	st.UpdatedAt = at

	c := *st
	return &c, nil
}

func (r *SourceStatsRepo) RecordStrategyOutcome(ctx context.Context, strategy contracts.Strategy, returnPct float64, at time.Time) (*contracts.StrategyStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	st, ok := r.s.strategyStats[strategy]
	if !ok {
		st = &contracts.StrategyStats{Strategy: strategy}
		r.s.strategyStats[strategy] = st
	}
	if returnPct > 0 {
		st.Wins++
	} else {
		st.Losses++
	}
	st.Total++
	st.AvgReturn += (returnPct - st.AvgReturn) / float64(st.Total)
	st.UpdatedAt = at

	c := *st
	return &c, nil
}

func (r *SourceStatsRepo) ListStrategies(ctx context.Context) ([]*contracts.StrategyStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*contracts.StrategyStats, 0, len(r.s.strategyStats))
	for _, st := range r.s.strategyStats {
		c := *st
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out, nil
}

// ============================================================================
// What-if
// ============================================================================

// WhatIfRepo implements contracts.WhatIfRepository. One record per signal.
type WhatIfRepo struct{ s *Store }

func (r *WhatIfRepo) Record(ctx context.Context, w *contracts.WhatIf) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, cur := range r.s.whatIfs {
		if cur.SignalID == w.SignalID {
			return fmt.Errorf("what-if for signal %d: %w", w.SignalID, contracts.ErrStoreConflict)
		}
	}
	r.s.nextWhatIf++
	w.ID = r.s.nextWhatIf
	if w.CreatedAt.IsZero() {
		w.CreatedAt = r.s.now()
	}
	w.UpdatedAt = w.CreatedAt
	c := *w
	r.s.whatIfs[w.ID] = &c
	return nil
}

func (r *WhatIfRepo) List(ctx context.Context, decision *contracts.SignalStatus) ([]*contracts.WhatIf, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*contracts.WhatIf
	for _, w := range r.s.whatIfs {
		if decision != nil && w.Decision != *decision {
			continue
		}
		c := *w
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *WhatIfRepo) UpdatePrice(ctx context.Context, id int64, currentPrice, pnl, pnlPct float64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	w, ok := r.s.whatIfs[id]
	if !ok {
		return fmt.Errorf("what-if %d: %w", id, contracts.ErrNotFound)
	}
	w.CurrentPrice = &currentPrice
	w.HypotheticalPnL = &pnl
	w.HypotheticalPnLPct = &pnlPct
	w.UpdatedAt = at
	return nil
}
