// Package memstore keeps every repository in process memory. It backs demo
// scans and unit tests and enforces the same conflict rules as Postgres.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/moves/backend/internal/contracts"
)

// Store owns all in-memory tables.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	// txMu serializes transactions so a rollback never discards another
	// transaction's writes.
	txMu sync.Mutex

	tables
}

// tables is everything a rollback restores.
type tables struct {
	theses        map[int64]*contracts.Thesis
	versions      map[int64][]*contracts.ThesisVersion
	signals       map[int64]*contracts.Signal
	signalLinks   map[int64][]int64
	limits        map[contracts.LimitType]contracts.RiskLimit
	killSwitch    contracts.KillSwitch
	audit         []*contracts.AuditEntry
	principles    map[int64]*contracts.Principle
	sourceStats   map[contracts.SignalSource]*contracts.SourceStats
	strategyStats map[contracts.Strategy]*contracts.StrategyStats
	whatIfs       map[int64]*contracts.WhatIf
	nextThesis    int64
	nextVersion   int64
	nextSignal    int64
	nextAudit     int64
	nextPrinciple int64
	nextWhatIf    int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		now: time.Now,
		tables: tables{
			theses:        make(map[int64]*contracts.Thesis),
			versions:      make(map[int64][]*contracts.ThesisVersion),
			signals:       make(map[int64]*contracts.Signal),
			signalLinks:   make(map[int64][]int64),
			limits:        make(map[contracts.LimitType]contracts.RiskLimit),
			principles:    make(map[int64]*contracts.Principle),
			sourceStats:   make(map[contracts.SignalSource]*contracts.SourceStats),
			strategyStats: make(map[contracts.Strategy]*contracts.StrategyStats),
			whatIfs:       make(map[int64]*contracts.WhatIf),
		},
	}
}

// SetClock overrides the timestamp source used for defaults.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

type txKey struct{}

// InTx runs fn as one unit: if fn returns an error (or panics) every table
// is put back as it was before fn ran. Transactions run one at a time and
// nested calls join the outer one. Writes made outside InTx while a
// transaction is open are lost if it rolls back.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, ok := ctx.Value(txKey{}).(*Store); ok && owner == s {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	saved := s.snapshot()
	committed := false
	defer func() {
		if !committed {
			s.restore(saved)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		return err
	}
	committed = true
	return nil
}

// snapshot deep-copies every table. Audit entries and thesis versions are
// never modified after they are appended, so their pointers are shared.
func (s *Store) snapshot() tables {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tables
	t.theses = make(map[int64]*contracts.Thesis, len(s.theses))
	for id, th := range s.theses {
		t.theses[id] = cloneThesis(th)
	}
	t.versions = make(map[int64][]*contracts.ThesisVersion, len(s.versions))
	for id, vs := range s.versions {
		t.versions[id] = append([]*contracts.ThesisVersion(nil), vs...)
	}
	t.signals = make(map[int64]*contracts.Signal, len(s.signals))
	for id, sig := range s.signals {
		t.signals[id] = cloneSignal(sig)
	}
	t.signalLinks = make(map[int64][]int64, len(s.signalLinks))
	for id, links := range s.signalLinks {
		t.signalLinks[id] = append([]int64(nil), links...)
	}
	t.limits = make(map[contracts.LimitType]contracts.RiskLimit, len(s.limits))
	for lt, l := range s.limits {
		t.limits[lt] = l
	}
	t.audit = append([]*contracts.AuditEntry(nil), s.audit...)
	t.principles = make(map[int64]*contracts.Principle, len(s.principles))
	for id, p := range s.principles {
		c := *p
		t.principles[id] = &c
	}
	t.sourceStats = make(map[contracts.SignalSource]*contracts.SourceStats, len(s.sourceStats))
	for src, st := range s.sourceStats {
		c := *st
		t.sourceStats[src] = &c
	}
	t.strategyStats = make(map[contracts.Strategy]*contracts.StrategyStats, len(s.strategyStats))
	for strat, st := range s.strategyStats {
		c := *st
		t.strategyStats[strat] = &c
	}
	t.whatIfs = make(map[int64]*contracts.WhatIf, len(s.whatIfs))
	for id, w := range s.whatIfs {
		c := *w
		t.whatIfs[id] = &c
	}
	return t
}

func (s *Store) restore(t tables) {
	s.mu.Lock()
	s.tables = t
	s.mu.Unlock()
}

// Theses returns the thesis repository view.
func (s *Store) Theses() *ThesisRepo { return &ThesisRepo{s: s} }

// Signals returns the signal repository view.
func (s *Store) Signals() *SignalRepo { return &SignalRepo{s: s} }

// Risk returns the risk repository view.
func (s *Store) Risk() *RiskRepo { return &RiskRepo{s: s} }

// Audit returns the audit repository view.
func (s *Store) Audit() *AuditRepo { return &AuditRepo{s: s} }

// Principles returns the principle repository view.
func (s *Store) Principles() *PrincipleRepo { return &PrincipleRepo{s: s} }

// SourceStats returns the source stats repository view.
func (s *Store) SourceStats() *SourceStatsRepo { return &SourceStatsRepo{s: s} }

// WhatIfs returns the what-if repository view.
func (s *Store) WhatIfs() *WhatIfRepo { return &WhatIfRepo{s: s} }

var (
	_ contracts.TxRunner              = (*Store)(nil)
	_ contracts.ThesisRepository      = (*ThesisRepo)(nil)
	_ contracts.SignalRepository      = (*SignalRepo)(nil)
	_ contracts.RiskRepository        = (*RiskRepo)(nil)
	_ contracts.AuditRepository       = (*AuditRepo)(nil)
	_ contracts.PrincipleRepository   = (*PrincipleRepo)(nil)
	_ contracts.SourceStatsRepository = (*SourceStatsRepo)(nil)
	_ contracts.WhatIfRepository      = (*WhatIfRepo)(nil)
)
