package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: repository interfaces are defined here only.
// Implementations: Postgres (internal/*/repository.go) and in-memory
// (internal/store/memstore). Every method honors a transaction carried in ctx.

// ThesisRepository persists theses and their version history
type ThesisRepository interface {
	Create(ctx context.Context, t *Thesis) error
	Get(ctx context.Context, id int64) (*Thesis, error)
	List(ctx context.Context, status *ThesisStatus) ([]*Thesis, error)
	// Update writes every field except status and research sessions.
	Update(ctx context.Context, t *Thesis) error
	// IncrementResearchSessions adds one session atomically and returns the
	// stored thesis.
	IncrementResearchSessions(ctx context.Context, id int64, at time.Time) (*Thesis, error)
	// UpdateStatus moves id from → to only if the stored status is still
	// from; otherwise ErrStoreConflict.
	UpdateStatus(ctx context.Context, id int64, from, to ThesisStatus, at time.Time) error
	AppendVersion(ctx context.Context, v *ThesisVersion) error
	Versions(ctx context.Context, thesisID int64) ([]*ThesisVersion, error)
}

// SignalRepository persists signals
type SignalRepository interface {
	Get(ctx context.Context, id int64) (*Signal, error)
	// FindPendingBySymbol returns (nil, nil) when no pending signal exists.
	FindPendingBySymbol(ctx context.Context, symbol string) (*Signal, error)
	// Insert fails with ErrStoreConflict when a pending row for the
	// symbol already exists.
	Insert(ctx context.Context, s *Signal) error
	// UpdatePending rewrites a row that is still pending; ErrStoreConflict
	// when it is not.
	UpdatePending(ctx context.Context, s *Signal) error
	// TransitionStatus is a compare-and-set on status; ErrStoreConflict when
	// the stored status is no longer from.
	TransitionStatus(ctx context.Context, id int64, from, to SignalStatus, at time.Time) error
	ListByStatus(ctx context.Context, status SignalStatus) ([]*Signal, error)
	ListPendingByThesis(ctx context.Context, thesisID int64) ([]*Signal, error)
	ListPendingUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*Signal, error)
	// LinkPrinciples replaces the principle links of a signal with
	// principleIDs. An empty slice clears them.
	LinkPrinciples(ctx context.Context, signalID int64, principleIDs []int64) error
	PrincipleIDs(ctx context.Context, signalID int64) ([]int64, error)
}

// RiskRepository persists the limit table and the kill switch row
type RiskRepository interface {
	Limits(ctx context.Context) ([]RiskLimit, error)
	UpsertLimit(ctx context.Context, l RiskLimit) error
	KillSwitch(ctx context.Context) (*KillSwitch, error)
	SaveKillSwitch(ctx context.Context, ks *KillSwitch) error
}

// AuditRepository is append-only: no update or delete exists.
type AuditRepository interface {
	Append(ctx context.Context, e *AuditEntry) error
	Get(ctx context.Context, id int64) (*AuditEntry, error)
	ByEntity(ctx context.Context, entityType string, entityID int64) ([]*AuditEntry, error)
	Recent(ctx context.Context, limit int) ([]*AuditEntry, error)
}

// PrincipleRepository persists principles
type PrincipleRepository interface {
	Create(ctx context.Context, p *Principle) error
	Get(ctx context.Context, id int64) (*Principle, error)
	List(ctx context.Context, activeOnly bool) ([]*Principle, error)
	Update(ctx context.Context, p *Principle) error
	MarkApplied(ctx context.Context, ids []int64, at time.Time) error
}

// SourceStatsRepository tracks accuracy per signal source
type SourceStatsRepository interface {
	// Get returns (nil, nil) when the source has no history.
	Get(ctx context.Context, source SignalSource) (*SourceStats, error)
	List(ctx context.Context) ([]*SourceStats, error)
	// RecordOutcome atomically folds one realized return into the stats.
	RecordOutcome(ctx context.Context, source SignalSource, returnPct float64, at time.Time) (*SourceStats, error)
	// RecordStrategyOutcome does the same per thesis strategy.
	RecordStrategyOutcome(ctx context.Context, strategy Strategy, returnPct float64, at time.Time) (*StrategyStats, error)
	ListStrategies(ctx context.Context) ([]*StrategyStats, error)
}

// WhatIfRepository tracks passed signals
type WhatIfRepository interface {
	// Record fails with ErrStoreConflict when the signal is already tracked.
	Record(ctx context.Context, w *WhatIf) error
	// List returns every record, newest first; decision filters when set.
	List(ctx context.Context, decision *SignalStatus) ([]*WhatIf, error)
	UpdatePrice(ctx context.Context, id int64, currentPrice, pnl, pnlPct float64, at time.Time) error
}
