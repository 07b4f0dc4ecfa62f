package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/moves/backend/internal/contracts"
)

// SignalRepo implements contracts.SignalRepository with the same partial
// uniqueness rule as uq_signals_pending_symbol.
type SignalRepo struct{ s *Store }

func cloneSignal(sig *contracts.Signal) *contracts.Signal {
	c := *sig
	c.PrincipleIDs = append([]int64(nil), sig.PrincipleIDs...)
	return &c
}

func (r *SignalRepo) Get(ctx context.Context, id int64) (*contracts.Signal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sig, ok := r.s.signals[id]
	if !ok {
		return nil, fmt.Errorf("signal %d: %w", id, contracts.ErrNotFound)
	}
	return cloneSignal(sig), nil
}

func (r *SignalRepo) pendingFor(symbol string) *contracts.Signal {
	for _, sig := range r.s.signals {
		if sig.Symbol == symbol && sig.Status == contracts.SignalPending {
			return sig
		}
	}
	return nil
}

func (r *SignalRepo) FindPendingBySymbol(ctx context.Context, symbol string) (*contracts.Signal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if sig := r.pendingFor(symbol); sig != nil {
		return cloneSignal(sig), nil
	}
	return nil, nil
}

func (r *SignalRepo) Insert(ctx context.Context, sig *contracts.Signal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if sig.Status == contracts.SignalPending && r.pendingFor(sig.Symbol) != nil {
		return fmt.Errorf("pending signal for %s already exists: %w", sig.Symbol, contracts.ErrStoreConflict)
	}

	r.s.nextSignal++
	sig.ID = r.s.nextSignal
	now := r.s.now()
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = now
	}
	if sig.UpdatedAt.IsZero() {
		sig.UpdatedAt = sig.CreatedAt
	}
	r.s.signals[sig.ID] = cloneSignal(sig)
	return nil
}

func (r *SignalRepo) UpdatePending(ctx context.Context, sig *contracts.Signal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.signals[sig.ID]
	if !ok || cur.Status != contracts.SignalPending {
		return fmt.Errorf("signal %d is no longer pending: %w", sig.ID, contracts.ErrStoreConflict)
	}

	next := cloneSignal(sig)
	next.Status = contracts.SignalPending
	next.CreatedAt = cur.CreatedAt
	r.s.signals[sig.ID] = next
	return nil
}

func (r *SignalRepo) TransitionStatus(ctx context.Context, id int64, from, to contracts.SignalStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.signals[id]
	if !ok {
		return fmt.Errorf("signal %d: %w", id, contracts.ErrNotFound)
	}
	if cur.Status != from {
		return fmt.Errorf("signal %d status is %s, expected %s: %w", id, cur.Status, from, contracts.ErrStoreConflict)
	}

	cur.Status = to
	cur.UpdatedAt = at
	if to == contracts.SignalExpired {
		cur.ExpiredAt = &at
	} else {
		cur.DecidedAt = &at
	}
	return nil
}

func (r *SignalRepo) collect(keep func(*contracts.Signal) bool) []*contracts.Signal {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*contracts.Signal
	for _, sig := range r.s.signals {
		if keep(sig) {
			out = append(out, cloneSignal(sig))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *SignalRepo) ListByStatus(ctx context.Context, status contracts.SignalStatus) ([]*contracts.Signal, error) {
	return r.collect(func(s *contracts.Signal) bool { return s.Status == status }), nil
}

func (r *SignalRepo) ListPendingByThesis(ctx context.Context, thesisID int64) ([]*contracts.Signal, error) {
	return r.collect(func(s *contracts.Signal) bool {
		return s.Status == contracts.SignalPending && s.ThesisID == thesisID
	}), nil
}

func (r *SignalRepo) ListPendingUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*contracts.Signal, error) {
	return r.collect(func(s *contracts.Signal) bool {
		return s.Status == contracts.SignalPending && !s.UpdatedAt.After(cutoff)
	}), nil
}

func (r *SignalRepo) LinkPrinciples(ctx context.Context, signalID int64, principleIDs []int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if len(principleIDs) == 0 {
		delete(r.s.signalLinks, signalID)
		return nil
	}

	seen := make(map[int64]bool, len(principleIDs))
	links := make([]int64, 0, len(principleIDs))
	for _, id := range principleIDs {
		if !seen[id] {
			links = append(links, id)
			seen[id] = true
		}
	}
	sort.Slice(links, func(i, j int) bool { return links[i] < links[j] })
	r.s.signalLinks[signalID] = links
	return nil
}

func (r *SignalRepo) PrincipleIDs(ctx context.Context, signalID int64) ([]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]int64(nil), r.s.signalLinks[signalID]...), nil
}

// CountPending is a test helper: pending rows for symbol.
func (r *SignalRepo) CountPending(symbol string) int {
	return len(r.collect(func(s *contracts.Signal) bool {
		return s.Status == contracts.SignalPending && s.Symbol == symbol
	}))
}
