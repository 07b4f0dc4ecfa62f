package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/moves/backend/internal/contracts"
)

// ThesisRepo implements contracts.ThesisRepository.
type ThesisRepo struct{ s *Store }

func cloneThesis(t *contracts.Thesis) *contracts.Thesis {
	c := *t
	c.Symbols = append([]string(nil), t.Symbols...)
	return &c
}

func (r *ThesisRepo) Create(ctx context.Context, t *contracts.Thesis) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextThesis++
	t.ID = r.s.nextThesis
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.s.now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	r.s.theses[t.ID] = cloneThesis(t)
	return nil
}

func (r *ThesisRepo) Get(ctx context.Context, id int64) (*contracts.Thesis, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.theses[id]
	if !ok {
		return nil, fmt.Errorf("thesis %d: %w", id, contracts.ErrNotFound)
	}
	return cloneThesis(t), nil
}

func (r *ThesisRepo) List(ctx context.Context, status *contracts.ThesisStatus) ([]*contracts.Thesis, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*contracts.Thesis, 0, len(r.s.theses))
	for _, t := range r.s.theses {
		if status != nil && t.Status != *status {
			continue
		}
		out = append(out, cloneThesis(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ThesisRepo) Update(ctx context.Context, t *contracts.Thesis) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.theses[t.ID]
	if !ok {
		return fmt.Errorf("thesis %d: %w", t.ID, contracts.ErrNotFound)
	}
	next := cloneThesis(t)
	next.Status = cur.Status
	next.ResearchSessions = cur.ResearchSessions
	next.CreatedAt = cur.CreatedAt
	r.s.theses[t.ID] = next
	return nil
}

func (r *ThesisRepo) IncrementResearchSessions(ctx context.Context, id int64, at time.Time) (*contracts.Thesis, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.theses[id]
	if !ok {
		return nil, fmt.Errorf("thesis %d: %w", id, contracts.ErrNotFound)
	}
	cur.ResearchSessions++
	cur.UpdatedAt = at
	return cloneThesis(cur), nil
}

func (r *ThesisRepo) UpdateStatus(ctx context.Context, id int64, from, to contracts.ThesisStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.theses[id]
	if !ok {
		return fmt.Errorf("thesis %d: %w", id, contracts.ErrNotFound)
	}
	if cur.Status != from {
		return fmt.Errorf("thesis %d status is %s, expected %s: %w", id, cur.Status, from, contracts.ErrStoreConflict)
	}
	cur.Status = to
	cur.UpdatedAt = at
	return nil
}

func (r *ThesisRepo) AppendVersion(ctx context.Context, v *contracts.ThesisVersion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextVersion++
	v.ID = r.s.nextVersion
	if v.CreatedAt.IsZero() {
		v.CreatedAt = r.s.now()
	}
	c := *v
	r.s.versions[v.ThesisID] = append(r.s.versions[v.ThesisID], &c)
	return nil
}

func (r *ThesisRepo) Versions(ctx context.Context, thesisID int64) ([]*contracts.ThesisVersion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*contracts.ThesisVersion, 0, len(r.s.versions[thesisID]))
	for _, v := range r.s.versions[thesisID] {
		c := *v
		out = append(out, &c)
	}
	return out, nil
}
