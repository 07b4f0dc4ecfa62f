package thesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/moves/backend/internal/audit"
	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/pkg/logger"
)

const defaultConviction = 0.5

// Service owns thesis ingest and the status state machine
// ⭐ SSOT: thesis status is changed through UpdateStatus only
type Service struct {
	repo   contracts.ThesisRepository
	tx     contracts.TxRunner
	audit  *audit.Recorder
	logger *logger.Logger
	now    func() time.Time
}

// NewService creates a thesis service.
func NewService(repo contracts.ThesisRepository, tx contracts.TxRunner, rec *audit.Recorder, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		tx:     tx,
		audit:  rec,
		logger: log.WithComponent("thesis"),
		now:    time.Now,
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ============================================================================
// Ingest
// ============================================================================

// Create ingests a new thesis in status active and writes the initial
// version row.
func (s *Service) Create(ctx context.Context, in contracts.ThesisInput) (*contracts.Thesis, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: thesis title is required", contracts.ErrInvalidInput)
	}

	strategy, err := contracts.ParseStrategy(in.Strategy)
	if err != nil {
		return nil, err
	}

	conviction := defaultConviction
	if in.Conviction != nil {
		conviction = *in.Conviction
	}
	if err := contracts.ValidateConviction(conviction); err != nil {
		return nil, err
	}

	now := s.now()
	t := &contracts.Thesis{
		Title:              title,
		Body:               in.Body,
		Strategy:           strategy,
		Status:             contracts.ThesisActive,
		Symbols:            contracts.NormalizeSymbols(in.Symbols),
		ValidationCriteria: in.ValidationCriteria,
		FailureCriteria:    in.FailureCriteria,
		Horizon:            in.Horizon,
		Conviction:         conviction,
		Domain:             in.Domain,
		SourceModule:       in.SourceModule,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, t); err != nil {
			return fmt.Errorf("failed to create thesis: %w", err)
		}

		if err := s.repo.AppendVersion(ctx, &contracts.ThesisVersion{
			ThesisID:  t.ID,
			NewStatus: contracts.ThesisActive,
			Reason:    "Created",
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("failed to write initial version: %w", err)
		}

		_, err := s.audit.Record(ctx, contracts.AuditEvent{
			Actor:      contracts.ActorUser,
			Action:     contracts.AuditThesisCreated,
			EntityType: contracts.EntityThesis,
			EntityID:   t.ID,
			Details: map[string]interface{}{
				"title":      t.Title,
				"strategy":   t.Strategy,
				"symbols":    t.Symbols,
				"conviction": t.Conviction,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"thesis_id": t.ID,
		"symbols":   t.Symbols,
	}).Info("Thesis created")

	return t, nil
}

// Get returns one thesis.
func (s *Service) Get(ctx context.Context, id int64) (*contracts.Thesis, error) {
	return s.repo.Get(ctx, id)
}

// List returns theses, optionally filtered by status.
func (s *Service) List(ctx context.Context, status *contracts.ThesisStatus) ([]*contracts.Thesis, error) {
	return s.repo.List(ctx, status)
}

// Versions returns the status history of a thesis.
func (s *Service) Versions(ctx context.Context, id int64) ([]*contracts.ThesisVersion, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Versions(ctx, id)
}

// ============================================================================
// Field updates
// ============================================================================

// Update changes non-status fields.
func (s *Service) Update(ctx context.Context, id int64, upd contracts.ThesisUpdate) (*contracts.Thesis, error) {
	if upd.Conviction != nil {
		if err := contracts.ValidateConviction(*upd.Conviction); err != nil {
			return nil, err
		}
	}

	var updated *contracts.Thesis
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}

		changed := map[string]interface{}{}
		setString := func(field string, dst *string, v *string) {
			if v != nil && *v != *dst {
				*dst = *v
				changed[field] = *v
			}
		}
		setString("title", &t.Title, upd.Title)
		setString("body", &t.Body, upd.Body)
		setString("validation_criteria", &t.ValidationCriteria, upd.ValidationCriteria)
		setString("failure_criteria", &t.FailureCriteria, upd.FailureCriteria)
		setString("horizon", &t.Horizon, upd.Horizon)
		setString("domain", &t.Domain, upd.Domain)
		if upd.Conviction != nil && *upd.Conviction != t.Conviction {
			changed["conviction"] = map[string]float64{"old": t.Conviction, "new": *upd.Conviction}
			t.Conviction = *upd.Conviction
		}

		updated = t
		if len(changed) == 0 {
			return nil
		}

		t.UpdatedAt = s.now()
		if err := s.repo.Update(ctx, t); err != nil {
			return fmt.Errorf("failed to update thesis: %w", err)
		}

		_, err = s.audit.Record(ctx, contracts.AuditEvent{
			Actor:      contracts.ActorUser,
			Action:     contracts.AuditThesisUpdated,
			EntityType: contracts.EntityThesis,
			EntityID:   id,
			Details:    changed,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AddSymbols unions symbols into the thesis, preserving order.
func (s *Service) AddSymbols(ctx context.Context, id int64, symbols []string) (*contracts.Thesis, error) {
	var updated *contracts.Thesis
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}

		merged := contracts.NormalizeSymbols(append(append([]string{}, t.Symbols...), symbols...))
		added := merged[len(t.Symbols):]
		updated = t
		if len(added) == 0 {
			return nil
		}

		t.Symbols = merged
		t.UpdatedAt = s.now()
		if err := s.repo.Update(ctx, t); err != nil {
			return fmt.Errorf("failed to add symbols: %w", err)
		}

		_, err = s.audit.Record(ctx, contracts.AuditEvent{
			Actor:      contracts.ActorUser,
			Action:     contracts.AuditThesisSymbolsAdded,
			EntityType: contracts.EntityThesis,
			EntityID:   id,
			Details:    map[string]interface{}{"added": added},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RecordResearchSession counts one more research pass over the thesis.
func (s *Service) RecordResearchSession(ctx context.Context, id int64, note string) (*contracts.Thesis, error) {
	var updated *contracts.Thesis
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := s.repo.IncrementResearchSessions(ctx, id, s.now())
		if err != nil {
			return err
		}
		updated = t

		_, err = s.audit.Record(ctx, contracts.AuditEvent{
			Actor:      contracts.ActorUser,
			Action:     contracts.AuditResearchRecorded,
			EntityType: contracts.EntityThesis,
			EntityID:   id,
			Details: map[string]interface{}{
				"sessions": t.ResearchSessions,
				"note":     note,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ============================================================================
// State machine
// ============================================================================

// UpdateStatus moves a thesis along the transition table. The status and
// its version row are written in one transaction; an illegal move returns
// a *contracts.TransitionError and leaves the thesis unchanged.
func (s *Service) UpdateStatus(ctx context.Context, id int64, to contracts.ThesisStatus, reason, evidence string) (*contracts.Thesis, error) {
	if _, err := contracts.ParseThesisStatus(string(to)); err != nil {
		return nil, err
	}

	var updated *contracts.Thesis
	var from contracts.ThesisStatus
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		from = t.Status

		if err := checkTransition(id, from, to); err != nil {
			return err
		}

		now := s.now()
		if err := s.repo.UpdateStatus(ctx, id, from, to, now); err != nil {
			return fmt.Errorf("failed to update thesis status: %w", err)
		}

		old := from
		if err := s.repo.AppendVersion(ctx, &contracts.ThesisVersion{
			ThesisID:  id,
			OldStatus: &old,
			NewStatus: to,
			Reason:    reason,
			Evidence:  evidence,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("failed to write thesis version: %w", err)
		}

		if _, err := s.audit.Record(ctx, contracts.AuditEvent{
			Actor:      contracts.ActorUser,
			Action:     contracts.AuditThesisStatusChanged,
			EntityType: contracts.EntityThesis,
			EntityID:   id,
			Details: map[string]interface{}{
				"old_status": from,
				"new_status": to,
				"reason":     reason,
			},
		}); err != nil {
			return err
		}

		t.Status = to
		t.UpdatedAt = now
		updated = t
		return nil
	})
	if err != nil {
		if errors.Is(err, contracts.ErrInvalidTransition) {
			s.logger.WithFields(map[string]interface{}{
				"thesis_id": id,
				"from":      from,
				"to":        to,
			}).Warn("Rejected thesis status transition")
		}
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"thesis_id": id,
		"from":      from,
		"to":        to,
	}).Info("Thesis status changed")

	return updated, nil
}
