package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/pkg/logger"
)

// Recorder is the append-only sink of decision events
// ⭐ SSOT: every gate outcome, risk check, state transition and decision
// is written through Record.
type Recorder struct {
	repo   contracts.AuditRepository
	logger *logger.Logger
}

// NewRecorder creates a recorder over repo.
func NewRecorder(repo contracts.AuditRepository, log *logger.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: log.WithComponent("audit"),
	}
}

// Record appends one entry for ev.
func (r *Recorder) Record(ctx context.Context, ev contracts.AuditEvent) (*contracts.AuditEntry, error) {
	entry, err := newEntry(ev)
	if err != nil {
		return nil, err
	}

	if err := r.repo.Append(ctx, entry); err != nil {
		r.logger.WithFields(map[string]interface{}{
			"action":      ev.Action,
			"entity_type": ev.EntityType,
			"entity_id":   ev.EntityID,
		}).WithError(err).Error("Failed to append audit entry")
		return nil, fmt.Errorf("failed to record %s: %w", ev.Action, err)
	}

	r.logger.WithFields(map[string]interface{}{
		"audit_id":    entry.ID,
		"action":      entry.Action,
		"actor":       entry.Actor,
		"entity_type": entry.EntityType,
		"entity_id":   ev.EntityID,
	}).Debug("Audit entry recorded")

	return entry, nil
}

// Correct appends an entry that references originalID. The original is
// never modified.
func (r *Recorder) Correct(ctx context.Context, originalID int64, ev contracts.AuditEvent) (*contracts.AuditEntry, error) {
	if _, err := r.repo.Get(ctx, originalID); err != nil {
		return nil, fmt.Errorf("failed to load corrected entry %d: %w", originalID, err)
	}

	entry, err := newEntry(ev)
	if err != nil {
		return nil, err
	}
	entry.CorrectsID = &originalID

	if err := r.repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record correction of %d: %w", originalID, err)
	}
	return entry, nil
}

// ByEntity returns the history of one entity.
func (r *Recorder) ByEntity(ctx context.Context, entityType string, entityID int64) ([]*contracts.AuditEntry, error) {
	return r.repo.ByEntity(ctx, entityType, entityID)
}

// Recent returns the newest entries first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]*contracts.AuditEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return r.repo.Recent(ctx, limit)
}

func newEntry(ev contracts.AuditEvent) (*contracts.AuditEntry, error) {
	if ev.Action == "" {
		return nil, fmt.Errorf("%w: audit action is required", contracts.ErrInvalidInput)
	}
	if ev.Actor == "" {
		ev.Actor = contracts.ActorEngine
	}

	details := ev.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit details: %w", err)
	}

	entry := &contracts.AuditEntry{
		Actor:      ev.Actor,
		Action:     ev.Action,
		Details:    raw,
		EntityType: ev.EntityType,
	}
	if ev.EntityID != 0 {
		id := ev.EntityID
		entry.EntityID = &id
	}
	return entry, nil
}
