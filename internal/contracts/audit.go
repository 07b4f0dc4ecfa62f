package contracts

import (
	"encoding/json"
	"time"
)

// Actor identifies who caused an audited decision
type Actor string

const (
	ActorEngine    Actor = "engine"
	ActorUser      Actor = "user"
	ActorScheduler Actor = "scheduler"
	ActorRisk      Actor = "risk"
)

// Audit actions
// ⭐ SSOT: every decision point writes exactly one of these
const (
	AuditThesisCreated       = "thesis_created"
	AuditThesisUpdated       = "thesis_updated"
	AuditThesisStatusChanged = "thesis_status_changed"
	AuditThesisSymbolsAdded  = "thesis_symbols_added"
	AuditResearchRecorded    = "research_session_recorded"

	AuditSignalCreated      = "signal_created"
	AuditSignalUpdated      = "signal_updated"
	AuditSignalSuppressed   = "signal_suppressed"
	AuditSignalDecided      = "signal_decided"
	AuditSignalExpired      = "signal_expired"
	AuditSignalCancelled    = "signal_cancelled"
	AuditSignalOutcome      = "signal_outcome_recorded"
	AuditSignalModified     = "signal_modified"
	AuditSignalAutoApproved = "signal_auto_approved"
	AuditWhatIfRecorded     = "what_if_recorded"

	AuditKillSwitchChecked     = "kill_switch_checked"
	AuditKillSwitchActivated   = "kill_switch_activated"
	AuditKillSwitchDeactivated = "kill_switch_deactivated"
	AuditRiskCheckPassed       = "risk_check_passed"
	AuditRiskCheckFailed       = "risk_check_failed"
	AuditRiskLimitChanged      = "risk_limit_changed"

	AuditPrincipleCreated     = "principle_created"
	AuditPrincipleValidated   = "principle_validated"
	AuditPrincipleInvalidated = "principle_invalidated"
	AuditPrincipleDeactivated = "principle_deactivated"
	AuditPrincipleReweighted  = "principle_reweighted"

	AuditScanCompleted = "scan_completed"
)

// Entity types referenced by audit entries.
const (
	EntityThesis     = "thesis"
	EntitySignal     = "signal"
	EntityRisk       = "risk"
	EntityPrinciple  = "principle"
	EntityKillSwitch = "kill_switch"
	EntityScan       = "scan"
)

// AuditEntry is one append-only row of the decision log
type AuditEntry struct {
	ID         int64           `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	Actor      Actor           `json:"actor"`
	Action     string          `json:"action"`
	Details    json.RawMessage `json:"details"`
	EntityType string          `json:"entity_type"`
	EntityID   *int64          `json:"entity_id,omitempty"`
	CorrectsID *int64          `json:"corrects_id,omitempty"`
}

// AuditEvent is what callers hand to the recorder.
type AuditEvent struct {
	Actor      Actor
	Action     string
	EntityType string
	EntityID   int64 // 0 = none
	Details    map[string]interface{}
}
