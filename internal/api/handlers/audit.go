package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/moves/backend/internal/audit"
	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/pkg/logger"
)

// AuditHandler reads the decision log and appends corrections. Nothing here
// edits an existing entry.
type AuditHandler struct {
	audit  *audit.Recorder
	logger *logger.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(rec *audit.Recorder, log *logger.Logger) *AuditHandler {
	return &AuditHandler{audit: rec, logger: log}
}

// Recent returns the newest entries
// GET /api/audit?limit=
func (h *AuditHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	entries, err := h.audit.Recent(r.Context(), limit)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondEntries(w, entries)
}

// ByEntity returns the history of one entity
// GET /api/audit/{entity}/{id}
func (h *AuditHandler) ByEntity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	entries, err := h.audit.ByEntity(r.Context(), mux.Vars(r)["entity"], id)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondEntries(w, entries)
}

// CorrectionRequest is the body of POST /api/audit/{id}/corrections.
type CorrectionRequest struct {
	Reason  string                 `json:"reason"`
	Details map[string]interface{} `json:"details"`
}

// Correct appends an entry that references the one it corrects
// POST /api/audit/{id}/corrections
func (h *AuditHandler) Correct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	var req CorrectionRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	if req.Reason == "" {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "reason is required", Code: "invalid_input"})
		return
	}

	details := req.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	details["reason"] = req.Reason

	entry, err := h.audit.Correct(r.Context(), id, contracts.AuditEvent{
		Actor:   contracts.ActorUser,
		Action:  "correction",
		Details: details,
	})
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func respondEntries(w http.ResponseWriter, entries []*contracts.AuditEntry) {
	if entries == nil {
		entries = []*contracts.AuditEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}
