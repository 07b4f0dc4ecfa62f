package handlers

import (
	"net/http"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/signals"
	"github.com/wonny/moves/backend/internal/thesis"
	"github.com/wonny/moves/backend/pkg/logger"
)

// ThesisHandler serves thesis ingest and status changes
// ⭐ SSOT: thesis API handlers live in this struct only
type ThesisHandler struct {
	theses    *thesis.Service
	generator *signals.Generator
	logger    *logger.Logger
}

// NewThesisHandler creates a new thesis handler
func NewThesisHandler(svc *thesis.Service, gen *signals.Generator, log *logger.Logger) *ThesisHandler {
	return &ThesisHandler{theses: svc, generator: gen, logger: log}
}

// Create ingests a thesis
// POST /api/theses
func (h *ThesisHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in contracts.ThesisInput
	if err := decodeBody(r, &in); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	t, err := h.theses.Create(r.Context(), in)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

// List returns theses, optionally filtered by ?status=
// GET /api/theses
func (h *ThesisHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter *contracts.ThesisStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := contracts.ParseThesisStatus(raw)
		if err != nil {
			respondErr(w, h.logger, r, err)
			return
		}
		filter = &st
	}

	list, err := h.theses.List(r.Context(), filter)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	if list == nil {
		list = []*contracts.Thesis{}
	}
	respondJSON(w, http.StatusOK, list)
}

// Get returns one thesis
// GET /api/theses/{id}
func (h *ThesisHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	t, err := h.theses.Get(r.Context(), id)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// Update changes non-status fields
// PATCH /api/theses/{id}
func (h *ThesisHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	var upd contracts.ThesisUpdate
	if err := decodeBody(r, &upd); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	t, err := h.theses.Update(r.Context(), id, upd)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// AddSymbolsRequest is the body of POST /api/theses/{id}/symbols.
type AddSymbolsRequest struct {
	Symbols []string `json:"symbols"`
}

// AddSymbols widens a thesis
// POST /api/theses/{id}/symbols
func (h *ThesisHandler) AddSymbols(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	var req AddSymbolsRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	t, err := h.theses.AddSymbols(r.Context(), id, req.Symbols)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// ResearchRequest is the body of POST /api/theses/{id}/research.
type ResearchRequest struct {
	Note string `json:"note"`
}

// RecordResearch counts a research session
// POST /api/theses/{id}/research
func (h *ThesisHandler) RecordResearch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	var req ResearchRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	t, err := h.theses.RecordResearchSession(r.Context(), id, req.Note)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// StatusRequest is the body of POST /api/theses/{id}/status.
type StatusRequest struct {
	Status   string `json:"status"`
	Reason   string `json:"reason"`
	Evidence string `json:"evidence"`
}

// StatusResponse carries the moved thesis and the signal evaluation that
// followed it.
type StatusResponse struct {
	Thesis          *contracts.Thesis         `json:"thesis"`
	Outcomes        []contracts.SignalOutcome `json:"outcomes"`
	EvaluationError string                    `json:"evaluation_error,omitempty"`
}

// UpdateStatus moves a thesis through its state machine, then re-evaluates
// its symbols so exits are raised without waiting for the next scan.
// POST /api/theses/{id}/status
func (h *ThesisHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	var req StatusRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	to, err := contracts.ParseThesisStatus(req.Status)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	t, err := h.theses.UpdateStatus(r.Context(), id, to, req.Reason, req.Evidence)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	resp := StatusResponse{Thesis: t, Outcomes: []contracts.SignalOutcome{}}
	outcomes, err := h.generator.Evaluate(r.Context(), id)
	if err != nil {
		// the status change is committed; report the evaluation failure
		h.logger.WithField("thesis_id", id).WithError(err).Error("Evaluation after status change failed")
		resp.EvaluationError = err.Error()
	}
	if outcomes != nil {
		resp.Outcomes = outcomes
	}
	respondJSON(w, http.StatusOK, resp)
}

// Versions returns the status history
// GET /api/theses/{id}/versions
func (h *ThesisHandler) Versions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	versions, err := h.theses.Versions(r.Context(), id)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, versions)
}

// Evaluate runs the signal pipeline for one thesis on demand
// POST /api/theses/{id}/evaluate
func (h *ThesisHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	outcomes, err := h.generator.EvaluateFrom(r.Context(), id, contracts.SourceManual)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, outcomes)
}
