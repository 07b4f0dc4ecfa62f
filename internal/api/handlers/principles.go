package handlers

import (
	"net/http"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/principles"
	"github.com/wonny/moves/backend/pkg/logger"
)

// PrincipleHandler serves the principle ledger and source accuracy
type PrincipleHandler struct {
	ledger *principles.Ledger
	logger *logger.Logger
}

// NewPrincipleHandler creates a new principle handler
func NewPrincipleHandler(ledger *principles.Ledger, log *logger.Logger) *PrincipleHandler {
	return &PrincipleHandler{ledger: ledger, logger: log}
}

// List returns principles; ?all=true includes inactive ones
// GET /api/principles
func (h *PrincipleHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"

	list, err := h.ledger.List(r.Context(), activeOnly)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	if list == nil {
		list = []*contracts.Principle{}
	}
	respondJSON(w, http.StatusOK, list)
}

// Create adds a principle
// POST /api/principles
func (h *PrincipleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in principles.Input
	if err := decodeBody(r, &in); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	p, err := h.ledger.Create(r.Context(), in)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// DeactivateRequest is the optional body of POST /api/principles/{id}/deactivate.
type DeactivateRequest struct {
	Reason string `json:"reason"`
}

// Deactivate retires a principle
// POST /api/principles/{id}/deactivate
func (h *PrincipleHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	var req DeactivateRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			respondErr(w, h.logger, r, err)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	p, err := h.ledger.Deactivate(r.Context(), id, contracts.ActorUser, req.Reason)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Sources returns realized accuracy per signal source
// GET /api/sources
func (h *PrincipleHandler) Sources(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.SourceStats(r.Context())
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	if stats == nil {
		stats = []*contracts.SourceStats{}
	}
	respondJSON(w, http.StatusOK, stats)
}

// Patterns lists sources and strategies with an outlier track record
// GET /api/principles/patterns
func (h *PrincipleHandler) Patterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := h.ledger.DiscoverPatterns(r.Context())
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	if patterns == nil {
		patterns = []contracts.Pattern{}
	}
	respondJSON(w, http.StatusOK, patterns)
}
