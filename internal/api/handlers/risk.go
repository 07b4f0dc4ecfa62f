package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/risk"
	"github.com/wonny/moves/backend/pkg/logger"
)

// RiskHandler exposes the limit table and the kill switch
type RiskHandler struct {
	risk   *risk.Manager
	logger *logger.Logger
}

// NewRiskHandler creates a new risk handler
func NewRiskHandler(m *risk.Manager, log *logger.Logger) *RiskHandler {
	return &RiskHandler{risk: m, logger: log}
}

// Limits returns every stored limit
// GET /api/risk/limits
func (h *RiskHandler) Limits(w http.ResponseWriter, r *http.Request) {
	limits, err := h.risk.Limits(r.Context())
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	if limits == nil {
		limits = []contracts.RiskLimit{}
	}
	respondJSON(w, http.StatusOK, limits)
}

// LimitRequest is the body of PUT /api/risk/limits/{type}.
type LimitRequest struct {
	Value   float64 `json:"value"`
	Floor   float64 `json:"floor"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// SetLimit changes one limit. Enabled defaults to true.
// PUT /api/risk/limits/{type}
func (h *RiskHandler) SetLimit(w http.ResponseWriter, r *http.Request) {
	lt, err := contracts.ParseLimitType(mux.Vars(r)["type"])
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	var req LimitRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	limit := contracts.RiskLimit{Type: lt, Value: req.Value, Floor: req.Floor, Enabled: true}
	if req.Enabled != nil {
		limit.Enabled = *req.Enabled
	}

	if err := h.risk.SetLimit(r.Context(), limit, contracts.ActorUser); err != nil {
		// a rejected user value is a bad request, not a broken table
		if errors.Is(err, contracts.ErrConfiguration) {
			respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "configuration"})
			return
		}
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, limit)
}

// KillSwitch returns the kill switch row
// GET /api/risk/killswitch
func (h *RiskHandler) KillSwitch(w http.ResponseWriter, r *http.Request) {
	ks, err := h.risk.KillSwitch(r.Context())
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ks)
}

// ActivateRequest is the body of POST /api/risk/killswitch.
type ActivateRequest struct {
	Reason string `json:"reason"`
}

// ActivateResponse reports the switch and the signals it cancelled.
type ActivateResponse struct {
	KillSwitch *contracts.KillSwitch `json:"kill_switch"`
	Cancelled  []int64               `json:"cancelled"`
}

// Activate halts opening trades and cancels pending BUY/SHORT signals
// POST /api/risk/killswitch
func (h *RiskHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	ks, cancelled, err := h.risk.ActivateKillSwitch(r.Context(), req.Reason, contracts.ActorUser)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	if cancelled == nil {
		cancelled = []int64{}
	}
	respondJSON(w, http.StatusOK, ActivateResponse{KillSwitch: ks, Cancelled: cancelled})
}

// Deactivate lifts the kill switch
// DELETE /api/risk/killswitch
func (h *RiskHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ks, err := h.risk.DeactivateKillSwitch(r.Context(), contracts.ActorUser)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ks)
}
