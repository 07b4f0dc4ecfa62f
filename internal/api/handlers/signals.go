package handlers

import (
	"net/http"
	"time"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/signals"
	"github.com/wonny/moves/backend/pkg/logger"
)

// SignalHandler serves the signal review queue
type SignalHandler struct {
	generator *signals.Generator
	lifecycle *signals.Lifecycle
	logger    *logger.Logger
	now       func() time.Time
}

// NewSignalHandler creates a new signal handler
func NewSignalHandler(gen *signals.Generator, lc *signals.Lifecycle, log *logger.Logger) *SignalHandler {
	return &SignalHandler{generator: gen, lifecycle: lc, logger: log, now: time.Now}
}

var signalStatuses = map[string]contracts.SignalStatus{
	string(contracts.SignalPending):   contracts.SignalPending,
	string(contracts.SignalApproved):  contracts.SignalApproved,
	string(contracts.SignalRejected):  contracts.SignalRejected,
	string(contracts.SignalIgnored):   contracts.SignalIgnored,
	string(contracts.SignalExpired):   contracts.SignalExpired,
	string(contracts.SignalCancelled): contracts.SignalCancelled,
	string(contracts.SignalExecuted):  contracts.SignalExecuted,
}

// List returns signals by ?status= (default pending)
// GET /api/signals
func (h *SignalHandler) List(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		raw = string(contracts.SignalPending)
	}
	status, ok := signalStatuses[raw]
	if !ok {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unknown signal status: " + raw, Code: "invalid_input"})
		return
	}

	list, err := h.lifecycle.ByStatus(r.Context(), status)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	if list == nil {
		list = []*contracts.Signal{}
	}
	respondJSON(w, http.StatusOK, list)
}

// Get returns one signal with its linked principles
// GET /api/signals/{id}
func (h *SignalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	sig, err := h.lifecycle.Get(r.Context(), id)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sig)
}

// DecisionRequest is the body of POST /api/signals/{id}/decision.
type DecisionRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`
}

// Decide applies a user decision (approve, reject, ignore, cancel, execute)
// POST /api/signals/{id}/decision
func (h *SignalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	var req DecisionRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}

	sig, err := h.lifecycle.Decide(r.Context(), id, contracts.Decision(req.Decision), req.Note)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sig)
}

// OutcomeRequest is the body of POST /api/signals/{id}/outcome.
type OutcomeRequest struct {
	ReturnPct *float64 `json:"return_pct"`
}

// RecordOutcome feeds a realized return back into the learning loop
// POST /api/signals/{id}/outcome
func (h *SignalHandler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	var req OutcomeRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	if req.ReturnPct == nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "return_pct is required", Code: "invalid_input"})
		return
	}

	report, err := h.lifecycle.RecordOutcome(r.Context(), id, *req.ReturnPct)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// ScanResponse is returned by POST /api/signals/scan.
type ScanResponse struct {
	Outcomes []contracts.SignalOutcome `json:"outcomes"`
	Error    string                    `json:"error,omitempty"`
}

// Scan evaluates every thesis now. Per-thesis failures are reported next to
// the outcomes that did succeed.
// POST /api/signals/scan
func (h *SignalHandler) Scan(w http.ResponseWriter, r *http.Request) {
	outcomes, err := h.generator.Scan(r.Context())
	resp := ScanResponse{Outcomes: outcomes}
	if resp.Outcomes == nil {
		resp.Outcomes = []contracts.SignalOutcome{}
	}
	if err != nil {
		h.logger.WithError(err).Warn("Manual scan finished with errors")
		resp.Error = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

// ExpireResponse lists the signals a sweep expired.
type ExpireResponse struct {
	Expired []int64 `json:"expired"`
}

// Expire runs the stale-signal sweep now
// POST /api/signals/expire
func (h *SignalHandler) Expire(w http.ResponseWriter, r *http.Request) {
	ids, err := h.lifecycle.ExpireStale(r.Context(), h.now())
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	respondJSON(w, http.StatusOK, ExpireResponse{Expired: ids})
}

// ModifySizeRequest is the body of PATCH /api/signals/{id}/size.
type ModifySizeRequest struct {
	SizePct *float64 `json:"size_pct"`
	Note    string   `json:"note"`
}

// ModifySizeResponse carries the signal as stored and the risk decision on
// the requested size.
type ModifySizeResponse struct {
	Signal *contracts.Signal       `json:"signal"`
	Risk   *contracts.RiskDecision `json:"risk"`
}

// ModifySize overrides the size of a pending signal after a fresh risk
// check. A failed check answers 422 and leaves the signal as it was.
// PATCH /api/signals/{id}/size
func (h *SignalHandler) ModifySize(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	var req ModifySizeRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	if req.SizePct == nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "size_pct is required", Code: "invalid_input"})
		return
	}

	sig, decision, err := h.generator.ModifySize(r.Context(), id, *req.SizePct, req.Note)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	status := http.StatusOK
	if !decision.Approved {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, ModifySizeResponse{Signal: sig, Risk: decision})
}
