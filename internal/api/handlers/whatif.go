package handlers

import (
	"net/http"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/signals"
	"github.com/wonny/moves/backend/pkg/logger"
)

// WhatIfHandler serves the record of passed signals
type WhatIfHandler struct {
	tracker *signals.WhatIfTracker
	logger  *logger.Logger
}

// NewWhatIfHandler creates a new what-if handler
func NewWhatIfHandler(t *signals.WhatIfTracker, log *logger.Logger) *WhatIfHandler {
	return &WhatIfHandler{tracker: t, logger: log}
}

// List returns tracked passes, optionally ?decision=rejected|ignored|expired
// GET /api/whatif
func (h *WhatIfHandler) List(w http.ResponseWriter, r *http.Request) {
	var decision *contracts.SignalStatus
	if raw := r.URL.Query().Get("decision"); raw != "" {
		d, err := contracts.ParsePassDecision(raw)
		if err != nil {
			respondErr(w, h.logger, r, err)
			return
		}
		decision = &d
	}

	list, err := h.tracker.List(r.Context(), decision)
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	if list == nil {
		list = []*contracts.WhatIf{}
	}
	respondJSON(w, http.StatusOK, list)
}

// RefreshResponse reports how many records were re-priced.
type RefreshResponse struct {
	Updated int `json:"updated"`
}

// Refresh marks every tracked pass to the current price
// POST /api/whatif/refresh
func (h *WhatIfHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	n, err := h.tracker.Refresh(r.Context())
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, RefreshResponse{Updated: n})
}

// Summary grades past passes
// GET /api/whatif/summary
func (h *WhatIfHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.tracker.Summary(r.Context())
	if err != nil {
		respondErr(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}
