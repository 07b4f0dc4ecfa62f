package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/pkg/logger"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// statusFor maps the error taxonomy onto HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, contracts.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, contracts.ErrStoreConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, contracts.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, contracts.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, contracts.ErrConfiguration):
		return http.StatusInternalServerError, "configuration"
	}
	return http.StatusInternalServerError, "internal"
}

// respondErr writes err with its mapped status. 5xx are logged with the
// cause; the client only sees a generic message for unclassified errors.
func respondErr(w http.ResponseWriter, log *logger.Logger, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status >= 500 {
		log.WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Error("Request failed")
		if code == "internal" {
			msg = "internal server error"
		}
	}
	respondJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", contracts.ErrInvalidInput, name, raw)
	}
	return id, nil
}

// decodeBody reads a JSON body strictly: unknown fields and trailing data
// are rejected.
func decodeBody(r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", contracts.ErrInvalidInput, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", contracts.ErrInvalidInput)
	}
	return nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", contracts.ErrInvalidInput, name, raw)
	}
	return v, nil
}
