package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/moves/backend/internal/api/handlers"
	"github.com/wonny/moves/backend/internal/metrics"
	"github.com/wonny/moves/backend/pkg/logger"
)

// Handlers bundles every endpoint group.
type Handlers struct {
	Theses     *handlers.ThesisHandler
	Signals    *handlers.SignalHandler
	Risk       *handlers.RiskHandler
	Audit      *handlers.AuditHandler
	Principles *handlers.PrincipleHandler
	WhatIf     *handlers.WhatIfHandler
}

// HealthFunc reports whether the backing store is reachable. nil means
// nothing to check (in-memory store).
type HealthFunc func(ctx context.Context) error

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: routes are registered in this function only
func NewRouter(h Handlers, reg *metrics.Registry, health HealthFunc, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthCheckHandler(health)).Methods("GET")
	if reg != nil {
		r.Handle("/metrics", reg.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Theses
	api.HandleFunc("/theses", h.Theses.Create).Methods("POST")
	api.HandleFunc("/theses", h.Theses.List).Methods("GET")
	api.HandleFunc("/theses/{id:[0-9]+}", h.Theses.Get).Methods("GET")
	api.HandleFunc("/theses/{id:[0-9]+}", h.Theses.Update).Methods("PATCH")
	api.HandleFunc("/theses/{id:[0-9]+}/symbols", h.Theses.AddSymbols).Methods("POST")
	api.HandleFunc("/theses/{id:[0-9]+}/research", h.Theses.RecordResearch).Methods("POST")
	api.HandleFunc("/theses/{id:[0-9]+}/status", h.Theses.UpdateStatus).Methods("POST")
	api.HandleFunc("/theses/{id:[0-9]+}/versions", h.Theses.Versions).Methods("GET")
	api.HandleFunc("/theses/{id:[0-9]+}/evaluate", h.Theses.Evaluate).Methods("POST")

	// Signals
	api.HandleFunc("/signals", h.Signals.List).Methods("GET")
	api.HandleFunc("/signals/scan", h.Signals.Scan).Methods("POST")
	api.HandleFunc("/signals/expire", h.Signals.Expire).Methods("POST")
	api.HandleFunc("/signals/{id:[0-9]+}", h.Signals.Get).Methods("GET")
	api.HandleFunc("/signals/{id:[0-9]+}/decision", h.Signals.Decide).Methods("POST")
	api.HandleFunc("/signals/{id:[0-9]+}/size", h.Signals.ModifySize).Methods("PATCH")
	api.HandleFunc("/signals/{id:[0-9]+}/outcome", h.Signals.RecordOutcome).Methods("POST")

	// Risk
	api.HandleFunc("/risk/limits", h.Risk.Limits).Methods("GET")
	api.HandleFunc("/risk/limits/{type}", h.Risk.SetLimit).Methods("PUT")
	api.HandleFunc("/risk/killswitch", h.Risk.KillSwitch).Methods("GET")
	api.HandleFunc("/risk/killswitch", h.Risk.Activate).Methods("POST")
	api.HandleFunc("/risk/killswitch", h.Risk.Deactivate).Methods("DELETE")

	// Audit
	api.HandleFunc("/audit", h.Audit.Recent).Methods("GET")
	api.HandleFunc("/audit/{id:[0-9]+}/corrections", h.Audit.Correct).Methods("POST")
	api.HandleFunc("/audit/{entity:[a-z_]+}/{id:[0-9]+}", h.Audit.ByEntity).Methods("GET")

	// Principles and source accuracy
	api.HandleFunc("/principles", h.Principles.List).Methods("GET")
	api.HandleFunc("/principles", h.Principles.Create).Methods("POST")
	api.HandleFunc("/principles/patterns", h.Principles.Patterns).Methods("GET")
	api.HandleFunc("/principles/{id:[0-9]+}/deactivate", h.Principles.Deactivate).Methods("POST")
	api.HandleFunc("/sources", h.Principles.Sources).Methods("GET")

	// Passed signals
	api.HandleFunc("/whatif", h.WhatIf.List).Methods("GET")
	api.HandleFunc("/whatif/summary", h.WhatIf.Summary).Methods("GET")
	api.HandleFunc("/whatif/refresh", h.WhatIf.Refresh).Methods("POST")

	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(check HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":  "ok",
			"service": "moves-api",
		}
		status := http.StatusOK

		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				body["status"] = "degraded"
				body["error"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// statusRecorder captures the status code for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
