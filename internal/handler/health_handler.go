package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"
	"github.com/boddenberg/agency-tool-gateway/internal/service"

	"github.com/go-chi/chi/v5"
)

// livenessHandler answers without touching any upstream.
func livenessHandler(opts Options, registry *service.ToolRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.LivenessStatus{
			Status:    "ok",
			Service:   opts.Name,
			Version:   opts.Version,
			Tools:     registry.Len(),
			Timestamp: domain.FormatTimestamp(time.Now()),
		})
	}
}

// fullHealthHandler probes every upstream. The report is returned with 200
// whatever the reduced status; callers read gateway.status.
func fullHealthHandler(health *service.HealthAggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, health.RunFull(r.Context()))
	}
}

func serviceHealthHandler(health *service.HealthAggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "service")
		status := http.StatusOK
		if !health.Has(name) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, health.RunOne(r.Context(), name))
	}
}
