package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// healthCheckTimeout bounds each component check in GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.withRequestID)
	r.Use(s.withAccessLog)
	r.Use(s.withRecovery)
	r.Use(s.withCORS)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/device-types", s.handleListDeviceTypes)
		r.Get("/audit", s.handleListAudit)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleCreateDevice)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Patch("/", s.handleRenameDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Get("/methods", s.handleListMethods)
				r.Post("/invoke", s.handleInvoke)
				r.Get("/export", s.handleExport)
			})
		})
	})

	return r
}

// handleHealth runs every registered component check.
// Responds 503 if any fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	components := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name](ctx)
		cancel()
		if err != nil {
			status = "degraded"
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}

// handleListDeviceTypes returns the device types in library order.
func (s *Server) handleListDeviceTypes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callContext(r.Context())
	defer cancel()

	types, err := s.registry.ListDeviceTypes(ctx)
	if err != nil {
		s.logger.Warn("listing device types failed", "error", err)
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_types": types,
		"count":        len(types),
	})
}
