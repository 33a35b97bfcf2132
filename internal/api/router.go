package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/shadow", s.handleShadow)
		r.Get("/stats", s.handleStats)

		r.Route("/adapters", func(r chi.Router) {
			r.Get("/", s.handleListAdapters)
			r.Get("/{name}", s.handleGetAdapter)
		})

		r.Route("/diagnostics", func(r chi.Router) {
			r.Get("/", s.handleDiagnostics)
			r.Get("/journal", s.handleJournal)
		})
	})

	// WebSocket event feed, mounted at the configured path.
	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	return r
}

// healthCheckTimeout bounds the dependency probes in the health handler.
const healthCheckTimeout = 2 * time.Second

// handleHealth returns the server health status and the state of its
// dependencies. The bridge stays "degraded" rather than failing outright
// when a dependency is down; devices keep working without the broker.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	components := make(map[string]string)

	if s.mqtt != nil {
		if err := s.mqtt.HealthCheck(ctx); err != nil {
			components["mqtt"] = "unhealthy"
			status = "degraded"
		} else {
			components["mqtt"] = "ok"
		}
	}

	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			components["database"] = "unhealthy"
			status = "degraded"
		} else {
			components["database"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
