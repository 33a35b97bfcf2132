// Package api provides the HTTP status API and WebSocket server for
// Shadowbridge.
//
// It exposes the merged property document, per-adapter health and
// counters, and the diagnostics journal, plus a WebSocket feed of
// property-change events for local observers.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/calder-iot/shadowbridge/internal/aggregator"
	"github.com/calder-iot/shadowbridge/internal/diag"
	"github.com/calder-iot/shadowbridge/internal/infrastructure/config"
	"github.com/calder-iot/shadowbridge/internal/infrastructure/database"
	"github.com/calder-iot/shadowbridge/internal/infrastructure/logging"
	"github.com/calder-iot/shadowbridge/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Aggregator  *aggregator.Aggregator
	Ring        *diag.Ring    // recent diagnostics for GET /diagnostics
	Journal     *diag.Journal // optional: persisted diagnostics
	DB          *database.DB  // optional: for health reporting
	MQTT        *mqtt.Client  // optional: for health reporting
	ExternalHub *Hub          // if set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP status API server for Shadowbridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	aggregator *aggregator.Aggregator
	ring       *diag.Ring
	journal    *diag.Journal
	db         *database.DB
	mqtt       *mqtt.Client
	version    string
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Aggregator == nil {
		return nil, fmt.Errorf("aggregator is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		aggregator: deps.Aggregator,
		ring:       deps.Ring,
		journal:    deps.Journal,
		db:         deps.DB,
		mqtt:       deps.MQTT,
		version:    deps.Version,
	}

	// Use an externally-provided hub when the aggregator also needs it
	// for broadcasting.
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
	}

	return s, nil
}

// Hub returns the server's WebSocket hub, creating it when none was
// injected. The hub implements the aggregator's Broadcaster contract.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.Hub().Run(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
