// Package api provides the HTTP API for the miio device registry.
//
// It exposes device types, registry records, method tables, invocation and
// session export over a chi router under /api/v1. Device tokens and handles
// never appear in list or get responses; only the export endpoint returns
// them, in the persisted session file format.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-miio/internal/audit"
	"github.com/nerrad567/gray-logic-miio/internal/device"
	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthCheckFunc reports whether one component is healthy.
type HealthCheckFunc func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Registry *device.Registry

	// Audit, if set, records device operations and serves GET /audit.
	Audit audit.Repository

	// CallTimeout bounds device creation and invocation. 0 means no bound
	// beyond the request context.
	CallTimeout time.Duration

	// Checks are reported by GET /health, keyed by component name.
	Checks map[string]HealthCheckFunc

	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	registry    *device.Registry
	callTimeout time.Duration
	checks      map[string]HealthCheckFunc
	version     string
	server      *http.Server
	listener    net.Listener

	audit       audit.Repository
	auditCh     chan *audit.Entry
	auditCancel context.CancelFunc
	auditDone   chan struct{}
}

// New creates a new API server. It is not started until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	return &Server{
		cfg:         deps.Config,
		logger:      deps.Logger,
		registry:    deps.Registry,
		callTimeout: deps.CallTimeout,
		checks:      deps.Checks,
		version:     deps.Version,
		audit:       deps.Audit,
		auditCh:     make(chan *audit.Entry, auditChanSize),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	s.logger.Info("API server listening", "address", ln.Addr().String())
	s.startAuditWriter()

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)
	s.stopAuditWriter()
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// callContext derives the context for a device library call.
func (s *Server) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout > 0 {
		return context.WithTimeout(ctx, s.callTimeout)
	}
	return context.WithCancel(ctx)
}
