// Package api serves the hostsweep control surface over HTTP: scan control,
// scheduled scans, health and a WebSocket event stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/anstrom/hostsweep/internal/api/handlers"
	"github.com/anstrom/hostsweep/internal/api/middleware"
	"github.com/anstrom/hostsweep/internal/auth"
	"github.com/anstrom/hostsweep/internal/config"
	"github.com/anstrom/hostsweep/internal/logging"
	"github.com/anstrom/hostsweep/internal/metrics"
)

const serverShutdownTimeout = 30 * time.Second

// Deps are the collaborators the server exposes. Engine and Hub are
// required; the rest may be nil.
type Deps struct {
	Engine    handlers.ScanController
	Hub       *handlers.EventHub
	Scheduler handlers.JobManager
	Database  handlers.DatabasePinger
	Metrics   *metrics.PrometheusMetrics
	Logger    *logging.Logger
	Version   handlers.VersionInfo
}

// Server represents the API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     config.APIConfig
	deps       Deps
	verifier   *auth.Verifier
	logger     *slog.Logger
}

// New creates a new API server instance.
func New(cfg config.APIConfig, deps Deps) (*Server, error) {
	if deps.Engine == nil || deps.Hub == nil {
		return nil, fmt.Errorf("api server requires an engine and an event hub")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.GetGlobalMetrics()
	}

	server := &Server{
		router:   mux.NewRouter(),
		config:   cfg,
		deps:     deps,
		verifier: auth.NewVerifier(cfg.APIKeyHashes),
		logger:   deps.Logger.WithComponent("api").Logger,
	}

	server.setupRoutes()
	server.setupMiddleware()

	var handler http.Handler = server.router
	if cfg.CORS.Enabled {
		// wraps the router so preflight requests reach it without a route
		handler = gorillahandlers.CORS(
			gorillahandlers.AllowedOrigins(cfg.CORS.AllowedOrigins),
			gorillahandlers.AllowedHeaders(cfg.CORS.AllowedHeaders),
			gorillahandlers.AllowedMethods(cfg.CORS.AllowedMethods),
		)(handler)
	}

	server.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.ListenAddr, strconv.Itoa(cfg.Port)),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	return server, nil
}

// Start serves until ctx ends or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting API server",
		"address", s.httpServer.Addr,
		"auth_enabled", s.verifier.Enabled())

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the API server and disconnects event subscribers.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = serverShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// hijacked WebSocket connections are not tracked by Shutdown
	s.deps.Hub.Close()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped successfully")
	return nil
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	protect := middleware.Authentication(s.verifier, s.logger)

	health := handlers.NewHealthHandler(s.deps.Database, s.deps.Engine, s.deps.Version, s.logger)
	api.HandleFunc("/liveness", health.Liveness).Methods(http.MethodGet)
	api.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	api.HandleFunc("/version", health.Version).Methods(http.MethodGet)

	scan := handlers.NewScanHandler(s.deps.Engine, s.logger, s.config.MaxRequestSize)
	api.Handle("/scan", protect(http.HandlerFunc(scan.StartScan))).Methods(http.MethodPost)
	api.Handle("/scan", protect(http.HandlerFunc(scan.CancelScan))).Methods(http.MethodDelete)
	api.Handle("/scan", protect(http.HandlerFunc(scan.GetScan))).Methods(http.MethodGet)

	api.HandleFunc("/ws", s.deps.Hub.ServeWS).Methods(http.MethodGet)

	if s.deps.Scheduler != nil {
		sched := handlers.NewScheduleHandler(s.deps.Scheduler, s.logger, s.config.MaxRequestSize)
		api.Handle("/schedules", protect(http.HandlerFunc(sched.ListSchedules))).Methods(http.MethodGet)
		api.Handle("/schedules", protect(http.HandlerFunc(sched.CreateSchedule))).Methods(http.MethodPost)
		api.Handle("/schedules/{id}", protect(http.HandlerFunc(sched.DeleteSchedule))).Methods(http.MethodDelete)
	}

	s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.indexHandler).Methods(http.MethodGet)
}

// setupMiddleware configures middleware for the API server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(middleware.Metrics(s.deps.Metrics))
	s.router.Use(middleware.ContentType())
}

// indexHandler lists the main endpoints.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"service": "hostsweep API",
		"version": "v1",
		"endpoints": map[string]string{
			"scan":    "/api/v1/scan",
			"events":  "/api/v1/ws",
			"health":  "/api/v1/health",
			"metrics": "/metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode API index response", "error", err)
	}
}

// Handler returns the root handler, including CORS when enabled.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// GetAddress returns the server address.
func (s *Server) GetAddress() string {
	return s.httpServer.Addr
}
