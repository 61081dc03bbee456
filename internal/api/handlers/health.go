package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"time"
)

// DatabasePinger defines the interface for database health checking.
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// ScanState reports whether the engine is busy.
type ScanState interface {
	IsScanning() bool
}

const healthCheckTimeout = 5 * time.Second

// Status constants.
const (
	StatusHealthy       = "healthy"
	StatusUnhealthy     = "unhealthy"
	StatusNotConfigured = "not configured"
)

// VersionInfo identifies the running build.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
}

// VersionResponse represents version information.
type VersionResponse struct {
	VersionInfo
	GoVersion string    `json:"go_version"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthHandler handles health, liveness and version endpoints.
type HealthHandler struct {
	database  DatabasePinger
	engine    ScanState
	version   VersionInfo
	logger    *slog.Logger
	startTime time.Time
}

// NewHealthHandler creates a new health handler. database may be nil when
// the registry is in memory.
func NewHealthHandler(database DatabasePinger, engine ScanState, version VersionInfo, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		database:  database,
		engine:    engine,
		version:   version,
		logger:    logger.With("handler", "health"),
		startTime: time.Now(),
	}
}

// Health checks the database, when configured, and reports the engine state.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	response := HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    make(map[string]string),
	}

	if h.database != nil {
		if err := h.database.Ping(ctx); err != nil {
			response.Status = StatusUnhealthy
			response.Checks["database"] = "failed"
			h.logger.Warn("Database health check failed", "error", err)
		} else {
			response.Checks["database"] = "ok"
		}
	} else {
		response.Checks["database"] = StatusNotConfigured
	}

	if h.engine != nil {
		if h.engine.IsScanning() {
			response.Checks["scanner"] = "scanning"
		} else {
			response.Checks["scanner"] = "idle"
		}
	}

	statusCode := http.StatusOK
	if response.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, r, statusCode, response)
}

// Liveness answers as long as the process serves HTTP.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Version reports build information.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, VersionResponse{
		VersionInfo: h.version,
		GoVersion:   runtime.Version(),
		Timestamp:   time.Now().UTC(),
	})
}
