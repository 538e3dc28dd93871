package api

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
	"slices"

	"github.com/observer/gigline/internal/websocket"
)

// HealthChecker reports backend reachability
type HealthChecker interface {
	Health(ctx context.Context) error
}

// StatusSource reports the realtime core's counts
type StatusSource interface {
	Status() websocket.Status
}

// StatusHandler serves health, readiness and the realtime debug snapshot
type StatusHandler struct {
	checks map[string]HealthChecker
	hub    StatusSource
	logger *slog.Logger
}

// NewStatusHandler creates the handler. /readyz passes only when every
// named backend in checks is reachable.
func NewStatusHandler(checks map[string]HealthChecker, hub StatusSource, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		checks: checks,
		hub:    hub,
		logger: logger,
	}
}

// Healthz handles GET /healthz
func (h *StatusHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz and checks every backend
func (h *StatusHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	for _, name := range slices.Sorted(maps.Keys(h.checks)) {
		if err := h.checks[name].Health(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", "backend", name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  name + " unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// DebugStatus handles GET /debug/status
func (h *StatusHandler) DebugStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Status())
}
