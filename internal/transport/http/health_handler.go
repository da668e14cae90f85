package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"windrisk/internal/services"
)

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	service   *services.RiskService
	version   string
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service *services.RiskService, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service:   service,
		version:   version,
		startedAt: time.Now().UTC(),
		logger:    logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.startedAt).String(),
	}

	if snapshot, ok := h.service.Current(); ok {
		status["snapshot"] = map[string]any{
			"build_id": snapshot.ID,
			"built_at": snapshot.BuiltAt,
			"sources":  snapshot.Cube.Len(),
			"failures": len(snapshot.Cube.Failures()),
		}
	} else {
		status["snapshot"] = nil
	}

	render.JSON(w, r, status)
}

// LivenessCheck handles GET /api/health/live
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{"status": "alive"})
}

// ReadinessCheck handles GET /api/health/ready. The server is ready once a
// cube snapshot is installed.
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.service.Current(); !ok {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]any{"status": "waiting for first build"})
		return
	}
	render.JSON(w, r, map[string]any{"status": "ready"})
}
