package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"windrisk/internal/cube"
	apierrors "windrisk/internal/errors"
	"windrisk/internal/services"
)

// MetricsHandler handles metric catalogue requests
type MetricsHandler struct {
	service      *services.RiskService
	primary      cube.Percentile
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(service *services.RiskService, primary cube.Percentile, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *MetricsHandler {
	return &MetricsHandler{
		service:      service,
		primary:      primary,
		logger:       logger.With(slog.String("component", "metrics_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the metric routes
func (h *MetricsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/", h.GetAll)
	r.Get("/{key}", h.Get)

	return r
}

// percentileParam reads the optional percentile query parameter, falling
// back to the primary band.
func (h *MetricsHandler) percentileParam(r *http.Request) (cube.Percentile, bool) {
	raw := r.URL.Query().Get("percentile")
	if raw == "" {
		return h.primary, true
	}
	return cube.ParsePercentile(raw)
}

// GetAll handles GET /api/metrics returning the full catalogue at one band.
func (h *MetricsHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	pc, ok := h.percentileParam(r)
	if !ok {
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
			http.StatusBadRequest, "INVALID_PARAMETER", "Invalid percentile band", r.URL.Query().Get("percentile")))
		return
	}

	results, err := h.service.AllMetrics(r.Context(), pc)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrCubeNotBuilt)
		return
	}

	render.JSON(w, r, map[string]any{
		"percentile": pc.Key(),
		"metrics":    results,
	})
}

// Get handles GET /api/metrics/{key} returning one metric at one band.
func (h *MetricsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	pc, ok := h.percentileParam(r)
	if !ok {
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
			http.StatusBadRequest, "INVALID_PARAMETER", "Invalid percentile band", r.URL.Query().Get("percentile")))
		return
	}

	result, err := h.service.Metric(r.Context(), key, pc)
	if err != nil {
		if errors.Is(err, services.ErrMetricNotDeclared) {
			h.errorHandler.HandleError(w, r, apierrors.ErrMetricNotFound)
			return
		}
		h.errorHandler.HandleError(w, r, apierrors.ErrCubeNotBuilt)
		return
	}

	render.JSON(w, r, map[string]any{
		"metric":     key,
		"percentile": pc.Key(),
		"result":     result,
	})
}
