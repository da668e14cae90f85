package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"windrisk/internal/cube"
	apierrors "windrisk/internal/errors"
	"windrisk/internal/sensitivity"
	"windrisk/internal/services"
)

// SensitivityHandler handles sensitivity analysis requests
type SensitivityHandler struct {
	service      *services.RiskService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewSensitivityHandler creates a new sensitivity handler
func NewSensitivityHandler(service *services.RiskService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *SensitivityHandler {
	return &SensitivityHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "sensitivity_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the sensitivity routes
func (h *SensitivityHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/tornado", h.Tornado)
	r.Get("/variables/{id}", h.Analyze)

	return r
}

// rangeParams reads the lower and upper band query parameters.
func (h *SensitivityHandler) rangeParams(r *http.Request) (sensitivity.Range, error) {
	lowerRaw := r.URL.Query().Get("lower")
	upperRaw := r.URL.Query().Get("upper")
	if lowerRaw == "" || upperRaw == "" {
		return sensitivity.Range{}, errors.New("lower and upper band parameters are required")
	}

	lower, ok := cube.ParsePercentile(lowerRaw)
	if !ok {
		return sensitivity.Range{}, errors.New("invalid lower band: " + lowerRaw)
	}
	upper, ok := cube.ParsePercentile(upperRaw)
	if !ok {
		return sensitivity.Range{}, errors.New("invalid upper band: " + upperRaw)
	}

	return sensitivity.Range{Lower: lower, Upper: upper}, nil
}

// Tornado handles GET /api/sensitivity/tornado with metric, variables,
// lower and upper query parameters.
func (h *SensitivityHandler) Tornado(w http.ResponseWriter, r *http.Request) {
	metricKey := r.URL.Query().Get("metric")
	if metricKey == "" {
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
			http.StatusBadRequest, "MISSING_PARAMETER", "Required parameter is missing", "metric"))
		return
	}

	var variables []string
	if raw := r.URL.Query().Get("variables"); raw != "" {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				variables = append(variables, v)
			}
		}
	}
	if len(variables) == 0 {
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
			http.StatusBadRequest, "MISSING_PARAMETER", "Required parameter is missing", "variables"))
		return
	}

	rng, err := h.rangeParams(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	results, err := h.service.Tornado(r.Context(), metricKey, variables, rng)
	if err != nil {
		h.handleAnalysisError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]any{
		"metric":  metricKey,
		"range":   rng,
		"results": results,
	})
}

// Analyze handles GET /api/sensitivity/variables/{id} for a single variable.
func (h *SensitivityHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	variableID := chi.URLParam(r, "id")

	metricKey := r.URL.Query().Get("metric")
	if metricKey == "" {
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
			http.StatusBadRequest, "MISSING_PARAMETER", "Required parameter is missing", "metric"))
		return
	}

	rng, err := h.rangeParams(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	result, err := h.service.Analyze(r.Context(), metricKey, variableID, rng)
	if err != nil {
		h.handleAnalysisError(w, r, err)
		return
	}

	render.JSON(w, r, result)
}

func (h *SensitivityHandler) handleAnalysisError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, services.ErrNoSnapshot) {
		h.errorHandler.HandleError(w, r, apierrors.ErrCubeNotBuilt)
		return
	}

	var invalid *sensitivity.InvalidInputError
	if errors.As(err, &invalid) {
		h.errorHandler.HandleError(w, r, apierrors.SensitivityInputError(err))
		return
	}

	h.errorHandler.HandleError(w, r, err)
}
