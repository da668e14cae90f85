package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"windrisk/internal/cube"
	apierrors "windrisk/internal/errors"
	"windrisk/internal/scenario"
	"windrisk/internal/services"
)

// CubeHandler handles cube build and query requests
type CubeHandler struct {
	service      *services.RiskService
	scenarioFile string
	defaults     cube.BuildParams
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewCubeHandler creates a new cube handler
func NewCubeHandler(service *services.RiskService, scenarioFile string, defaults cube.BuildParams, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *CubeHandler {
	return &CubeHandler{
		service:      service,
		scenarioFile: scenarioFile,
		defaults:     defaults,
		logger:       logger.With(slog.String("component", "cube_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the cube routes
func (h *CubeHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/build", h.Build)
	r.Get("/", h.Query)
	r.Get("/sources/{id}", h.GetSource)

	return r
}

// BuildRequest optionally overrides the configured run parameters. An empty
// body builds with the server defaults.
type BuildRequest struct {
	Percentiles []int `json:"percentiles,omitempty"`
	Primary     *int  `json:"primary,omitempty"`
	StartYear   *int  `json:"start_year,omitempty"`
	EndYear     *int  `json:"end_year,omitempty"`
}

// BuildResponse summarizes an installed build.
type BuildResponse struct {
	BuildID  string            `json:"build_id"`
	BuiltAt  string            `json:"built_at"`
	Resolved int               `json:"resolved"`
	Failed   int               `json:"failed"`
	Failures map[string]string `json:"failures,omitempty"`
}

// Build handles POST /api/cube/build: reloads the scenario from disk and
// runs a full resolution pass.
func (h *CubeHandler) Build(w http.ResponseWriter, r *http.Request) {
	params := h.defaults

	if r.ContentLength > 0 {
		var req BuildRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
			return
		}
		if len(req.Percentiles) > 0 {
			params.Percentiles = make([]cube.Percentile, 0, len(req.Percentiles))
			for _, p := range req.Percentiles {
				params.Percentiles = append(params.Percentiles, cube.Percentile(p))
			}
		}
		if req.Primary != nil {
			params.Primary = cube.Percentile(*req.Primary)
		}
		if req.StartYear != nil {
			params.StartYear = *req.StartYear
		}
		if req.EndYear != nil {
			params.EndYear = *req.EndYear
		}
	}

	if err := params.Validate(); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	doc, err := scenario.Load(h.scenarioFile)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.BuildFailedError(err))
		return
	}

	snapshot, err := h.service.Rebuild(r.Context(), doc, params)
	if err != nil {
		var schema *cube.SchemaViolationError
		if errors.As(err, &schema) {
			h.errorHandler.HandleError(w, r, apierrors.SchemaViolationError(err))
			return
		}
		h.errorHandler.HandleError(w, r, apierrors.BuildFailedError(err))
		return
	}

	failures := make(map[string]string)
	for id, ferr := range snapshot.Cube.Failures() {
		failures[id] = ferr.Error()
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, BuildResponse{
		BuildID:  snapshot.ID,
		BuiltAt:  snapshot.BuiltAt.Format("2006-01-02T15:04:05Z07:00"),
		Resolved: snapshot.Cube.Len(),
		Failed:   len(failures),
		Failures: failures,
	})
}

// Query handles GET /api/cube with optional percentile, source, category and
// group filters.
func (h *CubeHandler) Query(w http.ResponseWriter, r *http.Request) {
	q := cube.Query{
		SourceID:      r.URL.Query().Get("source"),
		Category:      r.URL.Query().Get("category"),
		CashflowGroup: r.URL.Query().Get("group"),
	}

	if raw := r.URL.Query().Get("percentile"); raw != "" {
		pc, ok := cube.ParsePercentile(raw)
		if !ok {
			h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
				http.StatusBadRequest, "INVALID_PARAMETER", "Invalid percentile band", raw))
			return
		}
		q.Percentile = &pc
	}

	sources, err := h.service.Query(q)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrCubeNotBuilt)
		return
	}

	render.JSON(w, r, map[string]any{
		"count":   len(sources),
		"sources": sources,
	})
}

// GetSource handles GET /api/cube/sources/{id} returning one processed
// source with its full audit trail.
func (h *CubeHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snapshot, ok := h.service.Current()
	if !ok {
		h.errorHandler.HandleError(w, r, apierrors.ErrCubeNotBuilt)
		return
	}

	src, ok := snapshot.Cube.Source(id)
	if !ok {
		h.errorHandler.HandleError(w, r, apierrors.NotFoundError("source "+id))
		return
	}

	render.JSON(w, r, src)
}
