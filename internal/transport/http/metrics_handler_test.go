package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "windrisk/internal/errors"
	"windrisk/internal/services"
)

func newMetricsHandler(t *testing.T, svc *services.RiskService) *MetricsHandler {
	t.Helper()
	logger := testLogger()
	return NewMetricsHandler(svc, 50, logger, apierrors.NewErrorHandler(logger))
}

func TestMetricsGetAll(t *testing.T) {
	svc := testService(t)
	buildService(t, svc)
	handler := newMetricsHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Percentile string `json:"percentile"`
		Metrics    map[string]struct {
			Value *float64 `json:"value"`
		} `json:"metrics"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "P50", resp.Percentile)
	require.Contains(t, resp.Metrics, "revenue")
	require.NotNil(t, resp.Metrics["revenue"].Value)
	assert.InDelta(t, 200, *resp.Metrics["revenue"].Value, 1e-9)
}

func TestMetricsGetAtBand(t *testing.T) {
	svc := testService(t)
	buildService(t, svc)
	handler := newMetricsHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/revenue?percentile=P10", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Metric     string `json:"metric"`
		Percentile string `json:"percentile"`
		Result     struct {
			Value *float64 `json:"value"`
		} `json:"result"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "revenue", resp.Metric)
	assert.Equal(t, "P10", resp.Percentile)
	require.NotNil(t, resp.Result.Value)
	assert.InDelta(t, 240, *resp.Result.Value, 1e-9)
}

func TestMetricsGetNotDeclared(t *testing.T) {
	svc := testService(t)
	buildService(t, svc)
	handler := newMetricsHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/ghost", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "METRIC_NOT_FOUND", errorCode(t, rec))
}

func TestMetricsGetBeforeBuild(t *testing.T) {
	handler := newMetricsHandler(t, testService(t))

	req := httptest.NewRequest(http.MethodGet, "/revenue", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "CUBE_NOT_BUILT", errorCode(t, rec))
}

func TestMetricsInvalidPercentile(t *testing.T) {
	svc := testService(t)
	buildService(t, svc)
	handler := newMetricsHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/?percentile=P200x", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", errorCode(t, rec))
}
