package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck(t *testing.T) {
	svc := testService(t)
	handler := NewHealthHandler(svc, "1.0.0", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.HealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeBody(t, rec, &resp)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "1.0.0", resp["version"])
	assert.Nil(t, resp["snapshot"])
}

func TestHealthCheckWithSnapshot(t *testing.T) {
	svc := testService(t)
	buildService(t, svc)
	handler := NewHealthHandler(svc, "1.0.0", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.HealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Snapshot *struct {
			BuildID string  `json:"build_id"`
			Sources float64 `json:"sources"`
		} `json:"snapshot"`
	}
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Snapshot)
	assert.NotEmpty(t, resp.Snapshot.BuildID)
	assert.Equal(t, float64(2), resp.Snapshot.Sources)
}

func TestLivenessCheck(t *testing.T) {
	handler := NewHealthHandler(testService(t), "1.0.0", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health/live", nil)
	rec := httptest.NewRecorder()
	handler.LivenessCheck(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessCheck(t *testing.T) {
	svc := testService(t)
	handler := NewHealthHandler(svc, "1.0.0", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health/ready", nil)
	rec := httptest.NewRecorder()
	handler.ReadinessCheck(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	buildService(t, svc)

	rec = httptest.NewRecorder()
	handler.ReadinessCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
