package http

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placepulse/internal/oracle"
)

func TestHealthHandler_Healthy(t *testing.T) {
	engine := newTestEngine()
	engine.seedCalibrated("강남 미용실")
	day := time.Now().UTC().Truncate(24 * time.Hour)
	engine.seedObservation(t, "강남 미용실", "entity-a", day, 1, 0.9)
	router := engine.router()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, oracle.BreakerClosed, status.OracleBreaker)
	assert.Equal(t, 1, status.Observations)
	assert.Equal(t, 1, status.CalibratedKeywords)
	assert.Equal(t, "test", status.Version)
}

func TestHealthHandler_DegradedWhenBreakerOpen(t *testing.T) {
	engine := newTestEngine()
	engine.oracle.state = oracle.BreakerOpen
	router := engine.router()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code, "an open breaker degrades, it does not fail")

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, oracle.BreakerOpen, status.OracleBreaker)
}

func TestHealthHandler_Liveness(t *testing.T) {
	engine := newTestEngine()
	router := engine.router()

	req := httptest.NewRequest("GET", "/healthz/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
}

func TestHealthHandler_Readiness(t *testing.T) {
	engine := newTestEngine()
	router := engine.router()

	// Oracle reachable: ready even with nothing calibrated.
	req := httptest.NewRequest("GET", "/healthz/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}

func TestHealthHandler_NotReadyWithoutAnyPath(t *testing.T) {
	engine := newTestEngine()
	engine.oracle.state = oracle.BreakerOpen
	router := engine.router()

	req := httptest.NewRequest("GET", "/healthz/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, 503, rec.Code)

	// A calibrated keyword restores readiness with the oracle down.
	engine.seedCalibrated("강남 미용실")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz/ready", nil))
	assert.Equal(t, 200, rec.Code)
}
