package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"placepulse/internal/index"
	"placepulse/internal/oracle"
	"placepulse/internal/services"
	"placepulse/internal/store"
)

// HealthHandler reports engine health: oracle circuit state, store sizes
// and calibration coverage.
type HealthHandler struct {
	estimation   *services.EstimationService
	calibration  *services.CalibrationService
	observations *store.ObservationLog
	startedAt    time.Time
	version      string
	logger       *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(
	estimation *services.EstimationService,
	calibration *services.CalibrationService,
	observations *store.ObservationLog,
	version string,
	logger *slog.Logger,
) *HealthHandler {
	return &HealthHandler{
		estimation:   estimation,
		calibration:  calibration,
		observations: observations,
		startedAt:    time.Now().UTC(),
		version:      version,
		logger:       logger.With(slog.String("handler", "health")),
	}
}

// HealthStatus is the health check response body
type HealthStatus struct {
	Status             string              `json:"status"`
	Version            string              `json:"version"`
	Timestamp          time.Time           `json:"timestamp"`
	UptimeSeconds      float64             `json:"uptime_seconds"`
	OracleBreaker      oracle.BreakerState `json:"oracle_breaker"`
	Observations       int                 `json:"observations"`
	CalibratedKeywords int                 `json:"calibrated_keywords"`
	TrackedKeywords    int                 `json:"tracked_keywords"`
}

// HealthCheck handles GET /healthz. The engine stays healthy with the
// oracle circuit open; estimation degrades rather than fails.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	breaker := h.estimation.BreakerState()

	status := "ok"
	if breaker == oracle.BreakerOpen {
		status = "degraded"
	}

	all := h.calibration.AllParameters()
	calibrated := 0
	for _, p := range all {
		if p.Calibrated() {
			calibrated++
		}
	}

	render.JSON(w, r, HealthStatus{
		Status:             status,
		Version:            h.version,
		Timestamp:          time.Now().UTC(),
		UptimeSeconds:      time.Since(h.startedAt).Seconds(),
		OracleBreaker:      breaker,
		Observations:       h.observations.Len(),
		CalibratedKeywords: calibrated,
		TrackedKeywords:    len(all),
	})
}

// LivenessCheck handles GET /healthz/live
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
	})
}

// ReadinessCheck handles GET /healthz/ready. The engine is ready once it can
// serve at least one estimation path: a calibration or a reachable oracle.
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ready := h.estimation.BreakerState() != oracle.BreakerOpen
	if !ready {
		for _, p := range h.calibration.AllParameters() {
			if p.Status == index.StatusCalibrated || p.Status == index.StatusStale {
				ready = true
				break
			}
		}
	}

	status := "ready"
	code := http.StatusOK
	if !ready {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	render.Status(r, code)
	render.JSON(w, r, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}
