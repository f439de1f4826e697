package http

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"placepulse/internal/config"
	"placepulse/internal/index"
	"placepulse/internal/oracle"
	"placepulse/internal/services"
	"placepulse/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCalibrationConfig() config.CalibrationConfig {
	return config.CalibrationConfig{
		MinKeywordSamples: 5,
		MinGlobalSamples:  1000,
		MinFitQuality:     0.3,
		Staleness:         7 * 24 * time.Hour,
		Workers:           2,
	}
}

// stubOracle is a canned oracle client for handler tests
type stubOracle struct {
	result oracle.QueryResult
	err    error
	state  oracle.BreakerState
}

func (s *stubOracle) Fetch(ctx context.Context, keyword string) (oracle.QueryResult, error) {
	if s.err != nil {
		return oracle.QueryResult{}, s.err
	}
	return s.result, nil
}

func (s *stubOracle) BreakerState() oracle.BreakerState {
	if s.state == "" {
		return oracle.BreakerClosed
	}
	return s.state
}

// testEngine bundles the stores and services behind the handlers
type testEngine struct {
	observations *store.ObservationLog
	params       *store.ParameterStore
	activities   *store.ActivityLog
	table        *store.SignificanceTable
	oracle       *stubOracle

	estimation  *services.EstimationService
	calibration *services.CalibrationService
	correlation *services.CorrelationService
	activity    *services.ActivityService
	simulation  *services.SimulationService
}

func newTestEngine() *testEngine {
	e := &testEngine{
		observations: store.NewObservationLog(),
		params:       store.NewParameterStore(),
		activities:   store.NewActivityLog(),
		table:        store.NewSignificanceTable(),
		oracle:       &stubOracle{},
	}
	logger := testLogger()
	cfg := testCalibrationConfig()
	e.estimation = services.NewEstimationService(e.params, e.observations, e.oracle, cfg, logger, nil)
	e.calibration = services.NewCalibrationService(e.observations, e.params, cfg, logger, nil)
	e.correlation = services.NewCorrelationService(e.activities, e.table, config.CorrelationConfig{
		MinSamples:        10,
		SignificanceLevel: 0.05,
	}, logger, nil)
	e.activity = services.NewActivityService(e.activities, e.observations, logger)
	e.simulation = services.NewSimulationService(e.params, e.observations, e.table, cfg, logger, nil)
	return e
}

// router mounts every domain handler the way the app does
func (e *testEngine) router() chi.Router {
	logger := testLogger()
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		NewEstimateHandler(e.estimation, logger).RegisterRoutes(r)
		NewSimulationHandler(e.simulation, logger).RegisterRoutes(r)
		NewCalibrationHandler(e.calibration, logger).RegisterRoutes(r)
		NewCorrelationHandler(e.correlation, logger).RegisterRoutes(r)
		NewActivityHandler(e.activity, logger).RegisterRoutes(r)
	})
	health := NewHealthHandler(e.estimation, e.calibration, e.observations, "test", logger)
	r.Get("/healthz", health.HealthCheck)
	r.Get("/healthz/live", health.LivenessCheck)
	r.Get("/healthz/ready", health.ReadinessCheck)
	return r
}

func (e *testEngine) seedCalibrated(keyword string) {
	e.params.Put(keyword, index.KeywordParameters{
		Keyword:          keyword,
		Index1Constant:   0.85,
		Index2Slope:      -0.00103,
		Index2Intercept:  0.5506,
		SampleCount:      120,
		FitQuality:       0.91,
		LastCalibratedAt: time.Now().UTC(),
		Status:           index.StatusCalibrated,
	})
}

func (e *testEngine) seedObservation(t *testing.T, keyword, entityID string, day time.Time, rank int, index3 float64) {
	t.Helper()
	err := e.observations.Append(index.Observation{
		Keyword:     keyword,
		EntityID:    entityID,
		Date:        day.UTC().Truncate(24 * time.Hour),
		Rank:        rank,
		Index1:      0.85,
		Index2:      0.5506 - 0.00103*float64(rank),
		Index3:      index3,
		BlogCount:   100,
		VisitCount:  50,
		SaveCount:   200,
		CollectedAt: day,
	})
	require.NoError(t, err)
}
