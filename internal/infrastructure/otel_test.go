package infrastructure

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOTelInitialization tests OpenTelemetry initialization
func TestOTelInitialization(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	providers, err := InitializeOTel(nil, logger)
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.PrometheusHTTP)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = providers.Shutdown(ctx)
	assert.NoError(t, err)
}

// TestOTelDisabled tests initialization with exporters disabled
func TestOTelDisabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := &OTelConfig{
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		Environment:    "test",
		TraceExporter:  "none",
		MetricExporter: "none",
		EnableTracing:  true,
		EnableMetrics:  true,
		SampleRatio:    1.0,
	}

	providers, err := InitializeOTel(cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, providers.TracerProvider)
	assert.Nil(t, providers.MeterProvider)
	assert.NoError(t, providers.Shutdown(context.Background()))
}

// TestOTelUnsupportedExporter tests that unknown exporters are rejected
func TestOTelUnsupportedExporter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := DefaultOTelConfig()
	cfg.TraceExporter = "jaeger"

	_, err := InitializeOTel(cfg, logger)
	assert.Error(t, err)
}

// TestCreateEngineMetrics tests engine metric creation and recording helpers
func TestCreateEngineMetrics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := DefaultOTelConfig()
	cfg.EnableTracing = false
	providers, err := InitializeOTel(cfg, logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreateEngineMetrics(providers.Meter)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	assert.NotNil(t, metrics.OracleRequestsTotal)
	assert.NotNil(t, metrics.CalibrationRunsTotal)
	assert.NotNil(t, metrics.EstimateRequestsTotal)
	assert.NotNil(t, metrics.SimulationRequestsTotal)
	assert.NotNil(t, metrics.CorrelationRunsTotal)

	ctx := context.Background()

	// The recorders must tolerate real and nil metrics.
	RecordEstimateRequest(ctx, metrics, "local", false)
	RecordEstimateRequest(ctx, nil, "oracle", true)
	RecordSimulationRequest(ctx, metrics, "forward", true)
	RecordSimulationRequest(ctx, nil, "inverse", false)
	RecordCalibrationRun(ctx, metrics, 2*time.Second, 10, 2)
	RecordCalibrationRun(ctx, nil, time.Second, 0, 0)
	RecordOracleRequest(ctx, metrics, 120*time.Millisecond, nil)
	RecordOracleRequest(ctx, metrics, 5*time.Second, errors.New("timeout"))
}

// TestSystemMetricsCollect tests runtime stats collection
func TestSystemMetricsCollect(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := DefaultOTelConfig()
	cfg.EnableTracing = false
	providers, err := InitializeOTel(cfg, logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	sm, err := NewSystemMetrics(providers.Meter)
	require.NoError(t, err)

	start := time.Now().Add(-time.Minute)
	stats := sm.Collect(context.Background(), start)
	require.NotNil(t, stats)

	assert.Greater(t, stats.GoRoutines, int64(0))
	assert.Greater(t, stats.MemoryUsage, int64(0))
	assert.GreaterOrEqual(t, stats.ProcessUptime, time.Minute)

	formatted := stats.FormatStats()
	assert.Contains(t, formatted, "runtime")
	assert.Contains(t, formatted, "uptime_seconds")
}
