package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placepulse/internal/config"
	"placepulse/internal/index"
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
		Workers:           4,
	}
}

// seedListing appends one full listing for the keyword on the given day,
// with index2 following the linear relation slope*rank + intercept.
func seedListing(t *testing.T, log *store.ObservationLog, keyword string, day time.Time, size int, slope, intercept float64) {
	t.Helper()
	for rank := 1; rank <= size; rank++ {
		err := log.Append(index.Observation{
			Keyword:     keyword,
			EntityID:    "entity-" + string(rune('a'+rank-1)),
			Date:        day.UTC().Truncate(24 * time.Hour),
			Rank:        rank,
			Index1:      0.85,
			Index2:      slope*float64(rank) + intercept,
			Index3:      0.7 - 0.02*float64(rank),
			BlogCount:   100 + rank,
			VisitCount:  50 + rank,
			SaveCount:   200 + rank,
			CollectedAt: day,
		})
		require.NoError(t, err)
	}
}

func TestCalibrationService_RunCycle(t *testing.T) {
	observations := store.NewObservationLog()
	params := store.NewParameterStore()
	day := time.Now().UTC().Truncate(24 * time.Hour)
	seedListing(t, observations, "강남 미용실", day, 10, -0.00103, 0.5506)
	seedListing(t, observations, "판교 맛집", day, 10, -0.002, 0.61)

	svc := NewCalibrationService(observations, params, testCalibrationConfig(), testLogger(), nil)

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 2, result.Keywords)
	assert.Equal(t, 2, result.Calibrated)
	assert.Equal(t, 0, result.Rejected)
	assert.Equal(t, 0, result.Skipped)
	assert.False(t, result.GlobalRefit, "pooled gate should not be met")

	fitted, version := svc.Parameters("강남 미용실")
	assert.Equal(t, uint64(1), version)
	assert.True(t, fitted.Calibrated())
	assert.InDelta(t, -0.00103, fitted.Index2Slope, 1e-9)
	assert.InDelta(t, 0.5506, fitted.Index2Intercept, 1e-9)
	assert.Equal(t, 10, fitted.SampleCount)
}

func TestCalibrationService_CycleIdempotentOnUnchangedData(t *testing.T) {
	observations := store.NewObservationLog()
	params := store.NewParameterStore()
	day := time.Now().UTC().Truncate(24 * time.Hour)
	seedListing(t, observations, "강남 미용실", day, 10, -0.00103, 0.5506)

	svc := NewCalibrationService(observations, params, testCalibrationConfig(), testLogger(), nil)

	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	first, firstVersion := svc.Parameters("강남 미용실")

	_, err = svc.RunCycle(context.Background())
	require.NoError(t, err)
	second, secondVersion := svc.Parameters("강남 미용실")

	assert.Equal(t, firstVersion, secondVersion, "unchanged data must keep the version")
	assert.True(t, first.EquivalentTo(second))
}

func TestCalibrationService_RejectionKeepsAcceptedFit(t *testing.T) {
	observations := store.NewObservationLog()
	params := store.NewParameterStore()
	dayOne := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	seedListing(t, observations, "강남 미용실", dayOne, 10, -0.01, 0.56)

	svc := NewCalibrationService(observations, params, testCalibrationConfig(), testLogger(), nil)

	fitted, version, err := svc.CalibrateKeyword(context.Background(), "강남 미용실")
	require.NoError(t, err)
	require.True(t, fitted.Calibrated())
	require.Equal(t, uint64(1), version)

	// A second day of ascending index2 drags the pooled slope positive.
	dayTwo := dayOne.AddDate(0, 0, 1)
	seedListing(t, observations, "강남 미용실", dayTwo, 10, 0.05, 0.2)

	rejected, rejectedVersion, err := svc.CalibrateKeyword(context.Background(), "강남 미용실")
	assert.ErrorIs(t, err, index.ErrFitRejected)
	assert.Equal(t, uint64(1), rejectedVersion, "rejection must not bump the version")
	assert.True(t, rejected.Calibrated(), "previously accepted fit must survive")
	assert.InDelta(t, -0.01, rejected.Index2Slope, 1e-9)
}

func TestCalibrationService_RejectionStoredWithoutPriorFit(t *testing.T) {
	observations := store.NewObservationLog()
	params := store.NewParameterStore()
	day := time.Now().UTC().Truncate(24 * time.Hour)
	seedListing(t, observations, "신사 네일", day, 10, 0.05, 0.2)

	svc := NewCalibrationService(observations, params, testCalibrationConfig(), testLogger(), nil)

	_, _, err := svc.CalibrateKeyword(context.Background(), "신사 네일")
	assert.ErrorIs(t, err, index.ErrFitRejected)

	stored, version := svc.Parameters("신사 네일")
	assert.Equal(t, index.StatusFitRejected, stored.Status)
	assert.Equal(t, uint64(1), version)
	assert.False(t, stored.Calibrated())
}

func TestCalibrationService_InsufficientDataSkipped(t *testing.T) {
	observations := store.NewObservationLog()
	params := store.NewParameterStore()
	day := time.Now().UTC().Truncate(24 * time.Hour)
	seedListing(t, observations, "한남동 카페", day, 3, -0.001, 0.55)

	svc := NewCalibrationService(observations, params, testCalibrationConfig(), testLogger(), nil)

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Calibrated)

	stored, version := svc.Parameters("한남동 카페")
	assert.Equal(t, index.StatusUncalibrated, stored.Status)
	assert.Equal(t, uint64(0), version)
}

func TestCalibrationService_StalenessEvaluatedAtRead(t *testing.T) {
	observations := store.NewObservationLog()
	params := store.NewParameterStore()
	day := time.Now().UTC().Truncate(24 * time.Hour)
	seedListing(t, observations, "강남 미용실", day, 10, -0.001, 0.55)

	cfg := testCalibrationConfig()
	cfg.Staleness = time.Nanosecond
	svc := NewCalibrationService(observations, params, cfg, testLogger(), nil)

	_, _, err := svc.CalibrateKeyword(context.Background(), "강남 미용실")
	require.NoError(t, err)

	stored, _ := svc.Parameters("강남 미용실")
	assert.Equal(t, index.StatusStale, stored.Status)
	assert.True(t, stored.Calibrated(), "stale parameters still serve estimates")
}

func TestCalibrationService_ReportsCalibratingWhileInFlight(t *testing.T) {
	observations := store.NewObservationLog()
	params := store.NewParameterStore()
	day := time.Now().UTC().Truncate(24 * time.Hour)
	seedListing(t, observations, "강남 미용실", day, 10, -0.001, 0.55)

	svc := NewCalibrationService(observations, params, testCalibrationConfig(), testLogger(), nil)

	// Holding the per-keyword lock pins the fit in flight.
	lock := svc.keywordLock("강남 미용실")
	lock.Lock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.CalibrateKeyword(context.Background(), "강남 미용실")
	}()

	require.Eventually(t, func() bool {
		stored, _ := svc.Parameters("강남 미용실")
		return stored.Status == index.StatusCalibrating
	}, time.Second, 5*time.Millisecond)

	lock.Unlock()
	<-done

	stored, _ := svc.Parameters("강남 미용실")
	assert.Equal(t, index.StatusCalibrated, stored.Status)
}

func TestCalibrationService_CancelledContext(t *testing.T) {
	observations := store.NewObservationLog()
	params := store.NewParameterStore()
	day := time.Now().UTC().Truncate(24 * time.Hour)
	seedListing(t, observations, "강남 미용실", day, 10, -0.001, 0.55)

	svc := NewCalibrationService(observations, params, testCalibrationConfig(), testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := svc.CalibrateKeyword(ctx, "강남 미용실")
	assert.ErrorIs(t, err, context.Canceled)

	stored, version := svc.Parameters("강남 미용실")
	assert.Equal(t, uint64(0), version)
	assert.False(t, stored.Calibrated())
}
