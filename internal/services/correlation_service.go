package services

import (
	"context"
	"log/slog"
	"time"

	"placepulse/internal/config"
	"placepulse/internal/index"
	"placepulse/internal/infrastructure"
	"placepulse/internal/store"
)

// CorrelationService runs the activity significance analysis. Each cycle
// rebuilds every (feature, lag) cell of the significance table from the
// resolved activity entries and publishes the refreshed table atomically.
type CorrelationService struct {
	activities *store.ActivityLog
	table      *store.SignificanceTable
	cfg        index.CorrelationConfig
	logger     *slog.Logger
	metrics    *infrastructure.EngineMetrics
}

// NewCorrelationService creates a new correlation service
func NewCorrelationService(
	activities *store.ActivityLog,
	table *store.SignificanceTable,
	cfg config.CorrelationConfig,
	logger *slog.Logger,
	metrics *infrastructure.EngineMetrics,
) *CorrelationService {
	return &CorrelationService{
		activities: activities,
		table:      table,
		cfg: index.CorrelationConfig{
			MinSamples:        cfg.MinSamples,
			SignificanceLevel: cfg.SignificanceLevel,
		},
		logger:  logger.With(slog.String("component", "correlation_service")),
		metrics: metrics,
	}
}

// RunCycle recomputes the full significance table and returns the analysis
// report. Cells below the sample gate are published with a nil p-value so
// readers can tell "not significant" from "not enough data".
func (s *CorrelationService) RunCycle(ctx context.Context) (index.AnalysisReport, error) {
	now := time.Now().UTC()
	rows := make([]index.FeatureSignificance, 0, len(index.AllFeatures)*len(index.AnalyzedLags))

	for _, lag := range index.AnalyzedLags {
		entries := s.activities.Resolved(lag)
		for _, feature := range index.AllFeatures {
			pairs := buildPairs(feature, lag, entries)
			rows = append(rows, index.AnalyzePairs(feature, lag, pairs, s.cfg, now))
		}
		if err := ctx.Err(); err != nil {
			return index.AnalysisReport{}, err
		}
	}

	s.table.ReplaceAll(rows, now)

	var significant int64
	for _, row := range rows {
		if row.Significant {
			significant++
		}
	}
	infrastructure.RecordCorrelationRun(ctx, s.metrics, significant)

	report := index.AnalysisReport{
		RunAt:          now,
		Rows:           rows,
		Recommendation: index.BuildRecommendation(rows),
	}
	s.logger.InfoContext(ctx, "correlation cycle completed",
		slog.Int("rows", len(rows)),
		slog.Int64("significant", significant))
	return report, nil
}

// buildPairs pairs each resolved entry's declared feature delta with the
// index3 movement observed over the lag window. Entries that did not add
// the feature carry no signal for it and are skipped.
func buildPairs(feature index.Feature, lag index.Lag, entries []index.ActivityEntry) []index.PairedSample {
	var pairs []index.PairedSample
	for _, entry := range entries {
		added, ok := entry.Added[feature]
		if !ok || added == 0 {
			continue
		}
		snap := entry.Resolution(lag)
		if snap == nil {
			continue
		}
		pairs = append(pairs, index.PairedSample{
			FeatureDelta:  float64(added),
			ResponseDelta: snap.Index3 - entry.Baseline.Index3,
		})
	}
	return pairs
}

// Table returns the current significance rows together with the time of the
// last completed cycle
func (s *CorrelationService) Table() ([]index.FeatureSignificance, time.Time) {
	return s.table.All(), s.table.UpdatedAt()
}
