package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"placepulse/internal/config"
	"placepulse/internal/index"
	"placepulse/internal/infrastructure"
	"placepulse/internal/store"
)

// CalibrationService fits and stores per-keyword parameters and the pooled
// global model. Cycles run over all known keywords with a bounded worker
// pool; concurrent fits for the same keyword are serialized.
type CalibrationService struct {
	observations *store.ObservationLog
	params       *store.ParameterStore
	fitConfig    index.FitConfig
	staleness    time.Duration
	workers      int
	logger       *slog.Logger
	metrics      *infrastructure.EngineMetrics

	mu          sync.Mutex
	inflight    map[string]*sync.Mutex
	calibrating map[string]int
}

// NewCalibrationService creates a new calibration service
func NewCalibrationService(
	observations *store.ObservationLog,
	params *store.ParameterStore,
	cfg config.CalibrationConfig,
	logger *slog.Logger,
	metrics *infrastructure.EngineMetrics,
) *CalibrationService {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &CalibrationService{
		observations: observations,
		params:       params,
		fitConfig: index.FitConfig{
			MinKeywordSamples: cfg.MinKeywordSamples,
			MinGlobalSamples:  cfg.MinGlobalSamples,
			MinFitQuality:     cfg.MinFitQuality,
			Lookback:          cfg.Lookback,
		},
		staleness:   cfg.Staleness,
		workers:     workers,
		logger:      logger.With(slog.String("component", "calibration_service")),
		metrics:     metrics,
		inflight:    make(map[string]*sync.Mutex),
		calibrating: make(map[string]int),
	}
}

// CycleResult summarizes one calibration cycle
type CycleResult struct {
	RunID         string        `json:"run_id"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Keywords      int           `json:"keywords"`
	Calibrated    int           `json:"calibrated"`
	Rejected      int           `json:"rejected"`
	Skipped       int           `json:"skipped"`
	GlobalRefit   bool          `json:"global_refit"`
	GlobalVersion uint64        `json:"global_version,omitempty"`
}

// keywordLock returns the mutex serializing fits for one keyword
func (s *CalibrationService) keywordLock(keyword string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.inflight[keyword]
	if !ok {
		m = &sync.Mutex{}
		s.inflight[keyword] = m
	}
	return m
}

// beginCalibrating marks a fit as in flight for the keyword. Reads surface
// the keyword as CALIBRATING until the matching endCalibrating call.
func (s *CalibrationService) beginCalibrating(keyword string) {
	s.mu.Lock()
	s.calibrating[keyword]++
	s.mu.Unlock()
}

func (s *CalibrationService) endCalibrating(keyword string) {
	s.mu.Lock()
	if s.calibrating[keyword] <= 1 {
		delete(s.calibrating, keyword)
	} else {
		s.calibrating[keyword]--
	}
	s.mu.Unlock()
}

func (s *CalibrationService) isCalibrating(keyword string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calibrating[keyword] > 0
}

// CalibrateKeyword fits the per-keyword model from the observation window
// and stores the result. A rejected or under-sampled fit never replaces a
// previously accepted one; storing identical parameters keeps the version
// unchanged so repeated cycles over unchanged data are idempotent.
func (s *CalibrationService) CalibrateKeyword(ctx context.Context, keyword string) (index.KeywordParameters, uint64, error) {
	s.beginCalibrating(keyword)
	defer s.endCalibrating(keyword)

	lock := s.keywordLock(keyword)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		prev, version := s.params.Get(keyword)
		return prev, version, err
	}

	now := time.Now().UTC()
	var since time.Time
	if s.fitConfig.Lookback > 0 {
		since = now.Add(-s.fitConfig.Lookback)
	}

	observations := s.observations.ByKeyword(keyword, since)
	fitted, err := index.FitKeywordParameters(keyword, observations, s.fitConfig, now)

	prev, prevVersion := s.params.Get(keyword)

	switch {
	case err == nil:
		version := s.params.Put(keyword, fitted)
		s.logger.InfoContext(ctx, "keyword calibrated",
			slog.String("keyword", keyword),
			slog.Int("samples", fitted.SampleCount),
			slog.Float64("slope", fitted.Index2Slope),
			slog.Float64("fit_quality", fitted.FitQuality),
			slog.Uint64("version", version))
		return fitted, version, nil

	case errors.Is(err, index.ErrInsufficientData):
		s.logger.DebugContext(ctx, "keyword below sample gate",
			slog.String("keyword", keyword),
			slog.Int("samples", len(observations)))
		return prev, prevVersion, err

	case errors.Is(err, index.ErrFitRejected):
		s.logger.WarnContext(ctx, "keyword fit rejected",
			slog.String("keyword", keyword),
			slog.Float64("slope", fitted.Index2Slope),
			slog.Float64("fit_quality", fitted.FitQuality),
			slog.String("reason", err.Error()))
		if prev.Calibrated() {
			// Keep the last accepted fit untouched.
			return prev, prevVersion, err
		}
		version := s.params.Put(keyword, fitted)
		return fitted, version, err

	default:
		return prev, prevVersion, err
	}
}

// RunCycle calibrates every known keyword and refits the global model when
// enough pooled samples exist
func (s *CalibrationService) RunCycle(ctx context.Context) (CycleResult, error) {
	start := time.Now().UTC()
	result := CycleResult{
		RunID:     uuid.New().String(),
		StartedAt: start,
	}

	keywords := s.observations.Keywords()
	result.Keywords = len(keywords)

	s.logger.InfoContext(ctx, "calibration cycle started",
		slog.String("run_id", result.RunID),
		slog.Int("keywords", len(keywords)))

	var counts struct {
		sync.Mutex
		calibrated int
		rejected   int
		skipped    int
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, keyword := range keywords {
		keyword := keyword
		g.Go(func() error {
			_, _, err := s.CalibrateKeyword(gctx, keyword)
			counts.Lock()
			defer counts.Unlock()
			switch {
			case err == nil:
				counts.calibrated++
			case errors.Is(err, index.ErrFitRejected):
				counts.rejected++
			case errors.Is(err, index.ErrInsufficientData):
				counts.skipped++
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	result.Calibrated = counts.calibrated
	result.Rejected = counts.rejected
	result.Skipped = counts.skipped

	if err := s.fitGlobal(ctx, &result); err != nil &&
		!errors.Is(err, index.ErrInsufficientData) && !errors.Is(err, index.ErrFitRejected) {
		return result, err
	}

	result.Duration = time.Since(start)

	infrastructure.RecordCalibrationRun(ctx, s.metrics, result.Duration,
		int64(result.Calibrated), int64(result.Rejected))

	s.logger.InfoContext(ctx, "calibration cycle finished",
		slog.String("run_id", result.RunID),
		slog.Int("calibrated", result.Calibrated),
		slog.Int("rejected", result.Rejected),
		slog.Int("skipped", result.Skipped),
		slog.Bool("global_refit", result.GlobalRefit),
		slog.Duration("duration", result.Duration))

	return result, nil
}

// fitGlobal refits the pooled polynomial if the sample gate is met. The
// previously stored model stays in place on any rejection.
func (s *CalibrationService) fitGlobal(ctx context.Context, result *CycleResult) error {
	triples := s.observations.AllTriples()
	model, err := index.FitGlobalModel(triples, s.fitConfig, time.Now().UTC())
	if err != nil {
		if errors.Is(err, index.ErrInsufficientData) {
			s.logger.DebugContext(ctx, "global model below sample gate",
				slog.Int("triples", len(triples)))
		} else {
			s.logger.WarnContext(ctx, "global model refit rejected",
				slog.String("reason", err.Error()))
		}
		return err
	}

	version := s.params.PutGlobal(model)
	result.GlobalRefit = true
	result.GlobalVersion = version

	s.logger.InfoContext(ctx, "global model refitted",
		slog.Int("samples", model.SampleCount),
		slog.Float64("fit_quality", model.FitQuality),
		slog.Uint64("version", version))
	return nil
}

// Parameters returns the stored parameters for a keyword. The reported
// status reflects read time: CALIBRATING while a fit is in flight, STALE
// past the staleness threshold. The stored record is never touched.
func (s *CalibrationService) Parameters(keyword string) (index.KeywordParameters, uint64) {
	params, version := s.params.Get(keyword)
	switch {
	case s.isCalibrating(keyword):
		params.Status = index.StatusCalibrating
	case params.StaleAt(time.Now().UTC(), s.staleness):
		params.Status = index.StatusStale
	}
	return params, version
}

// GlobalModel returns the stored global polynomial
func (s *CalibrationService) GlobalModel() (index.GlobalIndex3Model, uint64) {
	return s.params.GetGlobal()
}

// AllParameters returns the stored parameters for every keyword with
// staleness evaluated at call time
func (s *CalibrationService) AllParameters() []index.KeywordParameters {
	now := time.Now().UTC()
	all := s.params.All()
	for i := range all {
		switch {
		case s.isCalibrating(all[i].Keyword):
			all[i].Status = index.StatusCalibrating
		case all[i].StaleAt(now, s.staleness):
			all[i].Status = index.StatusStale
		}
	}
	return all
}
