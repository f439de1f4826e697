package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"placepulse/internal/config"
	"placepulse/internal/index"
	"placepulse/internal/infrastructure"
	"placepulse/internal/store"
)

// SimulationService answers what-if queries in both directions. Forward
// simulation projects the rank effect of planned activity deltas through
// the significance table; inverse simulation computes the index movement
// required to reach a target rank.
type SimulationService struct {
	params       *store.ParameterStore
	observations *store.ObservationLog
	table        *store.SignificanceTable
	staleness    time.Duration
	logger       *slog.Logger
	metrics      *infrastructure.EngineMetrics
}

// NewSimulationService creates a new simulation service
func NewSimulationService(
	params *store.ParameterStore,
	observations *store.ObservationLog,
	table *store.SignificanceTable,
	cfg config.CalibrationConfig,
	logger *slog.Logger,
	metrics *infrastructure.EngineMetrics,
) *SimulationService {
	return &SimulationService{
		params:       params,
		observations: observations,
		table:        table,
		staleness:    cfg.Staleness,
		logger:       logger.With(slog.String("component", "simulation_service")),
		metrics:      metrics,
	}
}

// ForwardRequest describes one forward simulation query
type ForwardRequest struct {
	Keyword  string                    `json:"keyword"`
	EntityID string                    `json:"entity_id"`
	Deltas   map[index.Feature]float64 `json:"deltas"`
}

// Forward projects the rank effect of the planned activity deltas. The
// current state comes from the latest observation; competitors are the rest
// of the latest listing, assumed unchanged over the projection window.
func (s *SimulationService) Forward(ctx context.Context, req ForwardRequest) (index.ForwardResult, error) {
	for feature := range req.Deltas {
		if !feature.IsValid() {
			infrastructure.RecordSimulationRequest(ctx, s.metrics, "forward", false)
			return index.ForwardResult{}, fmt.Errorf("unknown activity feature %q", feature)
		}
	}

	current, ok := s.observations.Latest(req.Keyword, req.EntityID)
	if !ok {
		infrastructure.RecordSimulationRequest(ctx, s.metrics, "forward", false)
		return index.ForwardResult{}, fmt.Errorf("observation not found for keyword %q entity %q", req.Keyword, req.EntityID)
	}

	var competitors []index.CompetitorState
	for _, obs := range s.observations.LatestListing(req.Keyword) {
		if obs.EntityID == req.EntityID {
			continue
		}
		competitors = append(competitors, index.CompetitorState{
			EntityID: obs.EntityID,
			Rank:     obs.Rank,
			Index3:   obs.Index3,
		})
	}

	coefficients := index.SelectForwardCoefficients(s.table.All())
	if len(coefficients) == 0 {
		s.logger.WarnContext(ctx, "forward simulation without significant coefficients",
			slog.String("keyword", req.Keyword))
	}

	result := index.SimulateForward(index.ForwardInput{
		Keyword:       req.Keyword,
		EntityID:      req.EntityID,
		CurrentRank:   current.Rank,
		CurrentIndex3: current.Index3,
		Deltas:        req.Deltas,
		Coefficients:  coefficients,
		Competitors:   competitors,
	})

	infrastructure.RecordSimulationRequest(ctx, s.metrics, "forward", true)
	s.logger.InfoContext(ctx, "forward simulation completed",
		slog.String("keyword", req.Keyword),
		slog.String("entity_id", req.EntityID),
		slog.Int("current_rank", result.CurrentRank),
		slog.Int("predicted_rank", result.PredictedRank))
	return result, nil
}

// Inverse computes the index2 and index3 movement needed to climb from the
// current rank to the target rank. Requires an accepted calibration; the
// achievability verdict is bounded by the observed index2 support.
func (s *SimulationService) Inverse(ctx context.Context, keyword string, currentRank, targetRank int) (index.InverseResult, error) {
	params, _ := s.params.Get(keyword)
	if !params.Calibrated() {
		infrastructure.RecordSimulationRequest(ctx, s.metrics, "inverse", false)
		return index.InverseResult{}, fmt.Errorf("%w: %q", index.ErrNotCalibrated, keyword)
	}

	model, _ := s.params.GetGlobal()
	support := s.observations.Index2Range(keyword)

	result, err := index.SimulateInverse(params, model, support, currentRank, targetRank)
	if err != nil {
		infrastructure.RecordSimulationRequest(ctx, s.metrics, "inverse", false)
		return index.InverseResult{}, err
	}

	if params.StaleAt(time.Now().UTC(), s.staleness) {
		s.logger.WarnContext(ctx, "inverse simulation on stale parameters",
			slog.String("keyword", keyword))
	}

	infrastructure.RecordSimulationRequest(ctx, s.metrics, "inverse", true)
	s.logger.InfoContext(ctx, "inverse simulation completed",
		slog.String("keyword", keyword),
		slog.Int("current_rank", currentRank),
		slog.Int("target_rank", targetRank),
		slog.Bool("achievable", result.Achievable))
	return result, nil
}
