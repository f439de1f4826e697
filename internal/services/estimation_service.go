package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"placepulse/internal/config"
	"placepulse/internal/index"
	"placepulse/internal/infrastructure"
	"placepulse/internal/oracle"
	"placepulse/internal/store"
)

// ErrRankNotListed is returned when an oracle listing does not contain the
// requested rank position.
var ErrRankNotListed = errors.New("requested rank not found in listing")

// OracleClient is the subset of the oracle client used by estimation.
// Narrowed for testability.
type OracleClient interface {
	Fetch(ctx context.Context, keyword string) (oracle.QueryResult, error)
	BreakerState() oracle.BreakerState
}

// EstimationService answers estimation queries. Calibrated keywords are
// served locally from the stored parameters; everything else falls through
// to the ranking oracle, whose responses are opportunistically ingested as
// observations for future calibration.
type EstimationService struct {
	params       *store.ParameterStore
	observations *store.ObservationLog
	oracle       OracleClient
	staleness    time.Duration
	logger       *slog.Logger
	metrics      *infrastructure.EngineMetrics
}

// NewEstimationService creates a new estimation service
func NewEstimationService(
	params *store.ParameterStore,
	observations *store.ObservationLog,
	oracleClient OracleClient,
	cfg config.CalibrationConfig,
	logger *slog.Logger,
	metrics *infrastructure.EngineMetrics,
) *EstimationService {
	return &EstimationService{
		params:       params,
		observations: observations,
		oracle:       oracleClient,
		staleness:    cfg.Staleness,
		logger:       logger.With(slog.String("component", "estimation_service")),
		metrics:      metrics,
	}
}

// Estimate answers one estimation query. The LOCAL path is free and never
// touches the network; the oracle path is rate limited and circuit broken,
// and degrades to the last known observation when the oracle is down.
func (s *EstimationService) Estimate(ctx context.Context, keyword string, rank int) (index.Estimate, error) {
	if rank < 1 {
		return index.Estimate{}, fmt.Errorf("rank must be positive, got %d", rank)
	}

	params, _ := s.params.Get(keyword)
	if params.Calibrated() {
		model, _ := s.params.GetGlobal()
		estimate := index.ComputeEstimate(params, model, rank)
		estimate.Stale = params.StaleAt(time.Now().UTC(), s.staleness)

		infrastructure.RecordEstimateRequest(ctx, s.metrics, string(estimate.Source), estimate.Stale)
		s.logger.DebugContext(ctx, "estimate served locally",
			slog.String("keyword", keyword),
			slog.Int("rank", rank),
			slog.Bool("stale", estimate.Stale))
		return estimate, nil
	}

	return s.estimateViaOracle(ctx, keyword, rank)
}

func (s *EstimationService) estimateViaOracle(ctx context.Context, keyword string, rank int) (index.Estimate, error) {
	start := time.Now()
	result, err := s.oracle.Fetch(ctx, keyword)
	infrastructure.RecordOracleRequest(ctx, s.metrics, time.Since(start), err)

	if err != nil {
		if errors.Is(err, oracle.ErrUnavailable) {
			if estimate, ok := s.lastKnownEstimate(keyword, rank); ok {
				s.logger.WarnContext(ctx, "oracle unavailable, serving last known observation",
					slog.String("keyword", keyword),
					slog.Int("rank", rank))
				infrastructure.RecordEstimateRequest(ctx, s.metrics, string(estimate.Source), true)
				return estimate, nil
			}
		}
		return index.Estimate{}, fmt.Errorf("estimate %q rank %d: %w", keyword, rank, err)
	}

	s.ingestListing(ctx, result)

	for _, listing := range result.Listings {
		if listing.Rank == rank {
			estimate := index.Estimate{
				Keyword: keyword,
				Rank:    rank,
				Index1:  listing.Index1,
				Index2:  listing.Index2,
				Index3:  listing.Index3,
				Source:  index.SourceOracle,
			}
			infrastructure.RecordEstimateRequest(ctx, s.metrics, string(estimate.Source), false)
			return estimate, nil
		}
	}

	return index.Estimate{}, fmt.Errorf("%w: keyword %q rank %d of %d listings",
		ErrRankNotListed, keyword, rank, len(result.Listings))
}

// lastKnownEstimate serves the most recent stored observation at the rank,
// flagged stale. Degraded-mode fallback only.
func (s *EstimationService) lastKnownEstimate(keyword string, rank int) (index.Estimate, bool) {
	for _, obs := range s.observations.LatestListing(keyword) {
		if obs.Rank == rank {
			return index.Estimate{
				Keyword: keyword,
				Rank:    rank,
				Index1:  obs.Index1,
				Index2:  obs.Index2,
				Index3:  obs.Index3,
				Source:  index.SourceOracle,
				Stale:   true,
			}, true
		}
	}
	return index.Estimate{}, false
}

// ingestListing appends the oracle listing as observations, keyed to today.
// Duplicates for already-ingested (keyword, entity, day) tuples are skipped
// by the log itself.
func (s *EstimationService) ingestListing(ctx context.Context, result oracle.QueryResult) {
	fetchedAt := result.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	day := fetchedAt.UTC().Truncate(24 * time.Hour)

	observations := make([]index.Observation, 0, len(result.Listings))
	for _, listing := range result.Listings {
		observations = append(observations, index.Observation{
			Keyword:      result.Keyword,
			EntityID:     listing.EntityID,
			EntityName:   listing.EntityName,
			Date:         day,
			Rank:         listing.Rank,
			Index1:       listing.Index1,
			Index2:       listing.Index2,
			Index3:       listing.Index3,
			BlogCount:    listing.BlogCount,
			VisitCount:   listing.VisitCount,
			SaveCount:    listing.SaveCount,
			TrafficCount: listing.TrafficCount,
			CollectedAt:  fetchedAt,
		})
	}

	added, err := s.observations.AppendBatch(observations)
	if err != nil {
		s.logger.WarnContext(ctx, "listing ingestion failed",
			slog.String("keyword", result.Keyword),
			slog.String("error", err.Error()))
		return
	}
	if added > 0 {
		s.logger.InfoContext(ctx, "oracle listing ingested",
			slog.String("keyword", result.Keyword),
			slog.Int("added", added),
			slog.Int("listings", len(result.Listings)))
	}
}

// EstimateListing computes local estimates for every rank from 1 through
// maxRank. Requires an accepted calibration; bulk queries never fall through
// to the oracle.
func (s *EstimationService) EstimateListing(ctx context.Context, keyword string, maxRank int) ([]index.Estimate, error) {
	if maxRank < 1 {
		return nil, fmt.Errorf("max rank must be positive, got %d", maxRank)
	}

	params, _ := s.params.Get(keyword)
	if !params.Calibrated() {
		return nil, fmt.Errorf("%w: %q", index.ErrNotCalibrated, keyword)
	}

	model, _ := s.params.GetGlobal()
	stale := params.StaleAt(time.Now().UTC(), s.staleness)

	estimates := make([]index.Estimate, 0, maxRank)
	for rank := 1; rank <= maxRank; rank++ {
		estimate := index.ComputeEstimate(params, model, rank)
		estimate.Stale = stale
		estimates = append(estimates, estimate)
	}
	return estimates, nil
}

// BreakerState exposes the oracle circuit state for health reporting
func (s *EstimationService) BreakerState() oracle.BreakerState {
	return s.oracle.BreakerState()
}
