package index

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for expected data-sparsity and validation conditions.
// These are statuses expressed as errors so callers can branch with
// errors.Is; none of them indicate a system failure.
var (
	// ErrInsufficientData means a fit was skipped because the sample gate
	// was not met. The keyword stays in its previous state.
	ErrInsufficientData = errors.New("insufficient observations for fit")

	// ErrFitRejected means the fit completed but failed validation
	// (implausible slope sign or fit quality below the floor). Previously
	// stored parameters must be retained unchanged.
	ErrFitRejected = errors.New("fit rejected by validation")

	// ErrInvalidTarget means an inverse simulation asked for a target rank
	// that is not strictly better than the current rank.
	ErrInvalidTarget = errors.New("target rank must be better than current rank")

	// ErrNotCalibrated means an operation needed accepted keyword
	// parameters and none exist yet.
	ErrNotCalibrated = errors.New("keyword is not calibrated")
)

// FitConfig gates and validates calibration fits
type FitConfig struct {
	// MinKeywordSamples is the minimum observation count for a per-keyword
	// linear fit.
	MinKeywordSamples int
	// MinGlobalSamples is the minimum pooled triple count for the global
	// polynomial fit.
	MinGlobalSamples int
	// MinFitQuality is the coefficient-of-determination floor below which
	// a fit is rejected.
	MinFitQuality float64
	// Lookback bounds the observation window used for fitting. Zero means
	// all-time.
	Lookback time.Duration
}

// DefaultFitConfig returns the calibration gates used in production
func DefaultFitConfig() FitConfig {
	return FitConfig{
		MinKeywordSamples: 5,
		MinGlobalSamples:  100,
		MinFitQuality:     0.3,
	}
}

// FitKeywordParameters fits the per-keyword model from the keyword's
// observations: index1 as the observed mean (it is empirically constant per
// keyword and not rank dependent), index2 as an ordinary least squares line
// over rank.
//
// Returns ErrInsufficientData below the sample gate and ErrFitRejected when
// the slope is positive (a worse rank implying a higher score is physically
// implausible) or the fit quality is under the floor. On rejection the
// returned parameters still carry the offending fit so the caller can log
// it, but they must not be stored.
func FitKeywordParameters(keyword string, observations []Observation, cfg FitConfig, now time.Time) (KeywordParameters, error) {
	params := KeywordParameters{
		Keyword:     keyword,
		SampleCount: len(observations),
		Status:      StatusUncalibrated,
	}

	if len(observations) < cfg.MinKeywordSamples {
		return params, fmt.Errorf("%w: %d < %d", ErrInsufficientData, len(observations), cfg.MinKeywordSamples)
	}

	ranks := make([]float64, 0, len(observations))
	index2s := make([]float64, 0, len(observations))
	index1s := make([]float64, 0, len(observations))
	for _, o := range observations {
		if o.Rank <= 0 {
			continue
		}
		ranks = append(ranks, float64(o.Rank))
		index2s = append(index2s, o.Index2)
		if o.Index1 > 0 {
			index1s = append(index1s, o.Index1)
		}
	}

	if len(ranks) < cfg.MinKeywordSamples {
		return params, fmt.Errorf("%w: %d usable of %d", ErrInsufficientData, len(ranks), len(observations))
	}

	fit := FitLinear(ranks, index2s)
	params.Index1Constant = Mean(index1s)
	params.Index1Std = StdDev(index1s)
	params.Index2Slope = fit.Slope
	params.Index2Intercept = fit.Intercept
	params.SampleCount = fit.N
	params.FitQuality = fit.RSquared
	params.LastCalibratedAt = now

	if fit.Slope > 0 {
		params.Status = StatusFitRejected
		return params, fmt.Errorf("%w: positive slope %.6g", ErrFitRejected, fit.Slope)
	}
	if fit.RSquared < cfg.MinFitQuality {
		params.Status = StatusFitRejected
		return params, fmt.Errorf("%w: fit quality %.4f below floor %.4f", ErrFitRejected, fit.RSquared, cfg.MinFitQuality)
	}

	params.Status = StatusCalibrated
	return params, nil
}

// FitGlobalModel fits the pooled six-term polynomial mapping
// (index1, index2) to index3. The relation is assumed keyword invariant;
// the fit-quality gate continuously validates that working hypothesis.
func FitGlobalModel(triples []Index3Triple, cfg FitConfig, now time.Time) (GlobalIndex3Model, error) {
	if len(triples) < cfg.MinGlobalSamples {
		return GlobalIndex3Model{}, fmt.Errorf("%w: %d < %d pooled triples", ErrInsufficientData, len(triples), cfg.MinGlobalSamples)
	}

	coeffs, rSquared, ok := FitPolynomial(triples)
	if !ok {
		return GlobalIndex3Model{}, fmt.Errorf("%w: singular design matrix", ErrFitRejected)
	}

	model := GlobalIndex3Model{
		Bias:        coeffs[0],
		Index1:      coeffs[1],
		Index2:      coeffs[2],
		Cross:       coeffs[3],
		Index1Sq:    coeffs[4],
		Index2Sq:    coeffs[5],
		FitQuality:  rSquared,
		SampleCount: len(triples),
		FittedAt:    now,
	}

	if rSquared < cfg.MinFitQuality {
		return model, fmt.Errorf("%w: pooled fit quality %.4f below floor %.4f", ErrFitRejected, rSquared, cfg.MinFitQuality)
	}

	return model, nil
}

// ComputeEstimate evaluates the calibrated models at the given rank. The
// caller is responsible for having checked parameter status; this is the
// pure arithmetic of the LOCAL estimation path.
func ComputeEstimate(params KeywordParameters, model GlobalIndex3Model, rank int) Estimate {
	index1 := params.Index1Constant
	index2 := clamp01(params.Index2At(rank))
	return Estimate{
		Keyword: params.Keyword,
		Rank:    rank,
		Index1:  index1,
		Index2:  index2,
		Index3:  model.Evaluate(index1, index2),
		Source:  SourceLocal,
	}
}
