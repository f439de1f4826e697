package index

import (
	"fmt"
	"strings"
	"time"
)

// PairedSample is one matched (feature delta, response delta) pair for
// correlation analysis. The response is the index3 movement between the
// activity baseline and the lagged resolution snapshot.
type PairedSample struct {
	FeatureDelta  float64
	ResponseDelta float64
}

// CorrelationConfig gates the significance analysis
type CorrelationConfig struct {
	// MinSamples is the paired-sample gate below which no statistic is
	// computed at all.
	MinSamples int
	// SignificanceLevel is the two-sided p-value threshold.
	SignificanceLevel float64
}

// DefaultCorrelationConfig returns the analysis gates used in production
func DefaultCorrelationConfig() CorrelationConfig {
	return CorrelationConfig{
		MinSamples:        30,
		SignificanceLevel: 0.05,
	}
}

// AnalyzePairs tests whether a feature's deltas predict the response deltas
// over one lag window. Below the sample gate the row is marked not
// significant with a nil p-value rather than fabricating a statistic from
// too little evidence. The sensitivity coefficient is fitted for
// significant rows only; non-significant rows carry a zero coefficient and
// are excluded from forward simulation.
func AnalyzePairs(feature Feature, lag Lag, pairs []PairedSample, cfg CorrelationConfig, now time.Time) FeatureSignificance {
	row := FeatureSignificance{
		Feature:    feature,
		Lag:        lag,
		SampleSize: len(pairs),
		UpdatedAt:  now,
	}

	if len(pairs) < cfg.MinSamples {
		return row
	}

	x := make([]float64, len(pairs))
	y := make([]float64, len(pairs))
	for i, p := range pairs {
		x[i] = p.FeatureDelta
		y[i] = p.ResponseDelta
	}

	fit := FitLinear(x, y)
	row.Correlation = fit.R
	p := fit.PValue
	row.PValue = &p
	row.Significant = fit.PValue < cfg.SignificanceLevel
	if row.Significant {
		row.Coefficient = fit.Slope
	}

	return row
}

// AnalysisReport summarizes one correlation cycle for reporting
type AnalysisReport struct {
	RunAt          time.Time             `json:"run_at"`
	Rows           []FeatureSignificance `json:"rows"`
	Recommendation string                `json:"recommendation"`
}

// BuildRecommendation produces the human-readable summary for an analysis
// cycle from the numeric results. Generated, never hand-authored per case.
func BuildRecommendation(rows []FeatureSignificance) string {
	var parts []string
	for _, row := range rows {
		if !row.Significant {
			continue
		}
		direction := "moves"
		if row.Correlation > 0 {
			direction = "raises"
		} else if row.Correlation < 0 {
			direction = "lowers"
		}
		parts = append(parts, fmt.Sprintf(
			"%s %s the index over %s (r=%.2f, n=%d)",
			row.Feature, direction, row.Lag, row.Correlation, row.SampleSize))
	}

	if len(parts) == 0 {
		return "no activity signal shows a statistically significant effect yet; keep logging activity"
	}
	return strings.Join(parts, "; ")
}
