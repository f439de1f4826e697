package index

import (
	"errors"
	"math"
	"testing"
	"time"
)

func day(n int) time.Time {
	return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// lineObservations builds one observation per rank with index2 following
// the given linear relation exactly.
func lineObservations(keyword string, slope, intercept, index1 float64, ranks ...int) []Observation {
	obs := make([]Observation, 0, len(ranks))
	for i, r := range ranks {
		obs = append(obs, Observation{
			Keyword:     keyword,
			EntityID:    "entity-a",
			Date:        day(i),
			Rank:        r,
			Index1:      index1,
			Index2:      slope*float64(r) + intercept,
			CollectedAt: day(i),
		})
	}
	return obs
}

func TestFitKeywordParametersAcceptsNegativeSlope(t *testing.T) {
	obs := lineObservations("강남카페", -0.00103, 0.5506, 0.366894, 1, 3, 5, 8, 10, 15, 20)
	now := day(30)

	params, err := FitKeywordParameters("강남카페", obs, DefaultFitConfig(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if params.Status != StatusCalibrated {
		t.Errorf("status = %s, want CALIBRATED", params.Status)
	}
	if math.Abs(params.Index2Slope-(-0.00103)) > 1e-9 {
		t.Errorf("slope = %v, want -0.00103", params.Index2Slope)
	}
	if math.Abs(params.Index2Intercept-0.5506) > 1e-9 {
		t.Errorf("intercept = %v, want 0.5506", params.Index2Intercept)
	}
	if math.Abs(params.Index1Constant-0.366894) > 1e-12 {
		t.Errorf("index1 constant = %v, want 0.366894", params.Index1Constant)
	}
	if params.SampleCount != 7 {
		t.Errorf("sample count = %d, want 7", params.SampleCount)
	}
	if !params.LastCalibratedAt.Equal(now) {
		t.Errorf("last calibrated at = %v, want %v", params.LastCalibratedAt, now)
	}
}

func TestFitKeywordParametersRejectsPositiveSlope(t *testing.T) {
	// A worse rank number implying a higher quality score is implausible.
	obs := lineObservations("bad", 0.002, 0.40, 0.35, 1, 2, 3, 4, 5, 6)

	params, err := FitKeywordParameters("bad", obs, DefaultFitConfig(), day(10))
	if !errors.Is(err, ErrFitRejected) {
		t.Fatalf("error = %v, want ErrFitRejected", err)
	}
	if params.Status != StatusFitRejected {
		t.Errorf("status = %s, want FIT_REJECTED", params.Status)
	}
	// The offending fit is still reported so callers can log it.
	if params.Index2Slope <= 0 {
		t.Errorf("expected the positive slope to be carried for logging, got %v", params.Index2Slope)
	}
}

func TestFitKeywordParametersRejectsNoiseFit(t *testing.T) {
	// Index2 uncorrelated with rank: slope near zero, quality under floor.
	obs := []Observation{
		{Keyword: "noise", EntityID: "e", Date: day(0), Rank: 1, Index2: 0.52, Index1: 0.3},
		{Keyword: "noise", EntityID: "e", Date: day(1), Rank: 2, Index2: 0.58, Index1: 0.3},
		{Keyword: "noise", EntityID: "e", Date: day(2), Rank: 3, Index2: 0.51, Index1: 0.3},
		{Keyword: "noise", EntityID: "e", Date: day(3), Rank: 4, Index2: 0.57, Index1: 0.3},
		{Keyword: "noise", EntityID: "e", Date: day(4), Rank: 5, Index2: 0.52, Index1: 0.3},
		{Keyword: "noise", EntityID: "e", Date: day(5), Rank: 6, Index2: 0.56, Index1: 0.3},
	}

	params, err := FitKeywordParameters("noise", obs, DefaultFitConfig(), day(10))
	if !errors.Is(err, ErrFitRejected) {
		t.Fatalf("error = %v, want ErrFitRejected (quality %v)", err, params.FitQuality)
	}
}

func TestFitKeywordParametersSampleGate(t *testing.T) {
	obs := lineObservations("sparse", -0.001, 0.55, 0.36, 1, 2, 3)

	params, err := FitKeywordParameters("sparse", obs, DefaultFitConfig(), day(10))
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("error = %v, want ErrInsufficientData", err)
	}
	if params.Status != StatusUncalibrated {
		t.Errorf("status = %s, want UNCALIBRATED", params.Status)
	}
	if params.SampleCount != 3 {
		t.Errorf("sample count = %d, want 3", params.SampleCount)
	}
}

func TestComputeEstimateMatchesLinearRelation(t *testing.T) {
	params := KeywordParameters{
		Keyword:         "강남카페",
		Index1Constant:  0.366894,
		Index2Slope:     -0.00103,
		Index2Intercept: 0.5506,
		Status:          StatusCalibrated,
	}

	est := ComputeEstimate(params, DefaultGlobalModel(), 10)

	if math.Abs(est.Index2-0.5403) > 1e-9 {
		t.Errorf("index2 at rank 10 = %v, want 0.5403", est.Index2)
	}
	if est.Index1 != 0.366894 {
		t.Errorf("index1 = %v, want the stored constant", est.Index1)
	}
	if est.Source != SourceLocal {
		t.Errorf("source = %s, want local", est.Source)
	}
	if est.Index3 <= 0 || est.Index3 >= 1 {
		t.Errorf("index3 = %v, want inside (0, 1)", est.Index3)
	}
}

func TestFitGlobalModelGateAndQuality(t *testing.T) {
	cfg := DefaultFitConfig()

	// Below the pooled gate.
	few := make([]Index3Triple, 20)
	if _, err := FitGlobalModel(few, cfg, day(0)); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("error = %v, want ErrInsufficientData", err)
	}

	// Well above the gate, generated from the seed polynomial: the refit
	// must recover it with near-perfect quality.
	seed := DefaultGlobalModel()
	var triples []Index3Triple
	for i := 0; i < 15; i++ {
		for j := 0; j < 15; j++ {
			n1 := 0.30 + 0.008*float64(i)
			n2 := 0.50 + 0.004*float64(j)
			triples = append(triples, Index3Triple{
				Index1: n1,
				Index2: n2,
				Index3: seed.Evaluate(n1, n2),
			})
		}
	}

	model, err := FitGlobalModel(triples, cfg, day(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.FitQuality < 0.999 {
		t.Errorf("fit quality = %v, want ~1", model.FitQuality)
	}
	if math.Abs(model.Bias-seed.Bias) > 1e-4 {
		t.Errorf("bias = %v, want %v", model.Bias, seed.Bias)
	}
	if model.SampleCount != len(triples) {
		t.Errorf("sample count = %d, want %d", model.SampleCount, len(triples))
	}
}

func TestGlobalModelEvaluateClamps(t *testing.T) {
	m := GlobalIndex3Model{Bias: 5}
	if got := m.Evaluate(0.5, 0.5); got != 1 {
		t.Errorf("evaluate = %v, want clamp to 1", got)
	}
	m = GlobalIndex3Model{Bias: -5}
	if got := m.Evaluate(0.5, 0.5); got != 0 {
		t.Errorf("evaluate = %v, want clamp to 0", got)
	}
}

func TestStaleAt(t *testing.T) {
	params := KeywordParameters{
		Status:           StatusCalibrated,
		LastCalibratedAt: day(0),
	}

	if params.StaleAt(day(1), 72*time.Hour) {
		t.Error("fresh parameters reported stale")
	}
	if !params.StaleAt(day(4), 72*time.Hour) {
		t.Error("aged parameters not reported stale")
	}
	// Uncalibrated parameters are never "stale", they are absent.
	params.Status = StatusUncalibrated
	if params.StaleAt(day(40), 72*time.Hour) {
		t.Error("uncalibrated parameters reported stale")
	}
}
