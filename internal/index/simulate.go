package index

import (
	"fmt"
	"sort"
)

// CompetitorState is an entity's last-known standing, used to re-rank a
// predicted index3 against the rest of the listing.
type CompetitorState struct {
	EntityID string  `json:"entity_id"`
	Rank     int     `json:"rank"`
	Index3   float64 `json:"index3"`
}

// ForwardInput carries everything the forward simulation needs. It is
// assembled by the caller from the parameter store, the significance table
// and the latest observed listing; the simulation itself is pure.
type ForwardInput struct {
	Keyword       string
	EntityID      string
	CurrentRank   int
	CurrentIndex3 float64
	Deltas        map[Feature]float64
	Coefficients  map[Feature]float64 // significant features only
	Competitors   []CompetitorState   // excluding the entity itself
}

// ForwardResult is the outcome of a forward simulation
type ForwardResult struct {
	Keyword          string              `json:"keyword"`
	EntityID         string              `json:"entity_id"`
	PerFeatureEffect map[Feature]float64 `json:"per_feature_effect"`
	TotalEffect      float64             `json:"total_effect"`
	CurrentIndex3    float64             `json:"current_index3"`
	PredictedIndex3  float64             `json:"predicted_index3"`
	CurrentRank      int                 `json:"current_rank"`
	PredictedRank    int                 `json:"predicted_rank"`
}

// SelectForwardCoefficients picks, per feature, the significant row with the
// longest lag window. Long-lag rows capture the settled effect of an
// activity; rows that never reached significance contribute nothing.
func SelectForwardCoefficients(rows []FeatureSignificance) map[Feature]float64 {
	chosen := make(map[Feature]Lag)
	coeffs := make(map[Feature]float64)
	for _, row := range rows {
		if !row.Significant {
			continue
		}
		if prev, ok := chosen[row.Feature]; ok && prev >= row.Lag {
			continue
		}
		chosen[row.Feature] = row.Lag
		coeffs[row.Feature] = row.Coefficient
	}
	return coeffs
}

// SimulateForward predicts the index3 movement from proposed activity
// deltas. Only features with a fitted coefficient participate; everything
// else is reported with zero effect so the caller can distinguish "no
// evidence" from "no proposal".
func SimulateForward(in ForwardInput) ForwardResult {
	result := ForwardResult{
		Keyword:          in.Keyword,
		EntityID:         in.EntityID,
		PerFeatureEffect: make(map[Feature]float64, len(in.Deltas)),
		CurrentIndex3:    in.CurrentIndex3,
		CurrentRank:      in.CurrentRank,
	}

	for feature, delta := range in.Deltas {
		effect := 0.0
		if coeff, ok := in.Coefficients[feature]; ok && delta != 0 {
			effect = delta * coeff
		}
		result.PerFeatureEffect[feature] = effect
		result.TotalEffect += effect
	}

	result.PredictedIndex3 = clamp01(in.CurrentIndex3 + result.TotalEffect)
	result.PredictedRank = RankAgainst(result.PredictedIndex3, in.CurrentRank, in.Competitors)

	return result
}

// RankAgainst re-ranks a predicted index3 against the competitors'
// last-known values, descending. Ties keep the existing stable rank order
// so a zero-effect simulation never oscillates the rank.
func RankAgainst(predicted float64, currentRank int, competitors []CompetitorState) int {
	rank := 1
	for _, c := range competitors {
		if c.Index3 > predicted {
			rank++
			continue
		}
		if c.Index3 == predicted && c.Rank < currentRank {
			rank++
		}
	}
	return rank
}

// SortedByIndex3 returns the competitors ordered the way the listing ranks
// them: index3 descending, existing rank ascending on ties.
func SortedByIndex3(competitors []CompetitorState) []CompetitorState {
	out := make([]CompetitorState, len(competitors))
	copy(out, competitors)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Index3 != out[j].Index3 {
			return out[i].Index3 > out[j].Index3
		}
		return out[i].Rank < out[j].Rank
	})
	return out
}

// InverseResult answers "what index movement is required to reach the
// target rank, and is it inside historical support?"
type InverseResult struct {
	Keyword       string  `json:"keyword"`
	CurrentRank   int     `json:"current_rank"`
	TargetRank    int     `json:"target_rank"`
	CurrentIndex2 float64 `json:"current_index2"`
	TargetIndex2  float64 `json:"target_index2"`
	Index2Delta   float64 `json:"index2_delta"`
	CurrentIndex3 float64 `json:"current_index3"`
	TargetIndex3  float64 `json:"target_index3"`
	Index3Delta   float64 `json:"index3_delta"`
	Achievable    bool    `json:"achievable"`
	Summary       string  `json:"summary"`
}

// SimulateInverse computes the index2 and index3 movement required to move
// from currentRank to targetRank under the keyword's linear relation and
// the global polynomial. Asking to regress (target not strictly better) is
// rejected with ErrInvalidTarget before any computation. A required index2
// outside the keyword's ever-observed support is flagged as not achievable
// rather than silently trusting the extrapolation.
func SimulateInverse(params KeywordParameters, model GlobalIndex3Model, support Index2Range, currentRank, targetRank int) (InverseResult, error) {
	if targetRank < 1 || targetRank >= currentRank {
		return InverseResult{}, fmt.Errorf("%w: current=%d target=%d", ErrInvalidTarget, currentRank, targetRank)
	}
	if !params.Calibrated() {
		return InverseResult{}, fmt.Errorf("%w: %q", ErrNotCalibrated, params.Keyword)
	}

	currentIndex2 := params.Index2At(currentRank)
	targetIndex2 := params.Index2At(targetRank)
	index1 := params.Index1Constant

	currentIndex3 := model.Evaluate(index1, currentIndex2)
	targetIndex3 := model.Evaluate(index1, targetIndex2)

	result := InverseResult{
		Keyword:       params.Keyword,
		CurrentRank:   currentRank,
		TargetRank:    targetRank,
		CurrentIndex2: currentIndex2,
		TargetIndex2:  targetIndex2,
		Index2Delta:   targetIndex2 - currentIndex2,
		CurrentIndex3: currentIndex3,
		TargetIndex3:  targetIndex3,
		Index3Delta:   targetIndex3 - currentIndex3,
		Achievable:    !support.Empty() && support.Contains(targetIndex2),
	}
	result.Summary = inverseSummary(result)

	return result, nil
}

func inverseSummary(r InverseResult) string {
	feasibility := "within the observed range"
	if !r.Achievable {
		feasibility = "outside the observed range, treat with caution"
	}
	return fmt.Sprintf(
		"reaching rank %d from rank %d requires index2 %+.6f (%.6f → %.6f) and index3 %+.6f (%.6f → %.6f); the required index2 is %s",
		r.TargetRank, r.CurrentRank,
		r.Index2Delta, r.CurrentIndex2, r.TargetIndex2,
		r.Index3Delta, r.CurrentIndex3, r.TargetIndex3,
		feasibility)
}
