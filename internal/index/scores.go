package index

import (
	"math"
)

// Display-score conversion. Raw indices live on a 0-1 scale; operator-facing
// scores are 0-100 with four decimal places. These helpers are the only
// place rounding happens; everything upstream carries full precision.

const (
	// Index2NormalBase and Index2NormalSpan map the empirical index2
	// support onto the 0-100 quality score. The source analysis reported
	// both 0.10 and 0.15 for the span; 0.10 is the authoritative constant
	// here, matching the documented fixtures.
	Index2NormalBase = 0.50
	Index2NormalSpan = 0.10
)

// KeywordScore converts index1 to the 0-100 keyword score
func KeywordScore(index1 float64) float64 {
	return round4(index1 * 100)
}

// CompetitionScore converts index3 to the 0-100 competitiveness score
func CompetitionScore(index3 float64) float64 {
	return round4(index3 * 100)
}

// QualityScore maps index2 onto the 0-100 quality score using the
// normalized support window.
func QualityScore(index2 float64) float64 {
	return round4((index2 - Index2NormalBase) / Index2NormalSpan * 100)
}

// QualityScoreToIndex2 inverts QualityScore for simulation inputs expressed
// as display scores.
func QualityScoreToIndex2(score float64) float64 {
	return score/100*Index2NormalSpan + Index2NormalBase
}

// Scores bundles the three display scores for one estimate
type Scores struct {
	Keyword     float64 `json:"keyword_score"`
	Quality     float64 `json:"quality_score"`
	Competition float64 `json:"competition_score"`
}

// ConvertScores derives the display scores from an estimate
func ConvertScores(e Estimate) Scores {
	return Scores{
		Keyword:     KeywordScore(e.Index1),
		Quality:     QualityScore(e.Index2),
		Competition: CompetitionScore(e.Index3),
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
