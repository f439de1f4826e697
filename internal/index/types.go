package index

import (
	"time"
)

// Lag represents a fixed observation window between an activity and its
// measured response.
type Lag int

const (
	// LagSameDay compares against the observation on the activity date itself
	LagSameDay Lag = 0
	// LagOneDay compares against the observation one day after the activity
	LagOneDay Lag = 1
	// LagSevenDays compares against the observation seven days after the activity
	LagSevenDays Lag = 7
)

// String returns the string representation of the lag
func (l Lag) String() string {
	switch l {
	case LagSameDay:
		return "0d"
	case LagOneDay:
		return "1d"
	case LagSevenDays:
		return "7d"
	default:
		return "unknown"
	}
}

// Days returns the number of days in the lag window
func (l Lag) Days() int {
	return int(l)
}

// AnalyzedLags lists the lag windows the correlation analyzer evaluates.
// LagSameDay stays out: the same-day snapshot is the activity baseline, so
// its response delta is zero for every pair.
var AnalyzedLags = []Lag{LagOneDay, LagSevenDays}

// Feature identifies an operator-reported activity signal
type Feature string

const (
	FeatureBlogReview  Feature = "blog_review"
	FeatureVisitReview Feature = "visit_review"
	FeatureSave        Feature = "save"
	FeatureTraffic     Feature = "traffic"
)

// AllFeatures lists the candidate activity features in evaluation order
var AllFeatures = []Feature{FeatureBlogReview, FeatureVisitReview, FeatureSave, FeatureTraffic}

// IsValid reports whether the feature is one of the known activity signals
func (f Feature) IsValid() bool {
	switch f {
	case FeatureBlogReview, FeatureVisitReview, FeatureSave, FeatureTraffic:
		return true
	}
	return false
}

// Observation is one ingested (keyword, entity, date) snapshot from the
// ranking oracle. Immutable once written; uniquely keyed by
// (Keyword, EntityID, Date).
type Observation struct {
	Keyword      string    `json:"keyword"`
	EntityID     string    `json:"entity_id"`
	EntityName   string    `json:"entity_name,omitempty"`
	Date         time.Time `json:"date"` // truncated to day, UTC
	Rank         int       `json:"rank"`
	Index1       float64   `json:"index1"` // keyword relevance
	Index2       float64   `json:"index2"` // quality
	Index3       float64   `json:"index3"` // composite competitiveness
	BlogCount    int       `json:"blog_count"`
	VisitCount   int       `json:"visit_count"`
	SaveCount    int       `json:"save_count"`
	TrafficCount int       `json:"traffic_count,omitempty"` // operator-supplied, optional
	CollectedAt  time.Time `json:"collected_at"`
}

// IsValid checks if the observation carries a usable snapshot
func (o Observation) IsValid() bool {
	return o.Keyword != "" && o.EntityID != "" && !o.Date.IsZero() &&
		o.Rank > 0 && o.BlogCount >= 0 && o.VisitCount >= 0 && o.SaveCount >= 0
}

// KeywordStatus tracks the calibration state machine for one keyword
type KeywordStatus string

const (
	StatusUncalibrated KeywordStatus = "UNCALIBRATED"
	StatusCalibrating  KeywordStatus = "CALIBRATING"
	StatusCalibrated   KeywordStatus = "CALIBRATED"
	StatusStale        KeywordStatus = "STALE"
	StatusFitRejected  KeywordStatus = "FIT_REJECTED"
)

// KeywordParameters holds the calibrated per-keyword model: a constant
// index1 level and the linear rank to index2 relation. Replaced wholesale
// on each accepted calibration; never mutated field by field.
type KeywordParameters struct {
	Keyword          string        `json:"keyword"`
	Index1Constant   float64       `json:"index1_constant"`
	Index1Std        float64       `json:"index1_std"`
	Index2Slope      float64       `json:"index2_slope"`
	Index2Intercept  float64       `json:"index2_intercept"`
	SampleCount      int           `json:"sample_count"`
	FitQuality       float64       `json:"fit_quality"` // coefficient of determination
	LastCalibratedAt time.Time     `json:"last_calibrated_at"`
	Status           KeywordStatus `json:"status"`
}

// Calibrated reports whether the parameters carry an accepted fit
func (p KeywordParameters) Calibrated() bool {
	return p.Status == StatusCalibrated || p.Status == StatusStale
}

// StaleAt reports whether the fit has aged past the given threshold at t
func (p KeywordParameters) StaleAt(t time.Time, threshold time.Duration) bool {
	if !p.Calibrated() || threshold <= 0 {
		return false
	}
	return t.Sub(p.LastCalibratedAt) > threshold
}

// Index2At evaluates the linear rank to index2 relation
func (p KeywordParameters) Index2At(rank int) float64 {
	return p.Index2Slope*float64(rank) + p.Index2Intercept
}

// RankFor inverts the linear relation: the rank whose fitted index2 equals v.
// Only meaningful when the accepted-slope invariant (slope < 0) holds.
func (p KeywordParameters) RankFor(v float64) float64 {
	if p.Index2Slope == 0 {
		return 0
	}
	return (v - p.Index2Intercept) / p.Index2Slope
}

// EquivalentTo reports whether two parameter sets carry the same fit,
// ignoring the calibration timestamp. Used to keep recalibration cycles
// idempotent when no new observations have arrived.
func (p KeywordParameters) EquivalentTo(other KeywordParameters) bool {
	return p.Keyword == other.Keyword &&
		p.Index1Constant == other.Index1Constant &&
		p.Index1Std == other.Index1Std &&
		p.Index2Slope == other.Index2Slope &&
		p.Index2Intercept == other.Index2Intercept &&
		p.SampleCount == other.SampleCount &&
		p.FitQuality == other.FitQuality &&
		p.Status == other.Status
}

// GlobalIndex3Model is the shared six-term polynomial mapping
// (index1, index2) to index3, pooled across keywords.
type GlobalIndex3Model struct {
	Bias        float64   `json:"bias"`
	Index1      float64   `json:"index1"`
	Index2      float64   `json:"index2"`
	Cross       float64   `json:"cross"` // index1 * index2
	Index1Sq    float64   `json:"index1_sq"`
	Index2Sq    float64   `json:"index2_sq"`
	FitQuality  float64   `json:"fit_quality"`
	SampleCount int       `json:"sample_count"`
	FittedAt    time.Time `json:"fitted_at"`
}

// DefaultGlobalModel returns the seed polynomial derived from the initial
// cross-keyword analysis. Used until enough pooled observations accumulate
// to refit it.
func DefaultGlobalModel() GlobalIndex3Model {
	return GlobalIndex3Model{
		Bias:     -0.288554,
		Index1:   3.350482,
		Index2:   0.159362,
		Cross:    0.438085,
		Index1Sq: -3.715231,
		Index2Sq: -0.851072,
	}
}

// Evaluate applies the polynomial to raw-scale indices and clamps the
// result to the valid index range.
func (m GlobalIndex3Model) Evaluate(index1, index2 float64) float64 {
	v := m.Bias +
		m.Index1*index1 +
		m.Index2*index2 +
		m.Cross*index1*index2 +
		m.Index1Sq*index1*index1 +
		m.Index2Sq*index2*index2
	return clamp01(v)
}

// Zero reports whether the model carries no coefficients at all
func (m GlobalIndex3Model) Zero() bool {
	return m.Bias == 0 && m.Index1 == 0 && m.Index2 == 0 &&
		m.Cross == 0 && m.Index1Sq == 0 && m.Index2Sq == 0
}

// Index3Triple is one pooled (index1, index2, index3) sample for the
// global polynomial fit.
type Index3Triple struct {
	Index1 float64
	Index2 float64
	Index3 float64
}

// FeatureSignificance records whether one activity feature measurably moves
// the index over a given lag window. Recomputed wholesale on each analysis
// cycle; only significant rows feed forward simulation.
type FeatureSignificance struct {
	Feature     Feature   `json:"feature"`
	Lag         Lag       `json:"lag"`
	Correlation float64   `json:"correlation"`
	PValue      *float64  `json:"p_value"` // nil below the sample gate
	Significant bool      `json:"is_significant"`
	Coefficient float64   `json:"coefficient"` // response delta per unit of feature delta
	SampleSize  int       `json:"sample_size"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ResolutionSnapshot captures rank and index3 at a fixed lag after an
// activity. Written at most once per lag.
type ResolutionSnapshot struct {
	Rank       int       `json:"rank"`
	Index3     float64   `json:"index3"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// ActivityEntry is an operator-declared action with its baseline snapshot
// and up to two lagged resolution snapshots.
type ActivityEntry struct {
	ID           string              `json:"id"`
	Keyword      string              `json:"keyword"`
	EntityID     string              `json:"entity_id"`
	ActivityDate time.Time           `json:"activity_date"` // truncated to day, UTC
	Added        map[Feature]int     `json:"added"`
	Baseline     ResolutionSnapshot  `json:"baseline"`
	ResolutionD1 *ResolutionSnapshot `json:"resolution_d1,omitempty"`
	ResolutionD7 *ResolutionSnapshot `json:"resolution_d7,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

// Resolution returns the snapshot captured for the given lag, if any.
// LagSameDay resolves to the baseline itself.
func (e ActivityEntry) Resolution(lag Lag) *ResolutionSnapshot {
	switch lag {
	case LagSameDay:
		b := e.Baseline
		return &b
	case LagOneDay:
		return e.ResolutionD1
	case LagSevenDays:
		return e.ResolutionD7
	}
	return nil
}

// EstimateSource distinguishes locally computed estimates from oracle round trips
type EstimateSource string

const (
	SourceLocal  EstimateSource = "local"
	SourceOracle EstimateSource = "oracle"
)

// Estimate is the answer to an estimation query. Values are carried at full
// precision; presentation rounding happens in the score conversion helpers.
type Estimate struct {
	Keyword string         `json:"keyword"`
	Rank    int            `json:"rank"`
	Index1  float64        `json:"index1"`
	Index2  float64        `json:"index2"`
	Index3  float64        `json:"index3"`
	Source  EstimateSource `json:"source"`
	Stale   bool           `json:"stale,omitempty"`
}

// Index2Range is the ever-observed index2 support for a keyword. Inverse
// simulation refuses to extrapolate outside it.
type Index2Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies inside the observed support
func (r Index2Range) Contains(v float64) bool {
	return r.Min <= v && v <= r.Max
}

// Empty reports whether the range carries no observations
func (r Index2Range) Empty() bool {
	return r.Min == 0 && r.Max == 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
